package seed

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/KevinKickass/OpenLabManager/internal/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

//go:embed seed.schema.json
var seedSchemaJSON string

type Data struct {
	Version int      `yaml:"version" json:"version"`
	Sites   []Site   `yaml:"sites" json:"sites"`
	Labs    []Lab    `yaml:"labs" json:"labs"`
	Groups  []Group  `yaml:"groups" json:"groups"`
	Devices []Device `yaml:"devices" json:"devices"`
	Admin   Admin    `yaml:"admin" json:"admin"`
}

type Site struct {
	Name string `yaml:"name" json:"name"`
}

type Lab struct {
	Name string `yaml:"name" json:"name"`
	Site string `yaml:"site" json:"site"`
}

type Group struct {
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description" json:"description,omitempty"`
	Permissions []types.Permission `yaml:"permissions" json:"permissions,omitempty"`
}

type Device struct {
	ID        string `yaml:"id" json:"id"`
	Brand     string `yaml:"brand" json:"brand,omitempty"`
	Model     string `yaml:"model" json:"model,omitempty"`
	Processor string `yaml:"processor" json:"processor,omitempty"`
	RAM       string `yaml:"ram" json:"ram,omitempty"`
	Storage   string `yaml:"storage" json:"storage,omitempty"`
	Lab       string `yaml:"lab" json:"lab"`
	Status    string `yaml:"status" json:"status"`
	LastCheck string `yaml:"last_check" json:"last_check,omitempty"`
	Logs      []Log  `yaml:"logs" json:"logs,omitempty"`
}

type Log struct {
	Date        string `yaml:"date" json:"date"`
	Description string `yaml:"description" json:"description"`
	Type        string `yaml:"type" json:"type"`
}

type Admin struct {
	Name   string `yaml:"name" json:"name"`
	Email  string `yaml:"email" json:"email"`
	Group  string `yaml:"group" json:"group,omitempty"`
	Avatar string `yaml:"avatar" json:"avatar,omitempty"`
}

// Default returns the embedded seed document.
func Default() (*Data, error) {
	return Parse(defaultSeed)
}

// LoadFile reads a seed document from disk. An empty path yields the
// embedded default.
func LoadFile(path string) (*Data, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML seed document and validates it against the seed
// schema.
func Parse(raw []byte) (*Data, error) {
	var data Data
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("invalid seed YAML: %w", err)
	}

	if err := validate(&data); err != nil {
		return nil, err
	}
	if err := data.checkReferences(); err != nil {
		return nil, err
	}
	return &data, nil
}

func validate(data *Data) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("seed.schema.json", bytes.NewReader([]byte(seedSchemaJSON))); err != nil {
		return fmt.Errorf("failed to add schema resource: %w", err)
	}
	schema, err := compiler.Compile("seed.schema.json")
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	// The validator expects the value shapes encoding/json produces.
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal seed: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return fmt.Errorf("failed to decode seed: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("seed validation failed: %w", err)
	}
	return nil
}

func (d *Data) checkReferences() error {
	sites := make(map[string]bool, len(d.Sites))
	for _, s := range d.Sites {
		sites[s.Name] = true
	}
	labs := make(map[string]bool, len(d.Labs))
	for _, l := range d.Labs {
		if !sites[l.Site] {
			return fmt.Errorf("seed lab %q references unknown site %q", l.Name, l.Site)
		}
		labs[l.Name] = true
	}
	for _, dev := range d.Devices {
		if !labs[dev.Lab] {
			return fmt.Errorf("seed device %q references unknown lab %q", dev.ID, dev.Lab)
		}
	}
	if d.Admin.Group != "" {
		found := false
		for _, g := range d.Groups {
			if g.Name == d.Admin.Group {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("seed admin references unknown group %q", d.Admin.Group)
		}
	}
	return nil
}
