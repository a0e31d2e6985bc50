package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSeed(t *testing.T) {
	data, err := Default()
	require.NoError(t, err)

	assert.Len(t, data.Sites, 2)
	assert.Len(t, data.Labs, 11)
	assert.Len(t, data.Groups, 3)
	assert.Len(t, data.Devices, 3)
	assert.Equal(t, "admin@labmanager.local", data.Admin.Email)
	assert.Equal(t, "Administradores", data.Admin.Group)
	require.Len(t, data.Devices[1].Logs, 1)
	assert.Equal(t, "Teclado com defeito", data.Devices[1].Logs[0].Description)
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	_, err := Parse([]byte(`
version: 1
sites: [{name: A}]
labs: [{name: L1, site: A}]
groups: []
devices:
  - {id: X-1, lab: L1, status: Exploded}
admin: {name: Admin, email: admin@example.com}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed validation failed")
}

func TestParseRejectsDanglingReferences(t *testing.T) {
	_, err := Parse([]byte(`
version: 1
sites: [{name: A}]
labs: [{name: L1, site: B}]
groups: []
devices: []
admin: {name: Admin, email: admin@example.com}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown site")
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`
version: 1
sites: [{name: A, city: Porto}]
labs: []
groups: []
devices: []
admin: {name: Admin, email: admin@example.com}
`))
	require.Error(t, err)
}
