package types

// Site is a physical location grouping labs.
type Site struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type SitePatch struct {
	Name *string `json:"name,omitempty"`
}

// Lab is a room scoped to one site.
type Lab struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	SiteID int64  `json:"siteId"`
}

type LabPatch struct {
	Name   *string `json:"name,omitempty"`
	SiteID *int64  `json:"siteId,omitempty"`
}

// Structure is the settings-screen snapshot loaded in one call.
type Structure struct {
	Sites   []Site   `json:"sites"`
	Labs    []Lab    `json:"labs"`
	Devices []Device `json:"devices"`
}

// MatchLabs returns the labs called labName. A non-empty siteName keeps
// only labs of sites with that name. Lab names are unique per site only,
// so a bare name can match several labs.
func MatchLabs(labs []Lab, sites []Site, siteName, labName string, equal func(a, b string) bool) []Lab {
	siteNames := make(map[int64]string, len(sites))
	for _, s := range sites {
		siteNames[s.ID] = s.Name
	}

	var out []Lab
	for _, l := range labs {
		if !equal(l.Name, labName) {
			continue
		}
		if siteName != "" && !equal(siteNames[l.SiteID], siteName) {
			continue
		}
		out = append(out, l)
	}
	return out
}
