// Package ingest pulls park listings from external sources into the raw
// listing store. Each connector maps one source's records into
// model.RawListing rows keyed by (source, external_id).
package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/parkscout/pkg/overpass"
)

// StateConfig describes the search area for one US state, loaded from a
// YAML file in the state config directory.
type StateConfig struct {
	State struct {
		Name         string `yaml:"name"`
		Abbreviation string `yaml:"abbreviation"`
		FIPS         string `yaml:"fips"`
	} `yaml:"state"`
	Geography struct {
		BBox struct {
			MinLat float64 `yaml:"min_lat"`
			MinLon float64 `yaml:"min_lon"`
			MaxLat float64 `yaml:"max_lat"`
			MaxLon float64 `yaml:"max_lon"`
		} `yaml:"bbox"`
		Center struct {
			Lat float64 `yaml:"lat"`
			Lon float64 `yaml:"lon"`
		} `yaml:"center"`
	} `yaml:"geography"`
	Search struct {
		Keywords []string `yaml:"keywords"`
	} `yaml:"search"`
}

// defaultKeywords drive the grid search when a state config lists none.
var defaultKeywords = []string{
	"rv park",
	"mobile home park",
	"trailer park",
	"manufactured home community",
	"campground",
	"rv resort",
}

// BBox converts the configured bounding box to the Overpass form.
func (c *StateConfig) BBox() overpass.BBox {
	return overpass.BBox{
		MinLat: c.Geography.BBox.MinLat,
		MinLon: c.Geography.BBox.MinLon,
		MaxLat: c.Geography.BBox.MaxLat,
		MaxLon: c.Geography.BBox.MaxLon,
	}
}

// Keywords returns the configured search keywords, falling back to the
// stock park keyword set.
func (c *StateConfig) Keywords() []string {
	if len(c.Search.Keywords) > 0 {
		return c.Search.Keywords
	}
	return defaultKeywords
}

func (c *StateConfig) validate() error {
	var problems []string
	if c.State.Name == "" {
		problems = append(problems, "state.name is required")
	}
	if c.State.Abbreviation == "" {
		problems = append(problems, "state.abbreviation is required")
	}
	bb := c.Geography.BBox
	if bb.MinLat >= bb.MaxLat || bb.MinLon >= bb.MaxLon {
		problems = append(problems, "geography.bbox must span a positive area")
	}
	if len(problems) > 0 {
		return eris.Errorf("ingest: invalid state config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// LoadStateConfig reads and validates one state YAML file.
func LoadStateConfig(path string) (*StateConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read state config %s", path)
	}

	var cfg StateConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse state config %s", path)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindStateConfig locates a state config by name or abbreviation inside
// the config directory. The lookup is case-insensitive and matches the
// file stem, the state name, or the abbreviation.
func FindStateConfig(dir, state string) (*StateConfig, error) {
	want := strings.ToLower(strings.TrimSpace(state))

	direct := filepath.Join(dir, want+".yaml")
	if _, err := os.Stat(direct); err == nil {
		return LoadStateConfig(direct)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read state config dir %s", dir)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		cfg, err := LoadStateConfig(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if strings.EqualFold(cfg.State.Name, want) || strings.EqualFold(cfg.State.Abbreviation, want) {
			return cfg, nil
		}
	}
	return nil, eris.Errorf("ingest: no state config for %q in %s", state, dir)
}
