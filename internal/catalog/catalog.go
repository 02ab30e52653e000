// Package catalog loads the optional feeds.yaml file that names the
// feeds a deployment ingests, so one binary can serve several sources.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Feed is one named source in the catalog. APIKeyEnv names an environment
// variable so keys never live in the catalog file itself.
type Feed struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	Format    string `yaml:"format"` // csv or json
	APIKeyEnv string `yaml:"api_key_env,omitempty"`
	Index     string `yaml:"index,omitempty"`
}

// Catalog is the parsed feeds file.
type Catalog struct {
	Feeds []Feed `yaml:"feeds"`
}

// Load parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[string]bool, len(cat.Feeds))
	for i, f := range cat.Feeds {
		if f.Name == "" {
			return nil, fmt.Errorf("catalog feed %d: name is required", i)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("catalog feed %q appears twice", f.Name)
		}
		seen[f.Name] = true
		if f.URL == "" {
			return nil, fmt.Errorf("catalog feed %q: url is required", f.Name)
		}
		switch f.Format {
		case "csv", "json":
		default:
			return nil, fmt.Errorf("catalog feed %q: unsupported format %q", f.Name, f.Format)
		}
	}
	return &cat, nil
}

// Lookup returns the feed with the given name.
func (c *Catalog) Lookup(name string) (*Feed, error) {
	for i := range c.Feeds {
		if c.Feeds[i].Name == name {
			return &c.Feeds[i], nil
		}
	}
	return nil, fmt.Errorf("feed %q not found in catalog", name)
}

// APIKey resolves the feed's API key from its configured environment
// variable, if any.
func (f *Feed) APIKey() string {
	if f.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(f.APIKeyEnv)
}
