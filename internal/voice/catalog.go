package voice

import (
	"fmt"
	"io/ioutil"

	"gopkg.in/yaml.v3"
)

// Catalog is a user-maintained extension of the built-in voice registry.
type Catalog struct {
	Voices []CatalogEntry `yaml:"voices"`
}

type CatalogEntry struct {
	File string `yaml:"file"`
	URL  string `yaml:"url"`
}

// LoadCatalog reads a catalog file from disk.
func LoadCatalog(path string) (Catalog, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// ValidateCatalog ensures every entry names a file and a URL.
func ValidateCatalog(c Catalog) error {
	for i, e := range c.Voices {
		if e.File == "" {
			return fmt.Errorf("voices[%d].file is required", i)
		}
		if e.URL == "" {
			return fmt.Errorf("voices[%d].url is required", i)
		}
	}
	return nil
}

// Entries returns the catalog in the form Registry.Merge accepts.
func (c Catalog) Entries() map[string]string {
	out := make(map[string]string, len(c.Voices))
	for _, e := range c.Voices {
		out[e.File] = e.URL
	}
	return out
}
