package permissions

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// catalogFile is the on-disk catalog format
type catalogFile struct {
	Actions map[string]Label `yaml:"actions"`
	Modules []struct {
		Key       string `yaml:"key"`
		Label     Label  `yaml:"label"`
		Resources []struct {
			Key     string           `yaml:"key"`
			Label   Label            `yaml:"label"`
			Actions []string         `yaml:"actions"`
			Labels  map[string]Label `yaml:"labels"`
		} `yaml:"resources"`
	} `yaml:"modules"`
}

// ParseCatalog builds a catalog from its YAML definition. Descriptor labels
// default to "<action> <resource>" in each language unless the resource
// overrides them under labels.
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	modules := make([]Module, 0, len(file.Modules))
	for _, fm := range file.Modules {
		m := Module{Key: fm.Key, Label: fm.Label}
		for _, fr := range fm.Resources {
			r := Resource{
				Key:         fr.Key,
				Label:       fr.Label,
				Actions:     fr.Actions,
				Permissions: make([]Descriptor, 0, len(fr.Actions)),
			}
			for _, action := range fr.Actions {
				label, ok := fr.Labels[action]
				if !ok {
					actionLabel, known := file.Actions[action]
					if !known {
						actionLabel = Label{EN: action, AR: action}
					}
					label = Label{
						EN: actionLabel.EN + " " + fr.Label.EN,
						AR: actionLabel.AR + " " + fr.Label.AR,
					}
				}
				r.Permissions = append(r.Permissions, Descriptor{
					Key:     NewKey(fr.Key, action),
					LabelEN: label.EN,
					LabelAR: label.AR,
				})
			}
			m.Resources = append(m.Resources, r)
		}
		modules = append(modules, m)
	}

	return NewCatalog(modules)
}

// LoadCatalogFile reads and parses a catalog definition from disk
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}

// DefaultCatalog returns the catalog compiled into the binary
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog is invalid: %v", err))
	}
	return c
}
