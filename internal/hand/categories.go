package hand

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// defaultLabels is the built-in five-level HAND scale. Codes name height
// bands above the nearest drainage; lower clearance means higher flood risk.
var defaultLabels = map[int]string{
	1: "Muito Baixo (> 25m)",
	2: "Baixo (10-25m)",
	3: "Médio (5-10m)",
	4: "Alto (1-5m)",
	5: "Muito Alto (< 1m)",
}

// Categories resolves numeric category codes to display labels.
type Categories struct {
	labels map[int]string
}

// DefaultCategories returns the built-in scale.
func DefaultCategories() *Categories {
	labels := make(map[int]string, len(defaultLabels))
	for code, label := range defaultLabels {
		labels[code] = label
	}
	return &Categories{labels: labels}
}

type categoryFile struct {
	Categories map[int]string `yaml:"categories"`
}

// LoadCategories reads label overrides from a YAML file. Codes absent from
// the file keep their built-in labels.
func LoadCategories(path string) (*Categories, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "hand: read category file %s", path)
	}

	var parsed categoryFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, eris.Wrapf(err, "hand: parse category file %s", path)
	}
	if len(parsed.Categories) == 0 {
		return nil, eris.Errorf("hand: category file %s defines no categories", path)
	}

	c := DefaultCategories()
	for code, label := range parsed.Categories {
		c.labels[code] = label
	}
	return c, nil
}

// Label returns the display label for a category code. Codes outside the
// known scale yield the empty string, never an error.
func (c *Categories) Label(code int) string {
	return c.labels[code]
}
