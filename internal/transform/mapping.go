package transform

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// DefaultMapping renames the default ACS5 codes to their semantic names.
var DefaultMapping = map[string]string{
	"B19013_001E": "MedIncome",
	"B19013_001M": "IncMarErr",
	"B01003_001E": "TotPop",
	"B25003_003E": ColRentOcc,
	"B25002_002E": ColOwnOcc,
	"B25121_001E": "Income",
	"B25121_002E": "less10k",
	"B25121_017E": "10to20k",
	"B25121_032E": "20to35k",
	"B25121_047E": "35to50k",
	"B25121_062E": "50to75k",
	"B25121_077E": "75to100k",
	"B25121_092E": "more100k",
}

// LoadMapping reads a code -> column name mapping from a YAML file with a
// top-level "columns" key. Two codes may not map to the same name.
func LoadMapping(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "transform: read mapping %s", path)
	}

	var wrapper struct {
		Columns map[string]string `yaml:"columns"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "transform: parse mapping")
	}
	if len(wrapper.Columns) == 0 {
		return nil, eris.Errorf("transform: mapping %s has no columns", path)
	}

	targets := make(map[string]string, len(wrapper.Columns))
	for code, name := range wrapper.Columns {
		if name == "" {
			return nil, eris.Errorf("transform: mapping for %s is empty", code)
		}
		if prev, dup := targets[name]; dup {
			return nil, eris.Errorf("transform: %s and %s both map to %s", prev, code, name)
		}
		targets[name] = code
	}
	return wrapper.Columns, nil
}

// Invert returns the name -> code mapping.
func Invert(mapping map[string]string) map[string]string {
	out := make(map[string]string, len(mapping))
	for k, v := range mapping {
		out[v] = k
	}
	return out
}
