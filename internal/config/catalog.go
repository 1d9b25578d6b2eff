package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"ruuvigw-bridge/internal/homeassistant"
	"ruuvigw-bridge/internal/ruuvi"
)

// Catalog is the optional YAML file naming devices and overriding
// sensor descriptors:
//
//	tags:
//	  "AA:BB:CC:DD:EE:FF": Kitchen
//	sensors:
//	  pressure:
//	    device_class: atmospheric_pressure
//	    unit_of_measurement: Pa
//	    state_class: measurement
//
// ${VAR} references are expanded from the environment before parsing.
type Catalog struct {
	Tags    map[string]string                   `yaml:"tags"`
	Sensors map[string]homeassistant.Descriptor `yaml:"sensors"`
}

// LoadCatalog reads the catalog at path. An empty path yields an empty
// catalog.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return Catalog{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (Catalog, error) {
	expanded := os.ExpandEnv(string(data))

	var c Catalog
	if err := yaml.Unmarshal([]byte(expanded), &c); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	for name := range c.Sensors {
		if _, ok := ruuvi.ParseMetric(name); !ok {
			return Catalog{}, fmt.Errorf("catalog: unknown sensor %q", name)
		}
	}
	return c, nil
}

// Labels returns the device label table.
func (c Catalog) Labels() homeassistant.Labels {
	return homeassistant.NewLabels(c.Tags)
}

// Dictionary returns the default dictionary with the catalog's sensor
// entries applied.
func (c Catalog) Dictionary() homeassistant.Dictionary {
	over := make(homeassistant.Dictionary, len(c.Sensors))
	for name, desc := range c.Sensors {
		m, _ := ruuvi.ParseMetric(name)
		over[m] = desc
	}
	return homeassistant.DefaultDictionary().Merge(over)
}
