package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SportTable lists sport names per scoring model. Names are matched
// case-insensitively; anything unlisted scores continuously.
type SportTable struct {
	SetBased   []string `yaml:"set_based"`
	Continuous []string `yaml:"continuous"`
}

func LoadSportTable(path string) (SportTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SportTable{}, fmt.Errorf("read sport table: %w", err)
	}

	var table SportTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return SportTable{}, fmt.Errorf("parse sport table: %w", err)
	}

	return table, nil
}
