package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server Server `yaml:"server"`
}

type Server struct {
	Emulator Emulator `yaml:"emulator"`
}

type Emulator struct {
	ClusterName string `yaml:"clusterName"`
	// SlurmConf is the path to a slurm.conf file to interpret; empty means
	// built-in defaults.
	SlurmConf string `yaml:"slurmConf"`
	// StateDir holds the clock and store snapshot files; empty disables
	// persistence.
	StateDir string `yaml:"stateDir"`
	// GraceRatio is the overconsumption tolerance before hard blocking;
	// zero means the default 0.2.
	GraceRatio float64 `yaml:"graceRatio"`
	// DisableCarryover turns off allocation carryover at period boundaries.
	DisableCarryover bool `yaml:"disableCarryover"`
}

// Load reads a YAML config file from the given path and unmarshals into Config.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
