// Package config holds the settings shared by every psrs command. Values come
// from an optional YAML file and are then overridden by command line flags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "./psrs.yaml"

const (
	TransportLocal     = "local"
	TransportWebsocket = "websocket"
)

type BenchConfig struct {
	Sizes  []int    `yaml:"sizes"`
	Repeat int      `yaml:"repeat"`
	Dists  []string `yaml:"dists"`
	Procs  []int    `yaml:"procs"`
	Seed   uint64   `yaml:"seed"`
}

type Config struct {
	Procs          int           `yaml:"procs"`
	Transport      string        `yaml:"transport"`
	LocalWorkers   int           `yaml:"localWorkers"`
	Lockstep       bool          `yaml:"lockstep"`
	Verbose        bool          `yaml:"verbose"`
	Format         string        `yaml:"format"`
	Output         string        `yaml:"output"`
	RunsDir        string        `yaml:"runsDir"`
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
	Bench          BenchConfig   `yaml:"bench"`
}

func Defaults() *Config {
	return &Config{
		Procs:          4,
		Transport:      TransportLocal,
		LocalWorkers:   1,
		Format:         "text",
		Output:         "output.txt",
		ConnectTimeout: 10 * time.Second,
		Bench: BenchConfig{
			Sizes:  []int{1 << 16, 1 << 20},
			Repeat: 3,
			Dists:  []string{"uniform", "normal", "fewunique"},
			Procs:  []int{1, 2, 4, 8},
			Seed:   1,
		},
	}
}

// Load reads path on top of the defaults. A missing file is not an error when
// path is the default location, since the file is optional there.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultPath {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "Failed to read config file %v", path)
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrapf(err, "Failed to parse config file %v", path)
	}
	return cfg, nil
}

type ValidationError struct {
	Field  string
	Reason string
}

func (self *ValidationError) Error() string {
	return fmt.Sprintf("Invalid configuration: %v %v", self.Field, self.Reason)
}

func (self *Config) Validate() error {
	if self.Procs < 1 {
		return &ValidationError{"procs", fmt.Sprintf("must be at least 1, got %v", self.Procs)}
	}
	if self.Transport != TransportLocal && self.Transport != TransportWebsocket {
		return &ValidationError{"transport", fmt.Sprintf("must be %v or %v, got %q", TransportLocal, TransportWebsocket, self.Transport)}
	}
	if self.LocalWorkers < 0 {
		return &ValidationError{"localWorkers", fmt.Sprintf("must not be negative, got %v", self.LocalWorkers)}
	}
	if self.Format != "text" && self.Format != "array" {
		return &ValidationError{"format", fmt.Sprintf("must be text or array, got %q", self.Format)}
	}
	if self.Output == "" {
		return &ValidationError{"output", "must not be empty"}
	}
	if self.ConnectTimeout <= 0 {
		return &ValidationError{"connectTimeout", fmt.Sprintf("must be positive, got %v", self.ConnectTimeout)}
	}

	if self.Bench.Repeat < 1 {
		return &ValidationError{"bench.repeat", fmt.Sprintf("must be at least 1, got %v", self.Bench.Repeat)}
	}
	for _, n := range self.Bench.Sizes {
		if n < 0 {
			return &ValidationError{"bench.sizes", fmt.Sprintf("must not be negative, got %v", n)}
		}
	}
	for _, p := range self.Bench.Procs {
		if p < 1 {
			return &ValidationError{"bench.procs", fmt.Sprintf("must be at least 1, got %v", p)}
		}
	}
	return nil
}
