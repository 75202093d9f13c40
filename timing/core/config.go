package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/sarchlab/pdtsim/timing/cache"
	"github.com/sarchlab/pdtsim/timing/prefetch"
)

// Config holds the parameters of a simulated system.
type Config struct {
	// L1D is the private data cache of every core.
	L1D cache.Config `json:"l1d" yaml:"l1d"`

	// AccessInterval is the number of cycles a core advances before each
	// access. Default: 4.
	AccessInterval uint64 `json:"access_interval" yaml:"access_interval"`

	// Prefetch enables the predictor. Default: true.
	Prefetch bool `json:"prefetch" yaml:"prefetch"`

	// Predictor configures the predictor. Its core count sizes the system.
	Predictor prefetch.Config `json:"predictor" yaml:"predictor"`
}

// DefaultConfig returns a single-core system with an M2-like L1D and the
// default predictor.
func DefaultConfig() *Config {
	return &Config{
		L1D:            cache.DefaultL1DConfig(),
		AccessInterval: 4,
		Prefetch:       true,
		Predictor:      *prefetch.DefaultConfig(),
	}
}

// NumCores returns the number of simulated cores.
func (c *Config) NumCores() int {
	return c.Predictor.Cores
}

// LoadConfig loads a Config from a JSON or YAML file. Fields missing from
// the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read system config file: %w", err)
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse system config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a Config to a JSON or YAML file, chosen by extension.
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to serialize system config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write system config file: %w", err)
	}

	return nil
}

// Validate checks the cache and predictor parameters.
func (c *Config) Validate() error {
	if err := c.L1D.Validate(); err != nil {
		return fmt.Errorf("l1d: %w", err)
	}
	if c.AccessInterval == 0 {
		return fmt.Errorf("access_interval must be > 0")
	}
	if err := c.Predictor.Validate(); err != nil {
		return fmt.Errorf("predictor: %w", err)
	}
	if c.L1D.BlockSize != 1<<c.Predictor.BlockBits {
		return fmt.Errorf("l1d block_size %d does not match predictor block_bits %d",
			c.L1D.BlockSize, c.Predictor.BlockBits)
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
