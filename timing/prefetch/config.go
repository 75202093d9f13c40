package prefetch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Config holds the table geometry and training constants of the predictor.
// All sizes are log2 values unless noted otherwise.
type Config struct {
	// Cores is the number of cores with private predictor state. Default: 1.
	Cores int `json:"cores" yaml:"cores"`

	// BlockBits is the cache block size (log2 bytes). Default: 6.
	BlockBits uint `json:"block_bits" yaml:"block_bits"`

	// PageBits is the page size (log2 bytes). Default: 12.
	PageBits uint `json:"page_bits" yaml:"page_bits"`

	// PCRowBits is the number of rows in the PC+delta table. Default: 5.
	PCRowBits uint `json:"pc_row_bits" yaml:"pc_row_bits"`

	// PCTagBits is the width of the PC tag stored per stride slot. Default: 8.
	PCTagBits uint `json:"pc_tag_bits" yaml:"pc_tag_bits"`

	// UsefulBits is the width of the usefulness counters. Default: 3.
	UsefulBits uint `json:"useful_bits" yaml:"useful_bits"`

	// UsefulGranularityBits slows usefulness updates relative to accuracy
	// updates. Usefulness is decremented on one in 2^n sampled accesses.
	// Default: 3.
	UsefulGranularityBits uint `json:"useful_granularity_bits" yaml:"useful_granularity_bits"`

	// AccuracyBits is the width of the accuracy counters. Default: 7.
	AccuracyBits uint `json:"accuracy_bits" yaml:"accuracy_bits"`

	// PrefetchThreshold is the fraction of the accuracy range at or above
	// which a stride is prefetched. Default: 0.4.
	PrefetchThreshold float64 `json:"prefetch_threshold" yaml:"prefetch_threshold"`

	// TrainShift is the decay shift of the accuracy moving average. Default: 5.
	TrainShift uint `json:"train_shift" yaml:"train_shift"`

	// HistoryBits is the length of the global history buffer. Default: 10.
	HistoryBits uint `json:"history_bits" yaml:"history_bits"`

	// SampleBits selects one in 2^n pages for history recording. Default: 1.
	SampleBits uint `json:"sample_bits" yaml:"sample_bits"`

	// WayBits is the associativity of the page offset table. Default: 0.
	WayBits uint `json:"way_bits" yaml:"way_bits"`

	// BucketBits is the number of page offset table sets. Default: 8.
	BucketBits uint `json:"bucket_bits" yaml:"bucket_bits"`

	// CounterBits is the width of the per-offset counters. Default: 1.
	CounterBits uint `json:"counter_bits" yaml:"counter_bits"`

	// PageTagBits is the width of the page tags. Default: 10.
	PageTagBits uint `json:"page_tag_bits" yaml:"page_tag_bits"`

	// MaxFillOccupancy is the in-flight resource occupancy at which
	// prefetches stop filling the cache. Default: 0.5.
	MaxFillOccupancy float64 `json:"max_fill_occupancy" yaml:"max_fill_occupancy"`
}

// DefaultConfig returns the build-time constants of the predictor.
func DefaultConfig() *Config {
	return &Config{
		Cores:                 1,
		BlockBits:             6,
		PageBits:              12,
		PCRowBits:             5,
		PCTagBits:             8,
		UsefulBits:            3,
		UsefulGranularityBits: 3,
		AccuracyBits:          7,
		PrefetchThreshold:     0.4,
		TrainShift:            5,
		HistoryBits:           10,
		SampleBits:            1,
		WayBits:               0,
		BucketBits:            8,
		CounterBits:           1,
		PageTagBits:           10,
		MaxFillOccupancy:      0.5,
	}
}

// LoadConfig loads a Config from a JSON or YAML file. Fields missing from
// the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if err := config.Overlay(path); err != nil {
		return nil, err
	}
	return config, nil
}

// Overlay reads a JSON or YAML file onto c. Fields missing from the file
// keep their current values.
func (c *Config) Overlay(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read prefetch config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, c)
	default:
		err = json.Unmarshal(data, c)
	}
	if err != nil {
		return fmt.Errorf("failed to parse prefetch config: %w", err)
	}

	return nil
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
		return fmt.Errorf("failed to serialize prefetch config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write prefetch config file: %w", err)
	}

	return nil
}

// Validate checks that the geometry fits the fixed-width table fields.
func (c *Config) Validate() error {
	if c.Cores <= 0 {
		return fmt.Errorf("cores must be > 0")
	}
	if c.PageBits <= c.BlockBits {
		return fmt.Errorf("page_bits must be > block_bits")
	}
	if c.PageBits-c.BlockBits > 12 {
		return fmt.Errorf("page_bits - block_bits must be <= 12")
	}
	if c.PCRowBits > 16 {
		return fmt.Errorf("pc_row_bits must be <= 16")
	}
	if c.PCTagBits == 0 || c.PCTagBits > 31 {
		return fmt.Errorf("pc_tag_bits must be in [1, 31]")
	}
	if c.UsefulBits == 0 || c.UsefulBits > 16 {
		return fmt.Errorf("useful_bits must be in [1, 16]")
	}
	if c.UsefulGranularityBits == 0 || c.UsefulGranularityBits > c.HistoryBits {
		return fmt.Errorf("useful_granularity_bits must be in [1, history_bits]")
	}
	if c.AccuracyBits == 0 || c.AccuracyBits > 16 {
		return fmt.Errorf("accuracy_bits must be in [1, 16]")
	}
	if c.TrainShift == 0 || c.TrainShift > c.AccuracyBits {
		return fmt.Errorf("train_shift must be in [1, accuracy_bits]")
	}
	if c.PrefetchThreshold <= 0 || c.PrefetchThreshold > 1 {
		return fmt.Errorf("prefetch_threshold must be in (0, 1]")
	}
	accRange := uint32(1) << c.AccuracyBits
	if c.PrefetchThreshold*float64(accRange) < 2 {
		return fmt.Errorf("prefetch_threshold is below two accuracy steps")
	}
	if uint32(c.PrefetchThreshold*float64(accRange)) > accRange-1 {
		return fmt.Errorf("prefetch_threshold is above the largest accuracy value")
	}
	if c.HistoryBits == 0 || c.HistoryBits > 20 {
		return fmt.Errorf("history_bits must be in [1, 20]")
	}
	if c.SampleBits > 16 {
		return fmt.Errorf("sample_bits must be <= 16")
	}
	if c.WayBits > 4 {
		return fmt.Errorf("way_bits must be <= 4")
	}
	if c.BucketBits > 16 {
		return fmt.Errorf("bucket_bits must be <= 16")
	}
	if c.CounterBits == 0 || c.CounterBits > 8 {
		return fmt.Errorf("counter_bits must be in [1, 8]")
	}
	if c.PageTagBits == 0 || c.PageTagBits > 31 {
		return fmt.Errorf("page_tag_bits must be in [1, 31]")
	}
	if c.MaxFillOccupancy < 0 || c.MaxFillOccupancy > 1 {
		return fmt.Errorf("max_fill_occupancy must be in [0, 1]")
	}
	return nil
}

// Clone returns a copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
