package config

import (
	"fmt"
	"os"
	"strings"
)

// Config is the unified configuration of the tool. Sections map one to one
// onto the components that consume them.
type Config struct {
	// Reader settings for the format readers
	Reader ReaderConfig `yaml:"reader" json:"reader" mapstructure:"reader"`

	// Sort settings for the strategy selector and sort engines
	Sort SortConfig `yaml:"sort" json:"sort" mapstructure:"sort"`

	// Output settings for the view command
	Output OutputConfig `yaml:"output" json:"output" mapstructure:"output"`

	// Log settings for the global logger
	Log LogConfig `yaml:"log" json:"log" mapstructure:"log"`
}

// ReaderConfig controls how files are decoded into batches
type ReaderConfig struct {
	// BatchSize is the number of rows per batch handed to the pipeline
	BatchSize int `yaml:"batch_size" json:"batch_size" mapstructure:"batch_size"`
}

// SortConfig controls strategy selection and the memory budget of sorts
type SortConfig struct {
	// TopKThreshold is the limit below which a sorted query uses the
	// bounded top-k engine instead of an external merge sort
	TopKThreshold    int    `yaml:"topk_threshold" json:"topk_threshold" mapstructure:"topk_threshold"`
	// RunSizeRows caps the rows buffered in memory before a run is spilled
	RunSizeRows      int    `yaml:"run_size_rows" json:"run_size_rows" mapstructure:"run_size_rows"`
	// RunSizeBytes caps the estimated bytes buffered before a run is spilled
	RunSizeBytes     int64  `yaml:"run_size_bytes" json:"run_size_bytes" mapstructure:"run_size_bytes"`
	// FanIn is the maximum number of runs merged in one pass
	FanIn            int    `yaml:"fan_in" json:"fan_in" mapstructure:"fan_in"`
	// SpillDir is where temporary run files are created
	SpillDir         string `yaml:"spill_dir" json:"spill_dir" mapstructure:"spill_dir"`
	// SpillCompression selects the codec for run files (none, s2, snappy, zstd, lz4, gzip)
	SpillCompression string `yaml:"spill_compression" json:"spill_compression" mapstructure:"spill_compression"`
	// ParallelSpill overlaps sorting and writing of runs with reading input
	ParallelSpill    bool   `yaml:"parallel_spill" json:"parallel_spill" mapstructure:"parallel_spill"`
}

// OutputConfig controls row rendering
type OutputConfig struct {
	// Format is table, vertical or ndjson
	Format   string `yaml:"format" json:"format" mapstructure:"format"`
	// Limit is the maximum number of rows shown, 0 shows all rows
	Limit    int    `yaml:"limit" json:"limit" mapstructure:"limit"`
	// Truncate cuts cell text longer than this many characters, 0 disables
	Truncate int    `yaml:"truncate" json:"truncate" mapstructure:"truncate"`
}

// LogConfig controls the global logger
type LogConfig struct {
	// Level is debug, info, warn or error
	Level    string `yaml:"level" json:"level" mapstructure:"level"`
	// Encoding is console or json
	Encoding string `yaml:"encoding" json:"encoding" mapstructure:"encoding"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Reader: ReaderConfig{
			BatchSize: 8192,
		},
		Sort: SortConfig{
			TopKThreshold:    1000,
			RunSizeRows:      100_000,
			RunSizeBytes:     64 << 20, // 64MB
			FanIn:            16,
			SpillDir:         os.TempDir(),
			SpillCompression: "s2",
			ParallelSpill:    true,
		},
		Output: OutputConfig{
			Format:   "table",
			Limit:    10,
			Truncate: 0,
		},
		Log: LogConfig{
			Level:    "warn",
			Encoding: "console",
		},
	}
}

var (
	outputFormats = []string{"table", "vertical", "ndjson"}
	spillCodecs   = []string{"none", "s2", "snappy", "zstd", "lz4", "gzip"}
	logLevels     = []string{"debug", "info", "warn", "error"}
	logEncodings  = []string{"console", "json"}
)

// Validate checks that every value is within its accepted range
func (c *Config) Validate() error {
	if c.Reader.BatchSize <= 0 {
		return fmt.Errorf("reader.batch_size must be positive")
	}
	if c.Sort.TopKThreshold < 0 {
		return fmt.Errorf("sort.topk_threshold cannot be negative")
	}
	if c.Sort.RunSizeRows < 2 {
		return fmt.Errorf("sort.run_size_rows must be at least 2")
	}
	if c.Sort.RunSizeBytes <= 0 {
		return fmt.Errorf("sort.run_size_bytes must be positive")
	}
	if c.Sort.FanIn < 2 {
		return fmt.Errorf("sort.fan_in must be at least 2")
	}
	if !oneOf(c.Sort.SpillCompression, spillCodecs) {
		return fmt.Errorf("sort.spill_compression must be one of %s", strings.Join(spillCodecs, ", "))
	}
	if !oneOf(c.Output.Format, outputFormats) {
		return fmt.Errorf("output.format must be one of %s", strings.Join(outputFormats, ", "))
	}
	if c.Output.Limit < 0 {
		return fmt.Errorf("output.limit cannot be negative")
	}
	if c.Output.Truncate < 0 {
		return fmt.Errorf("output.truncate cannot be negative")
	}
	if !oneOf(c.Log.Level, logLevels) {
		return fmt.Errorf("log.level must be one of %s", strings.Join(logLevels, ", "))
	}
	if !oneOf(c.Log.Encoding, logEncodings) {
		return fmt.Errorf("log.encoding must be one of %s", strings.Join(logEncodings, ", "))
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
