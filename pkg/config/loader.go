package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by Load
const EnvPrefix = "COLVIEW"

// FlagBindings maps configuration keys to the CLI flags that override them.
// Flags absent from the flag set passed to Load are skipped.
var FlagBindings = map[string]string{
	"reader.batch_size":      "batch-size",
	"sort.topk_threshold":    "topk-threshold",
	"sort.run_size_rows":     "run-size",
	"sort.fan_in":            "fan-in",
	"sort.spill_dir":         "spill-dir",
	"sort.spill_compression": "spill-compression",
	"output.format":          "format",
	"output.limit":           "limit",
	"output.truncate":        "truncate",
	"log.level":              "log-level",
}

// Load resolves the configuration from defaults, the optional YAML file at
// path, COLVIEW_* environment variables and explicitly set flags, then
// validates it.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range FlagBindings {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag --%s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so that environment variables are seen
// by Unmarshal
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("reader.batch_size", d.Reader.BatchSize)

	v.SetDefault("sort.topk_threshold", d.Sort.TopKThreshold)
	v.SetDefault("sort.run_size_rows", d.Sort.RunSizeRows)
	v.SetDefault("sort.run_size_bytes", d.Sort.RunSizeBytes)
	v.SetDefault("sort.fan_in", d.Sort.FanIn)
	v.SetDefault("sort.spill_dir", d.Sort.SpillDir)
	v.SetDefault("sort.spill_compression", d.Sort.SpillCompression)
	v.SetDefault("sort.parallel_spill", d.Sort.ParallelSpill)

	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.limit", d.Output.Limit)
	v.SetDefault("output.truncate", d.Output.Truncate)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.encoding", d.Log.Encoding)
}
