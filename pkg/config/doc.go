// Package config provides configuration management for colview.
//
// A single Config structure carries every tunable the tool has. Values are
// resolved in this order, later sources winning:
//
//   - built-in defaults (Default)
//   - an optional YAML file passed with --config
//   - COLVIEW_* environment variables (COLVIEW_SORT_TOPK_THRESHOLD, ...)
//   - command-line flags that were explicitly set
//
// # Usage
//
//	cfg, err := config.Load(configPath, cmd.Flags())
//	if err != nil {
//		return err
//	}
//	opts, err := pipeline.OptionsFromConfig(cfg)
//
// # Example file
//
//	reader:
//	  batch_size: 4096
//	sort:
//	  topk_threshold: 500
//	  run_size_rows: 50000
//	  fan_in: 8
//	  spill_dir: /var/tmp
//	  spill_compression: zstd
//	output:
//	  format: ndjson
//	  limit: 100
//	log:
//	  level: debug
package config
