// Command colview inspects and queries Parquet and ORC files
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ajitpratap0/colview/pkg/config"
	"github.com/ajitpratap0/colview/pkg/logger"
)

var version = "0.1.0"

// globalFlags are shared by every command
type globalFlags struct {
	configFile string
	logLevel   string
	profile    profiler
}

func main() {
	// Optional .env with COLVIEW_* settings
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "colview",
		Short: "colview - inspect and query columnar data files",
		Long: `colview reads Apache Parquet and Apache ORC files, plain or wrapped in a
gzip, zstd, snappy, zlib, lz4 or s2 container, and prints their metadata,
schema or rows. Rows can be projected, limited and sorted by several keys;
large sorts spill to disk within a fixed memory budget.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return flags.profile.Start()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return flags.profile.Stop()
		},
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "Path to a YAML configuration file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.profile.cpuFile, "cpuprofile", "", "Write a CPU profile to this file")
	root.PersistentFlags().StringVar(&flags.profile.memFile, "memprofile", "", "Write a heap profile to this file on success")

	root.AddCommand(
		newMetadataCommand(flags),
		newSchemaCommand(flags),
		newViewCommand(flags),
		newVersionCommand(),
	)
	return root
}

// setup loads the configuration and initializes the global logger. Only
// the flags in fs override configuration keys.
func setup(flags *globalFlags, fs *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(flags.configFile, fs)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{Level: cfg.Log.Level, Encoding: cfg.Log.Encoding}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// globalFlagSet holds the persistent flags of cmd, for commands whose own
// flags must not be bound to configuration keys
func globalFlagSet(cmd *cobra.Command) *pflag.FlagSet {
	return cmd.InheritedFlags()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "colview v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
