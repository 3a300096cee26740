package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-blockmap/internal/analyzer"
	"github.com/l3aro/go-blockmap/internal/config"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "blockmap",
	Short: "blockmap - Control flow graphs for JVM bytecode",
	Long: `blockmap builds conservative control flow graphs from the bytecode of JVM methods.

Commands:
  cfg         Build the CFG of the methods in a class file
  scan        Summarize the CFGs of every class file under a directory
  init        Create a configuration file interactively
  doctor      Check the configuration and the result cache

Use "blockmap [command] --help" for more information about a command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "init" {
			return nil
		}
		return loadConfig(cmd)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		showMetrics, _ := cmd.Flags().GetBool("metrics")
		if !showMetrics || current == nil {
			return nil
		}
		fmt.Fprintln(os.Stderr)
		current.Metrics().WritePrometheus(os.Stderr)
		return nil
	},
}

var (
	appConfig *config.Config
	// current is the analyzer of the running command, for --metrics
	current *analyzer.Analyzer
)

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

// loadConfig loads the configuration and applies the persistent flags on top.
func loadConfig(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("json-logs") {
		cfg.JSONLogs, _ = flags.GetBool("json-logs")
	}
	if noCache, _ := flags.GetBool("no-cache"); noCache {
		cfg.CacheFile = ""
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	appConfig = cfg
	return nil
}

// newAnalyzer creates the analyzer for a command and restores its cache.
func newAnalyzer(opts analyzer.Options) *analyzer.Analyzer {
	a := analyzer.New(opts)
	if err := a.LoadCache(); err != nil {
		opts.Logger.Warn("cannot load cache", "path", opts.CacheFile, "error", err)
	}
	current = a
	return a
}

// saveCache persists the analyzer cache, reporting problems without failing.
func saveCache(a *analyzer.Analyzer, opts analyzer.Options) {
	if err := a.SaveCache(); err != nil {
		opts.Logger.Warn("cannot save cache", "path", opts.CacheFile, "error", err)
	}
}

func init() {
	RootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	RootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")
	RootCmd.PersistentFlags().Bool("no-cache", false, "Do not read or write the result cache")
	RootCmd.PersistentFlags().Bool("metrics", false, "Print metrics in Prometheus text format to stderr on exit")
}
