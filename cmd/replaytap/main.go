package main

import (
	"fmt"
	"io"
	"os"

	"github.com/funnyzak/replaytap/internal/config"
	"github.com/funnyzak/replaytap/internal/logger"
	"github.com/funnyzak/replaytap/internal/printer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// flagBindings maps persistent flags to configuration keys
var flagBindings = map[string]string{
	"session":              "session.source_id",
	"name":                 "session.name",
	"query-url":            "helicone.query_url",
	"mode":                 "replay.mode",
	"duplicate-anchor":     "replay.duplicate_anchor",
	"sort-siblings":        "replay.sort_siblings",
	"on-failure":           "replay.on_failure",
	"dry-run":              "replay.dry_run",
	"call-timeout":         "replay.call_timeout",
	"run-timeout":          "replay.run_timeout",
	"report":               "output.report",
	"output":               "output.mode",
	"silence":              "output.silence",
	"log-level":            "log.level",
	"log-file-enable":      "log.file_logging.enable",
	"log-file-path":        "log.file_logging.path",
	"log-file-max-size":    "log.file_logging.max_size_mb",
	"log-file-max-backups": "log.file_logging.max_backups",
	"log-file-max-age":     "log.file_logging.max_age_days",
	"log-file-compress":    "log.file_logging.compress",
	"storage-enable":       "storage.enable",
	"storage-path":         "storage.path",
	"telemetry-enable":     "telemetry.enable",
	"telemetry-endpoint":   "telemetry.endpoint",
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "replaytap",
		Short: "Replay a logged LLM session against the inference API",
		Long: `ReplayTap fetches every request of a logged Helicone session, rebuilds the call hierarchy
from the session paths and replays the calls one by one, parents before children, under a
fresh session id.
`,
		SilenceUsage: true,
		RunE:         runReplay(v),
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file path")
	flags.StringP("session", "s", "", "Source session id to replay (or SESSION_ID)")
	flags.String("name", "", "Display name of the replay session")
	flags.String("query-url", "", "Helicone request query endpoint")
	flags.StringP("mode", "m", "", "Replay order (tree, path_time, time)")
	flags.String("duplicate-anchor", "", "Which duplicate path record anchors children (first, last)")
	flags.Bool("sort-siblings", false, "Replay siblings in creation time order")
	flags.String("on-failure", "", "Failure policy (continue, skip_subtree)")
	flags.Bool("dry-run", false, "Plan and print without calling downstream")
	flags.Bool("no-mutation", false, "Replay chat bodies unchanged")
	flags.Duration("call-timeout", 0, "Timeout of each body fetch and downstream call")
	flags.Duration("run-timeout", 0, "Timeout of the whole run (0 disables)")
	flags.String("report", "", "Write the run report to a .json, .yaml or .csv file")
	flags.StringP("output", "o", "", "Output mode (console, json)")
	flags.Bool("silence", false, "Only print the run summary")
	flags.StringP("log-level", "l", "", "Log level (trace, debug, info, warn, error, fatal, panic)")
	flags.Bool("log-file-enable", false, "Enable file logging")
	flags.String("log-file-path", "", "Log file path")
	flags.Int("log-file-max-size", 0, "Maximum size of a single log file (MB)")
	flags.Int("log-file-max-backups", 0, "Maximum number of old log files to retain")
	flags.Int("log-file-max-age", 0, "Maximum retention days for old log files")
	flags.Bool("log-file-compress", false, "Whether to compress old log files")
	flags.Bool("storage-enable", false, "Record runs in the sqlite journal")
	flags.String("storage-path", "", "Journal database path")
	flags.Bool("telemetry-enable", false, "Export OpenTelemetry spans")
	flags.String("telemetry-endpoint", "", "OTLP/HTTP endpoint URL")

	for name, key := range flagBindings {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a session (default command)",
		RunE:  runReplay(v),
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			showVersion(cmd.OutOrStdout())
		},
	}

	rootCmd.AddCommand(runCmd, newInspectCmd(v), newHistoryCmd(v), versionCmd)
	return rootCmd
}

// loadConfig reads configuration, applies the flags viper cannot express
// and validates the result.
func loadConfig(cmd *cobra.Command, v *viper.Viper) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.LoadConfig(configPath, v)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Command line has highest priority
	if noMutation, err := cmd.Flags().GetBool("no-mutation"); err == nil && noMutation {
		cfg.Mutation.Enable = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newPrinter creates the configured printer writing to the command output.
func newPrinter(cmd *cobra.Command, cfg *config.Config, log logger.Logger) printer.Printer {
	p := printer.New(log, &cfg.Output)
	if o, ok := p.(interface{ SetOutput(io.Writer) }); ok {
		o.SetOutput(cmd.OutOrStdout())
	}
	return p
}

func showVersion(w io.Writer) {
	fmt.Fprintf(w, "ReplayTap version %s\n", version)
	fmt.Fprintf(w, "Commit: %s\n", commit)
	fmt.Fprintf(w, "Built: %s\n", buildDate)
}

func main() {
	if err := newRootCmd(viper.GetViper()).Execute(); err != nil {
		os.Exit(1)
	}
}
