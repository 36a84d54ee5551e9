package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/liamcoop/rulesets/internal/logger"
)

var (
	configFile string
	logLevel   string
	logFormat  string
)

// errRulesetFailed makes the process exit 1 without printing an error
var errRulesetFailed = errors.New("ruleset failed")

var rootCmd = &cobra.Command{
	Use:           "rulesets",
	Short:         "Ruleset decision-tree evaluator",
	Long:          `Rulesets stores declarative decision trees of conditions and AND/OR groups and evaluates them against JSON payloads.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// the server logs to stdout; CLI commands keep stdout for their output
		var out io.Writer = os.Stderr
		if cmd.Name() == serveCmd.Name() {
			out = os.Stdout
		}
		return setupLogging(out)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error); defaults to LOG_LEVEL")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

func setupLogging(out io.Writer) error {
	logger.SetOutput(out, logFormat)
	if logLevel == "" {
		return nil
	}
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger.SetLevel(level)
	return nil
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	if !errors.Is(err, errRulesetFailed) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(1)
}
