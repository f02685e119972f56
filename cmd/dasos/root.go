package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/henny-hen/DASOS-backend/internal/bootstrap"
	"github.com/henny-hen/DASOS-backend/internal/metrics"
	"github.com/henny-hen/DASOS-backend/pkg/config"
)

var (
	configPath   string
	outputFormat string
	verbose      bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "dasos",
	Short: "DASOS - academic performance analysis",
	Long: `DASOS ingests semester result reports, fetches faculty and evaluation
data for every subject, and analyses how changes in teaching staff and
assessment methods relate to student performance over the years.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ./config.yaml, ./config/, /etc/dasos/)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "human", "Output format (human, json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")
}

// setup loads configuration and sends logs to stderr so stdout stays
// reserved for command output.
func setup(cmd *cobra.Command, _ []string) error {
	if outputFormat != "human" && outputFormat != "json" {
		return fmt.Errorf("unsupported format: %s", outputFormat)
	}

	loaded, err := config.LoadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if loaded.Logging.OutputPath == "" || loaded.Logging.OutputPath == "stdout" {
		loaded.Logging.OutputPath = "stderr"
	}
	if verbose {
		loaded.Logging.Level = "debug"
	}
	if err := bootstrap.InitLogger(loaded); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	metrics.Init()

	cfg = loaded
	return nil
}

func openComponents(opts bootstrap.Options) (*bootstrap.Components, error) {
	return bootstrap.Open(cfg, opts)
}

// signalContext is cancelled on Ctrl-C so long runs end cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// printResult writes v as indented JSON in json mode and calls human otherwise.
func printResult(w io.Writer, v any, human func(io.Writer)) error {
	if outputFormat == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	human(w)
	return nil
}
