package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xear-health/docflow/internal/pipeline"
)

// processCmd represents the process command.
var processCmd = &cobra.Command{
	Use:   "process <file>",
	Short: "Process a single document through the pipeline",
	Long: `Run one scanned or photographed document through the full pipeline:
rectification, OCR, identity resolution, classification, packaging and
storage.

Examples:
  docflow process scan.jpg
  docflow process report.pdf --run-id retry-42 --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading input file: %w", err)
		}

		runID, _ := cmd.Flags().GetString("run-id")
		jsonOut, _ := cmd.Flags().GetBool("json")

		var sink pipeline.ProgressSink
		if !jsonOut {
			sink = pipeline.FuncProgressSink{
				Stage: func(_ string, step, total int, _ pipeline.State, message string) {
					fmt.Fprintf(cmd.OutOrStdout(), "[%d/%d] %s\n", step, total, message)
				},
			}
		}

		p, _, _, err := buildDependencies(cfg, sink)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		out, err := p.Process(ctx, pipeline.Request{
			Data:     data,
			Filename: filepath.Base(args[0]),
			RunID:    runID,
		})
		if err != nil {
			return err
		}

		if jsonOut {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out.Artifact)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "archived as %s (type %s, match %s)\n",
			out.Artifact.Filename, out.Artifact.DocType, out.Artifact.MatchTier)
		return nil
	},
}

func init() {
	processCmd.Flags().String("run-id", "", "run id for idempotent retries")
	processCmd.Flags().Bool("json", false, "print the stored artifact as JSON")
	rootCmd.AddCommand(processCmd)
}
