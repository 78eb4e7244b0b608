package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
	"github.com/xkilldash9x/jobagent-cli/internal/runner"
	"github.com/xkilldash9x/jobagent-cli/internal/sessionstore"
	"go.uber.org/zap"
)

// errRunAborted marks a run that ended before it could apply anywhere.
var errRunAborted = errors.New("run aborted")

func newRunCmd(c *cli) *cobra.Command {
	var output string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Log in, search, apply and verify, then print the run report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cfg, logger := c.cfg, c.logger

			st, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore(st, logger)

			var gen schemas.TextGenerator
			if cfg.Runner.GenerateCoverLetters {
				gen, err = c.deps.newTextGen(ctx, cfg.LLM, logger)
				if err != nil {
					logger.Warn("Cover letters disabled: text generation unavailable", zap.Error(err))
					gen = nil
				}
			}

			sessions := sessionstore.New(cfg.Session.Path, logger)
			r := runner.FromConfig(cfg, c.deps.newBrowser(cfg, logger), st, sessions, gen, logger)
			report := r.Run(ctx)

			printReport(cmd.OutOrStdout(), report)
			if output != "" {
				if err := writeReport(output, report); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", output)
			}
			if aborted(report) {
				return fmt.Errorf("%w: %s", errRunAborted, report.Errors[len(report.Errors)-1])
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&output, "output", "o", "", "also write the run report as JSON to this file")
	runCmd.Flags().Int("max-applications", 0, "maximum applications to attempt in this run")
	runCmd.Flags().Bool("headless", false, "run the browser without a window")
	runCmd.Flags().Bool("cover-letters", false, "generate a cover letter for each verified application")
	_ = c.v.BindPFlag("apply.max_applications", runCmd.Flags().Lookup("max-applications"))
	_ = c.v.BindPFlag("browser.headless", runCmd.Flags().Lookup("headless"))
	_ = c.v.BindPFlag("runner.generate_cover_letters", runCmd.Flags().Lookup("cover-letters"))
	return runCmd
}

// aborted reports whether the run ended on a fatal error before attempting
// anything.
func aborted(r *schemas.RunReport) bool {
	if r.Attempted > 0 || len(r.Errors) == 0 {
		return false
	}
	return strings.HasPrefix(r.Errors[len(r.Errors)-1], "Fatal error:")
}

func printReport(w io.Writer, r *schemas.RunReport) {
	fmt.Fprintf(w, "Run %s finished in %s\n", r.RunID, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "  Jobs found: %d\n", len(r.JobsFound))
	fmt.Fprintf(w, "  Attempted:  %d  Successful: %d  Failed: %d\n", r.Attempted, r.Successful, r.Failed)
	for _, a := range r.Attempts {
		fmt.Fprintf(w, "  [%s] %s at %s\n", a.Outcome, a.Candidate.Title, a.Candidate.Company)
	}
	if len(r.Errors) > 0 {
		fmt.Fprintf(w, "  Errors (%d):\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(w, "    - %s\n", e)
		}
	}
}

func writeReport(path string, r *schemas.RunReport) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating report directory: %w", err)
		}
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
