package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hpcloud/tail"
	"github.com/spf13/cobra"
)

func newLogsCmd(c *cli) *cobra.Command {
	var (
		follow bool
		poll   bool
		lines  int
	)
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the structured log file, optionally following it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := c.cfg.Logger.LogFile
			if path == "" {
				return fmt.Errorf("logger.log_file is not set")
			}
			if err := printLastLines(cmd.OutOrStdout(), path, lines); err != nil {
				return err
			}
			if !follow {
				return nil
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return followFile(ctx, cmd.OutOrStdout(), path, poll)
		},
	}
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing lines as they are written")
	logsCmd.Flags().BoolVar(&poll, "poll", false, "poll for changes instead of using file notifications")
	logsCmd.Flags().IntVarP(&lines, "lines", "n", 20, "number of existing lines to print first")
	return logsCmd
}

// printLastLines writes the final n lines of path to w.
func printLastLines(w io.Writer, path string, n int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer f.Close()

	if n <= 0 {
		return nil
	}
	ring := make([]string, 0, n)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading log file: %w", err)
	}
	for _, l := range ring {
		fmt.Fprintln(w, l)
	}
	return nil
}

// followFile prints lines appended to path until ctx is done.
func followFile(ctx context.Context, w io.Writer, path string, poll bool) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Poll:      poll,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("following log file: %w", err)
	}
	defer t.Cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = t.Stop()
			return nil
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				return line.Err
			}
			fmt.Fprintln(w, line.Text)
		}
	}
}
