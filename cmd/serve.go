package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xkilldash9x/jobagent-cli/internal/dashboard"
)

func newServeCmd(c *cli) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the applications dashboard and API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := c.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore(st, c.logger)

			srv := dashboard.NewServer(c.cfg.Dashboard, st, c.cfg.Snapshot, c.logger)
			return srv.ListenAndServe(ctx)
		},
	}
	serveCmd.Flags().String("addr", "", "listen address (default from dashboard.addr)")
	_ = c.v.BindPFlag("dashboard.addr", serveCmd.Flags().Lookup("addr"))
	return serveCmd
}
