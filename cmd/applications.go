package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
)

func newApplicationsCmd(c *cli) *cobra.Command {
	appsCmd := &cobra.Command{
		Use:     "applications",
		Aliases: []string{"apps"},
		Short:   "Inspect and annotate recorded applications",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded applications, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(st, c.logger)

			records, err := st.ListApplicationRecords(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No applications recorded.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tAPPLIED\tSTATUS\tTITLE\tCOMPANY")
			for _, r := range records {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.AppliedDate.Format("2006-01-02 15:04"), r.Status, r.JobTitle, r.Company)
			}
			return tw.Flush()
		},
	}

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print one application as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(st, c.logger)

			rec, err := st.GetApplicationRecord(cmd.Context(), id)
			if errors.Is(err, schemas.ErrNotFound) {
				return fmt.Errorf("application %d not found", id)
			}
			if err != nil {
				return err
			}
			data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	notesCmd := &cobra.Command{
		Use:   "notes <id> <text...>",
		Short: "Replace the notes on an application",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			st, err := c.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore(st, c.logger)

			ok, err := st.UpdateNotes(cmd.Context(), id, strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("application %d not found", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Notes updated for application %d\n", id)
			return nil
		},
	}

	appsCmd.AddCommand(listCmd, showCmd, notesCmd)
	return appsCmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid application id %q", s)
	}
	return id, nil
}
