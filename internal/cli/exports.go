package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"repolens/internal/insights"
)

var exportFields = []string{"export_type", "date_range", "date_range_start", "date_range_end"}

func newExportsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exports",
		Short: "Create and download markdown reports",
	}
	cmd.AddCommand(newExportsListCmd(a), newExportsCreateCmd(a), newExportsDownloadCmd(a))
	return cmd
}

func newExportsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list [id | owner/name]",
		Short: "List generated exports",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, _, err := viewsFor(cmd, a, args)
			if err != nil {
				return err
			}
			if err := v.LoadExports(cmd.Context()); err != nil {
				return explain(err)
			}
			list := v.Exports.Get().Data
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No exports yet. Create one with `repolens exports create`.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tRANGE\tSIZE\tCREATED")
			for _, e := range list {
				period := "all time"
				if e.DateRangeStart != "" {
					period = e.DateRangeStart + " to " + e.DateRangeEnd
				}
				created := e.CreatedAt
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.ID, e.Type, period, insights.HumanSize(e.FileSize), ago(&created))
			}
			return w.Flush()
		},
	}
}

func newExportsCreateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create [id | owner/name]",
		Short: "Queue a weekly, monthly or complete export",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, _ := cmd.Flags().GetString("type")
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")

			if _, err := insights.NewExportRequest(kind, from, to); err != nil {
				return explain(err, exportFields...)
			}

			v, r, err := viewsFor(cmd, a, args)
			if err != nil {
				return err
			}
			msg, err := v.CreateExport(cmd.Context(), kind, from, to)
			if err != nil {
				return explain(err, exportFields...)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", r.FullName, msg)
			fmt.Fprintln(cmd.OutOrStdout(), "Run `repolens exports list` to see it once generated.")
			return nil
		},
	}
	cmd.Flags().String("type", "complete", "weekly, monthly or complete")
	cmd.Flags().String("from", "", "start date, YYYY-MM-DD (weekly and monthly)")
	cmd.Flags().String("to", "", "end date, YYYY-MM-DD (weekly and monthly)")
	return cmd
}

func newExportsDownloadCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <export-id>",
		Short: "Download an export into a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid export id %q", args[0])
			}
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				dir = a.cfg.Exports.Dir
			}

			if _, err := a.requireAuth(cmd.Context()); err != nil {
				return explain(err)
			}
			path, err := a.views(uuid.Nil).Download(cmd.Context(), id, dir)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", path)
			return nil
		},
	}
	cmd.Flags().String("dir", "", "destination directory (default from config)")
	return cmd
}
