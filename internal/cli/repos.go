package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"repolens/internal/api"
	"repolens/internal/forge"
	"repolens/internal/model"
	"repolens/internal/picker"
	"repolens/internal/tracker"
)

var importFields = []string{"github_repo_url", "selected_branch"}

func newCandidatesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "List your GitHub repositories that can be imported",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			page, _ := cmd.Flags().GetInt("page")
			filter, _ := cmd.Flags().GetString("filter")
			ctx := cmd.Context()

			if _, err := a.requireAuth(ctx); err != nil {
				return explain(err)
			}

			p := a.newPicker()
			if err := p.Open(ctx); err != nil {
				return errors.New(p.State().Err)
			}
			if page > 1 {
				if err := p.LoadPage(ctx, page); err != nil {
					return errors.New(p.State().Err)
				}
			}
			p.SetQuery(filter)
			printCandidates(cmd.OutOrStdout(), p.State())
			return nil
		},
	}

	cmd.Flags().Int("page", 1, "page number")
	cmd.Flags().String("filter", "", "filter the page by name or description")
	return cmd
}

func printCandidates(out io.Writer, v picker.View) {
	if len(v.Items) == 0 {
		if v.Query != "" {
			fmt.Fprintf(out, "No repositories on page %d match %q.\n", v.Page, v.Query)
		} else {
			fmt.Fprintln(out, "No repositories found.")
		}
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "REPOSITORY\tLANGUAGE\tSTARS\tUPDATED\tVISIBILITY")
	for _, c := range v.Items {
		visibility := "public"
		if c.Private {
			visibility = "private"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", c.FullName, dash(c.PrimaryLanguage), c.StarCount, ago(c.UpdatedAt), visibility)
	}
	w.Flush()

	nav := fmt.Sprintf("Page %d", v.Page)
	if v.TotalCount > 0 {
		nav += fmt.Sprintf(" of %d repositories", v.TotalCount)
	}
	if v.HasNext {
		nav += fmt.Sprintf("; next with --page %d", v.Page+1)
	}
	fmt.Fprintln(out, nav+".")
}

func newReposCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "repos",
		Aliases: []string{"repo"},
		Short:   "Manage the tracked repository",
	}
	cmd.AddCommand(
		newReposListCmd(a),
		newReposImportCmd(a),
		newReposShowCmd(a),
		newReposReanalyzeCmd(a),
		newReposDeleteCmd(a),
		newReposWatchCmd(a),
		newReposUpdateCmd(a),
	)
	return cmd
}

func newReposListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tracked repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.requireAuth(cmd.Context()); err != nil {
				return explain(err)
			}
			repos, err := a.tracker.ListRepositories(cmd.Context())
			if err != nil {
				return explain(err)
			}
			if len(repos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No repository is tracked. Import one with `repolens repos import`.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tREPOSITORY\tBRANCH\tSTATUS\tLAST ANALYZED")
			for _, r := range repos {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.FullName, dash(r.Branch), r.AnalysisStatus, ago(r.LastAnalyzedAt))
			}
			return w.Flush()
		},
	}
}

func newReposImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [github-url | owner/name]",
		Short: "Import a GitHub repository for analysis",
		Long: `Import a GitHub repository for analysis. Only one repository can be
tracked at a time. With --here the GitHub origin of the git checkout in the
current directory is imported and its current branch selected.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			here, _ := cmd.Flags().GetBool("here")
			watch, _ := cmd.Flags().GetBool("watch")
			ctx := cmd.Context()

			var target, branch string
			switch {
			case here && len(args) > 0:
				return errors.New("pass either a repository or --here, not both")
			case here:
				dir, err := os.Getwd()
				if err != nil {
					return err
				}
				co, err := a.git.Inspect(dir)
				if err != nil {
					return err
				}
				if forge.Kind(co.RemoteURL) != "github" {
					return fmt.Errorf("origin %s is not a GitHub repository", co.RemoteURL)
				}
				target, branch = co.RemoteURL, co.Branch
			case len(args) == 1:
				target = args[0]
				if !strings.Contains(target, "://") && !strings.HasPrefix(target, "git@") && !strings.HasPrefix(target, "github.com/") {
					target = "github.com/" + target
				}
			default:
				return errors.New("pass a repository URL or owner/name, or use --here")
			}

			if _, err := a.requireAuth(ctx); err != nil {
				return explain(err)
			}
			if _, err := a.tracker.ListRepositories(ctx); err != nil {
				return explain(err)
			}

			repo, err := a.tracker.ImportRepository(ctx, target)
			if err != nil {
				return explain(err, importFields...)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %s; analysis is %s.\n", repo.FullName, repo.AnalysisStatus)

			if branch != "" && branch != repo.Branch {
				if _, err := a.tracker.Update(ctx, repo.ID, api.RepositoryUpdate{SelectedBranch: &branch}); err != nil {
					fmt.Fprintf(out, "Could not select branch %s: %s\n", branch, explain(err, "selected_branch"))
				} else {
					fmt.Fprintf(out, "Selected branch %s.\n", branch)
				}
			}

			if watch {
				return watchAnalysis(ctx, a, out)
			}
			return nil
		},
	}

	cmd.Flags().Bool("here", false, "import the origin of the git checkout in the current directory")
	cmd.Flags().Bool("watch", false, "wait for the analysis to finish")
	return cmd
}

func newReposShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id | owner/name]",
		Short: "Show a tracked repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := a.requireAuth(cmd.Context()); err != nil {
				return explain(err)
			}
			r, err := a.resolveRepository(cmd.Context(), argOr(args, 0))
			if err != nil {
				return explain(err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintf(w, "Repository:\t%s\n", r.FullName)
			fmt.Fprintf(w, "ID:\t%s\n", r.ID)
			fmt.Fprintf(w, "URL:\t%s\n", r.URL)
			fmt.Fprintf(w, "Description:\t%s\n", dash(r.Description))
			fmt.Fprintf(w, "Branch:\t%s\n", dash(r.Branch))
			fmt.Fprintf(w, "Status:\t%s\n", r.AnalysisStatus)
			if r.AnalysisError != "" {
				fmt.Fprintf(w, "Error:\t%s\n", r.AnalysisError)
			}
			fmt.Fprintf(w, "Last analyzed:\t%s\n", ago(r.LastAnalyzedAt))
			fmt.Fprintf(w, "Stars / forks:\t%d / %d\n", r.StarCount, r.ForkCount)
			fmt.Fprintf(w, "Contributors:\t%d\n", r.ContributorCount)
			fmt.Fprintf(w, "Commits:\t%d\n", r.CommitCount)
			schedule := "off"
			if r.CronEnabled {
				schedule = dash(r.CronFrequency)
			}
			fmt.Fprintf(w, "Scheduled analysis:\t%s\n", schedule)
			return w.Flush()
		},
	}
}

func newReposReanalyzeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reanalyze [id | owner/name]",
		Short: "Queue a fresh analysis",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			watch, _ := cmd.Flags().GetBool("watch")
			ctx := cmd.Context()

			if _, err := a.requireAuth(ctx); err != nil {
				return explain(err)
			}
			r, err := a.resolveRepository(ctx, argOr(args, 0))
			if err != nil {
				return explain(err)
			}
			updated, err := a.tracker.Reanalyze(ctx, r.ID)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Analysis of %s queued; status is %s.\n", updated.FullName, updated.AnalysisStatus)
			if watch {
				return watchAnalysis(ctx, a, cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().Bool("watch", false, "wait for the analysis to finish")
	return cmd
}

func newReposDeleteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete [id | owner/name]",
		Short: "Stop tracking a repository and delete its analysis",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			ctx := cmd.Context()

			if _, err := a.requireAuth(ctx); err != nil {
				return explain(err)
			}
			r, err := a.resolveRepository(ctx, argOr(args, 0))
			if err != nil {
				return explain(err)
			}
			if !yes {
				ok, err := a.confirm(fmt.Sprintf("Delete %s and all of its analysis data?", r.FullName))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}
			if err := a.tracker.Delete(ctx, r.ID); err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", r.FullName)
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newReposWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow analysis status until every repository settles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := a.requireAuth(ctx); err != nil {
				return explain(err)
			}
			if _, err := a.tracker.ListRepositories(ctx); err != nil {
				return explain(err)
			}
			return watchAnalysis(ctx, a, cmd.OutOrStdout())
		},
	}
}

func newReposUpdateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update [id | owner/name]",
		Short: "Change the analysed branch or the analysis schedule",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var upd api.RepositoryUpdate
			if cmd.Flags().Changed("branch") {
				v, _ := cmd.Flags().GetString("branch")
				upd.SelectedBranch = &v
			}
			if cmd.Flags().Changed("schedule") {
				v, _ := cmd.Flags().GetString("schedule")
				enabled := v != "off"
				upd.CronEnabled = &enabled
				if enabled {
					upd.CronFrequency = &v
				}
			}
			if upd.SelectedBranch == nil && upd.CronEnabled == nil {
				return errors.New("nothing to change; pass --branch or --schedule")
			}

			ctx := cmd.Context()
			if _, err := a.requireAuth(ctx); err != nil {
				return explain(err)
			}
			r, err := a.resolveRepository(ctx, argOr(args, 0))
			if err != nil {
				return explain(err)
			}
			updated, err := a.tracker.Update(ctx, r.ID, upd)
			if err != nil {
				return explain(err, "selected_branch", "cron_frequency", "cron_enabled")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s.\n", updated.FullName)
			return nil
		},
	}
	cmd.Flags().String("branch", "", "branch to analyse")
	cmd.Flags().String("schedule", "", "scheduled analysis: weekly, monthly or off")
	return cmd
}

// watchAnalysis prints status changes until every tracked repository is
// terminal. Interrupting it is not an error.
func watchAnalysis(ctx context.Context, a *app, out io.Writer) error {
	p := a.newPoller()
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()

	last := map[string]model.AnalysisStatus{}
	report := func(s tracker.Snapshot) {
		if s.Err != nil {
			fmt.Fprintf(out, "%s  refresh failed: %s\n", s.At.Format("15:04:05"), explain(s.Err))
			return
		}
		for _, r := range s.Repositories {
			if last[r.FullName] == r.AnalysisStatus {
				continue
			}
			last[r.FullName] = r.AnalysisStatus
			line := fmt.Sprintf("%s  %s  %s", s.At.Format("15:04:05"), r.FullName, r.AnalysisStatus)
			if r.AnalysisStatus == model.StatusFailed && r.AnalysisError != "" {
				line += ": " + r.AnalysisError
			}
			fmt.Fprintln(out, line)
		}
	}
	for _, r := range a.tracker.Repositories() {
		last[r.FullName] = r.AnalysisStatus
	}

	for {
		select {
		case s := <-p.Updates():
			report(s)
		case err := <-errc:
			select {
			case s := <-p.Updates():
				report(s)
			default:
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return explain(err)
		}
	}
}
