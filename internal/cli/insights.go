package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"repolens/internal/insights"
	"repolens/internal/model"
)

// viewsFor resolves the repository named by args and returns its views.
func viewsFor(cmd *cobra.Command, a *app, args []string) (*insights.Views, model.TrackedRepository, error) {
	ctx := cmd.Context()
	if _, err := a.requireAuth(ctx); err != nil {
		return nil, model.TrackedRepository{}, explain(err)
	}
	r, err := a.resolveRepository(ctx, argOr(args, 0))
	if err != nil {
		return nil, model.TrackedRepository{}, explain(err)
	}
	return a.views(r.ID), r, nil
}

func newContributorsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "contributors [id | owner/name]",
		Short: "List contributors ranked by impact",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, _, err := viewsFor(cmd, a, args)
			if err != nil {
				return err
			}
			if err := v.LoadContributors(cmd.Context()); err != nil {
				return explain(err)
			}
			list := v.Contributors.Get().Data
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No contributors yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "#\tCONTRIBUTOR\tIMPACT\tCOMMITS\t+/-\tPRS (MERGED)\tISSUES (CLOSED)")
			for i, c := range list {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t+%d/-%d\t%d (%d)\t%d (%d)\n",
					i+1, dash(c.GitHubUsername), c.ImpactScore, c.TotalCommits,
					c.Additions, c.Deletions, c.PRsOpened, c.PRsMerged, c.IssuesOpened, c.IssuesClosed)
			}
			return w.Flush()
		},
	}
}

func newTimelineCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline [id | owner/name]",
		Short: "Show the commit timeline with period summaries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expandAll, _ := cmd.Flags().GetBool("commits")
			expand, _ := cmd.Flags().GetStringSlice("expand")

			v, _, err := viewsFor(cmd, a, args)
			if err != nil {
				return err
			}
			if err := v.LoadTimeline(cmd.Context()); err != nil {
				return explain(err)
			}
			groups := v.Timeline.Get().Data
			for _, g := range groups {
				if expandAll || matchesGroup(g.ID, expand) {
					v.ToggleGroup(g.ID)
				}
			}
			printTimeline(cmd.OutOrStdout(), groups, v.Expanded)
			return nil
		},
	}
	cmd.Flags().Bool("commits", false, "list the commits of every period")
	cmd.Flags().StringSlice("expand", nil, "list the commits of the given period ids (prefix match)")
	return cmd
}

func matchesGroup(id uuid.UUID, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(id.String(), strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func printTimeline(out io.Writer, groups []model.CommitGroup, expanded func(uuid.UUID) bool) {
	if len(groups) == 0 {
		fmt.Fprintln(out, "No timeline yet.")
		return
	}
	for _, g := range groups {
		fmt.Fprintf(out, "%s to %s  (%s, %d commits)  %s\n", g.StartDate, g.EndDate, g.GroupType, g.CommitCount, g.ID.String()[:8])
		if g.Summary != "" {
			fmt.Fprintf(out, "  %s\n", g.Summary)
		}
		section := func(title string, items []string) {
			if len(items) == 0 {
				return
			}
			fmt.Fprintf(out, "  %s:\n", title)
			for _, it := range items {
				fmt.Fprintf(out, "    - %s\n", it)
			}
		}
		section("Key changes", g.KeyChanges)
		section("Features", g.NotableFeatures)
		section("Bug fixes", g.BugFixes)
		section("Technical decisions", g.TechnicalDecisions)
		if len(g.MainContributors) > 0 {
			fmt.Fprintf(out, "  Contributors: %s\n", strings.Join(g.MainContributors, ", "))
		}
		if expanded(g.ID) {
			for _, c := range g.Commits {
				sha := c.SHA
				if len(sha) > 7 {
					sha = sha[:7]
				}
				fmt.Fprintf(out, "    %s  %s  %s (+%d/-%d)\n", sha, truncate(firstLine(c.Message), 60), dash(c.AuthorName), c.Additions, c.Deletions)
			}
		}
		fmt.Fprintln(out)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func newPRsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prs [id | owner/name]",
		Aliases: []string{"pulls"},
		Short:   "List pull requests",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, _ := cmd.Flags().GetString("state")
			grouped, _ := cmd.Flags().GetBool("grouped")
			filter, err := insights.ParsePRFilter(state)
			if err != nil {
				return err
			}

			v, _, err := viewsFor(cmd, a, args)
			if err != nil {
				return err
			}
			if err := v.LoadPullRequests(cmd.Context()); err != nil {
				return explain(err)
			}
			v.SetPRFilter(filter)

			out := cmd.OutOrStdout()
			c := insights.CountPullRequests(v.PullRequests.Get().Data)
			fmt.Fprintf(out, "All %d   Open %d   Merged %d   Closed %d\n\n", c.All, c.Open, c.Merged, c.Closed)

			prs := v.VisiblePullRequests()
			if len(prs) == 0 {
				fmt.Fprintln(out, "No pull requests match.")
				return nil
			}
			if !grouped {
				printPullRequests(out, prs)
				return nil
			}
			groups := insights.GroupPullRequests(prs)
			for _, cat := range insights.Categories {
				if len(groups[cat]) == 0 {
					continue
				}
				fmt.Fprintf(out, "%s (%d)\n", cat.Title(), len(groups[cat]))
				printPullRequests(out, groups[cat])
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().String("state", "all", "all, open, merged or closed")
	cmd.Flags().Bool("grouped", false, "group by bugs, features and other")
	return cmd
}

func printPullRequests(out io.Writer, prs []model.PullRequest) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tTITLE\tAUTHOR\tSTATE\tOPENED\tMERGED")
	for _, pr := range prs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", pr.Number, truncate(pr.Title, 60), dash(pr.Author), pr.State, day(pr.CreatedAt), day(pr.MergedAt))
	}
	w.Flush()
}

func newIssuesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issues [id | owner/name]",
		Short: "List issues",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			state, _ := cmd.Flags().GetString("state")
			grouped, _ := cmd.Flags().GetBool("grouped")
			filter, err := insights.ParseIssueFilter(state)
			if err != nil {
				return err
			}

			v, _, err := viewsFor(cmd, a, args)
			if err != nil {
				return err
			}
			if err := v.LoadIssues(cmd.Context()); err != nil {
				return explain(err)
			}
			v.SetIssueFilter(filter)

			out := cmd.OutOrStdout()
			c := insights.CountIssues(v.Issues.Get().Data)
			fmt.Fprintf(out, "All %d   Open %d   Closed %d\n\n", c.All, c.Open, c.Closed)

			issues := v.VisibleIssues()
			if len(issues) == 0 {
				fmt.Fprintln(out, "No issues match.")
				return nil
			}
			if !grouped {
				printIssues(out, issues)
				return nil
			}
			groups := insights.GroupIssues(issues)
			for _, cat := range insights.Categories {
				if len(groups[cat]) == 0 {
					continue
				}
				fmt.Fprintf(out, "%s (%d)\n", cat.Title(), len(groups[cat]))
				printIssues(out, groups[cat])
				fmt.Fprintln(out)
			}
			return nil
		},
	}
	cmd.Flags().String("state", "all", "all, open or closed")
	cmd.Flags().Bool("grouped", false, "group by bugs, features and other")
	return cmd
}

func printIssues(out io.Writer, issues []model.Issue) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "#\tTITLE\tAUTHOR\tSTATE\tOPENED\tCLOSED\tRESOLVED BY")
	for _, is := range issues {
		resolved := "-"
		if is.ResolutionPRNumber != nil {
			resolved = fmt.Sprintf("#%d", *is.ResolutionPRNumber)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", is.Number, truncate(is.Title, 60), dash(is.Author), is.State, day(is.CreatedAt), day(is.ClosedAt), resolved)
	}
	w.Flush()
}

func newSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary [id | owner/name]",
		Short: "Show the latest AI summary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, r, err := viewsFor(cmd, a, args)
			if err != nil {
				return err
			}
			if err := v.LoadSummary(cmd.Context()); err != nil {
				return explain(err)
			}
			s := v.Summary.Get().Data
			out := cmd.OutOrStdout()
			if s == nil {
				fmt.Fprintf(out, "No summary for %s yet.\n", r.FullName)
				return nil
			}
			fmt.Fprintf(out, "%s  (%s to %s)\n\n%s\n\n", r.FullName, day(s.PeriodStart), day(s.PeriodEnd), s.Text)
			fmt.Fprintf(out, "%d commits, %d contributors, %d pull requests, %d issues. Generated %s.\n",
				s.TotalCommits, s.TotalContributors, s.TotalPRs, s.TotalIssues, ago(s.GeneratedAt))
			return nil
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats [id | owner/name]",
		Short: "Show repository statistics",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, _, err := viewsFor(cmd, a, args)
			if err != nil {
				return err
			}
			if err := v.LoadStats(cmd.Context()); err != nil {
				return explain(err)
			}
			s := v.Stats.Get().Data
			if s == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "No statistics yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintf(w, "Repository:\t%s\n", s.Repository)
			fmt.Fprintf(w, "Status:\t%s\n", s.AnalysisStatus)
			fmt.Fprintf(w, "Last analyzed:\t%s\n", ago(s.LastAnalyzedAt))
			fmt.Fprintf(w, "Commits:\t%d\n", s.TotalCommits)
			fmt.Fprintf(w, "Contributors:\t%d\n", s.Contributors)
			fmt.Fprintf(w, "Pull requests:\t%d (open %d, merged %d)\n", s.TotalPRs, s.OpenPRs, s.MergedPRs)
			fmt.Fprintf(w, "Issues:\t%d (open %d, closed %d)\n", s.TotalIssues, s.OpenIssues, s.ClosedIssues)
			fmt.Fprintf(w, "Stars / forks:\t%d / %d\n", s.Stars, s.Forks)
			return w.Flush()
		},
	}
}

func newBranchesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "branches [id | owner/name]",
		Short: "List remote branches",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, _, err := viewsFor(cmd, a, args)
			if err != nil {
				return err
			}
			if err := v.LoadBranches(cmd.Context()); err != nil {
				return explain(err)
			}
			b := v.Branches.Get().Data
			out := cmd.OutOrStdout()
			if b == nil || len(b.Branches) == 0 {
				fmt.Fprintln(out, "No branches.")
				return nil
			}
			for _, name := range b.Branches {
				var marks []string
				if name == b.DefaultBranch {
					marks = append(marks, "default")
				}
				if name == b.Selected {
					marks = append(marks, "analysed")
				}
				if len(marks) > 0 {
					fmt.Fprintf(out, "%s  (%s)\n", name, strings.Join(marks, ", "))
				} else {
					fmt.Fprintln(out, name)
				}
			}
			return nil
		},
	}
}
