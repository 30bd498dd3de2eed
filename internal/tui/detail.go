package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"repolens/internal/api"
	"repolens/internal/insights"
	"repolens/internal/model"
)

type tab int

const (
	tabOverview tab = iota
	tabContributors
	tabTimeline
	tabPullRequests
	tabIssues
	tabExports
)

var tabNames = []string{"Overview", "Contributors", "Timeline", "Pull requests", "Issues", "Exports"}

var (
	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Faint(true)
	activeTabStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Foreground(lipgloss.Color("205")).Underline(true)
	cursorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	sectionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("111"))
)

// detailState is the per-repository tab view. It lives only while the
// detail screen is shown; leaving cancels its loads.
type detailState struct {
	repo   model.TrackedRepository
	views  *insights.Views
	ctx    context.Context
	cancel context.CancelFunc

	tab    tab
	cursor map[tab]int
	loaded map[tab]bool
	note   string
	noteOK bool
}

type detailLoadedMsg struct {
	tab tab
	err error
}

type exportMsg struct {
	msg string
	err error
}

type downloadMsg struct {
	path string
	err  error
}

// openDetail pauses status polling while the detail screen is up.
func (m *Model) openDetail(r model.TrackedRepository) tea.Cmd {
	m.stopPolling()
	ctx, cancel := context.WithCancel(m.ctx)
	m.detail = &detailState{
		repo:   r,
		views:  insights.NewViews(m.deps.Insights, r.ID, m.logger),
		ctx:    ctx,
		cancel: cancel,
		cursor: map[tab]int{},
		loaded: map[tab]bool{},
	}
	m.screen = screenDetail
	m.err = ""
	return m.loadTab(tabOverview)
}

func (m *Model) closeDetail() {
	if m.detail != nil {
		m.detail.cancel()
	}
	m.detail = nil
	m.screen = screenDashboard
}

func (m *Model) loadTab(t tab) tea.Cmd {
	d := m.detail
	d.loaded[t] = true
	v, ctx := d.views, d.ctx
	load := func() error {
		switch t {
		case tabContributors:
			return v.LoadContributors(ctx)
		case tabTimeline:
			return v.LoadTimeline(ctx)
		case tabPullRequests:
			return v.LoadPullRequests(ctx)
		case tabIssues:
			return v.LoadIssues(ctx)
		case tabExports:
			return v.LoadExports(ctx)
		default:
			return errors.Join(v.LoadSummary(ctx), v.LoadStats(ctx))
		}
	}
	return func() tea.Msg {
		return detailLoadedMsg{tab: t, err: load()}
	}
}

func (m *Model) switchTab(t tab) tea.Cmd {
	d := m.detail
	d.tab = t
	d.note = ""
	if !d.loaded[t] {
		return m.loadTab(t)
	}
	return nil
}

func (m Model) updateDetailMsg(msg tea.Msg) (tea.Model, tea.Cmd) {
	d := m.detail
	switch msg := msg.(type) {
	case detailLoadedMsg:
		if errors.Is(msg.err, api.ErrAuth) {
			m.expire()
		}
	case exportMsg:
		if msg.err != nil {
			if errors.Is(msg.err, api.ErrAuth) {
				m.expire()
				return m, nil
			}
			d.note, d.noteOK = api.Message(msg.err, "Failed to create the export.", "export_type", "date_range", "date_range_start", "date_range_end"), false
			return m, nil
		}
		d.note, d.noteOK = msg.msg, true
	case downloadMsg:
		if msg.err != nil {
			if errors.Is(msg.err, api.ErrAuth) {
				m.expire()
				return m, nil
			}
			d.note, d.noteOK = api.Message(msg.err, "Failed to download the export."), false
			return m, nil
		}
		d.note, d.noteOK = "Saved "+msg.path, true
	}
	return m, nil
}

func (m Model) updateDetail(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	d := m.detail

	switch key.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "esc", "backspace":
		m.closeDetail()
		cmd := m.startPolling()
		return m, cmd
	case "tab", "right", "l":
		cmd := m.switchTab((d.tab + 1) % tab(len(tabNames)))
		return m, cmd
	case "shift+tab", "left", "h":
		cmd := m.switchTab((d.tab + tab(len(tabNames)) - 1) % tab(len(tabNames)))
		return m, cmd
	case "1", "2", "3", "4", "5", "6":
		cmd := m.switchTab(tab(key.String()[0] - '1'))
		return m, cmd
	case "r":
		d.note = ""
		cmd := m.loadTab(d.tab)
		return m, cmd
	case "up", "k":
		if d.cursor[d.tab] > 0 {
			d.cursor[d.tab]--
		}
		return m, nil
	case "down", "j":
		if d.cursor[d.tab] < d.rows()-1 {
			d.cursor[d.tab]++
		}
		return m, nil
	case "f":
		switch d.tab {
		case tabPullRequests:
			d.views.SetPRFilter(nextPRFilter(d.views.PRFilter()))
			d.cursor[d.tab] = 0
		case tabIssues:
			d.views.SetIssueFilter(nextIssueFilter(d.views.IssueFilter()))
			d.cursor[d.tab] = 0
		}
		return m, nil
	case "enter", " ":
		switch d.tab {
		case tabTimeline:
			groups := d.views.Timeline.Get().Data
			if i := d.cursor[d.tab]; i < len(groups) {
				d.views.ToggleGroup(groups[i].ID)
			}
		case tabExports:
			exports := d.views.Exports.Get().Data
			if i := d.cursor[d.tab]; i < len(exports) {
				d.note = "Downloading…"
				return m, m.downloadCmd(exports[i].ID)
			}
		}
		return m, nil
	case "c", "w", "m":
		if d.tab != tabExports {
			return m, nil
		}
		kind, start, end := exportRange(key.String(), time.Now())
		d.note, d.noteOK = "Requesting export…", true
		return m, m.createExportCmd(kind, start, end)
	}
	return m, nil
}

// exportRange maps a key to an export order. w covers the last 7 days and m
// the last 30; anything else is a complete export.
func exportRange(key string, now time.Time) (kind, start, end string) {
	const layout = "2006-01-02"
	end = now.Format(layout)
	switch key {
	case "w":
		return string(model.ExportWeekly), now.AddDate(0, 0, -6).Format(layout), end
	case "m":
		return string(model.ExportMonthly), now.AddDate(0, 0, -29).Format(layout), end
	default:
		return string(model.ExportComplete), "", ""
	}
}

func (m Model) createExportCmd(kind, start, end string) tea.Cmd {
	d := m.detail
	return func() tea.Msg {
		msg, err := d.views.CreateExport(d.ctx, kind, start, end)
		return exportMsg{msg: msg, err: err}
	}
}

func (m Model) downloadCmd(id uuid.UUID) tea.Cmd {
	d, dir := m.detail, m.deps.ExportsDir
	return func() tea.Msg {
		path, err := d.views.Download(d.ctx, id, dir)
		return downloadMsg{path: path, err: err}
	}
}

func nextPRFilter(f insights.PRFilter) insights.PRFilter {
	for i, x := range insights.PRFilters {
		if x == f {
			return insights.PRFilters[(i+1)%len(insights.PRFilters)]
		}
	}
	return insights.PRAll
}

func nextIssueFilter(f insights.IssueFilter) insights.IssueFilter {
	for i, x := range insights.IssueFilters {
		if x == f {
			return insights.IssueFilters[(i+1)%len(insights.IssueFilters)]
		}
	}
	return insights.IssueAll
}

// rows is the number of cursor positions on the current tab.
func (d *detailState) rows() int {
	switch d.tab {
	case tabContributors:
		return len(d.views.Contributors.Get().Data)
	case tabTimeline:
		return len(d.views.Timeline.Get().Data)
	case tabPullRequests:
		return len(categorised(insights.GroupPullRequests(d.views.VisiblePullRequests())))
	case tabIssues:
		return len(categorised(insights.GroupIssues(d.views.VisibleIssues())))
	case tabExports:
		return len(d.views.Exports.Get().Data)
	default:
		return 0
	}
}

// categorised flattens grouped items in category order.
func categorised[T any](g insights.Grouped[T]) []T {
	var out []T
	for _, c := range insights.Categories {
		out = append(out, g[c]...)
	}
	return out
}

// — view ————————————————————————————————————————————————————————————————————

func (m Model) viewDetail() string {
	d := m.detail
	if d == nil {
		return ""
	}

	var tabs []string
	for i, name := range tabNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if tab(i) == d.tab {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	header := detailHeadStyle.Render(d.repo.FullName) + "  " + dimStyle.Render(d.repo.URL) + "\n" +
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...)

	width := max(m.width-4, 20)
	var lines []string
	focus := 0
	switch d.tab {
	case tabContributors:
		lines, focus = m.contributorLines(width)
	case tabTimeline:
		lines, focus = m.timelineLines(width)
	case tabPullRequests:
		lines, focus = m.pullRequestLines(width)
	case tabIssues:
		lines, focus = m.issueLines(width)
	case tabExports:
		lines, focus = m.exportLines(width)
	default:
		lines = m.overviewLines(width)
	}

	bodyHeight := max(m.height-6, 3)
	body := lipgloss.NewStyle().Padding(0, 2).Render(strings.Join(clip(lines, focus, bodyHeight), "\n"))

	help := "←/→ tabs   ↑/↓ move   r reload   Esc back   q quit"
	switch d.tab {
	case tabTimeline:
		help = "Enter expand   " + help
	case tabPullRequests, tabIssues:
		help = "f filter   " + help
	case tabExports:
		help = "c complete   w weekly   m monthly   Enter download   " + help
	}
	status := ""
	if d.note != "" {
		if d.noteOK {
			status = okStyle.Render(d.note)
		} else {
			status = errStyle.Render(d.note)
		}
	}
	sep := dimStyle.Render(strings.Repeat("─", m.width))

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Padding(0, 1).Render(header),
		"",
		lipgloss.NewStyle().Height(bodyHeight).Render(body),
		sep,
		helpStyle.Render(help),
		helpStyle.Render(status),
	)
}

// clip returns at most height lines, scrolled so focus stays visible.
func clip(lines []string, focus, height int) []string {
	if len(lines) <= height {
		return lines
	}
	start := 0
	if focus >= height {
		start = focus - height + 1
	}
	end := min(start+height, len(lines))
	return lines[start:end]
}

// stateLines renders the non-loaded states of a collection. It returns nil
// once data is available.
func (m Model) stateLines(s insights.LoadState, err error, what string) []string {
	switch s {
	case insights.Idle, insights.Loading:
		return []string{m.spinner.View() + " Loading " + what + "…"}
	case insights.Errored:
		return []string{errStyle.Render(api.Message(err, "Failed to load "+what+".")), "", dimStyle.Render("Press r to retry.")}
	}
	return nil
}

func (m Model) overviewLines(width int) []string {
	v := m.detail.views
	sum, stats := v.Summary.Get(), v.Stats.Get()
	if l := m.stateLines(sum.State, sum.Err, "summary"); l != nil {
		return l
	}

	var lines []string
	if s := sum.Data; s != nil && s.Text != "" {
		lines = append(lines, sectionStyle.Render("Summary")+"  "+dimStyle.Render(day(s.PeriodStart)+" to "+day(s.PeriodEnd)))
		lines = append(lines, strings.Split(lipgloss.NewStyle().Width(width).Render(s.Text), "\n")...)
		lines = append(lines, "", dimStyle.Render("Generated "+ago(s.GeneratedAt)))
	} else {
		lines = append(lines, dimStyle.Render("No summary yet."))
	}
	lines = append(lines, "")

	if l := m.stateLines(stats.State, stats.Err, "statistics"); l != nil {
		return append(lines, l...)
	}
	if s := stats.Data; s != nil {
		row := func(lbl, val string) string { return labelStyle.Render(fmt.Sprintf("%-15s", lbl)) + val }
		lines = append(lines,
			sectionStyle.Render("Statistics"),
			row("Commits", fmt.Sprint(s.TotalCommits)),
			row("Contributors", fmt.Sprint(s.Contributors)),
			row("Pull requests", fmt.Sprintf("%d (open %d, merged %d)", s.TotalPRs, s.OpenPRs, s.MergedPRs)),
			row("Issues", fmt.Sprintf("%d (open %d, closed %d)", s.TotalIssues, s.OpenIssues, s.ClosedIssues)),
			row("Stars / forks", fmt.Sprintf("%d / %d", s.Stars, s.Forks)),
			row("Last analyzed", ago(s.LastAnalyzedAt)),
		)
	}
	return lines
}

func (m Model) contributorLines(width int) ([]string, int) {
	d := m.detail
	snap := d.views.Contributors.Get()
	if l := m.stateLines(snap.State, snap.Err, "contributors"); l != nil {
		return l, 0
	}
	if len(snap.Data) == 0 {
		return []string{dimStyle.Render("No contributors yet.")}, 0
	}
	lines := []string{labelStyle.Render(fmt.Sprintf("   %-3s %-24s %7s %8s %13s %9s %9s", "#", "Contributor", "Impact", "Commits", "+/-", "PRs", "Issues"))}
	for i, c := range snap.Data {
		line := fmt.Sprintf("%-3d %-24s %7d %8d %13s %9s %9s",
			i+1, truncate(dash(c.GitHubUsername), 24), c.ImpactScore, c.TotalCommits,
			fmt.Sprintf("+%d/-%d", c.Additions, c.Deletions),
			fmt.Sprintf("%d/%d", c.PRsMerged, c.PRsOpened),
			fmt.Sprintf("%d/%d", c.IssuesClosed, c.IssuesOpened))
		lines = append(lines, cursorLine(i == d.cursor[tabContributors], truncate(line, width-3)))
	}
	return lines, d.cursor[tabContributors] + 1
}

func (m Model) timelineLines(width int) ([]string, int) {
	d := m.detail
	snap := d.views.Timeline.Get()
	if l := m.stateLines(snap.State, snap.Err, "timeline"); l != nil {
		return l, 0
	}
	if len(snap.Data) == 0 {
		return []string{dimStyle.Render("No timeline yet.")}, 0
	}

	var lines []string
	focus := 0
	for i, g := range snap.Data {
		selected := i == d.cursor[tabTimeline]
		if selected {
			focus = len(lines)
		}
		arrow := "▸"
		expanded := d.views.Expanded(g.ID)
		if expanded {
			arrow = "▾"
		}
		head := fmt.Sprintf("%s %s to %s  %s", arrow, g.StartDate, g.EndDate, dimStyle.Render(fmt.Sprintf("%s · %d commits", g.GroupType, g.CommitCount)))
		lines = append(lines, cursorLine(selected, head))
		if g.Summary != "" {
			for _, l := range strings.Split(lipgloss.NewStyle().Width(width-6).Render(g.Summary), "\n") {
				lines = append(lines, "     "+l)
			}
		}
		if !expanded {
			continue
		}
		bullets := func(title string, items []string) {
			if len(items) == 0 {
				return
			}
			lines = append(lines, "     "+labelStyle.Render(title))
			for _, it := range items {
				lines = append(lines, "       • "+truncate(it, width-10))
			}
		}
		bullets("Key changes", g.KeyChanges)
		bullets("Features", g.NotableFeatures)
		bullets("Bug fixes", g.BugFixes)
		bullets("Technical decisions", g.TechnicalDecisions)
		if len(g.MainContributors) > 0 {
			lines = append(lines, "     "+labelStyle.Render("Contributors ")+strings.Join(g.MainContributors, ", "))
		}
		for _, c := range g.Commits {
			sha := c.SHA
			if len(sha) > 7 {
				sha = sha[:7]
			}
			lines = append(lines, fmt.Sprintf("       %s %s %s", dimStyle.Render(sha), truncate(firstLine(c.Message), width-30), dimStyle.Render(dash(c.AuthorName))))
		}
		lines = append(lines, "")
	}
	return lines, focus
}

func (m Model) pullRequestLines(width int) ([]string, int) {
	d := m.detail
	snap := d.views.PullRequests.Get()
	if l := m.stateLines(snap.State, snap.Err, "pull requests"); l != nil {
		return l, 0
	}

	counts := insights.CountPullRequests(snap.Data)
	current := d.views.PRFilter()
	var chips []string
	for _, f := range insights.PRFilters {
		chip := fmt.Sprintf("%s %d", f, counts.Count(f))
		if f == current {
			chip = activeTabStyle.Render(chip)
		} else {
			chip = tabStyle.Render(chip)
		}
		chips = append(chips, chip)
	}
	lines := []string{strings.Join(chips, " "), ""}

	groups := insights.GroupPullRequests(d.views.VisiblePullRequests())
	if len(categorised(groups)) == 0 {
		return append(lines, dimStyle.Render("No pull requests match.")), 0
	}

	focus, row := 0, 0
	var selected *model.PullRequest
	for _, c := range insights.Categories {
		items := groups[c]
		if len(items) == 0 {
			continue
		}
		lines = append(lines, sectionStyle.Render(fmt.Sprintf("%s (%d)", c.Title(), len(items))))
		for i := range items {
			pr := items[i]
			on := row == d.cursor[tabPullRequests]
			if on {
				focus = len(lines)
				selected = &items[i]
			}
			line := fmt.Sprintf("#%-5d %-8s %s  %s", pr.Number, pr.State, truncate(pr.Title, width-40), dimStyle.Render(dash(pr.Author)+" · "+day(pr.CreatedAt)))
			lines = append(lines, cursorLine(on, line))
			row++
		}
		lines = append(lines, "")
	}
	if selected != nil && selected.AISummary != "" {
		lines = append(lines, labelStyle.Render(fmt.Sprintf("#%d summary", selected.Number)))
		lines = append(lines, strings.Split(lipgloss.NewStyle().Width(width).Render(selected.AISummary), "\n")...)
	}
	return lines, focus
}

func (m Model) issueLines(width int) ([]string, int) {
	d := m.detail
	snap := d.views.Issues.Get()
	if l := m.stateLines(snap.State, snap.Err, "issues"); l != nil {
		return l, 0
	}

	counts := insights.CountIssues(snap.Data)
	current := d.views.IssueFilter()
	var chips []string
	for _, f := range insights.IssueFilters {
		chip := fmt.Sprintf("%s %d", f, counts.Count(f))
		if f == current {
			chip = activeTabStyle.Render(chip)
		} else {
			chip = tabStyle.Render(chip)
		}
		chips = append(chips, chip)
	}
	lines := []string{strings.Join(chips, " "), ""}

	groups := insights.GroupIssues(d.views.VisibleIssues())
	if len(categorised(groups)) == 0 {
		return append(lines, dimStyle.Render("No issues match.")), 0
	}

	focus, row := 0, 0
	var selected *model.Issue
	for _, c := range insights.Categories {
		items := groups[c]
		if len(items) == 0 {
			continue
		}
		lines = append(lines, sectionStyle.Render(fmt.Sprintf("%s (%d)", c.Title(), len(items))))
		for i := range items {
			is := items[i]
			on := row == d.cursor[tabIssues]
			if on {
				focus = len(lines)
				selected = &items[i]
			}
			meta := dash(is.Author) + " · " + day(is.CreatedAt)
			if is.ResolutionPRNumber != nil {
				meta += fmt.Sprintf(" · fixed by #%d", *is.ResolutionPRNumber)
			}
			line := fmt.Sprintf("#%-5d %-6s %s  %s", is.Number, is.State, truncate(is.Title, width-45), dimStyle.Render(meta))
			lines = append(lines, cursorLine(on, line))
			row++
		}
		lines = append(lines, "")
	}
	if selected != nil && selected.AISummary != "" {
		lines = append(lines, labelStyle.Render(fmt.Sprintf("#%d summary", selected.Number)))
		lines = append(lines, strings.Split(lipgloss.NewStyle().Width(width).Render(selected.AISummary), "\n")...)
	}
	return lines, focus
}

func (m Model) exportLines(width int) ([]string, int) {
	d := m.detail
	snap := d.views.Exports.Get()
	if l := m.stateLines(snap.State, snap.Err, "exports"); l != nil {
		return l, 0
	}
	if len(snap.Data) == 0 {
		return []string{dimStyle.Render("No exports yet. Press c, w or m to create one.")}, 0
	}
	lines := []string{labelStyle.Render(fmt.Sprintf("   %-9s %-26s %9s  %s", "Type", "Range", "Size", "Created"))}
	for i, e := range snap.Data {
		period := "all time"
		if e.DateRangeStart != "" {
			period = e.DateRangeStart + " to " + e.DateRangeEnd
		}
		created := e.CreatedAt
		line := fmt.Sprintf("%-9s %-26s %9s  %s", e.Type, period, insights.HumanSize(e.FileSize), ago(&created))
		lines = append(lines, cursorLine(i == d.cursor[tabExports], truncate(line, width-3)))
	}
	return lines, d.cursor[tabExports] + 1
}

func cursorLine(selected bool, s string) string {
	if selected {
		return cursorStyle.Render("> ") + s
	}
	return "  " + s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
