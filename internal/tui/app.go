package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"repolens/internal/api"
	"repolens/internal/insights"
	"repolens/internal/model"
	"repolens/internal/picker"
	"repolens/internal/session"
	"repolens/internal/tracker"
)

// — screens ——————————————————————————————————————————————————————————————————

type screen int

const (
	screenLoading screen = iota
	screenAuth
	screenDashboard
	screenDetail
)

type overlay int

const (
	overlayNone overlay = iota
	overlayPicker
	overlayImportURL
	overlayDeleteConfirm
)

// — styles ——————————————————————————————————————————————————————————————————

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginLeft(2)

	dimStyle  = lipgloss.NewStyle().Faint(true)
	boldStyle = lipgloss.NewStyle().Bold(true)
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	helpStyle = lipgloss.NewStyle().
			Faint(true).
			PaddingLeft(2)

	detailHeadStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	labelStyle = lipgloss.NewStyle().Faint(true)

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("205")).
			Padding(1, 3).
			Width(64)

	deleteModalStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("196")).
				Padding(1, 3).
				Width(58)
)

// — messages ————————————————————————————————————————————————————————————————

type sessionLoadedMsg struct {
	err error
}

type authDoneMsg struct {
	user *model.User
	err  error
}

type loggedOutMsg struct {
	err error
}

type reposLoadedMsg struct {
	repos []model.TrackedRepository
	err   error
}

type importedMsg struct {
	repo *model.TrackedRepository
	err  error
}

type reanalyzedMsg struct {
	repo *model.TrackedRepository
	err  error
}

type deletedMsg struct {
	name string
	err  error
}

// — list item ———————————————————————————————————————————————————————————————

type repoItem struct {
	r           model.TrackedRepository
	spinnerChar string
}

func (i repoItem) Title() string {
	indicator := " "
	switch {
	case i.r.AnalysisStatus == model.StatusFailed:
		indicator = "!"
	case !i.r.AnalysisStatus.Terminal():
		indicator = i.spinnerChar
	}
	return indicator + " " + i.r.FullName
}

func (i repoItem) Description() string { return string(i.r.AnalysisStatus) }
func (i repoItem) FilterValue() string  { return i.r.FullName }

// — model ———————————————————————————————————————————————————————————————————

// Deps are the services the UI drives.
type Deps struct {
	Session    *session.Holder
	Tracker    *tracker.Tracker
	Picker     *picker.Picker
	Poller     func() *tracker.Poller
	Insights   insights.Gateway
	ExportsDir string
	Logger     *zap.Logger
}

type Model struct {
	ctx    context.Context
	deps   Deps
	logger *zap.Logger

	width  int
	height int

	screen  screen
	overlay overlay
	spinner spinner.Model
	busy    string
	flash   string
	err     string

	auth authForm

	list     list.Model
	repos    []model.TrackedRepository
	urlInput textinput.Model
	inputErr string
	poll     pollState

	pick       picker.View
	pickCursor int
	filter     textinput.Model
	filtering  bool

	detail *detailState
}

// New returns the root model. Services in deps are shared, not copied.
func New(ctx context.Context, deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Tracked repository"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.Styles.Title = titleStyle

	url := textinput.New()
	url.Placeholder = "https://github.com/owner/name"
	url.CharLimit = 200

	filter := textinput.New()
	filter.Placeholder = "filter this page"
	filter.CharLimit = 100

	return Model{
		ctx:      ctx,
		deps:     deps,
		logger:   deps.Logger,
		screen:   screenLoading,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Line)),
		auth:     newAuthForm(),
		list:     l,
		urlInput: url,
		filter:   filter,
		busy:     "Checking your session",
	}
}

// Run shows the UI until the user quits or ctx is cancelled.
func Run(ctx context.Context, deps Deps) error {
	final, err := tea.NewProgram(New(ctx, deps), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if m, ok := final.(Model); ok {
		m.stopPolling()
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// — commands ————————————————————————————————————————————————————————————————

func (m Model) loadSessionCmd() tea.Cmd {
	return func() tea.Msg {
		return sessionLoadedMsg{err: m.deps.Session.Load(m.ctx)}
	}
}

func (m Model) fetchReposCmd() tea.Cmd {
	return func() tea.Msg {
		repos, err := m.deps.Tracker.ListRepositories(m.ctx)
		return reposLoadedMsg{repos: repos, err: err}
	}
}

func (m Model) importURLCmd(url string) tea.Cmd {
	return func() tea.Msg {
		repo, err := m.deps.Tracker.ImportRepository(m.ctx, url)
		return importedMsg{repo: repo, err: err}
	}
}

func (m Model) reanalyzeCmd(id model.TrackedRepository) tea.Cmd {
	return func() tea.Msg {
		repo, err := m.deps.Tracker.Reanalyze(m.ctx, id.ID)
		return reanalyzedMsg{repo: repo, err: err}
	}
}

func (m Model) deleteCmd(r model.TrackedRepository) tea.Cmd {
	return func() tea.Msg {
		return deletedMsg{name: r.FullName, err: m.deps.Tracker.Delete(m.ctx, r.ID)}
	}
}

func (m Model) logoutCmd() tea.Cmd {
	return func() tea.Msg {
		return loggedOutMsg{err: m.deps.Session.Logout(m.ctx)}
	}
}

// buildItems rebuilds the list items with the current spinner frame.
func (m *Model) buildItems() {
	char := m.spinner.View()
	items := make([]list.Item, len(m.repos))
	for i, r := range m.repos {
		items[i] = repoItem{r: r, spinnerChar: char}
	}
	m.list.SetItems(items)
}

func (m *Model) setRepos(repos []model.TrackedRepository) {
	m.repos = repos
	m.buildItems()
}

// fail records err for display. A rejected credential ends the session and
// returns to the sign-in screen.
func (m *Model) fail(err error, fallback string, fields ...string) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if errors.Is(err, api.ErrAuth) {
		m.expire()
		return
	}
	m.err = api.Message(err, fallback, fields...)
}

func (m *Model) expire() {
	m.stopPolling()
	m.closeDetail()
	m.deps.Session.Expire()
	m.deps.Picker.Close()
	m.screen = screenAuth
	m.overlay = overlayNone
	m.busy = ""
	m.auth.reset()
	m.auth.err = "Your session has expired. Please sign in again."
}

func (m *Model) enterDashboard() tea.Cmd {
	m.screen = screenDashboard
	m.overlay = overlayNone
	m.busy = "Loading repositories"
	m.err = ""
	return m.fetchReposCmd()
}

// — tea.Model ———————————————————————————————————————————————————————————————

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadSessionCmd(), m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		lw, lh := m.listDimensions()
		m.list.SetSize(lw, lh)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.screen == screenDashboard {
			m.buildItems()
		}
		return m, cmd

	case sessionLoadedMsg:
		m.busy = ""
		if msg.err != nil {
			m.err = "Could not reach the server: " + api.Message(msg.err, msg.err.Error())
			return m, nil
		}
		if m.deps.Session.Current().Authenticated {
			cmd := m.enterDashboard()
			return m, cmd
		}
		m.screen = screenAuth
		cmd := m.auth.focus()
		return m, cmd

	case authDoneMsg:
		m.auth.submitting = false
		if msg.err != nil {
			m.auth.err = session.ErrorMessage(msg.err)
			return m, nil
		}
		m.auth.reset()
		m.flash = "Signed in as " + msg.user.Username
		cmd := m.enterDashboard()
		return m, cmd

	case loggedOutMsg:
		m.stopPolling()
		m.closeDetail()
		m.deps.Picker.Close()
		m.screen = screenAuth
		m.overlay = overlayNone
		m.repos = nil
		m.flash = ""
		m.err = ""
		if msg.err != nil {
			m.auth.err = msg.err.Error()
		}
		cmd := m.auth.focus()
		return m, cmd

	case reposLoadedMsg:
		m.busy = ""
		if msg.err != nil {
			m.fail(msg.err, "Failed to load repositories.")
			return m, nil
		}
		m.err = ""
		m.setRepos(msg.repos)
		cmd := m.startPolling()
		return m, cmd

	case pollMsg:
		return m.handlePoll(msg)

	case pollStoppedMsg:
		if msg.gen == m.poll.gen {
			m.poll.running = false
		}
		return m, nil

	case pickerMsg:
		return m.handlePicker(msg)

	case importedMsg:
		m.busy = ""
		if msg.err != nil {
			if errors.Is(msg.err, api.ErrAuth) {
				m.expire()
				return m, nil
			}
			m.inputErr = api.Message(msg.err, api.GenericMessage, "github_repo_url", "non_field_errors", "error")
			return m, nil
		}
		m.overlay = overlayNone
		m.inputErr = ""
		m.urlInput.Reset()
		m.urlInput.Blur()
		m.flash = "Imported " + msg.repo.FullName + ", analysis " + string(msg.repo.AnalysisStatus)
		m.setRepos(m.deps.Tracker.Repositories())
		cmd := m.startPolling()
		return m, cmd

	case reanalyzedMsg:
		m.busy = ""
		if msg.err != nil {
			m.fail(msg.err, "Failed to start the analysis.")
			m.setRepos(m.deps.Tracker.Repositories())
			return m, nil
		}
		m.err = ""
		m.flash = "Analysis of " + msg.repo.FullName + " queued"
		m.setRepos(m.deps.Tracker.Repositories())
		cmd := m.startPolling()
		return m, cmd

	case deletedMsg:
		m.busy = ""
		m.overlay = overlayNone
		if msg.err != nil {
			m.fail(msg.err, "Failed to delete the repository.")
			return m, nil
		}
		m.err = ""
		m.flash = "Deleted " + msg.name
		m.setRepos(m.deps.Tracker.Repositories())
		return m, nil

	case detailLoadedMsg, exportMsg, downloadMsg:
		if m.detail == nil {
			return m, nil
		}
		return m.updateDetailMsg(msg)
	}

	switch m.screen {
	case screenLoading:
		return m.updateLoading(msg)
	case screenAuth:
		return m.updateAuth(msg)
	case screenDetail:
		return m.updateDetail(msg)
	}

	switch m.overlay {
	case overlayPicker:
		return m.updatePicker(msg)
	case overlayImportURL:
		return m.updateImportURL(msg)
	case overlayDeleteConfirm:
		return m.updateDeleteConfirm(msg)
	default:
		return m.updateDashboard(msg)
	}
}

func (m Model) updateLoading(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			if m.busy == "" {
				m.err = ""
				m.busy = "Checking your session"
				return m, m.loadSessionCmd()
			}
		}
	}
	return m, nil
}

func (m Model) updateDashboard(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		return m, cmd
	}

	switch key.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "r":
		if m.poll.running {
			m.flash = "Statuses are already refreshing"
			return m, nil
		}
		m.busy = "Refreshing"
		return m, m.fetchReposCmd()
	case "i":
		if !m.deps.Tracker.CanImport() {
			m.err = "You can only track one repository. Delete it before importing another."
			return m, nil
		}
		m.err = ""
		m.flash = ""
		cmd := m.openPicker()
		return m, cmd
	case "u":
		if !m.deps.Tracker.CanImport() {
			m.err = "You can only track one repository. Delete it before importing another."
			return m, nil
		}
		m.overlay = overlayImportURL
		m.inputErr = ""
		m.urlInput.Reset()
		m.urlInput.Focus()
		return m, textinput.Blink
	case "a":
		r := m.selectedRepo()
		if r == nil || m.busy != "" {
			return m, nil
		}
		m.err = ""
		m.busy = "Starting analysis"
		return m, m.reanalyzeCmd(*r)
	case "d":
		if m.selectedRepo() != nil {
			m.overlay = overlayDeleteConfirm
			m.err = ""
		}
		return m, nil
	case "enter":
		r := m.selectedRepo()
		if r == nil {
			return m, nil
		}
		if r.AnalysisStatus != model.StatusCompleted {
			m.err = "Details are available once the analysis has completed."
			return m, nil
		}
		cmd := m.openDetail(*r)
		return m, cmd
	case "L":
		m.busy = "Signing out"
		return m, m.logoutCmd()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) updateImportURL(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc":
			m.overlay = overlayNone
			m.inputErr = ""
			m.urlInput.Blur()
			return m, nil
		case "enter":
			url := strings.TrimSpace(m.urlInput.Value())
			if url == "" {
				m.inputErr = "Enter a GitHub repository URL."
				return m, nil
			}
			if m.busy != "" {
				return m, nil
			}
			m.inputErr = ""
			m.busy = "Importing"
			return m, m.importURLCmd(url)
		}
	}
	var cmd tea.Cmd
	m.urlInput, cmd = m.urlInput.Update(msg)
	return m, cmd
}

func (m Model) updateDeleteConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "esc", "n", "N":
			m.overlay = overlayNone
			return m, nil
		case "enter", "y", "Y":
			r := m.selectedRepo()
			if r == nil || m.busy != "" {
				m.overlay = overlayNone
				return m, nil
			}
			m.busy = "Deleting"
			return m, m.deleteCmd(*r)
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return ""
	}

	switch m.screen {
	case screenLoading:
		if m.err != "" {
			return lipgloss.NewStyle().Padding(1, 2).Render(
				errStyle.Render(m.err) + "\n\nPress r to retry, q to quit.",
			)
		}
		return lipgloss.NewStyle().Padding(1, 2).Render(m.spinner.View() + " " + m.busy + "…")
	case screenAuth:
		return m.viewAuth()
	case screenDetail:
		return m.viewDetail()
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.list.View(), m.renderDetail())
	base := lipgloss.JoinVertical(lipgloss.Left, body, m.renderHelp())

	switch m.overlay {
	case overlayPicker:
		return m.renderPickerOver(base)
	case overlayImportURL:
		return m.renderImportURLOver(base)
	case overlayDeleteConfirm:
		return m.renderDeleteConfirmOver(base)
	}
	return base
}

// — layout helpers ——————————————————————————————————————————————————————————

func (m Model) listDimensions() (width, height int) {
	return m.width / 3, m.height - 3
}

func (m Model) renderDetail() string {
	lw, _ := m.listDimensions()
	dw := m.width - lw
	dh := m.height - 3

	style := lipgloss.NewStyle().
		Border(lipgloss.NormalBorder(), false, false, false, true).
		PaddingLeft(3).
		PaddingRight(2).
		Width(dw - 1).
		Height(dh)

	contentWidth := (dw - 1) - 3 - 2

	r := m.selectedRepo()
	if r == nil {
		var b strings.Builder
		b.WriteString(dimStyle.Render("No repository is tracked yet.") + "\n\n")
		b.WriteString("Press i to pick one of your GitHub repositories\n")
		b.WriteString("or u to enter a repository URL.\n")
		return style.Render(b.String())
	}

	row := func(lbl, val string) string {
		return labelStyle.Render(lbl) + val + "\n"
	}

	sep := dimStyle.Render(strings.Repeat("─", max(contentWidth, 0)))

	var b strings.Builder
	b.WriteString(detailHeadStyle.Render(r.FullName) + "\n\n")
	if r.Description != "" {
		b.WriteString(truncate(r.Description, contentWidth) + "\n\n")
	}
	b.WriteString(row("Status     ", statusLabel(r.AnalysisStatus, m.spinner.View())))
	if r.AnalysisError != "" {
		b.WriteString(row("Error      ", errStyle.Render(truncate(r.AnalysisError, contentWidth-11))))
	}
	b.WriteString(row("Branch     ", dash(r.Branch)))
	b.WriteString(row("Analyzed   ", ago(r.LastAnalyzedAt)))
	b.WriteString("\n")
	b.WriteString(sep + "\n\n")
	b.WriteString(row("Stars      ", fmt.Sprint(r.StarCount)))
	b.WriteString(row("Forks      ", fmt.Sprint(r.ForkCount)))
	b.WriteString(row("Authors    ", fmt.Sprint(r.ContributorCount)))
	b.WriteString(row("Commits    ", fmt.Sprint(r.CommitCount)))
	if r.CronEnabled {
		b.WriteString(row("Schedule   ", dash(r.CronFrequency)))
	}
	b.WriteString("\n")
	if m.poll.running {
		b.WriteString(dimStyle.Render("Refreshing status every few seconds") + "\n")
	}
	if m.poll.lastErr != "" {
		b.WriteString(warnStyle.Render("Status refresh failed: "+m.poll.lastErr) + "\n")
	}

	return style.Render(b.String())
}

func statusLabel(s model.AnalysisStatus, spin string) string {
	switch s {
	case model.StatusCompleted:
		return okStyle.Render("● completed")
	case model.StatusFailed:
		return errStyle.Render("✕ failed")
	case model.StatusPending:
		return warnStyle.Render(spin + " pending")
	case model.StatusFetching, model.StatusAnalyzing:
		return warnStyle.Render(spin + " " + string(s))
	default:
		return dimStyle.Render(string(s))
	}
}

func (m Model) renderHelp() string {
	var text string
	switch m.overlay {
	case overlayPicker:
		text = "↑/↓ move   space select   / filter   ←/→ page   Enter import   Esc close"
	case overlayImportURL:
		text = "Enter import   Esc cancel"
	case overlayDeleteConfirm:
		text = "y/Enter confirm   n/Esc cancel"
	default:
		text = "Enter details   i import   u import URL   a reanalyze   d delete   r refresh   L sign out   q quit"
	}

	status := ""
	switch {
	case m.busy != "":
		status = m.spinner.View() + " " + m.busy + "…"
	case m.err != "":
		status = errStyle.Render(m.err)
	case m.flash != "":
		status = okStyle.Render(m.flash)
	}

	sep := dimStyle.Render(strings.Repeat("─", m.width))
	return sep + "\n" + helpStyle.Render(text) + "\n" + helpStyle.Render(status)
}

func (m Model) renderImportURLOver(base string) string {
	var b strings.Builder
	b.WriteString(boldStyle.Render("Import Repository") + "\n\n")
	b.WriteString("GitHub URL\n")
	b.WriteString(m.urlInput.View() + "\n")
	if m.busy != "" {
		b.WriteString("\n" + m.spinner.View() + " " + m.busy + "…\n")
	}
	if m.inputErr != "" {
		b.WriteString("\n" + errStyle.Render(m.inputErr) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("Analysis starts right away and runs in the background"))

	modal := modalStyle.Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal,
		lipgloss.WithWhitespaceBackground(lipgloss.Color("0")),
	)
}

func (m Model) renderDeleteConfirmOver(base string) string {
	r := m.selectedRepo()
	var b strings.Builder
	b.WriteString(errStyle.Render("Delete Repository") + "\n\n")
	if r != nil {
		b.WriteString(labelStyle.Render("Repository ") + r.FullName + "\n")
		b.WriteString(labelStyle.Render("Status     ") + string(r.AnalysisStatus) + "\n\n")
		if r.AnalysisStatus.Busy() {
			b.WriteString(warnStyle.Render("An analysis is still running") + "\n\n")
		}
	}
	b.WriteString("All contributors, timeline, pull request, issue and\nexport data for it will be removed.\n")
	if m.busy != "" {
		b.WriteString("\n" + m.spinner.View() + " " + m.busy + "…\n")
	}
	b.WriteString("\n" + dimStyle.Render("y/Enter to confirm · Esc/n to cancel"))

	modal := deleteModalStyle.Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal,
		lipgloss.WithWhitespaceBackground(lipgloss.Color("0")),
	)
}

func (m Model) selectedRepo() *model.TrackedRepository {
	if len(m.repos) == 0 {
		return nil
	}
	idx := m.list.Index()
	if idx < 0 || idx >= len(m.repos) {
		return nil
	}
	return &m.repos[idx]
}
