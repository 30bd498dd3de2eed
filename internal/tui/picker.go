package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"repolens/internal/api"
	"repolens/internal/model"
	"repolens/internal/picker"
)

// pickerMsg reports that a picker call finished. repo is set after a
// successful import.
type pickerMsg struct {
	repo *model.TrackedRepository
	err  error
}

func (m Model) pickerCmd(fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		return pickerMsg{err: fn(m.ctx)}
	}
}

func (m Model) confirmPickCmd() tea.Cmd {
	return func() tea.Msg {
		repo, err := m.deps.Picker.Confirm(m.ctx)
		return pickerMsg{repo: repo, err: err}
	}
}

func (m *Model) openPicker() tea.Cmd {
	m.overlay = overlayPicker
	m.pickCursor = 0
	m.filtering = false
	m.filter.Reset()
	m.filter.Blur()
	m.pick = picker.View{State: picker.StateLoading}
	return m.pickerCmd(m.deps.Picker.Open)
}

func (m *Model) closePicker() {
	m.deps.Picker.Close()
	m.overlay = overlayNone
	m.filtering = false
	m.filter.Blur()
}

func (m *Model) refreshPick() {
	m.pick = m.deps.Picker.State()
	if m.pickCursor >= len(m.pick.Items) {
		m.pickCursor = max(len(m.pick.Items)-1, 0)
	}
}

func (m Model) handlePicker(msg pickerMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil && errors.Is(msg.err, api.ErrAuth) {
		m.expire()
		return m, nil
	}
	if msg.repo != nil {
		m.overlay = overlayNone
		m.flash = "Imported " + msg.repo.FullName + ", analysis " + string(msg.repo.AnalysisStatus)
		m.err = ""
		m.setRepos(m.deps.Tracker.Repositories())
		cmd := m.startPolling()
		return m, cmd
	}
	if m.overlay != overlayPicker {
		return m, nil
	}
	m.refreshPick()
	if msg.err != nil && m.pick.Err == "" {
		m.pick.Err = api.Message(msg.err, api.GenericMessage, "github_repo_url")
	}
	return m, nil
}

func (m Model) updatePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.filtering {
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	if m.filtering {
		switch key.String() {
		case "esc", "enter":
			m.filtering = false
			m.filter.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.deps.Picker.SetQuery(m.filter.Value())
		m.refreshPick()
		return m, cmd
	}

	p := m.deps.Picker
	busy := m.pick.State == picker.StateLoading || m.pick.State == picker.StateSubmitting

	switch key.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "q":
		m.closePicker()
		return m, nil
	case "/":
		m.filtering = true
		cmd := m.filter.Focus()
		return m, cmd
	case "up", "k":
		if m.pickCursor > 0 {
			m.pickCursor--
		}
	case "down", "j":
		if m.pickCursor < len(m.pick.Items)-1 {
			m.pickCursor++
		}
	case " ", "x":
		if m.pickCursor < len(m.pick.Items) {
			p.Select(m.pick.Items[m.pickCursor])
			m.refreshPick()
		}
	case "right", "l", "n":
		if !busy && m.pick.HasNext {
			m.pickCursor = 0
			m.pick.State = picker.StateLoading
			return m, m.pickerCmd(p.NextPage)
		}
	case "left", "h", "p":
		if !busy && m.pick.HasPrevious {
			m.pickCursor = 0
			m.pick.State = picker.StateLoading
			return m, m.pickerCmd(p.PrevPage)
		}
	case "r":
		if !busy {
			m.pick.State = picker.StateLoading
			return m, m.pickerCmd(func(ctx context.Context) error { return p.LoadPage(ctx, max(m.pick.Page, 1)) })
		}
	case "enter":
		if p.CanConfirm() {
			m.pick.State = picker.StateSubmitting
			m.pick.Err = ""
			return m, m.confirmPickCmd()
		}
	}
	return m, nil
}

func (m Model) renderPickerOver(base string) string {
	v := m.pick
	var b strings.Builder
	b.WriteString(boldStyle.Render("Import from GitHub") + "\n\n")

	filterLine := m.filter.View()
	if !m.filtering && v.Query == "" {
		filterLine = dimStyle.Render("/ to filter this page")
	}
	b.WriteString(filterLine + "\n\n")

	switch {
	case v.State == picker.StateLoading:
		b.WriteString(m.spinner.View() + " Loading your repositories…\n")
	case len(v.Items) == 0 && v.Query != "":
		b.WriteString(dimStyle.Render("Nothing on this page matches.") + "\n")
	case len(v.Items) == 0 && v.State == picker.StateLoaded:
		b.WriteString(dimStyle.Render("No repositories found.") + "\n")
	default:
		for i, c := range v.Items {
			cursor := "  "
			if i == m.pickCursor {
				cursor = "> "
			}
			mark := "[ ]"
			if v.Selected != nil && picker.SameCandidate(*v.Selected, c) {
				mark = okStyle.Render("[x]")
			}
			line := fmt.Sprintf("%s%s %s", cursor, mark, truncate(c.FullName, 34))
			meta := []string{}
			if c.PrimaryLanguage != "" {
				meta = append(meta, c.PrimaryLanguage)
			}
			if c.Private {
				meta = append(meta, "private")
			}
			meta = append(meta, fmt.Sprintf("★%d", c.StarCount))
			b.WriteString(line + "  " + dimStyle.Render(strings.Join(meta, " · ")) + "\n")
		}
	}

	b.WriteString("\n")
	nav := fmt.Sprintf("Page %d", max(v.Page, 1))
	if v.TotalCount > 0 {
		nav += fmt.Sprintf(" · %d repositories", v.TotalCount)
	}
	b.WriteString(dimStyle.Render(nav) + "\n")
	if v.Selected != nil {
		b.WriteString("Selected: " + v.Selected.FullName + "\n")
	}
	if v.State == picker.StateSubmitting {
		b.WriteString(m.spinner.View() + " Importing…\n")
	}
	if v.Err != "" {
		b.WriteString("\n" + errStyle.Render(v.Err) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("space select · ←/→ page · Enter import · Esc close"))

	modal := modalStyle.Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal,
		lipgloss.WithWhitespaceBackground(lipgloss.Color("0")),
	)
}
