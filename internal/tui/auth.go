package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	fieldEmail = iota
	fieldUsername
	fieldPassword
	fieldConfirm
)

// authForm is the sign-in and sign-up screen.
type authForm struct {
	signup     bool
	inputs     []textinput.Model
	focused    int
	submitting bool
	err        string
}

func newAuthForm() authForm {
	mk := func(placeholder string, secret bool) textinput.Model {
		ti := textinput.New()
		ti.Placeholder = placeholder
		ti.CharLimit = 128
		if secret {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '•'
		}
		return ti
	}
	f := authForm{inputs: []textinput.Model{
		fieldEmail:    mk("you@example.com", false),
		fieldUsername: mk("username", false),
		fieldPassword: mk("password", true),
		fieldConfirm:  mk("password again", true),
	}}
	f.reset()
	return f
}

// visible lists the inputs of the current mode in tab order.
func (f authForm) visible() []int {
	if f.signup {
		return []int{fieldEmail, fieldUsername, fieldPassword, fieldConfirm}
	}
	return []int{fieldEmail, fieldPassword}
}

func (f *authForm) reset() {
	for i := range f.inputs {
		f.inputs[i].Reset()
		f.inputs[i].Blur()
	}
	f.focused = 0
	f.submitting = false
	f.err = ""
	f.inputs[f.visible()[0]].Focus()
}

func (f *authForm) focus() tea.Cmd {
	for i := range f.inputs {
		f.inputs[i].Blur()
	}
	f.inputs[f.visible()[f.focused]].Focus()
	return textinput.Blink
}

func (f *authForm) move(delta int) tea.Cmd {
	n := len(f.visible())
	f.focused = (f.focused + delta + n) % n
	return f.focus()
}

func (f authForm) value(field int) string {
	return f.inputs[field].Value()
}

func (m Model) submitAuthCmd() tea.Cmd {
	f := m.auth
	email := strings.TrimSpace(f.value(fieldEmail))
	if !f.signup {
		return func() tea.Msg {
			user, err := m.deps.Session.Login(m.ctx, email, f.value(fieldPassword))
			return authDoneMsg{user: user, err: err}
		}
	}
	username := strings.TrimSpace(f.value(fieldUsername))
	return func() tea.Msg {
		user, err := m.deps.Session.Signup(m.ctx, email, username, f.value(fieldPassword), f.value(fieldConfirm))
		return authDoneMsg{user: user, err: err}
	}
}

func (m Model) updateAuth(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "down":
			cmd := m.auth.move(1)
			return m, cmd
		case "shift+tab", "up":
			cmd := m.auth.move(-1)
			return m, cmd
		case "ctrl+s":
			m.auth.signup = !m.auth.signup
			m.auth.focused = 0
			m.auth.err = ""
			cmd := m.auth.focus()
			return m, cmd
		case "enter":
			if m.auth.submitting {
				return m, nil
			}
			if m.auth.focused < len(m.auth.visible())-1 {
				cmd := m.auth.move(1)
				return m, cmd
			}
			for _, i := range m.auth.visible() {
				if strings.TrimSpace(m.auth.value(i)) == "" {
					m.auth.err = "Please fill in every field."
					return m, nil
				}
			}
			m.auth.err = ""
			m.auth.submitting = true
			return m, m.submitAuthCmd()
		}
	}

	idx := m.auth.visible()[m.auth.focused]
	var cmd tea.Cmd
	m.auth.inputs[idx], cmd = m.auth.inputs[idx].Update(msg)
	return m, cmd
}

func (m Model) viewAuth() string {
	f := m.auth
	title := "Sign in"
	toggle := "ctrl+s create an account"
	if f.signup {
		title = "Create account"
		toggle = "ctrl+s sign in instead"
	}

	labels := map[int]string{
		fieldEmail:    "Email",
		fieldUsername: "Username",
		fieldPassword: "Password",
		fieldConfirm:  "Confirm password",
	}

	var b strings.Builder
	b.WriteString(boldStyle.Render(title) + "\n\n")
	for _, i := range f.visible() {
		b.WriteString(labelStyle.Render(labels[i]) + "\n")
		b.WriteString(f.inputs[i].View() + "\n\n")
	}
	if f.submitting {
		b.WriteString(m.spinner.View() + " Signing in…\n")
	}
	if f.err != "" {
		b.WriteString(errStyle.Render(f.err) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("Tab next field · Enter submit · "+toggle+" · Esc quit"))

	modal := modalStyle.Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal)
}
