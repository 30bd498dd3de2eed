package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"repolens/internal/api"
	"repolens/internal/tracker"
)

// pollState ties one poller run to the dashboard. gen tells messages of a
// torn-down run apart from the current one.
type pollState struct {
	gen     int
	running bool
	cancel  context.CancelFunc
	ctx     context.Context
	updates <-chan tracker.Snapshot
	lastErr string
}

type pollMsg struct {
	gen  int
	snap tracker.Snapshot
}

type pollStoppedMsg struct {
	gen int
	err error
}

// startPolling begins a poller run when a repository is still being analysed
// and none is running.
func (m *Model) startPolling() tea.Cmd {
	if m.poll.running || !m.deps.Tracker.HasActive() {
		return nil
	}
	p := m.deps.Poller()
	ctx, cancel := context.WithCancel(m.ctx)
	m.poll = pollState{
		gen:     m.poll.gen + 1,
		running: true,
		cancel:  cancel,
		ctx:     ctx,
		updates: p.Updates(),
	}
	gen := m.poll.gen
	logger := m.logger

	run := func() tea.Msg {
		err := p.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Info("status polling stopped", zap.Error(err))
		}
		return pollStoppedMsg{gen: gen, err: err}
	}
	return tea.Batch(run, waitForPoll(ctx, gen, m.poll.updates))
}

// stopPolling cancels the current run. Its remaining messages are ignored.
func (m *Model) stopPolling() {
	if m.poll.cancel != nil {
		m.poll.cancel()
	}
	m.poll = pollState{gen: m.poll.gen + 1}
}

func waitForPoll(ctx context.Context, gen int, ch <-chan tracker.Snapshot) tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-ch:
			return pollMsg{gen: gen, snap: s}
		case <-ctx.Done():
			return nil
		}
	}
}

func (m Model) handlePoll(msg pollMsg) (tea.Model, tea.Cmd) {
	if msg.gen != m.poll.gen {
		return m, nil
	}
	s := msg.snap
	m.setRepos(s.Repositories)

	if s.Err != nil {
		if errors.Is(s.Err, api.ErrAuth) {
			m.expire()
			return m, nil
		}
		m.poll.lastErr = api.Message(s.Err, s.Err.Error())
	} else {
		m.poll.lastErr = ""
	}

	if s.Done {
		m.poll.running = false
		m.poll.cancel()
		return m, nil
	}
	return m, waitForPoll(m.poll.ctx, m.poll.gen, m.poll.updates)
}
