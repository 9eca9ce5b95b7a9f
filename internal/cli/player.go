package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"golang.org/x/term"

	"github.com/raphaelgruber/portal-go/internal/client"
	"github.com/raphaelgruber/portal-go/internal/playback"
	"github.com/raphaelgruber/portal-go/internal/server"
)

const actionTimeout = 10 * time.Second

// eventMsg carries one session event from the watch stream.
type eventMsg playback.Event

// streamEndMsg is sent when the watch stream stops.
type streamEndMsg struct{ err error }

// actionDoneMsg carries the result of a key-triggered action.
type actionDoneMsg struct {
	view *server.SessionView
	err  error
}

// playerModel is the bubbletea model for following a session.
type playerModel struct {
	client   *client.Client
	id       string
	topic    string
	snap     playback.Snapshot
	events   <-chan tea.Msg
	progress progress.Model
	theme    Theme
	status   string
	done     bool
	quitting bool
	err      error
}

func newPlayerModel(c *client.Client, view *server.SessionView, events <-chan tea.Msg) playerModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)
	return playerModel{
		client:   c,
		id:       view.ID,
		topic:    view.Topic,
		snap:     view.Snapshot,
		events:   events,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init starts listening for session events.
func (m playerModel) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.events),
		m.progress.Init(),
	)
}

// Update handles key presses, stream events and action results.
func (m playerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "space", " ":
			return m, m.action("toggle", server.ActionRequest{})
		case "left":
			return m, m.action("skip", server.ActionRequest{Direction: "back"})
		case "right":
			return m, m.action("skip", server.ActionRequest{Direction: "forward"})
		case "e":
			m.status = "extending..."
			return m, m.action("extend", server.ActionRequest{})
		}

	case eventMsg:
		m.snap = msg.Snapshot
		if m.snap.State == playback.StateError {
			m.done = true
			m.err = fmt.Errorf("%s", m.snap.Error)
			return m, tea.Quit
		}
		return m, waitForEvent(m.events)

	case streamEndMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit

	case actionDoneMsg:
		m.status = ""
		if msg.err != nil {
			m.status = msg.err.Error()
		} else if msg.view != nil && msg.view.Panel != nil {
			m.status = msg.view.Panel.Message
		}
		return m, nil

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the player.
func (m playerModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m playerModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}

	title := m.snap.Title
	if title == "" {
		title = m.topic
	}
	state := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.snap.State))
	out := fmt.Sprintf("%s %s\n", state, m.theme.headingStyle().Render(title))

	if m.snap.DurationSeconds > 0 {
		pct := m.snap.PositionSeconds / m.snap.DurationSeconds
		out += fmt.Sprintf("%s %s / %s\n", m.progress.ViewAs(pct),
			clock(m.snap.PositionSeconds), clock(m.snap.DurationSeconds))
	}
	if m.snap.Caption != "" {
		out += "\n  " + m.snap.Caption + "\n"
	}
	if m.snap.Extending {
		out += m.theme.hintStyle().Render("\nextending...") + "\n"
	} else if m.status != "" {
		out += m.theme.errorStyle().Render("\n"+m.status) + "\n"
	}

	out += "\n" + m.theme.hintStyle().Render("space play/pause • ←/→ skip • e extend • q quit") + "\n"
	return out
}

func (m playerModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nSession %s keeps running.\nUse 'portal podcast watch %s' to reattach.\n", m.id, m.id)
		return m.theme.hintStyle().Render(msg)
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Episode failed: %s\n", m.err))
	}
	return m.theme.completedStyle().Render("✓ Session closed\n")
}

// action posts a playback action without blocking Update.
func (m playerModel) action(name string, req server.ActionRequest) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()

		view, err := m.client.Action(ctx, m.id, name, req)
		return actionDoneMsg{view: view, err: err}
	}
}

// waitForEvent reads the next message off the stream channel.
func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return streamEndMsg{}
		}
		return msg
	}
}

// streamEvents pumps session events into ch until the stream stops.
func streamEvents(ctx context.Context, c *client.Client, id string, ch chan<- tea.Msg) {
	defer close(ch)
	err := c.WatchSession(ctx, id, func(ev playback.Event) error {
		select {
		case ch <- eventMsg(ev):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		select {
		case ch <- streamEndMsg{err: err}:
		case <-ctx.Done():
		}
	}
}

// RunPlayer follows a session. On a terminal it runs the interactive
// player; otherwise it prints one line per state or caption change.
// Quitting the player leaves the session running on the server.
func RunPlayer(c *client.Client, view *server.SessionView) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return followPlain(ctx, c, view)
	}

	events := make(chan tea.Msg)
	go streamEvents(ctx, c, view.ID, events)

	p := tea.NewProgram(newPlayerModel(c, view, events))
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("player UI error: %w", err)
	}

	if m, ok := finalModel.(playerModel); ok && !m.quitting && m.err != nil {
		return m.err
	}
	return nil
}

// followPlain prints state and caption changes until the session
// closes, fails or ends.
func followPlain(ctx context.Context, c *client.Client, view *server.SessionView) error {
	var last playback.Snapshot
	err := c.WatchSession(ctx, view.ID, func(ev playback.Event) error {
		s := ev.Snapshot
		if s.State != last.State {
			fmt.Fprintf(stdout, "[%s] %s\n", s.State, s.Title)
		}
		if s.Caption != "" && s.Caption != last.Caption {
			fmt.Fprintf(stdout, "%s  %s\n", clock(s.PositionSeconds), s.Caption)
		}
		last = s
		switch s.State {
		case playback.StateError:
			return fmt.Errorf("episode failed: %s", s.Error)
		case playback.StateEnded:
			return errStopWatching
		}
		return nil
	})
	if errors.Is(err, errStopWatching) {
		return nil
	}
	return err
}

var errStopWatching = errors.New("stop watching")
