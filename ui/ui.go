// Package ui provides the terminal front end of sovits-player.
package ui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/sovits-player/internal/session"
	"github.com/dgnsrekt/sovits-player/internal/tts"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
)

const ellipsis = "…"

// Controller is the part of the session the UI drives.
type Controller interface {
	Toggle(ctx context.Context, tasks []ttypes.Task) error
	Regenerate(ctx context.Context, tasks []ttypes.Task) error
	Replay() error
	Stop()
	CanReplay() bool
	Snapshot() session.State
}

// TaskSource returns the tasks for the current text.
type TaskSource func() []ttypes.Task

// NewProgram returns a new Tea program.
func NewProgram(ctx context.Context, cfg Config, ctrl Controller, tasks TaskSource, speed *tts.SpeedController) *tea.Program {
	log.Debug("Starting ui", "title", cfg.Title, "watching", cfg.Watching)

	var opts []tea.ProgramOption
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	return tea.NewProgram(newModel(ctx, cfg, ctrl, tasks, speed), opts...)
}

// Hooks returns session callbacks that forward events to p.
func Hooks(p *tea.Program) (notify func(session.Notification), phase func(ttypes.Phase), clip func(int, *ttypes.PlaybackItem)) {
	notify = func(n session.Notification) {
		p.Send(noticeMsg{Notification: n, at: time.Now()})
	}
	phase = func(ph ttypes.Phase) {
		p.Send(phaseMsg(ph))
	}
	clip = func(index int, item *ttypes.PlaybackItem) {
		p.Send(clipMsg{index: index, item: item})
	}
	return notify, phase, clip
}

// TextChanged tells the UI that the narrated text was reloaded.
type TextChanged struct{}

type (
	phaseMsg ttypes.Phase
	clipMsg  struct {
		index int
		item  *ttypes.PlaybackItem
	}
	noticeMsg struct {
		session.Notification
		at time.Time
	}
	actionMsg struct {
		action string
		err    error
	}
)

type notice struct {
	level   session.Level
	message string
	at      time.Time
}

type model struct {
	cfg   Config
	ctx   context.Context
	ctrl  Controller
	tasks TaskSource
	speed *tts.SpeedController

	spinner spinner.Model
	width   int

	phase    ttypes.Phase
	index    int
	total    int
	current  *ttypes.PlaybackItem
	reloaded time.Time
	notices  []notice
}

func newModel(ctx context.Context, cfg Config, ctrl Controller, tasks TaskSource, speed *tts.SpeedController) model {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 5
	}
	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = spinnerStyle

	state := ctrl.Snapshot()
	return model{
		cfg:     cfg,
		ctx:     ctx,
		ctrl:    ctrl,
		tasks:   tasks,
		speed:   speed,
		spinner: sp,
		width:   80,
		phase:   state.Phase,
		index:   state.PlaybackIndex,
		total:   state.QueueLength,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.toggle())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case phaseMsg:
		m.phase = ttypes.Phase(msg)
		state := m.ctrl.Snapshot()
		m.total = state.QueueLength
		if !m.phase.Active() {
			m.current = nil
		}
		return m, nil

	case clipMsg:
		m.index = msg.index
		m.current = msg.item
		m.total = m.ctrl.Snapshot().QueueLength
		return m, nil

	case noticeMsg:
		m.addNotice(msg.Level, msg.Message, msg.at)
		return m, nil

	case actionMsg:
		// Session preconditions notify on their own
		if msg.err != nil && !isNotified(msg.err) {
			m.addNotice(session.LevelWarn, msg.err.Error(), time.Now())
		}
		return m, nil

	case TextChanged:
		m.reloaded = time.Now()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.ctrl.Stop()
		return m, tea.Quit

	case " ", "p", "enter":
		return m, m.toggle()

	case "s":
		m.ctrl.Stop()
		return m, nil

	case "r":
		return m, m.action("replay", m.ctrl.Replay)

	case "g":
		return m, m.action("regenerate", func() error {
			return m.ctrl.Regenerate(m.ctx, m.tasks())
		})

	case "+", "=", "right", "l":
		m.speed.Faster()
		return m, nil

	case "-", "_", "left", "h":
		m.speed.Slower()
		return m, nil

	case "0":
		m.speed.Reset()
		return m, nil
	}
	return m, nil
}

func (m model) toggle() tea.Cmd {
	return m.action("toggle", func() error {
		return m.ctrl.Toggle(m.ctx, m.tasks())
	})
}

// action runs fn off the update loop; starting a session blocks for the
// whole generation.
func (m model) action(name string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{action: name, err: fn()}
	}
}

func (m *model) addNotice(level session.Level, message string, at time.Time) {
	m.notices = append(m.notices, notice{level: level, message: message, at: at})
	if extra := len(m.notices) - m.cfg.HistorySize; extra > 0 {
		m.notices = m.notices[extra:]
	}
}

func isNotified(err error) bool {
	var te *tts.TTSError
	return errors.As(err, &te)
}
