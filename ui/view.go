package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dgnsrekt/sovits-player/internal/session"
	"github.com/dgnsrekt/sovits-player/internal/ttypes"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#5A56E0")).
			Padding(0, 1)

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AAFF"))
	counterStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	speedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
	sourceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	separator    = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render(" │ ")
)

func (m model) View() string {
	var b strings.Builder

	b.WriteString(m.header())
	b.WriteString("\n\n")

	if line := m.nowPlaying(); line != "" {
		b.WriteString(line)
		b.WriteString("\n\n")
	}

	for _, n := range m.notices {
		b.WriteString(m.renderNotice(n))
		b.WriteRune('\n')
	}
	if len(m.notices) > 0 {
		b.WriteRune('\n')
	}

	b.WriteString(m.help())
	b.WriteRune('\n')
	return b.String()
}

func (m model) header() string {
	title := "sovits-player"
	if m.cfg.Title != "" {
		title += " · " + m.cfg.Title
	}

	parts := []string{titleStyle.Render(title), m.phaseStatus()}
	if m.total > 0 && (m.phase == ttypes.PhasePlaying || m.phase == ttypes.PhasePaused) {
		parts = append(parts, counterStyle.Render(fmt.Sprintf("%d/%d", m.index+1, m.total)))
	}
	parts = append(parts, speedStyle.Render(m.speed.String()))
	if m.cfg.Watching {
		watch := "watching"
		if !m.reloaded.IsZero() {
			watch += ", reloaded " + humanize.Time(m.reloaded)
		}
		parts = append(parts, counterStyle.Render(watch))
	}
	return strings.Join(parts, separator)
}

func (m model) phaseStatus() string {
	icon := phaseIcon(m.phase)
	if m.phase == ttypes.PhaseGenerating && m.cfg.ShowSpinner {
		icon = m.spinner.View()
	}
	style := lipgloss.NewStyle().Foreground(phaseColor(m.phase))
	return style.Render(fmt.Sprintf("%s %s", icon, m.phase))
}

func (m model) nowPlaying() string {
	if m.current == nil || !m.phase.Active() {
		return ""
	}
	task := m.current.Task
	source := task.Source
	if source == "" {
		source = task.VoiceID
	}
	label := sourceStyle.Render(source)
	cached := ""
	if m.current.FromCache {
		cached = counterStyle.Render(" (cached)")
	}

	room := m.width - lipgloss.Width(label) - lipgloss.Width(cached) - 2
	if room < 10 {
		room = 10
	}
	text := strings.Join(strings.Fields(task.Text), " ")
	return label + ": " + truncate.StringWithTail(text, uint(room), ellipsis) + cached //nolint:gosec
}

func (m model) renderNotice(n notice) string {
	style := lipgloss.NewStyle().Foreground(levelColor(n.level))
	when := timeStyle.Render(humanize.Time(n.at))
	room := m.width - lipgloss.Width(when) - 1
	if room < 10 {
		room = 10
	}
	return style.Render(truncate.StringWithTail(n.message, uint(room), ellipsis)) + " " + when //nolint:gosec
}

func (m model) help() string {
	keys := []string{"space: play/pause", "s: stop"}
	if !m.phase.Active() {
		if m.ctrl.CanReplay() {
			keys = append(keys, "r: replay")
		}
		keys = append(keys, "g: regenerate")
	}
	keys = append(keys, "+/-: speed", "0: reset speed", "q: quit")
	return helpStyle.Render(strings.Join(keys, " • "))
}

func phaseIcon(p ttypes.Phase) string {
	switch p {
	case ttypes.PhaseGenerating:
		return "⟳"
	case ttypes.PhasePlaying:
		return "▶"
	case ttypes.PhasePaused:
		return "⏸"
	case ttypes.PhaseStopped:
		return "■"
	default:
		return "○"
	}
}

func phaseColor(p ttypes.Phase) lipgloss.Color {
	switch p {
	case ttypes.PhaseGenerating:
		return lipgloss.Color("#00AAFF")
	case ttypes.PhasePlaying:
		return lipgloss.Color("#00FF00")
	case ttypes.PhasePaused:
		return lipgloss.Color("#FFFF00")
	case ttypes.PhaseStopped:
		return lipgloss.Color("#888888")
	default:
		return lipgloss.Color("#666666")
	}
}

func levelColor(l session.Level) lipgloss.Color {
	switch l {
	case session.LevelError:
		return lipgloss.Color("#FF0000")
	case session.LevelWarn:
		return lipgloss.Color("#FF8800")
	default:
		return lipgloss.Color("#AAAAAA")
	}
}
