package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Snapshot is one reading shown by the watch view. Powers are in kW;
// positive battery power means discharging, positive site power means import.
type Snapshot struct {
	Charge       float64
	GridStatus   string
	SitePower    float64
	SolarPower   float64
	BatteryPower float64
	LoadPower    float64
	TakenAt      time.Time
}

// FetchFunc reads a fresh Snapshot from the gateway
type FetchFunc func(ctx context.Context) (*Snapshot, error)

// Message types for async operations
type snapshotMsg struct {
	snapshot *Snapshot
	err      error
}

// refreshTickMsg carries the generation it was scheduled for; ticks from
// an older generation are dropped so only one poll chain is ever live.
type refreshTickMsg struct {
	gen int
}

// watchKeyMap defines key bindings for the watch screen
type watchKeyMap struct {
	Refresh key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Refresh, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Refresh, k.Quit}}
}

// WatchModel is a Bubble Tea model that polls the gateway and shows live power flow
type WatchModel struct {
	Host     string
	Interval time.Duration

	fetch    FetchFunc
	ctx      context.Context
	last     *Snapshot
	lastErr  error
	loading  bool
	quitting bool
	tickGen  int
	width    int

	spinner spinner.Model
	charge  progress.Model
	help    help.Model
	keys    watchKeyMap
}

// NewWatchModel creates a watch model polling fetch every interval
func NewWatchModel(ctx context.Context, host string, interval time.Duration, fetch FetchFunc) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	bar := progress.New(progress.WithSolidFill(string(SuccessColor)), progress.WithoutPercentage())
	bar.Width = 40

	return WatchModel{
		Host:     host,
		Interval: interval,
		fetch:    fetch,
		ctx:      ctx,
		loading:  true,
		width:    GetTerminalWidth(),
		spinner:  s,
		charge:   bar,
		help:     help.New(),
		keys: watchKeyMap{
			Refresh: key.NewBinding(
				key.WithKeys("r"),
				key.WithHelp("r", "refresh"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "esc", "ctrl+c"),
				key.WithHelp("q", "quit"),
			),
		},
	}
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetchCmd())
}

func (m WatchModel) fetchCmd() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.fetch(m.ctx)
		return snapshotMsg{snapshot: snap, err: err}
	}
}

func (m WatchModel) scheduleRefresh() tea.Cmd {
	gen := m.tickGen
	return tea.Tick(m.Interval, func(time.Time) tea.Msg {
		return refreshTickMsg{gen: gen}
	})
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Refresh):
			if m.loading {
				return m, nil
			}
			m.loading = true
			m.tickGen++
			return m, m.fetchCmd()
		}

	case refreshTickMsg:
		if msg.gen != m.tickGen || m.loading {
			return m, nil
		}
		m.loading = true
		return m, m.fetchCmd()

	case snapshotMsg:
		m.loading = false
		if msg.err != nil {
			m.lastErr = msg.err
		} else {
			m.lastErr = nil
			m.last = msg.snapshot
		}
		m.tickGen++
		return m, m.scheduleRefresh()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// Last returns the most recent successful snapshot
func (m WatchModel) Last() *Snapshot {
	return m.last
}

// Err returns the error of the most recent fetch, if it failed
func (m WatchModel) Err() error {
	return m.lastErr
}

// View implements tea.Model
func (m WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	title := HeaderTitleStyle.Render("POWERWALL " + m.Host)
	if m.loading {
		title += " " + m.spinner.View()
	}
	b.WriteString(title + "\n\n")

	if m.last == nil {
		if m.lastErr != nil {
			b.WriteString(ErrorMessageStyle.Render("  "+m.lastErr.Error()) + "\n")
		} else {
			b.WriteString(HeaderCommandStyle.Render("Reading gateway...") + "\n")
		}
		b.WriteString("\n  " + m.help.View(m.keys) + "\n")
		return b.String()
	}

	s := m.last
	b.WriteString(fmt.Sprintf("  %s %s %5.1f%%\n\n",
		ResultKeyStyle.Render("Charge"),
		m.charge.ViewAs(clampPercent(s.Charge/100)),
		s.Charge))

	b.WriteString(flowLine("Solar", s.SolarPower, SolarColor))
	b.WriteString(flowLine("Battery", s.BatteryPower, SuccessColor))
	b.WriteString(flowLine("Grid", s.SitePower, GridColor))
	b.WriteString(flowLine("Home", s.LoadPower, TextColor))
	b.WriteString("\n")

	b.WriteString(fmt.Sprintf("  %s %s\n", ResultKeyStyle.Render("Grid status"), ResultValueStyle.Render(s.GridStatus)))
	b.WriteString(fmt.Sprintf("  %s %s\n", ResultKeyStyle.Render("Updated"), ResultValueStyle.Render(s.TakenAt.Format("15:04:05"))))

	if m.lastErr != nil {
		b.WriteString("\n" + ErrorMessageStyle.Render("  Last refresh failed: "+m.lastErr.Error()) + "\n")
	}

	b.WriteString("\n  " + m.help.View(m.keys) + "\n")
	return b.String()
}

func flowLine(label string, kw float64, color lipgloss.Color) string {
	value := lipgloss.NewStyle().Foreground(color).Bold(true).Render(fmt.Sprintf("%7.2f kW", kw))
	return fmt.Sprintf("  %s %s\n", ResultKeyStyle.Render(label), value)
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// RunWatch runs the watch view until the user quits or ctx is cancelled
func RunWatch(ctx context.Context, host string, interval time.Duration, fetch FetchFunc) error {
	p := tea.NewProgram(NewWatchModel(ctx, host, interval, fetch), tea.WithContext(ctx), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
