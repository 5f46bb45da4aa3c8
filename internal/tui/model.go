package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/vitaminmoo/gattprov/internal/provision"
	"github.com/vitaminmoo/gattprov/internal/store"
)

const (
	maxDiagnostics = 6
	maxTableRows   = 12
)

// SaveFunc stores a finished table and returns its hash.
type SaveFunc func(provision.Result) (string, error)

// Model is the Bubbletea model for a provisioning run.
type Model struct {
	// Run
	name     string
	service  string
	total    int
	started  time.Time
	finished time.Time
	progress provision.Progress
	result   *provision.Result
	err      error
	done     bool

	// Diagnostics and record
	diagnostics []string
	saving      bool
	savedHash   string
	savedAt     time.Time
	saveErr     error

	events <-chan tea.Msg
	save   SaveFunc
	width  int

	// Components
	keys    KeyMap
	help    help.Model
	spinner spinner.Model
	bar     ProgressState
	styles  Styles
}

// --- Custom messages for async operations ---

// progressMsg carries a machine snapshot after each processed event.
type progressMsg struct {
	progress provision.Progress
}

// logMsg carries a log entry raised during the run.
type logMsg struct {
	level   logrus.Level
	message string
	fields  logrus.Fields
}

// doneMsg signals the dispatcher returned.
type doneMsg struct {
	result provision.Result
	err    error
}

// savedMsg signals a save attempt finished.
type savedMsg struct {
	hash string
	err  error
}

// NewModel returns a model for the run described by initial. events is
// fed by the dispatcher goroutine.
func NewModel(initial provision.Result, total int, events <-chan tea.Msg, save SaveFunc) Model {
	h := help.New()
	h.ShowAll = false // Use ShortHelp for horizontal layout

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	bar := NewProgressState()
	bar.Start("registering app")

	return Model{
		name:     initial.Name,
		service:  initial.ServiceUUID.String(),
		total:    total,
		started:  time.Now(),
		events:   events,
		save:     save,
		progress: provision.Progress{Total: total},
		keys:     DefaultKeyMap(),
		help:     h,
		spinner:  s,
		bar:      bar,
		styles:   DefaultStyles(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.events), m.spinner.Tick)
}

// Done reports whether the run finished.
func (m Model) Done() bool { return m.done }

// Result returns the final table and run error once the run finished.
func (m Model) Result() (provision.Result, error) {
	if m.result == nil {
		return provision.Result{}, m.err
	}
	return *m.result, m.err
}

// SavedHash returns the hash of the saved record, if any.
func (m Model) SavedHash() string { return m.savedHash }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.bar.SetWidth(msg.Width - 8)
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		m.progress = msg.progress
		m.bar.Update(msg.progress.Fraction(), describe(msg.progress))
		return m, waitForEvent(m.events)

	case logMsg:
		m.diagnostics = append(m.diagnostics, m.renderDiagnostic(msg))
		if len(m.diagnostics) > maxDiagnostics {
			m.diagnostics = m.diagnostics[len(m.diagnostics)-maxDiagnostics:]
		}
		return m, waitForEvent(m.events)

	case doneMsg:
		m.done = true
		m.finished = time.Now()
		m.result = &msg.result
		m.err = msg.err
		if msg.err != nil {
			m.bar.Cancel("failed: " + msg.err.Error())
		} else {
			m.bar.Complete(fmt.Sprintf("registered %d characteristics", len(msg.result.Characteristics)))
		}
		return m, nil

	case savedMsg:
		m.saving = false
		m.saveErr = msg.err
		if msg.err == nil {
			m.savedHash = msg.hash
			m.savedAt = time.Now()
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.Save):
		if !m.done || m.err != nil || m.save == nil || m.saving || m.savedHash != "" {
			return m, nil
		}
		m.saving = true
		return m, saveCmd(m.save, *m.result)
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.renderTitleBar())
	b.WriteString("\n\n")

	b.WriteString(m.renderField("Device", m.name))
	b.WriteString(m.renderField("Service", m.service))
	b.WriteString(m.renderField("State", m.progress.State.String()))
	b.WriteString(m.renderField("Characteristics", fmt.Sprintf("%d/%d", m.progress.Cursor, m.total)))
	if m.progress.Cursor > 0 || m.progress.State == provision.StateAddingCharacteristic {
		b.WriteString(m.renderField("Current UUID", m.progress.UUID.String()))
	}
	if m.progress.Awaiting != "" && !m.done {
		b.WriteString(m.renderField("Awaiting", m.progress.Awaiting))
	}
	b.WriteString(m.renderStats())
	b.WriteString(m.renderField("Elapsed", m.elapsed().Round(time.Millisecond).String()))
	b.WriteString("\n")
	b.WriteString(m.bar.View())
	b.WriteString("\n")

	if m.done && m.result != nil && len(m.result.Characteristics) > 0 {
		b.WriteString("\n")
		b.WriteString(m.renderTable(m.result.Characteristics))
		b.WriteString("\n")
	}

	if len(m.diagnostics) > 0 {
		b.WriteString("\n")
		b.WriteString(m.styles.Subtitle.Render("Diagnostics"))
		b.WriteString("\n")
		for _, d := range m.diagnostics {
			b.WriteString(d)
			b.WriteString("\n")
		}
	}

	if status := m.renderRecordStatus(); status != "" {
		b.WriteString("\n")
		b.WriteString(status)
		b.WriteString("\n")
	}

	helpView := m.styles.Help.Render(m.help.View(m.keys))

	return m.styles.App.Render(
		b.String() + "\n" + helpView,
	)
}

func (m Model) elapsed() time.Duration {
	if m.done {
		return m.finished.Sub(m.started)
	}
	return time.Since(m.started)
}

func (m Model) renderTitleBar() string {
	var parts []string

	parts = append(parts, m.styles.Title.Render("gattprov"))

	switch {
	case !m.done:
		parts = append(parts, m.spinner.View()+" "+m.styles.Warning.Render("Provisioning..."))
	case m.err != nil:
		parts = append(parts, m.styles.Error.Render("✗ Failed"))
	default:
		parts = append(parts, m.styles.Success.Render("✓ Complete"))
	}

	return strings.Join(parts, "  ")
}

func (m Model) renderStats() string {
	st := m.progress.Stats
	if m.result != nil {
		st = m.result.Stats
	}
	render := func(n uint64) string {
		s := humanize.Comma(int64(n))
		if n > 0 {
			return m.styles.Warning.Render(s)
		}
		return m.styles.Value.Render(s)
	}
	return m.styles.Label.Render("Diagnostics:") + " " +
		m.styles.StatusKey.Render("mismatches") + render(st.Mismatches) + "  " +
		m.styles.StatusKey.Render("soft failures") + render(st.SoftFailures) + "  " +
		m.styles.StatusKey.Render("ignored") + render(st.Ignored) + "  " +
		m.styles.StatusKey.Render("gap") + render(st.GapEvents) + "  " +
		m.styles.StatusKey.Render("saturated") + render(st.Saturations) + "\n"
}

// renderTable shows the first rows of the final table. Rows whose handles
// differ from the computed layout are highlighted.
func (m Model) renderTable(chars []provision.Characteristic) string {
	shown := chars
	if len(shown) > maxTableRows {
		shown = shown[:maxTableRows]
	}

	rows := make([][]string, 0, len(shown))
	for _, c := range shown {
		rows = append(rows, []string{
			fmt.Sprintf("%d", c.Index),
			c.UUID.String(),
			fmt.Sprintf("%#04x", c.ValueHandle),
			fmt.Sprintf("%#04x", c.DescriptorHandle),
		})
	}

	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers("#", "UUID", "VALUE", "CCCD").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return m.styles.TableHeader
			}
			if row >= 0 && row < len(shown) && (shown[row].Mismatched() || shown[row].Failed()) {
				return m.styles.Warning
			}
			return m.styles.TableRow
		})

	out := t.String()
	if len(chars) > len(shown) {
		out += "\n" + m.styles.Muted.Render(fmt.Sprintf("… %d more", len(chars)-len(shown)))
	}
	return out
}

func (m Model) renderRecordStatus() string {
	switch {
	case m.saving:
		return m.spinner.View() + " " + m.styles.Muted.Render("Saving record...")
	case m.saveErr != nil:
		return m.styles.Error.Render("Save failed: " + m.saveErr.Error())
	case m.savedHash != "":
		return m.styles.Success.Render("Saved to store: "+store.ShortHash(m.savedHash)) + " " +
			m.styles.Muted.Render(humanize.Time(m.savedAt))
	case m.err != nil:
		return m.styles.Error.Render(m.err.Error())
	}
	return ""
}

func (m Model) renderDiagnostic(msg logMsg) string {
	style := m.styles.Muted
	switch {
	case msg.level <= logrus.ErrorLevel:
		style = m.styles.Error
	case msg.level == logrus.WarnLevel:
		style = m.styles.Warning
	}

	line := msg.message
	if len(msg.fields) > 0 {
		keys := make([]string, 0, len(msg.fields))
		for k, v := range msg.fields {
			keys = append(keys, fmt.Sprintf("%s=%v", k, v))
		}
		sort.Strings(keys)
		line += " " + strings.Join(keys, " ")
	}
	return style.Render(truncate(line, m.lineWidth()))
}

func (m Model) lineWidth() int {
	if m.width > 8 {
		return m.width - 6
	}
	return 100
}

func (m Model) renderField(label, value string) string {
	return m.styles.Label.Render(label+":") + " " + m.styles.Value.Render(value) + "\n"
}

func describe(p provision.Progress) string {
	switch p.State {
	case provision.StateAddingCharacteristic, provision.StateAddingDescriptor:
		return fmt.Sprintf("%s %d of %d", p.State, p.Cursor+1, p.Total)
	}
	return p.State.String()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// waitForEvent delivers the next message from the run.
func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}

func saveCmd(save SaveFunc, res provision.Result) tea.Cmd {
	return func() tea.Msg {
		hash, err := save(res)
		return savedMsg{hash: hash, err: err}
	}
}
