// Package watch runs the shotlens terminal UI that revalidates a file on
// every save.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/timvw/shotlens/internal/engine"
	"github.com/timvw/shotlens/internal/model"
	slotel "github.com/timvw/shotlens/internal/otel"
	"github.com/timvw/shotlens/internal/pattern"
)

// Options configures the watch TUI.
type Options struct {
	Path      string
	Debounce  time.Duration
	CacheSize int
	Theme     string
	Logger    *slog.Logger
	Metrics   *slotel.Metrics
}

// messages
type resultMsg struct {
	doc      model.Document
	patterns []model.Pattern
	findings []model.Finding
}

type changedMsg struct{ version int }

type errMsg struct{ err error }

type tuiModel struct {
	path    string
	styles  styles
	spinner spinner.Model

	// reload revalidates the file immediately; run as a command.
	reload tea.Cmd

	doc      model.Document
	patterns []model.Pattern
	findings []model.Finding
	analyzed bool

	// pendingVersion is the newest version seen on disk and not yet published.
	pendingVersion int
	cursor         int
	message        string

	width  int
	height int
}

func newModel(path string, theme Theme, reload tea.Cmd) *tuiModel {
	st := newStyles(theme)
	return &tuiModel{
		path:    path,
		styles:  st,
		spinner: spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(st.spinner)),
		reload:  reload,
	}
}

// Run watches opts.Path until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		prog *tea.Program
		sess *Session
	)
	publish := func(doc model.Document, findings []model.Finding) {
		prog.Send(resultMsg{
			doc:      doc,
			patterns: sess.Engine().PatternsFor(ctx, doc),
			findings: findings,
		})
	}
	sess, err := NewSession(opts.Path, publish, engine.Options{
		Debounce:  opts.Debounce,
		CacheSize: opts.CacheSize,
		Logger:    logger,
		Metrics:   opts.Metrics,
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	watcher, err := NewFileWatcher(opts.Path, logger)
	if err != nil {
		return err
	}
	defer watcher.Close()

	reload := func() tea.Msg {
		if err := sess.Reload(); err != nil {
			return errMsg{err}
		}
		return nil
	}
	m := newModel(opts.Path, ThemeByName(opts.Theme), reload)
	prog = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go watcher.Run(watchCtx, func() {
		version, err := sess.Changed()
		if err != nil {
			// Saves by rename briefly remove the file.
			logger.Debug("reload after change failed", slog.Any("error", err))
			return
		}
		prog.Send(changedMsg{version: version})
	})

	_, err = prog.Run()
	return err
}

func (m *tuiModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.reload)
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case resultMsg:
		m.doc = msg.doc
		m.patterns = msg.patterns
		m.findings = msg.findings
		m.analyzed = true
		m.message = ""
		if m.pendingVersion <= msg.doc.Version {
			m.pendingVersion = 0
		}
		if m.cursor >= len(m.findings) {
			m.cursor = max(len(m.findings)-1, 0)
		}
		return m, nil

	case changedMsg:
		if msg.version > m.doc.Version {
			m.pendingVersion = msg.version
		}
		return m, nil

	case errMsg:
		m.message = fmt.Sprintf("Error: %v", msg.err)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		m.message = "Revalidating..."
		return m, m.reload
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.findings)-1 {
			m.cursor++
		}
	}
	return m, nil
}

func (m *tuiModel) pending() bool {
	return !m.analyzed || m.pendingVersion > 0
}

func (m *tuiModel) View() string {
	var b strings.Builder
	s := m.styles

	b.WriteString(s.title.Render("shotlens watch"))
	b.WriteString("  ")
	b.WriteString(s.text.Render(m.path))
	if m.doc.Version > 0 {
		b.WriteString(s.dim.Render(fmt.Sprintf("  v%d", m.doc.Version)))
	}
	if m.pending() {
		b.WriteString("  ")
		b.WriteString(m.spinner.View())
		b.WriteString(s.dim.Render(" analyzing"))
	}
	b.WriteString("\n")
	b.WriteString(m.hints())
	b.WriteString("\n\n")

	if !m.analyzed {
		b.WriteString("  Loading...\n")
		return b.String()
	}

	b.WriteString(s.header.Render(fmt.Sprintf("Patterns (%d)", len(m.patterns))))
	b.WriteString("\n")
	for _, p := range m.patterns {
		line := fmt.Sprintf("  %4d:%-3d %-14s %s", p.Line+1, p.Column+1, p.Category, p.MatchedText)
		if p.HasParameters() {
			line += " " + formatParams(p.Parameters)
		}
		b.WriteString(s.text.Render(m.fit(line)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	counts := model.CountBySeverity(m.findings)
	b.WriteString(s.header.Render(fmt.Sprintf("Findings (%d errors, %d warnings, %d info)",
		counts[model.SeverityError], counts[model.SeverityWarning], counts[model.SeverityInfo])))
	b.WriteString("\n")
	if len(m.findings) == 0 {
		b.WriteString(s.ok.Render("  ✓ no findings"))
		b.WriteString("\n")
	}
	for i, f := range m.findings {
		b.WriteString(m.renderFinding(i, f))
		b.WriteString("\n")
	}

	if m.message != "" {
		b.WriteString("\n")
		b.WriteString(s.dim.Render(m.message))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *tuiModel) hints() string {
	s := m.styles
	pairs := [][2]string{{"↑↓/jk", "select"}, {"r", "revalidate"}, {"q", "quit"}}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, s.hintKey.Render(p[0])+" "+s.hintDesc.Render(p[1]))
	}
	return strings.Join(parts, "  ")
}

func (m *tuiModel) renderFinding(i int, f model.Finding) string {
	s := m.styles
	cursor := "  "
	if i == m.cursor {
		cursor = "> "
	}
	loc := fmt.Sprintf("%d:%d", f.Range.Start.Line+1, f.Range.Start.Column+1)
	text := m.fit(fmt.Sprintf("%s%-8s %-7s %s [%s]", cursor, loc, f.Severity, f.Message, f.Code))
	if i == m.cursor {
		return s.selected.Render(text)
	}
	switch f.Severity {
	case model.SeverityError:
		return s.err.Render(text)
	case model.SeverityWarning:
		return s.warn.Render(text)
	default:
		return s.info.Render(text)
	}
}

// fit truncates line to the terminal width, when known.
func (m *tuiModel) fit(line string) string {
	if m.width <= 0 {
		return line
	}
	return truncate(line, m.width)
}

func formatParams(params map[string]int) string {
	parts := make([]string, 0, len(params))
	for _, k := range pattern.RegionKeys {
		if v, ok := params[k]; ok {
			parts = append(parts, fmt.Sprintf("%s=%d", k, v))
		}
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// truncate cuts a string to at most maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
