package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer provides rich terminal UI using bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *ingestModel
	tracker *ProgressTracker
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails on non-TTY output.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newIngestModel(tracker, cfg.Source)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return nil
	}

	ctx, r.cancel = context.WithCancel(ctx)
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}

	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.tracker.Stats().Stage {
		r.tracker.SetStage(event.Stage, event.Total)
	}
	r.tracker.Update(event.Current, event.Item)
	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.AddError(event)
	if r.program != nil {
		r.program.Send(errorMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.SetStage(StageComplete, 0)
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer. It waits up to two seconds for the program to exit.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program, cancel := r.program, r.cancel
	r.mu.Unlock()

	if program == nil {
		return nil
	}
	program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

type progressMsg ProgressEvent
type errorMsg ErrorEvent
type completeMsg CompletionStats
type tickMsg time.Time

// ingestModel is the bubbletea model for ingest progress.
type ingestModel struct {
	tracker  *ProgressTracker
	width    int
	quitting bool
	complete bool
	stats    CompletionStats
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
	source   string
}

func newIngestModel(tracker *ProgressTracker, source string) *ingestModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	return &ingestModel{
		tracker: tracker,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(50),
			progress.WithoutPercentage(),
		),
		styles: DefaultStyles(),
		width:  80,
		source: source,
	}
}

// Init implements tea.Model.
func (m *ingestModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *ingestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)
	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case tickMsg:
		return m, tickCmd()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *ingestModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	if m.complete {
		return m.renderComplete()
	}

	width := max(m.width-4, 40)
	sections := []string{m.renderStages(), m.renderProgress()}
	if item := m.tracker.Stats().Item; item != "" {
		sections = append(sections, m.styles.Dim.Render(truncate(item, width-2)))
	}

	title := "ragsearch ingest"
	if m.source != "" {
		title += " • " + m.source
	}
	panel := m.styles.Panel.Width(width).Render(strings.Join(sections, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, m.styles.Header.Render(title), panel) + "\n" + m.renderStatusBar()
}

func (m *ingestModel) renderStages() string {
	current := m.tracker.Stats().Stage
	var parts []string
	for _, s := range []Stage{StageReading, StageWriting, StageIndexing} {
		switch {
		case s < current:
			parts = append(parts, m.styles.Success.Render("● "+s.String()))
		case s == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+s.String()))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+s.String()))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *ingestModel) renderProgress() string {
	stats := m.tracker.Stats()
	if stats.Total == 0 {
		return fmt.Sprintf("%s %s...", m.spinner.View(), stats.Stage)
	}

	line := fmt.Sprintf("%s  %s", m.bar.ViewAs(stats.Progress), m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100)))
	detail := fmt.Sprintf("%d / %d records  •  %.0f/s", stats.Current, stats.Total, stats.Speed)
	if stats.ETA > 0 {
		detail += "  •  ETA " + formatDuration(stats.ETA)
	}
	return line + "\n" + m.styles.Label.Render(detail)
}

func (m *ingestModel) renderStatusBar() string {
	stats := m.tracker.Stats()
	var parts []string
	if stats.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", stats.WarnCount)))
	}
	if stats.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", stats.ErrorCount)))
	}
	parts = append(parts, m.styles.Dim.Render("q to quit"))
	return strings.Join(parts, m.styles.Dim.Render("  │  "))
}

func (m *ingestModel) renderComplete() string {
	label := func(s string) string { return m.styles.Label.Render(fmt.Sprintf("%-12s", s)) }
	value := func(v any) string { return m.styles.Active.Render(fmt.Sprint(v)) }

	lines := []string{
		m.styles.Success.Render("✓ Ingest complete"),
		"",
		label("Documents:") + value(m.stats.Documents),
		label("Chunks:") + value(m.stats.Chunks),
		label("Embeddings:") + value(m.stats.Embeddings),
		label("Duration:") + value(formatDuration(m.stats.Duration)),
	}
	if len(m.stats.Models) > 0 {
		lines = append(lines, label("Models:")+value(strings.Join(m.stats.Models, ", ")))
	}
	if m.stats.Errors > 0 {
		lines = append(lines, "", m.styles.Error.Render(fmt.Sprintf("✗ %d errors", m.stats.Errors)))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorAccent)).
		Padding(1, 2).
		Width(max(m.width-4, 40)).
		Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// truncate shortens s to maxLen, keeping its end.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return "..." + s[len(s)-maxLen+3:]
}

var _ Renderer = (*TUIRenderer)(nil)
