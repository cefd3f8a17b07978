//go:build !gui

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/metcalfc/folio/internal/config"
	"github.com/metcalfc/folio/internal/fixed"
	"github.com/metcalfc/folio/internal/paginate"
	"github.com/metcalfc/folio/internal/progress"
	"github.com/metcalfc/folio/internal/reader"
	"github.com/metcalfc/folio/internal/session"
	"github.com/metcalfc/folio/internal/state"
)

var (
	headingStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFAA00"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Padding(0, 1)

	controlsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)

	completeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00")).
			Bold(true)
)

const (
	defaultColumn = 72
	minColumn     = 20
	maxColumn     = 200
	columnStep    = 4
)

type loadedMsg struct{ err error }

type statusMsg session.Status

// statusQueue hands controller statuses to the program in the order they
// were emitted. push never blocks.
type statusQueue struct {
	mu      sync.Mutex
	pending []session.Status
	ready   chan struct{}
}

func newStatusQueue() *statusQueue {
	return &statusQueue{ready: make(chan struct{}, 1)}
}

func (q *statusQueue) push(st session.Status) {
	q.mu.Lock()
	q.pending = append(q.pending, st)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// forward sends queued statuses until ctx is done.
func (q *statusQueue) forward(ctx context.Context, send func(tea.Msg)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.ready:
		}
		q.mu.Lock()
		batch := q.pending
		q.pending = nil
		q.mu.Unlock()
		for _, st := range batch {
			send(statusMsg(st))
		}
	}
}

type model struct {
	ctx      context.Context
	app      *app
	status   session.Status
	vp       viewport.Model
	lines    []string
	toc      []reader.TOCEntry
	pos      session.Position
	column   int
	notice   string
	quitting bool
	width    int
	height   int
}

func newModel(ctx context.Context, a *app) model {
	return model{
		ctx:    ctx,
		app:    a,
		status: session.Status{State: session.Idle},
		vp:     viewport.New(80, 22),
		column: defaultColumn,
		width:  80,
		height: 24,
	}
}

func (m model) Init() tea.Cmd {
	return m.run(func(ctx context.Context) error {
		return m.app.ctrl.Load(ctx, m.app.req)
	})
}

// run executes a blocking controller call off the event loop.
func (m model) run(fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return loadedMsg{err: fn(ctx)}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = msg.Width
		// Reserve 2 lines: 1 for status at top, 1 for controls at bottom
		m.vp.Height = max(msg.Height-2, 1)
		return m.relayout(), nil

	case statusMsg:
		st := session.Status(msg)
		if st.Kind == session.KindLocalPersist {
			m.notice = st.Message
			return m, nil
		}
		// Deliveries can lag behind the controller; its own status wins.
		m.status = m.app.ctrl.Status()
		return m, nil

	case loadedMsg:
		if errors.Is(msg.err, context.Canceled) {
			return m, nil
		}
		m.status = m.app.ctrl.Status()
		if msg.err != nil {
			return m, nil
		}
		return m.relayout(), nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "q" || key == "Q" || key == "ctrl+c" {
		m.quitting = true
		return m, tea.Quit
	}

	ctrl := m.app.ctrl
	switch m.status.State {
	case session.NeedsManualFormat:
		if f := formatForKey(key); f != reader.FormatUnknown {
			return m, m.run(func(ctx context.Context) error { return ctrl.ChooseFormat(ctx, f) })
		}
		return m, nil

	case session.Error:
		if key == "r" || key == "R" {
			return m, m.run(ctrl.Retry)
		}
		return m, nil

	case session.Ready:
	default:
		return m, nil
	}

	switch key {
	case " ", "pgdown", "right", "f":
		return m.apply(ctrl.NextPage(m.ctx)), nil
	case "b", "pgup", "left":
		return m.apply(ctrl.PrevPage(m.ctx)), nil
	case "up", "k":
		return m.scroll(-1), nil
	case "down", "j":
		return m.scroll(1), nil
	case "g", "home", "r", "R":
		return m.apply(ctrl.GoToPage(m.ctx, 1)), nil
	case "G", "end":
		return m.apply(ctrl.GoToPage(m.ctx, m.pos.TotalPages)), nil
	case "]":
		if line, ok := nextHeading(m.toc, m.vp.YOffset); ok {
			return m.apply(ctrl.Scroll(m.ctx, float64(line))), nil
		}
	case "[":
		if line, ok := prevHeading(m.toc, m.vp.YOffset); ok {
			return m.apply(ctrl.Scroll(m.ctx, float64(line))), nil
		}
	case "+", "=":
		if m.column < maxColumn {
			m.column += columnStep
			return m.relayout(), nil
		}
	case "-":
		if m.column > minColumn {
			m.column -= columnStep
			return m.relayout(), nil
		}
	}
	return m, nil
}

// scroll moves a reflowable view by delta lines, or the page text of a
// fixed-layout book.
func (m model) scroll(delta int) model {
	m.vp.SetYOffset(m.vp.YOffset + delta)
	if m.app.ctrl.Document() == nil {
		return m
	}
	return m.apply(m.app.ctrl.Scroll(m.ctx, float64(m.vp.YOffset)))
}

func (m model) textWidth() int {
	w := min(m.column, m.vp.Width)
	return max(w, minColumn)
}

// relayout re-renders the current book for the window and column width.
func (m model) relayout() model {
	ctrl := m.app.ctrl
	if ctrl.State() != session.Ready {
		return m
	}
	doc := ctrl.Document()
	if doc == nil {
		m.pos = ctrl.Position()
		return m.showPage()
	}

	lines, err := renderLines(doc, m.textWidth())
	if err != nil {
		m.notice = err.Error()
		return m
	}
	m.lines = lines
	m.toc = reader.MarkdownTOC(lines)
	m.vp.SetContent(styleLines(lines))
	return m.apply(ctrl.Layout(m.ctx, float64(len(lines)), float64(m.vp.Height)))
}

func (m model) apply(pos session.Position, err error) model {
	switch {
	case errors.Is(err, progress.ErrLocalPersist):
		m.notice = session.KindLocalPersist.Message()
	case err != nil:
		m.notice = err.Error()
		return m
	}
	m.pos = pos
	if m.app.ctrl.Document() != nil {
		m.vp.SetYOffset(int(math.Round(pos.Offset)))
		return m
	}
	return m.showPage()
}

// showPage renders the plain text of the current fixed-layout page.
func (m model) showPage() model {
	eng := m.app.ctrl.Engine()
	var text string
	if tp, ok := eng.(fixed.TextPager); ok {
		var err error
		if text, err = tp.PageText(m.pos.Page); err != nil {
			m.notice = err.Error()
		}
	}
	var blocks []string
	if ct, ok := eng.(fixed.ChapterTitler); ok {
		if title := ct.ChapterTitle(m.pos.Page); title != "" {
			blocks = append(blocks, "## "+title)
		}
	}
	blocks = append(blocks, strings.Split(text, "\n")...)
	lines := paginate.WrapParagraphs(blocks, m.textWidth())
	if len(lines) == 0 {
		lines = []string{"(no text on this page)"}
	}
	m.lines = lines
	m.toc = nil
	m.vp.SetContent(styleLines(lines))
	m.vp.GotoTop()
	return m
}

func styleLines(lines []string) string {
	out := make([]string, len(lines))
	for i, l := range lines {
		if strings.HasPrefix(l, "#") {
			out[i] = headingStyle.Render(strings.TrimLeft(l, "# "))
			continue
		}
		out[i] = l
	}
	return strings.Join(out, "\n")
}

func nextHeading(toc []reader.TOCEntry, line int) (int, bool) {
	for _, e := range toc {
		if e.Line > line {
			return e.Line, true
		}
	}
	return 0, false
}

func prevHeading(toc []reader.TOCEntry, line int) (int, bool) {
	for i := len(toc) - 1; i >= 0; i-- {
		if toc[i].Line < line {
			return toc[i].Line, true
		}
	}
	return 0, false
}

func (m model) View() string {
	if m.quitting {
		if m.pos.TotalPages > 0 && m.pos.Page == m.pos.TotalPages {
			return completeStyle.Render("\n  Reading complete!\n")
		}
		return ""
	}

	switch m.status.State {
	case session.Ready, session.Paginating:
	case session.NeedsManualFormat:
		return fmt.Sprintf("\n  %s\n\n  %s\n",
			noticeStyle.Render(m.status.Message),
			controlsStyle.Render("1: PDF  2: EPUB  3: FB2  Q: quit"))
	case session.Error:
		detail := ""
		if m.status.Err != nil {
			detail = "\n  " + statusStyle.Render(m.status.Err.Error())
		}
		return fmt.Sprintf("\n  %s%s\n\n  %s\n",
			errorStyle.Render(m.status.Message), detail,
			controlsStyle.Render("R: retry  Q: quit"))
	default:
		return statusStyle.Render(fmt.Sprintf("\n  Loading %s (%s)...\n", m.app.req.Source, m.status.State))
	}

	percent := progress.Progress{CurrentPage: m.pos.Page, TotalPages: m.pos.TotalPages}.Percentage()
	line := fmt.Sprintf("%s | Page %d/%d | %.0f%%", bookTitle(m.app.ctrl), m.pos.Page, m.pos.TotalPages, percent)
	status := statusStyle.Render(line)
	if m.notice != "" {
		status += noticeStyle.Render(" " + m.notice)
	}

	help := "SPACE/→: next page  B/←: previous  ↑/↓: scroll  [/]: chapter  +/-: width  R: restart  Q: quit"
	return status + "\n" + m.vp.View() + "\n" + controlsStyle.Render(help)
}

func main() {
	opts, err := parseArgs("folio", os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("folio %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// The terminal belongs to the UI, so logs go to a file.
	var logOut io.Writer = io.Discard
	stateDir := cfg.Store.Dir
	if stateDir == "" {
		stateDir = state.StateDir()
	}
	if f, err := cfg.OpenLogFile(stateDir); err == nil {
		defer f.Close()
		logOut = f
	}
	logger := cfg.NewLogger(logOut)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	statuses := newStatusQueue()
	a, err := newApp(ctx, opts, cfg, logger, statuses.push)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(newModel(ctx, a), tea.WithAltScreen())
	go statuses.forward(ctx, p.Send)
	_, runErr := p.Run()
	cancel()
	if err := a.Close(); err != nil {
		logger.Warn("closing session", "error", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		os.Exit(1)
	}
}
