//go:build gui

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"fyne.io/fyne/v2"
	fyneapp "fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"github.com/metcalfc/folio/internal/config"
	"github.com/metcalfc/folio/internal/fixed"
	"github.com/metcalfc/folio/internal/progress"
	"github.com/metcalfc/folio/internal/reader"
	"github.com/metcalfc/folio/internal/session"
)

// gui holds the window state. Its methods run on the fyne main goroutine.
type gui struct {
	ctx    context.Context
	app    *app
	win    fyne.Window
	status session.Status
	pos    session.Position
	notice string

	statusLabel *widget.Label
	body        *widget.RichText
	scroll      *container.Scroll
	chooser     *fyne.Container
	retry       *widget.Button
}

func newGUI(ctx context.Context, win fyne.Window) *gui {
	g := &gui{
		ctx:         ctx,
		win:         win,
		status:      session.Status{State: session.Idle},
		statusLabel: widget.NewLabel("Loading..."),
		body:        widget.NewRichText(),
	}
	g.statusLabel.Alignment = fyne.TextAlignCenter
	g.body.Wrapping = fyne.TextWrapWord
	g.scroll = container.NewVScroll(g.body)
	g.scroll.OnScrolled = g.scrolled

	var buttons []fyne.CanvasObject
	for _, key := range []string{"1", "2", "3"} {
		f := formatForKey(key)
		buttons = append(buttons, widget.NewButton(fmt.Sprintf("%s: %s", key, f), func() { g.choose(f) }))
	}
	g.chooser = container.NewHBox(buttons...)
	g.chooser.Hide()
	g.retry = widget.NewButton("Retry", func() { g.run(g.app.ctrl.Retry) })
	g.retry.Hide()
	return g
}

func (g *gui) content() fyne.CanvasObject {
	controls := widget.NewLabel("SPACE/→: next page  ←: previous  HOME/END: first/last  R: restart  F: fullscreen  Q: quit")
	controls.Alignment = fyne.TextAlignCenter
	bottom := container.NewVBox(container.NewCenter(g.chooser), container.NewCenter(g.retry), controls)
	return container.NewBorder(g.statusLabel, bottom, nil, nil, g.scroll)
}

// run executes a blocking controller call and reports back on the main
// goroutine.
func (g *gui) run(fn func(context.Context) error) {
	go func() {
		err := fn(g.ctx)
		fyne.Do(func() { g.loaded(err) })
	}()
}

func (g *gui) choose(f reader.Format) {
	if g.status.State != session.NeedsManualFormat {
		return
	}
	g.run(func(ctx context.Context) error { return g.app.ctrl.ChooseFormat(ctx, f) })
}

func (g *gui) loaded(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	g.onStatus(g.app.ctrl.Status())
	if err == nil {
		g.render()
	}
}

func (g *gui) onStatus(st session.Status) {
	if st.Kind == session.KindLocalPersist {
		g.notice = st.Message
		g.refreshStatus()
		return
	}
	g.status = st
	g.chooser.Hide()
	g.retry.Hide()
	switch st.State {
	case session.NeedsManualFormat:
		g.chooser.Show()
	case session.Error:
		if st.Retryable {
			g.retry.Show()
		}
	}
	g.refreshStatus()
}

func (g *gui) refreshStatus() {
	switch g.status.State {
	case session.Ready, session.Paginating:
		percent := progress.Progress{CurrentPage: g.pos.Page, TotalPages: g.pos.TotalPages}.Percentage()
		text := fmt.Sprintf("%s | Page %d/%d | %.0f%%", bookTitle(g.app.ctrl), g.pos.Page, g.pos.TotalPages, percent)
		if g.notice != "" {
			text += " | " + g.notice
		}
		g.statusLabel.SetText(text)
	case session.NeedsManualFormat, session.Error:
		g.statusLabel.SetText(g.status.Message)
	default:
		g.statusLabel.SetText(fmt.Sprintf("Loading %s (%s)...", g.app.req.Source, g.status.State))
	}
}

// render shows the loaded book and establishes pagination.
func (g *gui) render() {
	ctrl := g.app.ctrl
	if doc := ctrl.Document(); doc != nil {
		md, err := doc.Markdown()
		if err != nil {
			g.notice = err.Error()
		}
		g.body.ParseMarkdown(md)
		g.scroll.ScrollToTop()
		g.layout()
		return
	}
	g.pos = ctrl.Position()
	g.showPage()
}

// layout feeds the rendered and visible heights to the controller.
func (g *gui) layout() {
	ctrl := g.app.ctrl
	if ctrl.Document() == nil || ctrl.State() != session.Ready {
		return
	}
	viewport := g.scroll.Size().Height
	if viewport <= 0 {
		return
	}
	rendered := max(g.body.MinSize().Height, g.body.Size().Height)
	g.apply(ctrl.Layout(g.ctx, float64(rendered), float64(viewport)))
}

func (g *gui) scrolled(p fyne.Position) {
	if g.app == nil || g.app.ctrl.Document() == nil {
		return
	}
	pos, err := g.app.ctrl.Scroll(g.ctx, float64(p.Y))
	if err != nil && !errors.Is(err, progress.ErrLocalPersist) {
		return
	}
	g.pos = pos
	g.refreshStatus()
}

func (g *gui) apply(pos session.Position, err error) {
	switch {
	case errors.Is(err, progress.ErrLocalPersist):
		g.notice = session.KindLocalPersist.Message()
	case err != nil:
		g.notice = err.Error()
		g.refreshStatus()
		return
	}
	g.pos = pos
	if g.app.ctrl.Document() != nil {
		g.scroll.Offset = fyne.NewPos(0, float32(pos.Offset))
		g.scroll.Refresh()
	} else {
		g.showPage()
	}
	g.refreshStatus()
}

// showPage renders the plain text of the current fixed-layout page.
func (g *gui) showPage() {
	eng := g.app.ctrl.Engine()
	var segs []widget.RichTextSegment
	if ct, ok := eng.(fixed.ChapterTitler); ok {
		if title := ct.ChapterTitle(g.pos.Page); title != "" {
			segs = append(segs, &widget.TextSegment{Text: title, Style: widget.RichTextStyleSubHeading})
		}
	}
	if tp, ok := eng.(fixed.TextPager); ok {
		text, err := tp.PageText(g.pos.Page)
		if err != nil {
			g.notice = err.Error()
		}
		segs = append(segs, &widget.TextSegment{Text: text, Style: widget.RichTextStyleParagraph})
	}
	g.body.Segments = segs
	g.body.Refresh()
	g.scroll.ScrollToTop()
	g.refreshStatus()
}

func (g *gui) typedKey(key *fyne.KeyEvent) {
	ctrl := g.app.ctrl
	switch key.Name {
	case fyne.KeyQ:
		fyne.CurrentApp().Quit()
		return
	case fyne.KeyF:
		g.win.SetFullScreen(!g.win.FullScreen())
		return
	}

	if g.status.State == session.Error && key.Name == fyne.KeyR {
		g.run(ctrl.Retry)
		return
	}
	if g.status.State != session.Ready {
		return
	}
	switch key.Name {
	case fyne.KeySpace, fyne.KeyPageDown, fyne.KeyRight:
		g.apply(ctrl.NextPage(g.ctx))
	case fyne.KeyPageUp, fyne.KeyLeft:
		g.apply(ctrl.PrevPage(g.ctx))
	case fyne.KeyHome, fyne.KeyR:
		g.apply(ctrl.GoToPage(g.ctx, 1))
	case fyne.KeyEnd:
		g.apply(ctrl.GoToPage(g.ctx, g.pos.TotalPages))
	}
}

func (g *gui) typedRune(r rune) {
	if f := formatForKey(string(r)); f != reader.FormatUnknown {
		g.choose(f)
	}
}

func main() {
	opts, err := parseArgs("gfolio", os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if opts.showVersion {
		fmt.Printf("gfolio %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stderr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := fyneapp.New()
	w := a.NewWindow("folio")
	g := newGUI(ctx, w)

	g.app, err = newApp(ctx, opts, cfg, logger, func(st session.Status) {
		fyne.Do(func() { g.onStatus(st) })
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	w.Canvas().SetOnTypedKey(g.typedKey)
	w.Canvas().SetOnTypedRune(g.typedRune)
	w.Resize(fyne.NewSize(800, 600))
	w.SetContent(g.content())

	// Handle window resize - repaginate
	done := make(chan struct{})
	go func() {
		var last fyne.Size
		for {
			select {
			case <-done:
				return
			case <-time.After(100 * time.Millisecond):
				size := w.Canvas().Size()
				if size.Width > 0 && size != last {
					last = size
					fyne.Do(g.layout)
				}
			}
		}
	}()

	w.SetOnClosed(func() {
		close(done)
		cancel()
		if err := g.app.Close(); err != nil {
			logger.Warn("closing session", "error", err)
		}
	})

	g.run(func(ctx context.Context) error { return g.app.ctrl.Load(ctx, g.app.req) })
	w.ShowAndRun()
}
