// Package session drives one book through format resolution, unpacking,
// decoding or adapting, and then reading with progress tracking.
package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/metcalfc/folio/internal/fixed"
	"github.com/metcalfc/folio/internal/paginate"
	"github.com/metcalfc/folio/internal/progress"
	"github.com/metcalfc/folio/internal/reader"
)

var (
	// ErrNotReady is returned by navigation outside the Ready state.
	ErrNotReady = errors.New("session: no book is ready")

	// ErrFetchFailed wraps any error from the Fetcher.
	ErrFetchFailed = errors.New("session: fetching book failed")
)

// Defaults for fixed-layout adapter retries.
const (
	DefaultAdapterRetries = 2
	DefaultRetryDelay     = 500 * time.Millisecond
)

// Fetcher returns the bytes of a book source.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// FormatStore remembers the format a book was last opened with.
type FormatStore interface {
	BookFormat(ctx context.Context, bookID int64) (reader.Format, error)
	SetBookFormat(ctx context.Context, bookID int64, f reader.Format) error
}

// Request identifies a book to load.
type Request struct {
	BookID int64
	Source string
	// Format skips resolution when set.
	Format reader.Format
}

// Position is where the reader currently is.
type Position struct {
	Page       int
	TotalPages int
	// Offset is the scroll offset of a reflowable document.
	Offset float64
	// Locator is the engine position of a fixed-layout document.
	Locator string
}

// Options configures a Controller.
type Options struct {
	Fetcher Fetcher
	Local   progress.LocalStore
	Formats FormatStore
	// Remote is optional.
	Remote progress.RemoteStore

	// Openers resolves fixed-layout engines. Defaults to fixed.OpenerFor.
	Openers   func(reader.Format) (fixed.Opener, bool)
	Paginator paginate.Paginator
	Tracker   progress.Options

	// AdapterRetries is the number of extra attempts after a failed open.
	// Zero selects DefaultAdapterRetries; negative disables retries.
	AdapterRetries int
	RetryDelay     time.Duration
	// Sleep waits between adapter attempts.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnStatus receives every state change. It must not block or call back
	// into the Controller.
	OnStatus func(Status)
	Logger   *slog.Logger
}

func (o *Options) defaults() {
	if o.Openers == nil {
		o.Openers = fixed.OpenerFor
	}
	if o.Paginator.Overlap == 0 {
		o.Paginator = paginate.New(paginate.DefaultOverlap)
	}
	switch {
	case o.AdapterRetries == 0:
		o.AdapterRetries = DefaultAdapterRetries
	case o.AdapterRetries < 0:
		o.AdapterRetries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.Sleep == nil {
		o.Sleep = sleep
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Tracker.Logger == nil {
		o.Tracker.Logger = o.Logger
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Controller is the reading session state machine. All methods are safe for
// concurrent use; a new Load supersedes any load still in flight.
type Controller struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	status  Status
	gen     uint64
	cancel  context.CancelFunc
	req     Request
	hasReq  bool
	format  reader.Format
	doc     *reader.Document
	engine  fixed.Engine
	tracker *progress.Tracker

	saved    progress.Progress
	hasSaved bool

	layout  paginate.State
	laidOut bool
	offset  float64
	page    int
}

// New returns an idle Controller.
func New(opts Options) *Controller {
	opts.defaults()
	return &Controller{
		opts:   opts,
		logger: opts.Logger.With("component", "session"),
		status: Status{State: Idle},
	}
}

// State returns the current pipeline state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the last emitted status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Format returns the resolved format of the current book.
func (c *Controller) Format() reader.Format {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.format
}

// Document returns the decoded reflowable book, or nil.
func (c *Controller) Document() *reader.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}

// Engine returns the fixed-layout engine, or nil.
func (c *Controller) Engine() fixed.Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine
}

// Saved returns the progress stored before this session started.
func (c *Controller) Saved() (progress.Progress, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saved, c.hasSaved
}

// Position returns the current reading position.
func (c *Controller) Position() Position {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

func (c *Controller) positionLocked() Position {
	if c.engine != nil {
		p := c.engine.CurrentPage()
		loc, _ := c.engine.PercentageToLocator(pageFraction(p, c.engine.TotalPages()))
		return Position{Page: p, TotalPages: c.engine.TotalPages(), Locator: loc}
	}
	if c.laidOut {
		return Position{Page: c.page, TotalPages: c.layout.TotalPages, Offset: c.offset}
	}
	return Position{}
}

// pageFraction is the fraction that PercentageToLocator maps back to page.
func pageFraction(page, total int) float64 {
	if total < 1 {
		return 0
	}
	return float64(page) / float64(total)
}

// Load starts the pipeline for req and returns once the book is Ready or the
// load failed. A superseded load returns context.Canceled.
func (c *Controller) Load(ctx context.Context, req Request) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.gen++
	gen := c.gen
	lctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.req, c.hasReq = req, true
	c.resetLocked()
	c.mu.Unlock()

	logger := c.logger.With("load_id", uuid.NewString(), "book_id", req.BookID, "source", req.Source)
	err := c.load(lctx, gen, req, logger)
	if err != nil && !c.current(gen) {
		return context.Canceled
	}
	return err
}

func (c *Controller) load(ctx context.Context, gen uint64, req Request, logger *slog.Logger) error {
	if !c.transition(gen, ResolvingFormat, nil) {
		return context.Canceled
	}
	start := time.Now()

	var (
		data     []byte
		stored   reader.Format
		saved    progress.Progress
		hasSaved bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := c.opts.Fetcher.Fetch(gctx, req.Source)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrFetchFailed, req.Source, err)
		}
		data = b
		return nil
	})
	g.Go(func() error {
		if c.opts.Formats != nil {
			f, err := c.opts.Formats.BookFormat(gctx, req.BookID)
			if err != nil {
				logger.Warn("reading stored format", "error", err)
			}
			stored = f
		}
		if c.opts.Local != nil {
			p, ok, err := c.opts.Local.LoadProgress(gctx, req.BookID)
			if err != nil {
				logger.Warn("reading stored progress", "error", err)
			}
			saved, hasSaved = p, ok
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return c.fail(gen, err, logger)
	}
	hints := reader.Hints{
		Explicit: req.Format,
		Stored:   stored,
		Source:   req.Source,
		Data:     data,
	}
	if hasSaved {
		hints.Saved = saved.Format
	}
	format := reader.Resolve(hints)
	if format == reader.FormatUnknown {
		logger.Info("format unresolved, waiting for manual choice")
		c.transition(gen, NeedsManualFormat, reader.ErrFormatUnresolved)
		return reader.ErrFormatUnresolved
	}
	logger = logger.With("format", format)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return context.Canceled
	}
	c.format = format
	c.saved, c.hasSaved = saved, hasSaved && saved.Format == format
	c.mu.Unlock()

	var err error
	if format.Reflowable() {
		err = c.loadReflowable(ctx, gen, req, data)
	} else {
		err = c.loadFixed(ctx, gen, format, data, logger)
	}
	if err != nil {
		return c.fail(gen, err, logger)
	}

	if c.opts.Formats != nil {
		if err := c.opts.Formats.SetBookFormat(ctx, req.BookID, format); err != nil {
			logger.Warn("persisting format", "error", err)
		}
	}
	if !c.transition(gen, Ready, nil) {
		return context.Canceled
	}
	if !format.Reflowable() {
		c.recordFirstRender(ctx, gen)
	}
	logger.Info("book ready", "duration", time.Since(start))
	return nil
}

// recordFirstRender saves the position a fixed-layout engine opened at.
// Reflowable books record on their first Layout instead.
func (c *Controller) recordFirstRender(ctx context.Context, gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.engine == nil {
		c.mu.Unlock()
		return
	}
	pos := c.positionLocked()
	tracker, format := c.tracker, c.format
	c.mu.Unlock()

	c.record(context.WithoutCancel(ctx), tracker, pos, format)
}

func (c *Controller) loadReflowable(ctx context.Context, gen uint64, req Request, data []byte) error {
	if reader.Compressed(req.Source, data) {
		if !c.transition(gen, LoadingArchive, nil) {
			return context.Canceled
		}
		entry, err := reader.OpenInner(bytes.NewReader(data), int64(len(data)), ".fb2")
		if err != nil {
			return err
		}
		data = entry.Data
	}

	if !c.transition(gen, Parsing, nil) {
		return context.Canceled
	}
	dec, err := reader.Lookup(reader.FormatFB2)
	if err != nil {
		return err
	}
	doc, err := dec.Decode(bytes.NewReader(data))
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return context.Canceled
	}
	c.doc = doc
	c.tracker = c.newTracker(req.BookID)
	return nil
}

func (c *Controller) loadFixed(ctx context.Context, gen uint64, format reader.Format, data []byte, logger *slog.Logger) error {
	if !c.transition(gen, Adapting, nil) {
		return context.Canceled
	}
	opener, ok := c.opts.Openers(format)
	if !ok {
		return fmt.Errorf("%w: no engine for %s", fixed.ErrAdapterLoadFailed, format)
	}

	var (
		eng fixed.Engine
		err error
	)
	for attempt := 0; attempt <= c.opts.AdapterRetries; attempt++ {
		if attempt > 0 {
			if serr := c.opts.Sleep(ctx, c.opts.RetryDelay); serr != nil {
				return serr
			}
		}
		eng, err = opener.Open(ctx, data)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("opening document", "attempt", attempt+1, "error", err)
	}
	if err != nil {
		if !errors.Is(err, fixed.ErrAdapterLoadFailed) {
			err = fmt.Errorf("%w: %v", fixed.ErrAdapterLoadFailed, err)
		}
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		eng.Close()
		return context.Canceled
	}
	c.restoreFixedLocked(eng, logger)

	tracker := c.newTracker(c.req.BookID)
	navCtx := context.WithoutCancel(ctx)
	eng.OnRelocated(func(loc string) {
		_, err := tracker.OnNavigate(navCtx, eng.CurrentPage(), eng.TotalPages(), format, loc)
		if err != nil {
			c.emit(statusFor(Ready, err))
		}
	})
	c.engine = eng
	c.tracker = tracker
	return nil
}

// restoreFixedLocked replays the saved locator when the page count is
// unchanged, and otherwise maps the saved fraction onto the new count.
func (c *Controller) restoreFixedLocked(eng fixed.Engine, logger *slog.Logger) {
	if !c.hasSaved {
		return
	}
	s := c.saved.Clamp()
	if s.TotalPages == eng.TotalPages() && s.Locator != "" {
		if err := eng.GoToLocator(s.Locator); err == nil {
			return
		}
		logger.Warn("saved locator rejected", "locator", s.Locator)
	}
	loc, err := eng.PercentageToLocator(pageFraction(s.CurrentPage, s.TotalPages))
	if err == nil {
		err = eng.GoToLocator(loc)
	}
	if err != nil {
		logger.Warn("restoring position", "error", err)
		eng.GoToPage(s.CurrentPage)
	}
}

func (c *Controller) newTracker(bookID int64) *progress.Tracker {
	return progress.NewTracker(bookID, c.opts.Local, c.opts.Remote, c.opts.Tracker)
}

// Layout establishes or updates reflowable pagination for the rendered
// extent and viewport. It returns the offset the host should scroll to and
// the page shown there. The first call restores saved progress.
func (c *Controller) Layout(ctx context.Context, rendered, viewport float64) (Position, error) {
	c.mu.Lock()
	if c.state != Ready || c.doc == nil {
		c.mu.Unlock()
		return Position{}, ErrNotReady
	}
	c.state = Paginating

	var st paginate.State
	var page int
	var offset float64
	if !c.laidOut {
		st = c.opts.Paginator.Estimate(rendered, viewport)
		offset = c.restoredOffsetLocked(st)
		page = st.Locate(offset)
	} else {
		st, page, offset = c.opts.Paginator.Relayout(c.layout, c.offset, rendered, viewport)
	}
	changed := !c.laidOut || page != c.page || st.TotalPages != c.layout.TotalPages
	c.layout, c.laidOut = st, true
	c.page, c.offset = page, offset
	c.state = Ready

	pos := c.positionLocked()
	tracker, format := c.tracker, c.format
	c.mu.Unlock()

	if !changed {
		return pos, nil
	}
	return pos, c.record(ctx, tracker, pos, format)
}

func (c *Controller) restoredOffsetLocked(st paginate.State) float64 {
	if !c.hasSaved {
		return 0
	}
	s := c.saved.Clamp()
	if s.TotalPages == st.TotalPages {
		return st.OffsetFor(s.CurrentPage)
	}
	return s.Fraction() * st.MaxScroll()
}

// Scroll records a new scroll offset of a reflowable document and returns
// the page it shows.
func (c *Controller) Scroll(ctx context.Context, offset float64) (Position, error) {
	c.mu.Lock()
	if c.state != Ready || !c.laidOut {
		c.mu.Unlock()
		return Position{}, ErrNotReady
	}
	c.offset = c.layout.ClampOffset(offset)
	c.page = c.layout.Locate(c.offset)
	pos := c.positionLocked()
	tracker, format := c.tracker, c.format
	c.mu.Unlock()

	return pos, c.record(ctx, tracker, pos, format)
}

// NextPage advances one page.
func (c *Controller) NextPage(ctx context.Context) (Position, error) {
	return c.step(ctx, 1)
}

// PrevPage goes back one page.
func (c *Controller) PrevPage(ctx context.Context) (Position, error) {
	return c.step(ctx, -1)
}

func (c *Controller) step(ctx context.Context, delta int) (Position, error) {
	c.mu.Lock()
	page := c.positionLocked().Page
	c.mu.Unlock()
	return c.GoToPage(ctx, page+delta)
}

// GoToPage moves to page n, clamped to the document.
func (c *Controller) GoToPage(ctx context.Context, n int) (Position, error) {
	c.mu.Lock()
	if c.state != Ready {
		c.mu.Unlock()
		return Position{}, ErrNotReady
	}
	if eng := c.engine; eng != nil {
		c.mu.Unlock()
		// Progress is recorded by the relocation listener.
		if err := eng.GoToPage(n); err != nil {
			return c.Position(), err
		}
		return c.Position(), nil
	}
	if !c.laidOut {
		c.mu.Unlock()
		return Position{}, ErrNotReady
	}
	c.page = clampPage(n, c.layout.TotalPages)
	c.offset = c.layout.OffsetFor(c.page)
	pos := c.positionLocked()
	tracker, format := c.tracker, c.format
	c.mu.Unlock()

	return pos, c.record(ctx, tracker, pos, format)
}

func (c *Controller) record(ctx context.Context, t *progress.Tracker, pos Position, format reader.Format) error {
	if t == nil {
		return nil
	}
	_, err := t.OnNavigate(ctx, pos.Page, pos.TotalPages, format, pos.Locator)
	if err != nil {
		c.emit(statusFor(Ready, err))
	}
	return err
}

// ChooseFormat persists a manual format choice and reloads the last request
// with it.
func (c *Controller) ChooseFormat(ctx context.Context, f reader.Format) error {
	if f == reader.FormatUnknown {
		return reader.ErrFormatUnresolved
	}
	c.mu.Lock()
	req, ok := c.req, c.hasReq
	c.mu.Unlock()
	if !ok {
		return ErrNotReady
	}

	if c.opts.Formats != nil {
		if err := c.opts.Formats.SetBookFormat(ctx, req.BookID, f); err != nil {
			c.logger.Warn("persisting chosen format", "book_id", req.BookID, "error", err)
		}
	}
	req.Format = f
	return c.Load(ctx, req)
}

// Retry runs the last request again from the start.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	req, ok := c.req, c.hasReq
	c.mu.Unlock()
	if !ok {
		return ErrNotReady
	}
	return c.Load(ctx, req)
}

// Close cancels any load, drops the book and waits for pending progress
// sends.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
	tracker := c.tracker
	err := c.resetLocked()
	c.mu.Unlock()

	if tracker != nil {
		tracker.Wait()
	}
	c.emit(Status{State: Idle})
	return err
}

// resetLocked drops the current book and returns to Idle.
func (c *Controller) resetLocked() error {
	var err error
	if c.engine != nil {
		err = c.engine.Close()
	}
	c.state = Idle
	c.status = Status{State: Idle}
	c.format = reader.FormatUnknown
	c.doc, c.engine, c.tracker = nil, nil, nil
	c.saved, c.hasSaved = progress.Progress{}, false
	c.layout, c.laidOut = paginate.State{}, false
	c.offset, c.page = 0, 0
	return err
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// transition moves to s when gen is still the live load. It reports false
// for a superseded load.
func (c *Controller) transition(gen uint64, s State, err error) bool {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return false
	}
	st := statusFor(s, err)
	c.state, c.status = s, st
	c.mu.Unlock()

	c.emit(st)
	return true
}

func (c *Controller) fail(gen uint64, err error, logger *slog.Logger) error {
	if !c.current(gen) {
		logger.Debug("load discarded", "error", err)
		return err
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("load cancelled")
		c.transition(gen, Idle, err)
		return err
	}
	logger.Error("loading book", "error", err)
	c.transition(gen, Error, err)
	return err
}

func (c *Controller) emit(st Status) {
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(st)
	}
}

func clampPage(n, total int) int {
	if total < 1 || n < 1 {
		return 1
	}
	if n > total {
		return total
	}
	return n
}
