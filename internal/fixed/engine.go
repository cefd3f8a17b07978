// Package fixed adapts paged document engines (EPUB, PDF) to the reading
// session. Positions are opaque locator strings; callers store and replay
// them and only compare them for equality.
package fixed

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"

	"github.com/metcalfc/folio/internal/reader"
)

var (
	// ErrAdapterLoadFailed indicates the engine could not open the book.
	ErrAdapterLoadFailed = errors.New("fixed: adapter failed to load document")

	// ErrBadLocator indicates a locator the engine does not understand.
	ErrBadLocator = errors.New("fixed: unrecognized locator")
)

// Engine is a fixed-layout document with its own page geometry.
type Engine interface {
	TotalPages() int
	CurrentPage() int
	GoToPage(n int) error
	GoToLocator(loc string) error
	PercentageToLocator(p float64) (string, error)
	// OnRelocated registers fn to run after every successful navigation.
	OnRelocated(fn func(loc string))
	Close() error
}

// Opener creates an Engine from raw book bytes.
type Opener interface {
	Open(ctx context.Context, data []byte) (Engine, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, data []byte) (Engine, error)

func (f OpenerFunc) Open(ctx context.Context, data []byte) (Engine, error) {
	return f(ctx, data)
}

// TextPager is implemented by engines that can give a plain-text rendition
// of a page. Hosts without a native renderer use it.
type TextPager interface {
	PageText(n int) (string, error)
}

// ChapterTitler is implemented by engines that know chapter names.
type ChapterTitler interface {
	ChapterTitle(n int) string
}

var (
	openersMu sync.RWMutex
	openers   = map[reader.Format]Opener{}
)

// RegisterOpener installs the opener used for f.
func RegisterOpener(f reader.Format, o Opener) {
	openersMu.Lock()
	defer openersMu.Unlock()
	openers[f] = o
}

// OpenerFor returns the opener registered for f.
func OpenerFor(f reader.Format) (Opener, bool) {
	openersMu.RLock()
	defer openersMu.RUnlock()
	o, ok := openers[f]
	return o, ok
}

// pager tracks the current page of a page-indexed engine and notifies
// relocation listeners.
type pager struct {
	mu        sync.Mutex
	total     int
	current   int
	locator   func(page int) string
	listeners []func(string)
}

func newPager(total int, locator func(int) string) *pager {
	return &pager{total: total, current: 1, locator: locator}
}

func (p *pager) TotalPages() int {
	return p.total
}

func (p *pager) CurrentPage() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// GoToPage clamps n to the document and moves there.
func (p *pager) GoToPage(n int) error {
	n = clampPage(n, p.total)
	p.mu.Lock()
	p.current = n
	listeners := slices.Clone(p.listeners)
	p.mu.Unlock()

	loc := p.locator(n)
	for _, fn := range listeners {
		fn(loc)
	}
	return nil
}

func (p *pager) OnRelocated(fn func(loc string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// PercentageToLocator maps a reading fraction to the page that fraction
// lands in.
func (p *pager) PercentageToLocator(pct float64) (string, error) {
	return p.locator(pageForFraction(pct, p.total)), nil
}

func pageForFraction(pct float64, total int) int {
	if math.IsNaN(pct) {
		pct = 0
	}
	return clampPage(int(math.Ceil(pct*float64(total)-1e-9)), total)
}

func clampPage(n, total int) int {
	if total < 1 {
		return 1
	}
	if n < 1 {
		return 1
	}
	if n > total {
		return total
	}
	return n
}
