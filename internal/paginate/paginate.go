// Package paginate estimates page numbers for reflowable content that has
// no native page geometry. Everything is measured in the same unit as the
// viewport (pixels for a desktop host, lines for a terminal).
package paginate

import "math"

// DefaultOverlap is the share of the viewport one page advances by. The
// remaining tenth is repeated at the top of the next page.
const DefaultOverlap = 0.9

// slack absorbs float error so an exact multiple of the page extent does not
// round up to an extra page.
const slack = 1e-9

// Paginator computes pagination states with a fixed overlap.
type Paginator struct {
	Overlap float64
}

// New returns a Paginator. Overlaps outside (0, 1] fall back to
// DefaultOverlap.
func New(overlap float64) Paginator {
	if overlap <= 0 || overlap > 1 {
		overlap = DefaultOverlap
	}
	return Paginator{Overlap: overlap}
}

// State is one pagination estimate. It is recomputed, never mutated, when the
// rendered extent or the viewport changes.
type State struct {
	TotalPages int
	PageExtent float64
	Overlap    float64
	Rendered   float64
	Viewport   float64
}

// Estimate is New(DefaultOverlap).Estimate.
func Estimate(rendered, viewport float64) State {
	return New(DefaultOverlap).Estimate(rendered, viewport)
}

// Estimate derives the page count for content of the given rendered extent
// shown through a viewport.
func (p Paginator) Estimate(rendered, viewport float64) State {
	overlap := p.Overlap
	if overlap <= 0 || overlap > 1 {
		overlap = DefaultOverlap
	}
	s := State{
		TotalPages: 1,
		PageExtent: math.Max(viewport, 0) * overlap,
		Overlap:    overlap,
		Rendered:   math.Max(rendered, 0),
		Viewport:   math.Max(viewport, 0),
	}
	if s.Viewport <= 0 || s.Rendered <= s.Viewport {
		return s
	}
	s.TotalPages = int(math.Ceil((s.Rendered-s.Viewport)/s.PageExtent-slack)) + 1
	return s
}

// MaxScroll is the largest scroll offset the content allows.
func (s State) MaxScroll() float64 {
	return math.Max(s.Rendered-s.Viewport, 0)
}

// Locate maps a scroll offset to a 1-based page number.
func (s State) Locate(offset float64) int {
	scroll := s.MaxScroll()
	if s.TotalPages <= 1 || scroll <= 0 {
		return 1
	}
	page := int(math.Round(offset/scroll*float64(s.TotalPages-1))) + 1
	return clamp(page, 1, s.TotalPages)
}

// OffsetFor maps a page number to the scroll offset where it starts. Pages
// outside [1, TotalPages] are clamped first.
func (s State) OffsetFor(page int) float64 {
	if s.TotalPages <= 1 {
		return 0
	}
	page = clamp(page, 1, s.TotalPages)
	return float64(page-1) * s.MaxScroll() / float64(s.TotalPages-1)
}

// ClampOffset bounds offset to the scrollable range.
func (s State) ClampOffset(offset float64) float64 {
	return math.Min(math.Max(offset, 0), s.MaxScroll())
}

// Relayout recomputes pagination after a resize or font change and places
// the reader on the page containing the previous offset. When neither extent
// changed prev is kept as is.
func (p Paginator) Relayout(prev State, prevOffset, rendered, viewport float64) (State, int, float64) {
	next := prev
	if prev.TotalPages == 0 || prev.Rendered != rendered || prev.Viewport != viewport {
		next = p.Estimate(rendered, viewport)
	}
	offset := next.ClampOffset(prevOffset)
	return next, next.Locate(prevOffset), offset
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
