package paginate

import (
	"math"
	"testing"
)

func TestEstimate(t *testing.T) {
	tests := []struct {
		name               string
		rendered, viewport float64
		want               int
	}{
		{"three and a third viewports", 3000, 1000, 4},
		{"fits exactly", 1000, 1000, 1},
		{"shorter than viewport", 400, 1000, 1},
		{"empty", 0, 1000, 1},
		{"no viewport yet", 5000, 0, 1},
		{"one page extent past viewport", 1900, 1000, 2},
		{"just over one extent", 1901, 1000, 3},
		{"ten pages", 9100, 1000, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Estimate(tt.rendered, tt.viewport)
			if s.TotalPages != tt.want {
				t.Errorf("Estimate(%v, %v).TotalPages = %d, want %d", tt.rendered, tt.viewport, s.TotalPages, tt.want)
			}
		})
	}
}

func TestEstimatePageExtent(t *testing.T) {
	s := Estimate(3000, 1000)
	if math.Abs(s.PageExtent-900) > 1e-9 {
		t.Errorf("PageExtent = %v, want 900", s.PageExtent)
	}
	if s.MaxScroll() != 2000 {
		t.Errorf("MaxScroll() = %v, want 2000", s.MaxScroll())
	}
}

func TestNewOverlap(t *testing.T) {
	if New(0).Overlap != DefaultOverlap || New(1.5).Overlap != DefaultOverlap {
		t.Error("invalid overlaps should fall back to the default")
	}
	s := New(0.5).Estimate(3000, 1000)
	// (3000-1000)/500 = 4, plus the first page.
	if s.TotalPages != 5 {
		t.Errorf("TotalPages = %d, want 5", s.TotalPages)
	}
}

func TestLocateAndOffsetFor(t *testing.T) {
	s := Estimate(9100, 1000) // 10 pages over 8100 of scroll

	tests := []struct {
		offset float64
		page   int
	}{
		{0, 1},
		{-50, 1},
		{900, 2},
		{3600, 5},
		{8100, 10},
		{99999, 10},
	}
	for _, tt := range tests {
		if got := s.Locate(tt.offset); got != tt.page {
			t.Errorf("Locate(%v) = %d, want %d", tt.offset, got, tt.page)
		}
	}

	for page := 1; page <= s.TotalPages; page++ {
		if got := s.Locate(s.OffsetFor(page)); got != page {
			t.Errorf("Locate(OffsetFor(%d)) = %d", page, got)
		}
	}
	if s.OffsetFor(0) != 0 {
		t.Errorf("OffsetFor(0) = %v, want 0", s.OffsetFor(0))
	}
	if s.OffsetFor(42) != s.MaxScroll() {
		t.Errorf("OffsetFor(42) = %v, want %v", s.OffsetFor(42), s.MaxScroll())
	}
}

func TestSinglePage(t *testing.T) {
	s := Estimate(500, 1000)
	if got := s.Locate(300); got != 1 {
		t.Errorf("Locate = %d, want 1", got)
	}
	if got := s.OffsetFor(3); got != 0 {
		t.Errorf("OffsetFor = %v, want 0", got)
	}
}

func TestRelayoutAfterResize(t *testing.T) {
	p := New(DefaultOverlap)
	before := p.Estimate(9100, 1000)
	offset := before.OffsetFor(5)
	if before.TotalPages != 10 || offset != 3600 {
		t.Fatalf("setup: %d pages, page 5 at %v", before.TotalPages, offset)
	}

	after, page, newOffset := p.Relayout(before, offset, 8000, 1400)
	if after.TotalPages != 7 {
		t.Errorf("TotalPages = %d, want 7", after.TotalPages)
	}
	if page != 4 {
		t.Errorf("page = %d, want 4", page)
	}
	if newOffset != 3600 {
		t.Errorf("offset = %v, want 3600", newOffset)
	}
}

func TestRelayoutClampsOffset(t *testing.T) {
	p := New(DefaultOverlap)
	before := p.Estimate(9100, 1000)

	after, page, offset := p.Relayout(before, 8100, 2000, 1000)
	if after.TotalPages != 3 {
		t.Fatalf("TotalPages = %d, want 3", after.TotalPages)
	}
	if page != after.TotalPages {
		t.Errorf("page = %d, want last page", page)
	}
	if offset != after.MaxScroll() {
		t.Errorf("offset = %v, want %v", offset, after.MaxScroll())
	}

	after, page, offset = p.Relayout(after, 500, 800, 1000)
	if after.TotalPages != 1 || page != 1 || offset != 0 {
		t.Errorf("shrunk content: pages=%d page=%d offset=%v", after.TotalPages, page, offset)
	}
}

func TestRelayoutUnchanged(t *testing.T) {
	p := New(DefaultOverlap)
	s := p.Estimate(3000, 1000)
	same, page, _ := p.Relayout(s, 1800, 3000, 1000)
	if same != s {
		t.Errorf("state changed without a resize: %+v vs %+v", same, s)
	}
	if page != 4 {
		t.Errorf("page = %d, want 4", page)
	}
}
