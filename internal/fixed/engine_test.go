package fixed

import (
	"context"
	"testing"

	"github.com/metcalfc/folio/internal/reader"
)

func TestPagerGoToPageClamps(t *testing.T) {
	p := newPager(5, pdfLocator)
	var got []string
	p.OnRelocated(func(loc string) { got = append(got, loc) })

	for _, n := range []int{3, 0, 99} {
		if err := p.GoToPage(n); err != nil {
			t.Fatalf("GoToPage(%d): %v", n, err)
		}
	}
	if p.CurrentPage() != 5 {
		t.Errorf("CurrentPage() = %d, want 5", p.CurrentPage())
	}
	want := []string{"#page=3", "#page=1", "#page=5"}
	if len(got) != len(want) {
		t.Fatalf("relocations = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("relocation %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPercentageToLocator(t *testing.T) {
	p := newPager(10, epubLocator)
	tests := []struct {
		pct  float64
		want string
	}{
		{0, "epubcfi(/6/2!)"},
		{0.3, "epubcfi(/6/6!)"},
		{0.5, "epubcfi(/6/10!)"},
		{0.51, "epubcfi(/6/12!)"},
		{1, "epubcfi(/6/20!)"},
		{7, "epubcfi(/6/20!)"},
	}
	for _, tt := range tests {
		got, err := p.PercentageToLocator(tt.pct)
		if err != nil {
			t.Fatalf("PercentageToLocator(%v): %v", tt.pct, err)
		}
		if got != tt.want {
			t.Errorf("PercentageToLocator(%v) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}

func TestOpenerFor(t *testing.T) {
	for _, f := range []reader.Format{reader.FormatEPUB, reader.FormatPDF} {
		if _, ok := OpenerFor(f); !ok {
			t.Errorf("no opener for %v", f)
		}
	}
	if _, ok := OpenerFor(reader.FormatFB2); ok {
		t.Error("fb2 is reflowable and should have no fixed opener")
	}
}

func TestOpenersRejectGarbage(t *testing.T) {
	for _, open := range []OpenerFunc{OpenEPUB, OpenPDF} {
		if _, err := open(context.Background(), []byte("definitely not a book")); err == nil {
			t.Error("expected error for garbage input")
		}
	}
}

func TestOpenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := OpenPDF(ctx, buildPDF(t, []string{"x"})); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
