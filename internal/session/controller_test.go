package session

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/metcalfc/folio/internal/fixed"
	"github.com/metcalfc/folio/internal/progress"
	"github.com/metcalfc/folio/internal/reader"
)

const bookFB2 = `<?xml version="1.0" encoding="utf-8"?>
<FictionBook xmlns="http://www.gribuser.ru/xml/fictionbook/2.0">
<description><title-info>
<author><first-name>Лев</first-name><last-name>Толстой</last-name></author>
<book-title>Война и мир</book-title>
</title-info></description>
<body><section><title><p>Часть первая</p></title><p>Eh bien, mon prince.</p></section></body>
</FictionBook>`

type fakeFetcher struct {
	mu      sync.Mutex
	data    map[string][]byte
	fail    map[string]int
	calls   map[string]int
	started chan string
}

func newFetcher(data map[string][]byte) *fakeFetcher {
	return &fakeFetcher{data: data, fail: map[string]int{}, calls: map[string]int{}}
}

func (f *fakeFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	f.mu.Lock()
	f.calls[uri]++
	failing := f.fail[uri] > 0
	if failing {
		f.fail[uri]--
	}
	f.mu.Unlock()

	if strings.HasPrefix(uri, "slow") {
		if f.started != nil {
			f.started <- uri
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if failing {
		return nil, errors.New("connection reset")
	}
	b, ok := f.data[uri]
	if !ok {
		return nil, fmt.Errorf("%s: not found", uri)
	}
	return b, nil
}

type memStore struct {
	mu       sync.Mutex
	progress map[int64]progress.Progress
	formats  map[int64]reader.Format
	saves    int
}

func newMemStore() *memStore {
	return &memStore{progress: map[int64]progress.Progress{}, formats: map[int64]reader.Format{}}
}

func (m *memStore) LoadProgress(_ context.Context, id int64) (progress.Progress, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[id]
	return p, ok, nil
}

func (m *memStore) SaveProgress(_ context.Context, p progress.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[p.BookID] = p
	m.saves++
	return nil
}

func (m *memStore) BookFormat(_ context.Context, id int64) (reader.Format, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.formats[id], nil
}

func (m *memStore) SetBookFormat(_ context.Context, id int64, f reader.Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.formats[id] = f
	return nil
}

func (m *memStore) get(id int64) progress.Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress[id]
}

type fakeEngine struct {
	mu        sync.Mutex
	total     int
	current   int
	listeners []func(string)
	closed    bool
}

func newEngine(total int) *fakeEngine {
	return &fakeEngine{total: total, current: 1}
}

func (e *fakeEngine) TotalPages() int { return e.total }

func (e *fakeEngine) CurrentPage() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

func (e *fakeEngine) GoToPage(n int) error {
	n = clampPage(n, e.total)
	e.mu.Lock()
	e.current = n
	ls := slices.Clone(e.listeners)
	e.mu.Unlock()
	for _, fn := range ls {
		fn(fmt.Sprintf("p%d", n))
	}
	return nil
}

func (e *fakeEngine) GoToLocator(loc string) error {
	var n int
	if _, err := fmt.Sscanf(loc, "p%d", &n); err != nil {
		return fixed.ErrBadLocator
	}
	return e.GoToPage(n)
}

func (e *fakeEngine) PercentageToLocator(p float64) (string, error) {
	return fmt.Sprintf("p%d", clampPage(int(math.Ceil(p*float64(e.total)-1e-9)), e.total)), nil
}

func (e *fakeEngine) OnRelocated(fn func(string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// flakyOpener fails its first failures calls.
type flakyOpener struct {
	mu       sync.Mutex
	failures int
	attempts int
	engine   *fakeEngine
}

func (o *flakyOpener) Open(_ context.Context, _ []byte) (fixed.Engine, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
	if o.attempts <= o.failures {
		return nil, errors.New("renderer crashed")
	}
	return o.engine, nil
}

type harness struct {
	c       *Controller
	store   *memStore
	fetcher *fakeFetcher
	opener  *flakyOpener
	sleeps  []time.Duration

	mu       sync.Mutex
	statuses []Status
}

func newHarness(t *testing.T, data map[string][]byte) *harness {
	t.Helper()
	h := &harness{
		store:   newMemStore(),
		fetcher: newFetcher(data),
		opener:  &flakyOpener{engine: newEngine(10)},
	}
	h.c = New(Options{
		Fetcher: h.fetcher,
		Local:   h.store,
		Formats: h.store,
		Openers: func(f reader.Format) (fixed.Opener, bool) {
			return h.opener, f == reader.FormatPDF || f == reader.FormatEPUB
		},
		Tracker: progress.Options{Dispatch: func(f func()) { f() }},
		Sleep: func(_ context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return nil
		},
		OnStatus: func(s Status) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.statuses = append(h.statuses, s)
		},
	})
	t.Cleanup(func() { h.c.Close() })
	return h
}

func (h *harness) states() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []State
	for _, s := range h.statuses {
		out = append(out, s.State)
	}
	return out
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func equalStates(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestLoadFB2(t *testing.T) {
	h := newHarness(t, map[string][]byte{"war.fb2": []byte(bookFB2)})

	if err := h.c.Load(context.Background(), Request{BookID: 7, Source: "war.fb2"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []State{ResolvingFormat, Parsing, Ready}
	if got := h.states(); !equalStates(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
	doc := h.c.Document()
	if doc == nil || doc.Title != "Война и мир" || doc.Author != "Лев Толстой" {
		t.Fatalf("document = %+v", doc)
	}
	if h.c.Format() != reader.FormatFB2 {
		t.Errorf("format = %v", h.c.Format())
	}
	if h.store.formats[7] != reader.FormatFB2 {
		t.Errorf("stored format = %v, want fb2", h.store.formats[7])
	}
}

func TestLoadZippedFB2(t *testing.T) {
	data := zipOf(t, map[string]string{"war.fb2": bookFB2})
	h := newHarness(t, map[string][]byte{"war.fb2.zip": data})

	if err := h.c.Load(context.Background(), Request{BookID: 7, Source: "war.fb2.zip"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []State{ResolvingFormat, LoadingArchive, Parsing, Ready}
	if got := h.states(); !equalStates(got, want) {
		t.Errorf("states = %v, want %v", got, want)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		data   []byte
		kind   Kind
	}{
		{"no fb2 entry", "book.zip", zipOf(t, map[string]string{"readme.txt": "hi"}), KindEntryNotFound},
		{"corrupt archive", "book.zip", []byte("PK\x03\x04 not really"), KindArchiveCorrupt},
		{"malformed markup", "book.fb2", []byte("<FictionBook><body>"), KindMalformedMarkup},
		{"fetch failure", "missing.fb2", nil, KindFetchFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := map[string][]byte{}
			if tt.data != nil {
				data[tt.source] = tt.data
			}
			h := newHarness(t, data)

			err := h.c.Load(context.Background(), Request{BookID: 1, Source: tt.source})
			if err == nil {
				t.Fatal("expected error")
			}
			if got := Classify(err); got != tt.kind {
				t.Errorf("Classify = %v, want %v (%v)", got, tt.kind, err)
			}
			st := h.c.Status()
			if st.State != Error || st.Kind != tt.kind || !st.Retryable || st.Message == "" {
				t.Errorf("status = %+v", st)
			}
			if h.c.Document() != nil {
				t.Error("document set after failure")
			}
			if _, ok := h.store.formats[1]; ok {
				t.Error("format persisted after failure")
			}
		})
	}
}

func TestLoadNeedsManualFormat(t *testing.T) {
	// The FictionBook root sits past the sniff window.
	hidden := `<?xml version="1.0" encoding="utf-8"?>` + "\n<!--" + strings.Repeat("x", 1100) + "-->\n" +
		strings.TrimPrefix(bookFB2, `<?xml version="1.0" encoding="utf-8"?>`)
	h := newHarness(t, map[string][]byte{"download": []byte(hidden)})
	ctx := context.Background()

	err := h.c.Load(ctx, Request{BookID: 3, Source: "download"})
	if !errors.Is(err, reader.ErrFormatUnresolved) {
		t.Fatalf("Load err = %v, want ErrFormatUnresolved", err)
	}
	st := h.c.Status()
	if st.State != NeedsManualFormat || st.Kind != KindFormatUnresolved {
		t.Fatalf("status = %+v", st)
	}

	if err := h.c.ChooseFormat(ctx, reader.FormatFB2); err != nil {
		t.Fatalf("ChooseFormat: %v", err)
	}
	if h.c.State() != Ready || h.c.Document() == nil {
		t.Fatalf("state = %v after manual choice", h.c.State())
	}
	if h.store.formats[3] != reader.FormatFB2 {
		t.Errorf("stored format = %v", h.store.formats[3])
	}
}

func TestLoadUsesStoredFormat(t *testing.T) {
	h := newHarness(t, map[string][]byte{"blob": []byte("opaque")})
	h.store.progress[9] = progress.Progress{BookID: 9, CurrentPage: 2, TotalPages: 10, Format: reader.FormatEPUB, Locator: "p2"}

	if err := h.c.Load(context.Background(), Request{BookID: 9, Source: "blob"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h.c.Format() != reader.FormatEPUB {
		t.Errorf("format = %v, want epub", h.c.Format())
	}
	if got := h.c.Position().Page; got != 2 {
		t.Errorf("restored page = %d, want 2", got)
	}
}

func TestLoadSourceExtensionBeatsSavedFormat(t *testing.T) {
	h := newHarness(t, map[string][]byte{"a.pdf": []byte("%PDF-1.7")})
	h.store.progress[9] = progress.Progress{BookID: 9, CurrentPage: 2, TotalPages: 10, Format: reader.FormatEPUB, Locator: "p2"}

	if err := h.c.Load(context.Background(), Request{BookID: 9, Source: "a.pdf"}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if h.c.Format() != reader.FormatPDF {
		t.Errorf("format = %v, want pdf", h.c.Format())
	}
	if _, ok := h.c.Saved(); ok {
		t.Error("progress saved for another format was restored")
	}
	if got := h.c.Position().Page; got != 1 {
		t.Errorf("page = %d, want 1", got)
	}
}

func TestAdapterRetries(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		h := newHarness(t, map[string][]byte{"a.pdf": []byte("%PDF-1.7")})
		h.opener.failures = 2

		if err := h.c.Load(context.Background(), Request{BookID: 1, Source: "a.pdf"}); err != nil {
			t.Fatalf("Load: %v", err)
		}
		if h.opener.attempts != 3 {
			t.Errorf("attempts = %d, want 3", h.opener.attempts)
		}
		if len(h.sleeps) != 2 || h.sleeps[0] != DefaultRetryDelay {
			t.Errorf("sleeps = %v", h.sleeps)
		}
		want := []State{ResolvingFormat, Adapting, Ready}
		if got := h.states(); !equalStates(got, want) {
			t.Errorf("states = %v, want %v", got, want)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		h := newHarness(t, map[string][]byte{"a.pdf": []byte("%PDF-1.7")})
		h.opener.failures = 5

		err := h.c.Load(context.Background(), Request{BookID: 1, Source: "a.pdf"})
		if !errors.Is(err, fixed.ErrAdapterLoadFailed) {
			t.Fatalf("err = %v, want ErrAdapterLoadFailed", err)
		}
		if h.opener.attempts != 3 {
			t.Errorf("attempts = %d, want 3", h.opener.attempts)
		}
		if st := h.c.Status(); st.State != Error || st.Kind != KindAdapterLoadFailed {
			t.Errorf("status = %+v", st)
		}
	})
}

func TestFixedRestoreAndRelocation(t *testing.T) {
	tests := []struct {
		name  string
		saved progress.Progress
		total int
		want  int
	}{
		{"same total replays locator", progress.Progress{CurrentPage: 3, TotalPages: 10, Locator: "p3"}, 10, 3},
		{"changed total maps fraction", progress.Progress{CurrentPage: 3, TotalPages: 10, Locator: "p3"}, 20, 6},
		{"bad locator falls back", progress.Progress{CurrentPage: 4, TotalPages: 10, Locator: "garbage"}, 10, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, map[string][]byte{"a.pdf": []byte("%PDF-1.7")})
			h.opener.engine = newEngine(tt.total)
			tt.saved.BookID = 5
			tt.saved.Format = reader.FormatPDF
			h.store.progress[5] = tt.saved

			if err := h.c.Load(context.Background(), Request{BookID: 5, Source: "a.pdf"}); err != nil {
				t.Fatalf("Load: %v", err)
			}
			if got := h.c.Position().Page; got != tt.want {
				t.Errorf("page = %d, want %d", got, tt.want)
			}
		})
	}

	h := newHarness(t, map[string][]byte{"a.pdf": []byte("%PDF-1.7")})
	ctx := context.Background()
	if err := h.c.Load(ctx, Request{BookID: 5, Source: "a.pdf"}); err != nil {
		t.Fatal(err)
	}
	pos, err := h.c.NextPage(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pos.Page != 2 || pos.Locator != "p2" {
		t.Errorf("position = %+v", pos)
	}
	saved := h.store.get(5)
	if saved.CurrentPage != 2 || saved.TotalPages != 10 || saved.Locator != "p2" || saved.Format != reader.FormatPDF {
		t.Errorf("saved = %+v", saved)
	}
	if pos, _ := h.c.GoToPage(ctx, 50); pos.Page != 10 {
		t.Errorf("GoToPage(50) page = %d, want 10", pos.Page)
	}
}

func TestFixedFirstRenderRecordsProgress(t *testing.T) {
	t.Run("fresh book", func(t *testing.T) {
		h := newHarness(t, map[string][]byte{"a.pdf": []byte("%PDF-1.7")})

		if err := h.c.Load(context.Background(), Request{BookID: 5, Source: "a.pdf"}); err != nil {
			t.Fatalf("Load: %v", err)
		}
		saved, ok, _ := h.store.LoadProgress(context.Background(), 5)
		if !ok {
			t.Fatal("no progress record after Load")
		}
		if saved.CurrentPage != 1 || saved.TotalPages != 10 || saved.Locator != "p1" || saved.Format != reader.FormatPDF {
			t.Errorf("saved = %+v", saved)
		}
	})

	t.Run("page count changed", func(t *testing.T) {
		h := newHarness(t, map[string][]byte{"a.epub": []byte("epub")})
		h.opener.engine = newEngine(20)
		h.store.progress[5] = progress.Progress{BookID: 5, CurrentPage: 3, TotalPages: 10, Format: reader.FormatEPUB, Locator: "p3"}

		if err := h.c.Load(context.Background(), Request{BookID: 5, Source: "a.epub"}); err != nil {
			t.Fatalf("Load: %v", err)
		}
		saved := h.store.get(5)
		if saved.CurrentPage != 6 || saved.TotalPages != 20 || saved.Locator != "p6" {
			t.Errorf("saved = %+v, want page 6 of 20 at p6", saved)
		}
	})
}

func TestLayoutRestoreAndResize(t *testing.T) {
	ctx := context.Background()

	h := newHarness(t, map[string][]byte{"war.fb2": []byte(bookFB2)})
	h.store.progress[7] = progress.Progress{BookID: 7, CurrentPage: 5, TotalPages: 10, Format: reader.FormatFB2}
	if err := h.c.Load(ctx, Request{BookID: 7, Source: "war.fb2"}); err != nil {
		t.Fatal(err)
	}

	pos, err := h.c.Layout(ctx, 9100, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if pos.TotalPages != 10 || pos.Page != 5 || pos.Offset != 3600 {
		t.Fatalf("first layout = %+v, want page 5/10 at 3600", pos)
	}

	pos, err = h.c.Layout(ctx, 8000, 1400)
	if err != nil {
		t.Fatal(err)
	}
	if pos.TotalPages != 7 || pos.Page != 4 || pos.Offset != 3600 {
		t.Errorf("relayout = %+v, want page 4/7 at 3600", pos)
	}
	if saved := h.store.get(7); saved.CurrentPage != 4 || saved.TotalPages != 7 {
		t.Errorf("saved = %+v", saved)
	}
	if h.c.State() != Ready {
		t.Errorf("state = %v after layout", h.c.State())
	}

	// A saved position from a different page count maps by fraction.
	h2 := newHarness(t, map[string][]byte{"war.fb2": []byte(bookFB2)})
	h2.store.progress[7] = progress.Progress{BookID: 7, CurrentPage: 3, TotalPages: 5, Format: reader.FormatFB2}
	if err := h2.c.Load(ctx, Request{BookID: 7, Source: "war.fb2"}); err != nil {
		t.Fatal(err)
	}
	pos, err = h2.c.Layout(ctx, 9100, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if pos.Offset != 4050 || pos.Page != 6 {
		t.Errorf("fraction restore = %+v, want page 6 at 4050", pos)
	}
}

func TestReflowNavigation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, map[string][]byte{"war.fb2": []byte(bookFB2)})
	if err := h.c.Load(ctx, Request{BookID: 7, Source: "war.fb2"}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.c.NextPage(ctx); !errors.Is(err, ErrNotReady) {
		t.Errorf("NextPage before layout err = %v, want ErrNotReady", err)
	}

	pos, err := h.c.Layout(ctx, 3000, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if pos.Page != 1 || pos.TotalPages != 4 {
		t.Fatalf("layout = %+v", pos)
	}

	steps := []struct {
		name string
		do   func() (Position, error)
		page int
		off  float64
	}{
		{"prev at start", func() (Position, error) { return h.c.PrevPage(ctx) }, 1, 0},
		{"next", func() (Position, error) { return h.c.NextPage(ctx) }, 2, 2000.0 / 3},
		{"past the end", func() (Position, error) { return h.c.GoToPage(ctx, 99) }, 4, 2000},
		{"next at end", func() (Position, error) { return h.c.NextPage(ctx) }, 4, 2000},
		{"scroll", func() (Position, error) { return h.c.Scroll(ctx, 1400) }, 3, 1400},
		{"scroll past max", func() (Position, error) { return h.c.Scroll(ctx, 5000) }, 4, 2000},
	}
	for _, s := range steps {
		pos, err := s.do()
		if err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		if pos.Page != s.page || math.Abs(pos.Offset-s.off) > 1e-9 {
			t.Errorf("%s: position = %+v, want page %d at %v", s.name, pos, s.page, s.off)
		}
	}
	if saved := h.store.get(7); saved.CurrentPage != 4 || saved.TotalPages != 4 {
		t.Errorf("saved = %+v", saved)
	}
}

func TestNavigationNotReady(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	if _, err := h.c.NextPage(ctx); !errors.Is(err, ErrNotReady) {
		t.Errorf("NextPage err = %v", err)
	}
	if _, err := h.c.Layout(ctx, 100, 10); !errors.Is(err, ErrNotReady) {
		t.Errorf("Layout err = %v", err)
	}
	if err := h.c.Retry(ctx); !errors.Is(err, ErrNotReady) {
		t.Errorf("Retry err = %v", err)
	}
}

func TestLoadSupersedesInFlight(t *testing.T) {
	h := newHarness(t, map[string][]byte{"war.fb2": []byte(bookFB2)})
	h.fetcher.started = make(chan string, 1)
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		first <- h.c.Load(ctx, Request{BookID: 1, Source: "slow.pdf"})
	}()
	<-h.fetcher.started

	if err := h.c.Load(ctx, Request{BookID: 7, Source: "war.fb2"}); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if err := <-first; !errors.Is(err, context.Canceled) {
		t.Errorf("first Load err = %v, want context.Canceled", err)
	}
	if h.c.State() != Ready || h.c.Format() != reader.FormatFB2 {
		t.Errorf("state = %v format = %v", h.c.State(), h.c.Format())
	}
	if h.opener.attempts != 0 {
		t.Errorf("superseded load opened an engine")
	}
}

func TestRetry(t *testing.T) {
	h := newHarness(t, map[string][]byte{"war.fb2": []byte(bookFB2)})
	h.fetcher.fail["war.fb2"] = 1
	ctx := context.Background()

	if err := h.c.Load(ctx, Request{BookID: 7, Source: "war.fb2"}); err == nil {
		t.Fatal("expected fetch failure")
	}
	if st := h.c.Status(); st.State != Error || st.Kind != KindFetchFailed || !st.Retryable {
		t.Fatalf("status = %+v", st)
	}
	if err := h.c.Retry(ctx); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if h.c.State() != Ready {
		t.Errorf("state = %v", h.c.State())
	}
	if h.fetcher.calls["war.fb2"] != 2 {
		t.Errorf("fetches = %d", h.fetcher.calls["war.fb2"])
	}
}

func TestClose(t *testing.T) {
	h := newHarness(t, map[string][]byte{"a.pdf": []byte("%PDF-1.7")})
	if err := h.c.Load(context.Background(), Request{BookID: 1, Source: "a.pdf"}); err != nil {
		t.Fatal(err)
	}
	if err := h.c.Close(); err != nil {
		t.Fatal(err)
	}
	if !h.opener.engine.closed {
		t.Error("engine not closed")
	}
	if h.c.State() != Idle || h.c.Engine() != nil {
		t.Errorf("state = %v after Close", h.c.State())
	}
	if _, err := h.c.NextPage(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Errorf("NextPage after Close err = %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{reader.ErrFormatUnresolved, KindFormatUnresolved},
		{fmt.Errorf("wrap: %w", reader.ErrArchiveCorrupt), KindArchiveCorrupt},
		{reader.ErrEntryNotFound, KindEntryNotFound},
		{reader.ErrMalformedMarkup, KindMalformedMarkup},
		{fixed.ErrAdapterLoadFailed, KindAdapterLoadFailed},
		{progress.ErrLocalPersist, KindLocalPersist},
		{context.Canceled, KindCancelled},
		{fmt.Errorf("%w: a.pdf: %w", ErrFetchFailed, errors.New("dial tcp: refused")), KindFetchFailed},
		{fmt.Errorf("%w: a.pdf: %w", ErrFetchFailed, context.Canceled), KindCancelled},
		{fmt.Errorf("%w: a.pdf: %w", ErrFetchFailed, context.DeadlineExceeded), KindFetchFailed},
		{errors.New("reader: no decoder registered for pdf"), KindInternal},
	}
	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
	if KindLocalPersist.Retryable() || !KindArchiveCorrupt.Retryable() || KindInternal.Message() == "" {
		t.Error("unexpected Retryable")
	}
	if Ready.String() != "ready" || State(99).String() != "invalid" {
		t.Error("unexpected State names")
	}
}
