package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/metcalfc/folio/internal/reader"
)

// Remote send thresholds.
const (
	DefaultMinInterval = time.Second
	DefaultMaxInterval = 3 * time.Second
	DefaultSendTimeout = 10 * time.Second
)

// Policy decides when a navigation event is mirrored remotely.
type Policy struct {
	// MinInterval must pass before a page change is sent.
	MinInterval time.Duration
	// MaxInterval after which any event is sent.
	MaxInterval time.Duration
}

// DefaultPolicy returns the 1s/3s policy.
func DefaultPolicy() Policy {
	return Policy{MinInterval: DefaultMinInterval, MaxInterval: DefaultMaxInterval}
}

// Allow reports whether an event at now for page should be sent, given the
// last successful send. sent is false until the first send succeeds.
func (p Policy) Allow(now time.Time, page int, sent bool, lastAt time.Time, lastPage int) bool {
	if !sent {
		return true
	}
	elapsed := now.Sub(lastAt)
	if elapsed > p.MaxInterval {
		return true
	}
	return page != lastPage && elapsed > p.MinInterval
}

// Options configures a Tracker. Zero values select defaults.
type Options struct {
	Policy Policy
	// Now is the tracker clock.
	Now func() time.Time
	// Dispatch runs a remote send. The default runs it on a new goroutine.
	Dispatch func(func())
	// SendTimeout bounds a single remote send.
	SendTimeout time.Duration
	Logger      *slog.Logger
}

func (o *Options) defaults() {
	if o.Policy.MinInterval <= 0 {
		o.Policy.MinInterval = DefaultMinInterval
	}
	if o.Policy.MaxInterval <= 0 {
		o.Policy.MaxInterval = DefaultMaxInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Dispatch == nil {
		o.Dispatch = func(f func()) { go f() }
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = DefaultSendTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Tracker records navigation for one reading session. Rate-limit state is
// per instance.
type Tracker struct {
	bookID int64
	local  LocalStore
	remote RemoteStore
	opts   Options
	logger *slog.Logger

	mu            sync.Mutex
	sent          bool
	lastSentAt    time.Time
	lastSentPage  int
	inFlight      bool
	localReported bool
	wg            sync.WaitGroup
}

// NewTracker returns a tracker for bookID. remote may be nil for offline
// reading.
func NewTracker(bookID int64, local LocalStore, remote RemoteStore, opts Options) *Tracker {
	opts.defaults()
	return &Tracker{
		bookID: bookID,
		local:  local,
		remote: remote,
		opts:   opts,
		logger: opts.Logger.With("component", "progress", "book_id", bookID),
	}
}

// OnNavigate records a position change. The local write happens before
// return; the remote mirror is sent in the background when the policy
// allows. Only the first local failure of a session is returned.
func (t *Tracker) OnNavigate(ctx context.Context, current, total int, format reader.Format, locator string) (Progress, error) {
	now := t.opts.Now()
	p := Progress{
		BookID:       t.bookID,
		CurrentPage:  current,
		TotalPages:   total,
		LastReadDate: now,
		Format:       format,
		Locator:      locator,
	}.Clamp()

	var persistErr error
	if t.local != nil {
		if err := t.local.SaveProgress(ctx, p); err != nil {
			t.logger.Warn("saving progress locally", "page", p.CurrentPage, "error", err)
			t.mu.Lock()
			if !t.localReported {
				t.localReported = true
				persistErr = fmt.Errorf("%w: %v", ErrLocalPersist, err)
			}
			t.mu.Unlock()
		}
	}

	if t.remote != nil {
		t.maybeSend(ctx, now, p)
	}
	return p, persistErr
}

func (t *Tracker) maybeSend(ctx context.Context, now time.Time, p Progress) {
	t.mu.Lock()
	if t.inFlight || !t.opts.Policy.Allow(now, p.CurrentPage, t.sent, t.lastSentAt, t.lastSentPage) {
		t.mu.Unlock()
		return
	}
	t.inFlight = true
	t.mu.Unlock()

	u := UpdateFor(p)
	t.wg.Add(1)
	t.opts.Dispatch(func() {
		defer t.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.opts.SendTimeout)
		defer cancel()

		err := t.remote.PushProgress(sendCtx, u)

		t.mu.Lock()
		defer t.mu.Unlock()
		t.inFlight = false
		if err != nil {
			t.logger.Warn("mirroring progress", "page", u.LastPage,
				"error", fmt.Errorf("%w: %v", ErrRemoteSyncFailed, err))
			return
		}
		t.sent = true
		t.lastSentAt = now
		t.lastSentPage = u.LastPage
		t.logger.Debug("progress mirrored", "page", u.LastPage, "percent", u.ReadPercentage)
	})
}

// Wait blocks until dispatched remote sends finish.
func (t *Tracker) Wait() {
	t.wg.Wait()
}
