// Package progress records reading position locally on every navigation and
// mirrors it to a remote store under a rate limit.
package progress

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/metcalfc/folio/internal/reader"
)

var (
	// ErrRemoteSyncFailed wraps failures of the remote mirror. It is logged,
	// never returned to the reader.
	ErrRemoteSyncFailed = errors.New("progress: remote sync failed")

	// ErrLocalPersist wraps failures of the local store.
	ErrLocalPersist = errors.New("progress: local persist failed")
)

// Progress is the saved reading position of one book.
type Progress struct {
	BookID       int64         `json:"bookId"`
	CurrentPage  int           `json:"currentPage"`
	TotalPages   int           `json:"totalPages"`
	LastReadDate time.Time     `json:"lastReadDate"`
	Format       reader.Format `json:"format"`
	Locator      string        `json:"locator,omitempty"`
}

// Clamp returns p with TotalPages ≥ 1 and CurrentPage in [1, TotalPages].
func (p Progress) Clamp() Progress {
	if p.TotalPages < 1 {
		p.TotalPages = 1
	}
	if p.CurrentPage < 1 {
		p.CurrentPage = 1
	}
	if p.CurrentPage > p.TotalPages {
		p.CurrentPage = p.TotalPages
	}
	return p
}

// Percentage is the share of the book read, rounded to a whole percent.
func (p Progress) Percentage() float64 {
	p = p.Clamp()
	return math.Round(float64(p.CurrentPage) / float64(p.TotalPages) * 100)
}

// Completed reports whether the reader reached the last page.
func (p Progress) Completed() bool {
	p = p.Clamp()
	return p.CurrentPage == p.TotalPages
}

// Fraction is the position of the current page start in [0, 1]. It lets a
// position survive a change of the total page count.
func (p Progress) Fraction() float64 {
	p = p.Clamp()
	if p.TotalPages == 1 {
		return 0
	}
	return float64(p.CurrentPage-1) / float64(p.TotalPages-1)
}

// Update is the payload mirrored to the remote store.
type Update struct {
	BookID         int64   `json:"-"`
	LastPage       int     `json:"lastPage"`
	ReadPercentage float64 `json:"readPercentage"`
	Completed      bool    `json:"completed"`
}

// UpdateFor builds the remote payload for p.
func UpdateFor(p Progress) Update {
	p = p.Clamp()
	return Update{
		BookID:         p.BookID,
		LastPage:       p.CurrentPage,
		ReadPercentage: p.Percentage(),
		Completed:      p.Completed(),
	}
}

// LocalStore is the durable per-book record on this device.
type LocalStore interface {
	LoadProgress(ctx context.Context, bookID int64) (Progress, bool, error)
	SaveProgress(ctx context.Context, p Progress) error
}

// RemoteStore mirrors progress to the account.
type RemoteStore interface {
	PushProgress(ctx context.Context, u Update) error
}

// History is the mirrored record as a remote store keeps it.
type History struct {
	Update
	LastReadDate time.Time
}
