// Package remote mirrors reading progress to the user's account: an HTTP
// client for the reading-history API, the chi handler that serves it, and
// a Firestore-backed store.
package remote

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/metcalfc/folio/internal/progress"
)

// ErrUnauthorized is returned when the server rejects the bearer token.
var ErrUnauthorized = errors.New("remote: unauthorized")

// Store is a backend that keeps the last mirrored record per book.
type Store interface {
	PushProgress(ctx context.Context, u progress.Update) error
	History(ctx context.Context, bookID int64) (progress.History, bool, error)
}

// historyPath is the reading-history resource of one book.
func historyPath(bookID int64) string {
	return "/profile/reading-history/" + strconv.FormatInt(bookID, 10)
}

// record is the JSON form of a reading-history entry.
type record struct {
	BookID         int64     `json:"bookId" firestore:"bookId"`
	LastPage       int       `json:"lastPage" firestore:"lastPage"`
	ReadPercentage float64   `json:"readPercentage" firestore:"readPercentage"`
	Completed      bool      `json:"completed" firestore:"completed"`
	LastReadDate   time.Time `json:"lastReadDate" firestore:"lastReadDate"`
}

func recordFrom(h progress.History) record {
	return record{
		BookID:         h.BookID,
		LastPage:       h.LastPage,
		ReadPercentage: h.ReadPercentage,
		Completed:      h.Completed,
		LastReadDate:   h.LastReadDate,
	}
}

func (r record) history() progress.History {
	return progress.History{
		Update: progress.Update{
			BookID:         r.BookID,
			LastPage:       r.LastPage,
			ReadPercentage: r.ReadPercentage,
			Completed:      r.Completed,
		},
		LastReadDate: r.LastReadDate,
	}
}
