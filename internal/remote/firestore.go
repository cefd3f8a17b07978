package remote

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"

	"github.com/metcalfc/folio/internal/progress"
)

// DefaultCollection holds one document per book, keyed by book id.
const DefaultCollection = "reading_history"

// FirestoreStore keeps reading history in Firestore.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// NewFirestoreClient creates a Firestore client for projectID. credentials
// is an optional service-account JSON file; empty uses application default
// credentials.
func NewFirestoreClient(ctx context.Context, projectID, credentials string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("remote: projectID must be provided to create a firestore client")
	}
	var opts []option.ClientOption
	if credentials != "" {
		opts = append(opts, option.WithCredentialsFile(credentials))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("remote: create firestore client: %w", err)
	}
	return client, nil
}

// NewFirestoreStore wraps client. An empty collection selects
// DefaultCollection.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &FirestoreStore{client: client, collection: collection, now: time.Now}
}

func (s *FirestoreStore) doc(bookID int64) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(strconv.FormatInt(bookID, 10))
}

// PushProgress merges the update into the book's document.
func (s *FirestoreStore) PushProgress(ctx context.Context, u progress.Update) error {
	_, err := s.doc(u.BookID).Set(ctx, map[string]any{
		"bookId":         u.BookID,
		"lastPage":       u.LastPage,
		"readPercentage": u.ReadPercentage,
		"completed":      u.Completed,
		"lastReadDate":   s.now().UTC(),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("remote: firestore set %d: %w", u.BookID, err)
	}
	return nil
}

// History reads the book's document.
func (s *FirestoreStore) History(ctx context.Context, bookID int64) (progress.History, bool, error) {
	snap, err := s.doc(bookID).Get(ctx)
	if snap != nil && !snap.Exists() {
		return progress.History{}, false, nil
	}
	if err != nil {
		return progress.History{}, false, fmt.Errorf("remote: firestore get %d: %w", bookID, err)
	}
	var rec record
	if err := snap.DataTo(&rec); err != nil {
		return progress.History{}, false, fmt.Errorf("remote: firestore decode %d: %w", bookID, err)
	}
	rec.BookID = bookID
	return rec.history(), true, nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
