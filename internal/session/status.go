package session

import (
	"context"
	"errors"

	"github.com/metcalfc/folio/internal/fixed"
	"github.com/metcalfc/folio/internal/progress"
	"github.com/metcalfc/folio/internal/reader"
)

// State is a stage of the load pipeline.
type State int

const (
	Idle State = iota
	ResolvingFormat
	NeedsManualFormat
	LoadingArchive
	Parsing
	Adapting
	Ready
	Paginating
	Error
)

var stateNames = [...]string{
	Idle:              "idle",
	ResolvingFormat:   "resolving-format",
	NeedsManualFormat: "needs-manual-format",
	LoadingArchive:    "loading-archive",
	Parsing:           "parsing",
	Adapting:          "adapting",
	Ready:             "ready",
	Paginating:        "paginating",
	Error:             "error",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "invalid"
	}
	return stateNames[s]
}

// Kind classifies an error for display.
type Kind int

const (
	KindNone Kind = iota
	KindFormatUnresolved
	KindArchiveCorrupt
	KindEntryNotFound
	KindMalformedMarkup
	KindAdapterLoadFailed
	KindFetchFailed
	KindLocalPersist
	KindCancelled
	KindInternal
)

var kindMessages = map[Kind]string{
	KindFormatUnresolved:  "Could not determine the book format. Choose one manually.",
	KindArchiveCorrupt:    "The archive is damaged and could not be opened.",
	KindEntryNotFound:     "The archive does not contain an FB2 book.",
	KindMalformedMarkup:   "The book file is malformed and could not be parsed.",
	KindAdapterLoadFailed: "The document viewer failed to load the book.",
	KindFetchFailed:       "The book could not be downloaded.",
	KindLocalPersist:      "Reading progress could not be saved on this device.",
	KindCancelled:         "Loading was cancelled.",
	KindInternal:          "Something went wrong while opening the book.",
}

// Classify maps an error to its Kind.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, reader.ErrFormatUnresolved):
		return KindFormatUnresolved
	case errors.Is(err, reader.ErrArchiveCorrupt):
		return KindArchiveCorrupt
	case errors.Is(err, reader.ErrEntryNotFound):
		return KindEntryNotFound
	case errors.Is(err, reader.ErrMalformedMarkup):
		return KindMalformedMarkup
	case errors.Is(err, fixed.ErrAdapterLoadFailed):
		return KindAdapterLoadFailed
	case errors.Is(err, progress.ErrLocalPersist):
		return KindLocalPersist
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrFetchFailed):
		return KindFetchFailed
	}
	return KindInternal
}

// Retryable reports whether the user can act on the error, by retrying or
// picking another file or format.
func (k Kind) Retryable() bool {
	switch k {
	case KindNone, KindLocalPersist, KindCancelled:
		return false
	}
	return true
}

// Message is the user-facing text for k.
func (k Kind) Message() string {
	return kindMessages[k]
}

// Status is emitted on every pipeline transition.
type Status struct {
	State     State
	Kind      Kind
	Message   string
	Retryable bool
	Err       error
}

func statusFor(s State, err error) Status {
	k := Classify(err)
	return Status{State: s, Kind: k, Message: k.Message(), Retryable: k.Retryable(), Err: err}
}
