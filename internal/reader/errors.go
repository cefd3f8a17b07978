package reader

import "errors"

// Sentinel errors returned while resolving and decoding a book.
var (
	// ErrFormatUnresolved indicates no hint identified the book's format.
	// The caller is expected to ask for a manual choice.
	ErrFormatUnresolved = errors.New("reader: book format could not be determined")

	// ErrArchiveCorrupt indicates a compressed container could not be opened
	// or its selected entry could not be decompressed.
	ErrArchiveCorrupt = errors.New("reader: archive is corrupt")

	// ErrEntryNotFound indicates the archive holds no entry with the
	// expected extension.
	ErrEntryNotFound = errors.New("reader: no matching entry in archive")

	// ErrMalformedMarkup indicates the book markup is not well-formed.
	ErrMalformedMarkup = errors.New("reader: malformed markup")
)
