package reader

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
)

// MaxEntrySize is the largest decompressed archive entry OpenInner accepts.
// It guards against zip bombs.
const MaxEntrySize int64 = 256 * 1024 * 1024

// Entry is a decompressed file taken from an archive.
type Entry struct {
	Name string
	Data []byte
}

// OpenInner opens a zip container and returns the first entry, in archive
// order, whose name ends with ext (case-insensitive). It fails with
// ErrArchiveCorrupt when the container or the entry cannot be read and with
// ErrEntryNotFound when no entry matches.
func OpenInner(r io.ReaderAt, size int64, ext string) (*Entry, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
	}

	ext = strings.ToLower(ext)
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ext) {
			continue
		}
		data, err := readEntry(f, MaxEntrySize)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrArchiveCorrupt, err)
		}
		return &Entry{Name: f.Name, Data: data}, nil
	}
	return nil, fmt.Errorf("%w: no %s entry among %d files", ErrEntryNotFound, ext, len(zr.File))
}

// readEntry reads a zip entry, refusing content larger than limit even when
// the declared size is forged.
func readEntry(f *zip.File, limit int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("entry %s too large: %d bytes (max %d)", f.Name, f.UncompressedSize64, limit)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("entry %s exceeds %d bytes", f.Name, limit)
	}
	return data, nil
}
