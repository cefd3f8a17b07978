package reader

import (
	"archive/zip"
	"bytes"
	"net/url"
	"path"
	"strings"
)

// Hints is the ordered evidence consulted once per load to decide a format.
type Hints struct {
	// Explicit is a format the caller already knows.
	Explicit Format
	// Stored is the format previously persisted for this book id.
	Stored Format
	// Source is the file name or URL the book bytes came from.
	Source string
	// Saved is the format recorded with the book's reading progress.
	Saved Format
	// Data holds the raw book bytes when they are already available.
	Data []byte
}

// Resolve picks a format from h. The first hint that identifies a format wins:
// explicit, stored, source extension, saved progress, then content sniffing. It never fails;
// FormatUnknown means the caller must ask for a manual choice.
func Resolve(h Hints) Format {
	if h.Explicit != FormatUnknown {
		return h.Explicit
	}
	if h.Stored != FormatUnknown {
		return h.Stored
	}
	if f, _ := FromSource(h.Source); f != FormatUnknown {
		return f
	}
	if h.Saved != FormatUnknown {
		return h.Saved
	}
	if len(h.Data) > 0 {
		f, _ := Sniff(h.Data)
		return f
	}
	return FormatUnknown
}

// FromSource maps the extension of a file name or URL to a format. The
// second result reports whether the source is a compressed container.
func FromSource(source string) (Format, bool) {
	name := sourcePath(source)
	switch {
	case strings.HasSuffix(name, ".fb2.zip"), strings.HasSuffix(name, ".zip"):
		return FormatFB2, true
	case strings.HasSuffix(name, ".fb2"):
		return FormatFB2, false
	case strings.HasSuffix(name, ".epub"):
		return FormatEPUB, false
	case strings.HasSuffix(name, ".pdf"):
		return FormatPDF, false
	}
	return FormatUnknown, false
}

// Compressed reports whether an FB2 book must be unpacked before decoding.
// The source extension decides when present, otherwise the zip signature.
func Compressed(source string, data []byte) bool {
	if f, zipped := FromSource(source); f != FormatUnknown {
		return zipped
	}
	return bytes.HasPrefix(data, zipMagic)
}

var (
	pdfMagic = []byte("%PDF-")
	zipMagic = []byte("PK\x03\x04")
)

const (
	epubMimetype = "application/epub+zip"
	sniffWindow  = 1024
)

// Sniff inspects book content. The second result reports a compressed FB2.
func Sniff(data []byte) (Format, bool) {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return FormatPDF, false
	case bytes.HasPrefix(data, zipMagic):
		return sniffZip(data)
	}
	head := data
	if len(head) > sniffWindow {
		head = head[:sniffWindow]
	}
	if bytes.Contains(head, []byte("<FictionBook")) {
		return FormatFB2, false
	}
	return FormatUnknown, false
}

func sniffZip(data []byte) (Format, bool) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return FormatUnknown, false
	}
	for _, f := range zr.File {
		if f.Name == "mimetype" {
			b, err := readEntry(f, 64)
			if err == nil && strings.TrimSpace(string(b)) == epubMimetype {
				return FormatEPUB, false
			}
		}
	}
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".fb2") {
			return FormatFB2, true
		}
	}
	return FormatUnknown, false
}

// sourcePath strips URL query and fragment and lowercases the path.
func sourcePath(source string) string {
	source = strings.TrimSpace(source)
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && u.Path != "" {
		source = u.Path
	} else if i := strings.IndexAny(source, "?#"); i >= 0 {
		source = source[:i]
	}
	return strings.ToLower(path.Base(source))
}
