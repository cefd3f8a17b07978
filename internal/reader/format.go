package reader

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Format identifies a supported book format.
type Format int

const (
	FormatUnknown Format = iota
	FormatPDF
	FormatEPUB
	FormatFB2
)

var formatNames = map[Format]string{
	FormatUnknown: "unknown",
	FormatPDF:     "pdf",
	FormatEPUB:    "epub",
	FormatFB2:     "fb2",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return formatNames[FormatUnknown]
}

// Reflowable reports whether the format has no native page geometry and
// must be paginated by estimation.
func (f Format) Reflowable() bool {
	return f == FormatFB2
}

// ParseFormat maps a format name ("pdf", "EPUB", ".fb2") to a Format.
// Unrecognised names yield FormatUnknown.
func ParseFormat(s string) Format {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	for f, name := range formatNames {
		if name == s {
			return f
		}
	}
	return FormatUnknown
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Format) UnmarshalText(b []byte) error {
	*f = ParseFormat(string(b))
	return nil
}

// Decoder turns the bytes of a markup-based book into a Document.
type Decoder interface {
	Format() Format
	Decode(r io.Reader) (*Document, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[Format]Decoder)
)

// Register adds a decoder to the registry, replacing any previous decoder
// for the same format.
func Register(d Decoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[d.Format()] = d
}

// Lookup returns the decoder registered for f.
func Lookup(f Format) (Decoder, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	d, ok := registry[f]
	if !ok {
		return nil, fmt.Errorf("reader: no decoder registered for %s", f)
	}
	return d, nil
}

// SupportedFormats returns the names of all formats the engine can open.
func SupportedFormats() []string {
	return []string{FormatPDF.String(), FormatEPUB.String(), FormatFB2.String()}
}
