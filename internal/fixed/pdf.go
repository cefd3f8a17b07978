package fixed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/metcalfc/folio/internal/reader"
)

func init() {
	RegisterOpener(reader.FormatPDF, OpenerFunc(OpenPDF))
}

// PDFEngine pages a PDF by its native pages. Locators are "#page=N".
type PDFEngine struct {
	*pager
	ctx *model.Context
}

// OpenPDF reads and validates a PDF held in memory. Validation is relaxed;
// real-world files rarely pass strict mode.
func OpenPDF(ctx context.Context, data []byte) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: pdfcpu read: %v", ErrAdapterLoadFailed, err)
	}
	if pdfCtx.PageCount < 1 {
		return nil, fmt.Errorf("%w: pdf has no pages", ErrAdapterLoadFailed)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := &PDFEngine{ctx: pdfCtx}
	e.pager = newPager(pdfCtx.PageCount, pdfLocator)
	return e, nil
}

func pdfLocator(page int) string {
	return "#page=" + strconv.Itoa(page)
}

// GoToLocator accepts "#page=N" and "page=N".
func (e *PDFEngine) GoToLocator(loc string) error {
	s := strings.TrimPrefix(strings.TrimSpace(loc), "#")
	s, ok := strings.CutPrefix(s, "page=")
	if !ok {
		return fmt.Errorf("%w: %q", ErrBadLocator, loc)
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrBadLocator, loc)
	}
	return e.GoToPage(n)
}

// PageText returns the text shown by page n's content stream. Only literal
// strings are decoded; fonts with custom encodings come out garbled.
func (e *PDFEngine) PageText(n int) (string, error) {
	if n < 1 || n > e.total {
		return "", fmt.Errorf("fixed: page %d out of range 1..%d", n, e.total)
	}
	r, err := pdfcpu.ExtractPageContent(e.ctx, n)
	if err != nil {
		return "", fmt.Errorf("fixed: extract page %d: %w", n, err)
	}
	if r == nil {
		return "", nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("fixed: read page %d: %w", n, err)
	}
	return textFromStream(data), nil
}

func (e *PDFEngine) Close() error {
	e.ctx = nil
	return nil
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(((?:\\.|[^\\)])*)\)`)

// textFromStream collects the operands of text-showing operators. Td, TD,
// T* and ' start a new line.
func textFromStream(data []byte) string {
	var sb strings.Builder
	newline := func() {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
	}
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		switch {
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")), bytes.Equal(line, []byte("T*")):
			newline()
		case bytes.HasSuffix(line, []byte("'")):
			newline()
			fallthrough
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				sb.WriteString(decodePDFString(m[1]))
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func decodePDFString(b []byte) string {
	var sb strings.Builder
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' || i+1 == len(b) {
			sb.WriteByte(b[i])
			continue
		}
		i++
		switch b[i] {
		case 'n':
			sb.WriteByte('\n')
		case 't':
			sb.WriteByte('\t')
		case 'r', 'b', 'f':
		default:
			sb.WriteByte(b[i])
		}
	}
	return sb.String()
}
