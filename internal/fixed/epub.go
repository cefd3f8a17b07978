package fixed

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"

	"github.com/metcalfc/folio/internal/reader"
)

func init() {
	RegisterOpener(reader.FormatEPUB, OpenerFunc(OpenEPUB))
}

// EPUBEngine pages an EPUB by spine item. Locators are spine-step CFIs,
// epubcfi(/6/N!), with N = 2 × page.
type EPUBEngine struct {
	*pager
	title  string
	author string
	items  []*epub.Item
	titles []string
}

// OpenEPUB parses an EPUB container held in memory.
func OpenEPUB(ctx context.Context, data []byte) (Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, err := epub.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open epub: %v", ErrAdapterLoadFailed, err)
	}
	if len(r.Rootfiles) == 0 {
		return nil, fmt.Errorf("%w: no rootfiles found in epub", ErrAdapterLoadFailed)
	}
	book := r.Rootfiles[0]

	var items []*epub.Item
	for _, ref := range book.Spine.Itemrefs {
		if ref.Item != nil {
			items = append(items, ref.Item)
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: epub spine is empty", ErrAdapterLoadFailed)
	}

	tocByHref := map[string]string{}
	if zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data))); err == nil {
		tocByHref = buildTOCHrefMap(zr, book)
	}
	titles := make([]string, len(items))
	for i, item := range items {
		if t, ok := tocByHref[item.HREF]; ok {
			titles[i] = t
		} else if t, ok := tocByHref[path.Base(item.HREF)]; ok {
			titles[i] = t
		}
	}

	e := &EPUBEngine{
		title:  strings.TrimSpace(book.Metadata.Title),
		author: strings.TrimSpace(book.Metadata.Creator),
		items:  items,
		titles: titles,
	}
	e.pager = newPager(len(items), epubLocator)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e, nil
}

func epubLocator(page int) string {
	return "epubcfi(/6/" + strconv.Itoa(2*page) + "!)"
}

// GoToLocator accepts any CFI whose first steps are /6/N; the rest of the
// path inside the spine item is ignored.
func (e *EPUBEngine) GoToLocator(loc string) error {
	rest, ok := strings.CutPrefix(strings.TrimSpace(loc), "epubcfi(/6/")
	if !ok {
		return fmt.Errorf("%w: %q", ErrBadLocator, loc)
	}
	end := strings.IndexFunc(rest, func(r rune) bool { return r < '0' || r > '9' })
	if end <= 0 {
		return fmt.Errorf("%w: %q", ErrBadLocator, loc)
	}
	step, err := strconv.Atoi(rest[:end])
	if err != nil || step < 2 || step%2 != 0 {
		return fmt.Errorf("%w: %q", ErrBadLocator, loc)
	}
	return e.GoToPage(step / 2)
}

// Title returns the book title from the package metadata.
func (e *EPUBEngine) Title() string { return e.title }

// Author returns the first creator from the package metadata.
func (e *EPUBEngine) Author() string { return e.author }

// ChapterTitle returns the table-of-contents label of page n, or "".
func (e *EPUBEngine) ChapterTitle(n int) string {
	if n < 1 || n > len(e.titles) {
		return ""
	}
	return e.titles[n-1]
}

// PageText extracts the text of spine item n, one line per block.
func (e *EPUBEngine) PageText(n int) (string, error) {
	if n < 1 || n > len(e.items) {
		return "", fmt.Errorf("fixed: page %d out of range 1..%d", n, len(e.items))
	}
	rc, err := e.items[n-1].Open()
	if err != nil {
		return "", fmt.Errorf("fixed: open spine item %d: %w", n, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", fmt.Errorf("fixed: read spine item %d: %w", n, err)
	}
	return extractTextFromHTML(string(data)), nil
}

func (e *EPUBEngine) Close() error {
	e.items = nil
	return nil
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "blockquote": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

func extractTextFromHTML(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return ""
	}

	var lines []string
	var cur strings.Builder
	flush := func() {
		if t := strings.Join(strings.Fields(cur.String()), " "); t != "" {
			lines = append(lines, t)
		}
		cur.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "head" || n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			cur.WriteString(n.Data)
			cur.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockTags[n.Data] {
			flush()
		}
	}
	walk(doc)
	flush()
	return strings.Join(lines, "\n")
}

// NCX XML structures for parsing toc.ncx
type ncx struct {
	NavMap navMap `xml:"navMap"`
}

type navMap struct {
	NavPoints []navPoint `xml:"navPoint"`
}

type navPoint struct {
	Label    navLabel   `xml:"navLabel"`
	Content  navContent `xml:"content"`
	Children []navPoint `xml:"navPoint"`
}

type navLabel struct {
	Text string `xml:"text"`
}

type navContent struct {
	Src string `xml:"src,attr"`
}

// buildTOCHrefMap parses the NCX and returns a map of href to title. Both the
// full href and its base name are keys; the first label for an href wins.
func buildTOCHrefMap(zr *zip.Reader, book *epub.Rootfile) map[string]string {
	result := make(map[string]string)

	ncxData, err := findAndReadNCX(zr, book)
	if err != nil {
		return result
	}

	var toc ncx
	if err := xml.Unmarshal(ncxData, &toc); err != nil {
		return result
	}

	add := func(key, title string) {
		if _, exists := result[key]; !exists {
			result[key] = title
		}
	}
	var extract func(points []navPoint)
	extract = func(points []navPoint) {
		for _, np := range points {
			title := strings.TrimSpace(np.Label.Text)
			href, _, _ := strings.Cut(np.Content.Src, "#")
			if title != "" && href != "" {
				add(href, title)
				add(path.Base(href), title)
			}
			extract(np.Children)
		}
	}
	extract(toc.NavMap.NavPoints)

	return result
}

func findAndReadNCX(zr *zip.Reader, book *epub.Rootfile) ([]byte, error) {
	var ncxPath string
	for _, item := range book.Manifest.Items {
		if item.MediaType == "application/x-dtbncx+xml" {
			ncxPath = item.HREF
			break
		}
	}
	if ncxPath == "" {
		for _, f := range zr.File {
			if strings.HasSuffix(strings.ToLower(f.Name), ".ncx") {
				ncxPath = f.Name
				break
			}
		}
	}
	if ncxPath == "" {
		return nil, fmt.Errorf("no NCX file found in EPUB")
	}

	for _, f := range zr.File {
		if f.Name == ncxPath || strings.HasSuffix(f.Name, "/"+ncxPath) {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(io.LimitReader(rc, reader.MaxEntrySize))
		}
	}
	return nil, fmt.Errorf("NCX file %s not found in archive", ncxPath)
}
