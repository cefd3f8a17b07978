package reader

import (
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html/charset"
)

// FB2Decoder implements Decoder for FictionBook 2 XML.
type FB2Decoder struct {
	policy *bluemonday.Policy
}

func init() {
	Register(NewFB2Decoder())
}

// NewFB2Decoder returns a decoder whose paragraphs keep only inline
// formatting.
func NewFB2Decoder() *FB2Decoder {
	p := bluemonday.NewPolicy()
	p.AllowElements("em", "strong", "s", "sub", "sup", "code", "span")
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(true)
	p.AllowURLSchemes("http", "https", "mailto")
	return &FB2Decoder{policy: p}
}

func (d *FB2Decoder) Format() Format { return FormatFB2 }

// Body names whose content is reference material, not reading text.
var skippedBodies = map[string]bool{
	"notes":    true,
	"comments": true,
}

// Elements carrying one paragraph of text.
var paragraphTags = map[string]bool{
	"p":           true,
	"v":           true,
	"subtitle":    true,
	"text-author": true,
}

// Elements with no reading text.
var ignoredTags = map[string]bool{
	"image":      true,
	"empty-line": true,
	"binary":     true,
	"table":      true,
}

// FB2 inline elements and the HTML they become.
var inlineTags = map[string]string{
	"emphasis":      "em",
	"strong":        "strong",
	"strikethrough": "s",
	"sub":           "sub",
	"sup":           "sup",
	"code":          "code",
	"style":         "span",
}

// Decode parses an FB2 document. Any structural XML error fails the whole
// decode with ErrMalformedMarkup.
func (d *FB2Decoder) Decode(r io.Reader) (*Document, error) {
	root, err := parseTree(r)
	if err != nil {
		return nil, err
	}

	doc := &Document{Title: DefaultTitle, Author: DefaultAuthor}
	if info := root.find("description", "title-info"); info != nil {
		if t := info.child("book-title"); t != nil {
			if s := t.text(); s != "" {
				doc.Title = s
			}
		}
		if a := info.child("author"); a != nil {
			if s := authorName(a); s != "" {
				doc.Author = s
			}
		}
	}

	for _, body := range root.children {
		if body.name != "body" || skippedBodies[strings.ToLower(body.attr("name"))] {
			continue
		}
		d.collectSections(body, doc)
	}
	return doc, nil
}

// collectSections appends the sections under n in document order, each
// section before the sections nested in it.
func (d *FB2Decoder) collectSections(n *node, doc *Document) {
	for _, c := range n.children {
		if c.name != "section" {
			continue
		}
		sec := Section{}
		if t := c.child("title"); t != nil {
			sec.Heading = t.text()
		}
		d.collectParagraphs(c, &sec)
		if sec.Heading != "" || len(sec.Paragraphs) > 0 {
			doc.Sections = append(doc.Sections, sec)
		}
		d.collectSections(c, doc)
	}
}

// collectParagraphs gathers the paragraphs that belong to n itself, skipping
// its title and nested sections.
func (d *FB2Decoder) collectParagraphs(n *node, sec *Section) {
	for _, c := range n.children {
		switch {
		case c.name == "" || c.name == "section" || c.name == "title" || ignoredTags[c.name]:
			continue
		case paragraphTags[c.name]:
			var b strings.Builder
			writeInline(&b, c)
			if p := strings.TrimSpace(d.policy.Sanitize(b.String())); p != "" {
				sec.Paragraphs = append(sec.Paragraphs, p)
			}
		default:
			d.collectParagraphs(c, sec)
		}
	}
}

// writeInline renders the inline content of n as HTML. Unknown elements
// keep their text and lose their markup.
func writeInline(b *strings.Builder, n *node) {
	for _, c := range n.children {
		if c.name == "" {
			b.WriteString(html.EscapeString(collapseSpace(c.data)))
			continue
		}
		if c.name == "a" {
			fmt.Fprintf(b, `<a href="%s">`, html.EscapeString(c.attr("href")))
			writeInline(b, c)
			b.WriteString("</a>")
			continue
		}
		tag, ok := inlineTags[c.name]
		if !ok {
			writeInline(b, c)
			continue
		}
		b.WriteString("<" + tag + ">")
		writeInline(b, c)
		b.WriteString("</" + tag + ">")
	}
}

// collapseSpace folds whitespace runs into single spaces, keeping one space
// at either edge so adjacent inline runs stay separated.
func collapseSpace(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s == "" {
			return ""
		}
		return " "
	}
	out := strings.Join(fields, " ")
	if unicode.IsSpace(rune(s[0])) {
		out = " " + out
	}
	if unicode.IsSpace(rune(s[len(s)-1])) {
		out += " "
	}
	return out
}

func authorName(a *node) string {
	var parts []string
	for _, name := range []string{"first-name", "middle-name", "last-name"} {
		if c := a.child(name); c != nil {
			if s := c.text(); s != "" {
				parts = append(parts, s)
			}
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, " ")
	}
	if c := a.child("nickname"); c != nil {
		return c.text()
	}
	return a.text()
}

// node is a minimal XML element tree. Character data is stored in nodes
// with an empty name.
type node struct {
	name     string
	attrs    []xml.Attr
	data     string
	children []*node
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (n *node) find(path ...string) *node {
	cur := n
	for _, name := range path {
		if cur = cur.child(name); cur == nil {
			return nil
		}
	}
	return cur
}

func (n *node) attr(local string) string {
	for _, a := range n.attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// text returns the whitespace-collapsed character data under n.
func (n *node) text() string {
	var b strings.Builder
	var walk func(*node)
	walk = func(m *node) {
		if m.name == "" {
			b.WriteString(m.data)
			b.WriteByte(' ')
		}
		for _, c := range m.children {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// parseTree builds the element tree of an XML document in strict mode.
func parseTree(r io.Reader) (*node, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = true
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel

	var root *node
	var stack []*node
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMarkup, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{name: t.Name.Local, attrs: t.Copy().Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("%w: multiple root elements", ErrMalformedMarkup)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if strings.TrimSpace(string(t)) != "" {
					return nil, fmt.Errorf("%w: text outside root element", ErrMalformedMarkup)
				}
				continue
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, &node{data: string(t)})
		}
	}

	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedMarkup)
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("%w: unclosed element <%s>", ErrMalformedMarkup, stack[len(stack)-1].name)
	}
	return root, nil
}
