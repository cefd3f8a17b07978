package reader

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
)

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// Blocks renders the document as Markdown blocks in reading order: the
// title, then for every section its heading followed by its paragraphs.
// Inline formatting survives as Markdown emphasis.
func (d *Document) Blocks() ([]string, error) {
	blocks := []string{"# " + d.Title}
	for i, s := range d.Sections {
		if s.Heading != "" {
			blocks = append(blocks, "## "+s.Heading)
		}
		for j, p := range s.Paragraphs {
			md, err := ParagraphMarkdown(p)
			if err != nil {
				return nil, fmt.Errorf("section %d paragraph %d: %w", i, j, err)
			}
			if md != "" {
				blocks = append(blocks, md)
			}
		}
	}
	return blocks, nil
}

// Markdown joins Blocks with blank lines.
func (d *Document) Markdown() (string, error) {
	blocks, err := d.Blocks()
	if err != nil {
		return "", err
	}
	return strings.Join(blocks, "\n\n") + "\n", nil
}

// ParagraphMarkdown converts one sanitized paragraph to Markdown.
func ParagraphMarkdown(p string) (string, error) {
	md, err := mdConverter.ConvertString(p)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(md), nil
}

// headerRegex matches markdown headers (# to ######)
var headerRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// TOCEntry is a heading found in rendered lines.
type TOCEntry struct {
	Title string
	// Line is the index of the heading line.
	Line int
	// Level is 0 for "#", 1 for "##" and so on.
	Level int
}

// MarkdownTOC scans rendered lines for Markdown headings.
func MarkdownTOC(lines []string) []TOCEntry {
	var entries []TOCEntry
	for i, line := range lines {
		if match := headerRegex.FindStringSubmatch(line); match != nil {
			entries = append(entries, TOCEntry{
				Title: strings.TrimSpace(match[2]),
				Line:  i,
				Level: len(match[1]) - 1,
			})
		}
	}
	return entries
}
