package reader

// Placeholders used when a book carries no title or author metadata.
const (
	DefaultTitle  = "Без названия"
	DefaultAuthor = "Неизвестный автор"
)

// Document is the display model of a reflowable book. Sections are in
// reading order; pagination relies on that order never changing.
type Document struct {
	Title    string
	Author   string
	Sections []Section
}

// Section is a run of paragraphs with an optional heading. Paragraphs hold
// sanitized inline HTML.
type Section struct {
	Heading    string
	Paragraphs []string
}

// ParagraphCount returns the number of paragraphs across all sections.
func (d *Document) ParagraphCount() int {
	n := 0
	for _, s := range d.Sections {
		n += len(s.Paragraphs)
	}
	return n
}

// Headings returns the non-empty section headings with the index of the
// section they belong to.
func (d *Document) Headings() []Heading {
	var out []Heading
	for i, s := range d.Sections {
		if s.Heading != "" {
			out = append(out, Heading{Title: s.Heading, Section: i})
		}
	}
	return out
}

// Heading is a table-of-contents entry for a reflowable document.
type Heading struct {
	Title   string
	Section int
}
