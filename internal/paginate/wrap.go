package paginate

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// Wrap breaks text into lines no wider than width display cells. Words
// longer than a line are split. Blank text yields no lines.
func Wrap(text string, width int) []string {
	if width < 1 {
		width = 1
	}
	var lines []string
	var line strings.Builder
	lineWidth := 0

	flush := func() {
		lines = append(lines, line.String())
		line.Reset()
		lineWidth = 0
	}

	for _, word := range strings.Fields(text) {
		w := runewidth.StringWidth(word)
		if line.Len() > 0 && lineWidth+1+w <= width {
			line.WriteByte(' ')
			line.WriteString(word)
			lineWidth += 1 + w
			continue
		}
		if line.Len() > 0 {
			flush()
		}
		for w > width {
			head := runewidth.Truncate(word, width, "")
			if head == "" {
				// A single rune wider than the line.
				r := []rune(word)
				head = string(r[0])
			}
			line.WriteString(head)
			flush()
			word = word[len(head):]
			w = runewidth.StringWidth(word)
		}
		if word != "" {
			line.WriteString(word)
			lineWidth = w
		}
	}
	if line.Len() > 0 {
		flush()
	}
	return lines
}

// WrapParagraphs wraps each paragraph and separates them with one blank
// line. The result length is the rendered extent in lines.
func WrapParagraphs(paragraphs []string, width int) []string {
	var out []string
	for _, p := range paragraphs {
		lines := Wrap(p, width)
		if len(lines) == 0 {
			continue
		}
		if len(out) > 0 {
			out = append(out, "")
		}
		out = append(out, lines...)
	}
	return out
}
