package reader

import (
	"strings"
	"testing"
)

func TestDocumentBlocks(t *testing.T) {
	doc := &Document{
		Title: "Book",
		Sections: []Section{
			{Heading: "One", Paragraphs: []string{"<em>Quiet</em> start.", "Plain."}},
			{Paragraphs: []string{"<strong>Loud</strong> end."}},
		},
	}

	blocks, err := doc.Blocks()
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 5 {
		t.Fatalf("got %d blocks: %q", len(blocks), blocks)
	}
	if blocks[0] != "# Book" || blocks[1] != "## One" {
		t.Errorf("headings = %q, %q", blocks[0], blocks[1])
	}
	if !strings.Contains(blocks[2], "*Quiet*") {
		t.Errorf("emphasis lost: %q", blocks[2])
	}
	if blocks[3] != "Plain." {
		t.Errorf("plain paragraph = %q", blocks[3])
	}
	if !strings.Contains(blocks[4], "**Loud**") {
		t.Errorf("strong lost: %q", blocks[4])
	}

	md, err := doc.Markdown()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(md, "# Book\n\n## One\n\n") {
		t.Errorf("markdown = %q", md)
	}
}

func TestMarkdownTOC(t *testing.T) {
	lines := []string{
		"# Introduction",
		"This is the introduction.",
		"",
		"## Getting Started",
		"Here's how to get started.",
		"### Prerequisites",
		"#hashtag is not a heading",
		"## Usage",
	}

	toc := MarkdownTOC(lines)
	if len(toc) != 4 {
		t.Fatalf("Expected 4 TOC entries, got %d", len(toc))
	}

	expected := []TOCEntry{
		{"Introduction", 0, 0},
		{"Getting Started", 3, 1},
		{"Prerequisites", 5, 2},
		{"Usage", 7, 1},
	}
	for i, entry := range toc {
		if entry != expected[i] {
			t.Errorf("Entry %d: expected %+v, got %+v", i, expected[i], entry)
		}
	}
}
