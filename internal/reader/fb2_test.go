package reader

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const sampleFB2 = `<?xml version="1.0" encoding="utf-8"?>
<FictionBook xmlns="http://www.gribuser.ru/xml/fictionbook/2.0" xmlns:l="http://www.w3.org/1999/xlink">
  <description>
    <title-info>
      <author><first-name>Лев</first-name><last-name>Толстой</last-name></author>
      <book-title>Война и мир</book-title>
    </title-info>
  </description>
  <body>
    <title><p>Война и мир</p></title>
    <section>
      <title><p>Том первый</p></title>
      <p>Intro</p>
      <empty-line/>
      <section>
        <title><p>Глава I</p></title>
        <epigraph><p>Epigraph</p><text-author>Someone</text-author></epigraph>
        <p>One</p>
        <image l:href="#pic"/>
        <p>Two</p>
      </section>
    </section>
    <section>
      <p>Untitled</p>
    </section>
    <section><empty-line/></section>
  </body>
  <body name="notes">
    <section><title><p>1</p></title><p>Note text</p></section>
  </body>
</FictionBook>`

func decodeFB2(t *testing.T, src string) *Document {
	t.Helper()
	doc, err := NewFB2Decoder().Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return doc
}

func TestFB2Decode(t *testing.T) {
	doc := decodeFB2(t, sampleFB2)

	if doc.Title != "Война и мир" {
		t.Errorf("Title = %q", doc.Title)
	}
	if doc.Author != "Лев Толстой" {
		t.Errorf("Author = %q", doc.Author)
	}

	want := []Section{
		{Heading: "Том первый", Paragraphs: []string{"Intro"}},
		{Heading: "Глава I", Paragraphs: []string{"Epigraph", "Someone", "One", "Two"}},
		{Paragraphs: []string{"Untitled"}},
	}
	if !reflect.DeepEqual(doc.Sections, want) {
		t.Errorf("Sections =\n%#v\nwant\n%#v", doc.Sections, want)
	}
	if doc.ParagraphCount() != 6 {
		t.Errorf("ParagraphCount() = %d, want 6", doc.ParagraphCount())
	}

	headings := doc.Headings()
	if len(headings) != 2 || headings[1].Title != "Глава I" || headings[1].Section != 1 {
		t.Errorf("Headings() = %+v", headings)
	}
}

func TestFB2DecodeDefaults(t *testing.T) {
	doc := decodeFB2(t, `<FictionBook><body><section><p>x</p></section></body></FictionBook>`)
	if doc.Title != DefaultTitle {
		t.Errorf("Title = %q, want %q", doc.Title, DefaultTitle)
	}
	if doc.Author != DefaultAuthor {
		t.Errorf("Author = %q, want %q", doc.Author, DefaultAuthor)
	}
}

func TestFB2DecodeNickname(t *testing.T) {
	doc := decodeFB2(t, `<FictionBook><description><title-info>
		<author><nickname>anon</nickname></author><book-title>  Spaced
		Title </book-title></title-info></description><body/></FictionBook>`)
	if doc.Author != "anon" {
		t.Errorf("Author = %q, want anon", doc.Author)
	}
	if doc.Title != "Spaced Title" {
		t.Errorf("Title = %q, want %q", doc.Title, "Spaced Title")
	}
}

func TestFB2DecodeNotesOnly(t *testing.T) {
	doc := decodeFB2(t, `<FictionBook>
		<body name="notes"><section><p>n1</p></section></body>
		<body name="Comments"><section><p>c1</p></section></body>
	</FictionBook>`)
	if len(doc.Sections) != 0 {
		t.Errorf("expected no sections, got %+v", doc.Sections)
	}
}

func TestFB2DecodeInline(t *testing.T) {
	doc := decodeFB2(t, `<FictionBook xmlns:l="http://www.w3.org/1999/xlink"><body><section>
		<p>Hello <emphasis>brave</emphasis>   <strong>new</strong>
		world</p>
		<p><strikethrough>old</strikethrough> H<sub>2</sub>O x<sup>2</sup> <code>go</code></p>
		<p>&lt;script&gt;alert(1)&lt;/script&gt; safe</p>
		<p><unknown>kept</unknown> text</p>
	</section></body></FictionBook>`)

	want := []string{
		"Hello <em>brave</em> <strong>new</strong> world",
		"<s>old</s> H<sub>2</sub>O x<sup>2</sup> <code>go</code>",
		"&lt;script&gt;alert(1)&lt;/script&gt; safe",
		"kept text",
	}
	if len(doc.Sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(doc.Sections))
	}
	if got := doc.Sections[0].Paragraphs; !reflect.DeepEqual(got, want) {
		t.Errorf("Paragraphs =\n%q\nwant\n%q", got, want)
	}
}

func TestFB2DecodeWindows1251(t *testing.T) {
	// "Привет" in windows-1251.
	src := "<?xml version=\"1.0\" encoding=\"windows-1251\"?>" +
		"<FictionBook><body><section><p>\xcf\xf0\xe8\xe2\xe5\xf2</p></section></body></FictionBook>"
	doc := decodeFB2(t, src)
	if len(doc.Sections) != 1 || doc.Sections[0].Paragraphs[0] != "Привет" {
		t.Errorf("Sections = %+v", doc.Sections)
	}
}

func TestFB2DecodeMalformed(t *testing.T) {
	tests := []struct {
		name, src string
	}{
		{"mismatched tag", `<FictionBook><body><section><p>x</section></body></FictionBook>`},
		{"unclosed root", `<FictionBook><body>`},
		{"empty input", ``},
		{"not xml", `just some text`},
		{"two roots", `<FictionBook/><FictionBook/>`},
		{"undefined entity", `<FictionBook><body><p>&bogus;</p></body></FictionBook>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFB2Decoder().Decode(strings.NewReader(tt.src))
			if !errors.Is(err, ErrMalformedMarkup) {
				t.Errorf("err = %v, want ErrMalformedMarkup", err)
			}
		})
	}
}
