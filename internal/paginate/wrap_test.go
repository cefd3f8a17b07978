package paginate

import (
	"reflect"
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"fits", "hello world", 20, []string{"hello world"}},
		{"breaks at words", "the quick brown fox", 10, []string{"the quick", "brown fox"}},
		{"collapses spaces", "  a   b  ", 10, []string{"a b"}},
		{"splits long word", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"blank", "   ", 10, nil},
		{"cyrillic", "Война и мир", 7, []string{"Война и", "мир"}},
		{"wide runes", "日本語テキスト", 6, []string{"日本語", "テキス", "ト"}},
		{"lone combining mark", "\u0301", 5, []string{"\u0301"}},
		{"combining mark keeps its space", "\u0301 word", 10, []string{"\u0301 word"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Wrap(tt.text, tt.width)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Wrap(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
			}
			for _, line := range got {
				if w := runewidth.StringWidth(line); w > tt.width {
					t.Errorf("line %q is %d cells wide", line, w)
				}
			}
		})
	}
}

func TestWrapParagraphs(t *testing.T) {
	got := WrapParagraphs([]string{"one two", "", "three"}, 5)
	want := []string{"one", "two", "", "three"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("WrapParagraphs = %q, want %q", got, want)
	}
}
