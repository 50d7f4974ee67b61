package pipeline

import (
	"reflect"
	"testing"
)

func TestSegmentsAutosplit(t *testing.T) {
	cases := []struct {
		name string
		text string
		want []string
	}{
		{name: "single line", text: "hello", want: []string{"hello"}},
		{name: "multi line", text: "a\nb\nc", want: []string{"a", "b", "c"}},
		{name: "blank lines dropped", text: "a\n\nb\n  \nc", want: []string{"a", "b", "c"}},
		{name: "lines trimmed", text: "  a  \n\tb\t", want: []string{"a", "b"}},
		{name: "all blank", text: " \n \n", want: []string{}},
		{name: "empty", text: "", want: []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Segments(tc.text, true)
			if len(got) == 0 && len(tc.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Segments(%q, true) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestSegmentsNoAutosplit(t *testing.T) {
	got := Segments("a\n\nb\n  \nc", false)
	if len(got) != 1 {
		t.Fatalf("Segments(multiline, false) produced %d segments, want 1", len(got))
	}
	if got[0] != "a\n\nb\n  \nc" {
		t.Fatalf("Segments(multiline, false)[0] = %q, want original text", got[0])
	}

	if got := Segments("   ", false); got != nil {
		t.Fatalf("Segments(blank, false) = %v, want nil", got)
	}
}
