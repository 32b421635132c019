package mention

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		pattern string
		text    string
		want    []string
	}{
		{name: "empty text", text: "", want: nil},
		{name: "no match", text: "nothing to see here, proj-1 is lowercase", want: nil},
		{name: "single", text: "see PROJ-123", want: []string{"PROJ-123"}},
		{name: "duplicate keeps first position", text: "see PROJ-123 and PROJ-123 again", want: []string{"PROJ-123"}},
		{name: "order of first appearance", text: "B2-1, A-9 no, AB-7 then B2-1 and AB-7", want: []string{"B2-1", "AB-7"}},
		{name: "adjacent punctuation", text: "(OPS-42).OPS-43!", want: []string{"OPS-42", "OPS-43"}},
		{
			name:    "capture group wins",
			pattern: `(?:^|\s)([A-Z]+-[0-9]+)`,
			text:    "x/ABC-1 ABC-2 ABC-3",
			want:    []string{"ABC-2", "ABC-3"},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, err := New(tt.pattern)
			if err != nil {
				t.Fatalf("New(%q) error: %v", tt.pattern, err)
			}
			got := e.Extract(tt.text)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Extract(%q) = %#v, want %#v", tt.text, got, tt.want)
			}
		})
	}
}

func TestExtractIsCaseSensitive(t *testing.T) {
	t.Parallel()
	e := MustNew("")
	if got := e.Extract("proj-1 Proj-2"); got != nil {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestNewRejectsBadPattern(t *testing.T) {
	t.Parallel()
	if _, err := New("([A-Z"); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestNilExtractor(t *testing.T) {
	t.Parallel()
	var e *Extractor
	if got := e.Extract("PROJ-1"); got != nil {
		t.Fatalf("nil extractor returned %v", got)
	}
}
