package parser

import "testing"

func TestTextParser_Paragraphs(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "lines within a paragraph are kept together",
			input: "Line one.\nLine two.\n\nSecond paragraph.\n\nThird paragraph.",
			want:  []string{"Line one.\nLine two.", "Second paragraph.", "Third paragraph."},
		},
		{name: "empty", input: "", want: nil},
		{name: "single line", input: "Hello world", want: []string{"Hello world"}},
		{name: "runs of blank lines", input: "One.\n\n\n\nTwo.", want: []string{"One.", "Two."}},
		{name: "whitespace-only line separates", input: "One.\n   \nTwo.", want: []string{"One.", "Two."}},
		{name: "trailing blank lines", input: "One.\n\n\n", want: []string{"One."}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := (&TextParser{}).Parse([]byte(tt.input), "notes.txt")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tree.Title != "notes" {
				t.Errorf("title = %q, want %q", tree.Title, "notes")
			}
			if len(tree.Children) != len(tt.want) {
				t.Fatalf("got %d paragraphs, want %d", len(tree.Children), len(tt.want))
			}
			for i, w := range tt.want {
				if got := tree.Children[i].Text; got != w {
					t.Errorf("paragraph %d = %q, want %q", i, got, w)
				}
			}
		})
	}
}
