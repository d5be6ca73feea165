package llm

import (
	"strings"
	"testing"
)

func TestWordWrap(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{
			name:  "No wrap needed",
			input: "Hello World",
			width: 20,
			want:  "Hello World",
		},
		{
			name:  "Simple wrap",
			input: "Hello World",
			width: 5,
			want:  "Hello\nWorld",
		},
		{
			name:  "Long word preserved",
			input: "Hello Superextralongword World",
			width: 10,
			want:  "Hello\nSuperextralongword\nWorld",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := WordWrap(tt.input, tt.width); got != tt.want {
				t.Errorf("WordWrap() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTruncateParagraphs(t *testing.T) {
	input := "Find the best match.\nCANDIDATES:\nNorthern Cardinal (norcar) - a very long descriptive line that goes on and on and should be cut short\n\nBlue Jay (blujay)\nINSTRUCTIONS:\nReturn one name."
	got := TruncateParagraphs(input, 30)

	if !strings.Contains(got, "...") {
		t.Errorf("Long candidate line not truncated:\n%s", got)
	}
	if !strings.Contains(got, "Blue Jay (blujay)") {
		t.Errorf("Short candidate line mangled:\n%s", got)
	}
	if !strings.Contains(got, "Return one name.") {
		t.Errorf("Text after block must be untouched:\n%s", got)
	}
}
