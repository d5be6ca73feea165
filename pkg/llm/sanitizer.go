package llm

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// Untrusted upstream text (location names, species comments) travels
// into prompts verbatim; these patterns catch the usual attempts to
// smuggle instructions in through that channel.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+|any\s+)?(previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+.{0,40}instructions`),
	regexp.MustCompile(`(?i)system\s+prompt`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+`),
	regexp.MustCompile(`(?i)act\s+as\s+(a|an)\s+`),
	regexp.MustCompile(`(?i)<\s*/?\s*(system|assistant|user)\s*>`),
}

// Sanitizer cleans untrusted upstream text before it enters prompts.
type Sanitizer struct {
	maxLen int
}

// NewSanitizer creates a sanitizer that caps cleaned text at maxLen
// runes (default 400 when maxLen <= 0).
func NewSanitizer(maxLen int) *Sanitizer {
	if maxLen <= 0 {
		maxLen = 400
	}
	return &Sanitizer{maxLen: maxLen}
}

// Clean strips markup, drops instruction-shaped lines and caps length.
// The result is safe to interpolate into a prompt as data.
func (s *Sanitizer) Clean(text string) string {
	if text == "" {
		return ""
	}

	text = stripTags(text)

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			continue
		}
		if looksLikeInjection(line) {
			continue
		}
		kept = append(kept, line)
	}
	text = strings.Join(kept, " ")

	// Collapse runs of whitespace left behind by tag removal.
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) > s.maxLen {
		text = string(runes[:s.maxLen])
	}
	return strings.TrimSpace(text)
}

func looksLikeInjection(line string) bool {
	for _, p := range injectionPatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// stripTags parses the fragment and keeps only text nodes. Backticks
// are dropped as well so the value cannot open a code fence.
func stripTags(text string) string {
	if !strings.ContainsAny(text, "<>`") {
		return text
	}

	text = strings.ReplaceAll(text, "`", "")
	if !strings.Contains(text, "<") {
		return text
	}

	doc, err := html.Parse(strings.NewReader(text))
	if err != nil {
		// Parse failures are practically impossible for fragments; fall
		// back to dropping the angle brackets themselves.
		return strings.NewReplacer("<", " ", ">", " ").Replace(text)
	}

	var b strings.Builder
	collectText(doc, &b)
	return b.String()
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteString(" ")
	}
	// Script and style bodies are markup payload, not prose.
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
