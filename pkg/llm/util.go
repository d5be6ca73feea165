package llm

import (
	"strings"
)

// WordWrap wraps text at the specified width.
func WordWrap(text string, width int) string {
	if width <= 0 {
		return text
	}

	var result strings.Builder
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if i > 0 {
			result.WriteString("\n")
		}

		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}

		currentLineLength := 0
		for j, word := range words {
			if j > 0 {
				if currentLineLength+len(word)+1 > width {
					result.WriteString("\n")
					currentLineLength = 0
				} else {
					result.WriteString(" ")
					currentLineLength++
				}
			}
			result.WriteString(word)
			currentLineLength += len(word)
		}
	}

	return result.String()
}

// TruncateParagraphs truncates lines within prompt data blocks (candidate
// lists, sighting digests) to maxLen and removes empty lines within that
// block. This is primarily used for logging prompts.
func TruncateParagraphs(text string, maxLen int) string {
	if text == "" {
		return ""
	}

	lines := strings.Split(text, "\n")
	var result []string
	inDataBlock := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		// Heuristic to detect bulk data blocks in prompt
		if strings.Contains(trimmed, "CANDIDATES:") ||
			strings.Contains(trimmed, "SIGHTINGS:") ||
			strings.Contains(trimmed, "LOCATIONS:") {
			inDataBlock = true
			result = append(result, line)
			continue
		}

		// Detect end of block
		if inDataBlock && (strings.Contains(trimmed, "INSTRUCTIONS:") ||
			strings.Contains(trimmed, "TASK:")) {
			inDataBlock = false
		}

		if inDataBlock {
			if trimmed == "" {
				continue // Skip empty lines in data block
			}
			runes := []rune(trimmed)
			if len(runes) > maxLen {
				result = append(result, string(runes[:maxLen])+"...")
			} else {
				result = append(result, trimmed)
			}
		} else {
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}
