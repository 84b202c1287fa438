package ocr

import "strings"

// normalizeText trims each line and drops blank runs while preserving line
// structure; OCR engines pad their output with trailing spaces and empty
// blocks.
func normalizeText(t string) string {
	lines := strings.Split(t, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// Snippet returns a shortened version of text for logging.
func Snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
