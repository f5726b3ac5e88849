package usecase

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	footnoteOnlyLine = regexp.MustCompile(`^\(?\^?\d+[.)]\)?\s*$`)
	blankRun         = regexp.MustCompile(`\n{3,}`)
)

var metadataOnlyLines = map[string]struct{}{
	"SHA1": {}, "MD5": {}, "{}": {}, "[]": {}, "()": {}, "IAA=": {},
}

// NormalizeExtractedText cleans extractor output so that identical input always yields identical text.
func NormalizeExtractedText(text string) string {
	if text == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\u200b", "")
	text = strings.ReplaceAll(text, "\ufeff", "")
	text = strings.ReplaceAll(text, "\u00a0", " ")

	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		stripped := strings.TrimSpace(line)
		switch {
		case stripped == "":
			kept = append(kept, "")
		case strings.HasPrefix(stripped, "--- Page"):
			kept = append(kept, stripped)
		case looksLikeBase64(stripped):
		case footnoteOnlyLine.MatchString(stripped):
		case isMetadataOnly(stripped):
		default:
			kept = append(kept, line)
		}
	}

	out := strings.Join(kept, "\n")
	out = blankRun.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// looksLikeBase64 flags embedded font or image payloads that leak out of PDF text layers.
// Lines containing whitespace are prose and never dropped.
func looksLikeBase64(s string) bool {
	n := utf8.RuneCountInString(s)
	if n <= 20 || strings.ContainsAny(s, " \t") {
		return false
	}
	hits := 0
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '+' || r == '/' || r == '=' {
			hits++
		}
	}
	return float64(hits)/float64(n) > 0.8
}

func isMetadataOnly(s string) bool {
	_, ok := metadataOnlyLines[s]
	return ok
}
