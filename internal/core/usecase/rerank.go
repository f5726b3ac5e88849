package usecase

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

// rankChunks scores every chunk against the question and returns the best ones that fit
// within budget runes, restored to document order.
func rankChunks(question string, chunks []string, budget int) []domain.GroundingChunk {
	if len(chunks) == 0 {
		return nil
	}
	queryTokens := toTokenSet(question)

	scored := make([]domain.GroundingChunk, len(chunks))
	for i, text := range chunks {
		overlap := tokenOverlap(queryTokens, toTokenSet(text))
		scored[i] = domain.GroundingChunk{Index: i, Snippet: text, Score: roundScore(overlap)}
	}

	total := 0
	for _, chunk := range chunks {
		total += utf8.RuneCountInString(chunk)
	}
	if budget <= 0 || total <= budget {
		return scored
	}

	ranked := make([]domain.GroundingChunk, len(scored))
	copy(ranked, scored)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Index < ranked[j].Index
	})

	selected := make([]domain.GroundingChunk, 0, len(ranked))
	used := 0
	for _, chunk := range ranked {
		size := utf8.RuneCountInString(chunk.Snippet)
		if used+size > budget {
			if len(selected) == 0 {
				chunk.Snippet = truncateRunes(chunk.Snippet, budget)
				selected = append(selected, chunk)
				break
			}
			continue
		}
		selected = append(selected, chunk)
		used += size
	}

	sort.Slice(selected, func(i, j int) bool { return selected[i].Index < selected[j].Index })
	return selected
}

// groundingConfidence is the best lexical overlap among the chunks used for the answer.
func groundingConfidence(chunks []domain.GroundingChunk) float64 {
	best := 0.0
	for _, chunk := range chunks {
		if chunk.Score > best {
			best = chunk.Score
		}
	}
	return best
}

func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitWordsLower(s)
	out := make(map[string]struct{}, len(tokens)*2)
	for _, token := range tokens {
		out[token] = struct{}{}
		for _, gram := range hangulBigrams(token) {
			out[gram] = struct{}{}
		}
	}
	return out
}

// splitWordsLower splits on anything that is not a letter or digit in any script.
func splitWordsLower(s string) []string {
	if s == "" {
		return nil
	}
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// hangulBigrams lets "마감" in a question match "마감일" in the document,
// since Korean attaches particles and suffixes to the stem.
func hangulBigrams(token string) []string {
	runes := []rune(token)
	if len(runes) < 3 {
		return nil
	}
	grams := make([]string, 0, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		if unicode.Is(unicode.Hangul, runes[i]) && unicode.Is(unicode.Hangul, runes[i+1]) {
			grams = append(grams, string(runes[i:i+2]))
		}
	}
	return grams
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func roundScore(v float64) float64 {
	return math.Round(v*1000) / 1000
}
