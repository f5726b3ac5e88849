// Package plaintext decodes text uploads, including legacy Korean encodings.
package plaintext

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/korean"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

// maxInvalidRatio bounds how many replacement runes a candidate decoding may produce.
const maxInvalidRatio = 0.01

type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

func (e *Extractor) Extract(_ context.Context, _ *domain.Document, raw []byte) (domain.Extraction, error) {
	text, err := Decode(raw)
	if err != nil {
		return domain.Extraction{}, err
	}
	pages := 1
	return domain.Extraction{Text: text, PageCount: &pages}, nil
}

// Decode tries, in order, a BOM, UTF-8, EUC-KR and finally the charset sniffed
// from the content.
func Decode(raw []byte) (string, error) {
	enc, name, certain := charset.DetermineEncoding(raw, "text/plain")
	if certain && name != "utf-8" {
		out, err := enc.NewDecoder().Bytes(raw)
		if err == nil {
			return string(out), nil
		}
	}
	if utf8.Valid(raw) {
		return strings.TrimPrefix(string(raw), "\ufeff"), nil
	}
	if bytes.IndexByte(raw, 0) >= 0 {
		return "", domain.WrapError(domain.ErrUnsupportedType, "decode text", fmt.Errorf("binary content"))
	}

	if out, err := korean.EUCKR.NewDecoder().Bytes(raw); err == nil && plausible(string(out)) {
		return string(out), nil
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil || !plausible(string(out)) {
		return "", domain.WrapError(domain.ErrValidation, "decode text", fmt.Errorf("unsupported text encoding %s", name))
	}
	return string(out), nil
}

func plausible(s string) bool {
	total := utf8.RuneCountInString(s)
	if total == 0 {
		return false
	}
	return float64(strings.Count(s, "\ufffd"))/float64(total) <= maxInvalidRatio
}
