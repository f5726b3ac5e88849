// Package docx extracts WordprocessingML text: body paragraphs and tables,
// then headers and footers.
package docx

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

const maxPartBytes = 64 << 20

type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

func (e *Extractor) Extract(ctx context.Context, _ *domain.Document, raw []byte) (domain.Extraction, error) {
	archive, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrValidation, "parse docx", fmt.Errorf("not a docx archive: %w", err))
	}

	parts := map[string]*zip.File{}
	for _, f := range archive.File {
		parts[f.Name] = f
	}
	body, ok := parts["word/document.xml"]
	if !ok {
		return domain.Extraction{}, domain.WrapError(domain.ErrValidation, "parse docx", fmt.Errorf("word/document.xml missing"))
	}

	sections := []string{}
	bodyText, err := partText(body)
	if err != nil {
		return domain.Extraction{}, err
	}
	sections = append(sections, bodyText)

	for _, name := range headerFooterParts(parts) {
		if err := ctx.Err(); err != nil {
			return domain.Extraction{}, err
		}
		text, err := partText(parts[name])
		if err != nil {
			return domain.Extraction{}, err
		}
		sections = append(sections, text)
	}

	var pages *int
	if app, ok := parts["docProps/app.xml"]; ok {
		pages = declaredPages(app)
	}

	kept := sections[:0]
	for _, s := range sections {
		if strings.TrimSpace(s) != "" {
			kept = append(kept, strings.TrimSpace(s))
		}
	}
	return domain.Extraction{Text: strings.Join(kept, "\n\n"), PageCount: pages}, nil
}

func headerFooterParts(parts map[string]*zip.File) []string {
	names := []string{}
	for name := range parts {
		base := path.Base(name)
		if path.Dir(name) == "word" && strings.HasSuffix(base, ".xml") &&
			(strings.HasPrefix(base, "header") || strings.HasPrefix(base, "footer")) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func partText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	text, err := wordprocessingText(io.LimitReader(rc, maxPartBytes))
	if err != nil {
		return "", domain.WrapError(domain.ErrValidation, "parse docx", fmt.Errorf("%s: %w", f.Name, err))
	}
	return text, nil
}

// wordprocessingText walks w:p/w:r/w:t tokens. Paragraphs end lines and table
// cells are tab separated.
func wordprocessingText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteByte('\t')
			case "br", "cr":
				b.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteByte('\n')
			case "tc":
				b.WriteByte('\t')
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}

func declaredPages(f *zip.File) *int {
	rc, err := f.Open()
	if err != nil {
		return nil
	}
	defer rc.Close()
	var props struct {
		Pages string `xml:"Pages"`
	}
	if err := xml.NewDecoder(io.LimitReader(rc, 1<<20)).Decode(&props); err != nil {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(props.Pages))
	if err != nil || n <= 0 {
		return nil
	}
	return &n
}
