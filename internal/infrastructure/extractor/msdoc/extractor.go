// Package msdoc reads the text of legacy Word 97-2003 binaries through the
// piece table stored in the CLX structure of the table stream.
package msdoc

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
	"golang.org/x/text/encoding/charmap"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

const (
	wordMagic        = 0xA5EC
	fibFlagsOffset   = 0x000A
	flagWhichTable   = 0x0200
	fibFcClxOffset   = 0x01A2
	fibLcbClxOffset  = 0x01A6
	pieceDescSize    = 8
	compressedFcFlag = 0x40000000
)

var errNotWordDocument = errors.New("not a word 97-2003 document")

type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

func (e *Extractor) Extract(ctx context.Context, _ *domain.Document, raw []byte) (domain.Extraction, error) {
	streams, err := readStreams(raw, "WordDocument", "0Table", "1Table")
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrValidation, "parse doc", err)
	}
	if err := ctx.Err(); err != nil {
		return domain.Extraction{}, err
	}

	text, err := pieceTableText(streams)
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrValidation, "parse doc", err)
	}
	return domain.Extraction{Text: cleanControlChars(text)}, nil
}

func readStreams(raw []byte, names ...string) (map[string][]byte, error) {
	doc, err := mscfb.New(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open compound file: %w", err)
	}
	wanted := map[string]bool{}
	for _, n := range names {
		wanted[n] = true
	}

	out := map[string][]byte{}
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if !wanted[entry.Name] || entry.Size <= 0 {
			continue
		}
		buf := make([]byte, entry.Size)
		if _, err := io.ReadFull(entry, buf); err != nil {
			return nil, fmt.Errorf("read stream %s: %w", entry.Name, err)
		}
		out[entry.Name] = buf
	}
	if _, ok := out["WordDocument"]; !ok {
		return nil, errNotWordDocument
	}
	return out, nil
}

func pieceTableText(streams map[string][]byte) (string, error) {
	word := streams["WordDocument"]
	if len(word) < fibLcbClxOffset+4 || binary.LittleEndian.Uint16(word) != wordMagic {
		return "", errNotWordDocument
	}

	tableName := "0Table"
	if binary.LittleEndian.Uint16(word[fibFlagsOffset:])&flagWhichTable != 0 {
		tableName = "1Table"
	}
	table, ok := streams[tableName]
	if !ok {
		return "", fmt.Errorf("table stream %s missing", tableName)
	}

	fcClx := binary.LittleEndian.Uint32(word[fibFcClxOffset:])
	lcbClx := binary.LittleEndian.Uint32(word[fibLcbClxOffset:])
	if uint64(fcClx)+uint64(lcbClx) > uint64(len(table)) || lcbClx == 0 {
		return "", fmt.Errorf("clx out of range")
	}
	plcPcd, err := pieceTable(table[fcClx : fcClx+lcbClx])
	if err != nil {
		return "", err
	}

	n := (len(plcPcd) - 4) / (4 + pieceDescSize)
	if n <= 0 {
		return "", fmt.Errorf("empty piece table")
	}
	descs := plcPcd[(n+1)*4:]

	var b strings.Builder
	for i := 0; i < n; i++ {
		cpStart := binary.LittleEndian.Uint32(plcPcd[i*4:])
		cpEnd := binary.LittleEndian.Uint32(plcPcd[(i+1)*4:])
		if cpEnd <= cpStart {
			continue
		}
		count := int(cpEnd - cpStart)
		fc := binary.LittleEndian.Uint32(descs[i*pieceDescSize+2:])

		if fc&compressedFcFlag != 0 {
			offset := int((fc &^ compressedFcFlag) / 2)
			if offset+count > len(word) {
				return "", fmt.Errorf("piece %d out of range", i)
			}
			decoded, err := charmap.Windows1252.NewDecoder().Bytes(word[offset : offset+count])
			if err != nil {
				return "", fmt.Errorf("decode piece %d: %w", i, err)
			}
			b.Write(decoded)
			continue
		}

		offset := int(fc)
		if offset+2*count > len(word) {
			return "", fmt.Errorf("piece %d out of range", i)
		}
		units := make([]uint16, count)
		for j := range units {
			units[j] = binary.LittleEndian.Uint16(word[offset+2*j:])
		}
		b.WriteString(string(utf16.Decode(units)))
	}
	return b.String(), nil
}

// pieceTable skips Prc entries in the CLX and returns the PlcPcd payload.
func pieceTable(clx []byte) ([]byte, error) {
	for i := 0; i < len(clx); {
		switch clx[i] {
		case 0x01:
			if i+3 > len(clx) {
				return nil, fmt.Errorf("truncated prc")
			}
			i += 3 + int(binary.LittleEndian.Uint16(clx[i+1:]))
		case 0x02:
			if i+5 > len(clx) {
				return nil, fmt.Errorf("truncated pcdt")
			}
			size := int(binary.LittleEndian.Uint32(clx[i+1:]))
			if i+5+size > len(clx) {
				return nil, fmt.Errorf("pcdt out of range")
			}
			return clx[i+5 : i+5+size], nil
		default:
			return nil, fmt.Errorf("unexpected clx marker 0x%02x", clx[i])
		}
	}
	return nil, fmt.Errorf("pcdt not found")
}

// cleanControlChars maps Word's special characters to plain text. Field codes
// between 0x13 and 0x14 are dropped, keeping only the field result.
func cleanControlChars(s string) string {
	var b strings.Builder
	inFieldCode := 0
	for _, r := range s {
		switch r {
		case 0x13:
			inFieldCode++
			continue
		case 0x14, 0x15:
			if inFieldCode > 0 {
				inFieldCode--
			}
			continue
		}
		if inFieldCode > 0 {
			continue
		}
		switch {
		case r == '\r', r == 0x0B, r == 0x0C:
			b.WriteByte('\n')
		case r == 0x07:
			b.WriteByte('\t')
		case r == '\t', r == '\n':
			b.WriteRune(r)
		case r < 0x20:
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
