package usecase

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	MimePDF  = "application/pdf"
	MimeDOC  = "application/msword"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeText = "text/plain"
	MimeHWP  = "application/x-hwp"
)

// DefaultAllowedMimeTypes are always accepted for upload. Entries ending in "/*" match a family.
var DefaultAllowedMimeTypes = []string{MimePDF, MimeDOC, MimeDOCX, "image/*"}

var extensionMimeTypes = map[string]string{
	".pdf":  MimePDF,
	".doc":  MimeDOC,
	".docx": MimeDOCX,
	".xlsx": MimeXLSX,
	".txt":  MimeText,
	".hwp":  MimeHWP,
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".heic": "image/heic",
}

// genericContainers are sniffed types that say nothing about the document format.
var genericContainers = []string{
	"application/zip",
	"application/x-ole-storage",
	"application/octet-stream",
	"text/plain",
}

// ResolveMimeType trusts the file bytes first, then the extension, then the client's declaration.
func ResolveMimeType(filename, declared string, raw []byte) string {
	detected := mimetype.Detect(raw)
	sniffed := baseMimeType(detected.String())
	if !isGenericContainer(detected) {
		return sniffed
	}

	if byExt, ok := extensionMimeTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return byExt
	}
	if declaredBase := baseMimeType(declared); declaredBase != "" && declaredBase != "application/octet-stream" {
		return declaredBase
	}
	return sniffed
}

func isGenericContainer(m *mimetype.MIME) bool {
	for _, generic := range genericContainers {
		if m.Is(generic) {
			return true
		}
	}
	return false
}

func baseMimeType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return strings.ToLower(value)
	}
	return mediaType
}

// MimeAllowed reports whether mimeType matches one of the allowed entries.
func MimeAllowed(mimeType string, allowed []string) bool {
	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if prefix, ok := strings.CutSuffix(entry, "/*"); ok {
			if strings.HasPrefix(mimeType, prefix+"/") {
				return true
			}
			continue
		}
		if entry == mimeType {
			return true
		}
	}
	return false
}
