package filetype

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Extension/MIME mapping for the formats the relay traffics in. Anything
// outside the map degrades to application/octet-stream.
var contentTypeByExt = map[string]string{
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"pdf":  "application/pdf",
	"txt":  "text/plain",
	"json": "application/json",
	"csv":  "text/csv",
	"xls":  "application/vnd.ms-excel",
}

var extByContentType = map[string]string{
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": ".xlsx",
	"application/pdf":          ".pdf",
	"text/plain":               ".txt",
	"application/json":         ".json",
	"text/csv":                 ".csv",
	"application/vnd.ms-excel": ".xls",
}

// ContentTypeFor returns the MIME type for a filename, judged by extension.
func ContentTypeFor(filename string) string {
	ext := strings.ToLower(Ext(filename))
	ext = strings.TrimPrefix(ext, ".")
	if ct, ok := contentTypeByExt[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}

// ExtensionFor returns the canonical extension (with dot) for a MIME type,
// or "" when unknown.
func ExtensionFor(contentType string) string {
	// strip parameters like "; charset=utf-8"
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = contentType[:i]
	}
	return extByContentType[strings.TrimSpace(strings.ToLower(contentType))]
}

// Ext returns the extension of name including the dot, or "".
func Ext(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}

// EnsureExtension appends .xlsx when the filename carries no extension.
// Matches the upstream processor's output convention.
func EnsureExtension(filename string) string {
	if strings.Contains(filename, ".") {
		return filename
	}
	return filename + ".xlsx"
}

// ReplaceExtension swaps the extension of name for ext (which includes the dot).
func ReplaceExtension(name, ext string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i] + ext
	}
	return name + ext
}

// Sniff detects a MIME type from magic bytes. Used when an upload declares
// no content type at all.
func Sniff(data []byte) string {
	return mimetype.Detect(data).String()
}
