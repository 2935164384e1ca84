package filetype

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentTypeFor("report.PDF"))
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ContentTypeFor("data.xlsx"))
	assert.Equal(t, "text/csv", ContentTypeFor("rows.csv"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("mystery.bin"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("noext"))
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".pdf", ExtensionFor("application/pdf"))
	assert.Equal(t, ".xlsx", ExtensionFor("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"))
	assert.Equal(t, ".txt", ExtensionFor("text/plain; charset=utf-8"))
	assert.Equal(t, "", ExtensionFor("application/x-unknown"))
}

func TestEnsureExtension(t *testing.T) {
	assert.Equal(t, "report.pdf", EnsureExtension("report.pdf"))
	assert.Equal(t, "report.xlsx", EnsureExtension("report"))
}

func TestReplaceExtension(t *testing.T) {
	assert.Equal(t, "a.xlsx", ReplaceExtension("a.pdf", ".xlsx"))
	assert.Equal(t, "a.xlsx", ReplaceExtension("a", ".xlsx"))
	assert.Equal(t, "dir.name.xlsx", ReplaceExtension("dir.name.pdf", ".xlsx"))
}

func TestSniff(t *testing.T) {
	assert.Equal(t, "application/pdf", Sniff([]byte("%PDF-1.4\nsome content")))
	assert.Equal(t, "application/zip", Sniff([]byte{0x50, 0x4b, 0x03, 0x04, 0x00, 0x00}))
}
