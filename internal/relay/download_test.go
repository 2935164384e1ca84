package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/filerelay/internal/store"
)

func TestFetchConsumesCachedFile(t *testing.T) {
	ctx := context.Background()
	files := store.NewMemory()
	require.NoError(t, files.Put(ctx, "job1", store.StoredFile{
		Data:     []byte("processed bytes"),
		MimeType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		FileName: "result.xlsx",
	}))

	d := NewDownloader(DownloaderOptions{Files: files})

	resp := d.Fetch(ctx, "job1", "result.xlsx")
	assert.Equal(t, SourceCache, resp.Source)
	assert.Equal(t, "result.xlsx", resp.FileName)
	assert.Equal(t, []byte("processed bytes"), resp.Data)

	// Second fetch falls through to preview, the cache entry is gone.
	resp = d.Fetch(ctx, "job1", "result.xlsx")
	assert.Equal(t, SourcePreview, resp.Source)
}

func TestFetchPreviewSignatures(t *testing.T) {
	d := NewDownloader(DownloaderOptions{})

	xlsx := d.Fetch(context.Background(), "job1", "out.xlsx")
	assert.Equal(t, SourcePreview, xlsx.Source)
	assert.Equal(t, []byte{0x50, 0x4b, 0x03, 0x04}, xlsx.Data[:4])
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", xlsx.ContentType)

	pdf := d.Fetch(context.Background(), "job1", "out.pdf")
	assert.True(t, strings.HasPrefix(string(pdf.Data), "%PDF-1.4"))
	assert.Equal(t, "application/pdf", pdf.ContentType)

	txt := d.Fetch(context.Background(), "job1", "out.bin")
	assert.Equal(t, "text/plain", txt.ContentType)
	assert.Contains(t, string(txt.Data), "job1")
}

func TestFetchRelaysWebhookBinary(t *testing.T) {
	var gotJobID, gotReqType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotJobID = r.Header.Get("X-Job-ID")
		gotReqType = r.Header.Get("X-Request-Type")
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="final.pdf"`)
		w.Write([]byte("%PDF-1.4 processed"))
	}))
	defer srv.Close()

	d := NewDownloader(DownloaderOptions{Endpoint: srv.URL, Files: store.NewMemory()})
	resp := d.Fetch(context.Background(), "job9", "requested.pdf")

	assert.Equal(t, "job9", gotJobID)
	assert.Equal(t, "download-processed-file", gotReqType)
	assert.Equal(t, SourceWebhook, resp.Source)
	assert.Equal(t, "final.pdf", resp.FileName)
	assert.Equal(t, "verified", resp.Integrity)
	assert.Equal(t, []byte("%PDF-1.4 processed"), resp.Data)
}

func TestFetchWebhookErrorYieldsReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDownloader(DownloaderOptions{Endpoint: srv.URL})
	resp := d.Fetch(context.Background(), "job9", "x.pdf")

	assert.Equal(t, SourceError, resp.Source)
	assert.Equal(t, "error-report.txt", resp.FileName)
	assert.Equal(t, "text/plain", resp.ContentType)
	assert.Contains(t, string(resp.Data), "502")
	assert.Contains(t, string(resp.Data), "job9")
}

func TestFetchEmptyWebhookBodyYieldsReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDownloader(DownloaderOptions{Endpoint: srv.URL})
	resp := d.Fetch(context.Background(), "job9", "x.pdf")
	assert.Equal(t, SourceError, resp.Source)
	assert.Contains(t, string(resp.Data), "empty binary data")
}

func TestFilenameFromHeaders(t *testing.T) {
	cases := []struct {
		name     string
		headers  map[string]string
		fallback string
		want     string
	}{
		{"disposition wins", map[string]string{
			"Content-Disposition": `attachment; filename="report.xlsx"`,
			"X-File-Name":         "other.xlsx",
		}, "fb", "report.xlsx"},
		{"custom header", map[string]string{"X-File-Name": "my%20file.pdf"}, "fb", "my file.pdf"},
		{"x-filename variant", map[string]string{"X-Filename": "alt.pdf"}, "fb", "alt.pdf"},
		{"fallback", nil, "fb.pdf", "fb.pdf"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := http.Header{}
			for k, v := range tc.headers {
				h.Set(k, v)
			}
			assert.Equal(t, tc.want, filenameFromHeaders(h, tc.fallback))
		})
	}
}

func TestCorrectExtension(t *testing.T) {
	cases := []struct {
		name, contentType, origExt, want string
	}{
		// Declared extension wins over the current one.
		{"report.pdf", "application/pdf", ".xlsx", "report.xlsx"},
		// Matching suffix left alone.
		{"report.xlsx", "application/pdf", ".xlsx", "report.xlsx"},
		// No extension: inferred from content type.
		{"report", "application/pdf", "", "report.pdf"},
		{"report", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet; charset=utf-8", "", "report.xlsx"},
		// Nothing to go on.
		{"report", "application/x-unknown", "", "report"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, correctExtension(tc.name, tc.contentType, tc.origExt), "name %q ct %q ext %q", tc.name, tc.contentType, tc.origExt)
	}
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "short", Excerpt("short"))
	assert.Len(t, Excerpt(strings.Repeat("a", 1000)), 200)
}
