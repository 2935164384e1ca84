package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/filerelay/internal/filetype"
	"github.com/local/filerelay/internal/store"
)

// Download sources, surfaced in the X-Download-Source header.
const (
	SourceCache   = "webhook-cache"
	SourcePreview = "preview-mode"
	SourceWebhook = "webhook-binary"
	SourceError   = "error"
)

// FileResponse is always a servable file; the download endpoint never
// answers with a JSON error body.
type FileResponse struct {
	Data         []byte
	ContentType  string
	FileName     string
	Source       string
	Integrity    string
	OriginalSize string
}

// Downloader resolves a job id to a file: cached callback payload first,
// preview synthesis when no webhook is configured, otherwise a relayed
// fetch from the webhook.
type Downloader struct {
	endpoint  string
	csrfToken string
	preview   bool
	files     store.FileStore
	client    *http.Client
	now       func() time.Time
}

// DownloaderOptions configures a Downloader.
type DownloaderOptions struct {
	Endpoint  string
	CSRFToken string
	Preview   bool
	Files     store.FileStore
	Client    *http.Client
}

func NewDownloader(opts DownloaderOptions) *Downloader {
	c := opts.Client
	if c == nil {
		c = &http.Client{Timeout: 30 * time.Second}
	}
	return &Downloader{
		endpoint:  opts.Endpoint,
		csrfToken: opts.CSRFToken,
		preview:   opts.Preview || opts.Endpoint == "",
		files:     opts.Files,
		client:    c,
		now:       time.Now,
	}
}

// Fetch resolves jobID to a file. A stored callback payload is consumed
// exactly once; racing readers past the first fall through to the other
// resolution paths.
func (d *Downloader) Fetch(ctx context.Context, jobID, requestedFilename string) FileResponse {
	if requestedFilename == "" {
		requestedFilename = "processed-file"
	}

	if jobID != "" && d.files != nil {
		stored, ok, err := d.files.Take(ctx, jobID)
		if err != nil {
			log.Error().Err(err).Str("job_id", jobID).Msg("file store lookup failed")
		} else if ok {
			log.Info().Str("job_id", jobID).Str("file", stored.FileName).Msg("serving file from callback cache")
			return FileResponse{
				Data:        stored.Data,
				ContentType: stored.MimeType,
				FileName:    stored.FileName,
				Source:      SourceCache,
			}
		}
	}

	if d.preview {
		log.Info().Str("job_id", jobID).Msg("preview mode, generating simulated file")
		return d.simulatedFile(requestedFilename, jobID)
	}

	return d.fetchFromWebhook(ctx, jobID, requestedFilename)
}

func (d *Downloader) fetchFromWebhook(ctx context.Context, jobID, requestedFilename string) FileResponse {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint, nil)
	if err != nil {
		return d.errorFile(fmt.Sprintf("Error building webhook request: %v", err), jobID)
	}
	req.Header.Set("Accept", "*/*")
	req.Header.Set("X-Job-ID", jobID)
	req.Header.Set("X-Request-Type", "download-processed-file")
	req.Header.Set("X-Original-Filename", requestedFilename)
	req.Header.Set("X-Download-Request", "true")
	if d.csrfToken != "" {
		req.Header.Set("X-CSRF-Token", d.csrfToken)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("webhook fetch failed")
		return d.errorFile(fmt.Sprintf("Error fetching from webhook: %v", err), jobID)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return d.errorFile(fmt.Sprintf("Error fetching processed file: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode)), jobID)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return d.errorFile(fmt.Sprintf("Error reading webhook response: %v", err), jobID)
	}
	if len(data) == 0 {
		return d.errorFile("Received empty binary data from webhook", jobID)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := filenameFromHeaders(resp.Header, requestedFilename)
	origExt := resp.Header.Get("X-File-Extension")
	if origExt == "" {
		origExt = resp.Header.Get("X-Original-Extension")
	}
	name = correctExtension(name, contentType, origExt)

	size := resp.Header.Get("X-File-Size")
	if size == "" {
		size = resp.Header.Get("Content-Length")
	}

	log.Info().
		Str("job_id", jobID).
		Str("file", name).
		Str("content_type", contentType).
		Int("bytes", len(data)).
		Msg("relaying processed file from webhook")

	return FileResponse{
		Data:         data,
		ContentType:  contentType,
		FileName:     name,
		Source:       SourceWebhook,
		Integrity:    "verified",
		OriginalSize: size,
	}
}

var dispositionFilename = regexp.MustCompile(`filename[^;=\n]*=('[^'\n]*'|"[^"\n]*"|[^;\n]*)`)

// filenameFromHeaders resolves the served filename: Content-Disposition
// parameter wins, then custom headers, then the requested fallback.
func filenameFromHeaders(h http.Header, fallback string) string {
	if m := dispositionFilename.FindStringSubmatch(h.Get("Content-Disposition")); len(m) > 1 && m[1] != "" {
		return strings.Trim(m[1], `'"`)
	}
	custom := h.Get("X-File-Name")
	if custom == "" {
		custom = h.Get("X-Filename")
	}
	if custom != "" {
		if dec, err := url.QueryUnescape(custom); err == nil {
			return dec
		}
		return custom
	}
	return fallback
}

// correctExtension rewrites the filename's extension when the upstream
// declared one, or infers it from the content type when none is present.
// The explicit header wins over MIME inference.
func correctExtension(name, contentType, origExt string) string {
	if origExt != "" && !strings.HasSuffix(name, origExt) {
		return filetype.ReplaceExtension(name, origExt)
	}
	if filetype.Ext(name) == "" {
		if ext := filetype.ExtensionFor(contentType); ext != "" {
			return name + ext
		}
	}
	return name
}

// simulatedFile synthesizes a placeholder whose bytes carry a recognizable
// signature for the requested extension. Cosmetic fallback only.
func (d *Downloader) simulatedFile(filename, jobID string) FileResponse {
	if jobID == "" {
		jobID = "unknown"
	}
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".xlsx"):
		header := []byte{0x50, 0x4b, 0x03, 0x04}
		body := fmt.Sprintf("Simulated processed XLSX file\nOriginal: %s\nJob ID: %s\nProcessed at: %s",
			filename, jobID, d.now().UTC().Format(time.RFC3339))
		return FileResponse{
			Data:        append(header, []byte(body)...),
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			FileName:    filename,
			Source:      SourcePreview,
			Integrity:   "simulated",
		}
	case strings.HasSuffix(lower, ".pdf"):
		return FileResponse{
			Data:        simulatedPDF(filename, jobID, d.now()),
			ContentType: "application/pdf",
			FileName:    filename,
			Source:      SourcePreview,
			Integrity:   "simulated",
		}
	default:
		body := fmt.Sprintf("Processed file: %s\nJob ID: %s\nGenerated at: %s",
			filename, jobID, d.now().UTC().Format(time.RFC3339))
		return FileResponse{
			Data:        []byte(body),
			ContentType: "text/plain",
			FileName:    filename,
			Source:      SourcePreview,
			Integrity:   "simulated",
		}
	}
}

func simulatedPDF(filename, jobID string, now time.Time) []byte {
	return []byte(fmt.Sprintf(`%%PDF-1.4
1 0 obj
<</Type /Catalog /Pages 2 0 R>>
endobj
2 0 obj
<</Type /Pages /Kids [3 0 R] /Count 1>>
endobj
3 0 obj
<</Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R>>
endobj
4 0 obj
<</Length 100>>
stream
BT
/F1 12 Tf
100 700 Td
(Processed File: %s) Tj
100 680 Td
(Job ID: %s) Tj
100 660 Td
(Generated: %s) Tj
ET
endstream
endobj
xref
0 5
0000000000 65535 f
0000000010 00000 n
0000000053 00000 n
0000000102 00000 n
0000000169 00000 n
trailer
<</Size 5 /Root 1 0 R>>
startxref
350
%%%%EOF`, filename, jobID, now.Format(time.RFC1123)))
}

// errorFile preserves the always-returns-a-file contract: failures become a
// downloadable plain-text report, never a JSON error.
func (d *Downloader) errorFile(message, jobID string) FileResponse {
	if jobID == "" {
		jobID = "unknown"
	}
	body := fmt.Sprintf("Error downloading processed file: %s\n\nWebhook URL: %s\nJob ID: %s\nTimestamp: %s\n\nPlease check the webhook configuration and try again.",
		message, d.endpoint, jobID, d.now().UTC().Format(time.RFC3339))
	return FileResponse{
		Data:        []byte(body),
		ContentType: "text/plain",
		FileName:    "error-report.txt",
		Source:      SourceError,
	}
}
