package relay

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/filerelay/internal/filetype"
	"github.com/local/filerelay/internal/jobid"
)

// Encoding selects how an upload travels to the processing webhook. All three
// routes share one relay parameterized by encoding.
type Encoding int

const (
	PureBinary Encoding = iota
	BinaryWithMetadata
	MultipartForm
)

func (e Encoding) String() string {
	switch e {
	case PureBinary:
		return "pure-binary"
	case BinaryWithMetadata:
		return "binary-with-metadata"
	default:
		return "form-data"
	}
}

// File is one inbound upload.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Request bundles a file with optional free-form metadata and extra
// multipart string fields (MultipartForm only, copied verbatim).
type Request struct {
	File      File
	Metadata  map[string]any
	Extra     map[string]string
	UserAgent string
}

// UploadInfo echoes what was sent, for the acknowledgement payload.
type UploadInfo struct {
	FileName     string `json:"fileName"`
	FileSize     int    `json:"fileSize"`
	FileType     string `json:"fileType"`
	UploadMethod string `json:"uploadMethod"`
	Timestamp    string `json:"timestamp"`
	JobID        string `json:"jobId"`
}

// Result is the structured acknowledgement returned to the caller. The
// handoff does not await actual processing, only webhook acceptance.
type Result struct {
	Success                bool       `json:"success"`
	Message                string     `json:"message"`
	JobID                  string     `json:"jobId"`
	Filename               string     `json:"filename"`
	ProcessingStarted      bool       `json:"processingStarted"`
	ProcessingTimeEstimate int        `json:"processingTimeEstimate"`
	UploadInfo             UploadInfo `json:"uploadInfo"`
}

// Uploader forwards files to the processing webhook.
type Uploader struct {
	endpoint  string
	csrfToken string
	estimate  time.Duration
	client    *http.Client
}

// UploaderOptions configures an Uploader.
type UploaderOptions struct {
	Endpoint  string
	CSRFToken string
	Estimate  time.Duration
	Client    *http.Client
}

func NewUploader(opts UploaderOptions) *Uploader {
	c := opts.Client
	if c == nil {
		c = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Estimate <= 0 {
		opts.Estimate = 90 * time.Second
	}
	return &Uploader{
		endpoint:  opts.Endpoint,
		csrfToken: opts.CSRFToken,
		estimate:  opts.Estimate,
		client:    c,
	}
}

// ParseMetadata parses client-supplied metadata leniently: a broken payload
// becomes an empty object, never an error.
func ParseMetadata(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		log.Warn().Err(err).Msg("failed to parse upload metadata, ignoring")
		return map[string]any{}
	}
	return m
}

// Upload mints a job id, forwards the file with the requested encoding and
// returns the acknowledgement. All network faults come back as errors the
// caller can classify with IsTransient/IsTimeout.
func (u *Uploader) Upload(ctx context.Context, enc Encoding, req Request) (*Result, error) {
	if len(req.File.Data) == 0 {
		return nil, &InputError{Message: "No file provided"}
	}
	if req.File.Name == "" {
		req.File.Name = "upload"
	}
	if req.File.MimeType == "" {
		req.File.MimeType = filetype.Sniff(req.File.Data)
	}

	id := jobid.Mint(req.File.Name)
	now := time.Now().UTC().Format(time.RFC3339)

	log.Info().
		Str("job_id", id).
		Str("file", req.File.Name).
		Str("mime", req.File.MimeType).
		Int("size", len(req.File.Data)).
		Str("encoding", enc.String()).
		Msg("forwarding upload to webhook")

	var (
		httpReq *http.Request
		err     error
	)
	switch enc {
	case PureBinary:
		httpReq, err = u.pureBinaryRequest(ctx, id, now, req)
	case BinaryWithMetadata:
		httpReq, err = u.metadataRequest(ctx, id, now, req)
	default:
		httpReq, err = u.multipartRequest(ctx, id, req)
	}
	if err != nil {
		return nil, err
	}

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send to webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Error().Int("status", resp.StatusCode).Str("job_id", id).Msg("webhook rejected upload")
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: Excerpt(string(body))}
	}
	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	return &Result{
		Success:                true,
		Message:                "File sent for processing successfully",
		JobID:                  id,
		Filename:               req.File.Name,
		ProcessingStarted:      true,
		ProcessingTimeEstimate: int(u.estimate.Seconds()),
		UploadInfo: UploadInfo{
			FileName:     req.File.Name,
			FileSize:     len(req.File.Data),
			FileType:     req.File.MimeType,
			UploadMethod: enc.String(),
			Timestamp:    now,
			JobID:        id,
		},
	}, nil
}

// pureBinaryRequest ships raw bytes; all metadata rides in headers. The
// X-Input-Field-Name marker tells the webhook which input the bytes bind to.
func (u *Uploader) pureBinaryRequest(ctx context.Context, id, now string, req Request) (*http.Request, error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(req.File.Data))
	if err != nil {
		return nil, err
	}
	h := r.Header
	h.Set("Content-Type", req.File.MimeType)
	h.Set("X-File-Name", url.QueryEscape(req.File.Name))
	h.Set("X-File-Size", strconv.Itoa(len(req.File.Data)))
	h.Set("X-File-Type", req.File.MimeType)
	h.Set("X-Original-Extension", filetype.Ext(req.File.Name))
	h.Set("X-Job-ID", id)
	h.Set("X-Processing-Request", "true")
	h.Set("X-Upload-Timestamp", now)
	h.Set("X-Binary-Transfer", "true")
	h.Set("X-Input-Field-Name", "file")
	if u.csrfToken != "" {
		h.Set("X-CSRF-Token", u.csrfToken)
	}
	return r, nil
}

// metadataRequest wraps the file in a JSON envelope with base64 bytes, for
// webhooks that only accept JSON.
func (u *Uploader) metadataRequest(ctx context.Context, id, now string, req Request) (*http.Request, error) {
	fileInfo := map[string]any{
		"name": req.File.Name,
		"type": req.File.MimeType,
		"size": len(req.File.Data),
	}
	for k, v := range req.Metadata {
		fileInfo[k] = v
	}
	payload := map[string]any{
		"file":       fileInfo,
		"binaryData": base64.StdEncoding.EncodeToString(req.File.Data),
		"request": map[string]any{
			"timestamp":     now,
			"userAgent":     req.UserAgent,
			"contentLength": len(req.File.Data),
			"uploadMethod":  BinaryWithMetadata.String(),
		},
		"headers": map[string]string{
			"content-type":       req.File.MimeType,
			"content-length":     strconv.Itoa(len(req.File.Data)),
			"x-upload-timestamp": now,
			"x-file-name":        url.QueryEscape(req.File.Name),
			"x-file-type":        req.File.MimeType,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-Upload-Method", BinaryWithMetadata.String())
	r.Header.Set("X-File-Name", url.QueryEscape(req.File.Name))
	r.Header.Set("X-File-Type", req.File.MimeType)
	r.Header.Set("X-File-Size", strconv.Itoa(len(req.File.Data)))
	r.Header.Set("X-Job-ID", id)
	r.Header.Set("X-Timestamp", now)
	if u.csrfToken != "" {
		r.Header.Set("X-CSRF-Token", u.csrfToken)
	}
	return r, nil
}

// multipartRequest re-assembles a standard multipart form, copying extra
// string fields verbatim.
func (u *Uploader) multipartRequest(ctx context.Context, id string, req Request) (*http.Request, error) {
	var b bytes.Buffer
	mw := multipart.NewWriter(&b)
	fw, err := mw.CreateFormFile("file", req.File.Name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(req.File.Data); err != nil {
		return nil, err
	}
	for k, v := range req.Extra {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &b)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Content-Type", mw.FormDataContentType())
	r.Header.Set("X-Job-ID", id)
	if u.csrfToken != "" {
		r.Header.Set("X-CSRF-Token", u.csrfToken)
	}
	return r, nil
}
