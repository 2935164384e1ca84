package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/filerelay/internal/filetype"
	"github.com/local/filerelay/internal/metrics"
	"github.com/local/filerelay/internal/progress"
	"github.com/local/filerelay/internal/relay"
	"github.com/local/filerelay/internal/statuscheck"
	"github.com/local/filerelay/internal/store"
)

// corsAllowHeaders is the upload header allow-list the browser widget sends.
const corsAllowHeaders = "Content-Type, Authorization, X-CSRF-Token, X-File-Name, X-File-Size, X-File-Type, " +
	"X-Original-Extension, X-Job-ID, X-Processing-Request, X-Upload-Timestamp, X-Binary-Transfer, X-Input-Field-Name"

// Archiver is the optional S3 copy of callback files.
type Archiver interface {
	Archive(ctx context.Context, jobID, fileName, contentType string, data []byte) error
}

// StatusChecker reports dependency reachability for the system-status route.
type StatusChecker interface {
	Summary(ctx context.Context) statuscheck.Summary
}

// Dependencies bundles everything the handlers need.
type Dependencies struct {
	Uploader   *relay.Uploader
	Downloader *relay.Downloader
	Simulator  *progress.Simulator
	Files      store.FileStore
	Archiver   Archiver
	Status     StatusChecker
	CSRFToken  string
	MaxBody    int64
}

// API is the HTTP surface of the relay.
type API struct {
	deps Dependencies
}

func New(deps Dependencies) *API {
	if deps.MaxBody <= 0 {
		deps.MaxBody = 30 << 20
	}
	return &API{deps: deps}
}

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/api/upload-pure-binary", a.cors("POST, OPTIONS", a.uploadHandler(relay.PureBinary)))
	mux.HandleFunc("/api/upload-binary-with-metadata", a.cors("POST, OPTIONS", a.uploadHandler(relay.BinaryWithMetadata)))
	mux.HandleFunc("/api/upload-native", a.cors("POST, OPTIONS", a.uploadHandler(relay.MultipartForm)))
	mux.HandleFunc("/api/processing-status", a.cors("GET, OPTIONS", a.handleStatus))
	mux.HandleFunc("/api/download-binary", a.cors("GET, OPTIONS", a.handleDownload))
	mux.HandleFunc("/api/webhook-response-handler", a.cors("POST, OPTIONS", a.handleCallback))
	mux.HandleFunc("/api/csrf", a.cors("GET, OPTIONS", a.handleCSRF))
	if a.deps.Status != nil {
		mux.HandleFunc("/api/system-status", a.cors("GET, OPTIONS", a.handleSystemStatus))
	}
}

// cors answers preflight and stamps the permissive headers on every public
// route; the widget may be served from a different origin than the relay.
func (a *API) cors(methods string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", methods)
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Max-Age", "86400")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next(w, r)
	}
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (a *API) uploadHandler(enc relay.Encoding) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, a.deps.MaxBody)

		req, err := parseUpload(r)
		if err != nil {
			metrics.ObserveUpload(enc.String(), "client_error", 0)
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}

		start := time.Now()
		res, err := a.deps.Uploader.Upload(r.Context(), enc, req)
		if err != nil {
			a.writeUploadError(w, enc, err, time.Since(start))
			return
		}
		metrics.ObserveUpload(enc.String(), "ok", time.Since(start))
		writeJSON(w, http.StatusOK, res)
	}
}

// parseUpload accepts either a multipart form (field "file", optional
// "metadata" JSON string) or a raw binary body described by headers.
func parseUpload(r *http.Request) (relay.Request, error) {
	req := relay.Request{UserAgent: r.UserAgent()}

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return req, fmt.Errorf("invalid multipart form")
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			return req, fmt.Errorf("No file provided")
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return req, fmt.Errorf("failed to read file")
		}
		req.File = relay.File{
			Name:     hdr.Filename,
			MimeType: hdr.Header.Get("Content-Type"),
			Data:     data,
		}
		req.Metadata = relay.ParseMetadata(r.FormValue("metadata"))
		req.Extra = map[string]string{}
		if r.MultipartForm != nil {
			for k, vs := range r.MultipartForm.Value {
				if k != "file" && len(vs) > 0 {
					req.Extra[k] = vs[0]
				}
			}
		}
		return req, nil
	}

	// raw binary body
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return req, fmt.Errorf("failed to read request body")
	}
	if len(data) == 0 {
		return req, fmt.Errorf("No file provided")
	}
	name := r.Header.Get("X-File-Name")
	if dec, derr := url.QueryUnescape(name); derr == nil && dec != "" {
		name = dec
	}
	req.File = relay.File{
		Name:     name,
		MimeType: r.Header.Get("X-File-Type"),
		Data:     data,
	}
	if req.File.MimeType == "" {
		req.File.MimeType = ct
	}
	return req, nil
}

func (a *API) writeUploadError(w http.ResponseWriter, enc relay.Encoding, err error, dur time.Duration) {
	switch e := err.(type) {
	case *relay.InputError:
		metrics.ObserveUpload(enc.String(), "client_error", dur)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": e.Message})
	case *relay.UpstreamError:
		metrics.ObserveUpload(enc.String(), "upstream_error", dur)
		writeJSON(w, e.StatusCode, map[string]any{
			"error":   fmt.Sprintf("Webhook processing failed with status %d", e.StatusCode),
			"details": e.Body,
		})
	default:
		metrics.ObserveUpload(enc.String(), "network_error", dur)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":   "Failed to send file for processing",
			"details": err.Error(),
		})
	}
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	jobID := r.URL.Query().Get("jobId")
	if jobID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Job ID is required"})
		return
	}
	metrics.IncStatusPoll()
	rep := a.deps.Simulator.Poll(jobID)
	log.Debug().Str("job_id", jobID).Str("status", rep.Status).Int("progress", rep.Progress).Msg("status poll")
	writeJSON(w, http.StatusOK, rep)
}

func (a *API) handleDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	res := a.deps.Downloader.Fetch(r.Context(), q.Get("jobId"), q.Get("filename"))

	metrics.IncDownload(res.Source)
	if res.Source == relay.SourceCache {
		metrics.IncFileConsumed()
	}

	h := w.Header()
	h.Set("Content-Type", res.ContentType)
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.FileName))
	h.Set("Content-Length", strconv.Itoa(len(res.Data)))
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("X-Download-Source", res.Source)
	if res.Integrity != "" {
		h.Set("X-File-Integrity", res.Integrity)
	}
	if res.OriginalSize != "" {
		h.Set("X-Original-Size", res.OriginalSize)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

var (
	reFileName = regexp.MustCompile(`File Name: ([^\n]+)`)
	reFileExt  = regexp.MustCompile(`File Extension: ([^\n]+)`)
	reMimeType = regexp.MustCompile(`Mime Type: ([^\n]+)`)
	reFileSize = regexp.MustCompile(`File Size: ([^\n]+)`)
)

type callbackPayload struct {
	JobID      string `json:"jobId"`
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	BinaryData string `json:"binaryData"`
	Data       string `json:"data"`
}

// handleCallback ingests the webhook's push-back. With jobId + binaryData the
// bytes enter the file store for a single future download; a bare data string
// is parsed for file metadata and acknowledged.
func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, a.deps.MaxBody)

	var payload callbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		metrics.IncCallback("bad_json")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid JSON body"})
		return
	}

	if payload.JobID != "" && payload.BinaryData != "" {
		data, err := base64.StdEncoding.DecodeString(payload.BinaryData)
		if err != nil {
			metrics.IncCallback("bad_binary")
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid base64 binary data"})
			return
		}
		name := payload.FileName
		if name == "" {
			name = "processed-file.xlsx"
		}
		mime := payload.MimeType
		if mime == "" {
			mime = filetype.ContentTypeFor(name)
		}
		if err := a.deps.Files.Put(r.Context(), payload.JobID, store.StoredFile{Data: data, MimeType: mime, FileName: name}); err != nil {
			metrics.IncCallback("store_error")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Failed to store file"})
			return
		}
		metrics.IncCallback("stored")
		metrics.IncFileStored()
		log.Info().Str("job_id", payload.JobID).Str("file", name).Int("bytes", len(data)).Msg("stored callback file")

		if a.deps.Archiver != nil {
			go a.archive(payload.JobID, name, mime, data)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": "File stored for download",
			"fileInfo": map[string]any{
				"fileName": name,
				"mimeType": mime,
				"fileSize": len(data),
				"jobId":    payload.JobID,
			},
		})
		return
	}

	if payload.Data == "" {
		metrics.IncCallback("no_data")
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No data field in webhook response"})
		return
	}

	// Metadata-only callback, e.g. "File Name: File.xlsx File Extension: xlsx ...".
	info := map[string]any{
		"fileName":  matchOr(reFileName, payload.Data, "processed-file.xlsx"),
		"fileExt":   matchOr(reFileExt, payload.Data, "xlsx"),
		"mimeType":  matchOr(reMimeType, payload.Data, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"),
		"fileSize":  matchOr(reFileSize, payload.Data, "Unknown"),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	metrics.IncCallback("metadata")
	log.Info().Interface("file_info", info).Msg("webhook callback metadata parsed")
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Webhook response processed successfully",
		"fileInfo": info,
	})
}

// archive runs detached from the request; failures only log.
func (a *API) archive(jobID, name, mime string, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.deps.Archiver.Archive(ctx, jobID, name, mime, data); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("failed to archive callback file")
	}
}

func (a *API) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, a.deps.Status.Summary(r.Context()))
}

func (a *API) handleCSRF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	token := a.deps.CSRFToken
	if token == "" {
		token = "fallback-csrf-token"
	}
	writeJSON(w, http.StatusOK, map[string]any{"csrfToken": token})
}

func matchOr(re *regexp.Regexp, s, def string) string {
	if m := re.FindStringSubmatch(s); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
