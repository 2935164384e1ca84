package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/filerelay/internal/progress"
	"github.com/local/filerelay/internal/relay"
)

// Programmatic counterpart of the browser upload widget: one state machine
// driving select -> upload -> poll -> download-ready against the relay API.

// State is the widget lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateSelected   State = "selected"
	StateSending    State = "sending"
	StateProcessing State = "processing"
	StateSuccess    State = "success"
	StateError      State = "error"
	StateCancelled  State = "cancelled"
)

// ErrorType classifies a failed run.
type ErrorType string

const (
	ErrNetwork   ErrorType = "network"
	ErrServer    ErrorType = "server"
	ErrTimeout   ErrorType = "timeout"
	ErrSize      ErrorType = "size"
	ErrType      ErrorType = "type"
	ErrContract  ErrorType = "contract"
	ErrCancelled ErrorType = "cancelled"
	ErrUnknown   ErrorType = "unknown"
)

// ErrorDetails is the typed result surfaced on failure.
type ErrorDetails struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Technical  string
	Retryable  bool
}

func (e *ErrorDetails) Error() string { return e.Message }

var (
	allowedTypes = map[string]bool{
		"application/pdf": true,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
	}
	allowedExtensions = map[string]bool{".pdf": true, ".xlsx": true}
)

// File is the selected payload.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Options configures a Widget.
type Options struct {
	// BaseURL of the relay service, e.g. "http://localhost:8080".
	BaseURL string
	// UploadPath selects the encoding route; defaults to pure binary.
	UploadPath string
	// MaxFileSize in bytes; default 10 MiB.
	MaxFileSize int64
	// Timeout covers the upload transfer; the processing estimate is added
	// on top for the full-run deadline. Default 3 minutes.
	Timeout        time.Duration
	ProcessingTime time.Duration
	PollInterval   time.Duration
	TickInterval   time.Duration
	CSRFToken      string
	Client         *http.Client
}

// Widget drives one upload/processing/download cycle at a time.
type Widget struct {
	opts Options

	mu            sync.Mutex
	state         State
	file          *File
	errDetails    *ErrorDetails
	jobID         string
	downloadURL   string
	progressPct   int
	timeRemaining string
	startedAt     time.Time
	cancel        context.CancelFunc
}

func New(opts Options) *Widget {
	if opts.UploadPath == "" {
		opts.UploadPath = "/api/upload-pure-binary"
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 10 << 20
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Minute
	}
	if opts.ProcessingTime <= 0 {
		opts.ProcessingTime = progress.DefaultTotal
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	if opts.Client == nil {
		opts.Client = &http.Client{}
	}
	return &Widget{opts: opts, state: StateIdle}
}

// State returns the current lifecycle state.
func (wg *Widget) State() State {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.state
}

// Err returns the typed error of the last failed run, if any.
func (wg *Widget) Err() *ErrorDetails {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.errDetails
}

// JobID returns the job id acknowledged by the relay.
func (wg *Widget) JobID() string {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.jobID
}

// DownloadURL is set once processing completed.
func (wg *Widget) DownloadURL() string {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.downloadURL
}

// Progress returns the last reported percentage.
func (wg *Widget) Progress() int {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.progressPct
}

// TimeRemaining is the human countdown maintained by the local ticker.
func (wg *Widget) TimeRemaining() string {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.timeRemaining
}

// Select validates the file client-side and moves idle -> selected. It
// fails closed with a typed error before any network traffic.
func (wg *Widget) Select(f File) error {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	if wg.state != StateIdle && wg.state != StateSelected {
		return &ErrorDetails{Type: ErrUnknown, Message: fmt.Sprintf("cannot select a file in state %q", wg.state)}
	}

	if int64(len(f.Data)) > wg.opts.MaxFileSize {
		e := &ErrorDetails{
			Type: ErrSize,
			Message: fmt.Sprintf("File size exceeds the limit of %dMB. Your file is %.2fMB.",
				wg.opts.MaxFileSize>>20, float64(len(f.Data))/(1<<20)),
			Technical: fmt.Sprintf("File size: %d bytes, Max allowed: %d bytes", len(f.Data), wg.opts.MaxFileSize),
		}
		wg.errDetails = e
		return e
	}

	ext := strings.ToLower(extOf(f.Name))
	if !allowedExtensions[ext] || !allowedTypes[strings.ToLower(f.MimeType)] {
		e := &ErrorDetails{
			Type:      ErrType,
			Message:   "Invalid file type. Please select a file with an allowed format.",
			Technical: fmt.Sprintf("File type: %s, Extension: %s", f.MimeType, ext),
		}
		wg.errDetails = e
		return e
	}

	wg.file = &f
	wg.errDetails = nil
	wg.state = StateSelected
	return nil
}

// Reset returns a terminal widget to idle.
func (wg *Widget) Reset() {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	switch wg.state {
	case StateSuccess, StateError, StateCancelled, StateSelected:
		wg.state = StateIdle
		wg.file = nil
		wg.errDetails = nil
		wg.jobID = ""
		wg.downloadURL = ""
		wg.progressPct = 0
		wg.timeRemaining = ""
	}
}

// Cancel aborts the in-flight request and stops both timers. The upload
// already handed to the webhook is not retracted.
func (wg *Widget) Cancel() {
	wg.mu.Lock()
	c := wg.cancel
	wg.mu.Unlock()
	if c != nil {
		c()
	}
}

// Run performs the whole cycle: upload, poll every PollInterval, local
// countdown every TickInterval, until completed, failed, cancelled or the
// deadline passes. It blocks; Cancel is safe from other goroutines.
func (wg *Widget) Run(ctx context.Context) error {
	wg.mu.Lock()
	if wg.state != StateSelected || wg.file == nil {
		wg.mu.Unlock()
		return &ErrorDetails{Type: ErrUnknown, Message: "no file selected"}
	}
	file := *wg.file
	total := wg.opts.Timeout + wg.opts.ProcessingTime
	runCtx, cancel := context.WithCancel(ctx)
	deadline := time.Now().Add(total)
	wg.cancel = cancel
	wg.state = StateSending
	wg.mu.Unlock()
	defer cancel()

	runCtx, cancelDeadline := context.WithDeadline(runCtx, deadline)
	defer cancelDeadline()

	ack, err := wg.send(runCtx, file)
	if err != nil {
		return wg.fail(runCtx, deadline, err)
	}

	wg.mu.Lock()
	wg.state = StateProcessing
	wg.jobID = ack.JobID
	wg.startedAt = time.Now()
	wg.mu.Unlock()

	if err := wg.pollLoop(runCtx, ack.JobID); err != nil {
		return wg.fail(runCtx, deadline, err)
	}
	return nil
}

func (wg *Widget) send(ctx context.Context, f File) (*relay.Result, error) {
	var b bytes.Buffer
	mw := multipart.NewWriter(&b)
	fw, err := mw.CreateFormFile("file", f.Name)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(f.Data); err != nil {
		return nil, err
	}
	meta, _ := json.Marshal(map[string]string{
		"category":        categoryFor(f.MimeType),
		"source":          "user-upload",
		"uploadTimestamp": time.Now().UTC().Format(time.RFC3339),
	})
	_ = mw.WriteField("metadata", string(meta))
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wg.opts.BaseURL+wg.opts.UploadPath, &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if wg.opts.CSRFToken != "" {
		req.Header.Set("X-CSRF-Token", wg.opts.CSRFToken)
	}

	resp, err := wg.opts.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &relay.UpstreamError{StatusCode: resp.StatusCode, Body: relay.Excerpt(string(body))}
	}
	var ack relay.Result
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("decode upload acknowledgement: %w", err)
	}
	if ack.JobID == "" {
		return nil, &ErrorDetails{
			Type:      ErrContract,
			Message:   "Upload accepted without a job id.",
			Technical: "missing jobId in upload acknowledgement",
		}
	}
	return &ack, nil
}

func (wg *Widget) pollLoop(ctx context.Context, jobID string) error {
	poll := time.NewTicker(wg.opts.PollInterval)
	defer poll.Stop()
	tick := time.NewTicker(wg.opts.TickInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			wg.updateCountdown()
		case <-poll.C:
			rep, err := wg.poll(ctx, jobID)
			if err != nil {
				log.Warn().Err(err).Str("job_id", jobID).Msg("status poll failed")
				continue // transient poll failures do not abort the run
			}
			wg.mu.Lock()
			wg.progressPct = rep.Progress
			wg.mu.Unlock()

			switch rep.Status {
			case progress.StateCompleted:
				if rep.DownloadURL == "" {
					return &ErrorDetails{
						Type:      ErrContract,
						Message:   "Processing completed but no download was provided.",
						Technical: "Missing downloadUrl in processing status response",
					}
				}
				wg.mu.Lock()
				wg.downloadURL = rep.DownloadURL
				wg.state = StateSuccess
				wg.mu.Unlock()
				return nil
			case "failed":
				return &ErrorDetails{
					Type:      ErrServer,
					Message:   "Processing failed on the server.",
					Retryable: true,
				}
			}
		}
	}
}

func (wg *Widget) poll(ctx context.Context, jobID string) (*progress.Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wg.opts.BaseURL+"/api/processing-status?jobId="+jobID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := wg.opts.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get processing status: %d", resp.StatusCode)
	}
	var rep progress.Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		return nil, err
	}
	return &rep, nil
}

// updateCountdown recomputes the human countdown independently of poll
// cadence.
func (wg *Widget) updateCountdown() {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	if wg.startedAt.IsZero() {
		return
	}
	remaining := wg.opts.ProcessingTime - time.Since(wg.startedAt)
	if remaining <= 0 {
		wg.timeRemaining = "Completing..."
		return
	}
	m := int(remaining.Minutes())
	s := int(remaining.Seconds()) % 60
	if m > 0 {
		wg.timeRemaining = fmt.Sprintf("%dm %ds remaining", m, s)
	} else {
		wg.timeRemaining = fmt.Sprintf("%ds remaining", s)
	}
}

// fail converts an error into the typed terminal state, separating deadline
// expiry from user cancellation by whether the deadline was actually reached.
func (wg *Widget) fail(ctx context.Context, deadline time.Time, err error) error {
	details := wg.classify(ctx, deadline, err)
	wg.mu.Lock()
	wg.errDetails = details
	if details.Type == ErrCancelled {
		wg.state = StateCancelled
	} else {
		wg.state = StateError
	}
	wg.mu.Unlock()
	return details
}

func (wg *Widget) classify(ctx context.Context, deadline time.Time, err error) *ErrorDetails {
	var details *ErrorDetails
	if ed, ok := err.(*ErrorDetails); ok {
		return ed
	}
	var up *relay.UpstreamError
	switch {
	case errors.As(err, &up):
		details = &ErrorDetails{
			Type:       ErrServer,
			Message:    fmt.Sprintf("Server responded with status: %d", up.StatusCode),
			StatusCode: up.StatusCode,
			Technical:  up.Body,
			Retryable:  up.StatusCode >= 500 || up.StatusCode == 429,
		}
	case ctx.Err() != nil:
		if relay.IsTimeout(ctx.Err()) || !time.Now().Before(deadline) {
			total := wg.opts.Timeout + wg.opts.ProcessingTime
			details = &ErrorDetails{
				Type:      ErrTimeout,
				Message:   fmt.Sprintf("Process timed out after %.0f seconds.", total.Seconds()),
				Retryable: true,
			}
		} else {
			details = &ErrorDetails{
				Type:      ErrCancelled,
				Message:   "Process cancelled by user.",
				Technical: "User initiated abort of upload/processing request",
			}
		}
	case relay.IsTimeout(err):
		details = &ErrorDetails{Type: ErrTimeout, Message: "Request timed out.", Retryable: true}
	case relay.IsTransient(err):
		details = &ErrorDetails{Type: ErrNetwork, Message: "Network error while contacting the server.", Technical: err.Error(), Retryable: true}
	default:
		details = &ErrorDetails{Type: ErrUnknown, Message: "Upload failed.", Technical: err.Error()}
	}
	return details
}

func categoryFor(mime string) string {
	if strings.Contains(mime, "pdf") {
		return "document"
	}
	return "spreadsheet"
}

func extOf(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i:]
	}
	return ""
}
