package progress

import (
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"github.com/local/filerelay/internal/filetype"
	"github.com/local/filerelay/internal/jobid"
)

// The simulator stands in for a real status feed from the processing webhook:
// progress is interpolated from the job id's embedded start time against a
// fixed total duration. The Poll signature is kept stable so a callback-driven
// source can replace it without touching callers.

// DefaultTotal is the advertised end-to-end processing time.
const DefaultTotal = 90 * time.Second

// Status values, in strictly increasing order of progress.
const (
	StateInitial      = "processing-initial"
	StateIntermediate = "processing-intermediate"
	StateAdvanced     = "processing-advanced"
	StateFinalStage   = "processing-final-stage"
	StateFinalizing   = "finalizing"
	StateCompleted    = "completed"
)

// FileMetadata mirrors what the webhook callback would attach on completion.
type FileMetadata struct {
	FileName            string `json:"fileName"`
	FileType            string `json:"fileType"`
	FileSize            string `json:"fileSize"`
	ProcessingCompleted bool   `json:"processingCompleted"`
	JobID               string `json:"jobId"`
	MimeType            string `json:"mimeType"`
	FileExtension       string `json:"fileExtension"`
}

// Report is one poll result.
type Report struct {
	JobID              string        `json:"jobId"`
	Status             string        `json:"status"`
	Progress           int           `json:"progress"`
	DownloadReady      bool          `json:"downloadReady"`
	DownloadURL        string        `json:"downloadUrl,omitempty"`
	OriginalFilename   string        `json:"originalFilename"`
	FileMetadata       *FileMetadata `json:"fileMetadata,omitempty"`
	ElapsedTime        float64       `json:"elapsedTime"`
	EstimatedTotalTime float64       `json:"estimatedTotalTime"`
	RemainingTime      float64       `json:"remainingTime"`
	ProcessingStage    string        `json:"processingStage"`
}

// Simulator derives reports from wall clock time. The zero value is not
// usable; construct with New.
type Simulator struct {
	total       time.Duration
	downloadFmt string
	now         func() time.Time
	jitter      func() int
}

type Option func(*Simulator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// WithJitter overrides the display jitter source. The function must return
// a value in [0, 2].
func WithJitter(j func() int) Option {
	return func(s *Simulator) { s.jitter = j }
}

func New(total time.Duration, opts ...Option) *Simulator {
	if total <= 0 {
		total = DefaultTotal
	}
	s := &Simulator{
		total:       total,
		downloadFmt: "/api/download-binary?filename=%s&jobId=%s",
		now:         time.Now,
		jitter:      func() int { return rand.Intn(3) },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Poll recomputes the full status from scratch; no state is kept between
// calls, so concurrent pollers agree up to the jitter term.
func (s *Simulator) Poll(id string) Report {
	now := s.now()
	dec := jobid.DecodeAt(id, now)
	elapsed := now.Sub(dec.StartedAt)

	base := int(float64(elapsed) / float64(s.total) * 100)
	if base > 100 {
		base = 100
	}
	if base < 0 {
		base = 0
	}

	// Jitter is display-only: stage, remaining time and completion all key
	// off the un-jittered base.
	display := base + s.jitter()
	if display > 100 {
		display = 100
	}

	remaining := (s.total - elapsed).Seconds()
	if remaining < 0 {
		remaining = 0
	}

	rep := Report{
		JobID:              id,
		Status:             stateFor(base),
		Progress:           display,
		OriginalFilename:   dec.Filename,
		ElapsedTime:        elapsed.Seconds(),
		EstimatedTotalTime: s.total.Seconds(),
		RemainingTime:      remaining,
		ProcessingStage:    stageDescription(base),
	}

	if base >= 100 {
		name := filetype.EnsureExtension(dec.Filename)
		ct := filetype.ContentTypeFor(name)
		rep.DownloadReady = true
		rep.DownloadURL = fmt.Sprintf(s.downloadFmt, url.QueryEscape(name), id)
		rep.FileMetadata = &FileMetadata{
			FileName:            name,
			FileType:            ct,
			FileSize:            "22.1 kB", // placeholder, the callback never reports real size
			ProcessingCompleted: true,
			JobID:               id,
			MimeType:            ct,
			FileExtension:       filetype.Ext(name),
		}
	}
	return rep
}

func stateFor(base int) string {
	switch {
	case base >= 100:
		return StateCompleted
	case base >= 95:
		return StateFinalizing
	case base >= 80:
		return StateFinalStage
	case base >= 50:
		return StateAdvanced
	case base >= 20:
		return StateIntermediate
	default:
		return StateInitial
	}
}

func stageDescription(base int) string {
	switch {
	case base >= 95:
		return "Finalizing processed file"
	case base >= 80:
		return "Applying final transformations"
	case base >= 60:
		return "Processing data structures"
	case base >= 40:
		return "Analyzing file content"
	case base >= 20:
		return "Parsing file format"
	default:
		return "Initializing processing"
	}
}
