package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	uploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "filerelay",
			Name:      "uploads_total",
			Help:      "Upload relay calls by encoding and result",
		},
		[]string{"encoding", "result"},
	)

	uploadLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "filerelay",
			Name:      "upload_duration_seconds",
			Help:      "Duration of webhook upload handoffs by encoding",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"encoding"},
	)

	downloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "filerelay",
			Name:      "downloads_total",
			Help:      "Download relay responses by source (webhook-cache, preview-mode, webhook-binary, error)",
		},
		[]string{"source"},
	)

	statusPolls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "filerelay",
			Name:      "status_polls_total",
			Help:      "Processing status polls served",
		},
	)

	filesStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "filerelay",
			Name:      "callback_files_stored_total",
			Help:      "Files received from the webhook callback and cached",
		},
	)

	filesConsumed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "filerelay",
			Name:      "callback_files_consumed_total",
			Help:      "Cached callback files served and deleted",
		},
	)

	callbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "filerelay",
			Name:      "webhook_callbacks_total",
			Help:      "Webhook callback ingestions by result",
		},
		[]string{"result"},
	)
)

// Init registers collectors.
func Init() {
	prometheus.MustRegister(uploads, uploadLatency, downloads, statusPolls, filesStored, filesConsumed, callbacks)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveUpload(encoding, result string, dur time.Duration) {
	uploads.WithLabelValues(encoding, result).Inc()
	uploadLatency.WithLabelValues(encoding).Observe(dur.Seconds())
}

func IncDownload(source string) { downloads.WithLabelValues(source).Inc() }
func IncStatusPoll()            { statusPolls.Inc() }
func IncFileStored()            { filesStored.Inc() }
func IncFileConsumed()          { filesConsumed.Inc() }

func IncCallback(result string) { callbacks.WithLabelValues(result).Inc() }
