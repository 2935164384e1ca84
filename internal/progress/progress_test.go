package progress

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSim(elapsed time.Duration) (*Simulator, string) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	id := fmt.Sprintf("job_%d_abcd1234_quarterly_report_pdf", start.UnixMilli())
	s := New(90*time.Second,
		WithClock(func() time.Time { return start.Add(elapsed) }),
		WithJitter(func() int { return 0 }),
	)
	return s, id
}

func TestPollStages(t *testing.T) {
	cases := []struct {
		elapsed    time.Duration
		wantStatus string
		wantStage  string
	}{
		{0, StateInitial, "Initializing processing"},
		{10 * time.Second, StateInitial, "Initializing processing"},
		{20 * time.Second, StateIntermediate, "Parsing file format"},
		{36 * time.Second, StateIntermediate, "Analyzing file content"},
		{45 * time.Second, StateAdvanced, "Analyzing file content"},
		{54 * time.Second, StateAdvanced, "Processing data structures"},
		{72 * time.Second, StateFinalStage, "Applying final transformations"},
		{86 * time.Second, StateFinalizing, "Finalizing processed file"},
		{90 * time.Second, StateCompleted, "Finalizing processed file"},
		{5 * time.Minute, StateCompleted, "Finalizing processed file"},
	}
	for _, tc := range cases {
		s, id := fixedSim(tc.elapsed)
		rep := s.Poll(id)
		assert.Equal(t, tc.wantStatus, rep.Status, "elapsed %s", tc.elapsed)
		assert.Equal(t, tc.wantStage, rep.ProcessingStage, "elapsed %s", tc.elapsed)
	}
}

func TestPollProgressBounds(t *testing.T) {
	for _, elapsed := range []time.Duration{-time.Minute, 0, 45 * time.Second, 90 * time.Second, time.Hour} {
		s, id := fixedSim(elapsed)
		rep := s.Poll(id)
		assert.GreaterOrEqual(t, rep.Progress, 0, "elapsed %s", elapsed)
		assert.LessOrEqual(t, rep.Progress, 100, "elapsed %s", elapsed)
		assert.GreaterOrEqual(t, rep.RemainingTime, 0.0)
	}
}

func TestPollMonotonicBase(t *testing.T) {
	prev := -1
	for sec := 0; sec <= 120; sec += 3 {
		s, id := fixedSim(time.Duration(sec) * time.Second)
		rep := s.Poll(id)
		// Jitter is pinned to 0, so the display equals the base.
		assert.GreaterOrEqual(t, rep.Progress, prev, "at %ds", sec)
		prev = rep.Progress
	}
}

func TestPollJitterIsDisplayOnly(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	id := fmt.Sprintf("job_%d_abcd1234_report_pdf", start.UnixMilli())
	clock := func() time.Time { return start.Add(45 * time.Second) }

	low := New(90*time.Second, WithClock(clock), WithJitter(func() int { return 0 }))
	high := New(90*time.Second, WithClock(clock), WithJitter(func() int { return 2 }))

	a, b := low.Poll(id), high.Poll(id)
	assert.Equal(t, a.Status, b.Status)
	assert.Equal(t, a.ProcessingStage, b.ProcessingStage)
	assert.Equal(t, a.Progress+2, b.Progress)
}

func TestPollJitterCappedAt100(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	id := fmt.Sprintf("job_%d_abcd1234_report_pdf", start.UnixMilli())
	s := New(90*time.Second,
		WithClock(func() time.Time { return start.Add(91 * time.Second) }),
		WithJitter(func() int { return 2 }),
	)
	assert.Equal(t, 100, s.Poll(id).Progress)
}

func TestPollCompletion(t *testing.T) {
	s, id := fixedSim(91 * time.Second)
	rep := s.Poll(id)

	assert.Equal(t, StateCompleted, rep.Status)
	assert.True(t, rep.DownloadReady)
	assert.Equal(t, "/api/download-binary?filename=quarterly+report+pdf.xlsx&jobId="+id, rep.DownloadURL)
	assert.Equal(t, 0.0, rep.RemainingTime)

	require.NotNil(t, rep.FileMetadata)
	assert.Equal(t, "quarterly report pdf.xlsx", rep.FileMetadata.FileName)
	assert.True(t, rep.FileMetadata.ProcessingCompleted)
	assert.Equal(t, id, rep.FileMetadata.JobID)
	assert.Equal(t, ".xlsx", rep.FileMetadata.FileExtension)
	assert.Equal(t, "22.1 kB", rep.FileMetadata.FileSize)
}

func TestPollBeforeCompletionHasNoDownload(t *testing.T) {
	s, id := fixedSim(89 * time.Second)
	rep := s.Poll(id)
	assert.False(t, rep.DownloadReady)
	assert.Empty(t, rep.DownloadURL)
	assert.Nil(t, rep.FileMetadata)
}

func TestPollMalformedID(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New(90*time.Second,
		WithClock(func() time.Time { return now }),
		WithJitter(func() int { return 0 }),
	)
	rep := s.Poll("not-a-job-id")
	// Fallback decode: 30s old, "document".
	assert.Equal(t, StateIntermediate, rep.Status)
	assert.Equal(t, "document", rep.OriginalFilename)
	assert.InDelta(t, 30.0, rep.ElapsedTime, 0.01)
}
