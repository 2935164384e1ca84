package jobid

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMintFormat(t *testing.T) {
	before := time.Now().UnixMilli()
	id := Mint("My Report (v2).pdf")
	after := time.Now().UnixMilli()

	parts := strings.Split(id, "_")
	require.GreaterOrEqual(t, len(parts), 4)
	assert.Equal(t, "job", parts[0])

	ms, err := strconv.ParseInt(parts[1], 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, ms, before)
	assert.LessOrEqual(t, ms, after)

	assert.Len(t, parts[2], 8)
	assert.Equal(t, "My_Report__v2__pdf", strings.Join(parts[3:], "_"))
}

func TestMintUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := Mint("same.xlsx")
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"report.pdf", "report_pdf"},
		{"a b/c\\d.xlsx", "a_b_c_d_xlsx"},
		{"ABC123", "ABC123"},
		{"", ""},
		{"änder.pdf", "_nder_pdf"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Sanitize(tc.in), "input %q", tc.in)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	id := Mint("quarterly report.pdf")
	dec := Decode(id)

	assert.WithinDuration(t, time.Now(), dec.StartedAt, 2*time.Second)
	// Underscores collapse to spaces; the original dot is gone too.
	assert.Equal(t, "quarterly report pdf", dec.Filename)
}

func TestDecodeAtFallback(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"", "garbage", "job_notanumber_x_y", "job"} {
		dec := DecodeAt(id, now)
		assert.Equal(t, now.Add(-FallbackAge), dec.StartedAt, "id %q", id)
		assert.Equal(t, "document", dec.Filename, "id %q", id)
	}
}

func TestDecodeAtNoFilenameSegment(t *testing.T) {
	now := time.Now()
	dec := DecodeAt("job_1700000000000_abcd1234", now)
	assert.Equal(t, time.UnixMilli(1700000000000), dec.StartedAt)
	assert.Equal(t, "document", dec.Filename)
}
