package jobid

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Job ids carry everything the status simulator needs: creation time and the
// original filename. Format: job_<epochMillis>_<token>_<sanitized filename>.
const prefix = "job"

// FallbackAge is substituted when a job id does not decode; progress
// computation must stay defined for arbitrary ids.
const FallbackAge = 30 * time.Second

const fallbackFilename = "document"

// Decoded holds the fields recovered from a job id.
type Decoded struct {
	StartedAt time.Time
	Filename  string
}

// Mint builds a unique job id for one upload/download cycle.
func Mint(fileName string) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return prefix + "_" + strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + token + "_" + Sanitize(fileName)
}

// Sanitize replaces every non-alphanumeric character with an underscore.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Decode parses a job id positionally. It never fails: a malformed id yields
// a start time of FallbackAge ago and the default filename.
func Decode(id string) Decoded {
	return DecodeAt(id, time.Now())
}

// DecodeAt is Decode with an explicit "now" for deterministic callers.
func DecodeAt(id string, now time.Time) Decoded {
	d := Decoded{StartedAt: now.Add(-FallbackAge), Filename: fallbackFilename}
	parts := strings.Split(id, "_")
	if len(parts) < 2 {
		return d
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return d
	}
	d.StartedAt = time.UnixMilli(ms)
	if len(parts) > 3 {
		d.Filename = strings.ReplaceAll(strings.Join(parts[3:], "_"), "_", " ")
	}
	return d
}
