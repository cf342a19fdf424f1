package feed

import (
	"strconv"
	"strings"
)

// DedupGate suppresses repeated processing of the same logical
// graduation event. Keys live for the lifetime of the process.
//
// The gate is owned by the single ingestion goroutine, which makes
// check-then-mark race-free without locking.
type DedupGate struct {
	seen map[string]struct{}
}

// NewDedupGate creates an empty gate.
func NewDedupGate() *DedupGate {
	return &DedupGate{seen: make(map[string]struct{})}
}

// DedupKey builds the composite key for an event: mint plus the
// reported timestamp. Falls back to a mint-only key when the source
// omits the timestamp.
func DedupKey(mint string, timestampMs int64) string {
	if timestampMs == 0 {
		return mint
	}
	var b strings.Builder
	b.WriteString(mint)
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(timestampMs, 10))
	return b.String()
}

// CheckAndMark reports whether the key was already seen and marks it.
func (d *DedupGate) CheckAndMark(key string) bool {
	if _, dup := d.seen[key]; dup {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

// Len returns the number of tracked keys.
func (d *DedupGate) Len() int {
	return len(d.seen)
}
