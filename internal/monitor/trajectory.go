package monitor

import (
	"sync"

	"github.com/banshee-data/marker.tracker/internal/tracking"
)

// DefaultTrajectorySize keeps roughly one minute at 30 fps.
const DefaultTrajectorySize = 1800

// TrajectoryRecorder keeps the most recent successful filtered records in a
// fixed-size ring. It is a tracking.Observer.
type TrajectoryRecorder struct {
	mu    sync.Mutex
	buf   []tracking.DetectionRecord
	next  int
	full  bool
	total uint64
}

// NewTrajectoryRecorder returns a recorder holding at most size records.
func NewTrajectoryRecorder(size int) *TrajectoryRecorder {
	if size <= 0 {
		size = DefaultTrajectorySize
	}
	return &TrajectoryRecorder{buf: make([]tracking.DetectionRecord, size)}
}

// Observe stores filtered when it carries a pose.
func (t *TrajectoryRecorder) Observe(_, filtered tracking.DetectionRecord) {
	if !filtered.Success {
		return
	}
	t.mu.Lock()
	t.buf[t.next] = filtered
	t.next = (t.next + 1) % len(t.buf)
	if t.next == 0 {
		t.full = true
	}
	t.total++
	t.mu.Unlock()
}

// Snapshot returns the stored records, oldest first.
func (t *TrajectoryRecorder) Snapshot() []tracking.DetectionRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		return append([]tracking.DetectionRecord(nil), t.buf[:t.next]...)
	}
	out := make([]tracking.DetectionRecord, 0, len(t.buf))
	out = append(out, t.buf[t.next:]...)
	return append(out, t.buf[:t.next]...)
}

// Latest returns the newest stored record.
func (t *TrajectoryRecorder) Latest() (tracking.DetectionRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total == 0 {
		return tracking.DetectionRecord{}, false
	}
	i := (t.next - 1 + len(t.buf)) % len(t.buf)
	return t.buf[i], true
}

// Total is the number of records observed since creation or Reset.
func (t *TrajectoryRecorder) Total() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Reset drops everything, typically at the start of a session.
func (t *TrajectoryRecorder) Reset() {
	t.mu.Lock()
	t.next, t.full, t.total = 0, false, 0
	t.mu.Unlock()
}
