package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/banshee-data/marker.tracker/internal/filter"
	"github.com/banshee-data/marker.tracker/internal/marker"
	"github.com/banshee-data/marker.tracker/internal/monitoring"
	"github.com/banshee-data/marker.tracker/internal/pose"
	"github.com/banshee-data/marker.tracker/internal/timeutil"
	"github.com/banshee-data/marker.tracker/internal/transport"
	"github.com/banshee-data/marker.tracker/internal/vision"
)

var (
	// ErrCapture wraps a capture device failure that ends the session.
	ErrCapture = errors.New("capture failed")
	// ErrQuit is returned when the overlay's quit key is pressed.
	ErrQuit = errors.New("quit requested from overlay")
)

// DefaultMaxCaptureFailures is how many consecutive failed reads a device is
// allowed before the session is ended.
const DefaultMaxCaptureFailures = 30

var pipelineLogf = monitoring.Prefixed("pipeline")

// CandidateSource produces solved marker candidates for a frame.
// *vision.Solver is the production implementation.
type CandidateSource interface {
	Candidates(frame vision.Frame, calib vision.Calibration, markerLength float64, want func(id int) bool) ([]vision.Candidate, error)
}

// Overlay draws the frame and the current record for an operator. chosen is
// the selected pose before filtering, nil when no marker was selected. Render
// returns true when the operator asked to quit.
type Overlay interface {
	Render(frame vision.Frame, candidates []vision.Candidate, chosen *pose.Transform, record DetectionRecord) (quit bool)
	Close() error
}

// Observer receives both records of every frame on the pipeline goroutine.
// Implementations must not block.
type Observer interface {
	Observe(raw, filtered DetectionRecord)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(raw, filtered DetectionRecord)

func (f ObserverFunc) Observe(raw, filtered DetectionRecord) { f(raw, filtered) }

// Config wires a Pipeline. Source, Candidates, Selector.Settings, Filter and
// Raw are required.
type Config struct {
	Source      vision.FrameSource
	Candidates  CandidateSource
	Calibration vision.Calibration
	Selector    marker.Selector
	Filter      *filter.Kalman
	Guard       filter.OscillationGuard

	Raw      *transport.Handoff[DetectionRecord]
	Filtered *transport.Handoff[DetectionRecord] // nil disables the filtered stream

	Overlay   Overlay
	Observers []Observer
	Clock     timeutil.Clock

	MaxCaptureFailures int
}

// Pipeline is the capture/detect/filter worker of one session.
type Pipeline struct {
	cfg   Config
	stats Stats

	last            DetectionRecord
	captureFailures int
	lastWarning     string
}

// NewPipeline validates cfg and returns a Pipeline ready to Run.
func NewPipeline(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Source == nil:
		return nil, fmt.Errorf("pipeline: frame source is required")
	case cfg.Candidates == nil:
		return nil, fmt.Errorf("pipeline: candidate source is required")
	case cfg.Selector.Settings == nil:
		return nil, fmt.Errorf("pipeline: marker settings are required")
	case cfg.Filter == nil:
		return nil, fmt.Errorf("pipeline: filter is required")
	case cfg.Raw == nil:
		return nil, fmt.Errorf("pipeline: raw handoff is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.MaxCaptureFailures <= 0 {
		cfg.MaxCaptureFailures = DefaultMaxCaptureFailures
	}
	return &Pipeline{cfg: cfg}, nil
}

// Stats returns a snapshot of the frame counters. Safe to call from any
// goroutine.
func (p *Pipeline) Stats() StatsSnapshot { return p.stats.Snapshot() }

// Last returns the most recent filtered record. Only valid once Run returned.
func (p *Pipeline) Last() DetectionRecord { return p.last }

// Run processes frames until ctx is cancelled, the capture device fails
// for good or the overlay asks to quit.
func (p *Pipeline) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.step(ctx); err != nil {
			return err
		}
	}
}

func (p *Pipeline) step(ctx context.Context) error {
	frame, err := p.cfg.Source.Read(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		p.stats.captureErrors.Add(1)
		p.captureFailures++
		if errors.Is(err, vision.ErrDeviceClosed) || p.captureFailures >= p.cfg.MaxCaptureFailures {
			return fmt.Errorf("%w after %d attempts: %w", ErrCapture, p.captureFailures, err)
		}
		p.warn("capture: %v", err)
		ts := timeutil.UnixSeconds(p.cfg.Clock.Now())
		p.emit(Failure(ts), Failure(ts))
		return nil
	}
	defer frame.Close()
	p.captureFailures = 0

	captured := frame.CapturedAt()
	if captured.IsZero() {
		captured = p.cfg.Clock.Now()
	}
	ts := timeutil.UnixSeconds(captured)

	settings := p.cfg.Selector.Settings
	candidates, err := p.cfg.Candidates.Candidates(frame, p.cfg.Calibration, settings.MarkerLength(), settings.Wants)
	var sel *marker.Selection
	if err != nil {
		p.stats.detectErrors.Add(1)
		p.warn("detect: %v", err)
	} else if s, ok, err := p.cfg.Selector.Select(candidates); err != nil {
		p.stats.selectErrors.Add(1)
		p.warn("select: %v", err)
	} else if ok {
		sel = &s
	}

	raw, filtered, err := BuildRecords(ts, sel, p.cfg.Filter, p.cfg.Guard, p.last)
	if err != nil {
		p.stats.filterErrors.Add(1)
		p.warn("filter: %v", err)
	}
	p.emit(raw, filtered)

	if p.cfg.Overlay != nil && p.cfg.Overlay.Render(frame, candidates, chosenPose(sel), filtered) {
		return ErrQuit
	}
	return nil
}

func (p *Pipeline) emit(raw, filtered DetectionRecord) {
	p.last = filtered
	p.stats.frames.Add(1)
	if filtered.Success {
		p.stats.detections.Add(1)
		p.lastWarning = ""
	}
	if filtered.Frozen {
		p.stats.frozen.Add(1)
	}

	p.cfg.Raw.Offer(raw)
	if p.cfg.Filtered != nil {
		p.cfg.Filtered.Offer(filtered)
	}
	for _, o := range p.cfg.Observers {
		o.Observe(raw, filtered)
	}
}

// warn logs a per-frame problem once until it changes or a pose is found
// again, so a persistent condition does not log at frame rate.
func (p *Pipeline) warn(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	if msg == p.lastWarning {
		return
	}
	p.lastWarning = msg
	pipelineLogf("%s", msg)
}

// Stats counts pipeline outcomes.
type Stats struct {
	frames        atomic.Uint64
	detections    atomic.Uint64
	frozen        atomic.Uint64
	captureErrors atomic.Uint64
	detectErrors  atomic.Uint64
	selectErrors  atomic.Uint64
	filterErrors  atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Frames        uint64 `json:"frames"`
	Detections    uint64 `json:"detections"`
	Frozen        uint64 `json:"frozen"`
	CaptureErrors uint64 `json:"capture_errors"`
	DetectErrors  uint64 `json:"detect_errors"`
	SelectErrors  uint64 `json:"select_errors"`
	FilterErrors  uint64 `json:"filter_errors"`
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Frames:        s.frames.Load(),
		Detections:    s.detections.Load(),
		Frozen:        s.frozen.Load(),
		CaptureErrors: s.captureErrors.Load(),
		DetectErrors:  s.detectErrors.Load(),
		SelectErrors:  s.selectErrors.Load(),
		FilterErrors:  s.filterErrors.Load(),
	}
}

func chosenPose(sel *marker.Selection) *pose.Transform {
	if sel == nil {
		return nil
	}
	t := sel.Pose
	return &t
}
