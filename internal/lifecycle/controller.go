// Package lifecycle starts and stops tracking sessions. A session is a
// pipeline worker and a publisher worker built from one config snapshot; the
// controller runs at most one at a time and always waits for both workers
// before going back to Idle.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/marker.tracker/internal/config"
	"github.com/banshee-data/marker.tracker/internal/monitoring"
	"github.com/banshee-data/marker.tracker/internal/timeutil"
	"github.com/banshee-data/marker.tracker/internal/tracking"
)

var logf = monitoring.Prefixed("lifecycle")

// State is the controller state.
type State int

const (
	Idle State = iota
	Running
	StoppedByRequest
	StoppedByFailure
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case StoppedByRequest:
		return "stopped_by_request"
	case StoppedByFailure:
		return "stopped_by_failure"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText is the inverse of MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Running, StoppedByRequest, StoppedByFailure} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Worker is a long-running session goroutine body.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context) error

func (f WorkerFunc) Run(ctx context.Context) error { return f(ctx) }

// Summary holds a session's counters.
type Summary struct {
	Frames     uint64 `json:"frames"`
	Detections uint64 `json:"detections"`
	Frozen     uint64 `json:"frozen"`
	Dropped    uint64 `json:"dropped"`
	Sent       uint64 `json:"sent"`
	SendErrors uint64 `json:"send_errors"`
}

// Session is what a SessionBuilder hands the controller.
type Session struct {
	ID        string
	Pipeline  Worker
	Publisher Worker
	// Close releases the camera, socket and overlay once both workers exited.
	Close func() error
	// Summary reports live counters. Optional.
	Summary func() Summary
}

// ConfigSource supplies the config a new session snapshots.
type ConfigSource interface {
	TrackingConfig(ctx context.Context) (*config.TrackingConfig, error)
}

// ConfigSourceFunc adapts a function to ConfigSource.
type ConfigSourceFunc func(ctx context.Context) (*config.TrackingConfig, error)

func (f ConfigSourceFunc) TrackingConfig(ctx context.Context) (*config.TrackingConfig, error) {
	return f(ctx)
}

// SessionBuilder opens the devices for a session. cfg is a private copy.
type SessionBuilder interface {
	Build(ctx context.Context, id string, cfg *config.TrackingConfig) (*Session, error)
}

// Report describes a finished session.
type Report struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time
	State     State
	Reason    string
	Summary   Summary
}

// Recorder persists session history. Errors are logged and otherwise ignored.
type Recorder interface {
	SessionStarted(ctx context.Context, id string, startedAt time.Time, cfg *config.TrackingConfig) error
	SessionEnded(ctx context.Context, report Report) error
}

// Transition is delivered to listeners on every state change.
type Transition struct {
	From      State
	To        State
	SessionID string
	Err       error
	At        time.Time
}

// Status is a snapshot for the monitor API.
type Status struct {
	State     State      `json:"state"`
	SessionID string     `json:"session_id,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Summary   *Summary   `json:"summary,omitempty"`
}

// Options wires a Controller. Configs and Builder are required.
type Options struct {
	Configs  ConfigSource
	Builder  SessionBuilder
	Recorder Recorder
	Clock    timeutil.Clock
	// PollInterval overrides the per-session poll_interval when positive.
	PollInterval time.Duration
	// Listeners run synchronously on the controller goroutine and must not
	// block.
	Listeners []func(Transition)
	NewID     func() string
}

// Controller is the session state machine.
type Controller struct {
	opts  Options
	start *signal
	stop  *signal

	mu        sync.Mutex
	state     State
	sessionID string
	startedAt time.Time
	lastError string
	session   *Session
}

// NewController returns an Idle controller.
func NewController(opts Options) (*Controller, error) {
	if opts.Configs == nil || opts.Builder == nil {
		return nil, errors.New("lifecycle: config source and session builder are required")
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}
	return &Controller{
		opts:  opts,
		start: newSignal(),
		stop:  newSignal(),
		state: Idle,
	}, nil
}

// Start asks for a session. It is a level: repeated calls before the
// controller reacts start one session.
func (c *Controller) Start() { c.start.raise() }

// Stop asks the running session to end. The controller notices within one
// poll interval. A stop raised while idle ends the next session at its
// first poll.
func (c *Controller) Stop() { c.stop.raise() }

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{State: c.state, SessionID: c.sessionID, LastError: c.lastError}
	if !c.startedAt.IsZero() {
		started := c.startedAt
		st.StartedAt = &started
	}
	if c.session != nil && c.session.Summary != nil {
		sum := c.session.Summary()
		st.Summary = &sum
	}
	return st
}

// Run drives the state machine until ctx is cancelled. A session that is
// running at that point is stopped and awaited before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.start.wait():
		}
		if !c.start.consume() {
			continue
		}
		c.runSession(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func (c *Controller) runSession(ctx context.Context) {
	id := c.opts.NewID()
	startedAt := c.opts.Clock.Now()

	sess, cfg, err := c.build(ctx, id)
	if err != nil {
		logf("session %s failed to start: %v", id, err)
		c.stop.consume()
		c.transition(StoppedByFailure, id, err)
		c.record(ctx, id, startedAt, nil, StoppedByFailure, err, Summary{})
		c.transition(Idle, "", nil)
		return
	}

	poll := cfg.GetPollInterval()
	if c.opts.PollInterval > 0 {
		poll = c.opts.PollInterval
	}

	if c.opts.Recorder != nil {
		if err := c.opts.Recorder.SessionStarted(ctx, id, startedAt, cfg); err != nil {
			logf("session %s: record start: %v", id, err)
		}
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	pipelineDone := make(chan error, 1)
	publisherDone := make(chan error, 1)
	wg.Add(2)
	go func() {
		defer wg.Done()
		publisherDone <- sess.Publisher.Run(sessCtx)
	}()
	go func() {
		defer wg.Done()
		pipelineDone <- sess.Pipeline.Run(sessCtx)
	}()

	ticker := c.opts.Clock.NewTicker(poll)
	defer ticker.Stop()

	c.mu.Lock()
	c.session = sess
	c.startedAt = startedAt
	c.mu.Unlock()
	c.transition(Running, id, nil)
	logf("session %s running (poll %s)", id, poll)

	end, reason := c.poll(ctx, ticker, pipelineDone, publisherDone)

	cancel()
	wg.Wait()
	if sess.Close != nil {
		if err := sess.Close(); err != nil {
			logf("session %s: close: %v", id, err)
		}
	}
	c.stop.consume()

	var summary Summary
	if sess.Summary != nil {
		summary = sess.Summary()
	}
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()

	logf("session %s %s: %v", id, end, reason)
	c.transition(end, id, reason)
	c.record(ctx, id, startedAt, cfg, end, reason, summary)
	c.transition(Idle, "", nil)
}

// poll waits for the session to end. The pipeline and publisher are checked
// first so a dead worker is reported as a failure even if stop was also
// requested.
func (c *Controller) poll(ctx context.Context, ticker timeutil.Ticker, pipelineDone, publisherDone <-chan error) (State, error) {
	for {
		select {
		case <-ctx.Done():
			return StoppedByRequest, ctx.Err()
		case <-ticker.C():
		}

		select {
		case err := <-pipelineDone:
			return workerExit("pipeline", err)
		case err := <-publisherDone:
			return workerExit("publisher", err)
		default:
		}

		if c.stop.isSet() {
			return StoppedByRequest, nil
		}
	}
}

func workerExit(name string, err error) (State, error) {
	if errors.Is(err, tracking.ErrQuit) {
		return StoppedByRequest, err
	}
	if err == nil {
		err = errors.New("exited")
	}
	return StoppedByFailure, fmt.Errorf("%s: %w", name, err)
}

func (c *Controller) build(ctx context.Context, id string) (*Session, *config.TrackingConfig, error) {
	cfg, err := c.opts.Configs.TrackingConfig(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	snapshot, err := cfg.Clone()
	if err != nil {
		return nil, nil, err
	}
	sess, err := c.opts.Builder.Build(ctx, id, snapshot)
	if err != nil {
		return nil, nil, err
	}
	if sess.Pipeline == nil || sess.Publisher == nil {
		if sess.Close != nil {
			sess.Close()
		}
		return nil, nil, errors.New("session builder returned no workers")
	}
	return sess, snapshot, nil
}

func (c *Controller) record(ctx context.Context, id string, startedAt time.Time, cfg *config.TrackingConfig, end State, reason error, summary Summary) {
	if c.opts.Recorder == nil {
		return
	}
	// The session row is finished even when shutdown cancelled ctx.
	ctx = context.WithoutCancel(ctx)
	if cfg == nil {
		if err := c.opts.Recorder.SessionStarted(ctx, id, startedAt, nil); err != nil {
			logf("session %s: record start: %v", id, err)
		}
	}
	report := Report{
		ID:        id,
		StartedAt: startedAt,
		EndedAt:   c.opts.Clock.Now(),
		State:     end,
		Summary:   summary,
	}
	if reason != nil {
		report.Reason = reason.Error()
	}
	if err := c.opts.Recorder.SessionEnded(ctx, report); err != nil {
		logf("session %s: record end: %v", id, err)
	}
}

func (c *Controller) transition(to State, id string, err error) {
	c.mu.Lock()
	from := c.state
	c.state = to
	if to != Idle {
		c.sessionID = id
	}
	if err != nil {
		c.lastError = err.Error()
	} else if to == Running {
		c.lastError = ""
	}
	if to == Idle {
		c.sessionID = ""
		c.startedAt = time.Time{}
	}
	c.mu.Unlock()

	t := Transition{From: from, To: to, SessionID: id, Err: err, At: c.opts.Clock.Now()}
	for _, l := range c.opts.Listeners {
		l(t)
	}
}
