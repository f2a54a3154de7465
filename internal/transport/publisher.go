package transport

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/banshee-data/marker.tracker/internal/monitoring"
	"github.com/banshee-data/marker.tracker/internal/timeutil"
)

var publisherLogf = monitoring.Prefixed("publisher")

// Stats counts publisher activity. It is safe for concurrent use.
type Stats struct {
	sent         atomic.Uint64
	bytes        atomic.Uint64
	sendErrors   atomic.Uint64
	encodeErrors atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Sent         uint64 `json:"sent"`
	Bytes        uint64 `json:"bytes"`
	SendErrors   uint64 `json:"send_errors"`
	EncodeErrors uint64 `json:"encode_errors"`
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Sent:         s.sent.Load(),
		Bytes:        s.bytes.Load(),
		SendErrors:   s.sendErrors.Load(),
		EncodeErrors: s.encodeErrors.Load(),
	}
}

// PublisherConfig wires a Publisher.
type PublisherConfig[T any] struct {
	Conn DatagramConn
	// Primary is always drained. Secondary is optional.
	Primary   *Handoff[T]
	Secondary *Handoff[T]
	// Encode defaults to json.Marshal.
	Encode      func(T) ([]byte, error)
	LogInterval time.Duration
	Clock       timeutil.Clock
}

// Publisher sends every item it takes from its handoffs as one datagram.
// Delivery is best effort: failures are counted and summarised at
// LogInterval, never retried.
type Publisher[T any] struct {
	conn        DatagramConn
	primary     *Handoff[T]
	secondary   *Handoff[T]
	encode      func(T) ([]byte, error)
	logInterval time.Duration
	clock       timeutil.Clock
	stats       Stats

	// Errors since the last summary; only touched by Run.
	intervalErrors int
	lastError      error
}

// NewPublisher creates a Publisher. The caller owns cfg.Conn.
func NewPublisher[T any](cfg PublisherConfig[T]) *Publisher[T] {
	p := &Publisher[T]{
		conn:        cfg.Conn,
		primary:     cfg.Primary,
		secondary:   cfg.Secondary,
		encode:      cfg.Encode,
		logInterval: cfg.LogInterval,
		clock:       cfg.Clock,
	}
	if p.encode == nil {
		p.encode = func(v T) ([]byte, error) { return json.Marshal(v) }
	}
	if p.logInterval <= 0 {
		p.logInterval = 2 * time.Second
	}
	if p.clock == nil {
		p.clock = timeutil.RealClock{}
	}
	return p
}

// Stats returns a snapshot of the publisher counters.
func (p *Publisher[T]) Stats() StatsSnapshot { return p.stats.Snapshot() }

// Run sends items until ctx is cancelled and then returns ctx.Err().
// Pending items are abandoned.
func (p *Publisher[T]) Run(ctx context.Context) error {
	ticker := p.clock.NewTicker(p.logInterval)
	defer ticker.Stop()

	publisherLogf("Sending records to %s", p.conn.RemoteAddr())

	var secondary <-chan T // nil blocks forever
	if p.secondary != nil {
		secondary = p.secondary.Ready()
	}

	for {
		select {
		case <-ctx.Done():
			p.flushErrors()
			return ctx.Err()
		case item := <-p.primary.Ready():
			p.send(item)
		case item := <-secondary:
			p.send(item)
		case <-ticker.C():
			p.flushErrors()
		}
	}
}

func (p *Publisher[T]) send(item T) {
	data, err := p.encode(item)
	if err != nil {
		p.stats.encodeErrors.Add(1)
		p.intervalErrors++
		p.lastError = err
		return
	}
	n, err := p.conn.Write(data)
	if err != nil {
		p.stats.sendErrors.Add(1)
		p.intervalErrors++
		p.lastError = err
		return
	}
	p.stats.sent.Add(1)
	p.stats.bytes.Add(uint64(n))
}

// flushErrors logs the errors seen since the last call, if any.
func (p *Publisher[T]) flushErrors() {
	if p.intervalErrors > 0 && p.lastError != nil {
		publisherLogf("\033[93mFailed to send %d records to %s (latest: %v)\033[0m", p.intervalErrors, p.conn.RemoteAddr(), p.lastError)
	}
	p.intervalErrors = 0
	p.lastError = nil
}
