// Package app assembles a tracking session from its configuration: the
// camera, detector, filter, handoffs, pipeline and publisher.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/marker.tracker/internal/config"
	"github.com/banshee-data/marker.tracker/internal/filter"
	"github.com/banshee-data/marker.tracker/internal/lifecycle"
	"github.com/banshee-data/marker.tracker/internal/marker"
	"github.com/banshee-data/marker.tracker/internal/monitoring"
	"github.com/banshee-data/marker.tracker/internal/timeutil"
	"github.com/banshee-data/marker.tracker/internal/tracking"
	"github.com/banshee-data/marker.tracker/internal/transport"
	"github.com/banshee-data/marker.tracker/internal/vision"
)

var logf = monitoring.Prefixed("session")

// Devices opens the hardware side of a session.
type Devices interface {
	OpenCamera(device, width, height int) (vision.FrameSource, error)
	NewDetector() (vision.Detector, error)
	NewPoseSolver() (vision.PoseSolver, error)
	NewOverlay(title string, calib vision.Calibration, axisLength float64) (tracking.Overlay, error)
}

// Builder implements lifecycle.SessionBuilder.
type Builder struct {
	Devices Devices
	Dialer  transport.Dialer
	// LoadCalibration defaults to vision.LoadCalibration.
	LoadCalibration func(dir string) (vision.Calibration, error)
	// Observers are attached to every session's pipeline.
	Observers []tracking.Observer
	Clock     timeutil.Clock
}

// closer is anything a session must release when it ends.
type closer interface{ Close() error }

type cleanup []closer

func (c *cleanup) add(x closer) { *c = append(*c, x) }

// close releases in reverse order of acquisition.
func (c cleanup) close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build opens everything a session needs. On error nothing stays open.
func (b *Builder) Build(ctx context.Context, id string, cfg *config.TrackingConfig) (sess *lifecycle.Session, err error) {
	if b.Devices == nil || b.Dialer == nil {
		return nil, errors.New("session builder: devices and dialer are required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	settings, err := marker.NewSettings(cfg.GetDetection())
	if err != nil {
		return nil, err
	}
	load := b.LoadCalibration
	if load == nil {
		load = vision.LoadCalibration
	}
	calib, err := load(cfg.GetCalibrationDir())
	if err != nil {
		return nil, fmt.Errorf("load calibration: %w", err)
	}

	var res cleanup
	defer func() {
		if err != nil {
			if cerr := res.close(); cerr != nil {
				logf("%s: release after failed build: %v", id, cerr)
			}
		}
	}()

	camera, err := b.Devices.OpenCamera(cfg.GetDevice(), cfg.GetFrameWidth(), cfg.GetFrameHeight())
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", cfg.GetDevice(), err)
	}
	res.add(camera)

	detector, err := b.Devices.NewDetector()
	if err != nil {
		return nil, fmt.Errorf("create detector: %w", err)
	}
	if c, ok := detector.(closer); ok {
		res.add(c)
	}
	poses, err := b.Devices.NewPoseSolver()
	if err != nil {
		return nil, fmt.Errorf("create pose solver: %w", err)
	}

	conn, err := b.Dialer.Dial(cfg.GetDestination())
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.GetDestination(), err)
	}
	res.add(conn)

	var overlay tracking.Overlay
	if cfg.GetDisplay() {
		overlay, err = b.Devices.NewOverlay("marker tracker "+id, calib, settings.MarkerLength())
		if err != nil {
			return nil, fmt.Errorf("open overlay: %w", err)
		}
		res.add(overlay)
	}

	raw := transport.NewHandoff[tracking.DetectionRecord]()
	var filtered *transport.Handoff[tracking.DetectionRecord]
	if cfg.GetPublishFiltered() {
		filtered = transport.NewHandoff[tracking.DetectionRecord]()
	}

	kf := filter.NewKalman(filter.Params{
		Timestep:         cfg.GetFilterTimestep(),
		ProcessNoise:     cfg.GetProcessNoise(),
		MeasurementNoise: cfg.GetMeasurementNoise(),
	})

	pipeline, err := tracking.NewPipeline(tracking.Config{
		Source:      camera,
		Candidates:  vision.NewSolver(detector, poses),
		Calibration: calib,
		Selector: marker.Selector{
			Settings:  settings,
			Offset:    cfg.GetTranslationOffset(),
			Tolerance: cfg.GetOrthonormalTolerance(),
		},
		Filter:    kf,
		Guard:     filter.OscillationGuard{Threshold: cfg.GetOscillationThreshold()},
		Raw:       raw,
		Filtered:  filtered,
		Overlay:   overlay,
		Observers: b.Observers,
		Clock:     b.Clock,
	})
	if err != nil {
		return nil, err
	}

	publisher := transport.NewPublisher(transport.PublisherConfig[tracking.DetectionRecord]{
		Conn:        conn,
		Primary:     raw,
		Secondary:   filtered,
		LogInterval: cfg.GetSendLogInterval(),
		Clock:       b.Clock,
	})

	logf("%s: camera %d at %dx%d, %s mode, sending to %s (filtered stream %v)",
		id, cfg.GetDevice(), cfg.GetFrameWidth(), cfg.GetFrameHeight(),
		cfg.GetDetection().Mode, cfg.GetDestination(), filtered != nil)

	return &lifecycle.Session{
		ID:        id,
		Pipeline:  pipeline,
		Publisher: publisher,
		Close:     res.close,
		Summary: func() lifecycle.Summary {
			ps := pipeline.Stats()
			pub := publisher.Stats()
			dropped := raw.Dropped()
			if filtered != nil {
				dropped += filtered.Dropped()
			}
			return lifecycle.Summary{
				Frames:     ps.Frames,
				Detections: ps.Detections,
				Frozen:     ps.Frozen,
				Dropped:    dropped,
				Sent:       pub.Sent,
				SendErrors: pub.SendErrors,
			}
		},
	}, nil
}

var _ lifecycle.SessionBuilder = (*Builder)(nil)
