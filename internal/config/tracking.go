package config

import (
	"encoding/json"
	"fmt"
	"maps"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/banshee-data/marker.tracker/internal/pose"
)

// DefaultConfigPath is the path to the canonical tracking defaults file.
const DefaultConfigPath = "config/tracking.defaults.json"

// Detection modes understood by the marker selection policy.
const (
	ModeSingle = "single"
	ModeCube   = "cube"
)

// TrackingConfig is the full session configuration. The schema is shared by
// the JSON file, the persisted copy in SQLite and the /api/config endpoint.
// A session snapshots one of these at start and never sees later edits.
type TrackingConfig struct {
	// Capture
	Device         *int    `json:"device,omitempty"`
	CalibrationDir *string `json:"calibration_dir,omitempty"`
	Display        *bool   `json:"display,omitempty"`
	FrameWidth     *int    `json:"frame_width,omitempty"`
	FrameHeight    *int    `json:"frame_height,omitempty"`

	// Destination
	ServerIP        *string `json:"server_ip,omitempty"`
	ServerPort      *int    `json:"server_port,omitempty"`
	PublishFiltered *bool   `json:"publish_filtered,omitempty"`
	SendLogInterval *string `json:"send_log_interval,omitempty"` // duration string like "2s"

	// Detection
	Detection         *DetectionConfig `json:"detection,omitempty"`
	TranslationOffset *pose.Transform  `json:"translation_offset,omitempty"` // row-major 4x4

	// Filter
	FilterTimestep       *float64 `json:"filter_timestep,omitempty"`
	ProcessNoise         *float64 `json:"process_noise,omitempty"`
	MeasurementNoise     *float64 `json:"measurement_noise,omitempty"`
	OscillationThreshold *float64 `json:"oscillation_threshold,omitempty"`
	OrthonormalTolerance *float64 `json:"orthonormal_tolerance,omitempty"`

	// Lifecycle
	PollInterval *string `json:"poll_interval,omitempty"`
}

// DetectionConfig selects single-marker or cube tracking. Fields that do not
// apply to Mode are ignored.
type DetectionConfig struct {
	Mode         string  `json:"mode"`
	MarkerID     int     `json:"marker_id,omitempty"`
	MarkerLength float64 `json:"marker_length"`
	UpMarkerID   int     `json:"up_marker_id,omitempty"`
	// Transformations maps a cube face ID to the correction from that face's
	// frame to the up face's frame.
	Transformations map[int]pose.Transform `json:"transformations,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTrackingConfig returns a TrackingConfig with every field unset. The
// Get* accessors supply defaults.
func EmptyTrackingConfig() *TrackingConfig {
	return &TrackingConfig{}
}

// DefaultTrackingConfig returns a config with every field populated from
// the built-in defaults, for running without a config file.
func DefaultTrackingConfig() *TrackingConfig {
	empty := EmptyTrackingConfig()
	detection := empty.GetDetection()
	offset := empty.GetTranslationOffset()
	return &TrackingConfig{
		Device:               ptrInt(empty.GetDevice()),
		CalibrationDir:       ptrString(empty.GetCalibrationDir()),
		Display:              ptrBool(empty.GetDisplay()),
		FrameWidth:           ptrInt(empty.GetFrameWidth()),
		FrameHeight:          ptrInt(empty.GetFrameHeight()),
		ServerIP:             ptrString(empty.GetServerIP()),
		ServerPort:           ptrInt(empty.GetServerPort()),
		PublishFiltered:      ptrBool(empty.GetPublishFiltered()),
		SendLogInterval:      ptrString(empty.GetSendLogInterval().String()),
		Detection:            &detection,
		TranslationOffset:    &offset,
		FilterTimestep:       ptrFloat64(empty.GetFilterTimestep()),
		ProcessNoise:         ptrFloat64(empty.GetProcessNoise()),
		MeasurementNoise:     ptrFloat64(empty.GetMeasurementNoise()),
		OscillationThreshold: ptrFloat64(empty.GetOscillationThreshold()),
		OrthonormalTolerance: ptrFloat64(empty.GetOrthonormalTolerance()),
		PollInterval:         ptrString(empty.GetPollInterval().String()),
	}
}

// LoadTrackingConfig loads and validates a TrackingConfig from a JSON file.
// Omitted fields keep their defaults, so partial configs are fine.
func LoadTrackingConfig(path string) (*TrackingConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseTrackingConfig(data)
}

// ParseTrackingConfig decodes and validates JSON config bytes.
func ParseTrackingConfig(data []byte) (*TrackingConfig, error) {
	cfg := EmptyTrackingConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath from the working directory or
// one of its parents. It panics if the file cannot be loaded and is meant for
// test setup.
func MustLoadDefaultConfig() *TrackingConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/vision/opencv/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTrackingConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Clone returns a deep copy, used to snapshot the config for one session.
func (c *TrackingConfig) Clone() (*TrackingConfig, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal tracking config: %w", err)
	}
	out := EmptyTrackingConfig()
	if err := json.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("unmarshal tracking config: %w", err)
	}
	return out, nil
}

// Validate checks that the configured values are usable.
func (c *TrackingConfig) Validate() error {
	if c.Device != nil && *c.Device < 0 {
		return fmt.Errorf("device must be non-negative, got %d", *c.Device)
	}
	if c.FrameWidth != nil && *c.FrameWidth <= 0 {
		return fmt.Errorf("frame_width must be positive, got %d", *c.FrameWidth)
	}
	if c.FrameHeight != nil && *c.FrameHeight <= 0 {
		return fmt.Errorf("frame_height must be positive, got %d", *c.FrameHeight)
	}

	if c.ServerIP != nil && net.ParseIP(*c.ServerIP) == nil {
		return fmt.Errorf("server_ip %q is not an IP address", *c.ServerIP)
	}
	if c.ServerPort != nil && (*c.ServerPort < 1 || *c.ServerPort > 65535) {
		return fmt.Errorf("server_port must be between 1 and 65535, got %d", *c.ServerPort)
	}

	for name, v := range map[string]*float64{
		"filter_timestep":   c.FilterTimestep,
		"process_noise":     c.ProcessNoise,
		"measurement_noise": c.MeasurementNoise,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %g", name, *v)
		}
	}
	if c.OscillationThreshold != nil && *c.OscillationThreshold < 0 {
		return fmt.Errorf("oscillation_threshold must be non-negative, got %g", *c.OscillationThreshold)
	}
	if c.OrthonormalTolerance != nil && *c.OrthonormalTolerance <= 0 {
		return fmt.Errorf("orthonormal_tolerance must be positive, got %g", *c.OrthonormalTolerance)
	}

	for name, v := range map[string]*string{
		"poll_interval":     c.PollInterval,
		"send_log_interval": c.SendLogInterval,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.TranslationOffset != nil {
		if err := pose.Validate(*c.TranslationOffset, c.GetOrthonormalTolerance()); err != nil {
			return fmt.Errorf("translation_offset: %w", err)
		}
	}

	if c.Detection != nil {
		if err := c.Detection.Validate(c.GetOrthonormalTolerance()); err != nil {
			return fmt.Errorf("detection: %w", err)
		}
	}
	return nil
}

// Validate checks the detection block. Cube face corrections must be rigid
// within tol, like the translation offset. The mode itself is checked again
// when a session builds its marker settings.
func (d *DetectionConfig) Validate(tol float64) error {
	if d.MarkerLength <= 0 {
		return fmt.Errorf("marker_length must be positive, got %g", d.MarkerLength)
	}
	switch d.Mode {
	case ModeSingle:
	case ModeCube:
		for _, id := range slices.Sorted(maps.Keys(d.Transformations)) {
			if id == d.UpMarkerID {
				return fmt.Errorf("up marker %d must not have a transformation", id)
			}
			if err := pose.Validate(d.Transformations[id], tol); err != nil {
				return fmt.Errorf("transformations[%d]: %w", id, err)
			}
		}
	default:
		return fmt.Errorf("unknown mode %q", d.Mode)
	}
	return nil
}

// GetDevice returns the capture device index or the default.
func (c *TrackingConfig) GetDevice() int {
	if c.Device == nil {
		return 0
	}
	return *c.Device
}

// GetCalibrationDir returns the calibration directory or the default.
func (c *TrackingConfig) GetCalibrationDir() string {
	if c.CalibrationDir == nil || *c.CalibrationDir == "" {
		return "calibration"
	}
	return *c.CalibrationDir
}

// GetDisplay reports whether the overlay window is enabled.
func (c *TrackingConfig) GetDisplay() bool {
	if c.Display == nil {
		return false
	}
	return *c.Display
}

// GetFrameWidth returns the requested capture width.
func (c *TrackingConfig) GetFrameWidth() int {
	if c.FrameWidth == nil {
		return 1280
	}
	return *c.FrameWidth
}

// GetFrameHeight returns the requested capture height.
func (c *TrackingConfig) GetFrameHeight() int {
	if c.FrameHeight == nil {
		return 720
	}
	return *c.FrameHeight
}

// GetServerIP returns the destination address or the default.
func (c *TrackingConfig) GetServerIP() string {
	if c.ServerIP == nil || *c.ServerIP == "" {
		return "127.0.0.1"
	}
	return *c.ServerIP
}

// GetServerPort returns the destination port or the default.
func (c *TrackingConfig) GetServerPort() int {
	if c.ServerPort == nil {
		return 5065
	}
	return *c.ServerPort
}

// GetDestination returns ip:port for the publisher.
func (c *TrackingConfig) GetDestination() string {
	return net.JoinHostPort(c.GetServerIP(), strconv.Itoa(c.GetServerPort()))
}

// GetPublishFiltered reports whether filtered records are also sent.
func (c *TrackingConfig) GetPublishFiltered() bool {
	if c.PublishFiltered == nil {
		return false
	}
	return *c.PublishFiltered
}

// GetSendLogInterval returns how often send errors are summarised.
func (c *TrackingConfig) GetSendLogInterval() time.Duration {
	return parseDurationOr(c.SendLogInterval, 2*time.Second)
}

// GetDetection returns the detection block or a single-marker default.
func (c *TrackingConfig) GetDetection() DetectionConfig {
	if c.Detection == nil {
		return DetectionConfig{Mode: ModeSingle, MarkerID: 0, MarkerLength: 0.05}
	}
	return *c.Detection
}

// GetTranslationOffset returns the global offset or identity.
func (c *TrackingConfig) GetTranslationOffset() pose.Transform {
	if c.TranslationOffset == nil {
		return pose.Identity()
	}
	return *c.TranslationOffset
}

// GetFilterTimestep returns the fixed Kalman timestep in seconds.
func (c *TrackingConfig) GetFilterTimestep() float64 {
	if c.FilterTimestep == nil {
		return 0.0334
	}
	return *c.FilterTimestep
}

// GetProcessNoise returns the Kalman process noise scale.
func (c *TrackingConfig) GetProcessNoise() float64 {
	if c.ProcessNoise == nil {
		return 1e-5
	}
	return *c.ProcessNoise
}

// GetMeasurementNoise returns the Kalman measurement noise scale.
func (c *TrackingConfig) GetMeasurementNoise() float64 {
	if c.MeasurementNoise == nil {
		return 1e-4
	}
	return *c.MeasurementNoise
}

// GetOscillationThreshold returns the orientation freeze threshold.
func (c *TrackingConfig) GetOscillationThreshold() float64 {
	if c.OscillationThreshold == nil {
		return 0.01
	}
	return *c.OscillationThreshold
}

// GetOrthonormalTolerance returns the rigid transform validation tolerance.
func (c *TrackingConfig) GetOrthonormalTolerance() float64 {
	if c.OrthonormalTolerance == nil {
		return pose.DefaultTolerance
	}
	return *c.OrthonormalTolerance
}

// GetPollInterval returns the lifecycle poll interval.
func (c *TrackingConfig) GetPollInterval() time.Duration {
	return parseDurationOr(c.PollInterval, time.Second)
}

func parseDurationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Environment variables read by ApplyEnv.
const (
	EnvServerIP       = "TRACKER_SERVER_IP"
	EnvServerPort     = "TRACKER_SERVER_PORT"
	EnvDevice         = "TRACKER_DEVICE"
	EnvCalibrationDir = "TRACKER_CALIBRATION_DIR"
)

// LoadEnvFile loads variables from a dotenv file into the process
// environment. A missing file is not an error; existing variables win.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides destination, device and calibration settings from the
// environment and re-validates the result.
func (c *TrackingConfig) ApplyEnv(getenv func(string) string) error {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvServerIP); v != "" {
		c.ServerIP = ptrString(v)
	}
	if v := getenv(EnvServerPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvServerPort, err)
		}
		c.ServerPort = ptrInt(port)
	}
	if v := getenv(EnvDevice); v != "" {
		dev, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDevice, err)
		}
		c.Device = ptrInt(dev)
	}
	if v := getenv(EnvCalibrationDir); v != "" {
		c.CalibrationDir = ptrString(v)
	}
	return c.Validate()
}
