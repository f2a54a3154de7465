package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/marker.tracker/internal/config"
)

// StoredConfig is one saved revision of the tracking configuration.
type StoredConfig struct {
	ID        int64                  `json:"id"`
	Note      string                 `json:"note"`
	CreatedAt time.Time              `json:"created_at"`
	Config    *config.TrackingConfig `json:"config"`
}

// SaveTrackingConfig validates cfg and stores it as the newest revision.
func (db *DB) SaveTrackingConfig(ctx context.Context, cfg *config.TrackingConfig, note string) (int64, error) {
	if cfg == nil {
		return 0, errors.New("nil tracking config")
	}
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return 0, fmt.Errorf("encode tracking config: %w", err)
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO tracking_config (config_json, note, created_at) VALUES (?, ?, ?)`,
		string(data), note, time.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to save tracking config: %w", err)
	}
	return res.LastInsertId()
}

// LatestTrackingConfig returns the newest saved revision, or nil when none
// has been saved.
func (db *DB) LatestTrackingConfig(ctx context.Context) (*StoredConfig, error) {
	var (
		sc      StoredConfig
		raw     string
		created int64
	)
	err := db.QueryRowContext(ctx,
		`SELECT id, config_json, note, created_at FROM tracking_config ORDER BY id DESC LIMIT 1`,
	).Scan(&sc.ID, &raw, &sc.Note, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracking config: %w", err)
	}
	cfg, err := config.ParseTrackingConfig([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("stored tracking config %d: %w", sc.ID, err)
	}
	sc.Config = cfg
	sc.CreatedAt = time.Unix(0, created).UTC()
	return &sc, nil
}

// ConfigSource serves the newest stored configuration, falling back to
// Fallback when nothing has been saved yet. Each call returns a fresh copy.
type ConfigSource struct {
	DB       *DB
	Fallback *config.TrackingConfig
}

func (s *ConfigSource) TrackingConfig(ctx context.Context) (*config.TrackingConfig, error) {
	stored, err := s.DB.LatestTrackingConfig(ctx)
	if err != nil {
		return nil, err
	}
	if stored != nil {
		return stored.Config, nil
	}
	if s.Fallback == nil {
		return config.DefaultTrackingConfig(), nil
	}
	return s.Fallback.Clone()
}
