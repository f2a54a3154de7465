package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/marker.tracker/internal/config"
	"github.com/banshee-data/marker.tracker/internal/lifecycle"
)

// SessionRow is one row of the tracking session history.
type SessionRow struct {
	ID        string            `json:"id"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
	EndState  string            `json:"end_state,omitempty"`
	Reason    string            `json:"reason,omitempty"`
	Summary   lifecycle.Summary `json:"summary"`
	Config    json.RawMessage   `json:"config,omitempty"`
}

// SessionStarted records the start of a session together with the
// configuration snapshot it runs with. cfg may be nil when the session
// failed before a configuration was resolved.
func (db *DB) SessionStarted(ctx context.Context, id string, startedAt time.Time, cfg *config.TrackingConfig) error {
	var cfgJSON sql.NullString
	if cfg != nil {
		data, err := json.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("encode session config: %w", err)
		}
		cfgJSON = sql.NullString{String: string(data), Valid: true}
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO tracking_sessions (session_id, started_at, config_json) VALUES (?, ?, ?)`,
		id, startedAt.UnixNano(), cfgJSON)
	if err != nil {
		return fmt.Errorf("failed to record session start: %w", err)
	}
	return nil
}

// SessionEnded fills in the end state and counters of a recorded session.
func (db *DB) SessionEnded(ctx context.Context, r lifecycle.Report) error {
	res, err := db.ExecContext(ctx, `
		UPDATE tracking_sessions
		   SET ended_at = ?, end_state = ?, reason = ?,
		       frames = ?, detections = ?, frozen = ?, dropped = ?, sent = ?, send_errors = ?
		 WHERE session_id = ?`,
		r.EndedAt.UnixNano(), r.State.String(), r.Reason,
		int64(r.Summary.Frames), int64(r.Summary.Detections), int64(r.Summary.Frozen),
		int64(r.Summary.Dropped), int64(r.Summary.Sent), int64(r.Summary.SendErrors),
		r.ID)
	if err != nil {
		return fmt.Errorf("failed to record session end: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("session %s was never started", r.ID)
	}
	return nil
}

// ListSessions returns the most recent sessions, newest first. A limit of
// zero or less returns all of them.
func (db *DB) ListSessions(ctx context.Context, limit int) ([]SessionRow, error) {
	query := `SELECT session_id, started_at, ended_at, end_state, reason,
	                 frames, detections, frozen, dropped, sent, send_errors, config_json
	            FROM tracking_sessions
	           ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionRow
	for rows.Next() {
		var (
			s        SessionRow
			started  int64
			ended    sql.NullInt64
			endState sql.NullString
			cfgJSON  sql.NullString
			counters [6]int64
		)
		err := rows.Scan(&s.ID, &started, &ended, &endState, &s.Reason,
			&counters[0], &counters[1], &counters[2], &counters[3], &counters[4], &counters[5],
			&cfgJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.StartedAt = time.Unix(0, started).UTC()
		if ended.Valid {
			t := time.Unix(0, ended.Int64).UTC()
			s.EndedAt = &t
		}
		s.EndState = endState.String
		s.Summary = lifecycle.Summary{
			Frames:     uint64(counters[0]),
			Detections: uint64(counters[1]),
			Frozen:     uint64(counters[2]),
			Dropped:    uint64(counters[3]),
			Sent:       uint64(counters[4]),
			SendErrors: uint64(counters[5]),
		}
		if cfgJSON.Valid {
			s.Config = json.RawMessage(cfgJSON.String)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

var _ lifecycle.Recorder = (*DB)(nil)
var _ lifecycle.ConfigSource = (*ConfigSource)(nil)
