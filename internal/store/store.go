// Package store persists processing runs to sqlite: sessions, their
// synchronized frames with step labels, the assembled step samples, and
// evaluation metrics. One database holds many runs, keyed by a generated
// run ID, so reprocessing never clobbers earlier results.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/stride-data/gaitmoment/internal/assemble"
	"github.com/stride-data/gaitmoment/internal/estimate"
	"github.com/stride-data/gaitmoment/internal/imu"
	"github.com/stride-data/gaitmoment/internal/pipeline"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			run_id            TEXT PRIMARY KEY,
			note              TEXT,
			created_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS sessions (
			run_id            TEXT,
			session_id        TEXT,
			subject_id        TEXT,
			trial_id          TEXT,
			side              TEXT,
			weight_kg         DOUBLE,
			height_m          DOUBLE,
			sync_schema       TEXT,
			input_schema      TEXT,
			num_frames        BIGINT,
			num_steps         BIGINT,
			PRIMARY KEY(run_id, session_id),
			FOREIGN KEY(run_id) REFERENCES runs(run_id)
		);
		CREATE TABLE IF NOT EXISTS frames (
			run_id            TEXT,
			session_id        TEXT,
			frame_index       BIGINT,
			ts_nanos          BIGINT,
			step_id           BIGINT,
			channel_values    TEXT,
			PRIMARY KEY(run_id, session_id, frame_index)
		);
		CREATE TABLE IF NOT EXISTS step_samples (
			run_id            TEXT,
			session_id        TEXT,
			step_id           BIGINT,
			subject_id        TEXT,
			trial_id          TEXT,
			side              TEXT,
			start_nanos       BIGINT,
			end_nanos         BIGINT,
			inputs            TEXT,
			labels            TEXT,
			PRIMARY KEY(run_id, session_id, step_id)
		);
		CREATE TABLE IF NOT EXISTS fold_metrics (
			run_id            TEXT,
			subject           TEXT,
			channel           TEXT,
			rmse              DOUBLE,
			mae               DOUBLE,
			r2                DOUBLE,
			rel_rmse          DOUBLE,
			pearson           DOUBLE,
			num_steps         BIGINT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// BeginRun registers a new processing run and returns its generated ID.
func (db *DB) BeginRun(note string) (string, error) {
	runID := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO runs (run_id, note, created_at) VALUES (?, ?, ?)`,
		runID, note, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create run: %w", err)
	}
	return runID, nil
}

// SaveResult persists one processed session: its metadata, every
// synchronized frame with its step label, and the assembled step samples.
// The whole session commits atomically.
func (db *DB) SaveResult(runID string, res *pipeline.SessionResult) error {
	session := res.Session

	syncSchema, err := json.Marshal(session.Schema.Channels)
	if err != nil {
		return fmt.Errorf("failed to encode sync schema: %w", err)
	}
	inputSchema, err := json.Marshal(res.Schema.Channels)
	if err != nil {
		return fmt.Errorf("failed to encode input schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO sessions (run_id, session_id, subject_id, trial_id, side,
			weight_kg, height_m, sync_schema, input_schema, num_frames, num_steps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, session.SessionID, session.SubjectID, session.TrialID, session.Side,
		session.SubjectWeightKG, session.SubjectHeightM,
		string(syncSchema), string(inputSchema), len(session.Frames), len(res.Steps),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session %s: %w", session.SessionID, err)
	}

	frameStmt, err := tx.Prepare(`
		INSERT INTO frames (run_id, session_id, frame_index, ts_nanos, step_id, channel_values)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare frame insert: %w", err)
	}
	defer frameStmt.Close()

	for i, frame := range session.Frames {
		values, err := json.Marshal(frame.Values)
		if err != nil {
			return fmt.Errorf("failed to encode frame %d: %w", i, err)
		}
		stepID := -1
		if i < len(res.StepIDs) {
			stepID = res.StepIDs[i]
		}
		if _, err := frameStmt.Exec(runID, session.SessionID, i, frame.TSNanos, stepID, string(values)); err != nil {
			return fmt.Errorf("failed to insert frame %d of %s: %w", i, session.SessionID, err)
		}
	}

	sampleStmt, err := tx.Prepare(`
		INSERT INTO step_samples (run_id, session_id, step_id, subject_id, trial_id,
			side, start_nanos, end_nanos, inputs, labels)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer sampleStmt.Close()

	for _, s := range res.Samples {
		inputs, err := json.Marshal(s.Inputs)
		if err != nil {
			return fmt.Errorf("failed to encode step %d inputs: %w", s.StepID, err)
		}
		var labels sql.NullString
		if s.HasLabels() {
			encoded, err := json.Marshal(s.Labels)
			if err != nil {
				return fmt.Errorf("failed to encode step %d labels: %w", s.StepID, err)
			}
			labels = sql.NullString{String: string(encoded), Valid: true}
		}
		_, err = sampleStmt.Exec(runID, s.SessionID, s.StepID, s.SubjectID, s.TrialID,
			s.Side, s.StartNanos, s.EndNanos, string(inputs), labels)
		if err != nil {
			return fmt.Errorf("failed to insert step %d of %s: %w", s.StepID, s.SessionID, err)
		}
	}

	return tx.Commit()
}

// LoadDataset reconstructs the step-sample dataset of a run.
func (db *DB) LoadDataset(runID string) (*assemble.Dataset, error) {
	sessionSchemas, err := db.inputSchemas(runID)
	if err != nil {
		return nil, err
	}
	if len(sessionSchemas) == 0 {
		return nil, fmt.Errorf("run %s has no sessions", runID)
	}

	rows, err := db.Query(`
		SELECT session_id, step_id, subject_id, trial_id, side,
			start_nanos, end_nanos, inputs, labels
		FROM step_samples WHERE run_id = ?
		ORDER BY session_id, step_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query step samples: %w", err)
	}
	defer rows.Close()

	bySession := make(map[string][]*assemble.StepSample)
	var order []string
	for rows.Next() {
		s := &assemble.StepSample{}
		var inputs string
		var labels sql.NullString
		err := rows.Scan(&s.SessionID, &s.StepID, &s.SubjectID, &s.TrialID, &s.Side,
			&s.StartNanos, &s.EndNanos, &inputs, &labels)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step sample: %w", err)
		}
		if err := json.Unmarshal([]byte(inputs), &s.Inputs); err != nil {
			return nil, fmt.Errorf("failed to decode inputs of %s/%d: %w", s.SessionID, s.StepID, err)
		}
		if labels.Valid {
			if err := json.Unmarshal([]byte(labels.String), &s.Labels); err != nil {
				return nil, fmt.Errorf("failed to decode labels of %s/%d: %w", s.SessionID, s.StepID, err)
			}
		}
		if _, seen := bySession[s.SessionID]; !seen {
			order = append(order, s.SessionID)
		}
		bySession[s.SessionID] = append(bySession[s.SessionID], s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ds := assemble.NewDataset()
	for _, sessionID := range order {
		schema, ok := sessionSchemas[sessionID]
		if !ok {
			return nil, fmt.Errorf("run %s: samples for unknown session %s", runID, sessionID)
		}
		if err := ds.Merge(sessionID, schema, bySession[sessionID]); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

func (db *DB) inputSchemas(runID string) (map[string]imu.Schema, error) {
	rows, err := db.Query(`SELECT session_id, input_schema FROM sessions WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	out := make(map[string]imu.Schema)
	for rows.Next() {
		var sessionID, encoded string
		if err := rows.Scan(&sessionID, &encoded); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		var channels []string
		if err := json.Unmarshal([]byte(encoded), &channels); err != nil {
			return nil, fmt.Errorf("failed to decode schema of %s: %w", sessionID, err)
		}
		schema, err := imu.NewSchema(channels)
		if err != nil {
			return nil, fmt.Errorf("session %s: %w", sessionID, err)
		}
		out[sessionID] = schema
	}
	return out, rows.Err()
}

// SaveFoldMetrics records per-subject cross-validation metrics for a run.
func (db *DB) SaveFoldMetrics(runID string, folds []estimate.FoldResult) error {
	stmt, err := db.Prepare(`
		INSERT INTO fold_metrics (run_id, subject, channel, rmse, mae, r2,
			rel_rmse, pearson, num_steps)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare metrics insert: %w", err)
	}
	defer stmt.Close()

	for _, fold := range folds {
		for _, m := range fold.Metrics {
			_, err := stmt.Exec(runID, fold.Subject, m.Channel,
				nullIfNaN(m.RMSE), nullIfNaN(m.MAE), nullIfNaN(m.R2),
				nullIfNaN(m.RelRMSE), nullIfNaN(m.Pearson), m.NumSteps)
			if err != nil {
				return fmt.Errorf("failed to insert metrics for %s/%s: %w", fold.Subject, m.Channel, err)
			}
		}
	}
	return nil
}

// nullIfNaN maps undefined metric values to NULL so sqlite accepts them.
func nullIfNaN(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// StepFrameCounts returns, per step of a session, how many synchronized
// frames carry its label. Unlabeled frames (step -1) are skipped.
func (db *DB) StepFrameCounts(runID, sessionID string) (map[int]int, error) {
	rows, err := db.Query(`
		SELECT step_id, COUNT(*) FROM frames
		WHERE run_id = ? AND session_id = ? AND step_id >= 0
		GROUP BY step_id`, runID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frame counts: %w", err)
	}
	defer rows.Close()

	out := make(map[int]int)
	for rows.Next() {
		var stepID, count int
		if err := rows.Scan(&stepID, &count); err != nil {
			return nil, err
		}
		out[stepID] = count
	}
	return out, rows.Err()
}
