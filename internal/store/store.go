// Package store provides SQLite-backed persistence for indicator state,
// so Parabolic SAR and CCI history survive a process restart without a
// fresh seed window (spec §4: "SAR and CCI... do" persist state).
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/gridforge/hedgeengine/internal/models"
)

// DB wraps the sqlx connection to the indicator-state database.
type DB struct {
	*sqlx.DB
}

// Open connects to (creating if absent) the SQLite database at path and
// runs its migration.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	conn, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("connect to store: %w", err)
	}

	db := &DB{conn}
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	log.Info().Str("path", path).Msg("indicator store connected")
	return db, nil
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS indicator_state (
		user_id TEXT PRIMARY KEY,
		sar_trend INTEGER NOT NULL,
		sar_ep REAL NOT NULL,
		sar_sar REAL NOT NULL,
		sar_af REAL NOT NULL,
		cci_history TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// IndicatorStore persists and restores one session's indicator state
// keyed by user_id, grounded on the teacher's SQLOrderStore shape (same
// sqlx.DB wrapper, same INSERT OR REPLACE upsert pattern).
type IndicatorStore struct {
	db *DB
}

// NewIndicatorStore builds an IndicatorStore over an open DB.
func NewIndicatorStore(db *DB) *IndicatorStore {
	return &IndicatorStore{db: db}
}

// Save upserts a session's indicator state.
func (s *IndicatorStore) Save(userID string, state models.IndicatorState) error {
	history, err := json.Marshal(state.CCIHistory)
	if err != nil {
		return fmt.Errorf("marshal cci history: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO indicator_state
			(user_id, sar_trend, sar_ep, sar_sar, sar_af, cci_history, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	`
	_, err = s.db.Exec(query, userID, state.SAR.Trend, state.SAR.EP, state.SAR.SAR, state.SAR.AF, string(history))
	if err != nil {
		return fmt.Errorf("save indicator state for %s: %w", userID, err)
	}
	return nil
}

type indicatorRow struct {
	SARTrend   int    `db:"sar_trend"`
	SAREP      float64 `db:"sar_ep"`
	SARSAR     float64 `db:"sar_sar"`
	SARAF      float64 `db:"sar_af"`
	CCIHistory string `db:"cci_history"`
}

// Load restores a session's indicator state. It returns the zero value
// and no error when no state has been persisted yet, matching the
// seeding path an Engine takes on a session's first tick.
func (s *IndicatorStore) Load(userID string) (models.IndicatorState, error) {
	var row indicatorRow
	query := `SELECT sar_trend, sar_ep, sar_sar, sar_af, cci_history FROM indicator_state WHERE user_id = ?`
	err := s.db.Get(&row, query, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.IndicatorState{}, nil
		}
		return models.IndicatorState{}, fmt.Errorf("load indicator state for %s: %w", userID, err)
	}

	var history []float64
	if err := json.Unmarshal([]byte(row.CCIHistory), &history); err != nil {
		return models.IndicatorState{}, fmt.Errorf("unmarshal cci history for %s: %w", userID, err)
	}

	return models.IndicatorState{
		SAR:        models.SARState{Trend: row.SARTrend, EP: row.SAREP, SAR: row.SARSAR, AF: row.SARAF},
		CCIHistory: history,
	}, nil
}

// Delete removes a session's persisted indicator state, called when a
// session is unregistered so stale state doesn't leak into a future
// registration under the same user_id.
func (s *IndicatorStore) Delete(userID string) error {
	_, err := s.db.Exec(`DELETE FROM indicator_state WHERE user_id = ?`, userID)
	return err
}
