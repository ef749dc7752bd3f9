package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/nightshift-games/checkpoint/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS session_snapshots (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	data       TEXT NOT NULL,
	saved_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS decision_log (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS alert_log (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_snapshots_session ON session_snapshots(session_id, saved_at);
CREATE INDEX IF NOT EXISTS idx_decision_log_session ON decision_log(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_alert_log_session ON alert_log(session_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, sessionID string, snap model.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal snapshot")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_snapshots (id, session_id, data) VALUES (?, ?, ?)`,
		uuid.New().String(), sessionID, string(data),
	)
	return eris.Wrap(err, "sqlite: insert snapshot")
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context, sessionID string) (*model.SessionSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM session_snapshots WHERE session_id = ?
		 ORDER BY saved_at DESC, rowid DESC LIMIT 1`,
		sessionID,
	)

	var raw string
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest snapshot")
	}

	var snap model.SessionSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal snapshot")
	}
	return &snap, nil
}

func (s *SQLiteStore) AppendDecision(ctx context.Context, sessionID string, rec model.DecisionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal decision")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decision_log (id, session_id, subject_id, data) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), sessionID, rec.SubjectID, string(data),
	)
	return eris.Wrap(err, "sqlite: insert decision")
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, sessionID string, limit int) ([]model.DecisionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM decision_log WHERE session_id = ?
		 ORDER BY created_at ASC, rowid ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list decisions")
	}
	defer rows.Close()

	var recs []model.DecisionRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision")
		}
		var rec model.DecisionRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal decision")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list decisions iterate")
}

func (s *SQLiteStore) AppendAlert(ctx context.Context, sessionID string, rec model.AlertRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal alert")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO alert_log (id, session_id, data) VALUES (?, ?, ?)`,
		uuid.New().String(), sessionID, string(data),
	)
	return eris.Wrap(err, "sqlite: insert alert")
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, sessionID string, limit int) ([]model.AlertRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM alert_log WHERE session_id = ?
		 ORDER BY created_at ASC, rowid ASC LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close()

	var recs []model.AlertRecord
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		var rec model.AlertRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal alert")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list alerts iterate")
}
