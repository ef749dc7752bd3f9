package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/nightshift-games/checkpoint/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. Satisfied by
// pgxmock pools in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// the hot path: every committed decision writes a snapshot and a log row.
var preparedStatements = map[string]string{
	"insert_snapshot": `INSERT INTO session_snapshots (id, session_id, data, saved_at) VALUES ($1, $2, $3, $4)`,
	"latest_snapshot": `SELECT data FROM session_snapshots WHERE session_id = $1 ORDER BY saved_at DESC LIMIT 1`,
	"insert_decision": `INSERT INTO decision_log (id, session_id, subject_id, data, created_at) VALUES ($1, $2, $3, $4, $5)`,
	"insert_alert":    `INSERT INTO alert_log (id, session_id, data, created_at) VALUES ($1, $2, $3, $4)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS session_snapshots (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	data       JSONB NOT NULL,
	saved_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS decision_log (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS alert_log (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	data       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_snapshots_session ON session_snapshots(session_id, saved_at DESC);
CREATE INDEX IF NOT EXISTS idx_decision_log_session ON decision_log(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_alert_log_session ON alert_log(session_id, created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, sessionID string, snap model.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal snapshot")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_snapshots (id, session_id, data, saved_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), sessionID, data, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: insert snapshot")
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context, sessionID string) (*model.SessionSnapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM session_snapshots WHERE session_id = $1 ORDER BY saved_at DESC LIMIT 1`,
		sessionID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: latest snapshot")
	}

	var snap model.SessionSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal snapshot")
	}
	return &snap, nil
}

func (s *PostgresStore) AppendDecision(ctx context.Context, sessionID string, rec model.DecisionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal decision")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO decision_log (id, session_id, subject_id, data, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), sessionID, rec.SubjectID, data, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: insert decision")
}

func (s *PostgresStore) ListDecisions(ctx context.Context, sessionID string, limit int) ([]model.DecisionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM decision_log WHERE session_id = $1 ORDER BY created_at ASC LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list decisions")
	}
	defer rows.Close()

	var recs []model.DecisionRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		var rec model.DecisionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal decision")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list decisions iterate")
}

func (s *PostgresStore) AppendAlert(ctx context.Context, sessionID string, rec model.AlertRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal alert")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO alert_log (id, session_id, data, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), sessionID, data, time.Now().UTC(),
	)
	return eris.Wrap(err, "postgres: insert alert")
}

func (s *PostgresStore) ListAlerts(ctx context.Context, sessionID string, limit int) ([]model.AlertRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM alert_log WHERE session_id = $1 ORDER BY created_at ASC LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	defer rows.Close()

	var recs []model.AlertRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		var rec model.AlertRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal alert")
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list alerts iterate")
}
