// Package sqlite persists scored batches in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/hed1ad/logguard/pkg/pipeline"
)

var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS batches (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id      TEXT NOT NULL,
    schema_name TEXT NOT NULL,
    policy      TEXT NOT NULL DEFAULT '',
    row_count   INTEGER NOT NULL,
    anomalies   INTEGER NOT NULL,
    scored_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batches_run ON batches(run_id);
CREATE INDEX IF NOT EXISTS idx_batches_scored_at ON batches(scored_at DESC);

CREATE TABLE IF NOT EXISTS verdicts (
    batch_id    INTEGER NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
    row_index   INTEGER NOT NULL,
    anomaly     INTEGER NOT NULL,
    score       REAL NOT NULL,
    reason      TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (batch_id, row_index)
);
CREATE INDEX IF NOT EXISTS idx_verdicts_anomaly ON verdicts(batch_id, anomaly);
`,
	},
	{
		version: 2,
		sql: `ALTER TABLE verdicts ADD COLUMN ground_truth INTEGER;`,
	},
}

// Batch is one stored scoring pass.
type Batch struct {
	ID        int64
	RunID     string
	Schema    string
	Policy    string
	Rows      int
	Anomalies int
	ScoredAt  time.Time
}

// VerdictRecord is one stored row verdict.
type VerdictRecord struct {
	Row     int
	Anomaly bool
	Score   float64
	Reason  string
	// GroundTruth is nil when the batch carried no labels.
	GroundTruth *int
}

// ReasonCount is the number of anomalies sharing a reason.
type ReasonCount struct {
	Reason string
	Count  int
}

// Store is a SQLite-backed report store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies pending
// migrations. Pass ":memory:" for an in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// WriteReport stores every verdict of res as one batch.
func (s *Store) WriteReport(ctx context.Context, res *pipeline.Result) error {
	_, err := s.SaveBatch(ctx, res)
	return err
}

// SaveBatch stores res and returns the new batch id.
func (s *Store) SaveBatch(ctx context.Context, res *pipeline.Result) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	flagged := len(res.Anomalies())
	result, err := tx.ExecContext(ctx, `
        INSERT INTO batches(run_id, schema_name, policy, row_count, anomalies, scored_at)
        VALUES(?,?,?,?,?,?)
    `, res.RunID, res.Table.Schema.Name, string(res.Policy), len(res.Verdicts), flagged, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert batch: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO verdicts(batch_id, row_index, anomaly, score, reason, ground_truth)
        VALUES(?,?,?,?,?,?)
    `)
	if err != nil {
		return 0, fmt.Errorf("prepare verdict insert: %w", err)
	}
	defer stmt.Close()

	for i, v := range res.Verdicts {
		var gt any
		if res.GroundTruth != nil {
			gt = res.GroundTruth[i]
		}
		if _, err := stmt.ExecContext(ctx, id, i, v.Anomaly, v.Score, v.Reason, gt); err != nil {
			return 0, fmt.Errorf("insert verdict %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// Batches lists stored batches, newest first.
func (s *Store) Batches(ctx context.Context, limit int) ([]Batch, error) {
	query := `SELECT id, run_id, schema_name, policy, row_count, anomalies, scored_at FROM batches ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var (
			b  Batch
			ts string
		)
		if err := rows.Scan(&b.ID, &b.RunID, &b.Schema, &b.Policy, &b.Rows, &b.Anomalies, &ts); err != nil {
			return nil, err
		}
		b.ScoredAt, _ = parseTime(ts)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Anomalies returns the flagged rows of a batch in row order.
func (s *Store) Anomalies(ctx context.Context, batchID int64) ([]VerdictRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT row_index, anomaly, score, reason, ground_truth FROM verdicts
        WHERE batch_id = ? AND anomaly = 1 ORDER BY row_index
    `, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []VerdictRecord
	for rows.Next() {
		var (
			v  VerdictRecord
			gt sql.NullInt64
		)
		if err := rows.Scan(&v.Row, &v.Anomaly, &v.Score, &v.Reason, &gt); err != nil {
			return nil, err
		}
		if gt.Valid {
			n := int(gt.Int64)
			v.GroundTruth = &n
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ReasonSummary counts the anomalies of a batch per reason, most frequent
// first.
func (s *Store) ReasonSummary(ctx context.Context, batchID int64) ([]ReasonCount, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT reason, COUNT(*) AS n FROM verdicts
        WHERE batch_id = ? AND anomaly = 1
        GROUP BY reason ORDER BY n DESC, reason ASC
    `, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReasonCount
	for rows.Next() {
		var rc ReasonCount
		if err := rows.Scan(&rc.Reason, &rc.Count); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// parseTime handles the datetime formats the driver may return.
func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
