package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/bschneidr/srvyr/domain/core"
	"github.com/bschneidr/srvyr/domain/frame"
	"github.com/bschneidr/srvyr/domain/statistic"
	"github.com/bschneidr/srvyr/internal/config"
	apperrors "github.com/bschneidr/srvyr/internal/errors"
	"github.com/bschneidr/srvyr/ports"
)

// Connect opens a pooled connection and verifies it with a ping
func Connect(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to connect to database", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// EnsureSchema creates the run tables if they do not exist
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS estimation_runs (
		id          TEXT PRIMARY KEY,
		created_at  TIMESTAMPTZ NOT NULL,
		groups      JSONB NOT NULL DEFAULT '[]'
	);
	CREATE TABLE IF NOT EXISTS estimation_results (
		run_id      TEXT NOT NULL REFERENCES estimation_runs(id) ON DELETE CASCADE,
		position    INT NOT NULL,
		name        TEXT NOT NULL,
		result      JSONB NOT NULL,
		PRIMARY KEY (run_id, position)
	);`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return apperrors.DatabaseError("failed to create schema", err)
	}
	return nil
}

// runStore implements the RunStore interface
type runStore struct {
	db *sqlx.DB
}

// NewRunStore creates a new run store
func NewRunStore(db *sqlx.DB) ports.RunStore {
	return &runStore{db: db}
}

// SaveRun persists a run and its result tables in one transaction
func (s *runStore) SaveRun(ctx context.Context, run *statistic.Run) error {
	groupsJSON, err := json.Marshal(run.Groups)
	if err != nil {
		return apperrors.DatabaseError("failed to marshal groups", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO estimation_runs (id, created_at, groups) VALUES ($1, $2, $3)`,
		string(run.ID), run.CreatedAt, groupsJSON)
	if err != nil {
		return apperrors.DatabaseError("failed to insert run", err)
	}

	for i, res := range run.Results {
		tableJSON, err := json.Marshal(res.Table)
		if err != nil {
			return apperrors.DatabaseError(fmt.Sprintf("failed to marshal result %q", res.Name), err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO estimation_results (run_id, position, name, result) VALUES ($1, $2, $3, $4)`,
			string(run.ID), i, res.Name, tableJSON)
		if err != nil {
			return apperrors.DatabaseError(fmt.Sprintf("failed to insert result %q", res.Name), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError("failed to commit run", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *runStore) GetRun(ctx context.Context, id core.RunID) (*statistic.Run, error) {
	var row struct {
		ID        string    `db:"id"`
		CreatedAt time.Time `db:"created_at"`
		Groups    []byte    `db:"groups"`
	}
	err := s.db.GetContext(ctx, &row,
		`SELECT id, created_at, groups FROM estimation_runs WHERE id = $1`, string(id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound(fmt.Sprintf("run %s", id))
		}
		return nil, apperrors.DatabaseError("failed to get run", err)
	}

	run := &statistic.Run{ID: core.RunID(row.ID), CreatedAt: row.CreatedAt}
	if err := json.Unmarshal(row.Groups, &run.Groups); err != nil {
		return nil, apperrors.DatabaseError("failed to unmarshal groups", err)
	}

	rows, err := s.db.QueryxContext(ctx,
		`SELECT name, result FROM estimation_results WHERE run_id = $1 ORDER BY position`, string(id))
	if err != nil {
		return nil, apperrors.DatabaseError("failed to query results", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var tableJSON []byte
		if err := rows.Scan(&name, &tableJSON); err != nil {
			return nil, apperrors.DatabaseError("failed to scan result", err)
		}
		var table frame.Table
		if err := json.Unmarshal(tableJSON, &table); err != nil {
			return nil, apperrors.DatabaseError(fmt.Sprintf("failed to unmarshal result %q", name), err)
		}
		run.Results = append(run.Results, statistic.RunResult{Name: name, Table: &table})
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("failed to iterate results", err)
	}
	return run, nil
}

// ListRuns returns recent runs, newest first
func (s *runStore) ListRuns(ctx context.Context, limit, offset int) ([]ports.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryxContext(ctx, `
		SELECT r.id, r.created_at, r.groups, COUNT(e.run_id) AS result_count
		FROM estimation_runs r
		LEFT JOIN estimation_results e ON e.run_id = r.id
		GROUP BY r.id, r.created_at, r.groups
		ORDER BY r.created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, apperrors.DatabaseError("failed to list runs", err)
	}
	defer rows.Close()

	var summaries []ports.RunSummary
	for rows.Next() {
		var id string
		var createdAt time.Time
		var groupsJSON []byte
		var count int
		if err := rows.Scan(&id, &createdAt, &groupsJSON, &count); err != nil {
			return nil, apperrors.DatabaseError("failed to scan run summary", err)
		}
		summary := ports.RunSummary{
			ID:          core.RunID(id),
			CreatedAt:   createdAt.Format(time.RFC3339),
			ResultCount: count,
		}
		if err := json.Unmarshal(groupsJSON, &summary.Groups); err != nil {
			return nil, apperrors.DatabaseError("failed to unmarshal groups", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.DatabaseError("failed to iterate runs", err)
	}
	return summaries, nil
}

// DeleteRun removes a run and its results
func (s *runStore) DeleteRun(ctx context.Context, id core.RunID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM estimation_runs WHERE id = $1`, string(id))
	if err != nil {
		return apperrors.DatabaseError("failed to delete run", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NotFound(fmt.Sprintf("run %s", id))
	}
	return nil
}
