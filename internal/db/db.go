// Package db keeps the goal history in SQLite and exposes admin routes for
// inspecting it.
package db

import (
	"compress/gzip"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/cloudseg/internal/monitoring"
	"github.com/banshee-data/cloudseg/internal/orchestrator"
)

var logf = monitoring.Component("DB")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
}

type DB struct {
	*sql.DB
	path string

	// Retain bounds the goals table. After a finished goal is recorded,
	// all but the Retain most recent goals are pruned. Zero keeps every goal.
	Retain int
}

// OpenDB opens the database and applies connection pragmas without touching
// the schema.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; one connection keeps pragmas and
	// in-memory databases consistent.
	sqlDB.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// NewDB opens the database and migrates it to the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	migrationsFS, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migrationsFS); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// RecordGoal stores st, replacing any earlier record of the same goal.
// Only goal metadata is kept; st.Result is ignored.
func (db *DB) RecordGoal(st orchestrator.GoalStatus) error {
	state, err := st.State.MarshalText()
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`INSERT INTO goals (
			goal_id, state, diagnostic, input_points, result_points,
			accepted_unix_nanos, finished_unix_nanos, input_seq, input_frame_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (goal_id) DO UPDATE SET
			state = excluded.state,
			diagnostic = excluded.diagnostic,
			input_points = excluded.input_points,
			result_points = excluded.result_points,
			accepted_unix_nanos = excluded.accepted_unix_nanos,
			finished_unix_nanos = excluded.finished_unix_nanos,
			input_seq = excluded.input_seq,
			input_frame_id = excluded.input_frame_id`,
		st.ID, string(state), st.Diagnostic, st.InputPoints, st.ResultPoints,
		unixNanos(st.AcceptedAt), unixNanos(st.FinishedAt), st.InputSeq, st.InputFrameID,
	)
	if err != nil {
		return fmt.Errorf("failed to record goal %s: %w", st.ID, err)
	}
	if db.Retain > 0 && st.State.Terminal() {
		n, err := db.PruneGoals(db.Retain)
		if err != nil {
			return fmt.Errorf("failed to prune goals: %w", err)
		}
		if n > 0 {
			logf("Pruned %d goals beyond retention of %d", n, db.Retain)
		}
	}
	return nil
}

const goalColumns = `goal_id, state, diagnostic, input_points, result_points,
	accepted_unix_nanos, finished_unix_nanos, input_seq, input_frame_id`

// ListGoals returns up to limit goals, most recently accepted first.
// limit <= 0 returns all.
func (db *DB) ListGoals(limit int) ([]orchestrator.GoalStatus, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(
		`SELECT `+goalColumns+` FROM goals
		ORDER BY accepted_unix_nanos DESC, goal_id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var goals []orchestrator.GoalStatus
	for rows.Next() {
		st, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, st)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return goals, nil
}

// GetGoal returns the stored goal, or orchestrator.ErrGoalNotFound.
func (db *DB) GetGoal(id string) (orchestrator.GoalStatus, error) {
	st, err := scanGoal(db.QueryRow(`SELECT `+goalColumns+` FROM goals WHERE goal_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return orchestrator.GoalStatus{}, fmt.Errorf("%w: %s", orchestrator.ErrGoalNotFound, id)
	}
	return st, err
}

// PruneGoals deletes all but the keep most recently accepted goals and
// returns how many were removed.
func (db *DB) PruneGoals(keep int) (int64, error) {
	res, err := db.Exec(
		`DELETE FROM goals WHERE goal_id NOT IN (
			SELECT goal_id FROM goals ORDER BY accepted_unix_nanos DESC, goal_id LIMIT ?
		)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGoal(s scanner) (orchestrator.GoalStatus, error) {
	var (
		st                 orchestrator.GoalStatus
		state              string
		accepted, finished int64
	)
	if err := s.Scan(&st.ID, &state, &st.Diagnostic, &st.InputPoints, &st.ResultPoints,
		&accepted, &finished, &st.InputSeq, &st.InputFrameID); err != nil {
		return st, err
	}
	if err := st.State.UnmarshalText([]byte(state)); err != nil {
		return st, err
	}
	st.AcceptedAt = fromUnixNanos(accepted)
	st.FinishedAt = fromUnixNanos(finished)
	return st, nil
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) error {
	debug := tsweb.Debugger(mux)
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		return fmt.Errorf("failed to create tailsql server: %w", err)
	}
	tsql.SetDB("sqlite://"+filepath.Base(db.path), db.DB, &tailsql.DBOptions{
		Label: "Goal history",
	})

	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())
	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(db.serveBackup))
	return nil
}

func (db *DB) serveBackup(w http.ResponseWriter, r *http.Request) {
	dir, err := os.MkdirTemp("", "cloudseg-backup-")
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup dir: %v", err), http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logf("Failed to remove backup dir: %v", err)
		}
	}()

	name := fmt.Sprintf("backup-%d.db", time.Now().Unix())
	backupPath := filepath.Join(dir, name)
	if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
		http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
		return
	}

	backupFile, err := os.Open(backupPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
		return
	}
	defer backupFile.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", name))
	w.Header().Set("Content-Type", "application/gzip")

	gzipWriter := gzip.NewWriter(w)
	defer gzipWriter.Close()
	if _, err := io.Copy(gzipWriter, backupFile); err != nil {
		logf("Failed to write backup: %v", err)
	}
}
