package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kamilpajak/smarttest/pkg/models"
	"go.uber.org/zap"
)

// Run is a stored run summary.
type Run struct {
	ID          uuid.UUID
	Suite       string
	Mode        string
	State       string
	Success     bool
	FailureKind *string
	ReturnCode  *int
	Total       int
	Passed      int
	Failed      int
	Skipped     int
	Duration    time.Duration
	ResultsDir  string
	ReportPath  *string
	Error       *string
	StartedAt   time.Time
}

// ElementDrift counts how often an element needed healing.
type ElementDrift struct {
	Page     string
	Element  string
	Healed   int
	Failed   int
	LastSeen time.Time
}

// runColumns is the standard column list for run queries.
const runColumns = `id, suite, mode, state, success, failure_kind, return_code,
	total_tests, passed_tests, failed_tests, skipped_tests, duration_ms,
	results_dir, report_path, error, started_at`

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	var durationMS int64
	err := row.Scan(
		&r.ID, &r.Suite, &r.Mode, &r.State, &r.Success, &r.FailureKind, &r.ReturnCode,
		&r.Total, &r.Passed, &r.Failed, &r.Skipped, &durationMS,
		&r.ResultsDir, &r.ReportPath, &r.Error, &r.StartedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond
	return &r, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// RecordRun stores a run and the healing events observed during it in one
// transaction.
func (db *DB) RecordRun(ctx context.Context, res *models.RunResult, events []models.HealingEvent) error {
	id, err := uuid.Parse(res.ID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", res.ID, err)
	}
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode run: %w", err)
	}

	var (
		failureKind *string
		returnCode  *int
		counts      models.Report
		durationMS  int64
	)
	if exec := res.Execution; exec != nil {
		failureKind = nullable(string(exec.FailureKind))
		rc := exec.ReturnCode
		returnCode = &rc
		durationMS = exec.Duration.Milliseconds()
		if exec.Report != nil {
			counts = *exec.Report
		}
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO runs (id, suite, mode, state, success, failure_kind, return_code,
			total_tests, passed_tests, failed_tests, skipped_tests, duration_ms,
			results_dir, report_path, error, result, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		id, res.Suite, string(res.Mode), string(res.State), res.Success, failureKind, returnCode,
		counts.TotalTests, counts.PassedTests, counts.FailedTests, counts.SkippedTests, durationMS,
		res.ResultsDir, nullable(res.ReportPath), nullable(res.Error), resultJSON, res.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if len(events) > 0 {
		rows := make([][]any, 0, len(events))
		for _, ev := range events {
			rows = append(rows, []any{
				id, ev.Page, ev.Element, string(ev.Stage), ev.Strategy,
				ev.Success, ev.MatchedToken, ev.Detail, ev.Time,
			})
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"healing_events"},
			[]string{"run_id", "page", "element", "stage", "strategy", "success", "matched_token", "detail", "occurred_at"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("failed to insert healing events: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	db.log().Debug("recorded run", zap.String("run_id", res.ID), zap.Int("healing_events", len(events)))
	return nil
}

// ListRuns returns the most recent runs, newest first. An empty suite lists
// every suite.
func (db *DB) ListRuns(ctx context.Context, suite string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error
	if suite != "" {
		rows, err = db.pool.Query(ctx,
			`SELECT `+runColumns+` FROM runs
			 WHERE suite = $1
			 ORDER BY started_at DESC
			 LIMIT $2`,
			suite, limit,
		)
	} else {
		rows, err = db.pool.Query(ctx,
			`SELECT `+runColumns+` FROM runs
			 ORDER BY started_at DESC
			 LIMIT $1`,
			limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// GetRun returns the full stored result of a run, or nil when unknown.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (*models.RunResult, error) {
	var raw []byte
	err := db.pool.QueryRow(ctx, `SELECT result FROM runs WHERE id = $1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var res models.RunResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &res, nil
}

// ElementDrift returns the elements of a suite that needed heuristic
// healing, most healed first.
func (db *DB) ElementDrift(ctx context.Context, suite string, limit int) ([]ElementDrift, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.pool.Query(ctx,
		`SELECT h.page, h.element,
			COUNT(*) FILTER (WHERE h.success),
			COUNT(*) FILTER (WHERE NOT h.success),
			MAX(h.occurred_at)
		 FROM healing_events h
		 JOIN runs r ON r.id = h.run_id
		 WHERE r.suite = $1 AND h.stage = $2
		 GROUP BY h.page, h.element
		 ORDER BY 3 DESC, 4 DESC, h.page, h.element
		 LIMIT $3`,
		suite, string(models.StageHeuristic), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drift []ElementDrift
	for rows.Next() {
		var d ElementDrift
		if err := rows.Scan(&d.Page, &d.Element, &d.Healed, &d.Failed, &d.LastSeen); err != nil {
			return nil, err
		}
		drift = append(drift, d)
	}
	return drift, rows.Err()
}
