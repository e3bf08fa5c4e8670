package storage

import (
	"context"
	"time"
)

// ScheduledJob is a persisted cron entry (C12).
type ScheduledJob struct {
	Name       string
	CronExpr   string
	HandlerRef string
	Params     string
	Enabled    bool
	LastRun    *time.Time
	NextRun    time.Time
}

// UpsertScheduledJob inserts or replaces a job definition.
func (s *Store) UpsertScheduledJob(ctx context.Context, j ScheduledJob) error {
	var lastRun *int64
	if j.LastRun != nil {
		v := j.LastRun.UnixMilli()
		lastRun = &v
	}
	_, err := s.memory.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (name, cron_expr, handler_ref, params, enabled, last_run, next_run)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			cron_expr = excluded.cron_expr,
			handler_ref = excluded.handler_ref,
			params = excluded.params,
			enabled = excluded.enabled,
			next_run = excluded.next_run`,
		j.Name, j.CronExpr, j.HandlerRef, j.Params, boolToInt(j.Enabled), lastRun, j.NextRun.UnixMilli(),
	)
	return err
}

// ScheduledJobs returns every job, enabled or not.
func (s *Store) ScheduledJobs(ctx context.Context) ([]ScheduledJob, error) {
	rows, err := s.memory.QueryContext(ctx,
		`SELECT name, cron_expr, handler_ref, params, enabled, last_run, next_run FROM scheduled_jobs`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScheduledJobs(rows)
}

// DueScheduledJobs returns enabled jobs whose next_run has passed.
func (s *Store) DueScheduledJobs(ctx context.Context, now time.Time) ([]ScheduledJob, error) {
	rows, err := s.memory.QueryContext(ctx,
		`SELECT name, cron_expr, handler_ref, params, enabled, last_run, next_run FROM scheduled_jobs
		 WHERE enabled = 1 AND next_run <= ?`,
		now.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanScheduledJobs(rows)
}

// MarkJobFired records lastRun and the recomputed nextRun after a fire.
func (s *Store) MarkJobFired(ctx context.Context, name string, firedAt, nextRun time.Time) error {
	_, err := s.memory.ExecContext(ctx,
		`UPDATE scheduled_jobs SET last_run = ?, next_run = ? WHERE name = ?`,
		firedAt.UnixMilli(), nextRun.UnixMilli(), name,
	)
	return err
}

func scanScheduledJobs(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]ScheduledJob, error) {
	var jobs []ScheduledJob
	for rows.Next() {
		var j ScheduledJob
		var enabled int
		var lastRun *int64
		var nextRun int64
		if err := rows.Scan(&j.Name, &j.CronExpr, &j.HandlerRef, &j.Params, &enabled, &lastRun, &nextRun); err != nil {
			return nil, err
		}
		j.Enabled = enabled != 0
		j.NextRun = time.UnixMilli(nextRun)
		if lastRun != nil {
			ts := time.UnixMilli(*lastRun)
			j.LastRun = &ts
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
