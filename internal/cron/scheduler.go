// Package cron implements the persistent scheduler (C12): cron-expression
// jobs stored in the memory database, a one-second tick loop, and a
// bounded worker pool that invokes handlers by name.
package cron

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/local/steward/internal/storage"
)

const (
	tickInterval       = time.Second
	defaultWorkerCount = 4
)

// Handler runs a scheduled job's side effect.
type Handler func(ctx context.Context, params string) error

// Scheduler ticks every second, fires due jobs on a bounded worker pool,
// and serializes re-entry per job name.
type Scheduler struct {
	store    *storage.Store
	parser   robfigcron.Parser
	handlers map[string]Handler
	workers  chan struct{}

	mu      sync.Mutex
	running map[string]bool
}

// New constructs a Scheduler with the given worker pool size (0 uses the
// default of 4).
func New(store *storage.Store, workerCount int) *Scheduler {
	if workerCount <= 0 {
		workerCount = defaultWorkerCount
	}
	return &Scheduler{
		store:    store,
		parser:   robfigcron.NewParser(robfigcron.Minute | robfigcron.Hour | robfigcron.Dom | robfigcron.Month | robfigcron.Dow),
		handlers: make(map[string]Handler),
		workers:  make(chan struct{}, workerCount),
		running:  make(map[string]bool),
	}
}

// RegisterHandler associates a handlerRef name with a handler func.
func (s *Scheduler) RegisterHandler(ref string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[ref] = h
}

// Register inserts or updates a persistent job. cronExpr is parsed
// immediately to reject malformed expressions before they are persisted.
func (s *Scheduler) Register(ctx context.Context, name, cronExpr, handlerRef, params string, enabled bool) error {
	sched, err := s.parser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("cron: invalid expression %q: %w", cronExpr, err)
	}
	now := time.Now()
	return s.store.UpsertScheduledJob(ctx, storage.ScheduledJob{
		Name:       name,
		CronExpr:   cronExpr,
		HandlerRef: handlerRef,
		Params:     params,
		Enabled:    enabled,
		NextRun:    sched.Next(now),
	})
}

// Run starts the tick loop until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	due, err := s.store.DueScheduledJobs(ctx, now)
	if err != nil {
		log.Printf("cron: list due jobs failed: %v", err)
		return
	}
	for _, j := range due {
		if !s.tryClaim(j.Name) {
			continue // prior fire for this job has not completed
		}
		go s.fire(ctx, j)
	}
}

func (s *Scheduler) tryClaim(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[name] {
		return false
	}
	s.running[name] = true
	return true
}

func (s *Scheduler) release(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, name)
}

func (s *Scheduler) fire(ctx context.Context, j storage.ScheduledJob) {
	defer s.release(j.Name)

	s.workers <- struct{}{}
	defer func() { <-s.workers }()

	s.mu.Lock()
	h, ok := s.handlers[j.HandlerRef]
	s.mu.Unlock()
	if !ok {
		log.Printf("cron: no handler registered for %q (job %s)", j.HandlerRef, j.Name)
		return
	}

	if err := h(ctx, j.Params); err != nil {
		log.Printf("cron: job %s failed: %v", j.Name, err)
	}

	now := time.Now()
	sched, err := s.parser.Parse(j.CronExpr)
	if err != nil {
		log.Printf("cron: re-parsing %q for %s failed: %v", j.CronExpr, j.Name, err)
		return
	}
	if err := s.store.MarkJobFired(ctx, j.Name, now, sched.Next(now)); err != nil {
		log.Printf("cron: marking %s fired failed: %v", j.Name, err)
	}
}

// RegisterDefaults registers the standard job set (morningBrief,
// eveningDigest, heartbeat, nightlyAutonomous, deadlineCheck) through
// Register on every call, so an existing row for one of these names has
// its expression, handler, params and enabled flag overwritten.
// nightlyAutonomousExpr lets deployments override nightlyAutonomous's
// schedule.
func (s *Scheduler) RegisterDefaults(ctx context.Context, nightlyAutonomousExpr string) error {
	defaults := []storage.ScheduledJob{
		{Name: "morningBrief", CronExpr: "0 7 * * *", HandlerRef: "morningBrief", Enabled: true},
		{Name: "eveningDigest", CronExpr: "0 18 * * *", HandlerRef: "eveningDigest", Enabled: true},
		{Name: "heartbeat", CronExpr: "0 */4 * * *", HandlerRef: "heartbeat", Enabled: true},
		{Name: "nightlyAutonomous", CronExpr: nightlyAutonomousExpr, HandlerRef: "nightlyAutonomous", Enabled: true},
		{Name: "deadlineCheck", CronExpr: "0 * * * *", HandlerRef: "deadlineCheck", Enabled: true},
	}
	for _, j := range defaults {
		if err := s.Register(ctx, j.Name, j.CronExpr, j.HandlerRef, j.Params, j.Enabled); err != nil {
			return err
		}
	}
	return nil
}
