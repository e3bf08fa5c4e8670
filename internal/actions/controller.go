// Package actions implements the action controller / confirmation manager
// (C9): the per-user propose → confirm/reject → execute → complete/fail
// state machine, with undo over the most recent completed action.
package actions

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/local/steward/internal/storage"
)

// ErrBusy is returned by Propose when a pending action already exists for
// the user and the caller did not request supersede.
var ErrBusy = errors.New("actions: a pending action already exists")

// ErrNoPending is returned by Confirm/Reject when there is no current
// pending action for the user.
var ErrNoPending = errors.New("actions: no pending action")

// ErrNotUndoable is returned by Undo when no eligible completed action
// exists.
var ErrNotUndoable = errors.New("actions: nothing undoable")

const (
	defaultExpiry = 5 * time.Minute
	sweepInterval = 60 * time.Second
	undoWindow    = 24 * time.Hour
)

// AutoApproveKinds lists action kinds that bypass the pending state and go
// directly to executing: read-only queries, docs-only edits, test runs.
var AutoApproveKinds = map[string]bool{
	"query":     true,
	"docs-edit": true,
	"test-run":  true,
}

// Undoer is implemented by action kinds that support a compensating
// action. Kinds without an entry here are never eligible for Undo.
type Undoer func(ctx context.Context, params string) error

// Runner carries out a confirmed action's side effect. The caller
// (internal/pipeline) invokes it after Confirm and before Complete.
type Runner func(ctx context.Context, params string) (result string, err error)

// Controller serializes propose/confirm/reject/execute transitions per
// user with an advisory lock table, and reaps expired pending rows both
// lazily (on read) and via a periodic sweeper.
type Controller struct {
	store *storage.Store

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	undoFn  map[string]Undoer
	runners map[string]Runner
}

// New constructs a Controller. Call StartSweeper separately to run the
// periodic expiry reaper.
func New(store *storage.Store) *Controller {
	return &Controller{
		store:   store,
		locks:   make(map[string]*sync.Mutex),
		undoFn:  make(map[string]Undoer),
		runners: make(map[string]Runner),
	}
}

// RegisterUndo associates a compensating action with a kind, making
// completed actions of that kind eligible for Undo.
func (c *Controller) RegisterUndo(kind string, fn Undoer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.undoFn[kind] = fn
}

// RegisterRunner associates the side effect for an action kind, invoked by
// the pipeline once a proposal reaches EXECUTING.
func (c *Controller) RegisterRunner(kind string, fn Runner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runners[kind] = fn
}

// RunnerFor looks up the registered side effect for kind, if any.
func (c *Controller) RunnerFor(kind string) (Runner, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn, ok := c.runners[kind]
	return fn, ok
}

// CurrentPending returns the user's current pending action, if any,
// without mutating state (beyond the usual lazy expiry flip on read).
func (c *Controller) CurrentPending(ctx context.Context, userID string) (*storage.PendingAction, error) {
	return c.store.CurrentPending(ctx, userID, time.Now())
}

func (c *Controller) lockFor(userID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[userID] = l
	}
	return l
}

// Propose creates a pending action for userID. If a pending action already
// exists, it fails with ErrBusy unless supersede is true, in which case
// the existing row is rejected and the new one inserted. Kinds in
// AutoApproveKinds skip the pending state and return directly with
// state=executing; the caller is expected to run the action synchronously
// and call Complete.
func (c *Controller) Propose(ctx context.Context, userID, kind, params string, supersede bool) (storage.PendingAction, error) {
	lock := c.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	current, err := c.store.CurrentPending(ctx, userID, now)
	if err != nil {
		return storage.PendingAction{}, err
	}
	if current != nil {
		if !supersede {
			return storage.PendingAction{}, ErrBusy
		}
		if err := c.store.TransitionPendingAction(ctx, current.ID, storage.ActionPending, storage.ActionRejected); err != nil {
			return storage.PendingAction{}, err
		}
	}

	a := storage.PendingAction{
		ID:         uuid.NewString(),
		UserID:     userID,
		Kind:       kind,
		Params:     params,
		ProposedAt: now,
		ExpiresAt:  now.Add(defaultExpiry),
		State:      storage.ActionPending,
	}
	if AutoApproveKinds[kind] {
		a.State = storage.ActionExecuting
	}
	if err := c.store.CreatePendingAction(ctx, a); err != nil {
		return storage.PendingAction{}, err
	}
	if a.State == storage.ActionExecuting {
		if err := c.store.TransitionPendingAction(ctx, a.ID, storage.ActionPending, storage.ActionExecuting); err != nil {
			return storage.PendingAction{}, err
		}
	}
	return a, nil
}

// Confirm moves the user's current pending action to confirmed, then
// executing. Returns ErrNoPending if there is none.
func (c *Controller) Confirm(ctx context.Context, userID string) (storage.PendingAction, error) {
	lock := c.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	current, err := c.store.CurrentPending(ctx, userID, time.Now())
	if err != nil {
		return storage.PendingAction{}, err
	}
	if current == nil {
		return storage.PendingAction{}, ErrNoPending
	}
	if err := c.store.TransitionPendingAction(ctx, current.ID, storage.ActionPending, storage.ActionConfirmed); err != nil {
		return storage.PendingAction{}, err
	}
	if err := c.store.TransitionPendingAction(ctx, current.ID, storage.ActionConfirmed, storage.ActionExecuting); err != nil {
		return storage.PendingAction{}, err
	}
	current.State = storage.ActionExecuting
	return *current, nil
}

// Reject moves the user's current pending action to rejected. Returns
// ErrNoPending if there is none.
func (c *Controller) Reject(ctx context.Context, userID string) error {
	lock := c.lockFor(userID)
	lock.Lock()
	defer lock.Unlock()

	current, err := c.store.CurrentPending(ctx, userID, time.Now())
	if err != nil {
		return err
	}
	if current == nil {
		return ErrNoPending
	}
	return c.store.TransitionPendingAction(ctx, current.ID, storage.ActionPending, storage.ActionRejected)
}

// Complete records the outcome of an executing action.
func (c *Controller) Complete(ctx context.Context, actionID string, success bool) error {
	to := storage.ActionComplete
	if !success {
		to = storage.ActionFailed
	}
	return c.store.TransitionPendingAction(ctx, actionID, storage.ActionExecuting, to)
}

// Undo attempts a compensating action for the most recent COMPLETE action
// within the last 24h whose kind registered an Undoer. Returns
// ErrNotUndoable if none qualifies.
func (c *Controller) Undo(ctx context.Context, userID string) error {
	recent, err := c.store.MostRecentComplete(ctx, userID)
	if err != nil {
		return err
	}
	if recent == nil || time.Since(recent.CompletedAt) > undoWindow {
		return ErrNotUndoable
	}

	c.mu.Lock()
	fn, ok := c.undoFn[recent.Kind]
	c.mu.Unlock()
	if !ok {
		return ErrNotUndoable
	}
	return fn(ctx, recent.Params)
}

// StartSweeper runs the 60s periodic expiry reaper until ctx is done.
func (c *Controller) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := c.store.ExpirePendingActions(ctx, time.Now())
				if err != nil {
					log.Printf("actions: sweep failed: %v", err)
					continue
				}
				if n > 0 {
					log.Printf("actions: expired %d pending action(s)", n)
				}
			}
		}
	}()
}
