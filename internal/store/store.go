// Package store owns the local goal collection and keeps it consistent with
// the remote persistence service.
//
// Every mutation is attempted remotely first. On success the server-confirmed
// record is committed; on failure a locally built record is committed instead,
// the mutation is journaled for later replay and a SyncDegraded advisory is
// raised. Mutations of the same goal are serialized.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"goalplanner/internal/core"
	"goalplanner/internal/remote"
)

var (
	ErrGoalNotFound = errors.New("goal not found")
	// ErrNoFallback is returned by Load when the remote fetch failed and no
	// fallback collection was supplied.
	ErrNoFallback = errors.New("remote load failed and no fallback available")
)

// OpKind identifies a store operation.
type OpKind string

const (
	OpLoad    OpKind = "load"
	OpCreate  OpKind = "create"
	OpUpdate  OpKind = "update"
	OpPatch   OpKind = "patch"
	OpDeposit OpKind = "deposit"
	OpDelete  OpKind = "delete"
)

func (k OpKind) IsValid() bool {
	switch k {
	case OpCreate, OpUpdate, OpPatch, OpDeposit, OpDelete:
		return true
	}
	return false
}

// Entry describes a mutation that was applied locally but not remotely.
type Entry struct {
	Op     OpKind     `json:"op"`
	GoalID string     `json:"goal_id"`
	Goal   core.Goal  `json:"goal"`
	Patch  core.Patch `json:"patch"`
	Cause  string     `json:"cause,omitempty"`
	At     time.Time  `json:"at"`
}

type (
	// Journal persists degraded mutations for later replay.
	Journal interface {
		Record(ctx context.Context, e Entry) error
		// Discard drops the unreplayed entries of a goal that no longer
		// exists remotely.
		Discard(ctx context.Context, goalID string) error
		// PendingGoalIDs returns the ids that still have entries to replay.
		PendingGoalIDs(ctx context.Context) ([]string, error)
	}

	// SnapshotSaver persists the committed collection. It is rewritten after
	// every load and every mutation, degraded or not.
	SnapshotSaver interface {
		SaveSnapshot(ctx context.Context, goals []core.Goal) error
	}
)

// Outcome is the result of a mutation. Degraded is set when the remote call
// failed and Goal is the locally built record.
type Outcome struct {
	Goal     core.Goal
	Degraded bool
	Cause    error
}

type LoadResult struct {
	Count    int
	Degraded bool
	Cause    error
}

type Option func(*Store)

func WithJournal(j Journal) Option {
	return func(s *Store) { s.journal = j }
}

func WithSnapshots(ss SnapshotSaver) Option {
	return func(s *Store) { s.snapshots = ss }
}

func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithIDGenerator replaces the generator used for locally synthesized ids.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

func withClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	remote    remote.Client
	journal   Journal
	snapshots SnapshotSaver
	notifier  Notifier
	newID     func() string
	log       *slog.Logger
	now       func() time.Time

	// loadMu is held exclusively by Load and shared by mutations.
	loadMu sync.RWMutex
	locks  *keyLocks

	// snapMu serializes snapshot saves.
	snapMu sync.Mutex

	mu     sync.RWMutex
	goals  []core.Goal
	loaded bool
}

func New(rc remote.Client, opts ...Option) *Store {
	s := &Store{
		remote:   rc,
		notifier: nopNotifier{},
		newID:    newLocalID,
		log:      slog.Default(),
		now:      time.Now,
		locks:    newKeyLocks(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// newLocalID returns a time-ordered UUID so locally created goals sort after
// older ones and never collide across restarts.
func newLocalID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Load replaces the collection with the remote one. Goals with journaled
// mutations not yet replayed keep their local record, taken from the current
// collection or, before the first load, from fallback.
//
// If the remote fetch fails, fallback is used instead and the result is
// marked degraded. A nil fallback means none: the collection is left
// untouched and ErrNoFallback is returned. An empty non-nil fallback is a
// valid empty collection.
func (s *Store) Load(ctx context.Context, fallback []core.Goal) (LoadResult, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	goals, err := s.remote.FetchAll(ctx)
	if err == nil {
		goals = s.keepUnsynced(ctx, dedupe(goals), fallback)
		s.replaceAll(goals)
		s.persist(ctx)
		s.log.InfoContext(ctx, "Goals loaded from remote", "count", len(goals))
		return LoadResult{Count: len(goals)}, nil
	}

	if fallback == nil {
		s.log.ErrorContext(ctx, "Goal load failed without fallback", "error", err)
		return LoadResult{}, fmt.Errorf("%w: %w", ErrNoFallback, err)
	}

	goals = dedupe(fallback)
	s.replaceAll(goals)
	s.advise(ctx, SyncDegraded, OpLoad, "", err)
	s.log.WarnContext(ctx, "Goals loaded from fallback", "count", len(goals), "error", err)
	return LoadResult{Count: len(goals), Degraded: true, Cause: err}, nil
}

// Add creates a goal from the draft. The new goal always starts with a zero
// saved amount.
func (s *Store) Add(ctx context.Context, d core.Draft) (Outcome, error) {
	if err := d.Validate(); err != nil {
		return Outcome{}, err
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = core.DateOf(s.now())
	}

	s.loadMu.RLock()
	defer s.loadMu.RUnlock()

	local := d.Goal(s.newID())
	return s.reconcile(ctx, mutation{
		op: OpCreate,
		call: func(ctx context.Context) (core.Goal, error) {
			g, err := s.remote.Create(ctx, d)
			if err == nil && g.ID == "" {
				return core.Goal{}, remote.ServerError("create", http.StatusOK, errors.New("response without id"))
			}
			return g, err
		},
		confirm:  func(g core.Goal) core.Goal { return g },
		fallback: local,
		entry:    Entry{Op: OpCreate, GoalID: local.ID, Goal: local},
	})
}

// Update replaces a whole goal. CreatedAt is kept from the existing record.
func (s *Store) Update(ctx context.Context, g core.Goal) (Outcome, error) {
	if err := g.Validate(); err != nil {
		return Outcome{}, err
	}
	return s.withGoal(ctx, OpUpdate, g.ID, func(current core.Goal) mutation {
		g.CreatedAt = current.CreatedAt
		return mutation{
			op: OpUpdate,
			id: g.ID,
			call: func(ctx context.Context) (core.Goal, error) {
				return s.remote.Replace(ctx, g.ID, g)
			},
			confirm: func(confirmed core.Goal) core.Goal {
				confirmed.ID = g.ID
				confirmed.CreatedAt = current.CreatedAt
				return confirmed
			},
			fallback: g,
			entry:    Entry{Op: OpUpdate, GoalID: g.ID, Goal: g},
		}
	})
}

// Edit applies a partial update.
func (s *Store) Edit(ctx context.Context, id string, p core.Patch) (Outcome, error) {
	return s.withGoal(ctx, OpPatch, id, func(current core.Goal) mutation {
		return mutation{
			op: OpPatch,
			id: id,
			validate: func() error {
				return p.Apply(current).Validate()
			},
			call: func(ctx context.Context) (core.Goal, error) {
				return s.remote.Patch(ctx, id, p)
			},
			confirm: func(confirmed core.Goal) core.Goal {
				confirmed.ID = id
				confirmed.CreatedAt = current.CreatedAt
				return confirmed
			},
			fallback: p.Apply(current),
			entry:    Entry{Op: OpPatch, GoalID: id, Patch: p},
		}
	})
}

// Deposit adds amount to the goal's saved amount. Only savedAmount is sent
// to the remote service and only savedAmount is taken from its answer.
func (s *Store) Deposit(ctx context.Context, id string, amount core.Money) (Outcome, error) {
	if !amount.IsPositive() {
		return Outcome{}, core.ErrInvalidAmount
	}
	return s.withGoal(ctx, OpDeposit, id, func(current core.Goal) mutation {
		newSaved := current.SavedAmount.Add(amount)
		p := core.Patch{SavedAmount: &newSaved}
		return mutation{
			op: OpDeposit,
			id: id,
			call: func(ctx context.Context) (core.Goal, error) {
				return s.remote.Patch(ctx, id, p)
			},
			confirm: func(confirmed core.Goal) core.Goal {
				g := current
				g.SavedAmount = confirmed.SavedAmount
				return g
			},
			fallback: p.Apply(current),
			entry:    Entry{Op: OpDeposit, GoalID: id, Patch: p},
		}
	})
}

// Remove deletes a goal. The local record is removed whether or not the
// remote call succeeds.
func (s *Store) Remove(ctx context.Context, id string) (Outcome, error) {
	return s.withGoal(ctx, OpDelete, id, func(current core.Goal) mutation {
		return mutation{
			op: OpDelete,
			id: id,
			call: func(ctx context.Context) (core.Goal, error) {
				err := s.remote.Delete(ctx, id)
				if remote.IsNotFound(err) {
					err = nil
				}
				return current, err
			},
			confirm:  func(core.Goal) core.Goal { return current },
			fallback: current,
			entry:    Entry{Op: OpDelete, GoalID: id, Goal: current},
		}
	})
}

// Rekey replaces the locally synthesized id of a goal with the id the remote
// service assigned once a deferred create went through. Local field values
// are kept; they may be newer than the confirmed record.
func (s *Store) Rekey(ctx context.Context, localID string, confirmed core.Goal) error {
	if confirmed.ID == "" || confirmed.ID == localID {
		return nil
	}
	s.loadMu.RLock()
	defer s.loadMu.RUnlock()

	unlock, err := s.locks.lock(ctx, localID)
	if err != nil {
		return err
	}
	defer unlock()

	s.mu.Lock()
	i := indexOf(s.goals, localID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("rekey %s: %w", localID, ErrGoalNotFound)
	}
	next := make([]core.Goal, 0, len(s.goals))
	for j, g := range s.goals {
		switch {
		case j == i:
			g.ID = confirmed.ID
			if g.CreatedAt.IsZero() {
				g.CreatedAt = confirmed.CreatedAt
			}
		case g.ID == confirmed.ID:
			continue
		}
		next = append(next, g)
	}
	s.goals = next
	s.mu.Unlock()

	s.persist(ctx)
	return nil
}

// Snapshot returns a copy of the collection in order.
func (s *Store) Snapshot() []core.Goal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Goal(nil), s.goals...)
}

func (s *Store) Get(id string) (core.Goal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.goals, id); i >= 0 {
		return s.goals[i], true
	}
	return core.Goal{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.goals)
}

// withGoal locks id, resolves its current record and runs the mutation
// built from it.
func (s *Store) withGoal(ctx context.Context, op OpKind, id string, build func(current core.Goal) mutation) (Outcome, error) {
	s.loadMu.RLock()
	defer s.loadMu.RUnlock()

	unlock, err := s.locks.lock(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	defer unlock()

	current, ok := s.Get(id)
	if !ok {
		s.advise(ctx, GoalNotFound, op, id, nil)
		return Outcome{}, fmt.Errorf("%s %q: %w", op, id, ErrGoalNotFound)
	}
	return s.reconcile(ctx, build(current))
}

func (s *Store) replaceAll(goals []core.Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals = goals
	s.loaded = true
}

// persist saves the current collection. The collection is read under
// snapMu, so the newest state is always the last one written.
func (s *Store) persist(ctx context.Context) {
	if s.snapshots == nil {
		return
	}
	s.snapMu.Lock()
	defer s.snapMu.Unlock()

	goals := s.Snapshot()
	if err := s.snapshots.SaveSnapshot(context.WithoutCancel(ctx), goals); err != nil {
		s.log.WarnContext(ctx, "Failed to save goal snapshot", "error", err)
	}
}

// keepUnsynced overlays fetched with the local record of every goal that
// still has journaled mutations. A goal missing locally was removed and is
// dropped from the result.
func (s *Store) keepUnsynced(ctx context.Context, fetched, fallback []core.Goal) []core.Goal {
	if s.journal == nil {
		return fetched
	}
	ids, err := s.journal.PendingGoalIDs(ctx)
	if err != nil {
		s.log.WarnContext(ctx, "Failed to list unsynced goals, using remote records", "error", err)
		return fetched
	}
	if len(ids) == 0 {
		return fetched
	}

	s.mu.RLock()
	local := fallback
	if s.loaded {
		local = s.goals
	}
	s.mu.RUnlock()
	if local == nil {
		return fetched
	}

	out := fetched
	for _, id := range ids {
		i := indexOf(out, id)
		j := indexOf(local, id)
		switch {
		case j >= 0 && i >= 0:
			out[i] = local[j]
		case j >= 0:
			out = append(out, local[j])
		case i >= 0:
			out = append(out[:i], out[i+1:]...)
		}
	}
	s.log.InfoContext(ctx, "Kept local records of unsynced goals", "count", len(ids))
	return out
}

func (s *Store) advise(ctx context.Context, kind AdvisoryKind, op OpKind, id string, err error) {
	s.notifier.Notify(ctx, Advisory{Kind: kind, Op: op, GoalID: id, Err: err, At: s.now()})
}

func indexOf(goals []core.Goal, id string) int {
	for i, g := range goals {
		if g.ID == id {
			return i
		}
	}
	return -1
}

// dedupe keeps the first record of every id.
func dedupe(goals []core.Goal) []core.Goal {
	seen := make(map[string]struct{}, len(goals))
	out := make([]core.Goal, 0, len(goals))
	for _, g := range goals {
		if _, ok := seen[g.ID]; ok {
			continue
		}
		seen[g.ID] = struct{}{}
		out = append(out, g)
	}
	return out
}
