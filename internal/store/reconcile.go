package store

import (
	"context"
	"fmt"

	"goalplanner/internal/core"
)

// mutation is one store operation expressed for reconcile.
type mutation struct {
	op OpKind
	// id is the existing goal id; empty for create.
	id string
	// validate runs before the remote call. Optional.
	validate func() error
	// call performs the single remote attempt.
	call func(ctx context.Context) (core.Goal, error)
	// confirm merges the server answer into the record to commit.
	confirm func(confirmed core.Goal) core.Goal
	// fallback is committed when call fails.
	fallback core.Goal
	entry    Entry
}

// reconcile runs the remote call and commits either the confirmed or the
// fallback record. Remote failures never surface as errors: they produce a
// degraded Outcome, a journal entry and a SyncDegraded advisory.
func (s *Store) reconcile(ctx context.Context, m mutation) (Outcome, error) {
	if m.validate != nil {
		if err := m.validate(); err != nil {
			return Outcome{}, err
		}
	}

	confirmed, err := m.call(ctx)
	if err == nil {
		g := m.confirm(confirmed)
		if prev, clobbered := s.commit(m.op, m.id, g); clobbered {
			s.log.WarnContext(ctx, "Remote assigned an id already held locally, replacing the stale record",
				"goal_id", g.ID, "stale_name", prev.Name, "goal_name", g.Name)
		}
		if m.op == OpDelete && s.journal != nil {
			// A delete that reached the remote service supersedes anything
			// still queued for the goal, including an unreplayed create.
			if jerr := s.journal.Discard(context.WithoutCancel(ctx), m.id); jerr != nil {
				s.log.ErrorContext(ctx, "Failed to discard queued mutations", "goal_id", m.id, "error", jerr)
			}
		}
		s.persist(ctx)
		s.log.DebugContext(ctx, "Goal synced", "operation", string(m.op), "goal_id", g.ID)
		return Outcome{Goal: g}, nil
	}

	g := m.fallback
	s.commit(m.op, m.id, g)
	s.persist(ctx)

	entry := m.entry
	entry.Cause = err.Error()
	entry.At = s.now()
	if s.journal != nil {
		// The caller may have given up already; the entry must still land.
		if jerr := s.journal.Record(context.WithoutCancel(ctx), entry); jerr != nil {
			s.log.ErrorContext(ctx, "Failed to journal degraded mutation",
				"operation", string(m.op), "goal_id", g.ID, "error", jerr)
		}
	}
	s.advise(ctx, SyncDegraded, m.op, g.ID, err)
	return Outcome{Goal: g, Degraded: true, Cause: fmt.Errorf("%s: %w", m.op, err)}, nil
}

// commit replaces the collection with a copy carrying the change.
// id is the record being replaced; create passes "" and appends. When a
// created goal's id is already taken, the old record is replaced in place
// and returned with clobbered set.
func (s *Store) commit(op OpKind, id string, g core.Goal) (prev core.Goal, clobbered bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]core.Goal, 0, len(s.goals)+1)
	switch op {
	case OpDelete:
		for _, cur := range s.goals {
			if cur.ID != id {
				next = append(next, cur)
			}
		}
	case OpCreate:
		for _, cur := range s.goals {
			if cur.ID == g.ID {
				prev, clobbered = cur, true
				cur = g
			}
			next = append(next, cur)
		}
		if !clobbered {
			next = append(next, g)
		}
	default:
		for _, cur := range s.goals {
			if cur.ID == id {
				cur = g
			}
			next = append(next, cur)
		}
	}
	s.goals = next
	return prev, clobbered
}
