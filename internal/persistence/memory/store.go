// Package memory provides an in-process domain.Store for tests and local development.
package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/qiuhuiming/titan-track/internal/domain"
	platformevents "github.com/qiuhuiming/titan-track/internal/platform/events"
)

// Store keeps every user's collections in maps. Transactions are serialised and work on a
// copy that replaces the committed state only when the callback succeeds. Ids are unique
// per collection across all users, as with the Postgres primary keys.
type Store struct {
	mu     sync.Mutex
	users  map[string]*userState
	events []platformevents.Envelope
}

type userState struct {
	exercises map[string]domain.Exercise
	plans     map[string]domain.WorkoutPlan
	entries   map[string]domain.WorkoutEntry
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{users: make(map[string]*userState)}
}

// InTx implements domain.Store.
func (s *Store) InTx(ctx context.Context, userID string, fn func(domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.users[userID]
	if state == nil {
		state = &userState{
			exercises: make(map[string]domain.Exercise),
			plans:     make(map[string]domain.WorkoutPlan),
			entries:   make(map[string]domain.WorkoutEntry),
		}
	}

	tx := &memTx{
		exercises: newCollection(userID, state.exercises, cloneExercise, heldElsewhere(s.users, userID, exerciseRows)),
		plans:     newCollection(userID, state.plans, clonePlan, heldElsewhere(s.users, userID, planRows)),
		entries:   newCollection(userID, state.entries, cloneEntry, heldElsewhere(s.users, userID, entryRows)),
	}
	if err := fn(tx); err != nil {
		return err
	}

	s.users[userID] = &userState{
		exercises: tx.exercises.rows,
		plans:     tx.plans.rows,
		entries:   tx.entries.rows,
	}
	s.events = append(s.events, tx.events...)
	return nil
}

// Events returns the committed events recorded for userID in commit order.
func (s *Store) Events(userID string) []platformevents.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]platformevents.Envelope, 0)
	for _, evt := range s.events {
		if evt.UserID == userID {
			out = append(out, evt)
		}
	}
	return out
}

// heldElsewhere reports whether a user other than userID already stores id. Callers hold s.mu.
func heldElsewhere[T any](users map[string]*userState, userID string, rows func(*userState) map[string]T) func(string) bool {
	return func(id string) bool {
		for owner, state := range users {
			if owner == userID {
				continue
			}
			if _, ok := rows(state)[id]; ok {
				return true
			}
		}
		return false
	}
}

func exerciseRows(u *userState) map[string]domain.Exercise { return u.exercises }
func planRows(u *userState) map[string]domain.WorkoutPlan { return u.plans }
func entryRows(u *userState) map[string]domain.WorkoutEntry { return u.entries }

type memTx struct {
	exercises *collection[domain.Exercise, *domain.Exercise]
	plans     *collection[domain.WorkoutPlan, *domain.WorkoutPlan]
	entries   *collection[domain.WorkoutEntry, *domain.WorkoutEntry]
	events    []platformevents.Envelope
}

func (t *memTx) Exercises() domain.Collection[domain.Exercise] { return t.exercises }
func (t *memTx) Plans() domain.Collection[domain.WorkoutPlan] { return t.plans }
func (t *memTx) Entries() domain.Collection[domain.WorkoutEntry] { return t.entries }

func (t *memTx) RecordEvents(ctx context.Context, events []platformevents.Envelope) error {
	t.events = append(t.events, events...)
	return nil
}

type collection[T any, PT domain.Entity[T]] struct {
	userID string
	rows   map[string]T
	clone  func(T) T
	taken  func(string) bool
}

func newCollection[T any, PT domain.Entity[T]](userID string, committed map[string]T, clone func(T) T, taken func(string) bool) *collection[T, PT] {
	rows := make(map[string]T, len(committed))
	for id, row := range committed {
		rows[id] = clone(row)
	}
	return &collection[T, PT]{userID: userID, rows: rows, clone: clone, taken: taken}
}

func (c *collection[T, PT]) ChangedSince(ctx context.Context, since *time.Time) ([]T, error) {
	return c.list(func(meta *domain.SyncMeta) bool {
		return since == nil || !meta.UpdatedAt.Before(*since)
	}), nil
}

func (c *collection[T, PT]) All(ctx context.Context) ([]T, error) {
	return c.list(func(*domain.SyncMeta) bool { return true }), nil
}

func (c *collection[T, PT]) Insert(ctx context.Context, entity T) error {
	meta := PT(&entity).Meta()
	if _, exists := c.rows[meta.ID]; exists || c.taken(meta.ID) {
		return domain.ErrEntityExists
	}
	meta.UserID = c.userID
	c.rows[meta.ID] = c.clone(entity)
	return nil
}

func (c *collection[T, PT]) Update(ctx context.Context, entity T) error {
	meta := PT(&entity).Meta()
	stored, ok := c.rows[meta.ID]
	if !ok {
		return domain.ErrEntityNotFound
	}
	if PT(&stored).Meta().Version != meta.Version-1 {
		return domain.ErrConcurrentModification
	}
	meta.UserID = c.userID
	c.rows[meta.ID] = c.clone(entity)
	return nil
}

func (c *collection[T, PT]) list(keep func(*domain.SyncMeta) bool) []T {
	out := make([]T, 0, len(c.rows))
	for _, row := range c.rows {
		row := row
		if keep(PT(&row).Meta()) {
			out = append(out, c.clone(row))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := PT(&out[i]).Meta(), PT(&out[j]).Meta()
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

func cloneExercise(ex domain.Exercise) domain.Exercise {
	ex.SyncMeta = cloneMeta(ex.SyncMeta)
	if ex.Notes != nil {
		notes := *ex.Notes
		ex.Notes = &notes
	}
	if ex.PersonalBest != nil {
		best := *ex.PersonalBest
		ex.PersonalBest = &best
	}
	return ex
}

func clonePlan(plan domain.WorkoutPlan) domain.WorkoutPlan {
	plan.SyncMeta = cloneMeta(plan.SyncMeta)
	if plan.Tags != nil {
		plan.Tags = append([]string{}, plan.Tags...)
	}
	plan.Exercises = cloneRaw(plan.Exercises)
	return plan
}

func cloneEntry(entry domain.WorkoutEntry) domain.WorkoutEntry {
	entry.SyncMeta = cloneMeta(entry.SyncMeta)
	entry.Sets = cloneRaw(entry.Sets)
	if entry.PlanID != nil {
		planID := *entry.PlanID
		entry.PlanID = &planID
	}
	return entry
}

func cloneMeta(meta domain.SyncMeta) domain.SyncMeta {
	if meta.DeletedAt != nil {
		deletedAt := *meta.DeletedAt
		meta.DeletedAt = &deletedAt
	}
	return meta
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
