// Package domain holds the sync engine that reconciles client batches with server state.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/qiuhuiming/titan-track/internal/observability"
	platformevents "github.com/qiuhuiming/titan-track/internal/platform/events"
)

// ErrMissingIdentity is returned when Sync is called without a user id.
var ErrMissingIdentity = errors.New("sync requires an authenticated user")

// Identity is the authenticated caller of a sync request.
type Identity struct {
	UserID   string
	DeviceID string
}

// Result is the merged server state returned to the client.
type Result struct {
	Exercises  []Exercise
	Plans      []WorkoutPlan
	Entries    []WorkoutEntry
	Conflicts  []Conflict
	ServerTime time.Time
}

// Engine reconciles client batches against a Store.
type Engine struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for updated_at, deleted_at and server_time.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine constructs an Engine.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		now:    func() time.Time { return time.Now().UTC() },
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync merges the client batch for all three kinds in one transaction, then returns the
// user's full collections with the conflicts found and a fresh watermark.
func (e *Engine) Sync(ctx context.Context, id Identity, lastSyncAt *time.Time, batch ClientBatch) (*Result, error) {
	started := time.Now()
	result, err := e.sync(ctx, id, lastSyncAt, batch)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.RecordSyncRequest(outcome, time.Since(started))
	return result, err
}

func (e *Engine) sync(ctx context.Context, id Identity, lastSyncAt *time.Time, batch ClientBatch) (*Result, error) {
	if id.UserID == "" {
		return nil, ErrMissingIdentity
	}
	if lastSyncAt != nil {
		utc := lastSyncAt.UTC()
		lastSyncAt = &utc
	}

	var conflicts []Conflict
	err := e.store.InTx(ctx, id.UserID, func(tx Tx) error {
		run := &syncRun{identity: id, since: lastSyncAt, now: e.now(), logger: e.logger}
		if err := reconcile(ctx, run, tx.Exercises(), batch.Exercises, exercisePolicy); err != nil {
			return err
		}
		if err := reconcile(ctx, run, tx.Plans(), batch.Plans, planPolicy); err != nil {
			return err
		}
		if err := reconcile(ctx, run, tx.Entries(), batch.Entries, entryPolicy); err != nil {
			return err
		}
		if len(run.events) > 0 {
			if err := tx.RecordEvents(ctx, run.events); err != nil {
				return fmt.Errorf("record sync events: %w", err)
			}
		}
		conflicts = run.conflicts
		return nil
	})
	if err != nil {
		e.logger.Warn("sync transaction aborted", zap.String("user_id", id.UserID), zap.String("device_id", id.DeviceID), zap.Error(err))
		return nil, err
	}

	result := &Result{Conflicts: conflicts}
	if result.Conflicts == nil {
		result.Conflicts = []Conflict{}
	}
	err = e.store.InTx(ctx, id.UserID, func(tx Tx) error {
		var err error
		if result.Exercises, err = tx.Exercises().All(ctx); err != nil {
			return fmt.Errorf("load exercises: %w", err)
		}
		if result.Plans, err = tx.Plans().All(ctx); err != nil {
			return fmt.Errorf("load workout plans: %w", err)
		}
		if result.Entries, err = tx.Entries().All(ctx); err != nil {
			return fmt.Errorf("load workout entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.ServerTime = e.now()
	observability.RecordServerTime(result.ServerTime)

	e.logger.Info("sync completed",
		zap.String("user_id", id.UserID),
		zap.String("device_id", id.DeviceID),
		zap.Int("conflicts", len(result.Conflicts)),
		zap.Time("server_time", result.ServerTime),
	)
	return result, nil
}

// Decision is the merge outcome for one client record.
type Decision int

const (
	DecisionCreate Decision = iota + 1
	DecisionServerWins
	DecisionClientWins
)

func (d Decision) String() string {
	switch d {
	case DecisionCreate:
		return "create"
	case DecisionServerWins:
		return "server_wins"
	case DecisionClientWins:
		return "client_wins"
	default:
		return "unknown"
	}
}

// Decide compares a client header with the server copy. A nil server means the id was not
// among the loaded candidates. The timestamp tie-break on equal versions only applies when
// tieBreakOnTimestamp is set, which is the case for exercises alone.
func Decide(server *SyncMeta, client ClientHeader, tieBreakOnTimestamp bool) Decision {
	if server == nil {
		return DecisionCreate
	}
	switch {
	case server.Version > client.Version:
		return DecisionServerWins
	case server.Version < client.Version:
		return DecisionClientWins
	}
	if tieBreakOnTimestamp && client.UpdatedAt != nil && server.UpdatedAt.After(*client.UpdatedAt) {
		return DecisionServerWins
	}
	return DecisionClientWins
}

type syncRun struct {
	identity  Identity
	since     *time.Time
	now       time.Time
	logger    *zap.Logger
	conflicts []Conflict
	events    []platformevents.Envelope
}

// policy captures what differs between kinds: field mapping and tie-break behaviour.
type policy[T any, P ClientRecord] struct {
	kind                EntityKind
	tieBreakOnTimestamp bool
	create              func(P, time.Time) (T, error)
	apply               func(*T, P)
}

func reconcile[T any, PT Entity[T], P ClientRecord](ctx context.Context, run *syncRun, coll Collection[T], records []P, pol policy[T, P]) error {
	kind := string(pol.kind)
	candidates, err := coll.ChangedSince(ctx, run.since)
	if err != nil {
		return fmt.Errorf("load %s candidates: %w", kind, err)
	}
	index := make(map[string]*T, len(candidates))
	for i := range candidates {
		index[PT(&candidates[i]).Meta().ID] = &candidates[i]
	}

	for _, rec := range records {
		hdr := rec.Header()
		if hdr.ID == "" {
			observability.RecordSyncRecord(kind, observability.BranchSkipped)
			continue
		}

		var serverMeta *SyncMeta
		current, found := index[hdr.ID]
		if found {
			serverMeta = PT(current).Meta()
		}

		switch Decide(serverMeta, hdr, pol.tieBreakOnTimestamp) {
		case DecisionCreate:
			entity, err := pol.create(rec, run.now)
			if err != nil {
				return err
			}
			meta := PT(&entity).Meta()
			*meta = SyncMeta{
				ID:                   hdr.ID,
				UserID:               run.identity.UserID,
				Version:              hdr.Version,
				CreatedAt:            run.now,
				UpdatedAt:            run.now,
				IsDeleted:            hdr.IsDeleted,
				LastModifiedByDevice: run.identity.DeviceID,
			}
			if meta.IsDeleted {
				deletedAt := run.now
				meta.DeletedAt = &deletedAt
			}
			if err := coll.Insert(ctx, entity); err != nil {
				return fmt.Errorf("insert %s %s: %w", kind, hdr.ID, err)
			}
			index[hdr.ID] = &entity
			run.changed(pol.kind, meta, platformevents.ChangeCreated)
			observability.RecordSyncRecord(kind, observability.BranchCreated)

		case DecisionServerWins:
			run.conflict(pol.kind, serverMeta, hdr)
			observability.RecordSyncRecord(kind, observability.BranchConflict)

		case DecisionClientWins:
			next := *current
			pol.apply(&next, rec)
			meta := PT(&next).Meta()
			meta.Version = serverMeta.Version + 1
			meta.UpdatedAt = run.now
			meta.LastModifiedByDevice = run.identity.DeviceID
			meta.IsDeleted = hdr.IsDeleted
			if meta.IsDeleted {
				deletedAt := run.now
				meta.DeletedAt = &deletedAt
			}
			if err := coll.Update(ctx, next); err != nil {
				return fmt.Errorf("update %s %s: %w", kind, hdr.ID, err)
			}
			*current = next
			change := platformevents.ChangeUpdated
			if meta.IsDeleted {
				change = platformevents.ChangeDeleted
			}
			run.changed(pol.kind, meta, change)
			observability.RecordSyncRecord(kind, observability.BranchApplied)
		}
	}
	return nil
}

func (r *syncRun) changed(kind EntityKind, meta *SyncMeta, change string) {
	r.events = append(r.events, platformevents.Envelope{
		EventType:     platformevents.TypeEntityChanged,
		UserID:        r.identity.UserID,
		AggregateType: string(kind),
		AggregateID:   meta.ID,
		Payload: platformevents.EntityChanged{
			EntityType: string(kind),
			EntityID:   meta.ID,
			UserID:     r.identity.UserID,
			Version:    meta.Version,
			ChangeType: change,
			DeviceID:   r.identity.DeviceID,
			OccurredAt: r.now,
		},
	})
}

func (r *syncRun) conflict(kind EntityKind, server *SyncMeta, client ClientHeader) {
	r.conflicts = append(r.conflicts, Conflict{
		EntityType:    kind,
		EntityID:      server.ID,
		Resolution:    ResolutionServerWins,
		ServerVersion: server.Version,
		ClientVersion: client.SentVersion,
	})
	r.events = append(r.events, platformevents.Envelope{
		EventType:     platformevents.TypeSyncConflictDetected,
		UserID:        r.identity.UserID,
		AggregateType: string(kind),
		AggregateID:   server.ID,
		Payload: platformevents.SyncConflictDetected{
			EntityType:    string(kind),
			EntityID:      server.ID,
			UserID:        r.identity.UserID,
			DeviceID:      r.identity.DeviceID,
			Resolution:    ResolutionServerWins,
			ServerVersion: server.Version,
			ClientVersion: client.SentVersion,
			DetectedAt:    r.now,
		},
	})
	r.logger.Debug("sync conflict",
		zap.String("entity_type", string(kind)),
		zap.String("entity_id", server.ID),
		zap.Int("server_version", server.Version),
		zap.Int("client_version", client.SentVersion),
	)
}
