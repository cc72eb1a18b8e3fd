package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/qiuhuiming/titan-track/internal/domain"
	"github.com/qiuhuiming/titan-track/internal/observability"
	platformevents "github.com/qiuhuiming/titan-track/internal/platform/events"
)

const uniqueViolation = "23505"

// Store provides Postgres-backed persistence for synchronized entities and outbox events.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx runs fn in one transaction with app.user_id set for row level security.
func (s *Store) InTx(ctx context.Context, userID string, fn func(domain.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.user_id', $1, true)", userID); err != nil {
		return err
	}

	wrapped := &pgTx{tx: tx, userID: userID}
	if err = fn(wrapped); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return err
	}
	if wrapped.wrote {
		observability.RecordSyncCommitted(time.Now().UTC())
	}
	return nil
}

type pgTx struct {
	tx     pgx.Tx
	userID string
	wrote  bool
}

func (t *pgTx) Exercises() domain.Collection[domain.Exercise] {
	return &table[domain.Exercise, *domain.Exercise]{tx: t, def: exerciseTable}
}

func (t *pgTx) Plans() domain.Collection[domain.WorkoutPlan] {
	return &table[domain.WorkoutPlan, *domain.WorkoutPlan]{tx: t, def: planTable}
}

func (t *pgTx) Entries() domain.Collection[domain.WorkoutEntry] {
	return &table[domain.WorkoutEntry, *domain.WorkoutEntry]{tx: t, def: entryTable}
}

// RecordEvents writes one outbox row per envelope inside the sync transaction.
func (t *pgTx) RecordEvents(ctx context.Context, events []platformevents.Envelope) error {
	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	for _, evt := range events {
		meta, ok := eventCatalog[evt.EventType]
		if !ok {
			return fmt.Errorf("unknown event type: %s", evt.EventType)
		}
		body, err := json.Marshal(evt.Payload)
		if err != nil {
			return err
		}
		if _, err := t.tx.Exec(ctx, stmt,
			t.userID,
			evt.AggregateType,
			evt.AggregateID,
			evt.EventType,
			meta.Topic,
			meta.SchemaSubject,
			meta.PartitionKeyFn(evt),
			body,
			dedupeKey(evt),
		); err != nil {
			return err
		}
	}
	t.wrote = t.wrote || len(events) > 0
	return nil
}

func dedupeKey(evt platformevents.Envelope) string {
	if changed, ok := evt.Payload.(platformevents.EntityChanged); ok {
		return fmt.Sprintf("%s:%s:v%d", evt.AggregateType, evt.AggregateID, changed.Version)
	}
	return fmt.Sprintf("%s:%s:%s", evt.AggregateType, evt.AggregateID, evt.EventType)
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(platformevents.Envelope) string
}

var eventCatalog = map[string]EventMetadata{
	platformevents.TypeEntityChanged: {
		Topic:         "sync_entity_changed",
		SchemaSubject: "sync_entity_changed-value",
		PartitionKeyFn: func(e platformevents.Envelope) string {
			return fmt.Sprintf("%s:%s", e.UserID, e.AggregateID)
		},
	},
	platformevents.TypeSyncConflictDetected: {
		Topic:         "sync_conflicts",
		SchemaSubject: "sync_conflicts-value",
		PartitionKeyFn: func(e platformevents.Envelope) string {
			return e.UserID
		},
	},
}

// table is the generic collection over one entity table. Every statement filters by user_id
// in addition to the row level security policy.
type table[T any, PT domain.Entity[T]] struct {
	tx  *pgTx
	def tableDef[T]
}

// tableDef lists the kind-specific columns after the shared sync columns.
type tableDef[T any] struct {
	name    string
	columns []string
	values  func(*T) []any
	targets func(*T) []any
}

var metaColumns = []string{"id", "user_id", "version", "created_at", "updated_at", "is_deleted", "deleted_at", "last_modified_by_device"}

func (tb *table[T, PT]) ChangedSince(ctx context.Context, since *time.Time) ([]T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE user_id=$1 AND ($2::timestamptz IS NULL OR updated_at >= $2) ORDER BY created_at, id`,
		tb.selectList(), tb.def.name)
	return tb.query(ctx, query, tb.tx.userID, since)
}

func (tb *table[T, PT]) All(ctx context.Context) ([]T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE user_id=$1 ORDER BY created_at, id`, tb.selectList(), tb.def.name)
	return tb.query(ctx, query, tb.tx.userID)
}

func (tb *table[T, PT]) Insert(ctx context.Context, entity T) error {
	meta := PT(&entity).Meta()
	meta.UserID = tb.tx.userID

	columns := append(append([]string{}, metaColumns...), tb.def.columns...)
	args := append(metaValues(meta), tb.def.values(&entity)...)
	stmt := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`, tb.def.name, joinColumns(columns), placeholders(1, len(columns)))

	if _, err := tb.tx.tx.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", domain.ErrEntityExists, pgErr.Detail)
		}
		return err
	}
	tb.tx.wrote = true
	return nil
}

func (tb *table[T, PT]) Update(ctx context.Context, entity T) error {
	meta := PT(&entity).Meta()

	set := []string{"version", "updated_at", "is_deleted", "deleted_at", "last_modified_by_device"}
	set = append(set, tb.def.columns...)
	args := []any{meta.Version, meta.UpdatedAt, meta.IsDeleted, meta.DeletedAt, meta.LastModifiedByDevice}
	args = append(args, tb.def.values(&entity)...)

	assignments := make([]string, len(set))
	for i, column := range set {
		assignments[i] = fmt.Sprintf("%s=$%d", column, i+1)
	}
	n := len(set)
	stmt := fmt.Sprintf(`UPDATE %s SET %s WHERE user_id=$%d AND id=$%d AND version=$%d`,
		tb.def.name, joinColumns(assignments), n+1, n+2, n+3)
	args = append(args, tb.tx.userID, meta.ID, meta.Version-1)

	tag, err := tb.tx.tx.Exec(ctx, stmt, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		tb.tx.wrote = true
		return nil
	}

	var exists bool
	check := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE user_id=$1 AND id=$2)`, tb.def.name)
	if err := tb.tx.tx.QueryRow(ctx, check, tb.tx.userID, meta.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrEntityNotFound
	}
	return domain.ErrConcurrentModification
}

func (tb *table[T, PT]) query(ctx context.Context, query string, args ...any) ([]T, error) {
	rows, err := tb.tx.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]T, 0)
	for rows.Next() {
		var entity T
		meta := PT(&entity).Meta()
		targets := append(metaTargets(meta), tb.def.targets(&entity)...)
		if err := rows.Scan(targets...); err != nil {
			return nil, err
		}
		results = append(results, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (tb *table[T, PT]) selectList() string {
	return joinColumns(append(append([]string{}, metaColumns...), tb.def.columns...))
}

func metaValues(m *domain.SyncMeta) []any {
	return []any{m.ID, m.UserID, m.Version, m.CreatedAt, m.UpdatedAt, m.IsDeleted, m.DeletedAt, m.LastModifiedByDevice}
}

func metaTargets(m *domain.SyncMeta) []any {
	return []any{&m.ID, &m.UserID, &m.Version, &m.CreatedAt, &m.UpdatedAt, &m.IsDeleted, &m.DeletedAt, &m.LastModifiedByDevice}
}
