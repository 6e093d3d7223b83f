package db

import (
	"context"
	"time"

	"pomolink/internal/types"
)

// OutboxRepository provides data access for the membership_outbox table.
//
// Membership changes append an event row in the same transaction as the
// relational write; the publisher later drains unpublished rows to the mirror
// transport. This replaces inline fire-and-forget writes to the secondary
// store: the relational database stays the source of truth and a failed
// mirror write can always be retried from the outbox.
type OutboxRepository struct {
	db DBTX
}

// NewOutboxRepository creates a new OutboxRepository backed by the given
// database connection (pool or transaction).
func NewOutboxRepository(db DBTX) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Append inserts an outbox event. Call inside the transaction performing the
// membership mutation the event describes.
func (r *OutboxRepository) Append(ctx context.Context, evt *types.MembershipEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO membership_outbox (id, event_type, room_id, user_id, role, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		evt.ID,
		evt.EventType,
		evt.RoomID,
		evt.UserID,
		evt.Role,
		evt.OccurredAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append outbox event", err)
	}
	return nil
}

// FetchUnpublished returns up to limit unpublished events in occurrence
// order, locking them against concurrent publishers (SKIP LOCKED so two
// publisher instances never double-send within one polling cycle).
func (r *OutboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]types.MembershipEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, event_type, room_id, user_id, role, occurred_at
		 FROM membership_outbox
		 WHERE published_at IS NULL
		 ORDER BY occurred_at ASC
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to fetch outbox events", err)
	}
	defer rows.Close()

	var out []types.MembershipEvent
	for rows.Next() {
		var evt types.MembershipEvent
		if err := rows.Scan(
			&evt.ID, &evt.EventType, &evt.RoomID, &evt.UserID, &evt.Role, &evt.OccurredAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan outbox row", err)
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating outbox rows", err)
	}
	return out, nil
}

// MarkPublished stamps events as published. Events already stamped are left
// untouched, so republishing after a partial failure is harmless.
func (r *OutboxRepository) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx,
		`UPDATE membership_outbox SET published_at = $1
		 WHERE id = ANY($2) AND published_at IS NULL`,
		at, ids,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark outbox events published", err)
	}
	return nil
}
