package db

import (
	"context"
	"time"

	"pomolink/internal/types"
)

// MirrorRepository provides data access for the read-optimized membership
// mirror tables the realtime frontend queries. The projector is the only
// writer; dedupe runs on event id so redelivered queue messages apply once.
type MirrorRepository struct {
	db DBTX
}

// NewMirrorRepository creates a new MirrorRepository backed by the given
// database connection (pool or transaction).
func NewMirrorRepository(db DBTX) *MirrorRepository {
	return &MirrorRepository{db: db}
}

// MarkApplied records that an event id has been projected. Returns false when
// the event was already applied, which tells the projector to skip it.
func (r *MirrorRepository) MarkApplied(ctx context.Context, eventID string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO mirror_applied_events (event_id, applied_at)
		 VALUES ($1, $2)
		 ON CONFLICT (event_id) DO NOTHING`,
		eventID, at,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record applied event", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpsertMembership writes one mirror membership row. Joins and role changes
// both land here.
func (r *MirrorRepository) UpsertMembership(ctx context.Context, evt *types.MembershipEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO mirror_memberships (room_id, user_id, role, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (room_id, user_id)
		 DO UPDATE SET role = EXCLUDED.role, updated_at = EXCLUDED.updated_at`,
		evt.RoomID, evt.UserID, evt.Role, evt.OccurredAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert mirror membership", err)
	}
	return nil
}

// DeleteMembership removes one mirror membership row. Missing rows are fine;
// the relational delete already happened.
func (r *MirrorRepository) DeleteMembership(ctx context.Context, roomID, userID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM mirror_memberships WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete mirror membership", err)
	}
	return nil
}

// DeleteRoom removes all mirror membership rows for a deleted room.
func (r *MirrorRepository) DeleteRoom(ctx context.Context, roomID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM mirror_memberships WHERE room_id = $1`,
		roomID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete mirror room", err)
	}
	return nil
}
