package mirror

import (
	"context"
	"encoding/json"
	"log/slog"

	"pomolink/internal/db"
	"pomolink/internal/types"
)

// Projector applies membership events to the mirror tables. Every event
// applies inside one transaction together with its dedupe record, so a
// redelivered queue message is a no-op.
type Projector struct {
	pool   db.Pool
	clock  types.Clock
	logger *slog.Logger
}

// NewProjector constructs a Projector. A nil clock defaults to the real
// system clock.
func NewProjector(pool db.Pool, clock types.Clock, logger *slog.Logger) *Projector {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Projector{pool: pool, clock: clock, logger: logger}
}

// ApplyMessage parses a queue message body and applies it.
func (p *Projector) ApplyMessage(ctx context.Context, body []byte) error {
	var evt types.MembershipEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidJSON, "malformed membership event", err)
	}
	return p.Apply(ctx, &evt)
}

// Apply projects one membership event. Already-applied events are skipped.
func (p *Projector) Apply(ctx context.Context, evt *types.MembershipEvent) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	repo := db.NewMirrorRepository(tx)
	fresh, err := repo.MarkApplied(ctx, evt.ID, p.clock.Now())
	if err != nil {
		return err
	}
	if !fresh {
		p.logger.DebugContext(ctx, "skipping already-applied event",
			slog.String("event_id", evt.ID),
		)
		return nil
	}

	switch evt.EventType {
	case types.MembershipJoined, types.MembershipRoleChanged:
		err = repo.UpsertMembership(ctx, evt)
	case types.MembershipLeft:
		err = repo.DeleteMembership(ctx, evt.RoomID, evt.UserID)
	case types.MembershipRoomDeleted:
		err = repo.DeleteRoom(ctx, evt.RoomID)
	default:
		p.logger.WarnContext(ctx, "unknown membership event type",
			slog.String("event_id", evt.ID),
			slog.String("event_type", string(evt.EventType)),
		)
	}
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit projection", err)
	}

	p.logger.InfoContext(ctx, "membership event projected",
		slog.String("event_id", evt.ID),
		slog.String("event_type", string(evt.EventType)),
		slog.String("room_id", evt.RoomID),
	)
	return nil
}
