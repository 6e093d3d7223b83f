package db

import (
	"context"

	"pomolink/internal/types"
)

// Pool is the connection surface the membership store needs: plain queries
// plus transaction entry. *pgxpool.Pool satisfies it.
type Pool interface {
	DBTX
	TxBeginner
}

// MembershipStore bundles the multi-statement membership flows into single
// transactions. The rooms service decides WHAT should happen (role,
// promotion, ceilings); this store makes it happen atomically, outbox event
// included.
type MembershipStore struct {
	pool Pool
}

// NewMembershipStore creates a MembershipStore over the given pool.
func NewMembershipStore(pool Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

// CreateRoomWithCreator inserts the room, the creator's PLANNER participant
// row, and the joined outbox event in one transaction.
func (s *MembershipStore) CreateRoomWithCreator(ctx context.Context, room *types.Room, evt *types.MembershipEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := NewRoomRepository(tx).Create(ctx, room); err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO room_participants (room_id, user_id, role, joined_at)
		 VALUES ($1, $2, $3, NOW())`,
		room.ID, room.CreatorID, types.RolePlanner,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert creator participant", err)
	}
	if err := NewOutboxRepository(tx).Append(ctx, evt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit room creation", err)
	}
	return nil
}

// Join inserts the participant row, optionally promotes the joiner to main
// planner, and appends the outbox event -- all in one transaction. The
// participant insert re-checks the ceiling inside the statement, so the
// earlier admission check passing does not guarantee success under
// concurrent joins.
//
// Returns false (and commits nothing) when the ceiling was hit.
func (s *MembershipStore) Join(ctx context.Context, p *types.RoomParticipant, maxParticipants int, promoteMainPlanner bool, evt *types.MembershipEvent) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted, err := NewParticipantRepository(tx).InsertIfBelow(ctx, p, maxParticipants)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil
	}

	if promoteMainPlanner {
		if err := NewRoomRepository(tx).SetMainPlanner(ctx, p.RoomID, &p.UserID); err != nil {
			return false, err
		}
	}
	if err := NewOutboxRepository(tx).Append(ctx, evt); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to commit join", err)
	}
	return true, nil
}

// DeleteRoom removes the room (participants cascade) and appends the
// room.deleted outbox event in one transaction.
func (s *MembershipStore) DeleteRoom(ctx context.Context, roomID string, evt *types.MembershipEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := NewOutboxRepository(tx).Append(ctx, evt); err != nil {
		return err
	}
	if err := NewRoomRepository(tx).Delete(ctx, roomID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit room deletion", err)
	}
	return nil
}

// Leave removes a participant row and appends the left outbox event in one
// transaction. When the leaver holds the main planner slot the caller sets
// clearMainPlanner and the slot is vacated in the same transaction.
func (s *MembershipStore) Leave(ctx context.Context, roomID, userID string, clearMainPlanner bool, evt *types.MembershipEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := NewParticipantRepository(tx).Remove(ctx, roomID, userID); err != nil {
		return err
	}
	if clearMainPlanner {
		if err := NewRoomRepository(tx).SetMainPlanner(ctx, roomID, nil); err != nil {
			return err
		}
	}
	if err := NewOutboxRepository(tx).Append(ctx, evt); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit leave", err)
	}
	return nil
}
