package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pomolink/internal/types"
)

// RoomRepository provides data access for the rooms table.
type RoomRepository struct {
	db DBTX
}

// NewRoomRepository creates a new RoomRepository backed by the given database
// connection (pool or transaction).
func NewRoomRepository(db DBTX) *RoomRepository {
	return &RoomRepository{db: db}
}

// roomColumns defines the standard set of columns selected for room queries.
const roomColumns = `r.id, r.name, r.description, r.invite_code, r.is_private,
	r.creator_id, r.main_planner_id, r.created_at, r.updated_at`

// scanRoom scans a single room row into a types.Room struct.
// The columns must match the order defined in roomColumns.
func scanRoom(row pgx.Row) (*types.Room, error) {
	var room types.Room
	err := row.Scan(
		&room.ID,
		&room.Name,
		&room.Description,
		&room.InviteCode,
		&room.IsPrivate,
		&room.CreatorID,
		&room.MainPlannerID,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &room, nil
}

// Create inserts a new room record. The caller must set the ID ("room_..."),
// the unique invite code, and required fields before calling.
func (r *RoomRepository) Create(ctx context.Context, room *types.Room) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO rooms (id, name, description, invite_code, is_private,
		 creator_id, main_planner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`,
		room.ID,
		room.Name,
		room.Description,
		room.InviteCode,
		room.IsPrivate,
		room.CreatorID,
		room.MainPlannerID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create room", err)
	}
	return nil
}

// GetByID retrieves a room by its ID.
// Returns not_found_room if no row exists.
func (r *RoomRepository) GetByID(ctx context.Context, id string) (*types.Room, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms r WHERE r.id = $1`,
		id,
	)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRoom, "room not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve room", err)
	}
	return room, nil
}

// GetByInviteCode resolves a room from its invite code. This is the entry
// point of the join-by-code flow.
func (r *RoomRepository) GetByInviteCode(ctx context.Context, code string) (*types.Room, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+roomColumns+` FROM rooms r WHERE r.invite_code = $1`,
		code,
	)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRoom, "room not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve room", err)
	}
	return room, nil
}

// Delete removes a room. Participant rows, invitations, and outbox events
// cascade via foreign keys. Authorization (creator only) is the service
// layer's responsibility.
func (r *RoomRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM rooms WHERE id = $1`,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete room", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRoom, "room not found", nil)
	}
	return nil
}

// CountByCreator returns the number of rooms created by the given user.
// Drives the CanCreateRoom admission check.
func (r *RoomRepository) CountByCreator(ctx context.Context, creatorID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM rooms WHERE creator_id = $1`,
		creatorID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count rooms", err)
	}
	return count, nil
}

// InviteCodeExists reports whether a room already holds the given invite
// code. Used by the generator's collision check.
func (r *RoomRepository) InviteCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM rooms WHERE invite_code = $1)`,
		code,
	).Scan(&exists)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to check invite code", err)
	}
	return exists, nil
}

// SetMainPlanner updates the room's main planner reference. Pass nil to
// vacate the slot. Authorization rules live in the rooms service.
func (r *RoomRepository) SetMainPlanner(ctx context.Context, roomID string, userID *string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE rooms SET main_planner_id = $1, updated_at = NOW() WHERE id = $2`,
		userID,
		roomID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set main planner", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundRoom, "room not found", nil)
	}
	return nil
}
