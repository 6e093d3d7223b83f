package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pomolink/internal/types"
)

// ParticipantRepository provides data access for the room_participants table.
//
// Two invariants are enforced at this layer rather than in service code:
//   - at most one PERFORMER per room, backed by a partial unique index
//     (room_id) WHERE role = 'PERFORMER';
//   - the participant ceiling, enforced by InsertIfBelow's conditional
//     insert so that concurrent joins cannot both slip past the admission
//     check.
type ParticipantRepository struct {
	db DBTX
}

// NewParticipantRepository creates a new ParticipantRepository backed by the
// given database connection (pool or transaction).
func NewParticipantRepository(db DBTX) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

const participantColumns = `p.room_id, p.user_id, p.role, p.joined_at`

func scanParticipant(row pgx.Row) (*types.RoomParticipant, error) {
	var p types.RoomParticipant
	err := row.Scan(&p.RoomID, &p.UserID, &p.Role, &p.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get retrieves a single membership row.
// Returns not_found_user when the user is not a participant of the room.
func (r *ParticipantRepository) Get(ctx context.Context, roomID, userID string) (*types.RoomParticipant, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+participantColumns+`
		 FROM room_participants p
		 WHERE p.room_id = $1 AND p.user_id = $2`,
		roomID, userID,
	)
	p, err := scanParticipant(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "not a participant of this room", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve participant", err)
	}
	return p, nil
}

// ListByRoom returns all membership rows for a room ordered by join time.
func (r *ParticipantRepository) ListByRoom(ctx context.Context, roomID string) ([]types.RoomParticipant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+participantColumns+`
		 FROM room_participants p
		 WHERE p.room_id = $1
		 ORDER BY p.joined_at ASC`,
		roomID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list participants", err)
	}
	defer rows.Close()

	var out []types.RoomParticipant
	for rows.Next() {
		var p types.RoomParticipant
		if err := rows.Scan(&p.RoomID, &p.UserID, &p.Role, &p.JoinedAt); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan participant row", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating participant rows", err)
	}
	return out, nil
}

// Count returns the total number of current participants in a room.
func (r *ParticipantRepository) Count(ctx context.Context, roomID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM room_participants WHERE room_id = $1`,
		roomID,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count participants", err)
	}
	return count, nil
}

// CountByRole returns the number of participants holding the given role.
// CountByRole(roomID, RolePerformer) == 0 is the "performer slot open" test.
func (r *ParticipantRepository) CountByRole(ctx context.Context, roomID string, role types.ParticipantRole) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM room_participants WHERE room_id = $1 AND role = $2`,
		roomID, role,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count participants by role", err)
	}
	return count, nil
}

// InsertIfBelow inserts the participant row only while the room's current
// participant count is below max. The count guard runs inside the INSERT
// statement itself, so two concurrent joins cannot both pass an
// application-level check and overfill the room.
//
// Returns true when the row was inserted, false when the ceiling was reached
// between the admission check and this insert.
func (r *ParticipantRepository) InsertIfBelow(ctx context.Context, p *types.RoomParticipant, max int) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO room_participants (room_id, user_id, role, joined_at)
		 SELECT $1, $2, $3, NOW()
		 WHERE (SELECT COUNT(*) FROM room_participants WHERE room_id = $1) < $4`,
		p.RoomID,
		p.UserID,
		p.Role,
		max,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to insert participant", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Remove deletes a membership row. The service layer guarantees the creator's
// row is never removed outside room deletion.
func (r *ParticipantRepository) Remove(ctx context.Context, roomID, userID string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM room_participants WHERE room_id = $1 AND user_id = $2`,
		roomID, userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to remove participant", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "not a participant of this room", nil)
	}
	return nil
}
