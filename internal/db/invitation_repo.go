package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"pomolink/internal/types"
)

// InvitationRepository provides data access for the invitations table.
//
// Expiry is applied lazily: reads past the deadline flip PENDING rows to
// EXPIRED before returning them, so callers never observe an actionable
// invitation that is already dead.
type InvitationRepository struct {
	db    DBTX
	clock types.Clock
}

// NewInvitationRepository creates a new InvitationRepository backed by the
// given database connection. A nil clock defaults to the real system clock.
func NewInvitationRepository(db DBTX, clock types.Clock) *InvitationRepository {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &InvitationRepository{db: db, clock: clock}
}

const invitationColumns = `i.id, i.room_id, i.email, i.receiver_id, i.role,
	i.method, i.sender_id, i.status, i.expires_at, i.created_at, i.updated_at`

func scanInvitation(row pgx.Row) (*types.Invitation, error) {
	var inv types.Invitation
	err := row.Scan(
		&inv.ID,
		&inv.RoomID,
		&inv.Email,
		&inv.ReceiverID,
		&inv.Role,
		&inv.Method,
		&inv.SenderID,
		&inv.Status,
		&inv.ExpiresAt,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// Create inserts a new invitation. The caller sets the ID ("inv_...") and the
// 7-day expiry before calling.
func (r *InvitationRepository) Create(ctx context.Context, inv *types.Invitation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO invitations (id, room_id, email, receiver_id, role, method,
		 sender_id, status, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`,
		inv.ID,
		inv.RoomID,
		inv.Email,
		inv.ReceiverID,
		inv.Role,
		inv.Method,
		inv.SenderID,
		inv.Status,
		inv.ExpiresAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create invitation", err)
	}
	return nil
}

// GetByID retrieves an invitation, lazily expiring it first if its deadline
// has passed while it was still PENDING.
func (r *InvitationRepository) GetByID(ctx context.Context, id string) (*types.Invitation, error) {
	if err := r.expireIfDue(ctx, id); err != nil {
		return nil, err
	}

	row := r.db.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM invitations i WHERE i.id = $1`,
		id,
	)
	inv, err := scanInvitation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundInvitation, "invitation not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve invitation", err)
	}
	return inv, nil
}

// ListByRoom returns a room's invitations, lazily expiring overdue PENDING
// rows in one statement first.
func (r *InvitationRepository) ListByRoom(ctx context.Context, roomID string) ([]types.Invitation, error) {
	_, err := r.db.Exec(ctx,
		`UPDATE invitations SET status = $1, updated_at = NOW()
		 WHERE room_id = $2 AND status = $3 AND expires_at < $4`,
		types.InvitationExpired, roomID, types.InvitationPending, r.clock.Now(),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to expire invitations", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+invitationColumns+`
		 FROM invitations i
		 WHERE i.room_id = $1
		 ORDER BY i.created_at DESC`,
		roomID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list invitations", err)
	}
	defer rows.Close()

	var out []types.Invitation
	for rows.Next() {
		var inv types.Invitation
		if err := rows.Scan(
			&inv.ID, &inv.RoomID, &inv.Email, &inv.ReceiverID, &inv.Role,
			&inv.Method, &inv.SenderID, &inv.Status, &inv.ExpiresAt,
			&inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan invitation row", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating invitation rows", err)
	}
	return out, nil
}

// Transition moves a PENDING invitation to a terminal status. The WHERE
// clause guards the PENDING precondition so terminal states stay immutable;
// a zero-row update means the invitation was missing or already terminal.
func (r *InvitationRepository) Transition(ctx context.Context, id string, to types.InvitationStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE invitations SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3`,
		to, id, types.InvitationPending,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update invitation", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictTerminal,
			"invitation is not pending", nil)
	}
	return nil
}

// Delete removes an invitation while it is still PENDING. Terminal rows are
// kept for history and cannot be deleted.
func (r *InvitationRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM invitations WHERE id = $1 AND status = $2`,
		id, types.InvitationPending,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete invitation", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictTerminal,
			"invitation is not pending", nil)
	}
	return nil
}

// expireIfDue flips a single overdue PENDING invitation to EXPIRED.
func (r *InvitationRepository) expireIfDue(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE invitations SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3 AND expires_at < $4`,
		types.InvitationExpired, id, types.InvitationPending, r.clock.Now(),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to expire invitation", err)
	}
	return nil
}

// InvitationTTL is how far out new invitations expire.
const InvitationTTL = 7 * 24 * time.Hour
