package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pomolink/internal/types"
)

// UserRepository provides data access for the users table. Rows are owned by
// the identity webhook synchronizer; the rest of the system reads them.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new UserRepository backed by the given database
// connection (pool or transaction).
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// userColumns defines the standard set of columns selected for user queries.
// Used consistently across all query methods to avoid column drift.
const userColumns = `u.id, u.external_id, u.email, u.name, u.image_url,
	u.plan, u.notify_email, u.points, u.created_at, u.updated_at`

// scanUser scans a single user row into a types.User struct.
// The columns must match the order defined in userColumns.
func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	err := row.Scan(
		&u.ID,
		&u.ExternalID,
		&u.Email,
		&u.Name,
		&u.ImageURL,
		&u.Plan,
		&u.NotifyEmail,
		&u.Points,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByID retrieves a user by internal id.
// Returns not_found_user if no row exists.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.id = $1`,
		id,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return u, nil
}

// GetByExternalID retrieves a user by the identity provider's id.
func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users u WHERE u.external_id = $1`,
		externalID,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return u, nil
}

// UpsertByEmail inserts or updates a user keyed by email. This is the write
// path for identity-provider user.created/user.updated events: the email is
// the stable join key, while external id, name, and image follow the
// provider's latest state. Plan and points are preserved on update.
func (r *UserRepository) UpsertByEmail(ctx context.Context, u *types.User) (*types.User, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO users (id, external_id, email, name, image_url, plan, notify_email, points, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, NOW(), NOW())
		 ON CONFLICT (email)
		 DO UPDATE SET external_id = EXCLUDED.external_id,
		               name = EXCLUDED.name,
		               image_url = EXCLUDED.image_url,
		               updated_at = NOW()
		 RETURNING `+bareUserColumns,
		u.ID,
		u.ExternalID,
		u.Email,
		u.Name,
		u.ImageURL,
		u.Plan,
		u.NotifyEmail,
	)
	saved, err := scanUser(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to upsert user", err)
	}
	return saved, nil
}

// bareUserColumns is userColumns without the table alias, for RETURNING clauses.
const bareUserColumns = `id, external_id, email, name, image_url,
	plan, notify_email, points, created_at, updated_at`

// DeleteByExternalID removes the user row for the given provider id.
// A missing row is success, not an error: identity-provider delete webhooks
// are retried and duplicated, and the second delivery must also return 200.
func (r *UserRepository) DeleteByExternalID(ctx context.Context, externalID string) error {
	_, err := r.db.Exec(ctx,
		`DELETE FROM users WHERE external_id = $1`,
		externalID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete user", err)
	}
	return nil
}

// UpdatePlan sets the user's plan tier. Used by the billing webhook to apply
// subscription changes.
func (r *UserRepository) UpdatePlan(ctx context.Context, id string, plan types.PlanTier) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET plan = $1, updated_at = NOW() WHERE id = $2`,
		plan,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update user plan", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// AddPoints atomically adjusts the user's denormalized point counter.
func (r *UserRepository) AddPoints(ctx context.Context, id string, delta int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET points = points + $1, updated_at = NOW() WHERE id = $2`,
		delta,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update user points", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}
