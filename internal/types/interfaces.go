package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// Clock abstracts time for testability. All quota day-window math goes
// through a Clock so boundary tests can pin the wall time.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// UserStore defines the data access surface for users needed outside the db
// package (webhook synchronizer, authenticator, admission checks).
type UserStore interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByExternalID(ctx context.Context, externalID string) (*User, error)
	UpsertByEmail(ctx context.Context, u *User) (*User, error)

	// DeleteByExternalID removes the user row. A missing row is NOT an
	// error; identity-provider delete events are retried and duplicated.
	DeleteByExternalID(ctx context.Context, externalID string) error

	UpdatePlan(ctx context.Context, id string, plan PlanTier) error
	AddPoints(ctx context.Context, id string, delta int) error
}

// RoomStore defines the data access surface for rooms.
type RoomStore interface {
	Create(ctx context.Context, room *Room) error
	GetByID(ctx context.Context, id string) (*Room, error)
	GetByInviteCode(ctx context.Context, code string) (*Room, error)
	Delete(ctx context.Context, id string) error
	CountByCreator(ctx context.Context, creatorID string) (int, error)
	InviteCodeExists(ctx context.Context, code string) (bool, error)
	SetMainPlanner(ctx context.Context, roomID string, userID *string) error
}

// ParticipantStore defines the data access surface for room membership rows.
type ParticipantStore interface {
	Get(ctx context.Context, roomID, userID string) (*RoomParticipant, error)
	ListByRoom(ctx context.Context, roomID string) ([]RoomParticipant, error)
	Count(ctx context.Context, roomID string) (int, error)
	CountByRole(ctx context.Context, roomID string, role ParticipantRole) (int, error)
	Remove(ctx context.Context, roomID, userID string) error
}

// Publisher sends a serialized membership event to the mirror transport.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// MetricsCollector records operational telemetry.
type MetricsCollector interface {
	// RecordRequest records API request metrics including latency and count.
	RecordRequest(method, endpoint, status string, duration time.Duration)

	// RecordDenial counts an admission-check denial by limit code.
	RecordDenial(code string)
}
