package types

import (
	"time"
)

// User is an identity-provider-linked account. Rows are created and updated
// by the identity webhook synchronizer (upsert keyed by email) and removed on
// provider delete events.
type User struct {
	ID         string   `json:"id" db:"id"`
	ExternalID string   `json:"external_id" db:"external_id"`
	Email      string   `json:"email" db:"email"`
	Name       string   `json:"name,omitempty" db:"name"`
	ImageURL   string   `json:"image_url,omitempty" db:"image_url"`
	Plan       PlanTier `json:"plan" db:"plan"`

	// NotifyEmail controls whether the user receives email notifications.
	NotifyEmail bool `json:"notify_email" db:"notify_email"`

	Points    int       `json:"points" db:"points"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Room is a collaboration space joined via a unique invite code.
type Room struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description,omitempty" db:"description"`

	// InviteCode is unique, fixed-length, drawn from an alphabet that
	// excludes visually ambiguous glyphs.
	InviteCode string `json:"invite_code" db:"invite_code"`

	IsPrivate bool   `json:"is_private" db:"is_private"`
	CreatorID string `json:"creator_id" db:"creator_id"`

	// MainPlannerID is set to the creator at creation time and can later be
	// transferred; nil only for rooms whose main planner slot was vacated.
	MainPlannerID *string `json:"main_planner_id,omitempty" db:"main_planner_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RoomParticipant is the join row between User and Room carrying a role.
// Invariant: at most one PERFORMER row per room (backed by a partial unique
// index); the creator's row is only removed via room deletion.
type RoomParticipant struct {
	RoomID   string          `json:"room_id" db:"room_id"`
	UserID   string          `json:"user_id" db:"user_id"`
	Role     ParticipantRole `json:"role" db:"role"`
	JoinedAt time.Time       `json:"joined_at" db:"joined_at"`
}

// Invitation is a pending membership offer. Email and ReceiverID apply
// depending on the delivery method; expiry is issued 7 days out and applied
// lazily when the invitation is read or acted on past its deadline.
type Invitation struct {
	ID         string           `json:"id" db:"id"`
	RoomID     string           `json:"room_id" db:"room_id"`
	Email      string           `json:"email,omitempty" db:"email"`
	ReceiverID *string          `json:"receiver_id,omitempty" db:"receiver_id"`
	Role       ParticipantRole  `json:"role" db:"role"`
	Method     InviteMethod     `json:"method" db:"method"`
	SenderID   string           `json:"sender_id" db:"sender_id"`
	Status     InvitationStatus `json:"status" db:"status"`
	ExpiresAt  time.Time        `json:"expires_at" db:"expires_at"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at" db:"updated_at"`
}

// Task is a planner-owned work item.
type Task struct {
	ID          string     `json:"id" db:"id"`
	RoomID      string     `json:"room_id" db:"room_id"`
	CreatorID   string     `json:"creator_id" db:"creator_id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description,omitempty" db:"description"`
	Status      TaskStatus `json:"status" db:"status"`
	DueAt       *time.Time `json:"due_at,omitempty" db:"due_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// TaskProposal is a performer-submitted task draft awaiting planner review.
// Approval transactionally creates the corresponding Task.
type TaskProposal struct {
	ID          string         `json:"id" db:"id"`
	RoomID      string         `json:"room_id" db:"room_id"`
	ProposerID  string         `json:"proposer_id" db:"proposer_id"`
	Title       string         `json:"title" db:"title"`
	Description string         `json:"description,omitempty" db:"description"`
	Status      ProposalStatus `json:"status" db:"status"`
	ReviewerID  *string        `json:"reviewer_id,omitempty" db:"reviewer_id"`
	TaskID      *string        `json:"task_id,omitempty" db:"task_id"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// RecordingUsage is one row per completed recording upload. The created_at
// date drives the daily-count aggregation for the recording quota.
type RecordingUsage struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	RoomID      string    `json:"room_id" db:"room_id"`
	SessionID   *string   `json:"session_id,omitempty" db:"session_id"`
	SizeBytes   int64     `json:"size_bytes" db:"size_bytes"`
	DurationSec int       `json:"duration_sec" db:"duration_sec"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Upload is one row per submitted work artifact. Used for the
// first-submission-per-day point bonus and the daily upload ceilings.
type Upload struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	RoomID    string    `json:"room_id" db:"room_id"`
	FileName  string    `json:"file_name" db:"file_name"`
	SizeBytes int64     `json:"size_bytes" db:"size_bytes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PointEntry records a single point-history mutation.
type PointEntry struct {
	ID        string      `json:"id" db:"id"`
	UserID    string      `json:"user_id" db:"user_id"`
	RoomID    string      `json:"room_id" db:"room_id"`
	Reason    PointReason `json:"reason" db:"reason"`
	Points    int         `json:"points" db:"points"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// PlanLimits defines the numeric ceilings attached to a plan tier.
// A zero value never means "unlimited" here; every tier has explicit limits.
type PlanLimits struct {
	MaxRooms            int `json:"max_rooms"`
	MaxParticipants     int `json:"max_participants"`
	MaxDailyRecordings  int `json:"max_daily_recordings"`
	RetentionDays       int `json:"retention_days"`
	MaxDailyUploadsUser int `json:"max_daily_uploads_user"`
	MaxDailyUploadsRoom int `json:"max_daily_uploads_room"`
	PriceCentsMonthly   int `json:"price_cents_monthly"`
}

// Decision is the result of an admission check: whether the action is
// admitted, plus the usage metadata the client needs to render an upgrade
// prompt on denial.
type Decision struct {
	Allowed      bool       `json:"allowed"`
	CurrentCount int        `json:"current_count"`
	MaxCount     int        `json:"max_count"`
	PlanType     PlanTier   `json:"plan_type"`
	LimitScope   LimitScope `json:"limit_scope,omitempty"`
}

// LimitDenial is the structured 403/429 payload returned when an admission
// check denies an action. The client renders this as an upgrade prompt.
type LimitDenial struct {
	Error        string     `json:"error"`
	Code         string     `json:"code,omitempty"`
	CurrentCount int        `json:"currentCount"`
	MaxCount     int        `json:"maxCount"`
	PlanType     PlanTier   `json:"planType"`
	NeedsUpgrade bool       `json:"needsUpgrade,omitempty"`
	LimitType    LimitScope `json:"limitType,omitempty"`
}

// JoinResult is the success payload of the join-by-code endpoint.
// AlreadyJoined is true on idempotent repeat joins; Role is set only when a
// new participant row was created.
type JoinResult struct {
	AlreadyJoined bool            `json:"alreadyJoined"`
	RoomID        string          `json:"roomId"`
	Role          ParticipantRole `json:"role,omitempty"`
}

// UsageSnapshot combines plan limits with current consumption for the
// dashboard usage view.
type UsageSnapshot struct {
	Plan            PlanTier   `json:"plan"`
	Limits          PlanLimits `json:"limits"`
	RoomsCreated    int        `json:"rooms_created"`
	RecordingsToday int        `json:"recordings_today"`
	UploadsToday    int        `json:"uploads_today"`
	Points          int        `json:"points"`
}

// MembershipEvent is the outbox row mirroring a membership change into the
// secondary store. Events are appended in the same transaction as the
// relational write and drained asynchronously by the publisher.
type MembershipEvent struct {
	ID          string              `json:"id" db:"id"`
	EventType   MembershipEventType `json:"event_type" db:"event_type"`
	RoomID      string              `json:"room_id" db:"room_id"`
	UserID      string              `json:"user_id,omitempty" db:"user_id"`
	Role        ParticipantRole     `json:"role,omitempty" db:"role"`
	OccurredAt  time.Time           `json:"occurred_at" db:"occurred_at"`
	PublishedAt *time.Time          `json:"-" db:"published_at"`
}
