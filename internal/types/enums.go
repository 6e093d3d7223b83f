package types

// PlanTier identifies the subscription plan for a user.
// This is the single canonical tier enum; all limit lookups key off it.
type PlanTier string

const (
	PlanFree  PlanTier = "FREE"
	PlanBasic PlanTier = "BASIC"
	PlanPro   PlanTier = "PRO"
)

// ParticipantRole defines the role a user holds within a room.
// A room has exactly one PERFORMER slot; everyone else is a PLANNER.
type ParticipantRole string

const (
	RolePlanner   ParticipantRole = "PLANNER"
	RolePerformer ParticipantRole = "PERFORMER"
)

// InvitationStatus tracks the lifecycle of a pending membership offer.
// ACCEPTED, REJECTED and EXPIRED are terminal and immutable.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "PENDING"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationRejected InvitationStatus = "REJECTED"
	InvitationExpired  InvitationStatus = "EXPIRED"
)

// InviteMethod identifies how an invitation was delivered.
type InviteMethod string

const (
	InviteEmail  InviteMethod = "EMAIL"
	InviteLink   InviteMethod = "LINK"
	InviteDirect InviteMethod = "DIRECT"
)

// ProposalStatus tracks performer-submitted task drafts through planner review.
// APPROVED and REJECTED are terminal.
type ProposalStatus string

const (
	ProposalPending  ProposalStatus = "PENDING"
	ProposalApproved ProposalStatus = "APPROVED"
	ProposalRejected ProposalStatus = "REJECTED"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "OPEN"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskDone       TaskStatus = "DONE"
)

// LimitScope identifies which quota boundary denied an upload admission check,
// so the client can explain whether the user's or the room's ceiling was hit.
type LimitScope string

const (
	LimitScopeUser LimitScope = "USER"
	LimitScopeRoom LimitScope = "ROOM"
)

// PointReason categorizes point-history entries.
type PointReason string

const (
	PointSubmissionBonus PointReason = "SUBMISSION"
	PointPomodoro        PointReason = "POMODORO"
)

// MembershipEventType identifies the kind of membership change recorded in
// the outbox for projection into the secondary store.
type MembershipEventType string

const (
	MembershipJoined      MembershipEventType = "participant.joined"
	MembershipLeft        MembershipEventType = "participant.left"
	MembershipRoleChanged MembershipEventType = "participant.role_changed"
	MembershipRoomDeleted MembershipEventType = "room.deleted"
)

// SubscriptionStatus represents the state of a billing subscription as
// reported by the payment provider.
type SubscriptionStatus string

const (
	SubStatusActive   SubscriptionStatus = "active"
	SubStatusPastDue  SubscriptionStatus = "past_due"
	SubStatusCanceled SubscriptionStatus = "canceled"
	SubStatusTrialing SubscriptionStatus = "trialing"
)

// Denial codes surfaced in the structured 403/429 limit payload.
// These are the wire-level codes the client keys its upgrade prompts off.
const (
	DenialRoomLimit        = "ROOM_LIMIT_EXCEEDED"
	DenialParticipantLimit = "PARTICIPANT_LIMIT_EXCEEDED"
	DenialRecordingLimit   = "RECORDING_LIMIT_EXCEEDED"
	DenialUploadLimit      = "UPLOAD_LIMIT_EXCEEDED"
)
