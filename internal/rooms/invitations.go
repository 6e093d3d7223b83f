package rooms

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pomolink/internal/types"
)

// invitationTTL is how far out new invitations expire. Expiry is applied
// lazily at read time rather than by a background job.
const invitationTTL = 7 * 24 * time.Hour

// InvitationStore is the data access surface the invitation flows need.
type InvitationStore interface {
	Create(ctx context.Context, inv *types.Invitation) error
	GetByID(ctx context.Context, id string) (*types.Invitation, error)
	ListByRoom(ctx context.Context, roomID string) ([]types.Invitation, error)
	Transition(ctx context.Context, id string, to types.InvitationStatus) error
	Delete(ctx context.Context, id string) error
}

// Joiner adds a user to a room, applying the role rules and the participant
// ceiling. Satisfied by *Service.
type Joiner interface {
	JoinRoom(ctx context.Context, roomID, userID string, role *types.ParticipantRole) (*types.JoinResult, error)
}

// InvitationService implements creating, answering, and withdrawing
// invitations. Acceptance delegates the actual join to the rooms service so
// invited joins obey the same ceilings and role rules as code joins.
type InvitationService struct {
	invitations  InvitationStore
	rooms        types.RoomStore
	participants types.ParticipantStore
	users        types.UserStore
	joiner       Joiner
	clock        types.Clock
	logger       *slog.Logger
}

// NewInvitationService constructs an InvitationService. A nil clock defaults
// to the real system clock.
func NewInvitationService(
	invitations InvitationStore,
	rooms types.RoomStore,
	participants types.ParticipantStore,
	users types.UserStore,
	joiner Joiner,
	clock types.Clock,
	logger *slog.Logger,
) *InvitationService {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InvitationService{
		invitations:  invitations,
		rooms:        rooms,
		participants: participants,
		users:        users,
		joiner:       joiner,
		clock:        clock,
		logger:       logger,
	}
}

// CreateInvitationInput carries the validated create-invitation request.
type CreateInvitationInput struct {
	Email      string                `json:"email" validate:"omitempty,email"`
	ReceiverID string                `json:"receiver_id" validate:"omitempty"`
	Role       types.ParticipantRole `json:"role" validate:"required,oneof=PLANNER PERFORMER"`
	Method     types.InviteMethod    `json:"method" validate:"required,oneof=EMAIL LINK DIRECT"`
}

// Create issues a PENDING invitation expiring seven days out. Only current
// participants of the room can invite.
func (s *InvitationService) Create(ctx context.Context, roomID, senderID string, in CreateInvitationInput) (*types.Invitation, error) {
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, err
	}
	if _, err := s.participants.Get(ctx, roomID, senderID); err != nil {
		if isNotFound(err) {
			return nil, types.NewAppError(types.ErrCodePermissionRole,
				"only room participants can send invitations", nil)
		}
		return nil, err
	}
	if in.Method == types.InviteEmail && in.Email == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"email is required for EMAIL invitations", nil)
	}
	if in.Method == types.InviteDirect && in.ReceiverID == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"receiver_id is required for DIRECT invitations", nil)
	}

	now := s.clock.Now()
	inv := &types.Invitation{
		ID:        "inv_" + uuid.NewString(),
		RoomID:    roomID,
		Email:     in.Email,
		Role:      in.Role,
		Method:    in.Method,
		SenderID:  senderID,
		Status:    types.InvitationPending,
		ExpiresAt: now.Add(invitationTTL),
	}
	if in.ReceiverID != "" {
		inv.ReceiverID = &in.ReceiverID
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "invitation created",
		slog.String("invitation_id", inv.ID),
		slog.String("room_id", roomID),
		slog.String("method", string(in.Method)),
	)
	return inv, nil
}

// ListByRoom returns a room's invitations. Only participants can list them.
func (s *InvitationService) ListByRoom(ctx context.Context, roomID, actorID string) ([]types.Invitation, error) {
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, err
	}
	if _, err := s.participants.Get(ctx, roomID, actorID); err != nil {
		if isNotFound(err) {
			return nil, types.NewAppError(types.ErrCodePermissionRole,
				"only room participants can list invitations", nil)
		}
		return nil, err
	}
	return s.invitations.ListByRoom(ctx, roomID)
}

// Accept answers a PENDING invitation and joins the accepting user to the
// room with the invited role. The join runs first; only a successful join
// flips the invitation to ACCEPTED, so a denial (participant ceiling, taken
// performer slot) leaves the offer PENDING and the receiver can retry once
// capacity frees up. The Transition PENDING guard closes the race where the
// invitation expires or is answered while the join is in flight.
func (s *InvitationService) Accept(ctx context.Context, invitationID, userID string) (*types.JoinResult, error) {
	inv, err := s.invitations.GetByID(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	if inv.Status != types.InvitationPending {
		return nil, types.NewAppError(types.ErrCodeConflictTerminal,
			"invitation already answered or expired", nil)
	}
	if err := s.authorizeReceiver(ctx, inv, userID); err != nil {
		return nil, err
	}

	role := inv.Role
	result, err := s.joiner.JoinRoom(ctx, inv.RoomID, userID, &role)
	if err != nil {
		return nil, err
	}

	if err := s.invitations.Transition(ctx, invitationID, types.InvitationAccepted); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "invitation accepted",
		slog.String("invitation_id", invitationID),
		slog.String("room_id", inv.RoomID),
		slog.String("user_id", userID),
	)
	return result, nil
}

// Reject answers a PENDING invitation negatively. Terminal invitations stay
// immutable.
func (s *InvitationService) Reject(ctx context.Context, invitationID, userID string) error {
	inv, err := s.invitations.GetByID(ctx, invitationID)
	if err != nil {
		return err
	}
	if err := s.authorizeReceiver(ctx, inv, userID); err != nil {
		return err
	}
	if err := s.invitations.Transition(ctx, invitationID, types.InvitationRejected); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "invitation rejected",
		slog.String("invitation_id", invitationID),
		slog.String("user_id", userID),
	)
	return nil
}

// Withdraw deletes a PENDING invitation. Allowed for the sender, the room
// creator, and any planner in the room.
func (s *InvitationService) Withdraw(ctx context.Context, invitationID, actorID string) error {
	inv, err := s.invitations.GetByID(ctx, invitationID)
	if err != nil {
		return err
	}

	if inv.SenderID != actorID {
		room, err := s.rooms.GetByID(ctx, inv.RoomID)
		if err != nil {
			return err
		}
		if room.CreatorID != actorID {
			p, err := s.participants.Get(ctx, inv.RoomID, actorID)
			if err != nil || p.Role != types.RolePlanner {
				return types.NewAppError(types.ErrCodePermissionNotSender,
					"only the sender, the creator, or a planner can withdraw an invitation", nil)
			}
		}
	}

	if err := s.invitations.Delete(ctx, invitationID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "invitation withdrawn",
		slog.String("invitation_id", invitationID),
		slog.String("actor_id", actorID),
	)
	return nil
}

// authorizeReceiver checks that the acting user is the one the invitation
// addresses. LINK invitations are open to whoever holds the link; EMAIL
// invitations match the user's account email; DIRECT invitations match the
// pinned receiver id.
func (s *InvitationService) authorizeReceiver(ctx context.Context, inv *types.Invitation, userID string) error {
	switch inv.Method {
	case types.InviteLink:
		return nil
	case types.InviteDirect:
		if inv.ReceiverID == nil || *inv.ReceiverID != userID {
			return types.NewAppError(types.ErrCodePermissionRole,
				"this invitation is addressed to another user", nil)
		}
		return nil
	case types.InviteEmail:
		user, err := s.users.GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user.Email != inv.Email {
			return types.NewAppError(types.ErrCodePermissionRole,
				"this invitation is addressed to another email", nil)
		}
		return nil
	default:
		return types.NewAppError(types.ErrCodeValidationInvalidEnum,
			"unknown invitation method", nil)
	}
}
