package rooms

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"pomolink/internal/types"
)

// Admission is the subset of the admission checks the membership flows need.
type Admission interface {
	CanCreateRoom(ctx context.Context, userID string) (types.Decision, error)
	CanAddParticipant(ctx context.Context, roomID string) (types.Decision, error)
}

// CodeGenerator draws unique invite codes.
type CodeGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// MembershipTx is the transactional surface for membership mutations. Each
// call commits the relational change together with its outbox event.
type MembershipTx interface {
	CreateRoomWithCreator(ctx context.Context, room *types.Room, evt *types.MembershipEvent) error
	Join(ctx context.Context, p *types.RoomParticipant, maxParticipants int, promoteMainPlanner bool, evt *types.MembershipEvent) (bool, error)
	DeleteRoom(ctx context.Context, roomID string, evt *types.MembershipEvent) error
	Leave(ctx context.Context, roomID, userID string, clearMainPlanner bool, evt *types.MembershipEvent) error
}

// Service implements room lifecycle and the join/role rules.
type Service struct {
	rooms        types.RoomStore
	participants types.ParticipantStore
	membership   MembershipTx
	admission    Admission
	codes        CodeGenerator
	clock        types.Clock
	logger       *slog.Logger
}

// NewService constructs the rooms service. A nil clock defaults to the real
// system clock.
func NewService(
	rooms types.RoomStore,
	participants types.ParticipantStore,
	membership MembershipTx,
	admission Admission,
	codes CodeGenerator,
	clock types.Clock,
	logger *slog.Logger,
) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		rooms:        rooms,
		participants: participants,
		membership:   membership,
		admission:    admission,
		codes:        codes,
		clock:        clock,
		logger:       logger,
	}
}

// CreateRoomInput carries the validated create-room request fields.
type CreateRoomInput struct {
	Name        string `json:"name" validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"max=500"`
	IsPrivate   bool   `json:"is_private"`
}

// CreateRoom creates a room for the given user after checking their room
// quota. The creator joins as a PLANNER and holds the main planner slot from
// the start; the room, the creator's membership row, and the joined event
// commit together.
func (s *Service) CreateRoom(ctx context.Context, creatorID string, in CreateRoomInput) (*types.Room, error) {
	decision, err := s.admission.CanCreateRoom(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, types.NewLimitError(types.ErrCodeLimitRooms, types.DenialRoomLimit,
			"room limit reached for your plan", decision)
	}

	code, err := s.codes.Generate(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	room := &types.Room{
		ID:            "room_" + uuid.NewString(),
		Name:          in.Name,
		Description:   in.Description,
		InviteCode:    code,
		IsPrivate:     in.IsPrivate,
		CreatorID:     creatorID,
		MainPlannerID: &creatorID,
	}
	evt := &types.MembershipEvent{
		ID:         "evt_" + uuid.NewString(),
		EventType:  types.MembershipJoined,
		RoomID:     room.ID,
		UserID:     creatorID,
		Role:       types.RolePlanner,
		OccurredAt: now,
	}
	if err := s.membership.CreateRoomWithCreator(ctx, room, evt); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "room created",
		slog.String("room_id", room.ID),
		slog.String("creator_id", creatorID),
	)
	return room, nil
}

// GetRoom returns a room by id.
func (s *Service) GetRoom(ctx context.Context, roomID string) (*types.Room, error) {
	return s.rooms.GetByID(ctx, roomID)
}

// ListParticipants returns a room's membership ordered by join time.
func (s *Service) ListParticipants(ctx context.Context, roomID string) ([]types.RoomParticipant, error) {
	if _, err := s.rooms.GetByID(ctx, roomID); err != nil {
		return nil, err
	}
	return s.participants.ListByRoom(ctx, roomID)
}

// JoinByCode adds the user to the room behind the invite code.
//
// The flow, in order:
//  1. resolve the code (unknown code is a plain 404);
//  2. repeat joins are idempotent: an existing member gets alreadyJoined
//     with no side effects, never a limit error;
//  3. the participant ceiling is checked against the room's plan source;
//  4. role assignment: the performer slot goes to the first joiner while it
//     is open, everyone after that is a PLANNER;
//  5. a PLANNER joining a room whose main planner slot is vacant and which
//     has no other planners is promoted to main planner.
//
// The insert, the promotion, and the outbox event commit atomically, and the
// insert re-checks the ceiling so concurrent joins cannot overfill the room.
func (s *Service) JoinByCode(ctx context.Context, code, userID string) (*types.JoinResult, error) {
	room, err := s.rooms.GetByInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, room, userID, nil)
}

// JoinRoom adds the user directly to a room, used by invitation acceptance.
// When the invitation pins a role, it wins over the default role assignment
// unless the performer slot is already taken.
func (s *Service) JoinRoom(ctx context.Context, roomID, userID string, role *types.ParticipantRole) (*types.JoinResult, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s.join(ctx, room, userID, role)
}

func (s *Service) join(ctx context.Context, room *types.Room, userID string, wantRole *types.ParticipantRole) (*types.JoinResult, error) {
	if _, err := s.participants.Get(ctx, room.ID, userID); err == nil {
		return &types.JoinResult{AlreadyJoined: true, RoomID: room.ID}, nil
	} else if !isNotFound(err) {
		return nil, err
	}

	decision, err := s.admission.CanAddParticipant(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, types.NewLimitError(types.ErrCodeLimitParticipants, types.DenialParticipantLimit,
			"participant limit reached for this room", decision)
	}

	role, err := s.assignRole(ctx, room.ID, wantRole)
	if err != nil {
		return nil, err
	}

	promote := false
	if role == types.RolePlanner && room.MainPlannerID == nil {
		plannerCount, err := s.participants.CountByRole(ctx, room.ID, types.RolePlanner)
		if err != nil {
			return nil, err
		}
		promote = plannerCount == 0
	}

	now := s.clock.Now()
	p := &types.RoomParticipant{
		RoomID: room.ID,
		UserID: userID,
		Role:   role,
	}
	evt := &types.MembershipEvent{
		ID:         "evt_" + uuid.NewString(),
		EventType:  types.MembershipJoined,
		RoomID:     room.ID,
		UserID:     userID,
		Role:       role,
		OccurredAt: now,
	}

	inserted, err := s.membership.Join(ctx, p, decision.MaxCount, promote, evt)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Lost the race against concurrent joins; report the ceiling.
		decision.Allowed = false
		decision.CurrentCount = decision.MaxCount
		return nil, types.NewLimitError(types.ErrCodeLimitParticipants, types.DenialParticipantLimit,
			"participant limit reached for this room", decision)
	}

	s.logger.InfoContext(ctx, "participant joined",
		slog.String("room_id", room.ID),
		slog.String("user_id", userID),
		slog.String("role", string(role)),
		slog.Bool("main_planner", promote),
	)
	return &types.JoinResult{RoomID: room.ID, Role: role}, nil
}

// assignRole decides the joiner's role. The first joiner takes the PERFORMER
// slot while it is open; after that everyone is a PLANNER. A requested role
// overrides the default, but a requested PERFORMER is refused once the slot
// is taken.
func (s *Service) assignRole(ctx context.Context, roomID string, want *types.ParticipantRole) (types.ParticipantRole, error) {
	performers, err := s.participants.CountByRole(ctx, roomID, types.RolePerformer)
	if err != nil {
		return "", err
	}
	if want != nil {
		if *want == types.RolePerformer && performers > 0 {
			return "", types.NewAppError(types.ErrCodeConflictPerformer,
				"the performer slot is already taken", nil)
		}
		return *want, nil
	}
	if performers == 0 {
		return types.RolePerformer, nil
	}
	return types.RolePlanner, nil
}

// DeleteRoom removes a room and its membership. Creator only.
func (s *Service) DeleteRoom(ctx context.Context, roomID, actorID string) error {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.CreatorID != actorID {
		return types.NewAppError(types.ErrCodePermissionNotCreator,
			"only the room creator can delete the room", nil)
	}

	evt := &types.MembershipEvent{
		ID:         "evt_" + uuid.NewString(),
		EventType:  types.MembershipRoomDeleted,
		RoomID:     roomID,
		OccurredAt: s.clock.Now(),
	}
	if err := s.membership.DeleteRoom(ctx, roomID, evt); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "room deleted",
		slog.String("room_id", roomID),
		slog.String("actor_id", actorID),
	)
	return nil
}

// Leave removes the caller's own membership row. The creator cannot leave;
// their row only goes away with the room. A leaving main planner vacates the
// slot in the same transaction.
func (s *Service) Leave(ctx context.Context, roomID, userID string) error {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.CreatorID == userID {
		return types.NewAppError(types.ErrCodePermissionRole,
			"the creator cannot leave the room; delete it instead", nil)
	}

	p, err := s.participants.Get(ctx, roomID, userID)
	if err != nil {
		return err
	}

	clearMainPlanner := room.MainPlannerID != nil && *room.MainPlannerID == userID
	evt := &types.MembershipEvent{
		ID:         "evt_" + uuid.NewString(),
		EventType:  types.MembershipLeft,
		RoomID:     roomID,
		UserID:     userID,
		Role:       p.Role,
		OccurredAt: s.clock.Now(),
	}
	if err := s.membership.Leave(ctx, roomID, userID, clearMainPlanner, evt); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "participant left",
		slog.String("room_id", roomID),
		slog.String("user_id", userID),
		slog.Bool("main_planner_vacated", clearMainPlanner),
	)
	return nil
}

// TransferMainPlanner hands the main planner slot to another planner in the
// room. While a main planner is set, only they can transfer; once the slot is
// vacant, the creator can fill it.
func (s *Service) TransferMainPlanner(ctx context.Context, roomID, actorID, newPlannerID string) error {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return err
	}

	if room.MainPlannerID != nil {
		if *room.MainPlannerID != actorID {
			return types.NewAppError(types.ErrCodePermissionMainPlanner,
				"only the current main planner can transfer the slot", nil)
		}
	} else if room.CreatorID != actorID {
		return types.NewAppError(types.ErrCodePermissionNotCreator,
			"only the room creator can fill a vacant main planner slot", nil)
	}

	target, err := s.participants.Get(ctx, roomID, newPlannerID)
	if err != nil {
		return err
	}
	if target.Role != types.RolePlanner {
		return types.NewAppError(types.ErrCodePermissionRole,
			"the main planner must hold the PLANNER role", nil)
	}

	if err := s.rooms.SetMainPlanner(ctx, roomID, &newPlannerID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "main planner transferred",
		slog.String("room_id", roomID),
		slog.String("from", actorID),
		slog.String("to", newPlannerID),
	)
	return nil
}

// isNotFound reports whether err is a not_found_* AppError.
func isNotFound(err error) bool {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus() == 404
	}
	return false
}
