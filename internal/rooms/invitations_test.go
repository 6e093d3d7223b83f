package rooms

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pomolink/internal/types"
)

// memInvitations is an in-memory InvitationStore with the PENDING transition
// guard the repository enforces.
type memInvitations struct {
	byID map[string]*types.Invitation
}

func newMemInvitations() *memInvitations {
	return &memInvitations{byID: make(map[string]*types.Invitation)}
}

func (m *memInvitations) Create(_ context.Context, inv *types.Invitation) error {
	m.byID[inv.ID] = inv
	return nil
}

func (m *memInvitations) GetByID(_ context.Context, id string) (*types.Invitation, error) {
	inv, ok := m.byID[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundInvitation, "invitation not found", nil)
	}
	return inv, nil
}

func (m *memInvitations) ListByRoom(_ context.Context, roomID string) ([]types.Invitation, error) {
	var out []types.Invitation
	for _, inv := range m.byID {
		if inv.RoomID == roomID {
			out = append(out, *inv)
		}
	}
	return out, nil
}

func (m *memInvitations) Transition(_ context.Context, id string, to types.InvitationStatus) error {
	inv, ok := m.byID[id]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundInvitation, "invitation not found", nil)
	}
	if inv.Status != types.InvitationPending {
		return types.NewAppError(types.ErrCodeConflictTerminal,
			"invitation already answered or expired", nil)
	}
	inv.Status = to
	return nil
}

func (m *memInvitations) Delete(_ context.Context, id string) error {
	delete(m.byID, id)
	return nil
}

// stubUsers implements types.UserStore over a fixed user set.
type stubUsers struct {
	byID map[string]*types.User
}

func (s *stubUsers) GetByID(_ context.Context, id string) (*types.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return u, nil
}

func (s *stubUsers) GetByExternalID(_ context.Context, externalID string) (*types.User, error) {
	for _, u := range s.byID {
		if u.ExternalID == externalID {
			return u, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
}

func (s *stubUsers) UpsertByEmail(_ context.Context, u *types.User) (*types.User, error) {
	s.byID[u.ID] = u
	return u, nil
}

func (s *stubUsers) DeleteByExternalID(context.Context, string) error { return nil }

func (s *stubUsers) UpdatePlan(_ context.Context, id string, plan types.PlanTier) error {
	if u, ok := s.byID[id]; ok {
		u.Plan = plan
	}
	return nil
}

func (s *stubUsers) AddPoints(_ context.Context, id string, delta int) error {
	if u, ok := s.byID[id]; ok {
		u.Points += delta
	}
	return nil
}

// recordingJoiner captures the role the invitation pins on acceptance.
type recordingJoiner struct {
	result   *types.JoinResult
	err      error
	lastRole *types.ParticipantRole
}

func (j *recordingJoiner) JoinRoom(_ context.Context, roomID, userID string, role *types.ParticipantRole) (*types.JoinResult, error) {
	j.lastRole = role
	if j.err != nil {
		return nil, j.err
	}
	if j.result != nil {
		return j.result, nil
	}
	r := types.RolePlanner
	if role != nil {
		r = *role
	}
	return &types.JoinResult{RoomID: roomID, Role: r}, nil
}

func newInvitationFixture(t *testing.T) (*InvitationService, *memWorld, *memInvitations, *recordingJoiner) {
	t.Helper()
	w := newMemWorld()
	seedRoom(w, "room_1", "usr_creator")
	invs := newMemInvitations()
	users := &stubUsers{byID: map[string]*types.User{
		"usr_rcv": {ID: "usr_rcv", Email: "rcv@example.com", Plan: types.PlanFree},
	}}
	joiner := &recordingJoiner{}
	svc := NewInvitationService(invs, w, w, users, joiner,
		fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}, nil)
	return svc, w, invs, joiner
}

func TestInvitationService_Create_SetsPendingAndExpiry(t *testing.T) {
	svc, _, _, _ := newInvitationFixture(t)

	inv, err := svc.Create(context.Background(), "room_1", "usr_creator", CreateInvitationInput{
		Role:   types.RolePlanner,
		Method: types.InviteLink,
	})
	require.NoError(t, err)
	assert.Equal(t, types.InvitationPending, inv.Status)
	assert.Equal(t,
		time.Date(2025, 6, 8, 12, 0, 0, 0, time.UTC),
		inv.ExpiresAt,
	)
}

func TestInvitationService_Create_NonParticipantRefused(t *testing.T) {
	svc, _, _, _ := newInvitationFixture(t)

	_, err := svc.Create(context.Background(), "room_1", "usr_outsider", CreateInvitationInput{
		Role:   types.RolePlanner,
		Method: types.InviteLink,
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodePermissionRole, appErr.Code)
}

func TestInvitationService_Create_MethodFieldRequirements(t *testing.T) {
	svc, _, _, _ := newInvitationFixture(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "room_1", "usr_creator", CreateInvitationInput{
		Role: types.RolePlanner, Method: types.InviteEmail,
	})
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)

	_, err = svc.Create(ctx, "room_1", "usr_creator", CreateInvitationInput{
		Role: types.RolePlanner, Method: types.InviteDirect,
	})
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeValidationMissingField, appErr.Code)
}

func TestInvitationService_Accept_PinsInvitedRole(t *testing.T) {
	svc, _, invs, joiner := newInvitationFixture(t)
	invs.byID["inv_1"] = &types.Invitation{
		ID: "inv_1", RoomID: "room_1", Method: types.InviteLink,
		Role: types.RolePerformer, SenderID: "usr_creator",
		Status: types.InvitationPending,
	}

	result, err := svc.Accept(context.Background(), "inv_1", "usr_rcv")
	require.NoError(t, err)
	assert.Equal(t, types.RolePerformer, result.Role)

	require.NotNil(t, joiner.lastRole)
	assert.Equal(t, types.RolePerformer, *joiner.lastRole)
	assert.Equal(t, types.InvitationAccepted, invs.byID["inv_1"].Status)
}

func TestInvitationService_Accept_DeniedJoinLeavesInvitationPending(t *testing.T) {
	svc, _, invs, joiner := newInvitationFixture(t)
	invs.byID["inv_1"] = &types.Invitation{
		ID: "inv_1", RoomID: "room_1", Method: types.InviteLink,
		Role: types.RolePlanner, SenderID: "usr_creator",
		Status: types.InvitationPending,
	}
	joiner.err = types.NewLimitError(types.ErrCodeLimitParticipants,
		types.DenialParticipantLimit, "participant limit reached",
		types.Decision{CurrentCount: 3, MaxCount: 3, PlanType: types.PlanFree})

	_, err := svc.Accept(context.Background(), "inv_1", "usr_rcv")
	require.Error(t, err)
	assert.Equal(t, types.InvitationPending, invs.byID["inv_1"].Status,
		"a join denied at the ceiling must not consume the invitation")

	// Capacity frees up; the same invitation still works.
	joiner.err = nil
	result, err := svc.Accept(context.Background(), "inv_1", "usr_rcv")
	require.NoError(t, err)
	assert.Equal(t, types.RolePlanner, result.Role)
	assert.Equal(t, types.InvitationAccepted, invs.byID["inv_1"].Status)
}

func TestInvitationService_Accept_TakenPerformerSlotLeavesInvitationPending(t *testing.T) {
	svc, _, invs, joiner := newInvitationFixture(t)
	invs.byID["inv_1"] = &types.Invitation{
		ID: "inv_1", RoomID: "room_1", Method: types.InviteLink,
		Role: types.RolePerformer, SenderID: "usr_creator",
		Status: types.InvitationPending,
	}
	joiner.err = types.NewAppError(types.ErrCodeConflictPerformer,
		"the performer slot is already taken", nil)

	_, err := svc.Accept(context.Background(), "inv_1", "usr_rcv")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictPerformer, appErr.Code)
	assert.Equal(t, types.InvitationPending, invs.byID["inv_1"].Status)
}

func TestInvitationService_Accept_TerminalRefused(t *testing.T) {
	svc, _, invs, _ := newInvitationFixture(t)
	invs.byID["inv_1"] = &types.Invitation{
		ID: "inv_1", RoomID: "room_1", Method: types.InviteLink,
		Role: types.RolePlanner, SenderID: "usr_creator",
		Status: types.InvitationRejected,
	}

	_, err := svc.Accept(context.Background(), "inv_1", "usr_rcv")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictTerminal, appErr.Code)
}

func TestInvitationService_Accept_DirectAddressing(t *testing.T) {
	svc, _, invs, _ := newInvitationFixture(t)
	rcv := "usr_rcv"
	invs.byID["inv_1"] = &types.Invitation{
		ID: "inv_1", RoomID: "room_1", Method: types.InviteDirect,
		ReceiverID: &rcv, Role: types.RolePlanner, SenderID: "usr_creator",
		Status: types.InvitationPending,
	}

	_, err := svc.Accept(context.Background(), "inv_1", "usr_wrong")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodePermissionRole, appErr.Code)
	assert.Equal(t, types.InvitationPending, invs.byID["inv_1"].Status,
		"a failed authorization must not consume the invitation")

	_, err = svc.Accept(context.Background(), "inv_1", "usr_rcv")
	require.NoError(t, err)
}

func TestInvitationService_Accept_EmailMatchesAccount(t *testing.T) {
	svc, _, invs, _ := newInvitationFixture(t)
	invs.byID["inv_1"] = &types.Invitation{
		ID: "inv_1", RoomID: "room_1", Method: types.InviteEmail,
		Email: "someone-else@example.com", Role: types.RolePlanner,
		SenderID: "usr_creator", Status: types.InvitationPending,
	}

	_, err := svc.Accept(context.Background(), "inv_1", "usr_rcv")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodePermissionRole, appErr.Code)
}

func TestInvitationService_Reject_FlipsStatus(t *testing.T) {
	svc, _, invs, _ := newInvitationFixture(t)
	invs.byID["inv_1"] = &types.Invitation{
		ID: "inv_1", RoomID: "room_1", Method: types.InviteLink,
		Role: types.RolePlanner, SenderID: "usr_creator",
		Status: types.InvitationPending,
	}

	require.NoError(t, svc.Reject(context.Background(), "inv_1", "usr_rcv"))
	assert.Equal(t, types.InvitationRejected, invs.byID["inv_1"].Status)
}

func TestInvitationService_Withdraw_Permissions(t *testing.T) {
	svc, w, invs, _ := newInvitationFixture(t)
	w.insert(types.RoomParticipant{RoomID: "room_1", UserID: "usr_planner", Role: types.RolePlanner})
	w.insert(types.RoomParticipant{RoomID: "room_1", UserID: "usr_perf", Role: types.RolePerformer})
	ctx := context.Background()

	seed := func() {
		invs.byID["inv_1"] = &types.Invitation{
			ID: "inv_1", RoomID: "room_1", Method: types.InviteLink,
			Role: types.RolePlanner, SenderID: "usr_planner",
			Status: types.InvitationPending,
		}
	}

	// The performer is neither sender, creator, nor planner.
	seed()
	err := svc.Withdraw(ctx, "inv_1", "usr_perf")
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodePermissionNotSender, appErr.Code)

	// Sender, creator, and another planner can all withdraw.
	require.NoError(t, svc.Withdraw(ctx, "inv_1", "usr_planner"))
	seed()
	require.NoError(t, svc.Withdraw(ctx, "inv_1", "usr_creator"))
	seed()
	w.insert(types.RoomParticipant{RoomID: "room_1", UserID: "usr_p2", Role: types.RolePlanner})
	require.NoError(t, svc.Withdraw(ctx, "inv_1", "usr_p2"))
}
