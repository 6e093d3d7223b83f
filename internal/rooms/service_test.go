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

// memWorld is an in-memory room/membership store implementing RoomStore,
// ParticipantStore, and MembershipTx so service tests exercise the real flow
// ordering without a database.
type memWorld struct {
	rooms  map[string]*types.Room
	parts  map[string]map[string]types.RoomParticipant
	events []*types.MembershipEvent
}

func newMemWorld() *memWorld {
	return &memWorld{
		rooms: make(map[string]*types.Room),
		parts: make(map[string]map[string]types.RoomParticipant),
	}
}

func (w *memWorld) Create(_ context.Context, room *types.Room) error {
	w.rooms[room.ID] = room
	return nil
}

func (w *memWorld) GetByID(_ context.Context, id string) (*types.Room, error) {
	room, ok := w.rooms[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundRoom, "room not found", nil)
	}
	return room, nil
}

func (w *memWorld) GetByInviteCode(_ context.Context, code string) (*types.Room, error) {
	for _, room := range w.rooms {
		if room.InviteCode == code {
			return room, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundRoom, "room not found", nil)
}

func (w *memWorld) Delete(_ context.Context, id string) error {
	delete(w.rooms, id)
	delete(w.parts, id)
	return nil
}

func (w *memWorld) CountByCreator(_ context.Context, creatorID string) (int, error) {
	n := 0
	for _, room := range w.rooms {
		if room.CreatorID == creatorID {
			n++
		}
	}
	return n, nil
}

func (w *memWorld) InviteCodeExists(_ context.Context, code string) (bool, error) {
	for _, room := range w.rooms {
		if room.InviteCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (w *memWorld) SetMainPlanner(_ context.Context, roomID string, userID *string) error {
	room, ok := w.rooms[roomID]
	if !ok {
		return types.NewAppError(types.ErrCodeNotFoundRoom, "room not found", nil)
	}
	room.MainPlannerID = userID
	return nil
}

func (w *memWorld) Get(_ context.Context, roomID, userID string) (*types.RoomParticipant, error) {
	if p, ok := w.parts[roomID][userID]; ok {
		return &p, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundUser, "participant not found", nil)
}

func (w *memWorld) ListByRoom(_ context.Context, roomID string) ([]types.RoomParticipant, error) {
	var out []types.RoomParticipant
	for _, p := range w.parts[roomID] {
		out = append(out, p)
	}
	return out, nil
}

func (w *memWorld) Count(_ context.Context, roomID string) (int, error) {
	return len(w.parts[roomID]), nil
}

func (w *memWorld) CountByRole(_ context.Context, roomID string, role types.ParticipantRole) (int, error) {
	n := 0
	for _, p := range w.parts[roomID] {
		if p.Role == role {
			n++
		}
	}
	return n, nil
}

func (w *memWorld) Remove(_ context.Context, roomID, userID string) error {
	delete(w.parts[roomID], userID)
	return nil
}

func (w *memWorld) insert(p types.RoomParticipant) {
	if w.parts[p.RoomID] == nil {
		w.parts[p.RoomID] = make(map[string]types.RoomParticipant)
	}
	w.parts[p.RoomID][p.UserID] = p
}

func (w *memWorld) CreateRoomWithCreator(ctx context.Context, room *types.Room, evt *types.MembershipEvent) error {
	w.rooms[room.ID] = room
	w.insert(types.RoomParticipant{RoomID: room.ID, UserID: room.CreatorID, Role: types.RolePlanner})
	w.events = append(w.events, evt)
	return nil
}

func (w *memWorld) Join(ctx context.Context, p *types.RoomParticipant, maxParticipants int, promoteMainPlanner bool, evt *types.MembershipEvent) (bool, error) {
	if len(w.parts[p.RoomID]) >= maxParticipants {
		return false, nil
	}
	w.insert(*p)
	if promoteMainPlanner {
		id := p.UserID
		w.rooms[p.RoomID].MainPlannerID = &id
	}
	w.events = append(w.events, evt)
	return true, nil
}

func (w *memWorld) DeleteRoom(ctx context.Context, roomID string, evt *types.MembershipEvent) error {
	delete(w.rooms, roomID)
	delete(w.parts, roomID)
	w.events = append(w.events, evt)
	return nil
}

func (w *memWorld) Leave(ctx context.Context, roomID, userID string, clearMainPlanner bool, evt *types.MembershipEvent) error {
	delete(w.parts[roomID], userID)
	if clearMainPlanner {
		w.rooms[roomID].MainPlannerID = nil
	}
	w.events = append(w.events, evt)
	return nil
}

// stubAdmission returns canned decisions.
type stubAdmission struct {
	createRoom     types.Decision
	addParticipant types.Decision
	err            error
}

func (s *stubAdmission) CanCreateRoom(context.Context, string) (types.Decision, error) {
	return s.createRoom, s.err
}

func (s *stubAdmission) CanAddParticipant(context.Context, string) (types.Decision, error) {
	return s.addParticipant, s.err
}

// stubCodes hands out a fixed invite code.
type stubCodes struct {
	code string
	err  error
}

func (s *stubCodes) Generate(context.Context) (string, error) { return s.code, s.err }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func allow(current, max int) types.Decision {
	return types.Decision{Allowed: true, CurrentCount: current, MaxCount: max, PlanType: types.PlanFree}
}

func deny(current, max int) types.Decision {
	return types.Decision{Allowed: false, CurrentCount: current, MaxCount: max, PlanType: types.PlanFree}
}

func newTestService(w *memWorld, adm *stubAdmission) *Service {
	return NewService(w, w, w, adm, &stubCodes{code: "ABCD2345"},
		fixedClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}, nil)
}

func seedRoom(w *memWorld, id, creatorID string) *types.Room {
	main := creatorID
	room := &types.Room{
		ID:            id,
		Name:          "Focus Room",
		InviteCode:    "ABCD2345",
		CreatorID:     creatorID,
		MainPlannerID: &main,
	}
	w.rooms[id] = room
	w.insert(types.RoomParticipant{RoomID: id, UserID: creatorID, Role: types.RolePlanner})
	return room
}

func TestService_CreateRoom_Success(t *testing.T) {
	w := newMemWorld()
	svc := newTestService(w, &stubAdmission{createRoom: allow(0, 2), addParticipant: allow(0, 5)})

	room, err := svc.CreateRoom(context.Background(), "usr_creator", CreateRoomInput{Name: "Deep Work"})
	require.NoError(t, err)

	assert.Equal(t, "ABCD2345", room.InviteCode)
	require.NotNil(t, room.MainPlannerID)
	assert.Equal(t, "usr_creator", *room.MainPlannerID)

	// Creator joined as PLANNER in the same transaction.
	p, err := w.Get(context.Background(), room.ID, "usr_creator")
	require.NoError(t, err)
	assert.Equal(t, types.RolePlanner, p.Role)

	require.Len(t, w.events, 1)
	assert.Equal(t, types.MembershipJoined, w.events[0].EventType)
	assert.Equal(t, types.RolePlanner, w.events[0].Role)
}

func TestService_CreateRoom_DeniedAtLimit(t *testing.T) {
	w := newMemWorld()
	svc := newTestService(w, &stubAdmission{createRoom: deny(2, 2)})

	_, err := svc.CreateRoom(context.Background(), "usr_creator", CreateRoomInput{Name: "One Too Many"})
	require.Error(t, err)

	var limitErr *types.LimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, types.ErrCodeLimitRooms, limitErr.Code)
	assert.Equal(t, types.DenialRoomLimit, limitErr.Denial.Code)
	assert.Equal(t, 2, limitErr.Denial.CurrentCount)
	assert.Equal(t, 2, limitErr.Denial.MaxCount)
	assert.True(t, limitErr.Denial.NeedsUpgrade)
	assert.Empty(t, w.rooms)
}

func TestService_JoinByCode_FirstJoinerGetsPerformer(t *testing.T) {
	w := newMemWorld()
	seedRoom(w, "room_1", "usr_creator")
	svc := newTestService(w, &stubAdmission{addParticipant: allow(1, 5)})

	result, err := svc.JoinByCode(context.Background(), "ABCD2345", "usr_a")
	require.NoError(t, err)
	assert.False(t, result.AlreadyJoined)
	assert.Equal(t, types.RolePerformer, result.Role)
}

func TestService_JoinByCode_SecondJoinerGetsPlanner(t *testing.T) {
	w := newMemWorld()
	seedRoom(w, "room_1", "usr_creator")
	w.insert(types.RoomParticipant{RoomID: "room_1", UserID: "usr_a", Role: types.RolePerformer})
	svc := newTestService(w, &stubAdmission{addParticipant: allow(2, 5)})

	result, err := svc.JoinByCode(context.Background(), "ABCD2345", "usr_b")
	require.NoError(t, err)
	assert.Equal(t, types.RolePlanner, result.Role)
}

func TestService_JoinByCode_Idempotent(t *testing.T) {
	w := newMemWorld()
	seedRoom(w, "room_1", "usr_creator")
	w.insert(types.RoomParticipant{RoomID: "room_1", UserID: "usr_a", Role: types.RolePerformer})
	svc := newTestService(w, &stubAdmission{addParticipant: allow(2, 5)})

	result, err := svc.JoinByCode(context.Background(), "ABCD2345", "usr_a")
	require.NoError(t, err)
	assert.True(t, result.AlreadyJoined)
	assert.Equal(t, "room_1", result.RoomID)
	assert.Empty(t, result.Role)
	assert.Empty(t, w.events, "repeat join must not emit an event")
}

func TestService_JoinByCode_UnknownCode(t *testing.T) {
	w := newMemWorld()
	svc := newTestService(w, &stubAdmission{})

	_, err := svc.JoinByCode(context.Background(), "NOPE1234", "usr_a")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundRoom, appErr.Code)
}

func TestService_JoinByCode_DeniedWhenFull(t *testing.T) {
	w := newMemWorld()
	seedRoom(w, "room_1", "usr_creator")
	svc := newTestService(w, &stubAdmission{addParticipant: deny(5, 5)})

	_, err := svc.JoinByCode(context.Background(), "ABCD2345", "usr_late")
	require.Error(t, err)

	var limitErr *types.LimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, types.DenialParticipantLimit, limitErr.Denial.Code)

	_, err = w.Get(context.Background(), "room_1", "usr_late")
	require.Error(t, err, "denied joiner must not be inserted")
}

func TestService_Join_LostRaceReportsCeiling(t *testing.T) {
	w := newMemWorld()
	seedRoom(w, "room_1", "usr_creator")
	// Admission saw room below the ceiling, but the room filled up before the
	// insert: the guarded insert refuses.
	svc := newTestService(w, &stubAdmission{addParticipant: allow(0, 1)})

	_, err := svc.JoinByCode(context.Background(), "ABCD2345", "usr_late")
	require.Error(t, err)

	var limitErr *types.LimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, limitErr.Denial.MaxCount, limitErr.Denial.CurrentCount)
}

func TestService_JoinRoom_PromotesPlannerIntoVacantSlot(t *testing.T) {
	w := newMemWorld()
	room := seedRoom(w, "room_1", "usr_creator")
	room.MainPlannerID = nil
	delete(w.parts["room_1"], "usr_creator")

	svc := newTestService(w, &stubAdmission{addParticipant: allow(0, 5)})

	role := types.RolePlanner
	result, err := svc.JoinRoom(context.Background(), "room_1", "usr_p", &role)
	require.NoError(t, err)
	assert.Equal(t, types.RolePlanner, result.Role)

	require.NotNil(t, room.MainPlannerID)
	assert.Equal(t, "usr_p", *room.MainPlannerID)
}

func TestService_JoinRoom_NoPromotionWhenPlannersExist(t *testing.T) {
	w := newMemWorld()
	room := seedRoom(w, "room_1", "usr_creator")
	room.MainPlannerID = nil

	svc := newTestService(w, &stubAdmission{addParticipant: allow(1, 5)})

	role := types.RolePlanner
	_, err := svc.JoinRoom(context.Background(), "room_1", "usr_p", &role)
	require.NoError(t, err)
	assert.Nil(t, room.MainPlannerID, "slot stays vacant while another planner exists")
}

func TestService_JoinRoom_RequestedPerformerConflict(t *testing.T) {
	w := newMemWorld()
	seedRoom(w, "room_1", "usr_creator")
	w.insert(types.RoomParticipant{RoomID: "room_1", UserID: "usr_a", Role: types.RolePerformer})
	svc := newTestService(w, &stubAdmission{addParticipant: allow(2, 5)})

	role := types.RolePerformer
	_, err := svc.JoinRoom(context.Background(), "room_1", "usr_b", &role)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeConflictPerformer, appErr.Code)
}

func TestService_DeleteRoom_CreatorOnly(t *testing.T) {
	w := newMemWorld()
	seedRoom(w, "room_1", "usr_creator")
	svc := newTestService(w, &stubAdmission{})

	err := svc.DeleteRoom(context.Background(), "room_1", "usr_other")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodePermissionNotCreator, appErr.Code)

	require.NoError(t, svc.DeleteRoom(context.Background(), "room_1", "usr_creator"))
	assert.Empty(t, w.rooms)
	require.Len(t, w.events, 1)
	assert.Equal(t, types.MembershipRoomDeleted, w.events[0].EventType)
}

func TestService_Leave_CreatorRefused(t *testing.T) {
	w := newMemWorld()
	seedRoom(w, "room_1", "usr_creator")
	svc := newTestService(w, &stubAdmission{})

	err := svc.Leave(context.Background(), "room_1", "usr_creator")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodePermissionRole, appErr.Code)
}

func TestService_Leave_MainPlannerVacatesSlot(t *testing.T) {
	w := newMemWorld()
	room := seedRoom(w, "room_1", "usr_creator")
	main := "usr_mp"
	room.MainPlannerID = &main
	w.insert(types.RoomParticipant{RoomID: "room_1", UserID: "usr_mp", Role: types.RolePlanner})

	svc := newTestService(w, &stubAdmission{})

	require.NoError(t, svc.Leave(context.Background(), "room_1", "usr_mp"))
	assert.Nil(t, room.MainPlannerID)

	require.Len(t, w.events, 1)
	assert.Equal(t, types.MembershipLeft, w.events[0].EventType)
}

func TestService_TransferMainPlanner_Authorization(t *testing.T) {
	w := newMemWorld()
	room := seedRoom(w, "room_1", "usr_creator")
	w.insert(types.RoomParticipant{RoomID: "room_1", UserID: "usr_p2", Role: types.RolePlanner})
	w.insert(types.RoomParticipant{RoomID: "room_1", UserID: "usr_perf", Role: types.RolePerformer})
	svc := newTestService(w, &stubAdmission{})
	ctx := context.Background()

	// A non-holder cannot transfer while the slot is held.
	err := svc.TransferMainPlanner(ctx, "room_1", "usr_p2", "usr_p2")
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodePermissionMainPlanner, appErr.Code)

	// The target must hold the PLANNER role.
	err = svc.TransferMainPlanner(ctx, "room_1", "usr_creator", "usr_perf")
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodePermissionRole, appErr.Code)

	// The current holder can transfer to another planner.
	require.NoError(t, svc.TransferMainPlanner(ctx, "room_1", "usr_creator", "usr_p2"))
	require.NotNil(t, room.MainPlannerID)
	assert.Equal(t, "usr_p2", *room.MainPlannerID)

	// Once vacant, only the creator can fill the slot.
	room.MainPlannerID = nil
	err = svc.TransferMainPlanner(ctx, "room_1", "usr_p2", "usr_p2")
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodePermissionNotCreator, appErr.Code)

	require.NoError(t, svc.TransferMainPlanner(ctx, "room_1", "usr_creator", "usr_p2"))
}

// TestService_MembershipScenario walks the full lifecycle: create, fill the
// performer slot, add planners up to the ceiling, bounce the next joiner,
// then free a seat and reuse the performer slot after its holder leaves.
func TestService_MembershipScenario(t *testing.T) {
	w := newMemWorld()
	adm := &stubAdmission{createRoom: allow(0, 2)}
	svc := newTestService(w, adm)
	ctx := context.Background()

	room, err := svc.CreateRoom(ctx, "usr_creator", CreateRoomInput{Name: "Sprint Week"})
	require.NoError(t, err)

	// First joiner takes the performer slot.
	adm.addParticipant = allow(1, 3)
	res, err := svc.JoinByCode(ctx, room.InviteCode, "usr_perf")
	require.NoError(t, err)
	assert.Equal(t, types.RolePerformer, res.Role)

	// Second joiner becomes a planner.
	adm.addParticipant = allow(2, 3)
	res, err = svc.JoinByCode(ctx, room.InviteCode, "usr_plan")
	require.NoError(t, err)
	assert.Equal(t, types.RolePlanner, res.Role)

	// Room is at the ceiling: the next join is denied without inserting.
	adm.addParticipant = deny(3, 3)
	_, err = svc.JoinByCode(ctx, room.InviteCode, "usr_late")
	var limitErr *types.LimitError
	require.True(t, errors.As(err, &limitErr))
	count, _ := w.Count(ctx, room.ID)
	assert.Equal(t, 3, count)

	// The performer leaves; the next joiner takes the freed slot.
	require.NoError(t, svc.Leave(ctx, room.ID, "usr_perf"))
	adm.addParticipant = allow(2, 3)
	res, err = svc.JoinByCode(ctx, room.InviteCode, "usr_next")
	require.NoError(t, err)
	assert.Equal(t, types.RolePerformer, res.Role)

	// Every mutation emitted exactly one mirror event.
	assert.Len(t, w.events, 5)
}
