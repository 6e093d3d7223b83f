package billing

import (
	"context"
	"errors"
	"time"

	"pomolink/internal/types"
)

// UsageCounter is the read-only counting surface the admission checks need
// from the usage store. Counting queries only; no mutation.
type UsageCounter interface {
	CountRecordingsBetween(ctx context.Context, userID string, from, to time.Time) (int, error)
	CountUploadsByUserBetween(ctx context.Context, userID string, from, to time.Time) (int, error)
	CountUploadsByRoomBetween(ctx context.Context, roomID string, from, to time.Time) (int, error)
}

// AdmissionService computes admit/deny decisions for plan-gated actions.
// All checks are side-effect-free relative to business state: they only run
// COUNT queries and never mutate.
//
// Route handlers are responsible for 404ing missing rooms/users before
// calling these checks; a dangling id computes against zero rows and the
// FREE plan rather than erroring.
type AdmissionService struct {
	users        types.UserStore
	rooms        types.RoomStore
	participants types.ParticipantStore
	usage        UsageCounter
	plans        PlanRegistry
	clock        types.Clock
}

// NewAdmissionService constructs an AdmissionService. A nil clock defaults to
// the real system clock.
func NewAdmissionService(
	users types.UserStore,
	rooms types.RoomStore,
	participants types.ParticipantStore,
	usage UsageCounter,
	plans PlanRegistry,
	clock types.Clock,
) *AdmissionService {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &AdmissionService{
		users:        users,
		rooms:        rooms,
		participants: participants,
		usage:        usage,
		plans:        plans,
		clock:        clock,
	}
}

// DayWindow returns the server-local day boundaries containing now:
// [local midnight, next local midnight). Recording and upload quotas reset at
// this boundary.
func DayWindow(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, 1)
}

// CanCreateRoom checks the caller's own plan against the number of rooms they
// have already created.
func (s *AdmissionService) CanCreateRoom(ctx context.Context, userID string) (types.Decision, error) {
	plan, err := s.planOfUser(ctx, userID)
	if err != nil {
		return types.Decision{}, err
	}
	limits := s.plans.GetLimits(plan)

	count, err := s.rooms.CountByCreator(ctx, userID)
	if err != nil {
		return types.Decision{}, err
	}

	return types.Decision{
		Allowed:      count < limits.MaxRooms,
		CurrentCount: count,
		MaxCount:     limits.MaxRooms,
		PlanType:     plan,
	}, nil
}

// CanRecord checks the recording quota for a user in a room. The quota is
// pooled at room level: the limit comes from the ROOM CREATOR's plan, not the
// recording user's, while the daily count is the recording user's own.
func (s *AdmissionService) CanRecord(ctx context.Context, roomID, userID string) (types.Decision, error) {
	plan, err := s.planOfRoomCreator(ctx, roomID)
	if err != nil {
		return types.Decision{}, err
	}
	limits := s.plans.GetLimits(plan)

	from, to := DayWindow(s.clock.Now())
	count, err := s.usage.CountRecordingsBetween(ctx, userID, from, to)
	if err != nil {
		return types.Decision{}, err
	}

	return types.Decision{
		Allowed:      count < limits.MaxDailyRecordings,
		CurrentCount: count,
		MaxCount:     limits.MaxDailyRecordings,
		PlanType:     plan,
	}, nil
}

// CanAddParticipant checks the participant ceiling for a room. The plan comes
// from the main planner when one is set, falling back to the room creator.
//
// The decision alone does not make the subsequent insert safe against
// concurrent joins; the join flow re-checks the ceiling inside its insert
// statement (see db.ParticipantRepository.InsertIfBelow).
func (s *AdmissionService) CanAddParticipant(ctx context.Context, roomID string) (types.Decision, error) {
	plan, err := s.planOfRoomPlanSource(ctx, roomID)
	if err != nil {
		return types.Decision{}, err
	}
	limits := s.plans.GetLimits(plan)

	count, err := s.participants.Count(ctx, roomID)
	if err != nil {
		return types.Decision{}, err
	}

	return types.Decision{
		Allowed:      count < limits.MaxParticipants,
		CurrentCount: count,
		MaxCount:     limits.MaxParticipants,
		PlanType:     plan,
	}, nil
}

// CanUpload checks both the per-user and per-room daily upload ceilings
// against the projected post-upload count. Both must pass; the USER ceiling
// is evaluated first, and LimitScope on the decision reports which boundary
// denied so the client can explain it.
func (s *AdmissionService) CanUpload(ctx context.Context, roomID, userID string, fileCount int) (types.Decision, error) {
	plan, err := s.planOfRoomCreator(ctx, roomID)
	if err != nil {
		return types.Decision{}, err
	}
	limits := s.plans.GetLimits(plan)
	from, to := DayWindow(s.clock.Now())

	userCount, err := s.usage.CountUploadsByUserBetween(ctx, userID, from, to)
	if err != nil {
		return types.Decision{}, err
	}
	if userCount+fileCount > limits.MaxDailyUploadsUser {
		return types.Decision{
			Allowed:      false,
			CurrentCount: userCount,
			MaxCount:     limits.MaxDailyUploadsUser,
			PlanType:     plan,
			LimitScope:   types.LimitScopeUser,
		}, nil
	}

	roomCount, err := s.usage.CountUploadsByRoomBetween(ctx, roomID, from, to)
	if err != nil {
		return types.Decision{}, err
	}
	if roomCount+fileCount > limits.MaxDailyUploadsRoom {
		return types.Decision{
			Allowed:      false,
			CurrentCount: roomCount,
			MaxCount:     limits.MaxDailyUploadsRoom,
			PlanType:     plan,
			LimitScope:   types.LimitScopeRoom,
		}, nil
	}

	// LimitScope stays empty on admitted uploads; it only names the boundary
	// that denied.
	return types.Decision{
		Allowed:      true,
		CurrentCount: userCount,
		MaxCount:     limits.MaxDailyUploadsUser,
		PlanType:     plan,
	}, nil
}

// planOfUser resolves a user's plan tier, treating a missing user as FREE.
func (s *AdmissionService) planOfUser(ctx context.Context, userID string) (types.PlanTier, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return types.PlanFree, nil
		}
		return "", err
	}
	return user.Plan, nil
}

// planOfRoomCreator resolves the plan of the room's creator, treating a
// missing room or creator as FREE.
func (s *AdmissionService) planOfRoomCreator(ctx context.Context, roomID string) (types.PlanTier, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if isNotFound(err) {
			return types.PlanFree, nil
		}
		return "", err
	}
	return s.planOfUser(ctx, room.CreatorID)
}

// planOfRoomPlanSource resolves the plan source for participant admission:
// the main planner's plan when one is set, else the creator's.
func (s *AdmissionService) planOfRoomPlanSource(ctx context.Context, roomID string) (types.PlanTier, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if isNotFound(err) {
			return types.PlanFree, nil
		}
		return "", err
	}
	if room.MainPlannerID != nil && *room.MainPlannerID != "" {
		return s.planOfUser(ctx, *room.MainPlannerID)
	}
	return s.planOfUser(ctx, room.CreatorID)
}

// isNotFound reports whether err is a not_found_* AppError.
func isNotFound(err error) bool {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPStatus() == 404
	}
	return false
}
