// Package tasks implements planner-owned tasks and the performer proposal
// review flow.
package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pomolink/internal/db"
	"pomolink/internal/types"
)

// TaskStore is the data access surface the task flows need.
type TaskStore interface {
	CreateTask(ctx context.Context, t *types.Task) error
	GetTask(ctx context.Context, id string) (*types.Task, error)
	ListTasksByRoom(ctx context.Context, roomID string) ([]types.Task, error)
	UpdateTaskStatus(ctx context.Context, id string, status types.TaskStatus) error
	DeleteTask(ctx context.Context, id string) error

	CreateProposal(ctx context.Context, p *types.TaskProposal) error
	GetProposal(ctx context.Context, id string) (*types.TaskProposal, error)
	RejectProposal(ctx context.Context, id, reviewerID string) error
	ApproveProposal(ctx context.Context, pool db.TxBeginner, proposalID, reviewerID string, task *types.Task) error
}

// Service enforces the role rules around tasks: planners create and review,
// the performer executes and proposes.
type Service struct {
	tasks        TaskStore
	pool         db.TxBeginner
	participants types.ParticipantStore
	clock        types.Clock
	logger       *slog.Logger
}

// NewService constructs the tasks service. A nil clock defaults to the real
// system clock.
func NewService(
	tasks TaskStore,
	pool db.TxBeginner,
	participants types.ParticipantStore,
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
		tasks:        tasks,
		pool:         pool,
		participants: participants,
		clock:        clock,
		logger:       logger,
	}
}

// CreateTaskInput carries the validated create-task request.
type CreateTaskInput struct {
	Title       string     `json:"title" validate:"required,min=1,max=200"`
	Description string     `json:"description" validate:"max=2000"`
	DueAt       *time.Time `json:"due_at"`
}

// CreateTask creates a task in a room. Planners only.
func (s *Service) CreateTask(ctx context.Context, roomID, actorID string, in CreateTaskInput) (*types.Task, error) {
	if err := s.requireRole(ctx, roomID, actorID, types.RolePlanner); err != nil {
		return nil, err
	}

	t := &types.Task{
		ID:          "task_" + uuid.NewString(),
		RoomID:      roomID,
		CreatorID:   actorID,
		Title:       in.Title,
		Description: in.Description,
		Status:      types.TaskOpen,
		DueAt:       in.DueAt,
	}
	if err := s.tasks.CreateTask(ctx, t); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "task created",
		slog.String("task_id", t.ID),
		slog.String("room_id", roomID),
	)
	return t, nil
}

// ListTasks returns a room's tasks. Any participant can read them.
func (s *Service) ListTasks(ctx context.Context, roomID, actorID string) ([]types.Task, error) {
	if _, err := s.participants.Get(ctx, roomID, actorID); err != nil {
		return nil, err
	}
	return s.tasks.ListTasksByRoom(ctx, roomID)
}

// UpdateStatus moves a task through its lifecycle. The performer advances
// their own work; planners can adjust any task.
func (s *Service) UpdateStatus(ctx context.Context, taskID, actorID string, status types.TaskStatus) error {
	t, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if _, err := s.participants.Get(ctx, t.RoomID, actorID); err != nil {
		return err
	}
	if err := s.tasks.UpdateTaskStatus(ctx, taskID, status); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "task status updated",
		slog.String("task_id", taskID),
		slog.String("status", string(status)),
	)
	return nil
}

// DeleteTask removes a task. Planners only.
func (s *Service) DeleteTask(ctx context.Context, taskID, actorID string) error {
	t, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if err := s.requireRole(ctx, t.RoomID, actorID, types.RolePlanner); err != nil {
		return err
	}
	return s.tasks.DeleteTask(ctx, taskID)
}

// ProposeInput carries the validated propose-task request.
type ProposeInput struct {
	Title       string `json:"title" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// Propose submits a task draft for planner review. Performer only.
func (s *Service) Propose(ctx context.Context, roomID, actorID string, in ProposeInput) (*types.TaskProposal, error) {
	if err := s.requireRole(ctx, roomID, actorID, types.RolePerformer); err != nil {
		return nil, err
	}

	p := &types.TaskProposal{
		ID:          "prop_" + uuid.NewString(),
		RoomID:      roomID,
		ProposerID:  actorID,
		Title:       in.Title,
		Description: in.Description,
		Status:      types.ProposalPending,
	}
	if err := s.tasks.CreateProposal(ctx, p); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "proposal submitted",
		slog.String("proposal_id", p.ID),
		slog.String("room_id", roomID),
	)
	return p, nil
}

// Approve turns a PENDING proposal into a task. Planners only. The status
// flip and the task insert commit together; a proposal already answered by
// another reviewer comes back as conflict_terminal_state.
func (s *Service) Approve(ctx context.Context, proposalID, actorID string) (*types.Task, error) {
	p, err := s.tasks.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, p.RoomID, actorID, types.RolePlanner); err != nil {
		return nil, err
	}

	t := &types.Task{
		ID:          "task_" + uuid.NewString(),
		RoomID:      p.RoomID,
		CreatorID:   actorID,
		Title:       p.Title,
		Description: p.Description,
		Status:      types.TaskOpen,
	}
	if err := s.tasks.ApproveProposal(ctx, s.pool, proposalID, actorID, t); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "proposal approved",
		slog.String("proposal_id", proposalID),
		slog.String("task_id", t.ID),
	)
	return t, nil
}

// Reject declines a PENDING proposal. Planners only.
func (s *Service) Reject(ctx context.Context, proposalID, actorID string) error {
	p, err := s.tasks.GetProposal(ctx, proposalID)
	if err != nil {
		return err
	}
	if err := s.requireRole(ctx, p.RoomID, actorID, types.RolePlanner); err != nil {
		return err
	}
	if err := s.tasks.RejectProposal(ctx, proposalID, actorID); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "proposal rejected",
		slog.String("proposal_id", proposalID),
	)
	return nil
}

// requireRole checks that the actor is a participant of the room holding the
// given role.
func (s *Service) requireRole(ctx context.Context, roomID, actorID string, role types.ParticipantRole) error {
	p, err := s.participants.Get(ctx, roomID, actorID)
	if err != nil {
		return err
	}
	if p.Role != role {
		return types.NewAppError(types.ErrCodePermissionRole,
			"your role does not allow this action", nil)
	}
	return nil
}
