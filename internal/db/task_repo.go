package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"pomolink/internal/types"
)

// TaskRepository provides data access for the tasks and task_proposals
// tables. Proposal approval is the one multi-statement flow here and runs in
// a single transaction: the proposal flips to APPROVED and the task row is
// created atomically, or neither happens.
type TaskRepository struct {
	db DBTX
}

// NewTaskRepository creates a new TaskRepository backed by the given database
// connection (pool or transaction).
func NewTaskRepository(db DBTX) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `t.id, t.room_id, t.creator_id, t.title, t.description,
	t.status, t.due_at, t.created_at, t.updated_at`

const proposalColumns = `p.id, p.room_id, p.proposer_id, p.title, p.description,
	p.status, p.reviewer_id, p.task_id, p.created_at, p.updated_at`

func scanTask(row pgx.Row) (*types.Task, error) {
	var t types.Task
	err := row.Scan(
		&t.ID, &t.RoomID, &t.CreatorID, &t.Title, &t.Description,
		&t.Status, &t.DueAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func scanProposal(row pgx.Row) (*types.TaskProposal, error) {
	var p types.TaskProposal
	err := row.Scan(
		&p.ID, &p.RoomID, &p.ProposerID, &p.Title, &p.Description,
		&p.Status, &p.ReviewerID, &p.TaskID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateTask inserts a new task row.
func (r *TaskRepository) CreateTask(ctx context.Context, t *types.Task) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO tasks (id, room_id, creator_id, title, description, status, due_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`,
		t.ID, t.RoomID, t.CreatorID, t.Title, t.Description, t.Status, t.DueAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create task", err)
	}
	return nil
}

// GetTask retrieves a task by id.
func (r *TaskRepository) GetTask(ctx context.Context, id string) (*types.Task, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks t WHERE t.id = $1`, id,
	)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundTask, "task not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve task", err)
	}
	return t, nil
}

// ListTasksByRoom returns a room's tasks ordered by creation time.
func (r *TaskRepository) ListTasksByRoom(ctx context.Context, roomID string) ([]types.Task, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks t WHERE t.room_id = $1 ORDER BY t.created_at DESC`,
		roomID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list tasks", err)
	}
	defer rows.Close()

	var out []types.Task
	for rows.Next() {
		var t types.Task
		if err := rows.Scan(
			&t.ID, &t.RoomID, &t.CreatorID, &t.Title, &t.Description,
			&t.Status, &t.DueAt, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan task row", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating task rows", err)
	}
	return out, nil
}

// UpdateTaskStatus moves a task through its lifecycle.
func (r *TaskRepository) UpdateTaskStatus(ctx context.Context, id string, status types.TaskStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE tasks SET status = $1, updated_at = NOW() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update task", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTask, "task not found", nil)
	}
	return nil
}

// DeleteTask removes a task row.
func (r *TaskRepository) DeleteTask(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM tasks WHERE id = $1`, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete task", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundTask, "task not found", nil)
	}
	return nil
}

// CreateProposal inserts a performer-submitted task draft.
func (r *TaskRepository) CreateProposal(ctx context.Context, p *types.TaskProposal) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO task_proposals (id, room_id, proposer_id, title, description, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
		p.ID, p.RoomID, p.ProposerID, p.Title, p.Description, p.Status,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create proposal", err)
	}
	return nil
}

// GetProposal retrieves a proposal by id.
func (r *TaskRepository) GetProposal(ctx context.Context, id string) (*types.TaskProposal, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+proposalColumns+` FROM task_proposals p WHERE p.id = $1`, id,
	)
	p, err := scanProposal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProposal, "proposal not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve proposal", err)
	}
	return p, nil
}

// RejectProposal flips a PENDING proposal to REJECTED. The status guard in
// the WHERE clause keeps terminal proposals immutable.
func (r *TaskRepository) RejectProposal(ctx context.Context, id, reviewerID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE task_proposals
		 SET status = $1, reviewer_id = $2, updated_at = NOW()
		 WHERE id = $3 AND status = $4`,
		types.ProposalRejected, reviewerID, id, types.ProposalPending,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to reject proposal", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictTerminal, "proposal is not pending", nil)
	}
	return nil
}

// ApproveProposal approves a PENDING proposal and creates the resulting task
// in one transaction. The proposal update carries the same PENDING guard as
// RejectProposal; if another reviewer won the race, the whole transaction
// rolls back and conflict_terminal_state is returned.
func (r *TaskRepository) ApproveProposal(ctx context.Context, pool TxBeginner, proposalID, reviewerID string, task *types.Task) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE task_proposals
		 SET status = $1, reviewer_id = $2, task_id = $3, updated_at = NOW()
		 WHERE id = $4 AND status = $5`,
		types.ProposalApproved, reviewerID, task.ID, proposalID, types.ProposalPending,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to approve proposal", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictTerminal, "proposal is not pending", nil)
	}

	txRepo := NewTaskRepository(tx)
	if err := txRepo.CreateTask(ctx, task); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit approval", err)
	}
	return nil
}
