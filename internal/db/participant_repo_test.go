package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pomolink/internal/types"
)

// stubRow plays back scan values, or an error, through the pgx.Row surface.
type stubRow struct {
	values []any
	err    error
}

func (r *stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int:
			*d = v.(int)
		case *types.ParticipantRole:
			*d = v.(types.ParticipantRole)
		}
	}
	return nil
}

// stubDBTX records statements and answers with canned rows and command tags.
type stubDBTX struct {
	lastSQL  string
	lastArgs []any
	row      pgx.Row
	tag      pgconn.CommandTag
	execErr  error
}

func (s *stubDBTX) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.lastSQL, s.lastArgs = sql, args
	return s.tag, s.execErr
}

func (s *stubDBTX) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	s.lastSQL, s.lastArgs = sql, args
	return nil, errors.New("query not stubbed")
}

func (s *stubDBTX) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	s.lastSQL, s.lastArgs = sql, args
	return s.row
}

func TestParticipantRepository_Get_MissingRowIsNotFound(t *testing.T) {
	dbtx := &stubDBTX{row: &stubRow{err: pgx.ErrNoRows}}
	repo := NewParticipantRepository(dbtx)

	_, err := repo.Get(context.Background(), "room_1", "usr_1")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundUser, appErr.Code)
	assert.Equal(t, []any{"room_1", "usr_1"}, dbtx.lastArgs)
}

func TestParticipantRepository_InsertIfBelow_InsertsUnderCeiling(t *testing.T) {
	dbtx := &stubDBTX{tag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := NewParticipantRepository(dbtx)

	inserted, err := repo.InsertIfBelow(context.Background(),
		&types.RoomParticipant{RoomID: "room_1", UserID: "usr_1", Role: types.RolePlanner}, 3)
	require.NoError(t, err)
	assert.True(t, inserted)

	// The ceiling guard runs inside the statement itself.
	assert.Contains(t, dbtx.lastSQL, "WHERE (SELECT COUNT(*) FROM room_participants WHERE room_id = $1) < $4")
	assert.Equal(t, 3, dbtx.lastArgs[3])
}

func TestParticipantRepository_InsertIfBelow_FullRoomInsertsNothing(t *testing.T) {
	dbtx := &stubDBTX{tag: pgconn.NewCommandTag("INSERT 0 0")}
	repo := NewParticipantRepository(dbtx)

	inserted, err := repo.InsertIfBelow(context.Background(),
		&types.RoomParticipant{RoomID: "room_1", UserID: "usr_late", Role: types.RolePlanner}, 3)
	require.NoError(t, err)
	assert.False(t, inserted, "a join losing the race reports the ceiling, not an error")
}

func TestParticipantRepository_Remove_MissingRowIsNotFound(t *testing.T) {
	dbtx := &stubDBTX{tag: pgconn.NewCommandTag("DELETE 0")}
	repo := NewParticipantRepository(dbtx)

	err := repo.Remove(context.Background(), "room_1", "usr_ghost")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundUser, appErr.Code)
}

func TestParticipantRepository_Count(t *testing.T) {
	dbtx := &stubDBTX{row: &stubRow{values: []any{7}}}
	repo := NewParticipantRepository(dbtx)

	count, err := repo.Count(context.Background(), "room_1")
	require.NoError(t, err)
	assert.Equal(t, 7, count)
}
