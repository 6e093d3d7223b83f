package db

import (
	"context"
	"time"

	"pomolink/internal/types"
)

// UsageRepository provides data access for the recording_usage, uploads, and
// point_history tables. It backs both sides of the quota machinery: the
// read-only counts the admission checks run, and the writes the usage
// recorder performs after an admitted action completes.
type UsageRepository struct {
	db DBTX
}

// NewUsageRepository creates a new UsageRepository backed by the given
// database connection (pool or transaction).
func NewUsageRepository(db DBTX) *UsageRepository {
	return &UsageRepository{db: db}
}

// CountRecordingsBetween returns the number of recording rows for a user in
// [from, to). The caller supplies the local-day window so the boundary math
// lives in one place (billing.DayWindow).
func (r *UsageRepository) CountRecordingsBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM recording_usage
		 WHERE user_id = $1 AND created_at >= $2 AND created_at < $3`,
		userID, from, to,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count recordings", err)
	}
	return count, nil
}

// CountUploadsByUserBetween returns the number of upload rows for a user in
// [from, to).
func (r *UsageRepository) CountUploadsByUserBetween(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM uploads
		 WHERE user_id = $1 AND created_at >= $2 AND created_at < $3`,
		userID, from, to,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count user uploads", err)
	}
	return count, nil
}

// CountUploadsByRoomBetween returns the number of upload rows for a room in
// [from, to).
func (r *UsageRepository) CountUploadsByRoomBetween(ctx context.Context, roomID string, from, to time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM uploads
		 WHERE room_id = $1 AND created_at >= $2 AND created_at < $3`,
		roomID, from, to,
	).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count room uploads", err)
	}
	return count, nil
}

// InsertRecording writes one RecordingUsage row.
func (r *UsageRepository) InsertRecording(ctx context.Context, rec *types.RecordingUsage) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO recording_usage (id, user_id, room_id, session_id, size_bytes, duration_sec, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID,
		rec.UserID,
		rec.RoomID,
		rec.SessionID,
		rec.SizeBytes,
		rec.DurationSec,
		rec.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert recording usage", err)
	}
	return nil
}

// InsertUpload writes one Upload row.
func (r *UsageRepository) InsertUpload(ctx context.Context, up *types.Upload) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO uploads (id, user_id, room_id, file_name, size_bytes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		up.ID,
		up.UserID,
		up.RoomID,
		up.FileName,
		up.SizeBytes,
		up.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert upload", err)
	}
	return nil
}

// AwardSubmissionBonus inserts the per-user/per-room/per-day SUBMISSION point
// entry. The point_history table carries a unique index on
// (user_id, room_id, bonus_day) WHERE reason = 'SUBMISSION', so the insert is
// a single conflict-safe statement: concurrent uploads in the same window
// race here and exactly one wins.
//
// Returns true when this call inserted the row, false when the day's bonus
// already existed.
func (r *UsageRepository) AwardSubmissionBonus(ctx context.Context, entry *types.PointEntry, day time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO point_history (id, user_id, room_id, reason, points, bonus_day, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (user_id, room_id, bonus_day) WHERE reason = 'SUBMISSION'
		 DO NOTHING`,
		entry.ID,
		entry.UserID,
		entry.RoomID,
		entry.Reason,
		entry.Points,
		day,
		entry.CreatedAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to award submission bonus", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListRecordingsByRoom returns a room's recording rows, newest first, capped
// at limit.
func (r *UsageRepository) ListRecordingsByRoom(ctx context.Context, roomID string, limit int) ([]types.RecordingUsage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, room_id, session_id, size_bytes, duration_sec, created_at
		 FROM recording_usage
		 WHERE room_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		roomID, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list recordings", err)
	}
	defer rows.Close()

	var recs []types.RecordingUsage
	for rows.Next() {
		var rec types.RecordingUsage
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.RoomID, &rec.SessionID,
			&rec.SizeBytes, &rec.DurationSec, &rec.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan recording", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating recordings", err)
	}
	return recs, nil
}

// DeleteRecordingsBefore purges recording rows older than the cutoff for one
// user and returns the purged rows for archival export. Drives the retention
// sweeper.
func (r *UsageRepository) DeleteRecordingsBefore(ctx context.Context, userID string, cutoff time.Time) ([]types.RecordingUsage, error) {
	rows, err := r.db.Query(ctx,
		`DELETE FROM recording_usage
		 WHERE user_id = $1 AND created_at < $2
		 RETURNING id, user_id, room_id, session_id, size_bytes, duration_sec, created_at`,
		userID, cutoff,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to purge recordings", err)
	}
	defer rows.Close()

	var purged []types.RecordingUsage
	for rows.Next() {
		var rec types.RecordingUsage
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.RoomID, &rec.SessionID,
			&rec.SizeBytes, &rec.DurationSec, &rec.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan purged recording", err)
		}
		purged = append(purged, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating purged recordings", err)
	}
	return purged, nil
}

// ListUserIDsWithRecordings returns the distinct users owning recording rows.
// The retention sweeper fans out over this set.
func (r *UsageRepository) ListUserIDsWithRecordings(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT user_id FROM recording_usage`,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list recording owners", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating user ids", err)
	}
	return ids, nil
}
