package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pomolink/internal/types"
)

// submissionBonusPoints is the fixed point award for the first upload a user
// makes in a room on a given local day.
const submissionBonusPoints = 1

// UsageWriter is the mutation surface the usage recorder needs from the
// usage store.
type UsageWriter interface {
	InsertRecording(ctx context.Context, rec *types.RecordingUsage) error
	InsertUpload(ctx context.Context, up *types.Upload) error

	// AwardSubmissionBonus inserts the per-user/per-room/per-day SUBMISSION
	// point entry. Returns false without error when the bonus for that day
	// already exists; the insert is conflict-safe so concurrent uploads
	// cannot double-award.
	AwardSubmissionBonus(ctx context.Context, entry *types.PointEntry, day time.Time) (bool, error)
}

// UsageRecorder writes usage rows after an admitted action completes.
// Admission checks decide; the recorder records. It never denies.
type UsageRecorder struct {
	store UsageWriter
	users types.UserStore
	clock types.Clock
}

// NewUsageRecorder constructs a UsageRecorder. A nil clock defaults to the
// real system clock.
func NewUsageRecorder(store UsageWriter, users types.UserStore, clock types.Clock) *UsageRecorder {
	if clock == nil {
		clock = types.RealClock{}
	}
	return &UsageRecorder{store: store, users: users, clock: clock}
}

// RecordRecording writes a RecordingUsage row for a completed recording
// upload and returns it.
func (r *UsageRecorder) RecordRecording(ctx context.Context, userID, roomID string, sessionID *string, sizeBytes int64, durationSec int) (*types.RecordingUsage, error) {
	rec := &types.RecordingUsage{
		ID:          "rec_" + uuid.NewString(),
		UserID:      userID,
		RoomID:      roomID,
		SessionID:   sessionID,
		SizeBytes:   sizeBytes,
		DurationSec: durationSec,
		CreatedAt:   r.clock.Now(),
	}
	if err := r.store.InsertRecording(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// RecordUpload writes an Upload row and awards the first-submission-of-the-day
// point bonus when applicable. The bonus insert is guarded by a unique
// constraint on (user, room, day), so retries and concurrent submissions
// award at most once. Returns the upload row and whether the bonus was
// awarded by this call.
func (r *UsageRecorder) RecordUpload(ctx context.Context, userID, roomID, fileName string, sizeBytes int64) (*types.Upload, bool, error) {
	now := r.clock.Now()
	up := &types.Upload{
		ID:        "upl_" + uuid.NewString(),
		UserID:    userID,
		RoomID:    roomID,
		FileName:  fileName,
		SizeBytes: sizeBytes,
		CreatedAt: now,
	}
	if err := r.store.InsertUpload(ctx, up); err != nil {
		return nil, false, err
	}

	day, _ := DayWindow(now)
	entry := &types.PointEntry{
		ID:        "pt_" + uuid.NewString(),
		UserID:    userID,
		RoomID:    roomID,
		Reason:    types.PointSubmissionBonus,
		Points:    submissionBonusPoints,
		CreatedAt: now,
	}
	awarded, err := r.store.AwardSubmissionBonus(ctx, entry, day)
	if err != nil {
		return nil, false, err
	}
	if awarded {
		if err := r.users.AddPoints(ctx, userID, submissionBonusPoints); err != nil {
			// The point-history row is the source of truth for audits; a
			// failed denormalized counter update is logged by the caller and
			// reconciled from history, not rolled back.
			types.LoggerFromContext(ctx).Error("failed to apply submission bonus to user counter",
				"user_id", userID,
				"room_id", roomID,
				"error", err,
			)
		}
	}
	return up, awarded, nil
}
