package retention

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pomolink/internal/billing"
	"pomolink/internal/types"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var sweepNow = time.Date(2025, 6, 15, 3, 0, 0, 0, time.UTC)

type sweepUsers struct {
	plans map[string]types.PlanTier
}

func (s *sweepUsers) GetByID(_ context.Context, id string) (*types.User, error) {
	plan, ok := s.plans[id]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return &types.User{ID: id, Plan: plan}, nil
}

func (s *sweepUsers) GetByExternalID(context.Context, string) (*types.User, error) {
	return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
}

func (s *sweepUsers) UpsertByEmail(_ context.Context, u *types.User) (*types.User, error) {
	return u, nil
}

func (s *sweepUsers) DeleteByExternalID(context.Context, string) error { return nil }

func (s *sweepUsers) UpdatePlan(context.Context, string, types.PlanTier) error { return nil }

func (s *sweepUsers) AddPoints(context.Context, string, int) error { return nil }

// memPurger holds per-user recording rows keyed by CreatedAt.
type memPurger struct {
	mu      sync.Mutex
	rows    map[string][]types.RecordingUsage
	cutoffs map[string]time.Time
	failFor string
}

func newMemPurger() *memPurger {
	return &memPurger{
		rows:    make(map[string][]types.RecordingUsage),
		cutoffs: make(map[string]time.Time),
	}
}

func (m *memPurger) add(userID string, age time.Duration) {
	m.rows[userID] = append(m.rows[userID], types.RecordingUsage{
		ID:        "rec_" + userID + "_" + age.String(),
		UserID:    userID,
		RoomID:    "room_1",
		CreatedAt: sweepNow.Add(-age),
	})
}

func (m *memPurger) ListUserIDsWithRecordings(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.rows {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *memPurger) DeleteRecordingsBefore(_ context.Context, userID string, cutoff time.Time) ([]types.RecordingUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if userID == m.failFor {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "purge failed", nil)
	}
	m.cutoffs[userID] = cutoff

	var kept, purged []types.RecordingUsage
	for _, r := range m.rows[userID] {
		if r.CreatedAt.Before(cutoff) {
			purged = append(purged, r)
		} else {
			kept = append(kept, r)
		}
	}
	m.rows[userID] = kept
	return purged, nil
}

type memArchiver struct {
	mu     sync.Mutex
	stored map[string][]byte // userID -> compressed payload
	err    error
}

func newMemArchiver() *memArchiver {
	return &memArchiver{stored: make(map[string][]byte)}
}

func (a *memArchiver) Store(_ context.Context, userID string, _ time.Time, compressed []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.stored[userID] = compressed
	return nil
}

func newSweepFixture(users *sweepUsers, purger *memPurger, archiver *memArchiver) *Sweeper {
	return NewSweeper(users, purger, billing.NewStaticPlanRegistry(), archiver,
		fixedClock{t: sweepNow}, nil)
}

func TestSweeper_CutoffFollowsCurrentPlan(t *testing.T) {
	users := &sweepUsers{plans: map[string]types.PlanTier{
		"usr_free":  types.PlanFree,
		"usr_basic": types.PlanBasic,
		"usr_pro":   types.PlanPro,
	}}
	purger := newMemPurger()
	for _, id := range []string{"usr_free", "usr_basic", "usr_pro"} {
		purger.add(id, time.Hour) // fresh row keeps each user in the sweep
	}

	_, err := newSweepFixture(users, purger, newMemArchiver()).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sweepNow.AddDate(0, 0, -7), purger.cutoffs["usr_free"])
	assert.Equal(t, sweepNow.AddDate(0, 0, -30), purger.cutoffs["usr_basic"])
	assert.Equal(t, sweepNow.AddDate(0, 0, -90), purger.cutoffs["usr_pro"])
}

func TestSweeper_UnresolvableUserGetsFreeWindow(t *testing.T) {
	users := &sweepUsers{plans: map[string]types.PlanTier{}}
	purger := newMemPurger()
	purger.add("usr_gone", time.Hour)

	_, err := newSweepFixture(users, purger, newMemArchiver()).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sweepNow.AddDate(0, 0, -7), purger.cutoffs["usr_gone"])
}

func TestSweeper_PurgesExpiredAndArchives(t *testing.T) {
	users := &sweepUsers{plans: map[string]types.PlanTier{"usr_1": types.PlanFree}}
	purger := newMemPurger()
	purger.add("usr_1", 10*24*time.Hour) // past the 7-day window
	purger.add("usr_1", 8*24*time.Hour)
	purger.add("usr_1", 2*24*time.Hour) // still inside
	archiver := newMemArchiver()

	report, err := newSweepFixture(users, purger, archiver).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.UsersSwept)
	assert.Equal(t, 2, report.RecordsPurged)
	assert.Zero(t, report.Failures)
	assert.Len(t, purger.rows["usr_1"], 1, "rows inside the window survive")

	// The archive decompresses back to one JSON line per purged row.
	compressed, ok := archiver.stored["usr_1"]
	require.True(t, ok)
	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	defer dec.Close()
	raw, err := io.ReadAll(dec)
	require.NoError(t, err)

	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	require.Len(t, lines, 2)
	var rec types.RecordingUsage
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "usr_1", rec.UserID)
}

func TestSweeper_NothingExpiredSkipsArchive(t *testing.T) {
	users := &sweepUsers{plans: map[string]types.PlanTier{"usr_1": types.PlanPro}}
	purger := newMemPurger()
	purger.add("usr_1", 24*time.Hour)
	archiver := newMemArchiver()

	report, err := newSweepFixture(users, purger, archiver).Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.RecordsPurged)
	assert.Empty(t, archiver.stored)
}

func TestSweeper_PerUserFailureDoesNotStopSweep(t *testing.T) {
	users := &sweepUsers{plans: map[string]types.PlanTier{
		"usr_ok":     types.PlanFree,
		"usr_broken": types.PlanFree,
	}}
	purger := newMemPurger()
	purger.add("usr_ok", 10*24*time.Hour)
	purger.add("usr_broken", 10*24*time.Hour)
	purger.failFor = "usr_broken"
	archiver := newMemArchiver()

	report, err := newSweepFixture(users, purger, archiver).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.UsersSwept)
	assert.Equal(t, 1, report.Failures)
	assert.Equal(t, 1, report.RecordsPurged)
	assert.Contains(t, archiver.stored, "usr_ok")
}

func TestSweeper_ArchiveFailureCountsAsFailure(t *testing.T) {
	users := &sweepUsers{plans: map[string]types.PlanTier{"usr_1": types.PlanFree}}
	purger := newMemPurger()
	purger.add("usr_1", 10*24*time.Hour)
	archiver := newMemArchiver()
	archiver.err = errors.New("bucket unavailable")

	report, err := newSweepFixture(users, purger, archiver).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failures)
	assert.Zero(t, report.RecordsPurged)
}

// --- S3Archiver ---

type capturingS3 struct {
	input *s3.PutObjectInput
	err   error
}

func (c *capturingS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	c.input = in
	if c.err != nil {
		return nil, c.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archiver_StoreWritesDatePartitionedKey(t *testing.T) {
	client := &capturingS3{}
	archiver := NewS3Archiver(client, "pomolink-archives")

	payload := []byte("compressed-bytes")
	err := archiver.Store(context.Background(), "usr_1", sweepNow, payload)
	require.NoError(t, err)

	require.NotNil(t, client.input)
	assert.Equal(t, "pomolink-archives", *client.input.Bucket)
	assert.Equal(t, "recordings/2025-06-15/usr_1.jsonl.zst", *client.input.Key)
	assert.Equal(t, "application/zstd", *client.input.ContentType)

	body, err := io.ReadAll(client.input.Body)
	require.NoError(t, err)
	assert.Equal(t, payload, body)
}

func TestS3Archiver_StoreMapsFailure(t *testing.T) {
	client := &capturingS3{err: errors.New("access denied")}
	archiver := NewS3Archiver(client, "pomolink-archives")

	err := archiver.Store(context.Background(), "usr_1", sweepNow, []byte("x"))
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalUnexpected, appErr.Code)
}
