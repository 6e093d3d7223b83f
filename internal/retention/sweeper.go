// Package retention purges recording usage past each plan's retention window,
// exporting the purged rows as zstd-compressed JSON lines for cold storage.
package retention

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"pomolink/internal/billing"
	"pomolink/internal/types"
)

// sweepConcurrency bounds how many users one sweep processes in parallel.
const sweepConcurrency = 8

// UsagePurger is the data access surface the sweeper needs.
type UsagePurger interface {
	ListUserIDsWithRecordings(ctx context.Context) ([]string, error)
	DeleteRecordingsBefore(ctx context.Context, userID string, cutoff time.Time) ([]types.RecordingUsage, error)
}

// Archiver stores one user's purged recordings. Production wires an S3
// uploader; tests use an in-memory sink.
type Archiver interface {
	Store(ctx context.Context, userID string, day time.Time, compressed []byte) error
}

// SweepReport summarizes one retention sweep.
type SweepReport struct {
	UsersSwept    int
	RecordsPurged int
	Failures      int
}

// Sweeper applies each user's plan retention window to their recording rows.
// A user's cutoff follows their CURRENT plan, so a downgrade shortens the
// window on the next sweep and an upgrade lengthens it.
type Sweeper struct {
	users    types.UserStore
	usage    UsagePurger
	plans    billing.PlanRegistry
	archiver Archiver
	clock    types.Clock
	logger   *slog.Logger
}

// NewSweeper constructs a Sweeper. A nil clock defaults to the real system
// clock.
func NewSweeper(
	users types.UserStore,
	usage UsagePurger,
	plans billing.PlanRegistry,
	archiver Archiver,
	clock types.Clock,
	logger *slog.Logger,
) *Sweeper {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		users:    users,
		usage:    usage,
		plans:    plans,
		archiver: archiver,
		clock:    clock,
		logger:   logger,
	}
}

// Sweep purges every user's expired recordings. Per-user failures are logged
// and counted but never stop the sweep; one broken account must not block
// retention for everyone else.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepReport, error) {
	userIDs, err := s.usage.ListUserIDsWithRecordings(ctx)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{}
	results := make([]int, len(userIDs))
	failed := make([]bool, len(userIDs))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for i, userID := range userIDs {
		g.Go(func() error {
			purged, err := s.sweepUser(gCtx, userID)
			if err != nil {
				s.logger.ErrorContext(gCtx, "retention sweep failed for user",
					slog.String("user_id", userID),
					slog.Any("error", err),
				)
				failed[i] = true
				return nil
			}
			results[i] = purged
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range userIDs {
		report.UsersSwept++
		report.RecordsPurged += results[i]
		if failed[i] {
			report.Failures++
		}
	}

	s.logger.InfoContext(ctx, "retention sweep finished",
		slog.Int("users", report.UsersSwept),
		slog.Int("purged", report.RecordsPurged),
		slog.Int("failures", report.Failures),
	)
	return report, nil
}

// sweepUser purges one user's expired recordings and archives them. Returns
// how many rows were purged.
func (s *Sweeper) sweepUser(ctx context.Context, userID string) (int, error) {
	cutoff, err := s.cutoffFor(ctx, userID)
	if err != nil {
		return 0, err
	}

	purged, err := s.usage.DeleteRecordingsBefore(ctx, userID, cutoff)
	if err != nil {
		return 0, err
	}
	if len(purged) == 0 {
		return 0, nil
	}

	compressed, err := encodeArchive(purged)
	if err != nil {
		return 0, err
	}
	if err := s.archiver.Store(ctx, userID, s.clock.Now(), compressed); err != nil {
		return 0, err
	}
	return len(purged), nil
}

// cutoffFor computes the retention cutoff from the user's current plan. A
// user the sweep can no longer resolve gets the FREE window.
func (s *Sweeper) cutoffFor(ctx context.Context, userID string) (time.Time, error) {
	plan := types.PlanFree
	if user, err := s.users.GetByID(ctx, userID); err == nil {
		plan = user.Plan
	}
	limits := s.plans.GetLimits(plan)
	return s.clock.Now().AddDate(0, 0, -limits.RetentionDays), nil
}

// encodeArchive serializes recordings as JSON lines and compresses them with
// zstd.
func encodeArchive(records []types.RecordingUsage) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	for i := range records {
		line, err := json.Marshal(&records[i])
		if err != nil {
			enc.Close()
			return nil, err
		}
		if _, err := enc.Write(append(line, '\n')); err != nil {
			enc.Close()
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
