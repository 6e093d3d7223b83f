// Package main is the entrypoint for the retention sweeper Lambda.
//
// Triggered on a daily schedule, the sweeper purges recording-usage rows
// older than each user's plan retention window and archives the purged rows
// to S3 as compressed JSON lines before deletion.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"pomolink/internal/billing"
	"pomolink/internal/db"
	"pomolink/internal/retention"
	"pomolink/internal/types"
)

// Handler holds the sweeper dependencies across warm invocations.
type Handler struct {
	sweeper *retention.Sweeper
	logger  *slog.Logger
}

// Handle runs one retention sweep. Per-user failures are already absorbed
// into the report; the invocation only errors when the sweep cannot start.
func (h *Handler) Handle(ctx context.Context) error {
	report, err := h.sweeper.Sweep(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "retention sweep failed", slog.String("error", err.Error()))
		return err
	}

	h.logger.InfoContext(ctx, "retention sweep completed",
		slog.Int("users_swept", report.UsersSwept),
		slog.Int("records_purged", report.RecordsPurged),
		slog.Int("failures", report.Failures),
	)
	return nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	databaseURL := os.Getenv("DATABASE_URL")
	bucket := os.Getenv("ARCHIVE_BUCKET")
	if databaseURL == "" || bucket == "" {
		logger.Error("DATABASE_URL and ARCHIVE_BUCKET are required")
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS configuration", "error", err)
		os.Exit(1)
	}
	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint := os.Getenv("AWS_ENDPOINT_URL"); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	sweeper := retention.NewSweeper(
		db.NewUserRepository(pool),
		db.NewUsageRepository(pool),
		billing.NewStaticPlanRegistry(),
		retention.NewS3Archiver(s3Client, bucket),
		types.RealClock{},
		logger,
	)

	handler := &Handler{sweeper: sweeper, logger: logger}

	logger.Info("retention sweeper starting")
	lambda.Start(handler.Handle)
	fmt.Fprintln(os.Stderr, "lambda runtime exited")
}
