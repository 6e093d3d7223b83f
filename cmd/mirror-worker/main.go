// Package main is the entrypoint for the membership-mirror worker Lambda.
//
// The worker consumes membership events from the mirror SQS queue and
// projects them into the read-optimized mirror tables. Application is
// idempotent: each event id is recorded on first apply and redeliveries are
// skipped, so SQS at-least-once delivery converges on a single projection.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"

	"pomolink/internal/mirror"
	"pomolink/internal/types"
)

// Handler holds the worker dependencies across warm invocations.
type Handler struct {
	projector *mirror.Projector
	logger    *slog.Logger
}

// Handle processes an SQS event batch. Each record is applied independently;
// failed records are reported as partial batch failures so SQS redelivers
// only those.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.projector.ApplyMessage(ctx, []byte(record.Body)); err != nil {
			h.logger.ErrorContext(ctx, "failed to project membership event",
				slog.String("message_id", record.MessageId),
				slog.String("error", err.Error()),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return response, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}

	handler := &Handler{
		projector: mirror.NewProjector(pool, types.RealClock{}, logger),
		logger:    logger,
	}

	logger.Info("mirror worker starting")
	lambda.Start(handler.Handle)
	fmt.Fprintln(os.Stderr, "lambda runtime exited")
}
