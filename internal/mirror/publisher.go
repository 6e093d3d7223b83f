// Package mirror moves membership changes from the relational outbox into the
// read-optimized mirror. The publisher drains unpublished outbox rows to SQS;
// the projector consumes the queue and applies each event exactly once.
package mirror

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"pomolink/internal/db"
	"pomolink/internal/types"
)

// defaultBatchSize bounds how many outbox rows one drain cycle picks up.
const defaultBatchSize = 25

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// OutboxPublisher drains the membership outbox to the mirror queue.
//
// Each drain cycle runs in one transaction: the FOR UPDATE SKIP LOCKED fetch
// keeps concurrent publisher instances off the same rows, and only rows whose
// send succeeded get their published_at stamped. A crash between send and
// commit re-sends those events; the projector's event-id dedupe absorbs that.
type OutboxPublisher struct {
	pool      db.Pool
	client    SQSSender
	queueURL  string
	batchSize int
	clock     types.Clock
	logger    *slog.Logger
}

// NewOutboxPublisher constructs an OutboxPublisher. A nil clock defaults to
// the real system clock.
func NewOutboxPublisher(pool db.Pool, client SQSSender, queueURL string, clock types.Clock, logger *slog.Logger) *OutboxPublisher {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OutboxPublisher{
		pool:      pool,
		client:    client,
		queueURL:  queueURL,
		batchSize: defaultBatchSize,
		clock:     clock,
		logger:    logger,
	}
}

// Drain publishes one batch of unpublished outbox events and returns how many
// were sent. A send failure stops the batch; events already sent in the cycle
// are still marked published.
func (p *OutboxPublisher) Drain(ctx context.Context) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	outbox := db.NewOutboxRepository(tx)
	events, err := outbox.FetchUnpublished(ctx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	var sentIDs []string
	var sendErr error
	for i := range events {
		if err := p.send(ctx, &events[i]); err != nil {
			sendErr = err
			break
		}
		sentIDs = append(sentIDs, events[i].ID)
	}

	if len(sentIDs) > 0 {
		if err := outbox.MarkPublished(ctx, sentIDs, p.clock.Now()); err != nil {
			return 0, err
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to commit outbox drain", err)
		}
	}

	if sendErr != nil {
		return len(sentIDs), types.NewAppError(types.ErrCodeUpstreamMirror, "failed to publish outbox event", sendErr)
	}
	return len(sentIDs), nil
}

// Run drains the outbox on the given interval until the context ends.
func (p *OutboxPublisher) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := p.Drain(ctx)
			if err != nil {
				p.logger.ErrorContext(ctx, "outbox drain failed",
					slog.Int("published", n),
					slog.Any("error", err),
				)
				continue
			}
			if n > 0 {
				p.logger.InfoContext(ctx, "outbox drained", slog.Int("published", n))
			}
		}
	}
}

func (p *OutboxPublisher) send(ctx context.Context, evt *types.MembershipEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"event_type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(evt.EventType)),
			},
		},
	})
	return err
}
