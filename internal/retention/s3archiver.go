package retention

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"pomolink/internal/types"
)

// S3Client is the subset of the S3 API the archiver needs. Satisfied by
// *s3.Client.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver writes purged-recording archives to an S3 bucket, one object
// per user per sweep day.
type S3Archiver struct {
	client S3Client
	bucket string
}

// NewS3Archiver creates an S3Archiver.
func NewS3Archiver(client S3Client, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket}
}

// Store uploads one user's compressed archive. Keys are date-partitioned so
// lifecycle rules can expire old archives by prefix.
func (a *S3Archiver) Store(ctx context.Context, userID string, day time.Time, compressed []byte) error {
	key := fmt.Sprintf("recordings/%s/%s.jsonl.zst", day.UTC().Format("2006-01-02"), userID)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(compressed),
		ContentType: aws.String("application/zstd"),
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to store recording archive", err)
	}
	return nil
}
