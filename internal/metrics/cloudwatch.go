// Package metrics emits operational telemetry to CloudWatch.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"pomolink/internal/types"
)

// Namespace is the CloudWatch namespace all service metrics publish under.
const Namespace = "PomoLink/API"

// Metric and dimension names.
const (
	metricRequestCount   = "RequestCount"
	metricRequestLatency = "RequestLatency"
	metricLimitDenial    = "LimitDenial"

	dimMethod   = "Method"
	dimEndpoint = "Endpoint"
	dimStatus   = "Status"
	dimCode     = "Code"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability. Production code uses *cloudwatch.Client from aws-sdk-go-v2.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that Collector implements types.MetricsCollector.
var _ types.MetricsCollector = (*Collector)(nil)

// Collector publishes request and denial metrics to CloudWatch. Publish
// failures are logged, never surfaced; telemetry must not fail requests.
type Collector struct {
	client CloudWatchClient
	logger *slog.Logger
}

// NewCollector creates a Collector.
func NewCollector(client CloudWatchClient, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{client: client, logger: logger}
}

// RecordRequest emits a count and latency datum per handled request.
func (c *Collector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	dims := []cwtypes.Dimension{
		{Name: aws.String(dimMethod), Value: aws.String(method)},
		{Name: aws.String(dimEndpoint), Value: aws.String(endpoint)},
		{Name: aws.String(dimStatus), Value: aws.String(status)},
	}
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(Namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricRequestCount),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String(metricRequestLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: dims,
			},
		},
	}
	if _, err := c.client.PutMetricData(context.Background(), input); err != nil {
		c.logger.Error("failed to record request metric",
			slog.Any("error", err),
			slog.String("endpoint", endpoint),
		)
	}
}

// RecordDenial counts an admission-check denial by its wire-level code.
func (c *Collector) RecordDenial(code string) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(Namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricLimitDenial),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(dimCode), Value: aws.String(code)},
				},
			},
		},
	}
	if _, err := c.client.PutMetricData(context.Background(), input); err != nil {
		c.logger.Error("failed to record denial metric",
			slog.Any("error", err),
			slog.String("code", code),
		)
	}
}

// Noop is a MetricsCollector that discards everything, for local development
// and tests.
type Noop struct{}

// RecordRequest discards the datum.
func (Noop) RecordRequest(method, endpoint, status string, duration time.Duration) {}

// RecordDenial discards the datum.
func (Noop) RecordDenial(code string) {}
