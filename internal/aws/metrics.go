package aws

import (
	"context"
	"fmt"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names alarms are configured on.
const (
	MetricPublishFailures = "EventPublishFailures"
	MetricDeadLettered    = "MessagesDeadLettered"
)

// FailureMetrics records alertable conditions as CloudWatch custom metrics.
type FailureMetrics struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewFailureMetrics returns a recorder publishing under namespace.
func NewFailureMetrics(cw CloudWatchAPI, namespace string) *FailureMetrics {
	return &FailureMetrics{
		client:    cw,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// PublishFailed counts one event that could not be placed on the bus.
func (m *FailureMetrics) PublishFailed(ctx context.Context, eventType string) error {
	return m.put(ctx, MetricPublishFailures, "EventType", eventType)
}

// DeadLettered counts one message parked in a dead-letter queue.
func (m *FailureMetrics) DeadLettered(ctx context.Context, queueName string) error {
	return m.put(ctx, MetricDeadLettered, "Queue", queueName)
}

func (m *FailureMetrics) put(ctx context.Context, name, dimName, dimValue string) error {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: &m.namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: sdkaws.String(name),
				Dimensions: []cwtypes.Dimension{
					{Name: sdkaws.String(dimName), Value: sdkaws.String(dimValue)},
				},
				Timestamp: sdkaws.Time(m.nowFunc()),
				Unit:      cwtypes.StandardUnitCount,
				Value:     sdkaws.Float64(1),
			},
		},
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		return fmt.Errorf("put metric %s: %w", name, err)
	}
	return nil
}
