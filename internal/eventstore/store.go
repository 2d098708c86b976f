// Package eventstore keeps a short-lived trail of every delivered event in
// DynamoDB, keyed by entity and ordered by type and append time.
package eventstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/aws"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/events"
)

// DefaultTTL is how long a record stays retrievable after it is appended.
const DefaultTTL = 5 * time.Minute

var tracer = otel.Tracer("github.com/antoniobritto07/ecommerce-aws-cdk/internal/eventstore")

// Store appends to and reads from the events table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

// NewStore returns a Store. A non-positive ttlWindow falls back to DefaultTTL.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	if ttlWindow <= 0 {
		ttlWindow = DefaultTTL
	}
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// appendAttempts bounds how many later milliseconds Append tries when the
// sort key for the current one is taken.
const appendAttempts = 5

// Append stamps rec with the append time and writes it as a new item. A
// redelivered event becomes a new line with its own sort key. When another
// record of the same type and entity already holds this millisecond, the
// record moves to the next free one.
func (s *Store) Append(ctx context.Context, rec EventRecord) (*EventRecord, error) {
	ctx, span := tracer.Start(ctx, "EventStore.Append",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("event.type", string(rec.EventType)),
			attribute.String("event.pk", rec.PK),
		),
	)
	defer span.End()

	if rec.PK == "" || rec.EventType == "" {
		return nil, apperrors.Invalid("record", "pk and eventType are required")
	}

	now := s.nowFunc()
	rec.TTL = now.Add(s.ttlWindow).Unix()
	millis := now.UnixMilli()

	for attempt := 0; attempt < appendAttempts; attempt++ {
		rec.CreatedAt = millis + int64(attempt)
		rec.SK = SortKey(rec.EventType, rec.CreatedAt)

		item, err := attributevalue.MarshalMap(rec)
		if err != nil {
			return nil, fmt.Errorf("marshal event record: %w", err)
		}
		_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
			TableName:           &s.tableName,
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(sk)"),
		})
		if err == nil {
			return &rec, nil
		}
		if aws.IsConditionFailed(err) {
			continue
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, apperrors.Transient(fmt.Errorf("put event record: %w", err))
	}

	err := fmt.Errorf("no free sort key for %s within %d ms", rec.PK, appendAttempts)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return nil, apperrors.Transient(err)
}

// ListByEntity returns the live records of one entity in sort-key order.
// DynamoDB deletes expired items lazily, so expiry is also enforced here.
func (s *Store) ListByEntity(ctx context.Context, kind events.Kind, id string) ([]EventRecord, error) {
	now := s.nowFunc().UnixMilli()
	window := s.ttlWindow.Milliseconds()

	var (
		out   []EventRecord
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			KeyConditionExpression: aws.String("pk = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: PartitionKey(kind, id)},
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, apperrors.Transient(fmt.Errorf("query event records: %w", err))
		}
		var batch []EventRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal event records: %w", err)
		}
		for _, rec := range batch {
			if now >= rec.CreatedAt+window {
				continue
			}
			out = append(out, rec)
		}
		if len(page.LastEvaluatedKey) == 0 {
			return out, nil
		}
		start = page.LastEvaluatedKey
	}
}
