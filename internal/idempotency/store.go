// Package idempotency stores dedup markers that let at-least-once consumers
// perform non-idempotent side effects at most once per event.
package idempotency

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/aws"
)

// Store encapsulates dedup marker operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // how long a marker outlives its creation
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for markers.
// ttlWindow: marker lifetime (e.g., 48*time.Hour); keep it above the queue's
// redelivery horizon so a late redelivery still finds the marker.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

func (s *Store) key(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

// Claim creates an IN_PROGRESS marker if none exists.
// Returns (true, nil) if this caller now owns the side effect.
// Returns (false, nil) if a marker already exists (caller should Get to inspect).
func (s *Store) Claim(ctx context.Context, key, eventType string) (bool, error) {
	now := s.nowFunc()
	rec := Record{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		EventType:      eventType,
		Attempts:       1,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal marker: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(idempotency_key)"),
	})
	if err != nil {
		if aws.IsConditionFailed(err) {
			return false, nil
		}
		return false, apperrors.Transient(fmt.Errorf("put marker: %w", err))
	}
	return true, nil
}

// Reclaim moves a FAILED marker back to IN_PROGRESS so the side effect can be
// retried. Returns (false, nil) when the marker is not FAILED.
func (s *Store) Reclaim(ctx context.Context, key string, attempt int) (bool, error) {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(key),
		ConditionExpression:      aws.String("#s = :failed"),
		UpdateExpression:         aws.String("SET #s = :running, attempts = :a, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed":  &types.AttributeValueMemberS{Value: StatusFailed},
			":running": &types.AttributeValueMemberS{Value: StatusInProgress},
			":a":       &types.AttributeValueMemberN{Value: strconv.Itoa(attempt)},
			":ua":      &types.AttributeValueMemberS{Value: s.nowFunc().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		if aws.IsConditionFailed(err) {
			return false, nil
		}
		return false, apperrors.Transient(fmt.Errorf("update marker (reclaim): %w", err))
	}
	return true, nil
}

// Takeover moves an IN_PROGRESS marker to a new owner when its holder has
// gone quiet. seen must be the UpdatedAt the caller read; the write fails
// with (false, nil) if anyone touched the marker since.
func (s *Store) Takeover(ctx context.Context, key string, seen time.Time, attempt int) (bool, error) {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(key),
		ConditionExpression:      aws.String("#s = :running AND updated_at = :seen"),
		UpdateExpression:         aws.String("SET attempts = :a, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":running": &types.AttributeValueMemberS{Value: StatusInProgress},
			":seen":    &types.AttributeValueMemberS{Value: seen.Format(time.RFC3339Nano)},
			":a":       &types.AttributeValueMemberN{Value: strconv.Itoa(attempt)},
			":ua":      &types.AttributeValueMemberS{Value: s.nowFunc().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		if aws.IsConditionFailed(err) {
			return false, nil
		}
		return false, apperrors.Transient(fmt.Errorf("update marker (takeover): %w", err))
	}
	return true, nil
}

// Get retrieves a marker by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, apperrors.Transient(fmt.Errorf("get marker: %w", err))
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal marker: %w", err)
	}
	return &rec, nil
}

// MarkDone records that the side effect happened. resultRef identifies it
// downstream (for emails, the provider message id).
func (s *Store) MarkDone(ctx context.Context, key, resultRef string) error {
	return s.transition(ctx, key, StatusDone, "result_ref", resultRef)
}

// MarkFailed records a failed attempt so a redelivery may Reclaim it.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	return s.transition(ctx, key, StatusFailed, "note", note)
}

func (s *Store) transition(ctx context.Context, key, status, field, value string) error {
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      s.key(key),
		ConditionExpression:      aws.String("attribute_exists(idempotency_key)"),
		UpdateExpression:         aws.String("SET #s = :s, " + field + " = :v, updated_at = :ua"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":s":  &types.AttributeValueMemberS{Value: status},
			":v":  &types.AttributeValueMemberS{Value: value},
			":ua": &types.AttributeValueMemberS{Value: s.nowFunc().Format(time.RFC3339Nano)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		if aws.IsConditionFailed(err) {
			return apperrors.NotFound("marker", key)
		}
		return apperrors.Transient(fmt.Errorf("update marker (%s): %w", status, err))
	}
	return nil
}
