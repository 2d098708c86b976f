package idempotency

import (
	"strings"
	"time"
)

// Status values for dedup markers
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Record is a dedup marker persisted in the idempotency table. It records
// that a side effect for one event was attempted or completed.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	EventType      string    `dynamodbav:"event_type,omitempty"`
	ResultRef      string    `dynamodbav:"result_ref,omitempty"` // e.g. SES message id
	Attempts       int       `dynamodbav:"attempts"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}

// Key joins the parts identifying one side effect, e.g. Key("email", orderID, eventType).
func Key(parts ...string) string {
	return strings.Join(parts, "#")
}
