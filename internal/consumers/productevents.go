package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/eventstore"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/events"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/logging"
)

// ProductEventResponse is what the product-event function returns to its caller.
type ProductEventResponse struct {
	ProductEventCreated bool   `json:"productEventCreated"`
	Message             string `json:"message"`
}

// ProductEventRecorder records product events. It is invoked synchronously
// by the product admin operations, not through the topic.
type ProductEventRecorder struct {
	store  Appender
	logger *zap.Logger
}

func NewProductEventRecorder(store Appender, logger *zap.Logger) *ProductEventRecorder {
	return &ProductEventRecorder{store: store, logger: logger}
}

// Handle decodes env and appends it under the product code.
func (r *ProductEventRecorder) Handle(ctx context.Context, env events.Envelope) (ProductEventResponse, error) {
	ev, err := events.Decode(env)
	if err != nil {
		return ProductEventResponse{}, err
	}
	pe, ok := ev.(events.ProductEvent)
	if !ok {
		return ProductEventResponse{}, apperrors.Permanent(fmt.Errorf("product events: got %s", ev.EventType()))
	}
	rec, err := eventstore.FromEvent(pe, "")
	if err != nil {
		return ProductEventResponse{}, err
	}
	if _, err := r.store.Append(ctx, rec); err != nil {
		logging.Error(ctx, r.logger, "failed to record product event",
			zap.String("event_type", string(pe.Type)),
			zap.String("product_id", pe.ProductID),
			zap.Error(err),
		)
		return ProductEventResponse{}, err
	}
	logging.Info(ctx, r.logger, "product event recorded",
		zap.String("event_type", string(pe.Type)),
		zap.String("product_id", pe.ProductID),
		zap.String("request_id", pe.RequestID),
	)
	return ProductEventResponse{ProductEventCreated: true, Message: "OK"}, nil
}

// Invoker calls the product-event function and returns its raw response.
type Invoker interface {
	Invoke(ctx context.Context, payload []byte) ([]byte, error)
}

// DirectInvoker runs a ProductEventRecorder in-process with the same JSON
// contract as the deployed function.
type DirectInvoker struct {
	Recorder *ProductEventRecorder
}

func (d DirectInvoker) Invoke(ctx context.Context, payload []byte) ([]byte, error) {
	var env events.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, apperrors.Permanent(fmt.Errorf("product events payload: %w", err))
	}
	resp, err := d.Recorder.Handle(ctx, env)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resp)
}

// ProductEventClient sends product events to the product-event function
// and waits for its answer. There is no retry.
type ProductEventClient struct {
	invoker Invoker
}

func NewProductEventClient(invoker Invoker) *ProductEventClient {
	return &ProductEventClient{invoker: invoker}
}

// Record implements the product service's event sink.
func (c *ProductEventClient) Record(ctx context.Context, ev events.ProductEvent) error {
	payload, err := events.Marshal(ev)
	if err != nil {
		return err
	}
	out, err := c.invoker.Invoke(ctx, payload)
	if err != nil {
		return fmt.Errorf("product event %s: %w", ev.Type, err)
	}
	var resp ProductEventResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return fmt.Errorf("product event %s: bad response: %w", ev.Type, err)
	}
	if !resp.ProductEventCreated {
		return errors.New("product event " + string(ev.Type) + " not created: " + resp.Message)
	}
	return nil
}
