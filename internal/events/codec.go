package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
)

// ErrMalformedEnvelope marks an envelope that can never be processed.
// Errors wrapping it are also apperrors.ErrPermanent.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Envelope is the wire wrapper. Data holds the JSON encoded event.
type Envelope struct {
	EventType Type   `json:"eventType"`
	Data      string `json:"data"`
}

func malformed(format string, args ...any) error {
	return apperrors.Permanent(fmt.Errorf("%w: %s", ErrMalformedEnvelope, fmt.Sprintf(format, args...)))
}

// Encode wraps ev into an envelope. The event type must belong to the
// event's entity kind.
func Encode(ev DomainEvent) (Envelope, error) {
	if ev == nil {
		return Envelope{}, errors.New("encode: nil event")
	}
	kind, ok := ev.EventType().Kind()
	if !ok {
		return Envelope{}, fmt.Errorf("encode: unknown event type %q", ev.EventType())
	}
	if kind != ev.EntityKind() {
		return Envelope{}, fmt.Errorf("encode: event type %s on %s event", ev.EventType(), ev.EntityKind())
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", ev.EventType(), err)
	}
	return Envelope{EventType: ev.EventType(), Data: string(data)}, nil
}

// Decode rebuilds the event carried by env. A payload that does not match
// the declared type is rejected with ErrMalformedEnvelope.
func Decode(env Envelope) (DomainEvent, error) {
	kind, ok := env.EventType.Kind()
	if !ok {
		return nil, malformed("unknown event type %q", env.EventType)
	}

	switch kind {
	case KindOrder:
		var ev OrderEvent
		if err := strictUnmarshal([]byte(env.Data), &ev); err != nil {
			return nil, malformed("%s payload: %v", env.EventType, err)
		}
		if ev.OrderID == "" || ev.Email == "" {
			return nil, malformed("%s payload: orderId and email are required", env.EventType)
		}
		ev.Type = env.EventType
		return ev, nil
	case KindProduct:
		var ev ProductEvent
		if err := strictUnmarshal([]byte(env.Data), &ev); err != nil {
			return nil, malformed("%s payload: %v", env.EventType, err)
		}
		if ev.ProductID == "" || ev.ProductCode == "" {
			return nil, malformed("%s payload: productId and productCode are required", env.EventType)
		}
		ev.Type = env.EventType
		return ev, nil
	}
	return nil, malformed("unhandled kind %q", kind)
}

// Marshal encodes ev and serializes the envelope for the wire.
func Marshal(ev DomainEvent) ([]byte, error) {
	env, err := Encode(ev)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// ParseEnvelope reads an envelope from a message body.
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := strictUnmarshal(body, &env); err != nil {
		return Envelope{}, malformed("envelope: %v", err)
	}
	if env.EventType == "" || env.Data == "" {
		return Envelope{}, malformed("envelope: eventType and data are required")
	}
	return env, nil
}

// Unmarshal parses a message body and decodes the event inside it.
func Unmarshal(body []byte) (DomainEvent, error) {
	env, err := ParseEnvelope(body)
	if err != nil {
		return nil, err
	}
	return Decode(env)
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	return nil
}
