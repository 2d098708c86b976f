// Package fanout models the order-events topic subscriptions: which event
// types each subscriber receives and how a copy reaches it.
package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/bus"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/events"
)

// Subscription names as deployed.
const (
	SubscriptionAudit   = "order-events-audit"
	SubscriptionBilling = "billing"
	SubscriptionEmails  = "order-events-queue"
)

// Notification is one delivered copy of a published message.
type Notification struct {
	MessageID  string
	TopicARN   string
	Message    string
	Attributes map[string]string
	Timestamp  time.Time
}

// EventType returns the routing attribute of the notification.
func (n Notification) EventType() events.Type {
	return events.Type(n.Attributes[bus.AttrEventType])
}

// Target receives notifications for one subscription.
type Target interface {
	Deliver(ctx context.Context, n Notification) error
}

// TargetFunc adapts a function to Target.
type TargetFunc func(ctx context.Context, n Notification) error

func (f TargetFunc) Deliver(ctx context.Context, n Notification) error { return f(ctx, n) }

// Subscription receives every message whose eventType attribute is in
// Allow. An empty Allow receives everything.
type Subscription struct {
	Name   string
	Allow  []events.Type
	Target Target
}

// Accepts evaluates the filter against message attributes only.
func (s Subscription) Accepts(attrs map[string]string) bool {
	if len(s.Allow) == 0 {
		return true
	}
	v, ok := attrs[bus.AttrEventType]
	if !ok {
		return false
	}
	for _, t := range s.Allow {
		if string(t) == v {
			return true
		}
	}
	return false
}

// FilterPolicy renders the SNS subscription filter policy. ok is false for
// unfiltered subscriptions.
func (s Subscription) FilterPolicy() (policy string, ok bool) {
	if len(s.Allow) == 0 {
		return "", false
	}
	allow := make([]string, 0, len(s.Allow))
	for _, t := range s.Allow {
		allow = append(allow, string(t))
	}
	b, err := json.Marshal(map[string][]string{bus.AttrEventType: allow})
	if err != nil {
		panic(fmt.Sprintf("fanout: marshal filter policy: %v", err))
	}
	return string(b), true
}

// OrderSubscriptions returns the three subscriptions of the order-events
// topic: unfiltered audit, and ORDER_CREATED for billing and the email queue.
func OrderSubscriptions(audit, billing, emailQueue Target) []Subscription {
	return []Subscription{
		{Name: SubscriptionAudit, Target: audit},
		{Name: SubscriptionBilling, Allow: []events.Type{events.OrderCreated}, Target: billing},
		{Name: SubscriptionEmails, Allow: []events.Type{events.OrderCreated}, Target: emailQueue},
	}
}
