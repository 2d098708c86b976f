package fanout

import (
	"encoding/json"
	"time"

	awsevents "github.com/aws/aws-lambda-go/events"
)

// FromSNSRecord converts a Lambda SNS record into a Notification.
func FromSNSRecord(r awsevents.SNSEventRecord) Notification {
	return Notification{
		MessageID:  r.SNS.MessageID,
		TopicARN:   r.SNS.TopicArn,
		Message:    r.SNS.Message,
		Attributes: snsAttributes(r.SNS.MessageAttributes),
		Timestamp:  r.SNS.Timestamp,
	}
}

// Lambda SNS events carry attributes as {"Type": ..., "Value": ...} objects.
func snsAttributes(raw map[string]interface{}) map[string]string {
	out := make(map[string]string, len(raw))
	for name, v := range raw {
		m, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		if s, ok := m["Value"].(string); ok {
			out[name] = s
		}
	}
	return out
}

type snsAttribute struct {
	Type  string `json:"Type"`
	Value string `json:"Value"`
}

// queueEnvelope is the JSON body SNS writes to an SQS subscriber when raw
// message delivery is off.
type queueEnvelope struct {
	Type              string                  `json:"Type"`
	MessageID         string                  `json:"MessageId"`
	TopicArn          string                  `json:"TopicArn"`
	Message           string                  `json:"Message"`
	Timestamp         time.Time               `json:"Timestamp"`
	MessageAttributes map[string]snsAttribute `json:"MessageAttributes,omitempty"`
}

// WrapForQueue renders n the way SNS delivers it to a queue subscriber.
func WrapForQueue(n Notification) (string, error) {
	env := queueEnvelope{
		Type:      "Notification",
		MessageID: n.MessageID,
		TopicArn:  n.TopicARN,
		Message:   n.Message,
		Timestamp: n.Timestamp,
	}
	if len(n.Attributes) > 0 {
		env.MessageAttributes = make(map[string]snsAttribute, len(n.Attributes))
		for k, v := range n.Attributes {
			env.MessageAttributes[k] = snsAttribute{Type: "String", Value: v}
		}
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// UnwrapQueueBody returns the published message inside an SNS queue body.
// ok is false when body is not an SNS notification, in which case body is
// the message itself (raw delivery).
func UnwrapQueueBody(body string) (n Notification, ok bool) {
	var env queueEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil || env.Type != "Notification" || env.Message == "" {
		return Notification{Message: body}, false
	}
	n = Notification{
		MessageID:  env.MessageID,
		TopicARN:   env.TopicArn,
		Message:    env.Message,
		Timestamp:  env.Timestamp,
		Attributes: make(map[string]string, len(env.MessageAttributes)),
	}
	for k, a := range env.MessageAttributes {
		n.Attributes[k] = a.Value
	}
	return n, true
}
