package aws

import (
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESMailer sends plain-text emails through SES.
type SESMailer struct {
	SES  SESAPI
	From string
}

// NewSESMailer returns a mailer sending from the given address.
func NewSESMailer(client SESAPI, from string) *SESMailer {
	return &SESMailer{SES: client, From: from}
}

// Send delivers one message and returns the SES message id.
func (m *SESMailer) Send(ctx context.Context, to, subject, body string) (string, error) {
	out, err := m.SES.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: &m.From,
		Destination:      &sestypes.Destination{ToAddresses: []string{to}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: sdkaws.String(subject)},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: sdkaws.String(body)},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	return sdkaws.ToString(out.MessageId), nil
}
