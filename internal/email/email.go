package email

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog"
)

// Sender delivers one message. false and a non-nil error both mean failure.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) (bool, error)
}

type SESSender struct {
	client    *sesv2.Client
	fromEmail string
}

func NewSESSender(cfg aws.Config, from string) (*SESSender, error) {
	if from == "" {
		return nil, fmt.Errorf("SES_FROM_EMAIL is not set")
	}
	return &SESSender{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: from,
	}, nil
}

func (s *SESSender) Send(ctx context.Context, to, subject, html string) (bool, error) {
	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.fromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(html), Charset: aws.String("UTF-8")},
				},
			},
		},
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// LogSender only logs; used when no transport is configured.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) Send(ctx context.Context, to, subject, html string) (bool, error) {
	s.Log.Info().Str("to", to).Str("subject", subject).Int("bytes", len(html)).Msg("email (log transport)")
	return true, nil
}
