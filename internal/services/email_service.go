package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/stridefit/stride-auth/pkg/logger"
)

// Sender delivers account emails. Tokens are passed in plain form; only the
// outgoing mail ever carries them, storage holds hashes.
type Sender interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

// SESSender sends account emails through AWS SES.
type SESSender struct {
	client      *ses.Client
	fromAddress string
	baseURL     string
	logger      *slog.Logger
}

// NewSESSender creates a Sender backed by AWS SES in the given region.
func NewSESSender(region, fromAddress, baseURL string, log *slog.Logger) (*SESSender, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESSender{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		baseURL:     baseURL,
		logger:      log,
	}, nil
}

func (s *SESSender) SendVerificationEmail(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, token)

	textBody := fmt.Sprintf(`Welcome to Stride!

Confirm your email address to finish setting up your account:

%s

This link expires in 24 hours. If you didn't create a Stride account, you can ignore this email.
`, link)

	htmlBody := fmt.Sprintf(`<p>Welcome to Stride!</p>
<p>Confirm your email address to finish setting up your account:</p>
<p><a href="%s">Verify email address</a></p>
<p>This link expires in 24 hours. If you didn't create a Stride account, you can ignore this email.</p>
`, link)

	return s.send(ctx, email, "Verify your Stride email address", textBody, htmlBody)
}

func (s *SESSender) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)

	textBody := fmt.Sprintf(`A password reset was requested for your Stride account.

Choose a new password here:

%s

This link expires in 1 hour and can be used once. If you didn't request a reset, your password is unchanged and you can ignore this email.
`, link)

	htmlBody := fmt.Sprintf(`<p>A password reset was requested for your Stride account.</p>
<p><a href="%s">Choose a new password</a></p>
<p>This link expires in 1 hour and can be used once. If you didn't request a reset, your password is unchanged and you can ignore this email.</p>
`, link)

	return s.send(ctx, email, "Reset your Stride password", textBody, htmlBody)
}

func (s *SESSender) send(ctx context.Context, to, subject, textBody, htmlBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(textBody)},
				Html: &types.Content{Data: aws.String(htmlBody)},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email",
			slog.String("to", logger.SanitizedEmail(to)),
			slog.String("subject", subject),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("to", logger.SanitizedEmail(to)),
		slog.String("subject", subject),
		slog.String("message_id", aws.ToString(result.MessageId)),
	)
	return nil
}
