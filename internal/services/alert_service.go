package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"

	pkglogger "github.com/brasshelm/birdtext/pkg/logger"
)

// AWSSESAlertService emails the administrator when an account trips the
// 24-hour lockout tier. It implements SecurityAlerter.
type AWSSESAlertService struct {
	sesClient   *ses.Client
	fromAddress string
	adminEmail  string
	logger      *slog.Logger
}

// NewAWSSESAlertService creates a new AWS SES alert service
func NewAWSSESAlertService(region, fromAddress, adminEmail string, logger *slog.Logger) (*AWSSESAlertService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESAlertService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		adminEmail:  adminEmail,
		logger:      logger,
	}, nil
}

// SendLockoutAlert notifies the administrator that an identifier has been
// locked for 24 hours after sustained failed login attempts.
func (s *AWSSESAlertService) SendLockoutAlert(ctx context.Context, identifier, identifierType string, attempts int) error {
	now := time.Now().UTC().Format(time.RFC3339)

	subject := fmt.Sprintf("Security alert: %s locked for 24 hours", identifierType)

	textBody := fmt.Sprintf(`A login identifier has been locked out for 24 hours after repeated failed attempts.

Identifier type: %s
Identifier:      %s
Failed attempts: %d
Locked at:       %s

The lock expires automatically after 24 hours. If this traffic looks
malicious, consider blocking the source at the network level.
`, identifierType, identifier, attempts, now)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{s.adminEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send lockout alert via SES",
			slog.String("identifier_type", identifierType),
			slog.Any("error", err))
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	s.logger.Info("lockout alert sent",
		slog.String("identifier_type", identifierType),
		slog.String("admin_email", pkglogger.SanitizedEmail(s.adminEmail)),
		slog.String("message_id", *result.MessageId))

	return nil
}
