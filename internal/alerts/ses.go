package alerts

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/google/uuid"
)

// SESSender delivers alert emails through AWS SES. Recipients are the
// organization's notification addresses stored locally.
type SESSender struct {
	fromEmail string
	db        *sql.DB
	client    *sesv2.Client
}

// NewSESSender creates an SES sender. Initializes the AWS SDK client if
// credentials are provided.
func NewSESSender(accessKey, secretKey, region, fromEmail string, db *sql.DB) *SESSender {
	if region == "" {
		region = "us-east-1"
	}

	sender := &SESSender{fromEmail: fromEmail, db: db}

	if accessKey != "" && secretKey != "" {
		cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
		)
		if err != nil {
			log.Printf("[SES] Warning: Failed to initialize AWS config: %v", err)
		} else {
			sender.client = sesv2.NewFromConfig(cfg)
		}
	}

	return sender
}

// Send emails the alert to every notification address on the organization.
func (s *SESSender) Send(ctx context.Context, orgID uuid.UUID, subject, body string) error {
	if s.client == nil {
		return fmt.Errorf("SES client not initialized - check credentials")
	}

	recipients, err := s.notificationAddresses(ctx, orgID)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		log.Printf("[SES] No notification addresses for org %s, skipping email", orgID)
		return nil
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.fromEmail),
		Destination:      &types.Destination{ToAddresses: recipients},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}

	messageID := ""
	if result.MessageId != nil {
		messageID = *result.MessageId
	}
	log.Printf("[SES] Alert email sent to %d recipients (id: %s)", len(recipients), messageID)
	return nil
}

func (s *SESSender) notificationAddresses(ctx context.Context, orgID uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT email FROM users
		WHERE organization_id = $1 AND notify_by_email = true AND deleted_at IS NULL`, orgID)
	if err != nil {
		return nil, fmt.Errorf("load notification addresses: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, err
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}
