// Package alerts creates in-app notifications for automation events and
// optionally mirrors them to email.
package alerts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// Severity levels for an alert.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Delivery channels.
const (
	ChannelInApp = "in_app"
	ChannelEmail = "email"
)

// Alert is one notification row.
type Alert struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Type           string
	Severity       string
	Title          string
	Message        string
	Data           map[string]interface{}
	Channel        string
	CreatedAt      time.Time
}

// EmailSender delivers an alert by email. Implemented by the SES sender.
type EmailSender interface {
	Send(ctx context.Context, orgID uuid.UUID, subject, body string) error
}

// Store persists alerts in Postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Insert(ctx context.Context, a *Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(a.Data)
	if err != nil {
		return fmt.Errorf("marshal alert data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, organization_id, type, severity, title, message, data, channel, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.OrganizationID, a.Type, a.Severity, a.Title, a.Message, data, a.Channel, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// Service creates alerts. Every alert is stored; email-channel alerts are
// additionally sent through the configured sender.
type Service struct {
	store *Store
	email EmailSender
}

// NewService creates an alert service. email may be nil, in which case
// email-channel alerts are stored but not delivered.
func NewService(store *Store, email EmailSender) *Service {
	return &Service{store: store, email: email}
}

// Create stores the alert and fans out to its channel. An email delivery
// failure does not fail the alert; the stored row is the source of truth.
func (s *Service) Create(ctx context.Context, a *Alert) error {
	if a.Severity == "" {
		a.Severity = SeverityWarning
	}
	if a.Channel == "" {
		a.Channel = ChannelInApp
	}
	if err := s.store.Insert(ctx, a); err != nil {
		return err
	}
	if a.Channel == ChannelEmail {
		if s.email == nil {
			log.Printf("[Alerts] Email channel requested but no sender configured (alert %s)", a.ID)
			return nil
		}
		if err := s.email.Send(ctx, a.OrganizationID, a.Title, a.Message); err != nil {
			log.Printf("[Alerts] Email delivery failed for alert %s: %v", a.ID, err)
		}
	}
	return nil
}
