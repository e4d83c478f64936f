// Package ads holds the locally synced ad entities that automation rules
// act on: campaigns, ad sets and ads, plus the ad accounts they belong to.
package ads

import (
	"time"

	"github.com/google/uuid"
)

// TargetKind is the level an automation rule applies at.
type TargetKind string

const (
	KindCampaign TargetKind = "campaign"
	KindAdSet    TargetKind = "adset"
	KindAd       TargetKind = "ad"
)

// Valid reports whether k is one of the known target kinds.
func (k TargetKind) Valid() bool {
	switch k {
	case KindCampaign, KindAdSet, KindAd:
		return true
	}
	return false
}

// AdAccount is a connected platform account with stored credentials.
type AdAccount struct {
	ID                uuid.UUID
	OrganizationID    uuid.UUID
	Platform          string
	PlatformAccountID string
	AccessToken       string
	Status            string
}

// Target is one entity a rule can evaluate and act on. For campaigns,
// CampaignID equals ID; for ad sets and ads it points at the parent
// campaign.
type Target struct {
	ID               uuid.UUID
	OrganizationID   uuid.UUID
	CampaignID       uuid.UUID
	AdAccountID      uuid.UUID
	Kind             TargetKind
	Platform         string
	PlatformEntityID string
	Name             string
	Status           string
	DailyBudget      float64
}

// AuditEntry records a mutation performed by the system on a local entity.
type AuditEntry struct {
	OrganizationID uuid.UUID
	ActorType      string
	ActorID        uuid.UUID
	Action         string
	EntityType     string
	EntityID       uuid.UUID
	Changes        map[string]interface{}
	CreatedAt      time.Time
}
