// Package platform contains the thin write-side clients for external ad
// platforms. The automation engine only ever needs two operations per
// platform: set an entity's status and set a campaign's daily budget.
package platform

import (
	"context"
	"fmt"
)

// AdAccount carries the credentials a platform call needs. It is a narrow
// projection of the locally stored ad account record.
type AdAccount struct {
	PlatformAccountID string
	AccessToken       string
}

// Client is the write interface to one ad platform.
type Client interface {
	// UpdateStatus sets the remote entity's delivery status.
	// status is the local form ("active"/"paused"); clients translate.
	UpdateStatus(ctx context.Context, account AdAccount, platformEntityID, status string) error
	// UpdateBudget sets the remote campaign's daily budget in whole
	// currency units.
	UpdateBudget(ctx context.Context, account AdAccount, platformEntityID string, dailyBudget float64) error
}

// Registry maps a platform name ("meta", "google") to its client.
type Registry map[string]Client

// ForPlatform returns the client for the given platform name.
func (r Registry) ForPlatform(name string) (Client, error) {
	c, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("platform: no client registered for %q", name)
	}
	return c, nil
}
