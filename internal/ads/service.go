package ads

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/paramads/adops-engine/internal/platform"
)

// Service applies changes to ad entities: remote platform first, then the
// local record, then an audit entry. A failed remote call leaves the local
// record untouched.
type Service struct {
	store     *Store
	platforms platform.Registry
}

func NewService(store *Store, platforms platform.Registry) *Service {
	return &Service{store: store, platforms: platforms}
}

// UpdateStatus changes the target's delivery status on its platform and
// mirrors the change locally. actorID identifies the automation rule that
// requested the change.
func (s *Service) UpdateStatus(ctx context.Context, target Target, status string, actorID uuid.UUID) error {
	client, err := s.platforms.ForPlatform(target.Platform)
	if err != nil {
		return err
	}
	account, err := s.store.GetAdAccount(ctx, target.AdAccountID)
	if err != nil {
		return err
	}

	err = client.UpdateStatus(ctx, platform.AdAccount{
		PlatformAccountID: account.PlatformAccountID,
		AccessToken:       account.AccessToken,
	}, target.PlatformEntityID, status)
	if err != nil {
		return fmt.Errorf("platform status update for %s %s: %w", target.Kind, target.ID, err)
	}

	if err := s.store.UpdateTargetStatus(ctx, target.Kind, target.ID, status); err != nil {
		return err
	}

	s.audit(ctx, target, actorID, "status_changed", map[string]interface{}{
		"status": map[string]interface{}{"from": target.Status, "to": status},
	})
	return nil
}

// UpdateBudget changes the target's daily budget on its platform and
// mirrors the change locally.
func (s *Service) UpdateBudget(ctx context.Context, target Target, dailyBudget float64, actorID uuid.UUID) error {
	client, err := s.platforms.ForPlatform(target.Platform)
	if err != nil {
		return err
	}
	account, err := s.store.GetAdAccount(ctx, target.AdAccountID)
	if err != nil {
		return err
	}

	err = client.UpdateBudget(ctx, platform.AdAccount{
		PlatformAccountID: account.PlatformAccountID,
		AccessToken:       account.AccessToken,
	}, target.PlatformEntityID, dailyBudget)
	if err != nil {
		return fmt.Errorf("platform budget update for %s %s: %w", target.Kind, target.ID, err)
	}

	if err := s.store.UpdateTargetBudget(ctx, target.Kind, target.ID, dailyBudget); err != nil {
		return err
	}

	s.audit(ctx, target, actorID, "budget_changed", map[string]interface{}{
		"daily_budget": map[string]interface{}{"from": target.DailyBudget, "to": dailyBudget},
	})
	return nil
}

// audit failures are logged, not propagated. The platform change already
// happened; refusing to report success would trigger a duplicate action on
// the next cycle.
func (s *Service) audit(ctx context.Context, target Target, actorID uuid.UUID, action string, changes map[string]interface{}) {
	err := s.store.InsertAudit(ctx, AuditEntry{
		OrganizationID: target.OrganizationID,
		ActorType:      "automation_rule",
		ActorID:        actorID,
		Action:         action,
		EntityType:     string(target.Kind),
		EntityID:       target.ID,
		Changes:        changes,
	})
	if err != nil {
		log.Printf("[Ads] Audit write failed for %s %s: %v", target.Kind, target.ID, err)
	}
}
