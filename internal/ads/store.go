package ads

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Store persists ad entities and audit entries in Postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// tableFor maps a target kind to its table and platform id column.
func tableFor(kind TargetKind) (table, idCol string, err error) {
	switch kind {
	case KindCampaign:
		return "campaigns", "platform_campaign_id", nil
	case KindAdSet:
		return "ad_sets", "platform_ad_set_id", nil
	case KindAd:
		return "ads", "platform_ad_id", nil
	}
	return "", "", fmt.Errorf("ads: unknown target kind %q", kind)
}

// ListTargets returns the active entities of the given kind that a rule
// applies to. platform "all" matches every platform. When applyToAll is
// false only the explicitly listed targetIDs are returned.
func (s *Store) ListTargets(ctx context.Context, orgID uuid.UUID, kind TargetKind, platform string, applyToAll bool, targetIDs []uuid.UUID) ([]Target, error) {
	table, idCol, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	campaignCol := "campaign_id"
	if kind == KindCampaign {
		campaignCol = "id"
	}

	query := fmt.Sprintf(`
		SELECT id, organization_id, %s, ad_account_id, platform, %s, name, status, COALESCE(daily_budget, 0)
		FROM %s
		WHERE organization_id = $1 AND status = 'active'`, campaignCol, idCol, table)

	args := []interface{}{orgID}
	if platform != "" && platform != "all" {
		args = append(args, platform)
		query += fmt.Sprintf(" AND platform = $%d", len(args))
	}
	if !applyToAll {
		if len(targetIDs) == 0 {
			return nil, nil
		}
		args = append(args, pq.Array(targetIDs))
		query += fmt.Sprintf(" AND id = ANY($%d)", len(args))
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		t := Target{Kind: kind}
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.CampaignID, &t.AdAccountID, &t.Platform, &t.PlatformEntityID, &t.Name, &t.Status, &t.DailyBudget); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// GetAdAccount loads the account record, including the stored access token.
func (s *Store) GetAdAccount(ctx context.Context, id uuid.UUID) (*AdAccount, error) {
	a := &AdAccount{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, platform, platform_account_id, access_token, status
		FROM ad_accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.OrganizationID, &a.Platform, &a.PlatformAccountID, &a.AccessToken, &a.Status)
	if err != nil {
		return nil, fmt.Errorf("get ad account %s: %w", id, err)
	}
	return a, nil
}

// UpdateTargetStatus persists a status change on the local record.
func (s *Store) UpdateTargetStatus(ctx context.Context, kind TargetKind, id uuid.UUID, status string) error {
	table, _, err := tableFor(kind)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET status = $1, updated_at = NOW() WHERE id = $2", table),
		status, id)
	if err != nil {
		return fmt.Errorf("update %s status: %w", table, err)
	}
	return nil
}

// UpdateTargetBudget persists a daily budget change on the local record.
func (s *Store) UpdateTargetBudget(ctx context.Context, kind TargetKind, id uuid.UUID, dailyBudget float64) error {
	table, _, err := tableFor(kind)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET daily_budget = $1, updated_at = NOW() WHERE id = $2", table),
		dailyBudget, id)
	if err != nil {
		return fmt.Errorf("update %s budget: %w", table, err)
	}
	return nil
}

// InsertAudit writes one audit log row.
func (s *Store) InsertAudit(ctx context.Context, e AuditEntry) error {
	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, organization_id, actor_type, actor_id, action, entity_type, entity_id, changes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(), e.OrganizationID, e.ActorType, e.ActorID, e.Action, e.EntityType, e.EntityID, changes, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
