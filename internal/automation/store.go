package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists rules and execution logs in Postgres. Rule conditions,
// actions and explicit target lists live in JSONB columns.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const ruleColumns = `id, organization_id, name, COALESCE(description, ''), status, target_kind, platform,
	apply_to_all, target_ids, condition_logic, conditions, actions, time_window,
	check_interval_minutes, cooldown_minutes, last_executed_at, execution_count,
	created_at, updated_at`

func scanRule(row interface{ Scan(...interface{}) error }) (*Rule, error) {
	r := &Rule{}
	var targetIDs, conditions, actions []byte
	err := row.Scan(
		&r.ID, &r.OrganizationID, &r.Name, &r.Description, &r.Status, &r.TargetKind, &r.Platform,
		&r.ApplyToAll, &targetIDs, &r.ConditionLogic, &conditions, &actions, &r.TimeWindow,
		&r.CheckIntervalMin, &r.CooldownMin, &r.LastExecutedAt, &r.ExecutionCount,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(targetIDs) > 0 {
		if err := json.Unmarshal(targetIDs, &r.TargetIDs); err != nil {
			return nil, fmt.Errorf("decode target_ids for rule %s: %w", r.ID, err)
		}
	}
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
			return nil, fmt.Errorf("decode conditions for rule %s: %w", r.ID, err)
		}
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &r.Actions); err != nil {
			return nil, fmt.Errorf("decode actions for rule %s: %w", r.ID, err)
		}
	}
	return r, nil
}

// DueRules returns the batch of active rules whose check interval has
// elapsed, oldest first. Rules never executed are always due.
func (s *Store) DueRules(ctx context.Context, now time.Time, limit, offset int) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM automation_rules
		WHERE status = 'active' AND deleted_at IS NULL
		  AND (last_executed_at IS NULL OR last_executed_at <= $1 - (check_interval_minutes * INTERVAL '1 minute'))
		ORDER BY last_executed_at NULLS FIRST, created_at
		LIMIT $2 OFFSET $3`, ruleColumns),
		now, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query due rules: %w", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// MarkExecuted records that the rule's actions ran this cycle. Called once
// per rule per cycle, and only when at least one target triggered.
func (s *Store) MarkExecuted(ctx context.Context, id uuid.UUID, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET last_executed_at = $1, execution_count = execution_count + 1, updated_at = NOW()
		WHERE id = $2`, now, id)
	if err != nil {
		return fmt.Errorf("mark rule %s executed: %w", id, err)
	}
	return nil
}

// InsertLog writes one execution log row.
func (s *Store) InsertLog(ctx context.Context, l *Log) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	snapshot, err := json.Marshal(l.ConditionSnapshot)
	if err != nil {
		return fmt.Errorf("marshal condition snapshot: %w", err)
	}
	result, err := json.Marshal(l.ActionResult)
	if err != nil {
		return fmt.Errorf("marshal action result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO automation_logs
			(id, organization_id, rule_id, target_type, target_id, action_type,
			 condition_snapshot, action_result, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		l.ID, l.OrganizationID, l.RuleID, l.TargetKind, l.TargetID, l.ActionType,
		snapshot, result, l.Status, nullIfEmpty(l.ErrorMessage), l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert automation log: %w", err)
	}
	return nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ListLogs returns the most recent execution logs for a rule.
func (s *Store) ListLogs(ctx context.Context, orgID, ruleID uuid.UUID, limit int) ([]*Log, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, rule_id, target_type, target_id, action_type,
		       condition_snapshot, action_result, status, COALESCE(error_message, ''), created_at
		FROM automation_logs
		WHERE organization_id = $1 AND rule_id = $2
		ORDER BY created_at DESC
		LIMIT $3`, orgID, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("query logs for rule %s: %w", ruleID, err)
	}
	defer rows.Close()

	var logs []*Log
	for rows.Next() {
		l := &Log{}
		var snapshot, result []byte
		if err := rows.Scan(&l.ID, &l.OrganizationID, &l.RuleID, &l.TargetKind, &l.TargetID, &l.ActionType,
			&snapshot, &result, &l.Status, &l.ErrorMessage, &l.CreatedAt); err != nil {
			return nil, err
		}
		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &l.ConditionSnapshot); err != nil {
				return nil, fmt.Errorf("decode condition snapshot for log %s: %w", l.ID, err)
			}
		}
		if len(result) > 0 {
			if err := json.Unmarshal(result, &l.ActionResult); err != nil {
				return nil, fmt.Errorf("decode action result for log %s: %w", l.ID, err)
			}
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// CreateRule inserts a new rule and fills in its generated fields.
func (s *Store) CreateRule(ctx context.Context, r *Rule) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	targetIDs, err := json.Marshal(r.TargetIDs)
	if err != nil {
		return err
	}
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return err
	}
	actions, err := json.Marshal(r.Actions)
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO automation_rules
			(id, organization_id, name, description, status, target_kind, platform,
			 apply_to_all, target_ids, condition_logic, conditions, actions, time_window,
			 check_interval_minutes, cooldown_minutes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
		RETURNING created_at, updated_at`,
		r.ID, r.OrganizationID, r.Name, r.Description, r.Status, r.TargetKind, r.Platform,
		r.ApplyToAll, targetIDs, r.ConditionLogic, conditions, actions, r.TimeWindow,
		r.CheckIntervalMin, r.CooldownMin).
		Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}
	return nil
}

// GetRule loads one rule scoped to an organization. Returns nil when the
// rule does not exist or belongs to another organization.
func (s *Store) GetRule(ctx context.Context, orgID, id uuid.UUID) (*Rule, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s FROM automation_rules
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL`, ruleColumns),
		id, orgID)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	return r, nil
}

// ListRules returns a page of an organization's rules, most recently
// updated first, each with its execution log count.
func (s *Store) ListRules(ctx context.Context, orgID uuid.UUID, limit, offset int) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s,
		       (SELECT COUNT(*) FROM automation_logs WHERE rule_id = automation_rules.id) AS logs_count
		FROM automation_rules
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`, ruleColumns), orgID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []*Rule
	for rows.Next() {
		r := &Rule{}
		var targetIDs, conditions, actions []byte
		err := rows.Scan(
			&r.ID, &r.OrganizationID, &r.Name, &r.Description, &r.Status, &r.TargetKind, &r.Platform,
			&r.ApplyToAll, &targetIDs, &r.ConditionLogic, &conditions, &actions, &r.TimeWindow,
			&r.CheckIntervalMin, &r.CooldownMin, &r.LastExecutedAt, &r.ExecutionCount,
			&r.CreatedAt, &r.UpdatedAt, &r.LogsCount,
		)
		if err != nil {
			return nil, err
		}
		if len(targetIDs) > 0 {
			if err := json.Unmarshal(targetIDs, &r.TargetIDs); err != nil {
				return nil, fmt.Errorf("decode target_ids for rule %s: %w", r.ID, err)
			}
		}
		if len(conditions) > 0 {
			if err := json.Unmarshal(conditions, &r.Conditions); err != nil {
				return nil, fmt.Errorf("decode conditions for rule %s: %w", r.ID, err)
			}
		}
		if len(actions) > 0 {
			if err := json.Unmarshal(actions, &r.Actions); err != nil {
				return nil, fmt.Errorf("decode actions for rule %s: %w", r.ID, err)
			}
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// UpdateRule overwrites the rule's editable fields.
func (s *Store) UpdateRule(ctx context.Context, r *Rule) error {
	targetIDs, err := json.Marshal(r.TargetIDs)
	if err != nil {
		return err
	}
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return err
	}
	actions, err := json.Marshal(r.Actions)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET name = $1, description = $2, status = $3, target_kind = $4, platform = $5,
		    apply_to_all = $6, target_ids = $7, condition_logic = $8, conditions = $9,
		    actions = $10, time_window = $11, check_interval_minutes = $12,
		    cooldown_minutes = $13, updated_at = NOW()
		WHERE id = $14 AND organization_id = $15 AND deleted_at IS NULL`,
		r.Name, r.Description, r.Status, r.TargetKind, r.Platform,
		r.ApplyToAll, targetIDs, r.ConditionLogic, conditions, actions, r.TimeWindow,
		r.CheckIntervalMin, r.CooldownMin, r.ID, r.OrganizationID)
	if err != nil {
		return fmt.Errorf("update rule %s: %w", r.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteRule soft-deletes the rule so execution history stays queryable.
func (s *Store) DeleteRule(ctx context.Context, orgID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL`, id, orgID)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
