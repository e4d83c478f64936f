package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/paramads/adops-engine/internal/ads"
	"github.com/paramads/adops-engine/internal/automation"
)

// validTimeWindows are the accepted condition window tokens.
var validTimeWindows = map[string]bool{
	"1h": true, "6h": true, "12h": true, "24h": true,
	"3d": true, "7d": true, "14d": true, "30d": true,
}

// CycleRunner triggers one engine cycle on demand. Implemented by
// automation.Engine.
type CycleRunner interface {
	RunCycle(ctx context.Context, now time.Time)
}

// AutomationHandlers serves rule CRUD, execution logs and dry runs.
type AutomationHandlers struct {
	rules     *automation.Store
	targets   automation.TargetSource
	evaluator automation.ConditionEvaluator
	engine    CycleRunner // nil when the engine runs out of process
}

func NewAutomationHandlers(rules *automation.Store, targets automation.TargetSource, evaluator automation.ConditionEvaluator) *AutomationHandlers {
	return &AutomationHandlers{rules: rules, targets: targets, evaluator: evaluator}
}

// SetEngine enables the manual trigger endpoint for in-process engines.
func (h *AutomationHandlers) SetEngine(engine CycleRunner) {
	h.engine = engine
}

// Mount registers the automation routes on an org-scoped router.
func (h *AutomationHandlers) Mount(r chi.Router) {
	r.Route("/automation", func(r chi.Router) {
		r.Post("/run", h.runCycle)
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.listRules)
			r.Post("/", h.createRule)
			r.Get("/{ruleID}", h.getRule)
			r.Put("/{ruleID}", h.updateRule)
			r.Delete("/{ruleID}", h.deleteRule)
			r.Get("/{ruleID}/logs", h.listLogs)
			r.Post("/{ruleID}/test", h.testRule)
		})
	})
}

// runCycle kicks off an engine cycle immediately instead of waiting for
// the next tick. The cycle lock still applies, so this is safe alongside
// the background loop.
func (h *AutomationHandlers) runCycle(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondError(w, http.StatusServiceUnavailable, "engine not running in this process")
		return
	}
	go h.engine.RunCycle(context.Background(), time.Now().UTC())
	respondJSON(w, http.StatusAccepted, map[string]string{"message": "Cycle started."})
}

// rulePayload is the request body for create and update.
type rulePayload struct {
	Name             string                 `json:"name"`
	Description      string                 `json:"description"`
	Status           string                 `json:"status"`
	TargetKind       string                 `json:"scope"`
	Platform         string                 `json:"platform"`
	ApplyToAll       bool                   `json:"apply_to_all"`
	TargetIDs        []uuid.UUID            `json:"target_ids"`
	ConditionLogic   string                 `json:"condition_logic"`
	Conditions       []automation.Condition `json:"conditions"`
	Actions          []automation.Action    `json:"actions"`
	TimeWindow       string                 `json:"time_window"`
	CheckIntervalMin int                    `json:"check_interval_minutes"`
	CooldownMin      int                    `json:"cooldown_minutes"`
}

func (p *rulePayload) validate() error {
	if strings.TrimSpace(p.Name) == "" || len(p.Name) > 255 {
		return errors.New("name is required and must be at most 255 characters")
	}
	if !ads.TargetKind(p.TargetKind).Valid() {
		return fmt.Errorf("scope must be one of campaign, adset, ad")
	}
	switch p.Platform {
	case "", "meta", "google", "all":
	default:
		return errors.New("platform must be one of meta, google, all")
	}
	logic := strings.ToLower(p.ConditionLogic)
	if logic != "and" && logic != "or" {
		return errors.New("condition_logic must be AND or OR")
	}
	if len(p.Conditions) == 0 {
		return errors.New("at least one condition is required")
	}
	for i, c := range p.Conditions {
		if c.Metric == "" || c.Operator == "" {
			return fmt.Errorf("condition %d needs a metric and an operator", i)
		}
		if c.TimeWindow != "" && !validTimeWindows[c.TimeWindow] {
			return fmt.Errorf("condition %d has invalid time_window %q", i, c.TimeWindow)
		}
	}
	if len(p.Actions) == 0 {
		return errors.New("at least one action is required")
	}
	for i, a := range p.Actions {
		if a.Type == "" {
			return fmt.Errorf("action %d needs a type", i)
		}
	}
	if !validTimeWindows[p.TimeWindow] {
		return errors.New("time_window must be one of 1h, 6h, 12h, 24h, 3d, 7d, 14d, 30d")
	}
	if p.CheckIntervalMin < 15 {
		return errors.New("check_interval_minutes must be at least 15")
	}
	if p.CooldownMin < 60 {
		return errors.New("cooldown_minutes must be at least 60")
	}
	return nil
}

func (p *rulePayload) toRule(orgID uuid.UUID) *automation.Rule {
	platform := p.Platform
	if platform == "" {
		platform = "all"
	}
	return &automation.Rule{
		OrganizationID:   orgID,
		Name:             p.Name,
		Description:      p.Description,
		Status:           "active",
		TargetKind:       ads.TargetKind(p.TargetKind),
		Platform:         platform,
		ApplyToAll:       p.ApplyToAll,
		TargetIDs:        p.TargetIDs,
		ConditionLogic:   strings.ToLower(p.ConditionLogic),
		Conditions:       p.Conditions,
		Actions:          p.Actions,
		TimeWindow:       p.TimeWindow,
		CheckIntervalMin: p.CheckIntervalMin,
		CooldownMin:      p.CooldownMin,
	}
}

// ruleResponse is the wire shape of a rule.
type ruleResponse struct {
	ID               uuid.UUID              `json:"id"`
	Name             string                 `json:"name"`
	Description      string                 `json:"description,omitempty"`
	Status           string                 `json:"status"`
	Scope            string                 `json:"scope"`
	Platform         string                 `json:"platform"`
	ApplyToAll       bool                   `json:"apply_to_all"`
	TargetIDs        []uuid.UUID            `json:"target_ids,omitempty"`
	ConditionLogic   string                 `json:"condition_logic"`
	Conditions       []automation.Condition `json:"conditions"`
	Actions          []automation.Action    `json:"actions"`
	TimeWindow       string                 `json:"time_window"`
	CheckIntervalMin int                    `json:"check_interval_minutes"`
	CooldownMin      int                    `json:"cooldown_minutes"`
	LastExecutedAt   *time.Time             `json:"last_executed_at"`
	ExecutionCount   int                    `json:"execution_count"`
	LogsCount        int                    `json:"logs_count"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

func toRuleResponse(r *automation.Rule) ruleResponse {
	return ruleResponse{
		ID:               r.ID,
		Name:             r.Name,
		Description:      r.Description,
		Status:           r.Status,
		Scope:            string(r.TargetKind),
		Platform:         r.Platform,
		ApplyToAll:       r.ApplyToAll,
		TargetIDs:        r.TargetIDs,
		ConditionLogic:   r.ConditionLogic,
		Conditions:       r.Conditions,
		Actions:          r.Actions,
		TimeWindow:       r.TimeWindow,
		CheckIntervalMin: r.CheckIntervalMin,
		CooldownMin:      r.CooldownMin,
		LastExecutedAt:   r.LastExecutedAt,
		ExecutionCount:   r.ExecutionCount,
		LogsCount:        r.LogsCount,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
}

func (h *AutomationHandlers) listRules(w http.ResponseWriter, r *http.Request) {
	perPage := queryInt(r, "per_page", 25, 100)
	page := queryInt(r, "page", 1, 1<<20)

	rules, err := h.rules.ListRules(r.Context(), OrgID(r.Context()), perPage, (page-1)*perPage)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}
	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleResponse(rule))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"data":     out,
		"page":     page,
		"per_page": perPage,
	})
}

func queryInt(r *http.Request, key string, fallback, max int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > max {
		return fallback
	}
	return n
}

func (h *AutomationHandlers) createRule(w http.ResponseWriter, r *http.Request) {
	var payload rulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := payload.validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	rule := payload.toRule(OrgID(r.Context()))
	if err := h.rules.CreateRule(r.Context(), rule); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create rule")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Automation rule created.",
		"data":    toRuleResponse(rule),
	})
}

func (h *AutomationHandlers) getRule(w http.ResponseWriter, r *http.Request) {
	rule := h.loadRule(w, r)
	if rule == nil {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": toRuleResponse(rule)})
}

func (h *AutomationHandlers) updateRule(w http.ResponseWriter, r *http.Request) {
	rule := h.loadRule(w, r)
	if rule == nil {
		return
	}

	var payload rulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := payload.validate(); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	updated := payload.toRule(rule.OrganizationID)
	updated.ID = rule.ID
	updated.Status = rule.Status
	if payload.Status != "" {
		switch payload.Status {
		case "active", "paused", "draft":
			updated.Status = payload.Status
		default:
			respondError(w, http.StatusUnprocessableEntity, "status must be one of active, paused, draft")
			return
		}
	}

	if err := h.rules.UpdateRule(r.Context(), updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "rule not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update rule")
		return
	}

	fresh, err := h.rules.GetRule(r.Context(), rule.OrganizationID, rule.ID)
	if err != nil || fresh == nil {
		respondError(w, http.StatusInternalServerError, "failed to reload rule")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Automation rule updated.",
		"data":    toRuleResponse(fresh),
	})
}

func (h *AutomationHandlers) deleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := parseRuleID(w, r)
	if !ok {
		return
	}
	err := h.rules.DeleteRule(r.Context(), OrgID(r.Context()), ruleID)
	if errors.Is(err, sql.ErrNoRows) {
		respondError(w, http.StatusNotFound, "rule not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete rule")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Automation rule deleted."})
}

func (h *AutomationHandlers) listLogs(w http.ResponseWriter, r *http.Request) {
	ruleID, ok := parseRuleID(w, r)
	if !ok {
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("per_page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	logs, err := h.rules.ListLogs(r.Context(), OrgID(r.Context()), ruleID, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"data": logs})
}

// testRule evaluates a rule's conditions against its current targets
// without executing any action.
func (h *AutomationHandlers) testRule(w http.ResponseWriter, r *http.Request) {
	rule := h.loadRule(w, r)
	if rule == nil {
		return
	}

	targets, err := h.targets.ListTargets(r.Context(), rule.OrganizationID, rule.TargetKind, rule.Platform, rule.ApplyToAll, rule.TargetIDs)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to resolve targets")
		return
	}

	now := time.Now().UTC()
	matching := make([]map[string]interface{}, 0)
	for _, target := range targets {
		matched, details, err := h.evaluator.EvaluateRule(r.Context(), rule, target, now)
		if err != nil {
			continue
		}
		if matched {
			matching = append(matching, map[string]interface{}{
				"target_id":   target.ID,
				"target_name": target.Name,
				"details":     details,
			})
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Test run completed.",
		"data": map[string]interface{}{
			"rule_id":          rule.ID,
			"targets_checked":  len(targets),
			"would_trigger":    len(matching) > 0,
			"matching_targets": matching,
		},
	})
}

func (h *AutomationHandlers) loadRule(w http.ResponseWriter, r *http.Request) *automation.Rule {
	ruleID, ok := parseRuleID(w, r)
	if !ok {
		return nil
	}
	rule, err := h.rules.GetRule(r.Context(), OrgID(r.Context()), ruleID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load rule")
		return nil
	}
	if rule == nil {
		respondError(w, http.StatusNotFound, "rule not found")
		return nil
	}
	return rule
}

func parseRuleID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id")
		return uuid.Nil, false
	}
	return id, true
}
