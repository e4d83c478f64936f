package automation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/paramads/adops-engine/internal/ads"
	"github.com/paramads/adops-engine/internal/alerts"
)

// AdWriter applies status and budget changes, remote first then local.
// Implemented by ads.Service.
type AdWriter interface {
	UpdateStatus(ctx context.Context, target ads.Target, status string, actorID uuid.UUID) error
	UpdateBudget(ctx context.Context, target ads.Target, dailyBudget float64, actorID uuid.UUID) error
}

// AlertCreator records notifications. Implemented by alerts.Service.
type AlertCreator interface {
	Create(ctx context.Context, a *alerts.Alert) error
}

// Executor runs one action against one target. Platform and local writes
// go through the ads service; alerts go through the alert service.
type Executor struct {
	ads    AdWriter
	alerts AlertCreator
}

func NewExecutor(adsService AdWriter, alertService AlertCreator) *Executor {
	return &Executor{ads: adsService, alerts: alertService}
}

// Execute runs the action and returns what happened. An error means the
// side effect failed and the caller should log a failed row; a returned
// result, even one carrying an "error" or "message" key, is a completed
// attempt.
func (x *Executor) Execute(ctx context.Context, rule *Rule, action Action, target ads.Target) (ActionResult, error) {
	switch action.Type {
	case ActionPause:
		return x.setStatus(ctx, rule, target, "paused", "paused")
	case ActionActivate:
		return x.setStatus(ctx, rule, target, "active", "activated")
	case ActionIncreaseBudget:
		return x.adjustBudget(ctx, rule, action, target, true)
	case ActionDecreaseBudget:
		return x.adjustBudget(ctx, rule, action, target, false)
	case ActionAlert:
		return x.alert(ctx, rule, action, target)
	default:
		return ActionResult{"message": fmt.Sprintf("Unknown action type: %s", action.Type)}, nil
	}
}

func (x *Executor) setStatus(ctx context.Context, rule *Rule, target ads.Target, status, verb string) (ActionResult, error) {
	if target.Kind != ads.KindCampaign {
		return ActionResult{"message": "Status change only supported for campaigns"}, nil
	}
	if err := x.ads.UpdateStatus(ctx, target, status, rule.ID); err != nil {
		return nil, err
	}
	return ActionResult{"action": verb, "target_id": target.ID.String()}, nil
}

func (x *Executor) adjustBudget(ctx context.Context, rule *Rule, action Action, target ads.Target, increase bool) (ActionResult, error) {
	if target.Kind != ads.KindCampaign {
		return ActionResult{"error": "Budget adjustment only supported for campaigns"}, nil
	}

	amount := paramFloat(action.Params, "amount", 10)
	unit := paramString(action.Params, "unit", "percent")
	currentBudget := target.DailyBudget

	var change float64
	if unit == "percent" {
		change = currentBudget * (amount / 100)
	} else {
		change = amount
	}

	var newBudget float64
	var verb string
	if increase {
		newBudget = currentBudget + change
		verb = "budget_increase"
	} else {
		// Never drive a running campaign's budget to zero.
		newBudget = currentBudget - change
		if newBudget < 1 {
			newBudget = 1
		}
		verb = "budget_decrease"
	}

	if err := x.ads.UpdateBudget(ctx, target, newBudget, rule.ID); err != nil {
		return nil, err
	}

	return ActionResult{
		"action":     verb,
		"old_budget": currentBudget,
		"new_budget": newBudget,
		"change":     change,
	}, nil
}

func (x *Executor) alert(ctx context.Context, rule *Rule, action Action, target ads.Target) (ActionResult, error) {
	a := &alerts.Alert{
		OrganizationID: target.OrganizationID,
		Type:           "automation",
		Severity:       paramString(action.Params, "severity", alerts.SeverityWarning),
		Title:          paramString(action.Params, "title", fmt.Sprintf("Automation triggered for %s", target.Name)),
		Message:        paramString(action.Params, "message", "Automation rule conditions met."),
		Channel:        paramString(action.Params, "channel", alerts.ChannelInApp),
		Data: map[string]interface{}{
			"target_id":   target.ID.String(),
			"target_type": string(target.Kind),
			"rule_id":     rule.ID.String(),
		},
	}
	if err := x.alerts.Create(ctx, a); err != nil {
		return nil, err
	}
	return ActionResult{"action": "alert_created", "target_id": target.ID.String()}, nil
}

func paramString(params map[string]interface{}, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func paramFloat(params map[string]interface{}, key string, fallback float64) float64 {
	switch v := params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return fallback
}
