package automation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/paramads/adops-engine/internal/ads"
	"github.com/paramads/adops-engine/internal/alerts"
)

type fakeAdWriter struct {
	statuses []string
	budgets  []float64
	err      error
}

func (f *fakeAdWriter) UpdateStatus(ctx context.Context, target ads.Target, status string, actorID uuid.UUID) error {
	f.statuses = append(f.statuses, status)
	return f.err
}

func (f *fakeAdWriter) UpdateBudget(ctx context.Context, target ads.Target, dailyBudget float64, actorID uuid.UUID) error {
	f.budgets = append(f.budgets, dailyBudget)
	return f.err
}

type fakeAlertCreator struct {
	created []*alerts.Alert
	err     error
}

func (f *fakeAlertCreator) Create(ctx context.Context, a *alerts.Alert) error {
	f.created = append(f.created, a)
	return f.err
}

func campaignTarget(budget float64) ads.Target {
	return ads.Target{
		ID:             uuid.New(),
		OrganizationID: uuid.New(),
		Kind:           ads.KindCampaign,
		Name:           "Spring Sale",
		Status:         "active",
		DailyBudget:    budget,
	}
}

func execRule() *Rule {
	return &Rule{ID: uuid.New()}
}

func TestExecute_PauseAndActivate(t *testing.T) {
	writer := &fakeAdWriter{}
	x := NewExecutor(writer, &fakeAlertCreator{})

	result, err := x.Execute(context.Background(), execRule(), Action{Type: ActionPause}, campaignTarget(10))
	if err != nil {
		t.Fatalf("pause error: %v", err)
	}
	if result["action"] != "paused" {
		t.Errorf("result action = %v, want paused", result["action"])
	}

	result, err = x.Execute(context.Background(), execRule(), Action{Type: ActionActivate}, campaignTarget(10))
	if err != nil {
		t.Fatalf("activate error: %v", err)
	}
	if result["action"] != "activated" {
		t.Errorf("result action = %v, want activated", result["action"])
	}

	if len(writer.statuses) != 2 || writer.statuses[0] != "paused" || writer.statuses[1] != "active" {
		t.Errorf("statuses sent = %v", writer.statuses)
	}
}

func TestExecute_StatusNoOpForNonCampaign(t *testing.T) {
	writer := &fakeAdWriter{}
	x := NewExecutor(writer, &fakeAlertCreator{})

	target := campaignTarget(10)
	target.Kind = ads.KindAdSet

	result, err := x.Execute(context.Background(), execRule(), Action{Type: ActionPause}, target)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if _, ok := result["message"]; !ok {
		t.Error("non-campaign status change should return an explicit message")
	}
	if len(writer.statuses) != 0 {
		t.Error("non-campaign status change must not hit the platform")
	}
}

func TestExecute_BudgetIncrease(t *testing.T) {
	tests := []struct {
		name       string
		params     map[string]interface{}
		budget     float64
		wantBudget float64
		wantChange float64
	}{
		{"percent", map[string]interface{}{"amount": 20.0, "unit": "percent"}, 100, 120, 20},
		{"absolute", map[string]interface{}{"amount": 15.0, "unit": "absolute"}, 100, 115, 15},
		{"defaults to 10 percent", nil, 100, 110, 10},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			writer := &fakeAdWriter{}
			x := NewExecutor(writer, &fakeAlertCreator{})

			result, err := x.Execute(context.Background(), execRule(),
				Action{Type: ActionIncreaseBudget, Params: tc.params}, campaignTarget(tc.budget))
			if err != nil {
				t.Fatalf("Execute() error: %v", err)
			}
			if result["new_budget"] != tc.wantBudget {
				t.Errorf("new_budget = %v, want %v", result["new_budget"], tc.wantBudget)
			}
			if result["change"] != tc.wantChange {
				t.Errorf("change = %v, want %v", result["change"], tc.wantChange)
			}
			if len(writer.budgets) != 1 || writer.budgets[0] != tc.wantBudget {
				t.Errorf("budgets sent = %v", writer.budgets)
			}
		})
	}
}

func TestExecute_BudgetDecreaseFloorsAtOne(t *testing.T) {
	writer := &fakeAdWriter{}
	x := NewExecutor(writer, &fakeAlertCreator{})

	result, err := x.Execute(context.Background(), execRule(),
		Action{Type: ActionDecreaseBudget, Params: map[string]interface{}{"amount": 90.0, "unit": "absolute"}},
		campaignTarget(50))
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result["new_budget"] != 1.0 {
		t.Errorf("new_budget = %v, want floor of 1", result["new_budget"])
	}
}

func TestExecute_BudgetUnsupportedForNonCampaign(t *testing.T) {
	writer := &fakeAdWriter{}
	x := NewExecutor(writer, &fakeAlertCreator{})

	target := campaignTarget(50)
	target.Kind = ads.KindAd

	result, err := x.Execute(context.Background(), execRule(), Action{Type: ActionIncreaseBudget}, target)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result["error"] != "Budget adjustment only supported for campaigns" {
		t.Errorf("result = %v", result)
	}
	if len(writer.budgets) != 0 {
		t.Error("unsupported budget action must not hit the platform")
	}
}

func TestExecute_AlertDefaults(t *testing.T) {
	creator := &fakeAlertCreator{}
	x := NewExecutor(&fakeAdWriter{}, creator)
	target := campaignTarget(10)

	result, err := x.Execute(context.Background(), execRule(), Action{Type: ActionAlert}, target)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result["action"] != "alert_created" {
		t.Errorf("result action = %v", result["action"])
	}

	if len(creator.created) != 1 {
		t.Fatalf("got %d alerts, want 1", len(creator.created))
	}
	a := creator.created[0]
	if a.Severity != alerts.SeverityWarning {
		t.Errorf("severity = %s, want warning", a.Severity)
	}
	if a.Channel != alerts.ChannelInApp {
		t.Errorf("channel = %s, want in_app", a.Channel)
	}
	if a.Title != "Automation triggered for Spring Sale" {
		t.Errorf("title = %q", a.Title)
	}
	if a.Message != "Automation rule conditions met." {
		t.Errorf("message = %q", a.Message)
	}
}

func TestExecute_AlertParamsOverride(t *testing.T) {
	creator := &fakeAlertCreator{}
	x := NewExecutor(&fakeAdWriter{}, creator)

	params := map[string]interface{}{
		"severity": "critical",
		"channel":  "email",
		"title":    "Spend spike",
		"message":  "Daily spend doubled",
	}
	if _, err := x.Execute(context.Background(), execRule(), Action{Type: ActionAlert, Params: params}, campaignTarget(10)); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	a := creator.created[0]
	if a.Severity != "critical" || a.Channel != "email" || a.Title != "Spend spike" {
		t.Errorf("alert = %+v", a)
	}
}

func TestExecute_UnknownActionType(t *testing.T) {
	x := NewExecutor(&fakeAdWriter{}, &fakeAlertCreator{})

	result, err := x.Execute(context.Background(), execRule(), Action{Type: "archive"}, campaignTarget(10))
	if err != nil {
		t.Fatalf("unknown action should not error, got: %v", err)
	}
	if result["message"] != "Unknown action type: archive" {
		t.Errorf("result = %v", result)
	}
}

func TestExecute_PlatformFailurePropagates(t *testing.T) {
	writer := &fakeAdWriter{err: errors.New("token expired")}
	x := NewExecutor(writer, &fakeAlertCreator{})

	if _, err := x.Execute(context.Background(), execRule(), Action{Type: ActionPause}, campaignTarget(10)); err == nil {
		t.Fatal("platform failure should surface as an error")
	}
}
