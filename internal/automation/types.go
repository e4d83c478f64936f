// Package automation implements the rule engine: periodic evaluation of
// metric conditions over ad entities and execution of the configured
// actions when they match.
package automation

import (
	"time"

	"github.com/google/uuid"
	"github.com/paramads/adops-engine/internal/ads"
)

// Condition operators. Thresholds for the delta operators are percentage
// points against the previous period.
const (
	OpGreaterThan    = ">"
	OpLessThan       = "<"
	OpGreaterOrEqual = ">="
	OpLessOrEqual    = "<="
	OpEqual          = "=="
	OpNotEqual       = "!="
	OpIncreaseBy     = "increase_by"
	OpDecreaseBy     = "decrease_by"
)

// Action types.
const (
	ActionPause          = "pause"
	ActionActivate       = "activate"
	ActionIncreaseBudget = "increase_budget"
	ActionDecreaseBudget = "decrease_budget"
	ActionAlert          = "alert"
)

// Condition is one metric comparison. TimeWindow, when set, overrides the
// rule's default window. CompareTo "previous_period" switches any operator
// to a percent-change comparison against the preceding window of the same
// length.
type Condition struct {
	Metric     string  `json:"metric"`
	Operator   string  `json:"operator"`
	Value      float64 `json:"value"`
	TimeWindow string  `json:"time_window,omitempty"`
	CompareTo  string  `json:"compare_to,omitempty"`
}

// Action is one side effect to run when the rule's conditions match.
// Params are action-specific: budget actions take "amount" and "unit",
// alerts take "severity", "title", "message" and "channel".
type Action struct {
	Type   string                 `json:"type"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// ActionResult is the free-form outcome recorded per executed action.
type ActionResult map[string]interface{}

// Rule is one automation rule.
type Rule struct {
	ID               uuid.UUID
	OrganizationID   uuid.UUID
	Name             string
	Description      string
	Status           string
	TargetKind       ads.TargetKind
	Platform         string
	ApplyToAll       bool
	TargetIDs        []uuid.UUID
	ConditionLogic   string // "and" or "or"
	Conditions       []Condition
	Actions          []Action
	TimeWindow       string // default window for conditions without one
	CheckIntervalMin int
	CooldownMin      int
	LastExecutedAt   *time.Time
	ExecutionCount   int
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// LogsCount is filled by ListRules for the API; the engine ignores it.
	LogsCount int
}

// OnCooldown reports whether the rule executed actions too recently to act
// again. lastExecutedAt only moves when actions actually ran, so a rule
// that keeps evaluating false is never held back by this.
func (r *Rule) OnCooldown(now time.Time) bool {
	if r.LastExecutedAt == nil {
		return false
	}
	return now.Sub(*r.LastExecutedAt) < time.Duration(r.CooldownMin)*time.Minute
}

// Log is one immutable audit row: a single action attempt by a rule
// against one target.
type Log struct {
	ID                uuid.UUID
	OrganizationID    uuid.UUID
	RuleID            uuid.UUID
	TargetKind        ads.TargetKind
	TargetID          uuid.UUID
	ActionType        string
	ConditionSnapshot []Condition
	ActionResult      ActionResult
	Status            string // "success" or "failed"
	ErrorMessage      string
	CreatedAt         time.Time
}

const (
	LogStatusSuccess = "success"
	LogStatusFailed  = "failed"
)

// windowDays maps a condition time window to the number of whole days it
// spans. Sub-day windows read today's partial data; daily metric rows are
// the finest grain stored.
func windowDays(window string) int {
	switch window {
	case "1h", "6h", "12h":
		return 0
	case "24h", "1d":
		return 1
	case "3d":
		return 3
	case "7d":
		return 7
	case "14d":
		return 14
	case "30d":
		return 30
	default:
		return 1
	}
}

// windowRange returns the inclusive date range for a window ending now.
// A 0-day window collapses to today only.
func windowRange(window string, now time.Time) (from, to time.Time) {
	days := windowDays(window)
	return now.AddDate(0, 0, -days), now
}

// previousWindowRange returns the window of the same length immediately
// before the current one.
func previousWindowRange(window string, now time.Time) (from, to time.Time) {
	days := windowDays(window)
	to = now.AddDate(0, 0, -days)
	return to.AddDate(0, 0, -days), to
}
