package automation

import (
	"context"
	"log"
	"math"
	"strings"
	"time"

	"github.com/paramads/adops-engine/internal/ads"
	"github.com/paramads/adops-engine/internal/metrics"
)

// floatEpsilon is the tolerance for == and != comparisons.
const floatEpsilon = 0.001

// Evaluator checks a rule's conditions against aggregated metrics.
type Evaluator struct {
	metrics metrics.Aggregator
}

func NewEvaluator(agg metrics.Aggregator) *Evaluator {
	return &Evaluator{metrics: agg}
}

// EvaluateRule reports whether the rule's conditions match for the target
// at the given time, plus a per-condition breakdown used by the dry-run
// endpoint and execution logs. A condition that cannot be evaluated counts
// as not matched; the rule only acts on data it could actually read.
func (e *Evaluator) EvaluateRule(ctx context.Context, rule *Rule, target ads.Target, now time.Time) (bool, map[string]interface{}, error) {
	logic := strings.ToLower(rule.ConditionLogic)
	if logic != "or" {
		logic = "and"
	}

	results := make([]map[string]interface{}, 0, len(rule.Conditions))
	matched := logic == "and"

	for _, cond := range rule.Conditions {
		passed, actual, err := e.evaluateCondition(ctx, cond, rule.TimeWindow, target, now)
		entry := map[string]interface{}{
			"metric":   cond.Metric,
			"operator": cond.Operator,
			"value":    cond.Value,
			"actual":   actual,
			"passed":   passed,
		}
		if err != nil {
			entry["error"] = err.Error()
			log.Printf("[Automation] Condition %s %s on %s %s failed to evaluate: %v",
				cond.Metric, cond.Operator, target.Kind, target.ID, err)
		}
		results = append(results, entry)

		if logic == "and" {
			matched = matched && passed
		} else {
			matched = matched || passed
		}
	}

	if len(rule.Conditions) == 0 {
		matched = false
	}

	details := map[string]interface{}{
		"logic":      logic,
		"conditions": results,
	}
	return matched, details, nil
}

// evaluateCondition returns whether one condition holds and the value that
// was compared: the window aggregate, or the percent change for delta
// conditions.
func (e *Evaluator) evaluateCondition(ctx context.Context, cond Condition, defaultWindow string, target ads.Target, now time.Time) (bool, float64, error) {
	window := cond.TimeWindow
	if window == "" {
		window = defaultWindow
	}

	from, to := windowRange(window, now)
	current, err := e.metrics.Aggregate(ctx, cond.Metric, target.ID, target.Kind, from, to)
	if err != nil {
		return false, 0, err
	}

	isDelta := cond.Operator == OpIncreaseBy || cond.Operator == OpDecreaseBy ||
		cond.CompareTo == "previous_period"

	if !isDelta {
		return compare(current, cond.Operator, cond.Value), current, nil
	}

	prevFrom, prevTo := previousWindowRange(window, now)
	previous, err := e.metrics.Aggregate(ctx, cond.Metric, target.ID, target.Kind, prevFrom, prevTo)
	if err != nil {
		return false, 0, err
	}
	// No baseline means no measurable change.
	if previous == 0 {
		return false, 0, nil
	}

	deltaPercent := (current - previous) / previous * 100

	switch cond.Operator {
	case OpIncreaseBy:
		return deltaPercent >= cond.Value, deltaPercent, nil
	case OpDecreaseBy:
		return deltaPercent <= -cond.Value, deltaPercent, nil
	default:
		return compare(deltaPercent, cond.Operator, cond.Value), deltaPercent, nil
	}
}

func compare(actual float64, operator string, value float64) bool {
	switch operator {
	case OpGreaterThan:
		return actual > value
	case OpLessThan:
		return actual < value
	case OpGreaterOrEqual:
		return actual >= value
	case OpLessOrEqual:
		return actual <= value
	case OpEqual:
		return math.Abs(actual-value) < floatEpsilon
	case OpNotEqual:
		return math.Abs(actual-value) >= floatEpsilon
	default:
		return false
	}
}
