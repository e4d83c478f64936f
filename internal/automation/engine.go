package automation

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paramads/adops-engine/internal/ads"
	"github.com/paramads/adops-engine/internal/pkg/distlock"
)

// RuleSource supplies due rules and accepts bookkeeping writes.
type RuleSource interface {
	DueRules(ctx context.Context, now time.Time, limit, offset int) ([]*Rule, error)
	MarkExecuted(ctx context.Context, id uuid.UUID, now time.Time) error
	InsertLog(ctx context.Context, l *Log) error
}

// TargetSource resolves the entities a rule applies to.
type TargetSource interface {
	ListTargets(ctx context.Context, orgID uuid.UUID, kind ads.TargetKind, platform string, applyToAll bool, targetIDs []uuid.UUID) ([]ads.Target, error)
}

// ConditionEvaluator decides whether a rule matches a target.
type ConditionEvaluator interface {
	EvaluateRule(ctx context.Context, rule *Rule, target ads.Target, now time.Time) (bool, map[string]interface{}, error)
}

// ActionRunner executes one action against one target.
type ActionRunner interface {
	Execute(ctx context.Context, rule *Rule, action Action, target ads.Target) (ActionResult, error)
}

// EngineConfig bounds a cycle's work.
type EngineConfig struct {
	TickInterval  time.Duration // cadence of the background loop
	RuleBatchSize int           // rules loaded per page
	MaxConcurrent int           // rules processed in parallel
	CallTimeout   time.Duration // per external call
	CycleTimeout  time.Duration // hard ceiling for one cycle
}

func (c *EngineConfig) applyDefaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Minute
	}
	if c.RuleBatchSize <= 0 {
		c.RuleBatchSize = 50
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 8
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.CycleTimeout <= 0 {
		c.CycleTimeout = 10 * time.Minute
	}
}

// Engine drives rule evaluation on a fixed cadence. Interval enforcement
// is per rule, so running the loop more often than the smallest check
// interval is safe.
type Engine struct {
	rules     RuleSource
	targets   TargetSource
	evaluator ConditionEvaluator
	runner    ActionRunner
	lock      distlock.Lock
	cfg       EngineConfig

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewEngine creates an engine. lock guards against overlapping cycles
// across deployments and may be nil in tests.
func NewEngine(rules RuleSource, targets TargetSource, evaluator ConditionEvaluator, runner ActionRunner, lock distlock.Lock, cfg EngineConfig) *Engine {
	cfg.applyDefaults()
	return &Engine{
		rules:     rules,
		targets:   targets,
		evaluator: evaluator,
		runner:    runner,
		lock:      lock,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the background loop. Safe to call once.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.mu.Unlock()

	log.Printf("[Automation] Engine started (tick %s, batch %d)", e.cfg.TickInterval, e.cfg.RuleBatchSize)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-e.stopCh:
				return
			case <-ticker.C:
				e.RunCycle(context.Background(), time.Now().UTC())
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight cycle to finish.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	close(e.stopCh)
	e.wg.Wait()
	log.Printf("[Automation] Engine stopped")
}

// RunCycle evaluates every due rule once. When another cycle holds the
// lock the call is a silent no-op.
func (e *Engine) RunCycle(ctx context.Context, now time.Time) {
	if e.lock != nil {
		ok, err := e.lock.TryAcquire(ctx)
		if err != nil {
			log.Printf("[Automation] Cycle lock error: %v", err)
			return
		}
		if !ok {
			return
		}
		defer func() {
			if err := e.lock.Release(context.Background()); err != nil {
				log.Printf("[Automation] Cycle lock release failed: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.CycleTimeout)
	defer cancel()

	start := time.Now()
	var processed, triggered int

	sem := make(chan struct{}, e.cfg.MaxConcurrent)
	offset := 0
	for {
		rules, err := e.rules.DueRules(ctx, now, e.cfg.RuleBatchSize, offset)
		if err != nil {
			log.Printf("[Automation] Failed to load due rules: %v", err)
			return
		}
		if len(rules) == 0 {
			break
		}

		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, rule := range rules {
			if ctx.Err() != nil {
				break
			}
			wg.Add(1)
			sem <- struct{}{}
			go func(r *Rule) {
				defer wg.Done()
				defer func() { <-sem }()
				fired := e.processRule(ctx, r, now)
				mu.Lock()
				processed++
				if fired {
					triggered++
				}
				mu.Unlock()
			}(rule)
		}
		wg.Wait()

		if ctx.Err() != nil {
			log.Printf("[Automation] Cycle hit its %s ceiling, stopping early", e.cfg.CycleTimeout)
			break
		}
		if len(rules) < e.cfg.RuleBatchSize {
			break
		}
		offset += e.cfg.RuleBatchSize
	}

	if processed > 0 {
		log.Printf("[Automation] Cycle done: %d rules evaluated, %d triggered in %s",
			processed, triggered, time.Since(start).Round(time.Millisecond))
	}
}

// processRule handles one rule end to end and reports whether any target
// triggered. A panic or error here never aborts the cycle.
func (e *Engine) processRule(ctx context.Context, rule *Rule, now time.Time) (fired bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Automation] Panic processing rule %s: %v", rule.ID, r)
			fired = false
		}
	}()

	if rule.OnCooldown(now) {
		return false
	}

	targets, err := e.targets.ListTargets(ctx, rule.OrganizationID, rule.TargetKind, rule.Platform, rule.ApplyToAll, rule.TargetIDs)
	if err != nil {
		log.Printf("[Automation] Failed to resolve targets for rule %s: %v", rule.ID, err)
		return false
	}

	for _, target := range targets {
		if ctx.Err() != nil {
			return fired
		}

		matched, _, err := e.evaluateTarget(ctx, rule, target, now)
		if err != nil {
			log.Printf("[Automation] Evaluation failed for rule %s on %s %s: %v", rule.ID, target.Kind, target.ID, err)
			continue
		}
		if !matched {
			continue
		}

		fired = true
		for _, action := range rule.Actions {
			e.runAction(ctx, rule, action, target)
		}
	}

	if fired {
		if err := e.rules.MarkExecuted(ctx, rule.ID, now); err != nil {
			log.Printf("[Automation] Failed to mark rule %s executed: %v", rule.ID, err)
		}
	}
	return fired
}

func (e *Engine) evaluateTarget(ctx context.Context, rule *Rule, target ads.Target, now time.Time) (bool, map[string]interface{}, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	return e.evaluator.EvaluateRule(callCtx, rule, target, now)
}

// runAction executes one action and writes its log row. Failures are
// logged per action and never stop the remaining actions.
func (e *Engine) runAction(ctx context.Context, rule *Rule, action Action, target ads.Target) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	entry := &Log{
		OrganizationID:    rule.OrganizationID,
		RuleID:            rule.ID,
		TargetKind:        target.Kind,
		TargetID:          target.ID,
		ActionType:        action.Type,
		ConditionSnapshot: rule.Conditions,
	}

	result, err := e.runner.Execute(callCtx, rule, action, target)
	if err != nil {
		entry.Status = LogStatusFailed
		entry.ErrorMessage = err.Error()
		entry.ActionResult = ActionResult{"error": err.Error()}
		log.Printf("[Automation] Action %s failed for rule %s on %s %s: %v", action.Type, rule.ID, target.Kind, target.ID, err)
	} else {
		entry.Status = LogStatusSuccess
		entry.ActionResult = result
	}

	if err := e.rules.InsertLog(ctx, entry); err != nil {
		log.Printf("[Automation] Failed to write log for rule %s: %v", rule.ID, err)
	}
}
