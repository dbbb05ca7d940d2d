package remediation

import (
	"context"
	"errors"
	"fmt"

	"github.com/yairfalse/ilmarinen/internal/controlplane"
	"github.com/yairfalse/ilmarinen/internal/logger"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// ErrActionNotAllowed is recorded for steps outside the allowed set
var ErrActionNotAllowed = errors.New("action not allowed")

// AllActions is every action the executor knows how to run
var AllActions = []types.Action{
	types.ActionReboot,
	types.ActionStop,
	types.ActionStart,
	types.ActionResize,
	types.ActionResizeStorage,
	types.ActionRestoreNetworkGroups,
}

// ExecutionResult is the action log of one plan run
type ExecutionResult struct {
	Actions      []types.ActionRecord
	Succeeded    bool
	UsedFallback bool
}

// Failed returns the failed action records
func (r ExecutionResult) Failed() []types.ActionRecord {
	var out []types.ActionRecord
	for _, a := range r.Actions {
		if !a.Success {
			out = append(out, a)
		}
	}
	return out
}

// ActionHook observes every attempted step
type ActionHook func(types.ActionRecord)

// Executor runs plans step by step against a control plane
type Executor struct {
	cp       controlplane.ControlPlane
	allowed  map[types.Action]bool
	log      logger.Logger
	onAction ActionHook
}

// NewExecutor creates an executor. A nil or empty allowed list permits every action.
func NewExecutor(cp controlplane.ControlPlane, allowed []types.Action, log logger.Logger) *Executor {
	if len(allowed) == 0 {
		allowed = AllActions
	}
	set := make(map[types.Action]bool, len(allowed)+1)
	for _, a := range allowed {
		set[a] = true
	}
	set[types.ActionNoop] = true
	if log == nil {
		log = logger.NewNop()
	}
	return &Executor{cp: cp, allowed: set, log: log}
}

// OnAction registers a hook called after every attempted step
func (e *Executor) OnAction(hook ActionHook) *Executor {
	e.onAction = hook
	return e
}

// Run executes plan in order. The first failing step halts the plan and
// hands over to its fallback, if any. Succeeded reflects the last plan run.
func (e *Executor) Run(ctx context.Context, ref types.ResourceRef, plan *types.RemediationPlan) ExecutionResult {
	var result ExecutionResult

	fallback := false
	for cur := plan; cur != nil && !cur.IsEmpty(); cur = cur.Fallback {
		if fallback {
			result.UsedFallback = true
			e.log.WithField("plan", cur.String()).Warn("primary plan failed, running fallback")
		}

		ok := e.runSteps(ctx, ref, cur.Steps, fallback, &result)
		result.Succeeded = ok
		if ok {
			break
		}
		fallback = true
	}
	return result
}

func (e *Executor) runSteps(ctx context.Context, ref types.ResourceRef, steps []types.RemediationStep, fallback bool, result *ExecutionResult) bool {
	for _, step := range steps {
		rec := types.ActionRecord{Action: step.Action, Step: step.String(), Fallback: fallback}

		err := e.execute(ctx, ref, step)
		if err != nil {
			rec.Error = err.Error()
			e.log.WithFields(map[string]interface{}{
				"resource": ref.String(),
				"action":   string(step.Action),
				"fallback": fallback,
			}).Error("remediation step failed", err)
		} else {
			rec.Success = true
			e.log.WithFields(map[string]interface{}{
				"resource": ref.String(),
				"action":   string(step.Action),
				"fallback": fallback,
			}).Info("executed " + step.String())
		}

		result.Actions = append(result.Actions, rec)
		if e.onAction != nil {
			e.onAction(rec)
		}
		if err != nil {
			return false
		}
	}
	return true
}

func (e *Executor) execute(ctx context.Context, ref types.ResourceRef, step types.RemediationStep) error {
	if !e.allowed[step.Action] {
		return fmt.Errorf("%s: %w", step.Action, ErrActionNotAllowed)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.cp.Execute(ctx, ref, step)
}
