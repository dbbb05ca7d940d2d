// Package reconciler runs one self-healing reconciliation per trigger.
//
// A run classifies the trigger, fetches the resource, checks the attempt
// budget and then follows either the alarm path or the drift path:
//
//	alarm: in-flight guard -> select -> record attempt -> execute -> notify
//	drift: detect -> notify findings -> transitional guard -> maintenance guard
//	       -> select -> record attempt -> execute -> notify
//
// Every run ends in exactly one types.Status. All of them except
// NoDriftDetected are notified once. An attempt is recorded only when a
// non-empty plan is about to execute.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yairfalse/ilmarinen/internal/classifier"
	"github.com/yairfalse/ilmarinen/internal/drift"
	"github.com/yairfalse/ilmarinen/internal/fetcher"
	"github.com/yairfalse/ilmarinen/internal/governor"
	"github.com/yairfalse/ilmarinen/internal/guard"
	"github.com/yairfalse/ilmarinen/internal/logger"
	"github.com/yairfalse/ilmarinen/internal/metrics"
	"github.com/yairfalse/ilmarinen/internal/notify"
	"github.com/yairfalse/ilmarinen/internal/remediation"
	"github.com/yairfalse/ilmarinen/internal/resource"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// Config is the immutable per-resource configuration
type Config struct {
	Resource types.ResourceRef
	Baseline types.Baseline
	// DryRun marks outcomes whose mutations were only logged
	DryRun bool
}

// Dependencies are the collaborators of a reconciler. Notifier, Metrics,
// Logger, Clock and NewRunID are optional.
type Dependencies struct {
	Classifier *classifier.Classifier
	Fetcher    *fetcher.Fetcher
	Governor   *governor.Governor
	Guard      *guard.Evaluator
	Detector   *drift.Detector
	Selector   *remediation.Selector
	Executor   *remediation.Executor
	Notifier   notify.Notifier
	Metrics    metrics.Recorder
	Logger     logger.Logger
	Clock      func() time.Time
	NewRunID   func() string
}

// Reconciler heals one configured resource
type Reconciler struct {
	cfg  Config
	deps Dependencies
}

// New creates a reconciler, filling in defaults for optional dependencies
func New(cfg Config, deps Dependencies) (*Reconciler, error) {
	if !cfg.Resource.Kind.IsValid() {
		return nil, fmt.Errorf("invalid resource kind %q", cfg.Resource.Kind)
	}
	if strings.TrimSpace(cfg.Resource.ID) == "" {
		return nil, errors.New("resource ID is required")
	}
	if deps.Fetcher == nil || deps.Governor == nil || deps.Executor == nil {
		return nil, errors.New("fetcher, governor and executor are required")
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.New()
	}
	if deps.Guard == nil {
		deps.Guard = guard.New(guard.Config{})
	}
	if deps.Detector == nil {
		deps.Detector = drift.New()
	}
	if deps.Selector == nil {
		deps.Selector = remediation.NewSelector(remediation.Policy{})
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Multi{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.NewRunID == nil {
		deps.NewRunID = func() string { return uuid.NewString() }
	}
	return &Reconciler{cfg: cfg, deps: deps}, nil
}

// Resource returns the configured resource
func (r *Reconciler) Resource() types.ResourceRef {
	return r.cfg.Resource
}

// run carries the state of one reconciliation
type run struct {
	outcome types.ReconciliationOutcome
	profile resource.Profile
	log     logger.Logger
}

// Reconcile runs one reconciliation for trigger and always returns a
// complete outcome
func (r *Reconciler) Reconcile(ctx context.Context, trigger types.Trigger) (outcome types.ReconciliationOutcome) {
	rn := &run{
		outcome: types.ReconciliationOutcome{
			RunID:      r.deps.NewRunID(),
			ResourceID: r.cfg.Resource.ID,
			Kind:       r.cfg.Resource.Kind,
			StartedAt:  r.deps.Clock(),
			Actions:    []types.ActionRecord{},
			DryRun:     r.cfg.DryRun,
		},
		profile: resource.MustFor(r.cfg.Resource.Kind),
	}
	rn.log = r.deps.Logger.WithFields(map[string]interface{}{
		"run_id":   rn.outcome.RunID,
		"resource": r.cfg.Resource.String(),
	})

	defer func() {
		if p := recover(); p != nil {
			rn.log.Error("reconciliation panicked", fmt.Errorf("%v", p))
			outcome = r.finish(ctx, rn, types.StatusActionFailed, fmt.Sprintf("internal error: %v", p))
		}
	}()

	return r.reconcile(ctx, rn, trigger)
}

func (r *Reconciler) reconcile(ctx context.Context, rn *run, trigger types.Trigger) types.ReconciliationOutcome {
	intent, err := r.deps.Classifier.Classify(trigger)
	if err != nil {
		rn.log.Warn("unknown event type: " + err.Error())
		return r.finish(ctx, rn, types.StatusUnknownIntent, "Unknown event type: "+err.Error())
	}
	rn.outcome.Intent = intent.Type
	rn.outcome.Category = intent.Category
	rn.log = rn.log.WithField("intent", string(intent.Type))

	snap, err := r.deps.Fetcher.Fetch(ctx, r.cfg.Resource)
	if err != nil {
		rn.log.Error("failed to fetch resource", err)
		return r.finish(ctx, rn, types.StatusResourceUnavailable,
			fmt.Sprintf("Failed to read %s %s: %v", rn.profile.Noun(), r.cfg.Resource.ID, err))
	}
	rn.log = rn.log.WithField("state", snap.State)

	rec, err := r.deps.Governor.CheckBudget(ctx, snap)
	if err != nil {
		rn.log.Error("failed to read healing attempts", err)
		return r.finish(ctx, rn, types.StatusResourceUnavailable,
			fmt.Sprintf("Failed to read healing attempts for %s %s: %v", rn.profile.Noun(), snap.ID, err))
	}
	rn.outcome.Attempts = rec.Attempts
	if r.deps.Governor.Exhausted(rec) {
		return r.finish(ctx, rn, types.StatusBudgetExhausted,
			fmt.Sprintf("Maximum healing attempts (%d) reached for %s %s", r.deps.Governor.MaxAttempts(), rn.profile.Noun(), snap.ID))
	}

	if intent.IsAlarm() {
		return r.handleAlarm(ctx, rn, snap, rec, intent)
	}
	return r.handleDrift(ctx, rn, snap, rec)
}

func (r *Reconciler) handleAlarm(ctx context.Context, rn *run, snap *types.ResourceSnapshot, rec types.AttemptRecord, intent types.Intent) types.ReconciliationOutcome {
	rn.log = rn.log.WithFields(map[string]interface{}{
		"alarm":    intent.AlarmName,
		"category": string(intent.Category),
	})

	if deferred, reason := r.deps.Guard.InFlight(snap); deferred {
		return r.finish(ctx, rn, types.StatusDeferredTransitional, "Healing deferred: "+reason)
	}

	decision := r.deps.Selector.SelectAlarm(snap, r.cfg.Baseline, intent.Category)
	return r.act(ctx, rn, snap, rec, decision)
}

func (r *Reconciler) handleDrift(ctx context.Context, rn *run, snap *types.ResourceSnapshot, rec types.AttemptRecord) types.ReconciliationOutcome {
	findings := r.deps.Detector.DetectDrift(snap, r.cfg.Baseline)
	if len(findings) == 0 {
		return r.finish(ctx, rn, types.StatusNoDriftDetected, "No configuration drift detected")
	}
	rn.outcome.Findings = findings

	report := fmt.Sprintf("Configuration drift detected for %s %s:\n%s", rn.profile.Noun(), snap.ID, drift.Report(findings))
	rn.log.WithFields(map[string]interface{}{
		"findings":     len(findings),
		"auto_fixable": len(drift.Feasible(findings)),
		"manual":       len(drift.Infeasible(findings)),
	}).Warn("configuration drift detected")
	r.notify(ctx, rn, r.subject(rn, "Drift detected"), report)

	if deferred, reason := r.deps.Guard.Transitional(snap); deferred {
		return r.finish(ctx, rn, types.StatusDeferredTransitional, "Drift remediation deferred: "+reason)
	}
	if suppressed, reason := r.deps.Guard.Maintenance(snap); suppressed {
		return r.finish(ctx, rn, types.StatusDeferredMaintenance, "Drift remediation suppressed: "+reason)
	}

	decision := r.deps.Selector.SelectDrift(snap, r.cfg.Baseline, findings)
	return r.act(ctx, rn, snap, rec, decision)
}

// act records an attempt and executes the decision's plan. Decisions
// without a plan end the run with their status and consume no budget.
func (r *Reconciler) act(ctx context.Context, rn *run, snap *types.ResourceSnapshot, rec types.AttemptRecord, decision remediation.Decision) types.ReconciliationOutcome {
	rn.log.WithField("plan", decision.Plan.String()).Info(decision.Reason)

	if !decision.HasPlan() {
		status := decision.Status
		if status == "" {
			status = types.StatusManualInterventionRequired
		}
		return r.finish(ctx, rn, status, joinLines(decision.Reason, decision.Notes...))
	}

	next, err := r.deps.Governor.RecordAttempt(ctx, snap.Ref(), rec)
	switch {
	case errors.Is(err, governor.ErrConcurrentUpdate):
		return r.finish(ctx, rn, types.StatusDeferredTransitional,
			fmt.Sprintf("Healing deferred: another reconciliation of %s %s is in progress", rn.profile.Noun(), snap.ID))
	case err != nil:
		rn.log.Error("failed to record healing attempt", err)
	}
	rn.outcome.Attempts = next.Attempts

	result := r.deps.Executor.Run(ctx, snap.Ref(), decision.Plan)
	rn.outcome.Actions = result.Actions
	for _, a := range result.Actions {
		r.deps.Metrics.ObserveAction(snap.Kind, a)
	}

	lines := make([]string, 0, len(result.Actions)+len(decision.Notes))
	for _, a := range result.Actions {
		lines = append(lines, actionLine(a))
	}
	lines = append(lines, decision.Notes...)
	summary := joinLines(fmt.Sprintf("Healing actions for %s %s:", rn.profile.Noun(), snap.ID), lines...)

	switch {
	case !result.Succeeded:
		rn.log.WithField("failed_steps", len(result.Failed())).Warn("remediation plan failed")
		return r.finish(ctx, rn, types.StatusActionFailed, summary)
	case len(decision.Notes) > 0:
		return r.finish(ctx, rn, types.StatusManualInterventionRequired, summary)
	default:
		return r.finish(ctx, rn, types.StatusHealed, summary)
	}
}

// finish completes the outcome, records metrics and sends the one terminal
// notification
func (r *Reconciler) finish(ctx context.Context, rn *run, status types.Status, summary string) types.ReconciliationOutcome {
	rn.outcome.Status = status
	rn.outcome.Summary = summary
	rn.outcome.Duration = r.deps.Clock().Sub(rn.outcome.StartedAt)

	log := rn.log.WithFields(map[string]interface{}{
		"status":   status.String(),
		"attempts": rn.outcome.Attempts,
		"actions":  len(rn.outcome.Actions),
	})
	if status.IsFailure() {
		log.Warn(firstLine(summary))
	} else {
		log.Info(firstLine(summary))
	}

	r.deps.Metrics.ObserveOutcome(rn.outcome)

	if status != types.StatusNoDriftDetected {
		r.notify(ctx, rn, r.subject(rn, status.String()), summary)
	}
	return rn.outcome
}

func (r *Reconciler) notify(ctx context.Context, rn *run, subject, body string) {
	if err := r.deps.Notifier.Notify(ctx, subject, body); err != nil {
		rn.log.Error("failed to send notification", err)
	}
}

func (r *Reconciler) subject(rn *run, what string) string {
	return fmt.Sprintf("%s: %s", rn.profile.NotificationSubject(r.cfg.Resource.ID), what)
}

func actionLine(a types.ActionRecord) string {
	prefix := ""
	if a.Fallback {
		prefix = "fallback: "
	}
	if a.Success {
		return fmt.Sprintf("%s%s: ok", prefix, a.Step)
	}
	return fmt.Sprintf("%s%s: failed: %s", prefix, a.Step, a.Error)
}

func joinLines(head string, lines ...string) string {
	if len(lines) == 0 {
		return head
	}
	return head + "\n" + strings.Join(lines, "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
