package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/yairfalse/ilmarinen/internal/controlplane"
	awscp "github.com/yairfalse/ilmarinen/internal/controlplane/aws"
	"github.com/yairfalse/ilmarinen/internal/fetcher"
	"github.com/yairfalse/ilmarinen/internal/governor"
	"github.com/yairfalse/ilmarinen/internal/notify"
	"github.com/yairfalse/ilmarinen/internal/remediation"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

var now = time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

type recordingMetrics struct {
	outcomes []types.ReconciliationOutcome
	actions  []types.ActionRecord
	retries  int
}

func (m *recordingMetrics) ObserveOutcome(o types.ReconciliationOutcome) {
	m.outcomes = append(m.outcomes, o)
}

func (m *recordingMetrics) ObserveAction(_ types.Kind, rec types.ActionRecord) {
	m.actions = append(m.actions, rec)
}

func (m *recordingMetrics) ObserveFetchRetry(types.Kind) { m.retries++ }

type harness struct {
	rec      *Reconciler
	cp       *controlplane.Fake
	notes    *notify.Recorder
	metrics  *recordingMetrics
	baseline types.Baseline
}

func newHarness(t *testing.T, snap types.ResourceSnapshot, baseline types.Baseline) *harness {
	t.Helper()
	return newHarnessWithStore(t, snap, baseline, nil)
}

func newHarnessWithStore(t *testing.T, snap types.ResourceSnapshot, baseline types.Baseline, store governor.Store) *harness {
	t.Helper()

	cp := controlplane.NewFake(snap)
	if store == nil {
		store = governor.NewTagStore(cp)
	}
	notes := &notify.Recorder{}
	m := &recordingMetrics{}

	f := fetcher.New(cp, fetcher.Config{Attempts: 3, Delay: time.Millisecond}, nil).
		OnRetry(func(int, error) { m.ObserveFetchRetry(snap.Kind) })

	r, err := New(
		Config{Resource: types.ResourceRef{ID: snap.ID, Kind: snap.Kind}, Baseline: baseline},
		Dependencies{
			Fetcher:  f,
			Governor: governor.New(store, 3, nil).WithClock(func() time.Time { return now }),
			Executor: remediation.NewExecutor(cp, nil, nil),
			Notifier: notes,
			Metrics:  m,
			Clock:    func() time.Time { return now },
			NewRunID: func() string { return "run-1" },
		},
	)
	require.NoError(t, err)

	return &harness{rec: r, cp: cp, notes: notes, metrics: m, baseline: baseline}
}

func runningInstance() types.ResourceSnapshot {
	return types.ResourceSnapshot{
		ID:            "i-0abc",
		Kind:          types.KindCompute,
		State:         "running",
		SizeClass:     "t3.large",
		Image:         "ami-1",
		StorageGB:     20,
		NetworkGroups: []string{"sg-1"},
		Tags:          map[string]string{"Name": "web"},
	}
}

func availableDatabase() types.ResourceSnapshot {
	return types.ResourceSnapshot{
		ID:        "prod-db",
		ARN:       "arn:aws:rds:eu-west-1:123:db:prod-db",
		Kind:      types.KindDatabase,
		State:     "available",
		SizeClass: "db.r5.large",
		Image:     "15.4",
		StorageGB: 100,
	}
}

func matchingBaseline() types.Baseline {
	return types.Baseline{SizeClass: "t3.large", Image: "ami-1", StorageGB: 20, NetworkGroups: []string{"sg-1"}}
}

func alarm(name string) types.Trigger {
	return types.AlarmTrigger(name, "ALARM", now)
}

func (h *harness) mutatingCalls() int {
	return len(h.cp.Executed) + len(h.cp.TagWrites)
}

func TestReconcile_BudgetExhausted(t *testing.T) {
	snap := runningInstance()
	snap.Tags[types.TagHealingAttempts] = "3"
	snap.SizeClass = "t3.micro"

	for _, trigger := range []types.Trigger{alarm("web-high-cpu"), types.ScheduledTrigger(now)} {
		h := newHarness(t, snap, matchingBaseline())

		out := h.rec.Reconcile(context.Background(), trigger)

		assert.Equal(t, types.StatusBudgetExhausted, out.Status)
		assert.Equal(t, 3, out.Attempts)
		assert.Zero(t, h.mutatingCalls())
		require.Len(t, h.notes.Messages, 1)
		assert.Contains(t, h.notes.Messages[0].Body, "Maximum healing attempts (3) reached for instance i-0abc")
		assert.Equal(t, "EC2 Self-Healing Notification - Instance i-0abc: BudgetExhausted", h.notes.Messages[0].Subject)
	}
}

func TestReconcile_NoDriftIsSilentAndIdempotent(t *testing.T) {
	h := newHarness(t, runningInstance(), matchingBaseline())

	for i := 0; i < 2; i++ {
		out := h.rec.Reconcile(context.Background(), types.ScheduledTrigger(now))
		assert.Equal(t, types.StatusNoDriftDetected, out.Status)
		assert.Equal(t, types.IntentScheduledDriftCheck, out.Intent)
		assert.Equal(t, "run-1", out.RunID)
		assert.Empty(t, out.Actions)
	}

	assert.Zero(t, h.mutatingCalls())
	assert.Empty(t, h.notes.Messages)
	assert.Len(t, h.metrics.outcomes, 2)
}

func TestReconcile_CPUAlarmResizesUndersizedInstance(t *testing.T) {
	snap := runningInstance()
	snap.SizeClass = "t3.micro"
	h := newHarness(t, snap, matchingBaseline())

	out := h.rec.Reconcile(context.Background(), alarm("web-HighCPUUtilization"))

	assert.Equal(t, types.StatusHealed, out.Status)
	assert.Equal(t, types.CategoryCPU, out.Category)
	assert.Equal(t, []types.Action{types.ActionResize}, h.cp.Actions())
	assert.Equal(t, "t3.large", h.cp.Snapshot().SizeClass)
	assert.Equal(t, 1, out.Attempts)
	require.Len(t, h.cp.TagWrites, 1)
	assert.Equal(t, "1", h.cp.TagWrites[0][types.TagHealingAttempts])

	require.Len(t, h.notes.Messages, 1)
	assert.Equal(t, "Healing actions for instance i-0abc:\nresize to t3.large: ok", h.notes.Messages[0].Body)
	assert.Len(t, h.metrics.actions, 1)
}

func TestReconcile_CPUAlarmFallsBackToReboot(t *testing.T) {
	snap := runningInstance()
	snap.SizeClass = "t3.micro"
	h := newHarness(t, snap, matchingBaseline())
	h.cp.ActionErrors[types.ActionResize] = errors.New("IncorrectInstanceState")

	out := h.rec.Reconcile(context.Background(), alarm("web-high-cpu"))

	assert.Equal(t, types.StatusHealed, out.Status)
	assert.Equal(t, []types.Action{types.ActionResize, types.ActionReboot}, h.cp.Actions())
	require.Len(t, out.Actions, 2)
	assert.False(t, out.Actions[0].Success)
	assert.True(t, out.Actions[1].Fallback)
	assert.Contains(t, out.Summary, "fallback: reboot: ok")
	assert.Len(t, h.cp.TagWrites, 1, "one attempt per run regardless of fallbacks")
}

func TestReconcile_AllPlansFail(t *testing.T) {
	h := newHarness(t, runningInstance(), matchingBaseline())
	h.cp.ActionErrors[types.ActionReboot] = errors.New("boom")
	h.cp.ActionErrors[types.ActionStop] = errors.New("boom")

	out := h.rec.Reconcile(context.Background(), alarm("web-connection-count"))

	assert.Equal(t, types.StatusActionFailed, out.Status)
	assert.Equal(t, types.CategoryConnections, out.Category)
	assert.Equal(t, []types.Action{types.ActionReboot, types.ActionStop}, h.cp.Actions())
	assert.Equal(t, 1, out.Attempts)
	assert.Len(t, h.notes.Messages, 1)
}

func TestReconcile_StorageAlarmAddsHeadroom(t *testing.T) {
	snap := availableDatabase()
	h := newHarness(t, snap, types.Baseline{SizeClass: "db.r5.large", StorageGB: 100})

	out := h.rec.Reconcile(context.Background(), alarm("prod-db-low-free-storage"))

	assert.Equal(t, types.StatusHealed, out.Status)
	require.Len(t, h.cp.Executed, 1)
	assert.Equal(t, types.ActionResizeStorage, h.cp.Executed[0].Action)
	assert.Equal(t, 120, h.cp.Executed[0].StorageGB)
	assert.Equal(t, "RDS Self-Healing Notification - Instance prod-db: Healed", h.notes.Messages[0].Subject)
}

func TestReconcile_StorageAlarmAboveBaselineNeedsOperator(t *testing.T) {
	snap := availableDatabase()
	snap.StorageGB = 500
	h := newHarness(t, snap, types.Baseline{StorageGB: 100})

	out := h.rec.Reconcile(context.Background(), alarm("prod-db-storage"))

	assert.Equal(t, types.StatusManualInterventionRequired, out.Status)
	assert.Zero(t, h.mutatingCalls(), "no plan, no attempt")
	assert.Len(t, h.notes.Messages, 1)
}

func TestReconcile_AlarmOnTransitionalResourceIsDeferred(t *testing.T) {
	snap := runningInstance()
	snap.State = "stopping"
	h := newHarness(t, snap, matchingBaseline())

	out := h.rec.Reconcile(context.Background(), alarm("web-high-cpu"))

	assert.Equal(t, types.StatusDeferredTransitional, out.Status)
	assert.Zero(t, h.mutatingCalls())
	require.Len(t, h.notes.Messages, 1)
	assert.Contains(t, h.notes.Messages[0].Body, `transitional state "stopping"`)
}

func TestReconcile_AlarmOnStoppedInstanceStartsIt(t *testing.T) {
	snap := runningInstance()
	snap.State = "stopped"
	h := newHarness(t, snap, matchingBaseline())

	out := h.rec.Reconcile(context.Background(), alarm("web-status-check"))

	assert.Equal(t, types.StatusHealed, out.Status)
	assert.Equal(t, []types.Action{types.ActionStart}, h.cp.Actions())
	assert.Equal(t, "running", h.cp.Snapshot().State)
}

func TestReconcile_AlarmOnTerminatedInstance(t *testing.T) {
	snap := runningInstance()
	snap.State = "terminated"
	h := newHarness(t, snap, matchingBaseline())

	out := h.rec.Reconcile(context.Background(), alarm("web-status-check"))

	assert.Equal(t, types.StatusManualInterventionRequired, out.Status)
	assert.Contains(t, out.Summary, "no action, wrong state")
	assert.Zero(t, h.mutatingCalls())
}

func TestReconcile_AlarmOnModifyingDatabaseIsDeferred(t *testing.T) {
	snap := availableDatabase()
	snap.State = "modifying"
	h := newHarness(t, snap, types.Baseline{SizeClass: "db.r5.large"})

	out := h.rec.Reconcile(context.Background(), alarm("prod-db-cpu-utilization"))

	assert.Equal(t, types.StatusDeferredTransitional, out.Status)
	assert.Zero(t, h.mutatingCalls())
}

func TestReconcile_AlarmOnParkedDatabaseNeedsOperator(t *testing.T) {
	for _, state := range []string{"stopped", "storage-full", "failed"} {
		t.Run(state, func(t *testing.T) {
			snap := availableDatabase()
			snap.State = state
			h := newHarness(t, snap, types.Baseline{SizeClass: "db.r5.large"})

			out := h.rec.Reconcile(context.Background(), alarm("prod-db-cpu-utilization"))

			assert.Equal(t, types.StatusManualInterventionRequired, out.Status)
			assert.Contains(t, out.Summary, "no action, wrong state")
			assert.Contains(t, out.Summary, state)
			assert.Zero(t, h.mutatingCalls())
			assert.Zero(t, out.Attempts)
		})
	}
}

func TestReconcile_MaintenanceSuppressesDriftRemediation(t *testing.T) {
	snap := runningInstance()
	snap.SizeClass = "t3.micro"
	snap.Tags["Maintenance"] = "ACTIVE"
	h := newHarness(t, snap, matchingBaseline())

	out := h.rec.Reconcile(context.Background(), types.ScheduledTrigger(now))

	assert.Equal(t, types.StatusDeferredMaintenance, out.Status)
	assert.Zero(t, h.mutatingCalls())
	assert.Equal(t, 0, out.Attempts)
	require.Len(t, out.Findings, 1)

	require.Len(t, h.notes.Messages, 2, "drift report, then the outcome")
	assert.Equal(t, "EC2 Self-Healing Notification - Instance i-0abc: Drift detected", h.notes.Messages[0].Subject)
	assert.Equal(t,
		"Configuration drift detected for instance i-0abc:\nInstance type drift detected: current=t3.micro, original=t3.large",
		h.notes.Messages[0].Body)
	assert.Contains(t, h.notes.Messages[1].Subject, "Deferred-Maintenance")
}

func TestReconcile_MaintenanceDoesNotBlockAlarms(t *testing.T) {
	snap := runningInstance()
	snap.Tags["Maintenance"] = "active"
	h := newHarness(t, snap, matchingBaseline())

	out := h.rec.Reconcile(context.Background(), alarm("web-replica-lag"))

	assert.Equal(t, types.StatusHealed, out.Status)
	assert.Equal(t, []types.Action{types.ActionReboot}, h.cp.Actions())
}

func TestReconcile_DriftOnTransitionalDatabaseIsDeferred(t *testing.T) {
	snap := availableDatabase()
	snap.State = "modifying"
	h := newHarness(t, snap, types.Baseline{SizeClass: "db.r5.xlarge"})

	out := h.rec.Reconcile(context.Background(), types.ScheduledTrigger(now))

	assert.Equal(t, types.StatusDeferredTransitional, out.Status)
	assert.Zero(t, h.mutatingCalls())
	assert.Len(t, h.notes.Messages, 2)
}

func TestReconcile_DriftOnRunningInstance(t *testing.T) {
	snap := runningInstance()
	snap.SizeClass = "t3.micro"
	snap.NetworkGroups = []string{"sg-9"}
	h := newHarness(t, snap, matchingBaseline())

	out := h.rec.Reconcile(context.Background(), types.ScheduledTrigger(now))

	assert.Equal(t, types.StatusHealed, out.Status)
	assert.Equal(t, []types.Action{
		types.ActionStop,
		types.ActionResize,
		types.ActionStart,
		types.ActionRestoreNetworkGroups,
	}, h.cp.Actions())

	after := h.cp.Snapshot()
	assert.Equal(t, "running", after.State)
	assert.Equal(t, "t3.large", after.SizeClass)
	assert.Equal(t, []string{"sg-1"}, after.NetworkGroups)
	assert.Equal(t, 1, out.Attempts)

	// the healed resource shows no drift on the next run
	again := h.rec.Reconcile(context.Background(), types.ScheduledTrigger(now))
	assert.Equal(t, types.StatusNoDriftDetected, again.Status)
}

func TestReconcile_DriftWithImageNeedsOperator(t *testing.T) {
	snap := runningInstance()
	snap.SizeClass = "t3.micro"
	snap.Image = "ami-2"
	h := newHarness(t, snap, matchingBaseline())

	out := h.rec.Reconcile(context.Background(), types.ScheduledTrigger(now))

	assert.Equal(t, types.StatusManualInterventionRequired, out.Status)
	assert.Len(t, out.Actions, 3, "feasible drift is still fixed")
	assert.Contains(t, out.Summary, "AMI drift detected but not automatically fixed")
}

func TestReconcile_OnlyImageDrift(t *testing.T) {
	snap := runningInstance()
	snap.Image = "ami-2"
	h := newHarness(t, snap, matchingBaseline())

	out := h.rec.Reconcile(context.Background(), types.ScheduledTrigger(now))

	assert.Equal(t, types.StatusManualInterventionRequired, out.Status)
	assert.Zero(t, h.mutatingCalls())
}

func TestReconcile_DriftStepFailureHalts(t *testing.T) {
	snap := runningInstance()
	snap.SizeClass = "t3.micro"
	h := newHarness(t, snap, matchingBaseline())
	h.cp.ActionErrors[types.ActionStop] = errors.New("UnauthorizedOperation")

	out := h.rec.Reconcile(context.Background(), types.ScheduledTrigger(now))

	assert.Equal(t, types.StatusActionFailed, out.Status)
	assert.Equal(t, []types.Action{types.ActionStop}, h.cp.Actions())
	assert.Contains(t, out.Summary, "stop: failed: UnauthorizedOperation")
	assert.Equal(t, 1, out.Attempts)
}

func TestReconcile_UnknownIntent(t *testing.T) {
	h := newHarness(t, runningInstance(), matchingBaseline())

	for _, payload := range []string{`not json`, `[1,2]`, `{"detail-type":"CloudWatch Alarm State Change","detail":"oops"}`} {
		out := h.rec.Reconcile(context.Background(), types.Trigger(payload))
		assert.Equal(t, types.StatusUnknownIntent, out.Status, payload)
		assert.Equal(t, 400, out.Status.HTTPStatus())
	}

	assert.Zero(t, h.cp.FetchCalls)
	assert.Len(t, h.notes.Messages, 3)
}

func TestReconcile_ResourceUnavailable(t *testing.T) {
	h := newHarness(t, runningInstance(), matchingBaseline())
	h.cp.FetchErrors = []error{errors.New("throttled"), errors.New("throttled"), errors.New("throttled")}

	out := h.rec.Reconcile(context.Background(), alarm("web-high-cpu"))

	assert.Equal(t, types.StatusResourceUnavailable, out.Status)
	assert.Equal(t, 3, h.cp.FetchCalls)
	assert.Equal(t, 2, h.metrics.retries)
	assert.Zero(t, h.mutatingCalls())
	assert.Len(t, h.notes.Messages, 1)
}

func TestReconcile_FetchRecoversAfterRetry(t *testing.T) {
	h := newHarness(t, runningInstance(), matchingBaseline())
	h.cp.FetchErrors = []error{errors.New("throttled")}

	out := h.rec.Reconcile(context.Background(), types.ScheduledTrigger(now))

	assert.Equal(t, types.StatusNoDriftDetected, out.Status)
	assert.Equal(t, 2, h.cp.FetchCalls)
}

func TestReconcile_ResourceNotFoundIsNotRetried(t *testing.T) {
	h := newHarness(t, runningInstance(), matchingBaseline())
	h.cp.FetchErrors = []error{controlplane.ErrNotFound}

	out := h.rec.Reconcile(context.Background(), alarm("web-high-cpu"))

	assert.Equal(t, types.StatusResourceUnavailable, out.Status)
	assert.Equal(t, 1, h.cp.FetchCalls)
}

func TestReconcile_AttemptWriteFailureDoesNotAbort(t *testing.T) {
	h := newHarness(t, runningInstance(), matchingBaseline())
	h.cp.WriteTagsErr = errors.New("AccessDenied")

	out := h.rec.Reconcile(context.Background(), alarm("web-memory"))

	assert.Equal(t, types.StatusHealed, out.Status)
	assert.Equal(t, []types.Action{types.ActionReboot}, h.cp.Actions())
	assert.Equal(t, 1, out.Attempts)
}

func TestReconcile_NotifierFailureIsSwallowed(t *testing.T) {
	h := newHarness(t, runningInstance(), matchingBaseline())
	h.notes.Err = errors.New("sns down")

	out := h.rec.Reconcile(context.Background(), alarm("web-high-cpu"))

	assert.Equal(t, types.StatusHealed, out.Status)
}

func TestReconcile_ConcurrentAttemptDefers(t *testing.T) {
	client := new(awscp.MockDynamoDBClient)
	client.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)
	client.On("PutItem", mock.Anything, mock.Anything).Return(nil, &dbtypes.ConditionalCheckFailedException{})

	h := newHarnessWithStore(t, runningInstance(), matchingBaseline(), governor.NewDynamoStore(client, "healing"))

	out := h.rec.Reconcile(context.Background(), alarm("web-high-cpu"))

	assert.Equal(t, types.StatusDeferredTransitional, out.Status)
	assert.Contains(t, out.Summary, "another reconciliation")
	assert.Empty(t, h.cp.Executed)
}

func TestReconcile_MetricsSeeEveryOutcome(t *testing.T) {
	h := newHarness(t, runningInstance(), matchingBaseline())

	h.rec.Reconcile(context.Background(), alarm("web-high-cpu"))
	h.rec.Reconcile(context.Background(), types.Trigger(`nope`))

	require.Len(t, h.metrics.outcomes, 2)
	assert.Equal(t, types.StatusHealed, h.metrics.outcomes[0].Status)
	assert.Equal(t, types.StatusUnknownIntent, h.metrics.outcomes[1].Status)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Resource: types.ResourceRef{ID: "i-1", Kind: "queue"}}, Dependencies{})
	assert.Error(t, err)

	_, err = New(Config{Resource: types.ResourceRef{Kind: types.KindCompute}}, Dependencies{})
	assert.Error(t, err)

	_, err = New(Config{Resource: types.ResourceRef{ID: "i-1", Kind: types.KindCompute}}, Dependencies{})
	assert.Error(t, err)
}
