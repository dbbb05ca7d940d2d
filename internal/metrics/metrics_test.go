package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	awscp "github.com/yairfalse/ilmarinen/internal/controlplane/aws"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

func healed() types.ReconciliationOutcome {
	return types.ReconciliationOutcome{
		ResourceID: "i-0abc",
		Kind:       types.KindCompute,
		Intent:     types.IntentAlarm,
		Status:     types.StatusHealed,
		Attempts:   2,
		Duration:   1500 * time.Millisecond,
	}
}

func TestPrometheus_Observations(t *testing.T) {
	p := NewPrometheus("")

	p.ObserveOutcome(healed())
	p.ObserveOutcome(healed())
	p.ObserveAction(types.KindCompute, types.ActionRecord{Action: types.ActionReboot, Success: false})
	p.ObserveAction(types.KindCompute, types.ActionRecord{Action: types.ActionStop, Success: true, Fallback: true})
	p.ObserveFetchRetry(types.KindDatabase)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.reconciliations.WithLabelValues("compute", "alarm", "Healed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.actions.WithLabelValues("compute", "reboot", "failure", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.actions.WithLabelValues("compute", "stop", "success", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.fetchRetries.WithLabelValues("database")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.attempts.WithLabelValues("compute", "i-0abc")))
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus("healer")
	p.ObserveOutcome(healed())

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `healer_reconciliations_total{intent="alarm",kind="compute",status="Healed"} 1`)
}

func TestCloudWatchPublisher_FlushBatches(t *testing.T) {
	ctx := context.Background()
	client := new(awscp.MockCloudWatchClient)
	client.On("PutMetricData", ctx, mock.MatchedBy(func(in *cloudwatch.PutMetricDataInput) bool {
		return *in.Namespace == DefaultCloudWatchNamespace && len(in.MetricData) == maxDatumsPerCall
	})).Return(&cloudwatch.PutMetricDataOutput{}, nil).Once()
	client.On("PutMetricData", ctx, mock.MatchedBy(func(in *cloudwatch.PutMetricDataInput) bool {
		return len(in.MetricData) == 4
	})).Return(&cloudwatch.PutMetricDataOutput{}, nil).Once()

	c := NewCloudWatchPublisher(client, "")
	for i := 0; i < 8; i++ {
		c.ObserveOutcome(healed())
	}
	require.Equal(t, 24, c.Pending())

	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, 0, c.Pending())
	client.AssertExpectations(t)
}

func TestCloudWatchPublisher_FlushError(t *testing.T) {
	ctx := context.Background()
	client := new(awscp.MockCloudWatchClient)
	client.On("PutMetricData", ctx, mock.Anything).Return(nil, errors.New("Throttling"))

	c := NewCloudWatchPublisher(client, "Custom")
	c.ObserveFetchRetry(types.KindCompute)
	c.ObserveAction(types.KindCompute, types.ActionRecord{Action: types.ActionReboot, Success: true})

	err := c.Flush(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Custom")
	assert.Equal(t, 0, c.Pending())
}

func TestMulti(t *testing.T) {
	ctx := context.Background()
	client := new(awscp.MockCloudWatchClient)
	client.On("PutMetricData", ctx, mock.Anything).Return(&cloudwatch.PutMetricDataOutput{}, nil)

	p := NewPrometheus("")
	cw := NewCloudWatchPublisher(client, "")
	m := Multi{Nop{}, p, cw}

	m.ObserveOutcome(healed())
	m.ObserveFetchRetry(types.KindCompute)

	assert.Equal(t, 1.0, testutil.ToFloat64(p.fetchRetries.WithLabelValues("compute")))
	assert.Equal(t, 4, cw.Pending())
	require.NoError(t, m.Flush(ctx))
	assert.Equal(t, 0, cw.Pending())
}
