package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	awscp "github.com/yairfalse/ilmarinen/internal/controlplane/aws"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// DefaultCloudWatchNamespace is the custom metric namespace
const DefaultCloudWatchNamespace = "Ilmarinen/SelfHealing"

// maxDatumsPerCall keeps PutMetricData requests small
const maxDatumsPerCall = 20

// CloudWatchPublisher buffers observations and publishes them on Flush
type CloudWatchPublisher struct {
	client    awscp.CloudWatchAPI
	namespace string
	now       func() time.Time

	mu     sync.Mutex
	datums []cwtypes.MetricDatum
}

// NewCloudWatchPublisher creates a publisher for namespace
func NewCloudWatchPublisher(client awscp.CloudWatchAPI, namespace string) *CloudWatchPublisher {
	if namespace == "" {
		namespace = DefaultCloudWatchNamespace
	}
	return &CloudWatchPublisher{client: client, namespace: namespace, now: time.Now}
}

func (c *CloudWatchPublisher) add(d cwtypes.MetricDatum) {
	d.Timestamp = aws.Time(c.now())
	c.mu.Lock()
	c.datums = append(c.datums, d)
	c.mu.Unlock()
}

func dims(kv ...string) []cwtypes.Dimension {
	out := make([]cwtypes.Dimension, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, cwtypes.Dimension{Name: aws.String(kv[i]), Value: aws.String(kv[i+1])})
	}
	return out
}

func (c *CloudWatchPublisher) ObserveOutcome(o types.ReconciliationOutcome) {
	c.add(cwtypes.MetricDatum{
		MetricName: aws.String("Reconciliations"),
		Dimensions: dims("ResourceId", o.ResourceID, "Status", o.Status.String()),
		Unit:       cwtypes.StandardUnitCount,
		Value:      aws.Float64(1),
	})
	c.add(cwtypes.MetricDatum{
		MetricName: aws.String("ReconciliationDuration"),
		Dimensions: dims("ResourceId", o.ResourceID),
		Unit:       cwtypes.StandardUnitMilliseconds,
		Value:      aws.Float64(float64(o.Duration.Milliseconds())),
	})
	c.add(cwtypes.MetricDatum{
		MetricName: aws.String("HealingAttempts"),
		Dimensions: dims("ResourceId", o.ResourceID),
		Unit:       cwtypes.StandardUnitCount,
		Value:      aws.Float64(float64(o.Attempts)),
	})
}

func (c *CloudWatchPublisher) ObserveAction(kind types.Kind, rec types.ActionRecord) {
	c.add(cwtypes.MetricDatum{
		MetricName: aws.String("HealingActions"),
		Dimensions: dims("Kind", string(kind), "Action", string(rec.Action), "Result", result(rec.Success)),
		Unit:       cwtypes.StandardUnitCount,
		Value:      aws.Float64(1),
	})
}

func (c *CloudWatchPublisher) ObserveFetchRetry(kind types.Kind) {
	c.add(cwtypes.MetricDatum{
		MetricName: aws.String("FetchRetries"),
		Dimensions: dims("Kind", string(kind)),
		Unit:       cwtypes.StandardUnitCount,
		Value:      aws.Float64(1),
	})
}

// Pending returns the number of buffered datums
func (c *CloudWatchPublisher) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.datums)
}

// Flush publishes the buffered datums in batches. Datums of a failed batch
// are dropped.
func (c *CloudWatchPublisher) Flush(ctx context.Context) error {
	c.mu.Lock()
	datums := c.datums
	c.datums = nil
	c.mu.Unlock()

	for start := 0; start < len(datums); start += maxDatumsPerCall {
		end := min(start+maxDatumsPerCall, len(datums))
		_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: datums[start:end],
		})
		if err != nil {
			return fmt.Errorf("failed to publish %d metric(s) to %s: %w", len(datums)-start, c.namespace, err)
		}
	}
	return nil
}
