package app

import (
	"context"
	"fmt"

	"github.com/yairfalse/ilmarinen/internal/classifier"
	"github.com/yairfalse/ilmarinen/internal/clients"
	"github.com/yairfalse/ilmarinen/internal/controlplane"
	awscp "github.com/yairfalse/ilmarinen/internal/controlplane/aws"
	"github.com/yairfalse/ilmarinen/internal/drift"
	"github.com/yairfalse/ilmarinen/internal/fetcher"
	"github.com/yairfalse/ilmarinen/internal/governor"
	"github.com/yairfalse/ilmarinen/internal/guard"
	"github.com/yairfalse/ilmarinen/internal/logger"
	"github.com/yairfalse/ilmarinen/internal/metrics"
	"github.com/yairfalse/ilmarinen/internal/notify"
	"github.com/yairfalse/ilmarinen/internal/reconciler"
	"github.com/yairfalse/ilmarinen/internal/remediation"
	"github.com/yairfalse/ilmarinen/pkg/config"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// AppFactory creates and configures the application with all dependencies
type AppFactory struct {
	// NewClients is replaced in tests
	NewClients func(ctx context.Context, cfg awscp.ClientConfig) (*awscp.Clients, error)
}

// NewAppFactory returns a factory that talks to AWS
func NewAppFactory() *AppFactory {
	return &AppFactory{NewClients: awscp.NewClients}
}

// NewLogger builds the logger described by cfg
func NewLogger(cfg *config.Config) (logger.Logger, error) {
	log, err := logger.New(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return nil, err
	}
	return log, nil
}

// Create builds a fully configured App for cfg
func (f *AppFactory) Create(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}

	awsClients, err := f.NewClients(ctx, awscp.ClientConfig{
		Region:     cfg.AWS.Region,
		Profile:    cfg.AWS.Profile,
		MaxRetries: cfg.AWS.MaxRetries,
		Timeout:    cfg.AWS.Timeout,
	})
	if err != nil {
		return nil, err
	}
	return f.CreateWithClients(cfg, awsClients, log)
}

// CreateWithClients wires the application around already built AWS clients
func (f *AppFactory) CreateWithClients(cfg *config.Config, awsClients *awscp.Clients, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.NewNop()
	}
	ref := cfg.Ref()
	log = log.WithField("resource", ref.String())

	cp, err := buildControlPlane(cfg, awsClients, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:       cfg,
		Logger:       log,
		Clients:      awsClients,
		ControlPlane: cp,
		Guard: guard.New(guard.Config{
			MaintenanceTag:   cfg.Policy.MaintenanceTag,
			MaintenanceValue: cfg.Policy.MaintenanceValue,
		}),
		Detector: drift.New(),
		Selector: remediation.NewSelector(remediation.Policy{
			StorageHeadroomPercent: cfg.Policy.StorageHeadroomPercent,
		}),
	}

	a.Metrics = buildMetrics(cfg, awsClients, a)

	a.Fetcher = fetcher.New(cp, fetcher.Config{
		Attempts: cfg.Fetch.Attempts,
		Delay:    cfg.Fetch.Delay,
	}, log).OnRetry(func(int, error) {
		a.Metrics.ObserveFetchRetry(ref.Kind)
	})

	store, err := buildStore(cfg, awsClients, cp)
	if err != nil {
		return nil, err
	}
	if cfg.Policy.DryRun {
		store = governor.NewDryRunStore(store, log)
	}
	a.Governor = governor.New(store, cfg.Policy.MaxAttempts, log)
	a.AttemptStore = store.Name()

	a.Reconciler, err = reconciler.New(reconciler.Config{
		Resource: ref,
		Baseline: cfg.BaselineSpec(),
		DryRun:   cfg.Policy.DryRun,
	}, reconciler.Dependencies{
		Classifier: classifier.New(),
		Fetcher:    a.Fetcher,
		Governor:   a.Governor,
		Guard:      a.Guard,
		Detector:   a.Detector,
		Selector:   a.Selector,
		Executor:   remediation.NewExecutor(cp, cfg.Actions(), log),
		Notifier:   buildNotifier(cfg, awsClients, log),
		Metrics:    a.Metrics,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciler: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"attempt_store": a.AttemptStore,
		"dry_run":       cfg.Policy.DryRun,
		"max_attempts":  a.Governor.MaxAttempts(),
	}).Debug("healer configured")
	return a, nil
}

func buildControlPlane(cfg *config.Config, awsClients *awscp.Clients, log logger.Logger) (controlplane.ControlPlane, error) {
	var cp controlplane.ControlPlane
	switch cfg.Kind() {
	case types.KindCompute:
		if awsClients.EC2 == nil {
			return nil, fmt.Errorf("EC2 client is not configured")
		}
		cp = awscp.NewEC2ControlPlane(awsClients.EC2).WithStopTimeout(cfg.AWS.StopTimeout)
	default:
		var err error
		if cp, err = awscp.NewControlPlane(awsClients, cfg.Kind()); err != nil {
			return nil, err
		}
	}
	if cfg.Policy.DryRun {
		cp = controlplane.NewDryRun(cp, log)
	}
	return cp, nil
}

func buildStore(cfg *config.Config, awsClients *awscp.Clients, cp controlplane.ControlPlane) (governor.Store, error) {
	switch cfg.Attempts.Backend {
	case "dynamodb":
		if awsClients.DynamoDB == nil {
			return nil, fmt.Errorf("DynamoDB client is not configured")
		}
		return governor.NewDynamoStore(awsClients.DynamoDB, cfg.Attempts.Table), nil
	case "", "tags":
		return governor.NewTagStore(cp), nil
	default:
		return nil, fmt.Errorf("unknown attempt store %q", cfg.Attempts.Backend)
	}
}

func buildNotifier(cfg *config.Config, awsClients *awscp.Clients, log logger.Logger) notify.Notifier {
	var sinks notify.Multi
	n := cfg.Notifications
	if n.Log {
		sinks = append(sinks, notify.NewLogNotifier(log))
	}
	if n.SNSTopicARN != "" && awsClients.SNS != nil {
		sinks = append(sinks, notify.NewSNSNotifier(awsClients.SNS, n.SNSTopicARN))
	}
	if n.WebhookURL != "" {
		pool := clients.NewHTTPClientPool(n.WebhookTimeout)
		sinks = append(sinks, notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:        n.WebhookURL,
			Format:     n.WebhookFormat,
			Timeout:    n.WebhookTimeout,
			MaxRetries: n.WebhookRetries,
		}, pool))
	}
	return sinks
}

func buildMetrics(cfg *config.Config, awsClients *awscp.Clients, a *App) metrics.Recorder {
	var recorders metrics.Multi
	if cfg.Metrics.Prometheus {
		a.Prometheus = metrics.NewPrometheus(cfg.Metrics.Namespace)
		recorders = append(recorders, a.Prometheus)
	}
	if cfg.Metrics.CloudWatch && awsClients.CloudWatch != nil {
		cw := metrics.NewCloudWatchPublisher(awsClients.CloudWatch, cfg.Metrics.CloudWatchNamespace)
		recorders = append(recorders, cw)
		a.flushers = append(a.flushers, cw)
	}
	if len(recorders) == 0 {
		return metrics.Nop{}
	}
	return recorders
}
