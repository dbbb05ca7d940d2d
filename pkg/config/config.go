package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"github.com/yairfalse/ilmarinen/pkg/types"
)

// Config represents the complete ilmarinen configuration
type Config struct {
	Resource      ResourceConfig      `mapstructure:"resource"`
	Baseline      BaselineConfig      `mapstructure:"baseline"`
	Policy        PolicyConfig        `mapstructure:"policy"`
	Fetch         FetchConfig         `mapstructure:"fetch"`
	AWS           AWSConfig           `mapstructure:"aws"`
	Attempts      AttemptsConfig      `mapstructure:"attempts"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	Server        ServerConfig        `mapstructure:"server"`
	Output        OutputConfig        `mapstructure:"output"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ResourceConfig identifies the one managed resource
type ResourceConfig struct {
	ID   string `mapstructure:"id" validate:"required"`
	Kind string `mapstructure:"kind" validate:"required,oneof=compute database ec2 rds instance db"`
	ARN  string `mapstructure:"arn" validate:"omitempty,startswith=arn:"`
}

// BaselineConfig is the declared configuration healed back to
type BaselineConfig struct {
	SizeClass     string   `mapstructure:"size_class"`
	Image         string   `mapstructure:"image"`
	StorageGB     int      `mapstructure:"storage_gb" validate:"gte=0"`
	NetworkGroups []string `mapstructure:"network_groups" validate:"dive,required"`
}

// PolicyConfig contains remediation policy
type PolicyConfig struct {
	MaxAttempts            int      `mapstructure:"max_attempts" validate:"gte=1"`
	StorageHeadroomPercent int      `mapstructure:"storage_headroom_percent" validate:"gte=1,lte=1000"`
	MaintenanceTag         string   `mapstructure:"maintenance_tag" validate:"required"`
	MaintenanceValue       string   `mapstructure:"maintenance_value" validate:"required"`
	AllowedActions         []string `mapstructure:"allowed_actions" validate:"dive,oneof=reboot stop start resize resize-storage restore-network-groups"`
	DryRun                 bool     `mapstructure:"dry_run"`
}

// FetchConfig contains the read retry policy
type FetchConfig struct {
	Attempts int           `mapstructure:"attempts" validate:"gte=1"`
	Delay    time.Duration `mapstructure:"delay" validate:"gt=0"`
}

// AWSConfig contains AWS SDK settings
type AWSConfig struct {
	Region      string        `mapstructure:"region"`
	Profile     string        `mapstructure:"profile"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"gte=0"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gte=0"`
	StopTimeout time.Duration `mapstructure:"stop_timeout" validate:"gte=0"`
}

// AttemptsConfig selects where the healing attempt budget is stored
type AttemptsConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=tags dynamodb"`
	Table   string `mapstructure:"table" validate:"required_if=Backend dynamodb"`
}

// NotificationsConfig contains notification sinks
type NotificationsConfig struct {
	SNSTopicARN    string        `mapstructure:"sns_topic_arn" validate:"omitempty,startswith=arn:"`
	WebhookURL     string        `mapstructure:"webhook_url" validate:"omitempty,url"`
	WebhookFormat  string        `mapstructure:"webhook_format" validate:"oneof=json slack"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout" validate:"gte=0"`
	WebhookRetries int           `mapstructure:"webhook_retries" validate:"gte=0"`
	Log            bool          `mapstructure:"log"`
}

// MetricsConfig contains metrics sinks
type MetricsConfig struct {
	Prometheus          bool   `mapstructure:"prometheus"`
	Namespace           string `mapstructure:"namespace"`
	CloudWatch          bool   `mapstructure:"cloudwatch"`
	CloudWatchNamespace string `mapstructure:"cloudwatch_namespace"`
}

// ServerConfig contains the serve command settings
type ServerConfig struct {
	Listen        string        `mapstructure:"listen" validate:"required"`
	DriftInterval time.Duration `mapstructure:"drift_interval" validate:"gte=0"`
}

// OutputConfig contains output formatting configuration
type OutputConfig struct {
	Format  string `mapstructure:"format" validate:"oneof=table json yaml"`
	NoColor bool   `mapstructure:"no_color"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn warning error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Policy: PolicyConfig{
			MaxAttempts:            3,
			StorageHeadroomPercent: 20,
			MaintenanceTag:         "Maintenance",
			MaintenanceValue:       "active",
		},
		Fetch: FetchConfig{
			Attempts: 3,
			Delay:    2 * time.Second,
		},
		AWS: AWSConfig{
			MaxRetries:  3,
			Timeout:     30 * time.Second,
			StopTimeout: 10 * time.Minute,
		},
		Attempts: AttemptsConfig{
			Backend: "tags",
		},
		Notifications: NotificationsConfig{
			WebhookFormat:  "json",
			WebhookTimeout: 10 * time.Second,
			WebhookRetries: 2,
			Log:            true,
		},
		Metrics: MetricsConfig{
			Namespace:           "ilmarinen",
			CloudWatchNamespace: "Ilmarinen/SelfHealing",
		},
		Server: ServerConfig{
			Listen: ":8080",
		},
		Output: OutputConfig{
			Format: "table",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// legacyEnv maps the environment of the original Lambda functions onto config keys.
// The first variable that is set wins.
var legacyEnv = map[string][]string{
	"resource.id":                 {"INSTANCE_ID", "DB_INSTANCE_ID"},
	"baseline.size_class":         {"ORIGINAL_INSTANCE_TYPE", "ORIGINAL_INSTANCE_CLASS"},
	"baseline.image":              {"ORIGINAL_AMI", "ORIGINAL_ENGINE_VERSION"},
	"baseline.storage_gb":         {"ORIGINAL_ALLOCATED_STORAGE"},
	"policy.max_attempts":         {"MAX_HEALING_ATTEMPTS"},
	"notifications.sns_topic_arn": {"SNS_TOPIC_ARN"},
	"aws.region":                  {"AWS_REGION", "AWS_DEFAULT_REGION"},
	"logging.level":               {"LOG_LEVEL"},
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("resource.id", "")
	v.SetDefault("resource.kind", "")
	v.SetDefault("resource.arn", "")
	v.SetDefault("baseline.size_class", "")
	v.SetDefault("baseline.image", "")
	v.SetDefault("baseline.storage_gb", 0)
	v.SetDefault("baseline.network_groups", []string{})
	v.SetDefault("policy.max_attempts", d.Policy.MaxAttempts)
	v.SetDefault("policy.storage_headroom_percent", d.Policy.StorageHeadroomPercent)
	v.SetDefault("policy.maintenance_tag", d.Policy.MaintenanceTag)
	v.SetDefault("policy.maintenance_value", d.Policy.MaintenanceValue)
	v.SetDefault("policy.allowed_actions", []string{})
	v.SetDefault("policy.dry_run", false)
	v.SetDefault("fetch.attempts", d.Fetch.Attempts)
	v.SetDefault("fetch.delay", d.Fetch.Delay)
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.max_retries", d.AWS.MaxRetries)
	v.SetDefault("aws.timeout", d.AWS.Timeout)
	v.SetDefault("aws.stop_timeout", d.AWS.StopTimeout)
	v.SetDefault("attempts.backend", d.Attempts.Backend)
	v.SetDefault("attempts.table", "")
	v.SetDefault("notifications.sns_topic_arn", "")
	v.SetDefault("notifications.webhook_url", "")
	v.SetDefault("notifications.webhook_format", d.Notifications.WebhookFormat)
	v.SetDefault("notifications.webhook_timeout", d.Notifications.WebhookTimeout)
	v.SetDefault("notifications.webhook_retries", d.Notifications.WebhookRetries)
	v.SetDefault("notifications.log", d.Notifications.Log)
	v.SetDefault("metrics.prometheus", d.Metrics.Prometheus)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.cloudwatch", d.Metrics.CloudWatch)
	v.SetDefault("metrics.cloudwatch_namespace", d.Metrics.CloudWatchNamespace)
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.drift_interval", d.Server.DriftInterval)
	v.SetDefault("output.format", d.Output.Format)
	v.SetDefault("output.no_color", d.Output.NoColor)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// NewViper returns a viper instance with search paths, defaults and
// environment bindings set up
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("ilmarinen")
	v.SetConfigType("yaml")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".ilmarinen"))
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("ILMARINEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	for key, names := range legacyEnv {
		prefixed := "ILMARINEN_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(append([]string{key, prefixed}, names...)...)
	}
	return v
}

// Load loads configuration from file and environment. An empty path
// searches the default locations for ilmarinen.yaml; a missing file there
// is not an error.
func Load(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
	}
	return LoadFrom(v)
}

// LoadFrom reads, decodes and validates configuration from v
func LoadFrom(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Resource.Kind == "" {
		cfg.Resource.Kind = legacyKind()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// legacyKind infers the kind from which original Lambda variable is set
func legacyKind() string {
	if os.Getenv("INSTANCE_ID") != "" {
		return string(types.KindCompute)
	}
	if os.Getenv("DB_INSTANCE_ID") != "" {
		return string(types.KindDatabase)
	}
	return ""
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("%s failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}

// Kind returns the parsed resource kind
func (c *Config) Kind() types.Kind {
	k, _ := types.ParseKind(c.Resource.Kind)
	return k
}

// Ref returns the managed resource reference
func (c *Config) Ref() types.ResourceRef {
	return types.ResourceRef{ID: c.Resource.ID, Kind: c.Kind(), ARN: c.Resource.ARN}
}

// BaselineSpec returns the baseline as a domain value
func (c *Config) BaselineSpec() types.Baseline {
	return types.Baseline{
		SizeClass:     strings.TrimSpace(c.Baseline.SizeClass),
		Image:         strings.TrimSpace(c.Baseline.Image),
		StorageGB:     c.Baseline.StorageGB,
		NetworkGroups: types.SortedSet(c.Baseline.NetworkGroups),
	}
}

// Actions returns the allowed actions; empty means all
func (c *Config) Actions() []types.Action {
	out := make([]types.Action, 0, len(c.Policy.AllowedActions))
	for _, a := range c.Policy.AllowedActions {
		out = append(out, types.Action(a))
	}
	return out
}
