package exporter

import (
	"net/url"
	"regexp"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kube-reporting/allocation-exporter/pkg/entity"
	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
	"github.com/kube-reporting/allocation-exporter/pkg/kubecost"
	"github.com/kube-reporting/allocation-exporter/pkg/window"
)

// Policy decides what a backfill run does after a period fails.
type Policy string

const (
	// PolicyAbort stops the run at the first failed period.
	PolicyAbort Policy = "abort"
	// PolicyContinue moves on to the next period. Configuration and source
	// errors still stop the run.
	PolicyContinue Policy = "continue"
)

var (
	endpointRegexp   = regexp.MustCompile(`^https?://`)
	resolutionRegexp = regexp.MustCompile(`^[1-9][0-9]?m`)
)

// Config is the full set of run options.
type Config struct {
	ClusterID    string
	S3BucketName string
	S3Prefix     string
	RoleARN      string
	AWSRegion    string

	Kubecost            kubecost.Config
	CACertificateSecret string
	CABundleFile        string
	Labels              []string
	Annotations         []string
	JoinAssets          bool
	LegacyAssetMatch    bool
	AssetProvider       string
	Backfill            bool
	BackfillDays        int
	OnPeriodError       Policy
	StagingDir          string

	HiveHost           string
	HiveUsername       string
	HivePassword       string
	HiveTable          string
	HiveConnectTimeout time.Duration
	LogQueries         bool

	PushgatewayURL string
	Schedule       string
	ListenAddress  string
}

// Validate checks every option, returning a ConfigurationError for the first
// invalid one.
func (cfg *Config) Validate() error {
	if cfg.ClusterID == "" {
		return exporterrors.Configuration("the cluster ID is required")
	}
	if _, err := entity.Parse(cfg.ClusterID); err != nil {
		return err
	}
	if cfg.S3BucketName == "" {
		return exporterrors.Configuration("the S3 bucket name is required")
	}
	if cfg.RoleARN != "" {
		if err := entity.ValidateRoleARN(cfg.RoleARN); err != nil {
			return err
		}
	}
	if err := validateKubecost(cfg.Kubecost); err != nil {
		return err
	}
	if cfg.CACertificateSecret != "" && cfg.CABundleFile != "" {
		return exporterrors.Configuration("only one of the CA certificate secret and the CA bundle file can be set")
	}
	if cfg.Backfill && cfg.BackfillDays < window.MinHorizonDays {
		return exporterrors.Configuration("backfill period must be at least %d days, got %d", window.MinHorizonDays, cfg.BackfillDays)
	}
	switch cfg.OnPeriodError {
	case PolicyAbort, PolicyContinue:
	default:
		return exporterrors.Configuration("on period error must be one of %q or %q, got %q", PolicyAbort, PolicyContinue, cfg.OnPeriodError)
	}
	if cfg.HiveHost != "" && cfg.HiveTable == "" {
		return exporterrors.Configuration("a Hive table is required when a Hive host is set")
	}
	if cfg.PushgatewayURL != "" {
		if _, err := url.ParseRequestURI(cfg.PushgatewayURL); err != nil {
			return exporterrors.Configuration("invalid Pushgateway URL: %v", err)
		}
	}
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return exporterrors.Configuration("invalid schedule %q: %v", cfg.Schedule, err)
		}
	}
	return nil
}

func validateKubecost(cfg kubecost.Config) error {
	if !endpointRegexp.MatchString(cfg.Endpoint) {
		return exporterrors.Configuration("the Kubecost API endpoint %q must start with http:// or https://", cfg.Endpoint)
	}
	if !contains(kubecost.Aggregations, cfg.Aggregation) {
		return exporterrors.Configuration("aggregation must be one of %v, got %q", kubecost.Aggregations, cfg.Aggregation)
	}
	switch cfg.Granularity {
	case kubecost.GranularityHourly, kubecost.GranularityDaily:
	default:
		return exporterrors.Configuration("granularity must be one of %q or %q, got %q", kubecost.GranularityHourly, kubecost.GranularityDaily, cfg.Granularity)
	}
	if !resolutionRegexp.MatchString(cfg.Resolution) {
		return exporterrors.Configuration("resolution must be in the format Nm where N >= 1, got %q", cfg.Resolution)
	}
	if cfg.ConnectTimeout <= 0 {
		return exporterrors.Configuration("the connection timeout must be positive")
	}
	if cfg.AllocationReadTimeout <= 0 || cfg.AssetsReadTimeout <= 0 {
		return exporterrors.Configuration("the read timeouts must be positive")
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
