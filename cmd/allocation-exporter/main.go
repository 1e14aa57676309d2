package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/kube-reporting/allocation-exporter/pkg/allocation"
	"github.com/kube-reporting/allocation-exporter/pkg/exporter"
	"github.com/kube-reporting/allocation-exporter/pkg/kubecost"
)

var (
	defaultKubecostEndpoint = "http://kubecost-cost-analyzer.kubecost:9090"
	defaultListenAddress    = ":8080"

	// version is set at build time.
	version = "dev"

	cfg            exporter.Config
	onPeriodError  string
	configFilePath string

	logLevelStr         string
	logFullTimestamp    bool
	logDisableTimestamp bool
)

var rootCmd = &cobra.Command{
	Use:   "allocation-exporter",
	Short: "exports Kubecost cost allocation data to S3 as Parquet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "exports the missing periods once, or on a schedule when --schedule is set",
	PreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := SetFlagsFromEnv(cmd.Flags(), ""); err != nil {
			return err
		}
		if configFilePath != "" {
			return SetFlagsFromFile(cmd.Flags(), configFilePath)
		}
		return nil
	},
	Run: runExporter,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "prints the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func AddCommands() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func init() {
	// globally set time to UTC
	time.Local = time.UTC

	fs := runCmd.Flags()
	fs.StringVar(&configFilePath, "config", "", "path to a YAML file mapping option names to values, applied for options not set on the command line or in the environment")
	fs.StringVar(&logLevelStr, "log-level", log.InfoLevel.String(), "log level")
	fs.BoolVar(&logFullTimestamp, "log-timestamp", true, "log full timestamp if true, otherwise log time since startup")
	fs.BoolVar(&logDisableTimestamp, "disable-timestamp", false, "disable timestamp logging")

	fs.StringVar(&cfg.ClusterID, "cluster-id", "", "the ARN of the EKS cluster the data belongs to")
	fs.StringVar(&cfg.S3BucketName, "s3-bucket-name", "", "the S3 bucket to upload the Parquet files to")
	fs.StringVar(&cfg.S3Prefix, "s3-prefix", "", "an optional key prefix in front of the partition paths")
	fs.StringVar(&cfg.RoleARN, "irsa-parent-iam-role-arn", "", "the IAM role to assume for S3 and Secrets Manager access, if empty the ambient credentials are used")
	fs.StringVar(&cfg.AWSRegion, "aws-region", "", "the AWS region for API calls, defaults to the region of the cluster")

	fs.StringVar(&cfg.Kubecost.Endpoint, "kubecost-api-endpoint", defaultKubecostEndpoint, "the base URL of the Kubecost API")
	fs.StringVar(&cfg.Kubecost.Granularity, "granularity", kubecost.GranularityHourly, "hourly or daily allocation steps")
	fs.StringVar(&cfg.Kubecost.Aggregation, "aggregation", kubecost.AggregationContainer, "the allocation aggregation level")
	fs.Var(newYesNo(false, &cfg.Kubecost.Paginate), "kubecost-allocation-api-paginate", "split each allocation query into hourly requests, hourly granularity only")
	fs.StringVar(&cfg.Kubecost.Resolution, "kubecost-allocation-api-resolution", "1m", "the allocation query resolution")
	fs.Var(newYesNo(false, &cfg.Kubecost.IncludeIdle), "include-idle", "include idle allocations")
	fs.Var(newYesNo(false, &cfg.Kubecost.IdleByNode), "idle-by-node", "compute idle allocations per node")
	fs.Var(newYesNo(false, &cfg.Kubecost.ShareIdle), "share-idle", "share idle costs across allocations")
	fs.Var(newSeconds(10*time.Second, &cfg.Kubecost.ConnectTimeout), "connection-timeout", "the Kubecost API connection timeout in seconds")
	fs.Var(newSeconds(60*time.Second, &cfg.Kubecost.AllocationReadTimeout), "kubecost-allocation-api-read-timeout", "the allocation API read timeout in seconds")
	fs.Var(newSeconds(30*time.Second, &cfg.Kubecost.AssetsReadTimeout), "kubecost-assets-api-read-timeout", "the assets API read timeout in seconds")
	fs.Var(newYesNo(true, &cfg.Kubecost.TLS.Verify), "tls-verify", "verify the Kubecost API certificate")
	fs.StringVar(&cfg.CACertificateSecret, "kubecost-ca-certificate-secret-name", "", "the Secrets Manager secret holding the CA bundle for the Kubecost API")
	fs.StringVar(&cfg.CABundleFile, "kubecost-ca-bundle-file", "", "a local file holding the CA bundle for the Kubecost API")

	fs.StringSliceVar(&cfg.Labels, "labels", nil, "the Kubernetes labels to export as columns")
	fs.StringSliceVar(&cfg.Annotations, "annotations", nil, "the Kubernetes annotations to export as columns")
	fs.Var(newYesNo(true, &cfg.JoinAssets), "join-assets", "join node asset attributes onto every allocation")
	fs.Var(newYesNo(false, &cfg.LegacyAssetMatch), "legacy-asset-match", "also match assets by their provider ID suffix")
	fs.StringVar(&cfg.AssetProvider, "asset-provider", allocation.DefaultAssetProvider, "the provider name used to build asset keys")

	fs.Var(newYesNo(true, &cfg.Backfill), "backfill", "export every missing period of the backfill window, otherwise only the day three days ago")
	fs.IntVar(&cfg.BackfillDays, "backfill-period-days", 15, "the number of days the backfill window reaches back")
	fs.StringVar(&onPeriodError, "on-period-error", string(exporter.PolicyAbort), "abort or continue after a failed period during backfill")
	fs.StringVar(&cfg.StagingDir, "staging-dir", "", "the directory Parquet files are written to before upload, defaults to the temporary directory")

	fs.StringVar(&cfg.HiveHost, "hive-host", "", "the hostname:port of a HiveServer2 to register partitions with, disabled if empty")
	fs.StringVar(&cfg.HiveUsername, "hive-username", "", "the Hive username, enables SASL authentication")
	fs.StringVar(&cfg.HivePassword, "hive-password", "", "the Hive password")
	fs.StringVar(&cfg.HiveTable, "hive-table", "kubecost_allocations", "the Hive table to register partitions in")
	fs.DurationVar(&cfg.HiveConnectTimeout, "hive-connect-timeout", 30*time.Second, "the Hive connection timeout")
	fs.BoolVar(&cfg.LogQueries, "log-ddl-queries", false, "log the table and partition statements sent to Hive")

	fs.StringVar(&cfg.PushgatewayURL, "pushgateway-url", "", "a Prometheus Pushgateway to push run metrics to after each run")
	fs.StringVar(&cfg.Schedule, "schedule", "", "a cron expression; when set the exporter keeps running and exports on this schedule")
	fs.StringVar(&cfg.ListenAddress, "listen-address", defaultListenAddress, "the address of the health and metrics server in scheduled mode")
}

func main() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:    logFullTimestamp,
		DisableTimestamp: logDisableTimestamp,
	})

	AddCommands()

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatalf("error executing command: %v", err)
	}
}

func runExporter(cmd *cobra.Command, args []string) {
	logger := newLogger()
	cfg.OnPeriodError = exporter.Policy(onPeriodError)
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	logger.Debugf("configuration: %s", dumpConfig(cfg))

	signalStopCtx := setupSignals()
	if err := run(signalStopCtx, logger, cfg); err != nil {
		logger.WithError(err).Fatal("the allocation exporter failed")
	}
	logger.Infof("allocation-exporter has stopped")
}

func setupSignals() context.Context {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sig := <-sigs
		log.Infof("got signal %s, performing shutdown", sig)
		cancel()
	}()
	return ctx
}

func newLogger() log.FieldLogger {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:    logFullTimestamp,
		DisableTimestamp: logDisableTimestamp,
	})
	logger := log.WithFields(log.Fields{
		"app": "allocation-exporter",
	})
	logLevel, err := log.ParseLevel(logLevelStr)
	if err != nil {
		logger.WithError(err).Fatalf("invalid log level: %s", logLevelStr)
	}
	logger.Infof("setting log level to %s", logLevel.String())
	logger.Logger.Level = logLevel
	return logger
}
