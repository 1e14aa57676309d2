package main

import (
	"context"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/kube-reporting/allocation-exporter/pkg/allocation"
	"github.com/kube-reporting/allocation-exporter/pkg/artifact"
	"github.com/kube-reporting/allocation-exporter/pkg/aws"
	"github.com/kube-reporting/allocation-exporter/pkg/db"
	"github.com/kube-reporting/allocation-exporter/pkg/entity"
	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
	"github.com/kube-reporting/allocation-exporter/pkg/exporter"
	"github.com/kube-reporting/allocation-exporter/pkg/gaps"
	"github.com/kube-reporting/allocation-exporter/pkg/hive"
	"github.com/kube-reporting/allocation-exporter/pkg/kubecost"
	"github.com/kube-reporting/allocation-exporter/pkg/schema"
	"github.com/kube-reporting/allocation-exporter/pkg/window"
)

const (
	pushJobName     = "allocation_exporter"
	shutdownTimeout = 10 * time.Second
)

// metricsRegistry holds the exporter metrics pushed after each run, and the
// process metrics served next to them.
type metricsRegistry struct {
	run     *prometheus.Registry
	process *prometheus.Registry
}

func newMetricsRegistry() *metricsRegistry {
	runReg := prometheus.NewRegistry()
	runReg.MustRegister(kubecost.Collectors()...)
	runReg.MustRegister(exporter.Collectors()...)

	processReg := prometheus.NewRegistry()
	processReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &metricsRegistry{run: runReg, process: processReg}
}

func (r *metricsRegistry) gatherer() prometheus.Gatherer {
	return prometheus.Gatherers{r.run, r.process}
}

func run(ctx context.Context, logger log.FieldLogger, cfg exporter.Config) error {
	reg := newMetricsRegistry()
	if cfg.Schedule == "" {
		_, err := runOnce(ctx, logger, cfg, reg)
		return err
	}
	return runScheduled(ctx, logger, cfg, reg)
}

// runOnce builds the pipeline for a single run, runs it, and pushes the run
// metrics when a Pushgateway is configured. Every run gets its own run_id.
func runOnce(ctx context.Context, logger log.FieldLogger, cfg exporter.Config, reg *metricsRegistry) (exporter.Summary, error) {
	runID := uuid.New().String()
	logger = logger.WithField("run_id", runID)
	start := time.Now()

	exp, cleanup, err := newExporter(ctx, logger, cfg, runID)
	if err != nil {
		return exporter.Summary{}, err
	}
	defer cleanup()

	summary, runErr := exp.Run(ctx)
	logger.WithFields(log.Fields{
		"missing":     len(summary.Missing),
		"written":     len(summary.Written),
		"failed":      len(summary.Failed),
		"rows":        summary.Rows,
		"join_misses": summary.JoinMisses,
		"duration":    time.Since(start),
	}).Info("run finished")

	if cfg.PushgatewayURL != "" {
		ent, _ := entity.Parse(cfg.ClusterID)
		err := exporter.PushMetrics(ctx, cfg.PushgatewayURL, pushJobName, reg.run, map[string]string{"cluster": ent.Name})
		if err != nil {
			logger.WithError(err).Warn("unable to push metrics")
		}
	}
	return summary, runErr
}

// newExporter wires the pipeline for cfg. The returned cleanup func releases
// the Hive connection, if any.
func newExporter(ctx context.Context, logger log.FieldLogger, cfg exporter.Config, runID string) (*exporter.Exporter, func(), error) {
	cleanup := func() {}
	ent, err := entity.Parse(cfg.ClusterID)
	if err != nil {
		return nil, cleanup, err
	}
	region := cfg.AWSRegion
	if region == "" {
		region = ent.Region
	}
	sess, err := aws.NewSession(aws.SessionConfig{
		Region:          region,
		RoleARN:         cfg.RoleARN,
		RoleSessionName: aws.DefaultRoleSessionName + "-" + runID,
	})
	if err != nil {
		return nil, cleanup, err
	}

	kubecostCfg := cfg.Kubecost
	kubecostCfg.TLS.CABundle, err = loadCABundle(ctx, sess, region, cfg)
	if err != nil {
		return nil, cleanup, err
	}
	kubecostClient, err := kubecost.NewClient(logger, kubecostCfg)
	if err != nil {
		return nil, cleanup, err
	}
	fetcher := kubecost.NewFetcher(logger, kubecostClient, kubecostCfg)
	store := aws.NewS3Store(logger, sess, cfg.S3BucketName)

	columns, mapping, err := schema.NewColumnSet(cfg.Labels, cfg.Annotations)
	if err != nil {
		return nil, cleanup, err
	}
	logger.Debugf("dynamic column key mapping: %v", mapping)

	deps := exporter.Dependencies{
		Clock:      clock.RealClock{},
		Planner:    window.NewPlanner(clock.RealClock{}, cfg.BackfillDays),
		Detector:   gaps.NewDetector(logger, fetcher, store, cfg.S3Prefix),
		Fetcher:    fetcher,
		Joiner:     allocation.NewJoiner(logger, ent, cfg.AssetProvider),
		Normalizer: allocation.NewNormalizer(columns),
		Writer:     artifact.NewWriter(logger, store, cfg.S3Prefix, cfg.StagingDir),
	}

	if cfg.HiveHost != "" {
		hiveDB, err := hive.Open(hive.ConnectOptions{
			Host:           cfg.HiveHost,
			Username:       cfg.HiveUsername,
			Password:       cfg.HivePassword,
			ConnectTimeout: cfg.HiveConnectTimeout,
		})
		if err != nil {
			return nil, cleanup, err
		}
		cleanup = func() {
			if err := hiveDB.Close(); err != nil {
				logger.WithError(err).Warn("unable to close the Hive connection")
			}
		}
		execer := db.NewLoggingExecer(hiveDB, logger, cfg.LogQueries)
		registrar, err := hive.NewRegistrar(logger, execer, cfg.HiveTable, cfg.S3BucketName, cfg.S3Prefix, columns.Columns())
		if err != nil {
			cleanup()
			return nil, func() {}, err
		}
		deps.Registrar = registrar
	}

	exp, err := exporter.New(logger, exporter.Options{
		Entity:           ent,
		Backfill:         cfg.Backfill,
		JoinAssets:       cfg.JoinAssets,
		LegacyAssetMatch: cfg.LegacyAssetMatch,
		OnPeriodError:    cfg.OnPeriodError,
	}, deps)
	if err != nil {
		cleanup()
		return nil, func() {}, err
	}
	return exp, cleanup, nil
}

// loadCABundle returns the PEM bundle the Kubecost client should trust, if
// one is configured.
func loadCABundle(ctx context.Context, sess client.ConfigProvider, region string, cfg exporter.Config) ([]byte, error) {
	switch {
	case cfg.CACertificateSecret != "":
		bundle, err := aws.NewSecretsManagerReader(sess, region).FetchCABundle(ctx, cfg.CACertificateSecret)
		if err != nil {
			return nil, exporterrors.Configuration("unable to load the Kubecost CA bundle: %v", err)
		}
		return bundle, nil
	case cfg.CABundleFile != "":
		bundle, err := ioutil.ReadFile(cfg.CABundleFile)
		if err != nil {
			return nil, exporterrors.Configuration("unable to read the Kubecost CA bundle: %v", err)
		}
		return bundle, nil
	}
	return nil, nil
}

// runScheduled runs the exporter on cfg.Schedule and serves the health and
// metrics endpoints until ctx is done. Overlapping runs are skipped.
func runScheduled(ctx context.Context, logger log.FieldLogger, cfg exporter.Config, reg *metricsRegistry) error {
	state := &runState{}
	srv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: newRouter(logger, reg.gatherer(), state),
	}

	g, ctx := errgroup.WithContext(ctx)

	cl := &cronLogger{logger.WithField("component", "scheduler")}
	scheduler := cron.New(cron.WithLogger(cl), cron.WithChain(cron.SkipIfStillRunning(cl)))
	_, err := scheduler.AddFunc(cfg.Schedule, func() {
		summary, err := runOnce(ctx, logger, cfg, reg)
		if err != nil {
			logger.WithError(err).Error("scheduled run failed")
		}
		state.record(time.Now(), summary, err)
	})
	if err != nil {
		return exporterrors.Configuration("invalid schedule %q: %v", cfg.Schedule, err)
	}

	g.Go(func() error {
		logger.Infof("HTTP server listening on %s", cfg.ListenAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		scheduler.Start()
		state.setInitialized()
		logger.Infof("exporting on schedule %q", cfg.Schedule)
		<-ctx.Done()
		logger.Info("waiting for the running export to finish")
		<-scheduler.Stop().Done()
		return nil
	})
	return g.Wait()
}

// cronLogger adapts a logrus logger to the scheduler's logging interface.
type cronLogger struct {
	log.FieldLogger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.FieldLogger.WithFields(keysAndValuesFields(keysAndValues)).Debug(msg)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.FieldLogger.WithFields(keysAndValuesFields(keysAndValues)).WithError(err).Error(msg)
}

func keysAndValuesFields(keysAndValues []interface{}) log.Fields {
	fields := make(log.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}

var configDumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// dumpConfig renders cfg for debug logging with secrets masked.
func dumpConfig(cfg exporter.Config) string {
	if cfg.HivePassword != "" {
		cfg.HivePassword = "<redacted>"
	}
	cfg.Kubecost.TLS.CABundle = nil
	return configDumper.Sdump(cfg)
}
