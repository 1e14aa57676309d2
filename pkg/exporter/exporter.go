// Package exporter runs the allocation export pipeline: plan the periods,
// find the ones missing from the store, then fetch, join, normalize and
// write each of them in turn.
package exporter

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/clock"

	"github.com/kube-reporting/allocation-exporter/pkg/allocation"
	"github.com/kube-reporting/allocation-exporter/pkg/entity"
	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
	"github.com/kube-reporting/allocation-exporter/pkg/window"
)

// Options are the run settings the pipeline itself depends on.
type Options struct {
	Entity           entity.Entity
	Backfill         bool
	JoinAssets       bool
	LegacyAssetMatch bool
	OnPeriodError    Policy
}

// Dependencies are the collaborators of an Exporter. Registrar is optional.
type Dependencies struct {
	Clock      clock.Clock
	Planner    PeriodPlanner
	Detector   GapDetector
	Fetcher    RecordFetcher
	Joiner     *allocation.Joiner
	Normalizer *allocation.Normalizer
	Writer     ArtifactWriter
	Registrar  PartitionRegistrar
}

// Summary describes the outcome of a run.
type Summary struct {
	// Missing are the dates the run set out to export.
	Missing []string
	// Written are the keys of the uploaded artifacts.
	Written []string
	// Failed are the dates that failed.
	Failed     []string
	Rows       int
	JoinMisses int
}

// NothingToDo reports whether the store was already complete.
func (s Summary) NothingToDo() bool {
	return len(s.Missing) == 0
}

type Exporter struct {
	logger log.FieldLogger
	opts   Options
	deps   Dependencies
}

func New(logger log.FieldLogger, opts Options, deps Dependencies) (*Exporter, error) {
	if deps.Planner == nil || deps.Fetcher == nil || deps.Joiner == nil || deps.Normalizer == nil || deps.Writer == nil {
		return nil, exporterrors.Configuration("planner, fetcher, joiner, normalizer and writer are required")
	}
	if opts.Backfill && deps.Detector == nil {
		return nil, exporterrors.Configuration("a gap detector is required for backfill")
	}
	if opts.OnPeriodError == "" {
		opts.OnPeriodError = PolicyAbort
	}
	if deps.Clock == nil {
		deps.Clock = clock.RealClock{}
	}
	return &Exporter{
		logger: logger.WithFields(log.Fields{"component": "exporter", "cluster": opts.Entity.Name}),
		opts:   opts,
		deps:   deps,
	}, nil
}

// Run exports every missing period, or the single latest available period
// when backfill is off. Periods are processed one at a time, in date order.
// The returned error joins the errors of every failed period.
func (e *Exporter) Run(ctx context.Context) (Summary, error) {
	var summary Summary

	periods, err := e.periods(ctx)
	if err != nil {
		e.logger.WithField("stage", exporterrors.StageOf(err)).WithError(err).Error("unable to determine the periods to export")
		return summary, err
	}
	for _, p := range periods {
		summary.Missing = append(summary.Missing, p.Date)
	}
	missingPeriodsGauge.Set(float64(len(periods)))
	if len(periods) == 0 {
		e.logger.Info("all periods are already stored, nothing to do")
		lastSuccessGauge.Set(float64(e.deps.Clock.Now().Unix()))
		return summary, nil
	}
	e.logger.Infof("exporting %d period(s): %v", len(periods), summary.Missing)

	var errs []error
	for _, p := range periods {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		result, err := e.exportPeriod(ctx, p)
		summary.JoinMisses += result.stats.Missed
		if err != nil {
			e.logger.WithFields(log.Fields{
				"stage":  exporterrors.StageOf(err),
				"period": p.Date,
			}).WithError(err).Error("period failed")
			summary.Failed = append(summary.Failed, p.Date)
			errs = append(errs, fmt.Errorf("period %s: %w", p.Date, err))
			if e.stopAfter(err) {
				break
			}
			continue
		}
		summary.Written = append(summary.Written, result.key)
		summary.Rows += result.rows
	}

	if len(errs) > 0 {
		return summary, errors.Join(errs...)
	}
	lastSuccessGauge.Set(float64(e.deps.Clock.Now().Unix()))
	e.logger.Infof("exported %d period(s), %d rows", len(summary.Written), summary.Rows)
	return summary, nil
}

// stopAfter reports whether a failed period ends the run.
func (e *Exporter) stopAfter(err error) bool {
	if !e.opts.Backfill || exporterrors.AbortsRun(err) {
		return true
	}
	return e.opts.OnPeriodError != PolicyContinue
}

func (e *Exporter) periods(ctx context.Context) ([]window.Period, error) {
	if !e.opts.Backfill {
		return []window.Period{e.deps.Planner.SinglePeriod()}, nil
	}
	w, expected, err := e.deps.Planner.Plan()
	if err != nil {
		return nil, err
	}
	e.logger.Debugf("backfill window %s, %d expected period(s)", w, len(expected))
	return e.deps.Detector.DetectMissing(ctx, e.opts.Entity, w)
}

type periodResult struct {
	key   string
	rows  int
	stats allocation.JoinStats
}

// exportPeriod runs fetch, join, normalize and write for one period, and
// registers the partition when a registrar is configured. A partition that
// fails to register is picked up again by the next period of the same month.
func (e *Exporter) exportPeriod(ctx context.Context, p window.Period) (periodResult, error) {
	var result periodResult
	logger := e.logger.WithField("period", p.Date)
	start := e.deps.Clock.Now()
	defer func() {
		exportPeriodDurationHistogram.Observe(e.deps.Clock.Since(start).Seconds())
	}()

	allocations, err := e.deps.Fetcher.FetchAllocations(ctx, p)
	if err != nil {
		return result, e.failed(err)
	}
	logger.Debugf("fetched %d allocation entries", len(allocations))

	var index *allocation.AssetIndex
	if e.opts.JoinAssets {
		assets, err := e.deps.Fetcher.FetchAssets(ctx, p)
		if err != nil {
			return result, e.failed(err)
		}
		index = allocation.NewAssetIndex(assets, e.opts.LegacyAssetMatch)
		logger.Debugf("indexed %d assets", index.Len())
	}
	result.stats = e.deps.Joiner.Join(allocations, index)
	joinMissesCounter.Add(float64(result.stats.Missed))
	if result.stats.Missed > 0 {
		logger.Infof("%d of %d allocations had no matching asset", result.stats.Missed, result.stats.Matched+result.stats.Missed)
	}

	table, err := e.deps.Normalizer.NormalizeEntries(allocations)
	if err != nil {
		return result, e.failed(err)
	}

	key, err := e.deps.Writer.Write(ctx, e.opts.Entity, p, table)
	if err != nil {
		return result, e.failed(err)
	}
	result.key = key
	result.rows = table.Len()
	exportRowsCounter.Add(float64(table.Len()))

	if e.deps.Registrar != nil {
		if err := e.deps.Registrar.RegisterPartition(ctx, e.opts.Entity, p); err != nil {
			return result, e.failed(err)
		}
	}
	exportPeriodsTotalCounter.WithLabelValues("written").Inc()
	logger.WithField("duration", e.deps.Clock.Since(start)).Infof("wrote %d rows to %s", table.Len(), key)
	return result, nil
}

func (e *Exporter) failed(err error) error {
	kind := "unknown"
	if k, ok := exporterrors.KindOf(err); ok {
		kind = k.String()
	}
	exportPeriodsTotalCounter.WithLabelValues("failed").Inc()
	exportPeriodsFailedCounter.WithLabelValues(exporterrors.StageOf(err), kind).Inc()
	return err
}
