package exporter

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const prometheusMetricNamespace = "allocation_exporter"

var (
	exportPeriodsTotalCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "periods_total",
			Help:      "Periods processed, by outcome.",
		},
		[]string{"outcome"},
	)

	exportPeriodsFailedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "periods_failed_total",
			Help:      "Failed periods, by failing stage and error kind.",
		},
		[]string{"stage", "kind"},
	)

	exportRowsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "rows_written_total",
			Help:      "Allocation rows written to artifacts.",
		},
	)

	joinMissesCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "asset_join_misses_total",
			Help:      "Allocations with no matching asset.",
		},
	)

	missingPeriodsGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "missing_periods",
			Help:      "Periods found missing from the store by the last run.",
		},
	)

	exportPeriodDurationHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "period_duration_seconds",
			Help:      "Duration to export one period.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	lastSuccessGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: prometheusMetricNamespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that completed without errors.",
		},
	)
)

// Collectors returns the package's metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		exportPeriodsTotalCounter,
		exportPeriodsFailedCounter,
		exportRowsCounter,
		joinMissesCounter,
		missingPeriodsGauge,
		exportPeriodDurationHistogram,
		lastSuccessGauge,
	}
}

// PushMetrics sends everything gathered by g to a Pushgateway, replacing the
// metrics previously pushed under the same job and grouping.
func PushMetrics(ctx context.Context, gatewayURL, job string, g prometheus.Gatherer, grouping map[string]string) error {
	p := push.New(gatewayURL, job).Gatherer(g)
	for name, value := range grouping {
		p = p.Grouping(name, value)
	}
	return p.PushContext(ctx)
}
