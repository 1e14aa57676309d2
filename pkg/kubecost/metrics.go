package kubecost

import "github.com/prometheus/client_golang/prometheus"

var requestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "allocation_exporter",
		Subsystem: "kubecost",
		Name:      "request_duration_seconds",
		Help:      "Duration of Kubecost API requests.",
		Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	},
	[]string{"endpoint", "outcome"},
)

// Collectors returns the package's metrics for registration.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{requestDuration}
}
