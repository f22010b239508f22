package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Prometheus pipeline metrics.
var (
	samplesProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "driftwatch_samples_processed_total",
			Help: "Total number of samples accepted by the detector.",
		},
	)
	invalidSamplesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "driftwatch_invalid_samples_total",
			Help: "Total number of samples rejected as invalid.",
		},
	)
	anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driftwatch_anomalies_total",
			Help: "Total number of anomalies detected.",
		},
		[]string{"severity"},
	)
	baselineEMA = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftwatch_baseline_ema",
			Help: "Current exponential moving average of the stream.",
		},
	)
	baselineStdDev = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftwatch_baseline_stddev",
			Help: "Current baseline standard deviation.",
		},
	)
	lastZScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "driftwatch_last_zscore",
			Help: "Z-score of the most recently processed sample.",
		},
	)
)

func init() {
	prometheus.MustRegister(samplesProcessedTotal)
	prometheus.MustRegister(invalidSamplesTotal)
	prometheus.MustRegister(anomaliesTotal)
	prometheus.MustRegister(baselineEMA)
	prometheus.MustRegister(baselineStdDev)
	prometheus.MustRegister(lastZScore)
}
