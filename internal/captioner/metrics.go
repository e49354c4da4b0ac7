package captioner

import "github.com/prometheus/client_golang/prometheus"

var (
	modelLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "captiond",
			Name:      "model_loads_total",
			Help:      "Model load attempts by result",
		},
		[]string{"result"},
	)

	modelLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "captiond",
			Name:      "model_load_duration_seconds",
			Help:      "Duration of model load attempts (fetch, resolve and engine start)",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
		},
	)

	captionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "captiond",
			Name:      "captions_total",
			Help:      "Caption generations by result",
		},
		[]string{"result"},
	)

	captionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "captiond",
			Name:      "caption_duration_seconds",
			Help:      "Duration of engine generate calls",
			Buckets:   prometheus.DefBuckets,
		},
	)

	backpressureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "captiond",
			Name:      "backpressure_total",
			Help:      "Requests rejected as too busy",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(modelLoadsTotal, modelLoadDuration, captionsTotal, captionDuration, backpressureTotal)
}
