package infrastructure

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics 记录评估和核销相关指标。
type PrometheusMetrics struct {
	evaluations  *prometheus.CounterVec
	grantedUnits prometheus.Counter
	duration     prometheus.Histogram
	redemptions  *prometheus.CounterVec
}

func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promotion",
			Name:      "evaluations_total",
			Help:      "Number of BOGO evaluations by outcome.",
		}, []string{"outcome"}),
		grantedUnits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "promotion",
			Name:      "discounted_units_total",
			Help:      "Units discounted across all emitted plans.",
		}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "promotion",
			Name:      "evaluation_duration_seconds",
			Help:      "Time spent evaluating a cart, including collection resolution.",
			Buckets:   prometheus.DefBuckets,
		}),
		redemptions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promotion",
			Name:      "redemptions_total",
			Help:      "Redemption attempts by result.",
		}, []string{"result"}),
	}
}

func (m *PrometheusMetrics) ObserveEvaluation(outcome string, discountedUnits int, elapsed time.Duration) {
	m.evaluations.WithLabelValues(outcome).Inc()
	m.grantedUnits.Add(float64(discountedUnits))
	m.duration.Observe(elapsed.Seconds())
}

func (m *PrometheusMetrics) ObserveRedemption(result string) {
	m.redemptions.WithLabelValues(result).Inc()
}
