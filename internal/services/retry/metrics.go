package retry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcp_openai",
		Name:      "attempts_total",
		Help:      "Upstream attempts by tool and result reason.",
	}, []string{"tool", "result"})
	metricOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mcp_openai",
		Name:      "outcomes_total",
		Help:      "Terminal invocation outcomes by tool and state.",
	}, []string{"tool", "state"})
	metricInvocationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mcp_openai",
		Name:      "invocation_duration_seconds",
		Help:      "Wall time from first attempt to terminal outcome.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 900},
	}, []string{"tool"})
	metricInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mcp_openai",
		Name:      "invocations_in_flight",
		Help:      "Invocations currently inside the retry loop.",
	})
)

func recordAttempt(tool, result string) {
	metricAttempts.WithLabelValues(tool, result).Inc()
}

func recordOutcome(tool string, state State, elapsed time.Duration) {
	metricOutcomes.WithLabelValues(tool, string(state)).Inc()
	metricInvocationSeconds.WithLabelValues(tool).Observe(elapsed.Seconds())
}
