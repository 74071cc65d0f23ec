package promptapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// remoteCalls counts remote store calls by class and result
	remoteCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prompt_remote_calls_total",
		Help: "Remote prompt store calls by call class and result",
	}, []string{"class", "result"})

	// remoteCallDuration tracks remote call latency
	remoteCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prompt_remote_call_duration_seconds",
		Help:    "Remote prompt store call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s
	}, []string{"class"})
)

func observe(class Class, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	remoteCalls.WithLabelValues(string(class), result).Inc()
	remoteCallDuration.WithLabelValues(string(class)).Observe(elapsed.Seconds())
}
