package pop3

import "github.com/prometheus/client_golang/prometheus"

// metricsCollector wraps the Prometheus collectors the frame stream
// reports to. A nil *metricsCollector disables instrumentation entirely,
// so this stays opt-in (spec.md's ambient stack describes metrics as
// observability, not a required dependency for correctness).
type metricsCollector struct {
	commandsTotal *prometheus.CounterVec
	serverErrors  prometheus.Counter
	parseFailures prometheus.Counter
	responseBytes prometheus.Histogram
}

// NewMetrics registers a set of collectors on reg and returns a
// *metricsCollector ready to pass as a DialOption. Grounded on
// gopistolet-gopistolet's use of prometheus.MustRegister at construction
// time rather than via init().
func NewMetrics(reg prometheus.Registerer) *metricsCollector {
	m := &metricsCollector{
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pop3_client",
			Name:      "commands_total",
			Help:      "Commands sent to the server, by verb.",
		}, []string{"command"}),
		serverErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pop3_client",
			Name:      "server_errors_total",
			Help:      "Responses the server answered with -ERR.",
		}),
		parseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pop3_client",
			Name:      "parse_failures_total",
			Help:      "Responses that failed to parse and ended the session.",
		}),
		responseBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pop3_client",
			Name:      "response_bytes",
			Help:      "Size in bytes of each parsed response.",
			Buckets:   prometheus.ExponentialBuckets(32, 4, 8),
		}),
	}
	reg.MustRegister(m.commandsTotal, m.serverErrors, m.parseFailures, m.responseBytes)
	return m
}

func (m *metricsCollector) observeSend(cmd command) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(cmd.String()).Inc()
}

func (m *metricsCollector) observeRecv(cmd command, size int, isErr bool) {
	if m == nil {
		return
	}
	m.responseBytes.Observe(float64(size))
	if isErr {
		m.serverErrors.Inc()
	}
}

func (m *metricsCollector) observeParseFailure() {
	if m == nil {
		return
	}
	m.parseFailures.Inc()
}
