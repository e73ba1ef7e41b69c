package agentloop

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the observability counters an agent loop carries
// regardless of whether an exporter is wired up. Emission/export is
// outside this module's scope; these are registered against the
// caller-supplied Registerer only when one is provided.
type Metrics struct {
	Iterations       prometheus.Counter
	Terminations     *prometheus.CounterVec
	ToolCalls        *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec
	Corrections      prometheus.Counter
	Compactions      prometheus.Counter
}

// NewMetrics builds a Metrics set. If reg is nil the collectors are
// still usable, simply unregistered (tests and short-lived CLI
// invocations don't need a scrape endpoint).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "agentloop",
			Name:      "iterations_total",
			Help:      "Total number of agent-loop iterations executed.",
		}),
		Terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "agentloop",
			Name:      "terminations_total",
			Help:      "Agent-loop terminations by reason.",
		}, []string{"reason"}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "agentloop",
			Name:      "tool_calls_total",
			Help:      "Tool calls dispatched by the agent loop, by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ToolCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentcore",
			Subsystem: "agentloop",
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call latency as observed by the agent loop.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		Corrections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "agentloop",
			Name:      "self_corrections_total",
			Help:      "Self-correction reminders synthesized after a schema-validation failure.",
		}),
		Compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agentcore",
			Subsystem: "agentloop",
			Name:      "compactions_total",
			Help:      "History compactions, both proactive (near the context window) and after a provider context-overflow error.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Iterations, m.Terminations, m.ToolCalls, m.ToolCallDuration, m.Corrections, m.Compactions)
	}
	return m
}
