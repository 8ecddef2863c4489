package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/histograms for message processing and
// model calls.
type PipelineMetrics struct {
	processedTotal  *prometheus.CounterVec
	processLatency  *prometheus.HistogramVec
	llmCallsTotal   *prometheus.CounterVec
	llmCallLatency  *prometheus.HistogramVec
	llmTokensTotal  *prometheus.CounterVec
	rateLimitsTotal prometheus.Counter
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		processedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "icmp",
			Subsystem: "pipeline",
			Name:      "messages_total",
			Help:      "Total processed inbound messages",
		}, []string{"status"}),
		processLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "icmp",
			Subsystem: "pipeline",
			Name:      "message_latency_seconds",
			Help:      "Latency of full message processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		llmCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "icmp",
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "Total model invocations",
		}, []string{"call_type", "status"}),
		llmCallLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "icmp",
			Subsystem: "llm",
			Name:      "call_latency_seconds",
			Help:      "Latency of model invocations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call_type"}),
		llmTokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "icmp",
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Tokens consumed by model invocations",
		}, []string{"call_type", "direction"}),
		rateLimitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "icmp",
			Subsystem: "llm",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-business rate limiter",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.processedTotal, m.processLatency, m.llmCallsTotal,
		m.llmCallLatency, m.llmTokensTotal, m.rateLimitsTotal)
	return m
}

func (m *PipelineMetrics) ObserveProcessed(status string, seconds float64) {
	if m == nil {
		return
	}
	m.processedTotal.WithLabelValues(status).Inc()
	m.processLatency.WithLabelValues(status).Observe(seconds)
}

func (m *PipelineMetrics) ObserveLLMCall(callType, status string, seconds float64) {
	if m == nil {
		return
	}
	m.llmCallsTotal.WithLabelValues(callType, status).Inc()
	m.llmCallLatency.WithLabelValues(callType).Observe(seconds)
}

func (m *PipelineMetrics) ObserveTokens(callType string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	if inputTokens > 0 {
		m.llmTokensTotal.WithLabelValues(callType, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokensTotal.WithLabelValues(callType, "output").Add(float64(outputTokens))
	}
}

func (m *PipelineMetrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.rateLimitsTotal.Inc()
}
