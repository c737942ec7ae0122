package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	gatewayOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgagents_gateway_operations_total",
			Help: "Total number of query gateway operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)
	gatewayOperationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgagents_gateway_operation_duration_seconds",
			Help:    "Query gateway operation latency including connection checkout.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)
	agentRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgagents_agent_runs_total",
			Help: "Total number of agent runs by status.",
		},
		[]string{"agent", "status"},
	)
	agentTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgagents_agent_tokens_total",
			Help: "Total LLM tokens consumed by agent.",
		},
		[]string{"agent"},
	)
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgagents_tool_calls_total",
			Help: "Total number of tool invocations by outcome.",
		},
		[]string{"tool", "outcome"},
	)
	auditRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgagents_audit_records_total",
			Help: "Total number of audit records emitted by status.",
		},
		[]string{"status"},
	)
	auditArchiveFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgagents_audit_archive_flushes_total",
			Help: "Total number of audit archive batch writes by outcome.",
		},
		[]string{"outcome"},
	)
	auditArchiveDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pgagents_audit_archive_dropped_records_total",
			Help: "Total number of buffered audit records dropped because the archive backlog was full.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		gatewayOperationsTotal,
		gatewayOperationSeconds,
		agentRunsTotal,
		agentTokensTotal,
		toolCallsTotal,
		auditRecordsTotal,
		auditArchiveFlushesTotal,
		auditArchiveDroppedTotal,
	)
}

func ObserveGatewayOperation(operation, outcome string, elapsed time.Duration) {
	gatewayOperationsTotal.WithLabelValues(operation, outcome).Inc()
	gatewayOperationSeconds.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func ObserveAgentRun(agent, status string, tokens int) {
	agentRunsTotal.WithLabelValues(agent, status).Inc()
	if tokens > 0 {
		agentTokensTotal.WithLabelValues(agent).Add(float64(tokens))
	}
}

func ObserveToolCall(tool string, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "error"
	}
	toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

func ObserveAuditRecord(status string) {
	auditRecordsTotal.WithLabelValues(status).Inc()
}

func ObserveArchiveFlush(err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	auditArchiveFlushesTotal.WithLabelValues(outcome).Inc()
}

func ObserveArchiveDropped(records int) {
	if records > 0 {
		auditArchiveDroppedTotal.Add(float64(records))
	}
}
