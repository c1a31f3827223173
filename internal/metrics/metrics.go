// Package metrics exposes Prometheus collectors for the agent. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "workspace_agent"

// Metrics groups every collector the agent updates.
type Metrics struct {
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	agentRuns    *prometheus.CounterVec
	agentSteps   prometheus.Histogram
	fetches      *prometheus.CounterVec
	approvals    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_calls_total",
				Help:      "Tool dispatches by tool and outcome",
			},
			[]string{"tool", "outcome"},
		),
		toolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tool_duration_seconds",
				Help:      "Duration of tool executions",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		agentRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_runs_total",
				Help:      "Agent runs by outcome",
			},
			[]string{"outcome"},
		),
		agentSteps: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "agent_model_turns",
				Help:      "Model turns taken per run",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			},
		),
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detail_fetches_total",
				Help:      "Per-message detail fetches by outcome",
			},
			[]string{"outcome"},
		),
		approvals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "approvals_total",
				Help:      "Approval gate outcomes",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(m.toolCalls, m.toolDuration, m.agentRuns, m.agentSteps, m.fetches, m.approvals)

	return m
}

func (m *Metrics) ObserveTool(tool, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
	m.toolDuration.WithLabelValues(tool).Observe(d.Seconds())
}

func (m *Metrics) ObserveRun(outcome string, steps int) {
	if m == nil {
		return
	}
	m.agentRuns.WithLabelValues(outcome).Inc()
	m.agentSteps.Observe(float64(steps))
}

func (m *Metrics) ObserveFetch(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.fetches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveApproval(outcome string) {
	if m == nil {
		return
	}
	m.approvals.WithLabelValues(outcome).Inc()
}
