package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// turnsTotal counts finished turns by terminal outcome.
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kai_turns_total",
		Help: "Chat turns by outcome",
	}, []string{"outcome"})

	reasoningCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kai_reasoning_calls_total",
		Help: "Calls to the reasoning backend by phase and result",
	}, []string{"phase", "result"})

	contextSources = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kai_context_source_total",
		Help: "Context sources resolved for final answers",
	}, []string{"source"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kai_turn_duration_seconds",
		Help:    "End to end chat turn latency",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)

const (
	outcomeDirect   = "direct"
	outcomeAnswer   = "answer"
	outcomeLogin    = "login_hint"
	outcomePassword = "password_prompt"
	outcomeApology  = "apology"
)

func observeCall(phase string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	reasoningCalls.WithLabelValues(phase, result).Inc()
}
