// Package metrics exposes Prometheus instrumentation for the inference
// runtime.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	promptTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lantern_prompt_tokens_total",
		Help: "Prompt tokens evaluated across all sessions.",
	})

	generatedTokens = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lantern_tokens_generated_total",
		Help: "Tokens sampled across all sessions.",
	})

	evalDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name:       "lantern_eval_duration_seconds",
		Help:       "Duration of forward-pass batches.",
		Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
	})

	loadDuration = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "lantern_model_load_duration_seconds",
		Help: "Duration of model loads.",
	})

	sessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lantern_sessions_total",
		Help: "Completed generation sessions by outcome.",
	}, []string{"outcome"})
)

// RecordEval notes one forward-pass batch.
func RecordEval(d time.Duration) { evalDuration.Observe(d.Seconds()) }

// RecordPrompt notes prompt tokens fed to a session.
func RecordPrompt(n int) { promptTokens.Add(float64(n)) }

// RecordSampled notes one sampled token.
func RecordSampled() { generatedTokens.Inc() }

// RecordLoad notes one model load.
func RecordLoad(d time.Duration) { loadDuration.Observe(d.Seconds()) }

// RecordSession notes a finished session; outcome is "completed", "failed"
// or "canceled".
func RecordSession(outcome string) { sessions.WithLabelValues(outcome).Inc() }
