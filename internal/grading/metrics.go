package grading

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	providerAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evaluator",
		Subsystem: "grading",
		Name:      "provider_attempts_total",
		Help:      "Provider attempts by provider and outcome",
	}, []string{"provider", "outcome"})

	providerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evaluator",
		Subsystem: "grading",
		Name:      "provider_attempt_duration_seconds",
		Help:      "Duration of provider attempts including response parsing",
	}, []string{"provider"})

	fallbackScores = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "evaluator",
		Subsystem: "grading",
		Name:      "fallback_scores_total",
		Help:      "Answers scored by the local fallback scorer",
	})

	batchItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evaluator",
		Subsystem: "grading",
		Name:      "batch_items_total",
		Help:      "Batch and re-evaluation items by operation and status",
	}, []string{"operation", "status"})
)
