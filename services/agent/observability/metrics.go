// Copyright (C) 2026 Meridian Care (engineering@meridiancare.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability exposes the Prometheus metrics recorded by the
// agent pipeline. All metrics are registered at init via promauto and
// scraped through the /metrics endpoint mounted by the transport layer.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the Agent Pipeline
// =============================================================================

var (
	// stageDuration measures per-stage wall-clock time.
	// Labels: stage (canonical stage name), status (success, error)
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "meridian",
		Subsystem: "pipeline",
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage duration in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"stage", "status"})

	// requestsTotal counts finished pipeline runs by outcome.
	// Labels: outcome (completed, blocked, aborted)
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meridian",
		Subsystem: "pipeline",
		Name:      "requests_total",
		Help:      "Total pipeline runs by outcome",
	}, []string{"outcome"})

	// safetyVerdicts counts pre-flight safety verdicts by level.
	// Labels: level (safe, caution, warning, critical, blocked)
	safetyVerdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meridian",
		Subsystem: "safety",
		Name:      "verdicts_total",
		Help:      "Safety verdicts by severity level",
	}, []string{"level"})

	// complianceFailures counts post-flight compliance check failures.
	// Labels: check (check name)
	complianceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meridian",
		Subsystem: "safety",
		Name:      "compliance_failures_total",
		Help:      "Failed compliance checks by check name",
	}, []string{"check"})

	// providerFallbacks counts model-router fallbacks to the alternate
	// provider.
	// Labels: provider (the provider fallen back to)
	providerFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "meridian",
		Subsystem: "router",
		Name:      "provider_fallbacks_total",
		Help:      "Model selections served by the alternate provider",
	}, []string{"provider"})

	// responseConfidence tracks the distribution of final response
	// confidence levels.
	responseConfidence = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "meridian",
		Subsystem: "pipeline",
		Name:      "response_confidence",
		Help:      "Distribution of final response confidence levels",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})
)

// ObserveStage records one completed pipeline stage.
func ObserveStage(stage string, d time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// RecordRequest records one finished pipeline run.
func RecordRequest(outcome string) {
	requestsTotal.WithLabelValues(outcome).Inc()
}

// RecordVerdict records a pre-flight safety verdict.
func RecordVerdict(level string) {
	safetyVerdicts.WithLabelValues(level).Inc()
}

// RecordComplianceFailure records one failed post-flight compliance check.
func RecordComplianceFailure(check string) {
	complianceFailures.WithLabelValues(check).Inc()
}

// RecordProviderFallback records a selection served by the alternate
// provider.
func RecordProviderFallback(provider string) {
	providerFallbacks.WithLabelValues(provider).Inc()
}

// ObserveResponseConfidence records a final response confidence level.
func ObserveResponseConfidence(confidence float64) {
	responseConfidence.Observe(confidence)
}
