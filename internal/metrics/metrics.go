// Package metrics provides the Prometheus metrics scraped from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "auth"

// Rejection reasons used as the "reason" label of RefreshRejectedTotal and LoginTotal.
const (
	ReasonExpired        = "expired"
	ReasonMalformed      = "malformed"
	ReasonSignature      = "signature_invalid"
	ReasonNotFound       = "not_found"
	ReasonRevoked        = "revoked_or_expired"
	ReasonRaceLost       = "race_lost"
	ReasonSubject        = "subject_inactive"
	ReasonBadCredentials = "invalid_credentials"
	ReasonError          = "error"
)

var (
	// HTTPRequestTotal counts requests by method, route, status.
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds is request latency by route.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "route"},
	)

	// LoginTotal counts login attempts by result ("success" or a rejection reason).
	LoginTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_total",
			Help:      "Total number of login attempts by result.",
		},
		[]string{"result"},
	)

	// RefreshRotatedTotal counts successful refresh token rotations.
	RefreshRotatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_rotated_total",
			Help:      "Total number of successful refresh token rotations.",
		},
	)

	// RefreshRejectedTotal counts rejected refresh attempts by reason.
	RefreshRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_rejected_total",
			Help:      "Total number of rejected refresh attempts by reason.",
		},
		[]string{"reason"},
	)

	// SessionsRevokedTotal counts refresh sessions revoked by logout.
	SessionsRevokedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_revoked_total",
			Help:      "Total number of refresh sessions revoked by logout.",
		},
	)

	// SessionsPurgedTotal counts records removed by the retention sweeper and manual purges.
	SessionsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_purged_total",
			Help:      "Total number of expired or revoked refresh sessions deleted.",
		},
	)

	// SweepFailuresTotal counts retention sweeps that returned an error.
	SweepFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Total number of failed retention sweeps.",
		},
	)
)
