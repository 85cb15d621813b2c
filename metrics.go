package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portfolio_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

var (
	// postWritesTotal counts successful post writes by operation (create|update|delete).
	postWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_post_writes_total",
			Help: "Total number of successful post writes",
		},
		[]string{"op"},
	)

	loginAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portfolio_login_attempts_total",
			Help: "Total number of login and guest mode requests by result",
		},
		[]string{"result"},
	)

	guardDenialsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portfolio_guard_denials_total",
			Help: "Total number of admin routes refused for lack of an admin session",
		},
	)

	sessionsCleanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portfolio_sessions_cleaned_total",
			Help: "Total number of expired sessions removed",
		},
	)

	uploadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "portfolio_uploads_total",
			Help: "Total number of stored image uploads",
		},
	)
)
