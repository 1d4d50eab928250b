// Package metrics holds the Prometheus collectors of the reward economy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EvaluationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playknow_evaluation_runs_total",
			Help: "Evaluation runs by final status",
		},
		[]string{"status"},
	)
	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "playknow_evaluation_duration_seconds",
			Help:    "Wall time of evaluation runs",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
	RewardsDistributed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playknow_rewards_distributed_coins_total",
			Help: "Coins paid out by evaluation, by winner kind",
		},
		[]string{"kind"},
	)
	FraudFlags = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playknow_fraud_flags_total",
			Help: "Fraud flags raised, by flag",
		},
		[]string{"flag"},
	)
	EconomyActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playknow_economy_actions_total",
			Help: "Fee-charging actions by action and outcome",
		},
		[]string{"action", "outcome"},
	)
	FeesCollected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playknow_fees_collected_coins_total",
			Help: "Fee coins collected, by split share",
		},
		[]string{"share"},
	)
	Compensations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playknow_compensations_total",
			Help: "Compensating refunds written after failed records",
		},
		[]string{"result"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playknow_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playknow_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	RLRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_requests_total",
			Help: "Total requests seen by the rate limiter",
		},
		[]string{"endpoint"},
	)
	RLBlocked = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limiter_blocked_total",
			Help: "Total requests blocked by the rate limiter",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(
		EvaluationRuns,
		EvaluationDuration,
		RewardsDistributed,
		FraudFlags,
		EconomyActions,
		FeesCollected,
		Compensations,
		HTTPRequests,
		HTTPDuration,
		RLRequests,
		RLBlocked,
	)
}
