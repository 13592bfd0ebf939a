package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrderSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrade_order_submissions_total",
		Help: "Order submissions by terminal outcome.",
	}, []string{"outcome"})

	SubmitRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polytrade_submit_retries_total",
		Help: "Upstream submission attempts beyond the first.",
	})

	UpstreamStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrade_upstream_status_total",
		Help: "HTTP status codes returned by the exchange.",
	}, []string{"code"})

	SubmitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "polytrade_submit_duration_seconds",
		Help:    "End-to-end order submission latency including retries.",
		Buckets: prometheus.DefBuckets,
	})

	SessionInits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrade_session_inits_total",
		Help: "Level-2 session initializations by result.",
	}, []string{"result"})

	ProxyResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrade_proxy_resolutions_total",
		Help: "Proxy wallet resolutions by cache outcome.",
	}, []string{"source"})

	RelayDeploys = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polytrade_relay_deploys_total",
		Help: "Relayed proxy wallet deployments by result.",
	}, []string{"result"})
)

// Outcome labels for OrderSubmissions.
const (
	OutcomeAccepted      = "accepted"
	OutcomeRejected      = "rejected"
	OutcomeUpstreamError = "upstream_error"
	OutcomePolicyBlocked = "policy_blocked"
	OutcomeInvalid       = "invalid"
)
