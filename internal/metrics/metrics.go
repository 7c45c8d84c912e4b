package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "freightdesk_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightdesk_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightdesk_order_transitions_total",
			Help: "Order status transitions by target status and outcome",
		},
		[]string{"to", "result"},
	)

	GeocodeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightdesk_geocode_requests_total",
			Help: "Postal code lookups by outcome (cache_hit, ok, not_found, provider_error)",
		},
		[]string{"result"},
	)

	RouteChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightdesk_route_checks_total",
			Help: "Driving distance lookups performed by route-worker",
		},
		[]string{"result"},
	)

	BrokerPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "freightdesk_broker_publish_total",
			Help: "Kafka publishes by topic and outcome",
		},
		[]string{"topic", "result"},
	)
)

// Result labels.
const (
	ResultOK            = "ok"
	ResultError         = "error"
	ResultCacheHit      = "cache_hit"
	ResultNotFound      = "not_found"
	ResultProviderError = "provider_error"
	ResultNoRoute       = "no_route"
	ResultRateLimited   = "rate_limited"
)
