package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts wire-level requests by route and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_http_requests_total",
		Help: "HTTP requests served, by route and status code.",
	}, []string{"route", "status"})

	// AuthFailures counts rejected tokens by failure kind. The kind is
	// visible here and in logs only, never in response bodies.
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_auth_failures_total",
		Help: "Token verification failures, by kind.",
	}, []string{"kind"})

	// Mints counts capability issuance outcomes.
	Mints = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_mints_total",
		Help: "Token mint attempts, by outcome.",
	}, []string{"outcome"})

	// BytesServed totals successful asset response bodies.
	BytesServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_bytes_served_total",
		Help: "Asset bytes returned with status 200.",
	})
)

func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
}
