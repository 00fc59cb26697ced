// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SimRequestsTotal counts handled roomsim requests by route and code.
	SimRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomgate_roomsim_requests_total",
		Help: "Total number of handled roomsim HTTP requests, by route and status code.",
	}, []string{"route", "code"})

	// SimRequestDuration observes handler latency by route.
	SimRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "roomgate_roomsim_request_duration_seconds",
		Help:    "Roomsim HTTP handler latency, by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	// SimTicketsIssued counts issued single-use join tickets.
	SimTicketsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomgate_roomsim_tickets_issued_total",
		Help: "Total number of issued single-use join tickets.",
	})

	// SimTicketsRedeemed counts redeemed join tickets by result.
	SimTicketsRedeemed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomgate_roomsim_tickets_redeemed_total",
		Help: "Total number of join ticket redemptions, by result (ok, replayed).",
	}, []string{"result"})
)

// ObserveSimRequest records one handled roomsim request.
func ObserveSimRequest(route string, code int, elapsed time.Duration) {
	SimRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	SimRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
