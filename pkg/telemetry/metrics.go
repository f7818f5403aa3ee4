// SPDX-FileCopyrightText: 2026 The kasa-go Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package telemetry exposes Prometheus metrics for exchanges and datagrams.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kasa"

var (
	// Registry holds all metrics of this package.
	Registry = prometheus.NewRegistry()

	ExchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Total number of finished exchanges, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	ExchangeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Time from sending a request until the exchange finished.",
			// 1ms .. ~16s
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"outcome"},
	)

	ExchangesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "exchanges_in_flight",
			Help:      "Current number of unresolved exchanges.",
		},
	)

	DatagramBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datagram_bytes_total",
			Help:      "Total number of encrypted bytes sent or received.",
		},
		[]string{"direction"},
	)
)

func init() {
	Registry.MustRegister(ExchangesTotal, ExchangeDuration, ExchangesInFlight, DatagramBytes)
}

// MetricsHandler exposes all metrics, e.g., mounted at /metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ExchangeStarted marks a new unresolved exchange.
func ExchangeStarted() {
	ExchangesInFlight.Inc()
}

// ExchangeFinished records a finished exchange, started at the given time.
func ExchangeFinished(outcome string, start time.Time) {
	ExchangesInFlight.Dec()
	ExchangesTotal.WithLabelValues(outcome).Inc()
	ExchangeDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// DatagramSent counts the bytes of an outgoing datagram.
func DatagramSent(n int) {
	DatagramBytes.WithLabelValues("out").Add(float64(n))
}

// DatagramReceived counts the bytes of an incoming datagram.
func DatagramReceived(n int) {
	DatagramBytes.WithLabelValues("in").Add(float64(n))
}
