// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the HTTP API. Each Server
// gets its own registry so tests can run servers side by side.
type Metrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	queriesTotal        *prometheus.CounterVec
	retrievedPassages   prometheus.Histogram
	ragUnavailableTotal prometheus.Counter
	documentsIngested   prometheus.Counter
}

// NewMetrics creates and registers the API instruments.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scholarquery",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scholarquery",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scholarquery",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
		},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scholarquery",
			Subsystem: "query",
			Name:      "total",
			Help:      "Total queries served, by requested stages.",
		},
		[]string{"rerank", "rag"},
	)
	retrievedPassages := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scholarquery",
			Subsystem: "query",
			Name:      "retrieved_passages",
			Help:      "Distribution of retrieved passages per query.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
		},
	)
	ragUnavailableTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scholarquery",
			Subsystem: "rag",
			Name:      "unavailable_total",
			Help:      "Total queries whose answer generation was unavailable.",
		},
	)
	documentsIngested := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scholarquery",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Total documents ingested.",
		},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		queriesTotal,
		retrievedPassages,
		ragUnavailableTotal,
		documentsIngested,
	)

	return &Metrics{
		registry:            registry,
		requestTotal:        requestTotal,
		requestDuration:     requestDuration,
		requestInFlight:     requestInFlight,
		queriesTotal:        queriesTotal,
		retrievedPassages:   retrievedPassages,
		ragUnavailableTotal: ragUnavailableTotal,
		documentsIngested:   documentsIngested,
	}
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts, durations, and in-flight gauge.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			r.Method,
			r.URL.Path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) recordQuery(rerank, rag bool, passages int) {
	m.queriesTotal.WithLabelValues(strconv.FormatBool(rerank), strconv.FormatBool(rag)).Inc()
	m.retrievedPassages.Observe(float64(passages))
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
