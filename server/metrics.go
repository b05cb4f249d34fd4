// Copyright 2025 ClearCheck
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

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearcheck_http_requests_total",
			Help: "HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clearcheck_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	decisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearcheck_decisions_total",
			Help: "Decisions recorded, by action and resulting item status.",
		},
		[]string{"action", "status"},
	)
	policyTriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clearcheck_policy_rule_triggers_total",
			Help: "Policy rule triggers during item evaluation.",
		},
		[]string{"action_type"},
	)
)

// ObserveDecision bumps the decision counter. Called by the dispatch layer
// after a decision endpoint succeeds.
func ObserveDecision(action, status string) {
	decisionsTotal.WithLabelValues(action, status).Inc()
}

// ObservePolicyTrigger bumps the policy trigger counter.
func ObservePolicyTrigger(actionType string) {
	policyTriggersTotal.WithLabelValues(actionType).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// observeRequests records the request counter and latency histogram, using
// the route template so IDs do not explode the label space.
func (s *Server) observeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		routeLabel := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if template, err := route.GetPathTemplate(); err == nil {
				routeLabel = template
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, routeLabel, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routeLabel).Observe(time.Since(start).Seconds())
	})
}
