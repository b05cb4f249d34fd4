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
	"time"

	"clearcheck/platform/shared/httpx"
)

// health reports liveness: the process is up and serving.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ready reports readiness: dependencies are reachable. Redis is optional,
// so only the database gates readiness.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	deps := map[string]string{}
	healthy := true

	if err := s.db.PingContext(r.Context()); err != nil {
		deps["database"] = "unreachable"
		healthy = false
	} else {
		deps["database"] = "ok"
	}

	if s.redis != nil {
		if err := s.redis.Ping(r.Context()).Err(); err != nil {
			deps["redis"] = "unreachable"
		} else {
			deps["redis"] = "ok"
		}
	}

	status := http.StatusOK
	state := "ready"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "not_ready"
	}
	httpx.WriteJSON(w, status, map[string]interface{}{
		"status":       state,
		"dependencies": deps,
	})
}
