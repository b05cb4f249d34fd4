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

package auth

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller's address. X-Forwarded-For is honored only
// when the direct peer is a trusted proxy; entries appended by trusted
// proxies are stripped from the right and the remaining rightmost value is
// the client.
func ClientIP(r *http.Request, trustedProxies []string) string {
	peer := remoteHost(r.RemoteAddr)
	if !ipInList(peer, trustedProxies) {
		return peer
	}

	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return peer
	}

	hops := strings.Split(xff, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !ipInList(hop, trustedProxies) {
			return hop
		}
	}
	return peer
}

func remoteHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// IPAllowed checks an address against an allowlist of exact IPs and CIDR
// ranges. An empty list allows everything; an unparseable caller address
// fails closed.
func IPAllowed(allowed []string, ip string) bool {
	if len(allowed) == 0 {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, entry := range allowed {
		if matchIPEntry(entry, parsed) {
			return true
		}
	}
	return false
}

func matchIPEntry(entry string, ip net.IP) bool {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return false
	}
	if strings.Contains(entry, "/") {
		_, cidr, err := net.ParseCIDR(entry)
		return err == nil && cidr.Contains(ip)
	}
	exact := net.ParseIP(entry)
	return exact != nil && exact.Equal(ip)
}

func ipInList(ip string, list []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, entry := range list {
		if matchIPEntry(entry, parsed) {
			return true
		}
	}
	return false
}
