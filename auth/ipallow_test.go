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
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientIPWithoutProxy(t *testing.T) {
	r := httptest.NewRequest("POST", "/auth/login", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	// XFF from an untrusted peer is ignored.
	r.Header.Set("X-Forwarded-For", "10.0.0.1")

	assert.Equal(t, "203.0.113.7", ClientIP(r, nil))
}

func TestClientIPBehindTrustedProxy(t *testing.T) {
	r := httptest.NewRequest("POST", "/auth/login", nil)
	r.RemoteAddr = "10.0.0.5:443"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.9, 10.0.0.5")

	ip := ClientIP(r, []string{"10.0.0.0/8"})
	assert.Equal(t, "203.0.113.7", ip)
}

func TestClientIPSpoofedXFFStopsAtFirstUntrusted(t *testing.T) {
	// The client prepends a fake entry; only trusted-proxy-appended hops
	// are stripped, so the rightmost untrusted hop wins.
	r := httptest.NewRequest("POST", "/auth/login", nil)
	r.RemoteAddr = "10.0.0.5:443"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 203.0.113.7")

	ip := ClientIP(r, []string{"10.0.0.0/8"})
	assert.Equal(t, "203.0.113.7", ip)
}

func TestIPAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		ip      string
		want    bool
	}{
		{"empty list allows all", nil, "203.0.113.7", true},
		{"exact match", []string{"203.0.113.7"}, "203.0.113.7", true},
		{"exact mismatch", []string{"203.0.113.8"}, "203.0.113.7", false},
		{"cidr match", []string{"203.0.113.0/24"}, "203.0.113.7", true},
		{"cidr mismatch", []string{"198.51.100.0/24"}, "203.0.113.7", false},
		{"ipv6 exact", []string{"2001:db8::1"}, "2001:db8::1", true},
		{"ipv6 cidr", []string{"2001:db8::/32"}, "2001:db8:0:1::5", true},
		{"garbage caller fails closed", []string{"203.0.113.0/24"}, "not-an-ip", false},
		{"mixed list", []string{"198.51.100.1", "203.0.113.0/24"}, "203.0.113.42", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IPAllowed(tt.allowed, tt.ip))
		})
	}
}
