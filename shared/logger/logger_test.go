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

package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(component string) (*Logger, *bytes.Buffer) {
	l := New(component)
	buf := &bytes.Buffer{}
	l.SetOutput(buf)
	return l, buf
}

func TestLogEntryStructure(t *testing.T) {
	l, buf := newTestLogger("auth")

	l.Info("tenant-1", "req-42", "Login succeeded", map[string]interface{}{
		"username": "jdoe",
	})

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, INFO, entry.Level)
	assert.Equal(t, "auth", entry.Component)
	assert.Equal(t, "tenant-1", entry.TenantID)
	assert.Equal(t, "req-42", entry.RequestID)
	assert.Equal(t, "Login succeeded", entry.Message)
	assert.Equal(t, "jdoe", entry.Fields["username"])
	assert.NotEmpty(t, entry.Timestamp)
}

func TestSingleLineOutput(t *testing.T) {
	l, buf := newTestLogger("audit")

	l.Warn("tenant-1", "", "Chain verification slow", map[string]interface{}{
		"records": 100000,
	})

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "\n"))
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestErrorWithCode(t *testing.T) {
	l, buf := newTestLogger("server")

	l.ErrorWithCode("tenant-1", "req-1", "Request failed", 500, assert.AnError, nil)

	var entry LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, ERROR, entry.Level)
	assert.EqualValues(t, 500, entry.Fields["status_code"])
	assert.Contains(t, entry.Fields["error"], "assert.AnError")
}

func TestConcurrentUse(t *testing.T) {
	l, buf := newTestLogger("decision")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Info("tenant-1", "req", "concurrent", nil)
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 50)
	for _, line := range lines {
		var entry LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
	}
}

func TestSecuritySharedInstance(t *testing.T) {
	assert.Same(t, Security(), Security())
	assert.Equal(t, "security", Security().Component)
}
