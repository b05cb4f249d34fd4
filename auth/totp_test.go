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
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyTOTP(t *testing.T) {
	secret, url, err := GenerateMFASecret("ClearCheck", "jdoe@example.com")
	require.NoError(t, err)
	assert.Contains(t, url, "otpauth://totp/")

	code, err := totp.GenerateCode(secret, time.Now().UTC())
	require.NoError(t, err)

	assert.True(t, VerifyTOTP(secret, code))
	assert.False(t, VerifyTOTP(secret, "000000"))
}

func TestVerifyTOTPAcceptsOneStepDrift(t *testing.T) {
	secret, _, err := GenerateMFASecret("ClearCheck", "jdoe@example.com")
	require.NoError(t, err)

	prev, err := totp.GenerateCode(secret, time.Now().UTC().Add(-30*time.Second))
	require.NoError(t, err)
	next, err := totp.GenerateCode(secret, time.Now().UTC().Add(30*time.Second))
	require.NoError(t, err)

	assert.True(t, VerifyTOTP(secret, prev))
	assert.True(t, VerifyTOTP(secret, next))
}

func TestVerifyTOTPRejectsMalformedInput(t *testing.T) {
	secret, _, err := GenerateMFASecret("ClearCheck", "jdoe@example.com")
	require.NoError(t, err)

	assert.False(t, VerifyTOTP("", "123456"))
	assert.False(t, VerifyTOTP(secret, ""))
	assert.False(t, VerifyTOTP(secret, "12345"))
	assert.False(t, VerifyTOTP(secret, "1234567"))
}
