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

package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesOnCode(t *testing.T) {
	err := ErrSelfApprovalDenied.WithDetails(map[string]interface{}{"user_id": "u1"})
	assert.True(t, errors.Is(err, ErrSelfApprovalDenied))
	assert.False(t, errors.Is(err, ErrPermissionDenied))
}

func TestErrorIsThroughWrapping(t *testing.T) {
	inner := ErrNotFound.WithMessage("check item not found")
	wrapped := fmt.Errorf("loading item: %w", inner)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.Equal(t, "RES_4001", CodeOf(wrapped))
	assert.Equal(t, 404, StatusOf(wrapped))
}

func TestCodeOfUnknownError(t *testing.T) {
	assert.Equal(t, "SYS_6001", CodeOf(errors.New("boom")))
	assert.Equal(t, 500, StatusOf(errors.New("boom")))
}

func TestWithCausePreservesTaxonomy(t *testing.T) {
	cause := errors.New("pq: connection reset")
	err := ErrDatabase.WithCause(cause)

	require.True(t, errors.Is(err, ErrDatabase))
	assert.ErrorContains(t, err, "connection reset")
	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(ErrNotFound))
}

func TestWithMessageDoesNotMutateSentinel(t *testing.T) {
	_ = ErrTokenExpired.WithMessage("refresh token expired")
	assert.Equal(t, "Token has expired", ErrTokenExpired.Message)
}

func TestAsErrorWrapsUnknown(t *testing.T) {
	e := AsError(errors.New("surprise"))
	require.NotNil(t, e)
	assert.Equal(t, ErrInternal.Code, e.Code)
	assert.ErrorContains(t, e, "surprise")
}
