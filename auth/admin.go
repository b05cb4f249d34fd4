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
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"clearcheck/platform/audit"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/tenant"
)

// CreateUserInput is the admin user-creation payload.
type CreateUserInput struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name,omitempty"`
	Password string   `json:"password"`
	Roles    []string `json:"roles,omitempty"`
}

// UpdateUserInput patches a user. Nil fields are left unchanged; a non-nil
// Roles replaces the whole role set.
type UpdateUserInput struct {
	FullName *string   `json:"full_name,omitempty"`
	Email    *string   `json:"email,omitempty"`
	IsActive *bool     `json:"is_active,omitempty"`
	Roles    *[]string `json:"roles,omitempty"`
}

// CreateUser provisions an operator account in the caller's tenant.
func (s *Service) CreateUser(ctx context.Context, tc tenant.Context, input CreateUserInput) (*User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(input.Email)
	if input.Username == "" || input.Email == "" {
		return nil, errs.ErrMissingField.WithMessage("Username and email are required")
	}
	if len(input.Password) < minPasswordLength {
		return nil, errs.ErrValidation.WithMessage("Password must be at least %d characters", minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errs.ErrInternal.WithCause(err)
	}

	user := &User{
		ID:           uuid.New().String(),
		TenantID:     tc.TenantID,
		Username:     input.Username,
		Email:        input.Email,
		FullName:     input.FullName,
		PasswordHash: string(hash),
		IsActive:     true,
	}
	if err := s.users.Insert(ctx, user); err != nil {
		return nil, err
	}
	if len(input.Roles) > 0 {
		if err := s.users.ReplaceRoles(ctx, tc, user.ID, input.Roles); err != nil {
			return nil, err
		}
	}

	created, err := s.users.GetByID(ctx, tc, user.ID)
	if err != nil {
		return nil, err
	}

	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionUserCreated,
		ResourceType: "user",
		ResourceID:   user.ID,
		Description:  "User created: " + user.Username,
		Extra:        map[string]interface{}{"roles": input.Roles},
	})
	return created, nil
}

// UpdateUser patches profile fields and optionally replaces roles.
func (s *Service) UpdateUser(ctx context.Context, tc tenant.Context, userID string, input UpdateUserInput) (*User, error) {
	before, err := s.users.GetByID(ctx, tc, userID)
	if err != nil {
		return nil, err
	}
	if before == nil {
		return nil, errs.ErrNotFound.WithMessage("User not found")
	}

	if input.FullName != nil || input.Email != nil || input.IsActive != nil {
		if err := s.users.UpdateProfile(ctx, tc, userID, input.FullName, input.Email, input.IsActive); err != nil {
			return nil, err
		}
	}
	if input.Roles != nil {
		if err := s.users.ReplaceRoles(ctx, tc, userID, *input.Roles); err != nil {
			return nil, err
		}
		s.auditEvent(ctx, tc, audit.Event{
			Action:       audit.ActionRoleAssigned,
			ResourceType: "user",
			ResourceID:   userID,
			Description:  "Roles replaced for " + before.Username,
			Before:       map[string]interface{}{"roles": before.Roles},
			After:        map[string]interface{}{"roles": *input.Roles},
		})
	}

	after, err := s.users.GetByID(ctx, tc, userID)
	if err != nil {
		return nil, err
	}
	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionUserUpdated,
		ResourceType: "user",
		ResourceID:   userID,
		Description:  "User updated: " + before.Username,
		Before:       map[string]interface{}{"is_active": before.IsActive, "email": before.Email},
		After:        map[string]interface{}{"is_active": after.IsActive, "email": after.Email},
	})
	return after, nil
}
