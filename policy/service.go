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

package policy

import (
	"context"
	"time"

	"clearcheck/platform/audit"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/logger"
	"clearcheck/platform/tenant"
)

// Service wraps the repository with validation and audit recording.
type Service struct {
	repo    *Repository
	auditor *audit.Service
	log     *logger.Logger
}

// NewService creates the policy admin service.
func NewService(repo *Repository, auditor *audit.Service) *Service {
	return &Service{
		repo:    repo,
		auditor: auditor,
		log:     logger.New("policy"),
	}
}

// CreatePolicyInput is the admin payload for a new policy.
type CreatePolicyInput struct {
	Name                  string   `json:"name"`
	Description           string   `json:"description"`
	IsDefault             bool     `json:"is_default"`
	AppliesToAccountTypes []string `json:"applies_to_account_types"`
	Rules                 []*Rule  `json:"rules"`
}

// Create stores a new DRAFT policy with version 1.
func (s *Service) Create(ctx context.Context, tc tenant.Context, input CreatePolicyInput) (*Policy, error) {
	if input.Name == "" {
		return nil, errs.ErrValidation.WithMessage("Policy name is required")
	}
	if err := validateRules(input.Rules); err != nil {
		return nil, err
	}

	p := &Policy{
		Name:                  input.Name,
		Description:           input.Description,
		IsDefault:             input.IsDefault,
		AppliesToAccountTypes: input.AppliesToAccountTypes,
	}
	created, err := s.repo.Create(ctx, tc, p, input.Rules)
	if err != nil {
		return nil, err
	}

	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionPolicyCreated,
		ResourceType: "policy",
		ResourceID:   created.ID,
		Description:  "Policy created",
		After:        created,
	})
	return created, nil
}

// UpdateRules appends a new version carrying the replacement rule set. The
// previous version stays current until the new one is activated.
func (s *Service) UpdateRules(ctx context.Context, tc tenant.Context, policyID string, effectiveDate time.Time, rules []*Rule) (*Version, error) {
	if err := validateRules(rules); err != nil {
		return nil, err
	}
	existing, err := s.repo.Get(ctx, tc, policyID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errs.ErrNotFound.WithMessage("Policy not found")
	}
	if effectiveDate.IsZero() {
		effectiveDate = time.Now().UTC()
	}

	version, err := s.repo.NewVersion(ctx, tc, policyID, effectiveDate, rules)
	if err != nil {
		return nil, err
	}

	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionPolicyUpdated,
		ResourceType: "policy",
		ResourceID:   policyID,
		Description:  "Policy version added",
		After:        version,
		Extra: map[string]interface{}{
			"version_number": version.VersionNumber,
			"rule_count":     len(rules),
		},
	})
	return version, nil
}

// Activate makes a version current and the policy live.
func (s *Service) Activate(ctx context.Context, tc tenant.Context, policyID, versionID string) error {
	existing, err := s.repo.Get(ctx, tc, policyID)
	if err != nil {
		return err
	}
	if existing == nil {
		return errs.ErrNotFound.WithMessage("Policy not found")
	}

	if err := s.repo.Activate(ctx, tc, policyID, versionID); err != nil {
		return err
	}

	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionPolicyActivated,
		ResourceType: "policy",
		ResourceID:   policyID,
		Description:  "Policy version activated",
		Before:       existing.CurrentVersion,
		Extra: map[string]interface{}{
			"version_id": versionID,
		},
	})
	return nil
}

// Archive retires the policy. Evaluation falls back to the tenant default
// or the amount-threshold gate.
func (s *Service) Archive(ctx context.Context, tc tenant.Context, policyID string) error {
	existing, err := s.repo.Get(ctx, tc, policyID)
	if err != nil {
		return err
	}
	if existing == nil {
		return errs.ErrNotFound.WithMessage("Policy not found")
	}

	if err := s.repo.Archive(ctx, tc, policyID); err != nil {
		return err
	}

	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionPolicyDeleted,
		ResourceType: "policy",
		ResourceID:   policyID,
		Description:  "Policy archived",
		Before:       existing,
	})
	return nil
}

// List returns the tenant's non-archived policies.
func (s *Service) List(ctx context.Context, tc tenant.Context) ([]*Policy, error) {
	return s.repo.List(ctx, tc)
}

// Get returns one policy with its current version and rules.
func (s *Service) Get(ctx context.Context, tc tenant.Context, id string) (*Policy, error) {
	p, err := s.repo.Get(ctx, tc, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errs.ErrNotFound.WithMessage("Policy not found")
	}
	return p, nil
}

var knownOperators = map[string]bool{
	"equals": true, "not_equals": true,
	"greater_than": true, "less_than": true,
	"greater_or_equal": true, "less_or_equal": true,
	"in": true, "not_in": true,
	"contains": true, "between": true,
}

var knownActions = map[string]bool{
	"require_dual_control": true,
	"set_risk_level":       true,
	"route_to_queue":       true,
	"require_reason":       true,
	"add_flag":             true,
}

func validateRules(rules []*Rule) error {
	for _, rule := range rules {
		if rule.Name == "" {
			return errs.ErrValidation.WithMessage("Rule name is required")
		}
		for _, cond := range rule.Conditions {
			if cond.Field == "" {
				return errs.ErrValidation.WithMessage("Condition field is required")
			}
			if !knownOperators[cond.Operator] {
				return errs.ErrValidation.WithMessage("Unknown operator %q", cond.Operator)
			}
		}
		for _, action := range rule.Actions {
			if !knownActions[action.Action] {
				return errs.ErrValidation.WithMessage("Unknown action %q", action.Action)
			}
		}
	}
	return nil
}

// auditEvent records an admin action. A failed write is logged, not
// surfaced; the underlying change already committed.
func (s *Service) auditEvent(ctx context.Context, tc tenant.Context, e audit.Event) {
	if s.auditor == nil {
		return
	}
	if _, err := s.auditor.Record(ctx, tc, e); err != nil {
		s.log.Error(tc.TenantID, tc.RequestID, "Audit write failed", map[string]interface{}{
			"action": string(e.Action),
			"error":  err.Error(),
		})
	}
}
