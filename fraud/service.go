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

package fraud

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clearcheck/platform/audit"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/logger"
	"clearcheck/platform/tenant"
)

// Service records fraud events and runs the opt-in sharing pipeline.
type Service struct {
	repo      *Repository
	hasher    *Hasher
	auditor   *audit.Service
	threshold int
	log       *logger.Logger
	now       func() time.Time
}

// NewService creates the fraud service. threshold is the minimum number
// of distinct contributing institutions before aggregates are released.
func NewService(repo *Repository, hasher *Hasher, auditor *audit.Service, threshold int) *Service {
	return &Service{
		repo:      repo,
		hasher:    hasher,
		auditor:   auditor,
		threshold: threshold,
		log:       logger.New("fraud"),
		now:       time.Now,
	}
}

// SubmitResult is what an event submission produced. Artifact and Alert
// are nil when sharing is off or nothing matched.
type SubmitResult struct {
	Event    *FraudEvent          `json:"event"`
	Artifact *FraudSharedArtifact `json:"artifact,omitempty"`
	Alert    *NetworkMatchAlert   `json:"alert,omitempty"`
}

// SubmitEvent stores the private event and, when the tenant has opted
// in, derives and shares the hashed artifact and checks it against the
// network.
func (s *Service) SubmitEvent(ctx context.Context, tc tenant.Context, input EventInput) (*SubmitResult, error) {
	if !validFraudType(input.FraudType) {
		return nil, errs.ErrValidation.WithMessage("Unknown fraud type %q", input.FraudType)
	}
	now := s.now().UTC()
	eventDate := input.EventDate
	if eventDate.IsZero() {
		eventDate = now
	}

	event := &FraudEvent{
		ID:            uuid.New().String(),
		TenantID:      tc.TenantID,
		CheckItemID:   input.CheckItemID,
		FraudType:     input.FraudType,
		Channel:       input.Channel,
		Amount:        input.Amount,
		RoutingNumber: input.RoutingNumber,
		PayeeName:     input.PayeeName,
		AccountNumber: input.AccountNumber,
		CheckNumber:   input.CheckNumber,
		EventDate:     eventDate,
		Description:   input.Description,
		ReportedBy:    tc.UserID,
		CreatedAt:     now,
	}
	if err := s.repo.InsertEvent(ctx, event); err != nil {
		return nil, err
	}
	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionFraudEventCreated,
		ResourceType: "fraud_event",
		ResourceID:   event.ID,
		Description:  "Fraud event recorded",
		Extra: map[string]interface{}{
			"fraud_type":    event.FraudType,
			"check_item_id": event.CheckItemID,
		},
	})

	result := &SubmitResult{Event: event}

	cfg, err := s.repo.GetConfig(ctx, tc)
	if err != nil {
		return nil, err
	}
	if cfg == nil || !cfg.SharingEnabled || cfg.DefaultSharingLevel == SharingPrivate {
		return result, nil
	}

	artifact := s.buildArtifact(tc, event, cfg.DefaultSharingLevel, now)
	if err := s.repo.InsertArtifact(ctx, artifact); err != nil {
		return nil, err
	}
	result.Artifact = artifact
	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionFraudArtifactShared,
		ResourceType: "fraud_shared_artifact",
		ResourceID:   artifact.ID,
		Description:  "Hashed fraud indicators shared to network",
		Extra: map[string]interface{}{
			"sharing_level":  artifact.SharingLevel,
			"pepper_version": artifact.PepperVersion,
		},
	})

	if cfg.DefaultSharingLevel != SharingNetworkMatch {
		return result, nil
	}

	alert, err := s.matchNetwork(ctx, tc, event, artifact, cfg)
	if err != nil {
		return nil, err
	}
	result.Alert = alert
	return result, nil
}

// buildArtifact normalizes and hashes whatever indicators the event
// carries. Indicators that fail normalization are dropped, not fatal:
// the rest of the artifact still shares.
func (s *Service) buildArtifact(tc tenant.Context, event *FraudEvent, level int, now time.Time) *FraudSharedArtifact {
	a := &FraudSharedArtifact{
		ID:            uuid.New().String(),
		TenantID:      tc.TenantID,
		EventID:       event.ID,
		AmountBucket:  AmountBucket(event.Amount),
		MonthBucket:   MonthBucket(event.EventDate),
		FraudType:     event.FraudType,
		Channel:       event.Channel,
		SharingLevel:  level,
		PepperVersion: s.hasher.CurrentVersion(),
		CreatedAt:     now,
	}

	var routing, check string
	if event.RoutingNumber != "" {
		r, err := NormalizeRouting(event.RoutingNumber)
		if err != nil {
			s.log.Warn(tc.TenantID, tc.RequestID, "routing number not shareable", map[string]interface{}{"error": err.Error()})
		} else {
			routing = r
			a.RoutingHash = s.hasher.HashRouting(r)
		}
	}
	if event.PayeeName != "" {
		if p := NormalizePayee(event.PayeeName); p != "" {
			a.PayeeHash = s.hasher.HashPayee(p)
		}
	}
	if event.AccountNumber != "" {
		acct, err := NormalizeAccount(event.AccountNumber)
		if err != nil {
			s.log.Warn(tc.TenantID, tc.RequestID, "account number not shareable", map[string]interface{}{"error": err.Error()})
		} else {
			a.AccountHash = s.hasher.HashAccount(acct)
		}
	}
	if event.CheckNumber != "" {
		if c := NormalizeCheckNumber(event.CheckNumber); c != "" {
			check = c
			a.CheckNumberHash = s.hasher.HashCheckNumber(c)
		}
	}

	a.Fingerprint = s.hasher.Fingerprint(FingerprintInput{
		Routing:     routing,
		Amount:      event.Amount,
		HasAmount:   true,
		Date:        event.EventDate,
		HasDate:     true,
		CheckNumber: check,
	})
	return a
}

// matchNetwork checks each shared indicator against other tenants'
// network-match artifacts and raises one alert covering all hits.
func (s *Service) matchNetwork(ctx context.Context, tc tenant.Context, event *FraudEvent, artifact *FraudSharedArtifact, cfg *TenantFraudConfig) (*NetworkMatchAlert, error) {
	versions := cfg.EligiblePepperVersns
	if len(versions) == 0 {
		versions = s.hasher.MatchVersions()
	}

	indicators := []struct {
		column string
		hash   string
	}{
		{"routing_hash", artifact.RoutingHash},
		{"payee_hash", artifact.PayeeHash},
		{"account_hash", artifact.AccountHash},
		{"check_number_hash", artifact.CheckNumberHash},
		{"fingerprint", artifact.Fingerprint},
	}

	var (
		reasons    []string
		matchCount int
		distinct   int
	)
	for _, ind := range indicators {
		if ind.hash == "" {
			continue
		}
		m, err := s.repo.MatchIndicator(ctx, tc.TenantID, ind.column, ind.hash, versions)
		if err != nil {
			return nil, err
		}
		if m.Count == 0 {
			continue
		}
		reasons = append(reasons, m.Reason)
		matchCount += m.Count
		if m.DistinctTenants > distinct {
			distinct = m.DistinctTenants
		}
	}
	if len(reasons) == 0 {
		return nil, nil
	}

	alert := &NetworkMatchAlert{
		ID:                   uuid.New().String(),
		TenantID:             tc.TenantID,
		EventID:              event.ID,
		CheckItemID:          event.CheckItemID,
		MatchReasons:         reasons,
		MatchCount:           matchCount,
		DistinctInstitutions: distinct,
		Status:               AlertStatusNew,
		CreatedAt:            s.now().UTC(),
	}
	if err := s.repo.InsertAlert(ctx, alert); err != nil {
		return nil, err
	}
	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionFraudMatchAlerted,
		ResourceType: "network_match_alert",
		ResourceID:   alert.ID,
		Description:  "Indicators matched network fraud activity",
		Extra: map[string]interface{}{
			"match_reasons":         reasons,
			"match_count":           matchCount,
			"distinct_institutions": distinct,
		},
	})
	return alert, nil
}

// ListMatches returns the tenant's alerts, optionally filtered by status.
func (s *Service) ListMatches(ctx context.Context, tc tenant.Context, status string) ([]*NetworkMatchAlert, error) {
	return s.repo.ListAlerts(ctx, tc, status)
}

// ResolveMatch acknowledges or dismisses an alert.
func (s *Service) ResolveMatch(ctx context.Context, tc tenant.Context, id, status string) error {
	if status != AlertStatusAcknowledged && status != AlertStatusDismissed {
		return errs.ErrValidation.WithMessage("Status must be %q or %q", AlertStatusAcknowledged, AlertStatusDismissed)
	}
	return s.repo.ResolveAlert(ctx, tc, id, tc.UserID, status, s.now().UTC())
}

// GetConfig returns the tenant's sharing config, defaulting to sharing
// disabled with the hasher's versions eligible.
func (s *Service) GetConfig(ctx context.Context, tc tenant.Context) (*TenantFraudConfig, error) {
	cfg, err := s.repo.GetConfig(ctx, tc)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &TenantFraudConfig{
			TenantID:             tc.TenantID,
			SharingEnabled:       false,
			DefaultSharingLevel:  SharingPrivate,
			EligiblePepperVersns: s.hasher.MatchVersions(),
		}
	}
	return cfg, nil
}

// UpdateConfig writes the tenant's sharing opt-in and level.
func (s *Service) UpdateConfig(ctx context.Context, tc tenant.Context, enabled bool, level int) (*TenantFraudConfig, error) {
	if !validSharingLevel(level) {
		return nil, errs.ErrValidation.WithMessage("Sharing level must be 0, 1, or 2")
	}
	cfg := &TenantFraudConfig{
		TenantID:             tc.TenantID,
		SharingEnabled:       enabled,
		DefaultSharingLevel:  level,
		EligiblePepperVersns: s.hasher.MatchVersions(),
		UpdatedAt:            s.now().UTC(),
	}
	if err := s.repo.UpsertConfig(ctx, cfg); err != nil {
		return nil, err
	}
	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionSystemConfigChanged,
		ResourceType: "tenant_fraud_config",
		ResourceID:   tc.TenantID,
		Description:  "Fraud sharing config updated",
		After: map[string]interface{}{
			"sharing_enabled":       enabled,
			"default_sharing_level": level,
		},
	})
	return cfg, nil
}

// NetworkStats returns the aggregate view, suppressed entirely when
// fewer distinct institutions contributed than the privacy threshold.
func (s *Service) NetworkStats(ctx context.Context, fraudType, monthBucket string) (*NetworkStats, error) {
	if !validFraudType(fraudType) {
		return nil, errs.ErrValidation.WithMessage("Unknown fraud type %q", fraudType)
	}
	if monthBucket == "" {
		monthBucket = MonthBucket(s.now())
	}
	total, distinct, byBucket, err := s.repo.Stats(ctx, fraudType, monthBucket)
	if err != nil {
		return nil, err
	}
	if distinct < s.threshold {
		return &NetworkStats{FraudType: fraudType, MonthBucket: monthBucket, Suppressed: true}, nil
	}
	return &NetworkStats{
		FraudType:            fraudType,
		MonthBucket:          monthBucket,
		ArtifactCount:        total,
		DistinctInstitutions: distinct,
		ByAmountBucket:       byBucket,
	}, nil
}

func (s *Service) auditEvent(ctx context.Context, tc tenant.Context, e audit.Event) {
	if _, err := s.auditor.Record(ctx, tc, e); err != nil {
		s.log.Error(tc.TenantID, tc.RequestID, "audit write failed", map[string]interface{}{
			"action": string(e.Action),
			"error":  err.Error(),
		})
	}
}
