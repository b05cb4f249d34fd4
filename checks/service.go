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

package checks

import (
	"context"
	"time"

	"clearcheck/platform/advisor"
	"clearcheck/platform/audit"
	"clearcheck/platform/policy"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/logger"
	"clearcheck/platform/tenant"
)

// Service owns ingest and the item read side.
type Service struct {
	repo     *Repository
	provider CheckItemProvider
	engine   *policy.Engine
	advisor  advisor.RiskAdvisor
	auditor  *audit.Service
	slaHours int
	log      *logger.Logger
	now      func() time.Time
}

// NewService creates the check item service.
func NewService(repo *Repository, provider CheckItemProvider, engine *policy.Engine, riskAdvisor advisor.RiskAdvisor, auditor *audit.Service, slaHours int) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		engine:   engine,
		advisor:  riskAdvisor,
		auditor:  auditor,
		slaHours: slaHours,
		log:      logger.New("checks"),
		now:      time.Now,
	}
}

// Repo exposes the repository for the decision flow.
func (s *Service) Repo() *Repository { return s.repo }

// SyncPresentedItems pulls presented items from the provider, derives
// account context, applies policy and advisory scoring, and upserts each
// item. One failing item does not abort the run.
func (s *Service) SyncPresentedItems(ctx context.Context, tc tenant.Context, amountMin float64) (*SyncResult, error) {
	start := s.now()

	presented, err := s.provider.FetchPresentedItems(ctx, tc.TenantID, amountMin)
	if err != nil {
		return nil, errs.ErrExternalService.WithCause(err)
	}

	result := &SyncResult{Fetched: len(presented)}
	for _, p := range presented {
		item, err := s.ingestOne(ctx, tc, p)
		if err != nil {
			result.Failed++
			s.log.Error(tc.TenantID, tc.RequestID, "Item ingest failed", map[string]interface{}{
				"external_item_id": p.ExternalItemID,
				"error":            err.Error(),
			})
			continue
		}
		result.ItemIDs = append(result.ItemIDs, item.id)
		if item.created {
			result.Created++
		} else {
			result.Updated++
		}
	}
	result.Duration = s.now().Sub(start).String()

	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionItemSyncCompleted,
		ResourceType: "check_item",
		Description:  "Presented item sync completed",
		Extra: map[string]interface{}{
			"fetched": result.Fetched,
			"created": result.Created,
			"updated": result.Updated,
			"failed":  result.Failed,
		},
	})
	return result, nil
}

type ingested struct {
	id      string
	created bool
}

func (s *Service) ingestOne(ctx context.Context, tc tenant.Context, p *PresentedItem) (*ingested, error) {
	item := &CheckItem{
		TenantID:       tc.TenantID,
		ExternalItemID: p.ExternalItemID,
		Amount:         p.Amount,
		Currency:       p.Currency,
		AccountID:      p.AccountID,
		AccountMasked:  p.AccountMasked,
		RoutingNumber:  p.RoutingNumber,
		CheckNumber:    p.CheckNumber,
		PresentedDate:  p.PresentedDate,
		CheckDate:      p.CheckDate,
		MICRLine:       p.MICRLine,
		PayeeName:      p.PayeeName,
		ItemType:       p.ItemType,
		UpstreamFlags:  p.UpstreamFlags,
		Status:         StatusNew,
		RiskLevel:      policy.RiskLow,
	}

	accountContext, err := s.provider.FetchAccountContext(ctx, tc.TenantID, p.AccountID)
	if err != nil {
		s.log.Warn(tc.TenantID, tc.RequestID, "Account context unavailable", map[string]interface{}{
			"account_id": p.AccountID,
			"error":      err.Error(),
		})
	}
	s.applyAccountContext(item, accountContext)
	s.deriveFields(ctx, item)

	facts := itemFacts(item)
	evaluation, err := s.engine.Evaluate(ctx, tc, item.AccountType, facts)
	if err != nil {
		return nil, err
	}
	item.RiskLevel = evaluation.RiskLevel
	item.RequiresDualControl = evaluation.RequiresDualControl
	if evaluation.RequiresDualControl {
		item.DualControlReason = "policy"
	}
	item.QueueID = evaluation.RoutingQueueID
	item.PolicyVersionID = evaluation.PolicyVersionID
	item.Priority = riskPriority(item.RiskLevel)

	due := item.PresentedDate.Add(time.Duration(s.slaHours) * time.Hour)
	item.SLADueAt = &due

	created, err := s.repo.Upsert(ctx, item)
	if err != nil {
		return nil, err
	}

	if s.advisor != nil {
		if analysis, err := s.advisor.Analyze(ctx, tc, item.ID, facts); err == nil {
			if err := s.repo.UpdateAdvisory(ctx, tc, item.ID, analysis.ID,
				analysis.Recommendation, analysis.Explanation, analysis.Confidence); err != nil {
				s.log.Error(tc.TenantID, tc.RequestID, "Advisory copy failed", map[string]interface{}{
					"item_id": item.ID, "error": err.Error(),
				})
			}
		} else {
			s.log.Warn(tc.TenantID, tc.RequestID, "Advisory analysis failed", map[string]interface{}{
				"item_id": item.ID, "error": err.Error(),
			})
		}
	}

	if created {
		s.auditEvent(ctx, tc, audit.Event{
			Action:       audit.ActionItemIngested,
			ResourceType: "check_item",
			ResourceID:   item.ID,
			Description:  "Check item ingested",
			After:        item,
			Extra: map[string]interface{}{
				"external_item_id":      item.ExternalItemID,
				"amount":                item.Amount,
				"risk_level":            item.RiskLevel,
				"requires_dual_control": item.RequiresDualControl,
			},
		})
	}
	return &ingested{id: item.ID, created: created}, nil
}

func (s *Service) applyAccountContext(item *CheckItem, accountContext *AccountContext) {
	if accountContext == nil {
		return
	}
	item.AccountType = accountContext.AccountType
	item.AccountTenureDays = accountContext.TenureDays
	item.CurrentBalance = accountContext.CurrentBalance
	item.AvailableBalance = accountContext.AvailableBalance
	item.AvgCheckAmount30d = accountContext.AvgCheckAmount30d
	item.MaxCheckAmount90d = accountContext.MaxCheckAmount90d
	item.TotalCheckAmount7d = accountContext.TotalCheck7d
	item.CheckCount7d = accountContext.CheckCount7d
	item.ReturnCount90d = accountContext.ReturnCount90d
	item.OverdraftCount90d = accountContext.OverdraftCount90d
	item.NSFCount90d = accountContext.NSFCount90d
	item.ImageQualityScore = accountContext.ImageQuality
}

// deriveFields computes staleness and duplicate-check-number detection.
func (s *Service) deriveFields(ctx context.Context, item *CheckItem) {
	if item.CheckDate != nil {
		days := s.now().Sub(*item.CheckDate).Hours() / 24
		item.DaysSinceCheckDate = &days
	}
	if item.CheckNumber != "" {
		count, err := s.repo.CountDuplicateChecks(ctx, item.TenantID, item.AccountID, item.CheckNumber, item.ExternalItemID)
		if err == nil {
			v := float64(count)
			item.DuplicateCheckCount = &v
		}
	}
}

// itemFacts projects the stored item into the closed fact set policy
// rules and the advisor read.
func itemFacts(item *CheckItem) policy.Facts {
	return policy.Facts{
		Amount:              item.Amount,
		Currency:            item.Currency,
		ItemType:            item.ItemType,
		AccountType:         item.AccountType,
		CheckNumber:         item.CheckNumber,
		RoutingNumber:       item.RoutingNumber,
		AccountTenureDays:   item.AccountTenureDays,
		CurrentBalance:      item.CurrentBalance,
		AvailableBalance:    item.AvailableBalance,
		AvgCheckAmount30d:   item.AvgCheckAmount30d,
		MaxCheckAmount90d:   item.MaxCheckAmount90d,
		TotalCheckAmount7d:  item.TotalCheckAmount7d,
		CheckCount7d:        item.CheckCount7d,
		ReturnCount90d:      item.ReturnCount90d,
		OverdraftCount90d:   item.OverdraftCount90d,
		NSFCount90d:         item.NSFCount90d,
		ImageQualityScore:   item.ImageQualityScore,
		DaysSinceCheckDate:  item.DaysSinceCheckDate,
		DuplicateCheckCount: item.DuplicateCheckCount,
		UpstreamFlags:       item.UpstreamFlags,
	}
}

func riskPriority(level string) int {
	switch level {
	case policy.RiskCritical:
		return 100
	case policy.RiskHigh:
		return 75
	case policy.RiskMedium:
		return 50
	default:
		return 25
	}
}

// Get loads the item detail and records the view (audit entry plus an
// open view session).
func (s *Service) Get(ctx context.Context, tc tenant.Context, id string) (*CheckItem, *ItemView, error) {
	item, err := s.repo.GetByID(ctx, tc, id)
	if err != nil {
		return nil, nil, err
	}
	if item == nil {
		return nil, nil, errs.ErrNotFound.WithMessage("Check item not found")
	}

	view, err := s.repo.StartItemView(ctx, tc, item.ID)
	if err != nil {
		s.log.Error(tc.TenantID, tc.RequestID, "View session not recorded", map[string]interface{}{
			"item_id": item.ID, "error": err.Error(),
		})
		view = nil
	}

	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionItemViewed,
		ResourceType: "check_item",
		ResourceID:   item.ID,
		Description:  "Check item viewed",
	})
	return item, view, nil
}

// List returns one filtered page.
func (s *Service) List(ctx context.Context, tc tenant.Context, params ListParams) (*ListResult, error) {
	return s.repo.List(ctx, tc, params)
}

// Adjacent returns prev/next item IDs under the caller's filter.
func (s *Service) Adjacent(ctx context.Context, tc tenant.Context, itemID string, params ListParams) (*AdjacentResult, error) {
	return s.repo.Adjacent(ctx, tc, itemID, params)
}

// Assign sets reviewer, approver, or queue and audits the change.
func (s *Service) Assign(ctx context.Context, tc tenant.Context, itemID, reviewerID, approverID, queueID string) error {
	if reviewerID == "" && approverID == "" && queueID == "" {
		return errs.ErrValidation.WithMessage("Nothing to assign")
	}
	if err := s.repo.UpdateAssignment(ctx, tc, itemID, reviewerID, approverID, queueID); err != nil {
		return err
	}
	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionItemAssigned,
		ResourceType: "check_item",
		ResourceID:   itemID,
		Description:  "Check item assigned",
		Extra: map[string]interface{}{
			"reviewer_id": reviewerID,
			"approver_id": approverID,
			"queue_id":    queueID,
		},
	})
	return nil
}

// UpdateStatus is the admin direct-write path. Terminal states stay
// terminal; transitions outside the machine are rejected.
func (s *Service) UpdateStatus(ctx context.Context, tc tenant.Context, itemID, status string) error {
	item, err := s.repo.GetByID(ctx, tc, itemID)
	if err != nil {
		return err
	}
	if item == nil {
		return errs.ErrNotFound.WithMessage("Check item not found")
	}
	if IsTerminal(item.Status) {
		return errs.ErrInvalidStateTransition.WithDetails(map[string]interface{}{
			"from": item.Status, "to": status,
		})
	}
	if !validStatus(status) {
		return errs.ErrValidation.WithMessage("Unknown status %q", status)
	}
	if err := s.repo.UpdateStatus(ctx, tc, itemID, status); err != nil {
		return err
	}
	s.auditEvent(ctx, tc, audit.Event{
		Action:       audit.ActionItemStatusChanged,
		ResourceType: "check_item",
		ResourceID:   itemID,
		Description:  "Check item status changed",
		Before:       map[string]interface{}{"status": item.Status},
		After:        map[string]interface{}{"status": status},
	})
	return nil
}

// SweepSLABreaches flags overdue items and audits each breach.
func (s *Service) SweepSLABreaches(ctx context.Context, tc tenant.Context) (int, error) {
	ids, err := s.repo.MarkSLABreaches(ctx, tc, s.now())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.auditEvent(ctx, tc, audit.Event{
			Action:       audit.ActionItemSLABreached,
			ResourceType: "check_item",
			ResourceID:   id,
			Description:  "SLA due time passed",
		})
	}
	return len(ids), nil
}

// EndView closes a view session.
func (s *Service) EndView(ctx context.Context, tc tenant.Context, viewID string, imageViewed, imageZoomed bool) error {
	return s.repo.EndItemView(ctx, tc, viewID, imageViewed, imageZoomed)
}

func validStatus(status string) bool {
	switch status {
	case StatusNew, StatusInReview, StatusPendingDualControl, StatusApproved,
		StatusReturned, StatusRejected, StatusEscalated, StatusClosed:
		return true
	}
	return false
}

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
