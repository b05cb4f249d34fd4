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

package decision

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"clearcheck/platform/advisor"
	"clearcheck/platform/audit"
	"clearcheck/platform/auth"
	"clearcheck/platform/checks"
	"clearcheck/platform/entitlement"
	"clearcheck/platform/shared/errs"
	"clearcheck/platform/shared/logger"
	"clearcheck/platform/tenant"
)

// Service runs the decision workflow.
type Service struct {
	db           *sql.DB
	repo         *Repository
	items        *checks.Repository
	entitlements *entitlement.Service
	advisor      advisor.RiskAdvisor
	auditor      *audit.Service
	threshold    float64
	log          *logger.Logger
	now          func() time.Time
}

// NewService creates the decision service.
func NewService(db *sql.DB, items *checks.Repository, entitlements *entitlement.Service, riskAdvisor advisor.RiskAdvisor, auditor *audit.Service, dualControlThreshold float64) *Service {
	return &Service{
		db:           db,
		repo:         NewRepository(db),
		items:        items,
		entitlements: entitlements,
		advisor:      riskAdvisor,
		auditor:      auditor,
		threshold:    dualControlThreshold,
		log:          logger.New("decision"),
		now:          time.Now,
	}
}

// Repo exposes the repository for read endpoints.
func (s *Service) Repo() *Repository { return s.repo }

// Decide records a reviewer decision on an item. When dual control
// applies and the action finalizes the item, the decision is stored as a
// review recommendation and the item parks in pending_dual_control.
func (s *Service) Decide(ctx context.Context, tc tenant.Context, user *auth.User, req Request) (*Result, error) {
	if !validAction(req.Action) {
		return nil, s.failed(ctx, tc, req.CheckItemID, errs.ErrValidation.WithMessage("Unknown action %q", req.Action))
	}

	result, err := s.runDecision(ctx, tc, req.CheckItemID, func(ctx context.Context, tx *sql.Tx, item *checks.CheckItem) (*Decision, string, error) {
		if item.Status == checks.StatusPendingDualControl {
			return nil, "", errs.ErrWorkflow.WithMessage("Item is awaiting dual-control approval")
		}

		dualControl := item.RequiresDualControl || item.Amount >= s.threshold

		decisionType := TypeApprovalDecision
		target, _ := actionTargetStatus(req.Action)
		if dualControl && finalizingAction(req.Action) {
			decisionType = TypeReviewRecommendation
			target = checks.StatusPendingDualControl
		}

		if err := decisionTransition(item.Status, target); err != nil {
			return nil, "", err
		}

		scope := itemScope(item)
		var check *entitlement.CheckResult
		var err error
		if decisionType == TypeApprovalDecision && finalizingAction(req.Action) {
			check, err = s.entitlements.CheckApproval(ctx, tc, user, scope)
		} else {
			check, err = s.entitlements.CheckReview(ctx, tc, user, scope)
		}
		if err != nil {
			return nil, "", err
		}
		if !check.Allowed {
			return nil, "", errs.ErrEntitlementDenied.WithDetails(map[string]interface{}{
				"reasons": check.Reasons,
			})
		}

		if err := s.validateAIAcknowledgment(ctx, tc, req); err != nil {
			return nil, "", err
		}

		d, err := s.sealAndInsert(ctx, tx, tc, item, user.ID, decisionType, req, item.Status, target, dualControl, "")
		if err != nil {
			return nil, "", err
		}

		pendingID := ""
		if target == checks.StatusPendingDualControl {
			pendingID = d.ID
		}
		if err := s.repo.updateItemTx(ctx, tx, tc, item.ID, target, pendingID); err != nil {
			return nil, "", err
		}

		action := audit.ActionDecisionMade
		if target == checks.StatusPendingDualControl {
			action = audit.ActionDualControlPending
		}
		if _, err := s.auditor.RecordTx(ctx, tx, tc, audit.Event{
			Action:       action,
			ResourceType: "check_item",
			ResourceID:   item.ID,
			Description:  "Decision recorded",
			Before:       map[string]interface{}{"status": item.Status},
			After:        map[string]interface{}{"status": target},
			Extra: map[string]interface{}{
				"decision_id":   d.ID,
				"decision_type": d.DecisionType,
				"action":        d.Action,
				"ai_assisted":   d.AIAssisted,
			},
		}); err != nil {
			return nil, "", err
		}
		return d, target, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DualControlApprove finalizes a pending review recommendation. The
// approver must be a different user and hold an approval entitlement
// covering the item.
func (s *Service) DualControlApprove(ctx context.Context, tc tenant.Context, user *auth.User, pendingDecisionID string, req Request) (*Result, error) {
	if !validAction(req.Action) || !finalizingAction(req.Action) && req.Action != ActionEscalate {
		return nil, s.failed(ctx, tc, req.CheckItemID, errs.ErrValidation.WithMessage("Invalid dual-control action %q", req.Action))
	}

	pending, err := s.repo.GetByID(ctx, tc, pendingDecisionID)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, errs.ErrNotFound.WithMessage("Pending decision not found")
	}

	return s.runDecision(ctx, tc, pending.CheckItemID, func(ctx context.Context, tx *sql.Tx, item *checks.CheckItem) (*Decision, string, error) {
		if item.Status != checks.StatusPendingDualControl || item.PendingDualControlDecisionID != pending.ID {
			return nil, "", errs.ErrWorkflow.WithMessage("Item is not awaiting this decision")
		}

		// The two-person rule: same user as the recommendation is a hard
		// reject regardless of role.
		if user.ID == pending.UserID {
			return nil, "", errs.ErrSelfApprovalDenied
		}

		check, err := s.entitlements.CheckApproval(ctx, tc, user, itemScope(item))
		if err != nil {
			return nil, "", err
		}
		if !check.Allowed {
			return nil, "", errs.ErrEntitlementDenied.WithDetails(map[string]interface{}{
				"reasons": check.Reasons,
			})
		}

		target, _ := actionTargetStatus(req.Action)
		if err := decisionTransition(item.Status, target); err != nil {
			return nil, "", err
		}

		if err := s.validateAIAcknowledgment(ctx, tc, req); err != nil {
			return nil, "", err
		}

		d, err := s.sealAndInsert(ctx, tx, tc, item, user.ID, TypeApprovalDecision, req, item.Status, target, true, user.ID)
		if err != nil {
			return nil, "", err
		}

		if err := s.repo.updateItemTx(ctx, tx, tc, item.ID, target, ""); err != nil {
			return nil, "", err
		}

		dualAction := audit.ActionDualControlApproved
		if req.Action == ActionReject || req.Action == ActionReturn {
			dualAction = audit.ActionDualControlRejected
		}
		if _, err := s.auditor.RecordTx(ctx, tx, tc, audit.Event{
			Action:       dualAction,
			ResourceType: "check_item",
			ResourceID:   item.ID,
			Description:  "Dual-control decision finalized",
			Before:       map[string]interface{}{"status": item.Status},
			After:        map[string]interface{}{"status": target},
			Extra: map[string]interface{}{
				"decision_id":           d.ID,
				"review_decision_id":    pending.ID,
				"review_recommendation": pending.Action,
				"action":                d.Action,
			},
		}); err != nil {
			return nil, "", err
		}
		return d, target, nil
	})
}

// Override lets a supervisor replace a prior decision. It bypasses the
// status graph (closed items excepted) and requires a justification and
// an explicit override entitlement.
func (s *Service) Override(ctx context.Context, tc tenant.Context, user *auth.User, overriddenDecisionID string, req Request) (*Result, error) {
	if !validAction(req.Action) {
		return nil, errs.ErrValidation.WithMessage("Unknown action %q", req.Action)
	}
	if req.Notes == "" {
		return nil, errs.ErrValidation.WithMessage("Override requires a justification")
	}

	overridden, err := s.repo.GetByID(ctx, tc, overriddenDecisionID)
	if err != nil {
		return nil, err
	}
	if overridden == nil {
		return nil, errs.ErrNotFound.WithMessage("Decision not found")
	}

	return s.runDecision(ctx, tc, overridden.CheckItemID, func(ctx context.Context, tx *sql.Tx, item *checks.CheckItem) (*Decision, string, error) {
		if item.Status == checks.StatusClosed {
			return nil, "", errs.ErrInvalidStateTransition.WithDetails(map[string]interface{}{
				"from": item.Status,
			})
		}

		check, err := s.entitlements.CheckOverride(ctx, tc, user, itemScope(item))
		if err != nil {
			return nil, "", err
		}
		if !check.Allowed {
			return nil, "", errs.ErrEntitlementDenied.WithDetails(map[string]interface{}{
				"reasons": check.Reasons,
			})
		}

		target, _ := actionTargetStatus(req.Action)
		d, err := s.sealAndInsert(ctx, tx, tc, item, user.ID, TypeOverride, req, item.Status, target, false, "")
		if err != nil {
			return nil, "", err
		}
		if err := s.repo.updateItemTx(ctx, tx, tc, item.ID, target, ""); err != nil {
			return nil, "", err
		}

		if _, err := s.auditor.RecordTx(ctx, tx, tc, audit.Event{
			Action:       audit.ActionDecisionOverridden,
			ResourceType: "check_item",
			ResourceID:   item.ID,
			Description:  "Decision overridden",
			Before:       map[string]interface{}{"status": item.Status, "decision_id": overridden.ID},
			After:        map[string]interface{}{"status": target, "decision_id": d.ID},
			Extra: map[string]interface{}{
				"overridden_decision_id": overridden.ID,
				"action":                 d.Action,
				"justification":          req.Notes,
			},
		}); err != nil {
			return nil, "", err
		}
		return d, target, nil
	})
}

// runDecision is the shared transaction harness: lock the item, run the
// body, commit; on any failure roll back and record DECISION_FAILED in a
// separate transaction.
func (s *Service) runDecision(ctx context.Context, tc tenant.Context, itemID string, body func(context.Context, *sql.Tx, *checks.CheckItem) (*Decision, string, error)) (*Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.ErrDatabase.WithCause(err)
	}
	defer tx.Rollback()

	item, err := s.items.GetForUpdateTx(ctx, tx, tc, itemID)
	if err != nil {
		return nil, s.failed(ctx, tc, itemID, err)
	}
	if item == nil {
		return nil, s.failed(ctx, tc, itemID, errs.ErrNotFound.WithMessage("Check item not found"))
	}

	d, target, err := body(ctx, tx, item)
	if err != nil {
		tx.Rollback()
		return nil, s.failed(ctx, tc, itemID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, s.failed(ctx, tc, itemID, errs.ErrDatabase.WithCause(err))
	}

	return &Result{
		Decision:           d,
		ItemStatus:         target,
		PendingDualControl: target == checks.StatusPendingDualControl,
	}, nil
}

// sealAndInsert builds the evidence snapshot, chains it to the item's
// previous decision, and writes the decision row.
func (s *Service) sealAndInsert(ctx context.Context, tx *sql.Tx, tc tenant.Context, item *checks.CheckItem, userID, decisionType string, req Request, previousStatus, newStatus string, dualControl bool, approverID string) (*Decision, error) {
	previousHash, err := s.repo.latestEvidenceHashTx(ctx, tx, tc, item.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	snapshot := map[string]interface{}{
		"check_item": map[string]interface{}{
			"id":               item.ID,
			"external_item_id": item.ExternalItemID,
			"amount":           item.Amount,
			"currency":         item.Currency,
			"status":           item.Status,
			"risk_level":       item.RiskLevel,
			"queue_id":         item.QueueID,
		},
		"policy_version_id": item.PolicyVersionID,
		"ai_analysis_id":    req.AIAnalysisID,
		"decision": map[string]interface{}{
			"type":         decisionType,
			"action":       req.Action,
			"user_id":      userID,
			"notes":        req.Notes,
			"reason_codes": req.ReasonCodes,
		},
	}
	sealed, _, err := sealEvidence(snapshot, previousHash, now)
	if err != nil {
		return nil, err
	}

	d := &Decision{
		ID:                    uuid.New().String(),
		TenantID:              tc.TenantID,
		CheckItemID:           item.ID,
		DecisionType:          decisionType,
		Action:                req.Action,
		UserID:                userID,
		PreviousStatus:        previousStatus,
		NewStatus:             newStatus,
		IsDualControlRequired: dualControl,
		Notes:                 req.Notes,
		ReasonCodes:           req.ReasonCodes,
		AIAssisted:            req.AIAssisted,
		AIAnalysisID:          req.AIAnalysisID,
		EvidenceSnapshot:      sealed,
		DualControlApproverID: approverID,
		CreatedAt:             now,
	}
	if err := s.repo.insertTx(ctx, tx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// validateAIAcknowledgment enforces the advisory guardrail: an
// ai_assisted decision must cite a stored analysis, and any flags that
// analysis raised must be acknowledged.
func (s *Service) validateAIAcknowledgment(ctx context.Context, tc tenant.Context, req Request) error {
	if !req.AIAssisted {
		return nil
	}
	if req.AIAnalysisID == "" {
		return errs.ErrValidation.WithMessage("ai_assisted decisions must reference an analysis")
	}
	analysis, err := s.advisor.GetAnalysis(ctx, tc, req.AIAnalysisID)
	if err != nil {
		return err
	}
	if analysis == nil {
		return errs.ErrNotFound.WithMessage("Referenced analysis not found")
	}
	reviewed := make(map[string]bool, len(req.AIFlagsReviewed))
	for _, flag := range req.AIFlagsReviewed {
		reviewed[flag] = true
	}
	for _, flag := range analysis.Flags {
		if !reviewed[flag] {
			return errs.ErrAIFlagsNotAcknowledged.WithDetails(map[string]interface{}{
				"unreviewed_flag": flag,
			})
		}
	}
	return nil
}

// failed records a non-chained DECISION_FAILED audit entry in its own
// transaction and passes the original error through.
func (s *Service) failed(ctx context.Context, tc tenant.Context, itemID string, cause error) error {
	extra := map[string]interface{}{"error": cause.Error()}
	var typed *errs.Error
	if errors.As(cause, &typed) {
		extra["code"] = typed.Code
	}
	if _, err := s.auditor.Record(ctx, tc, audit.Event{
		Action:       audit.ActionDecisionFailed,
		ResourceType: "check_item",
		ResourceID:   itemID,
		Description:  "Decision rejected",
		Extra:        extra,
	}); err != nil {
		s.log.Error(tc.TenantID, tc.RequestID, "DECISION_FAILED audit not recorded", map[string]interface{}{
			"item_id": itemID,
			"error":   err.Error(),
		})
	}
	return cause
}

// VerifyItemChain verifies the evidence chain across an item's decisions.
func (s *Service) VerifyItemChain(ctx context.Context, tc tenant.Context, itemID string) ([]ChainBreak, error) {
	decisions, err := s.repo.ListForItem(ctx, tc, itemID)
	if err != nil {
		return nil, err
	}
	return VerifyDecisionChain(decisions), nil
}

func itemScope(item *checks.CheckItem) entitlement.ItemScope {
	return entitlement.ItemScope{
		TenantID:    item.TenantID,
		Amount:      item.Amount,
		AccountType: item.AccountType,
		QueueID:     item.QueueID,
		RiskLevel:   item.RiskLevel,
	}
}
