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
	"clearcheck/platform/checks"
	"clearcheck/platform/shared/errs"
)

// allowedTransitions is the closed status graph. Anything absent is
// rejected.
var allowedTransitions = map[string]map[string]bool{
	checks.StatusNew: {
		checks.StatusInReview: true,
	},
	checks.StatusInReview: {
		checks.StatusApproved:           true,
		checks.StatusReturned:           true,
		checks.StatusRejected:           true,
		checks.StatusEscalated:          true,
		checks.StatusPendingDualControl: true,
	},
	checks.StatusPendingDualControl: {
		checks.StatusApproved:  true,
		checks.StatusReturned:  true,
		checks.StatusRejected:  true,
		checks.StatusEscalated: true,
	},
	checks.StatusEscalated: {
		checks.StatusInReview:           true,
		checks.StatusPendingDualControl: true,
		checks.StatusApproved:           true,
		checks.StatusReturned:           true,
		checks.StatusRejected:           true,
	},
}

// CanTransition reports whether the status graph permits from -> to.
func CanTransition(from, to string) bool {
	return allowedTransitions[from][to]
}

// validateTransition returns the taxonomy error for a forbidden move.
func validateTransition(from, to string) error {
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return errs.ErrInvalidStateTransition.WithDetails(map[string]interface{}{
			"from": from,
			"to":   to,
		})
	}
	return nil
}

// decisionTransition validates the move a decision makes. A decision on
// a new item implicitly enters review first, so it validates against the
// in_review edge set.
func decisionTransition(from, to string) error {
	effective := from
	if from == checks.StatusNew {
		effective = checks.StatusInReview
	}
	return validateTransition(effective, to)
}

// actionTargetStatus maps a decision action to the item status it
// produces when finalized.
func actionTargetStatus(action string) (string, bool) {
	switch action {
	case ActionApprove:
		return checks.StatusApproved, true
	case ActionReturn:
		return checks.StatusReturned, true
	case ActionReject:
		return checks.StatusRejected, true
	case ActionEscalate:
		return checks.StatusEscalated, true
	case ActionHold, ActionNeedsMoreInfo:
		return checks.StatusInReview, true
	}
	return "", false
}

// finalizingAction reports whether the action resolves the item and so
// participates in dual control.
func finalizingAction(action string) bool {
	switch action {
	case ActionApprove, ActionReturn, ActionReject:
		return true
	}
	return false
}
