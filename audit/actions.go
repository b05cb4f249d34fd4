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

package audit

// Action is the closed enum of auditable events. New values may be added;
// existing values are never renamed because they are part of stored chains.
type Action string

// Authentication.
const (
	ActionLoginSuccess       Action = "LOGIN_SUCCESS"
	ActionLoginFailed        Action = "LOGIN_FAILED"
	ActionLogout             Action = "LOGOUT"
	ActionTokenRefreshed     Action = "TOKEN_REFRESHED"
	ActionMFAChallengeFailed Action = "MFA_CHALLENGE_FAILED"
	ActionAccountLocked      Action = "ACCOUNT_LOCKED"
	ActionPasswordChanged    Action = "PASSWORD_CHANGED"
	ActionSessionRevoked     Action = "SESSION_REVOKED"
)

// Authorization.
const (
	ActionPermissionDenied  Action = "AUTH_PERMISSION_DENIED"
	ActionAccessCrossTenant Action = "ACCESS_CROSS_TENANT"
)

// Item lifecycle.
const (
	ActionItemIngested      Action = "ITEM_INGESTED"
	ActionItemViewed        Action = "ITEM_VIEWED"
	ActionItemAssigned      Action = "ITEM_ASSIGNED"
	ActionItemStatusChanged Action = "ITEM_STATUS_CHANGED"
	ActionItemSLABreached   Action = "ITEM_SLA_BREACHED"
	ActionItemSyncCompleted Action = "ITEM_SYNC_COMPLETED"
)

// Decisions and dual control.
const (
	ActionDecisionMade        Action = "DECISION_MADE"
	ActionDecisionFailed      Action = "DECISION_FAILED"
	ActionDecisionOverridden  Action = "DECISION_OVERRIDDEN"
	ActionDecisionReversed    Action = "DECISION_REVERSED"
	ActionDualControlPending  Action = "DUAL_CONTROL_PENDING"
	ActionDualControlApproved Action = "DUAL_CONTROL_APPROVED"
	ActionDualControlRejected Action = "DUAL_CONTROL_REJECTED"
)

// Image access.
const (
	ActionImageViewed       Action = "IMAGE_VIEWED"
	ActionImageZoomed       Action = "IMAGE_ZOOMED"
	ActionImageTokenMinted  Action = "IMAGE_TOKEN_MINTED"
	ActionImageTokenUsed    Action = "IMAGE_TOKEN_USED"
	ActionImageTokenExpired Action = "IMAGE_TOKEN_EXPIRED"
	ActionImageTokenInvalid Action = "IMAGE_TOKEN_INVALID"
)

// Admin mutations.
const (
	ActionUserCreated        Action = "USER_CREATED"
	ActionUserUpdated        Action = "USER_UPDATED"
	ActionRoleAssigned       Action = "ROLE_ASSIGNED"
	ActionPolicyCreated      Action = "POLICY_CREATED"
	ActionPolicyUpdated      Action = "POLICY_UPDATED"
	ActionPolicyActivated    Action = "POLICY_ACTIVATED"
	ActionPolicyDeleted      Action = "POLICY_DELETED"
	ActionEntitlementGranted Action = "ENTITLEMENT_GRANTED"
	ActionEntitlementRevoked Action = "ENTITLEMENT_REVOKED"
)

// Exports.
const (
	ActionExportRequested Action = "EXPORT_REQUESTED"
	ActionExportCompleted Action = "EXPORT_COMPLETED"
)

// AI advisory. Every inference and every human disposition of an advisory
// result is audited.
const (
	ActionAIInferenceRequested       Action = "AI_INFERENCE_REQUESTED"
	ActionAIInferenceCompleted       Action = "AI_INFERENCE_COMPLETED"
	ActionAIInferenceFailed          Action = "AI_INFERENCE_FAILED"
	ActionAIRecommendationAccepted   Action = "AI_RECOMMENDATION_ACCEPTED"
	ActionAIRecommendationRejected   Action = "AI_RECOMMENDATION_REJECTED"
	ActionAIRecommendationOverridden Action = "AI_RECOMMENDATION_OVERRIDDEN"
)

// Security.
const (
	ActionUnauthorizedAccess Action = "UNAUTHORIZED_ACCESS"
	ActionSuspiciousActivity Action = "SUSPICIOUS_ACTIVITY"
	ActionRateLimitExceeded  Action = "RATE_LIMIT_EXCEEDED"
)

// Fraud intelligence.
const (
	ActionFraudEventCreated   Action = "FRAUD_EVENT_CREATED"
	ActionFraudArtifactShared Action = "FRAUD_ARTIFACT_SHARED"
	ActionFraudMatchAlerted   Action = "FRAUD_MATCH_ALERTED"
)

// System.
const (
	ActionSystemStarted       Action = "SYSTEM_STARTED"
	ActionSystemConfigChanged Action = "SYSTEM_CONFIG_CHANGED"
)
