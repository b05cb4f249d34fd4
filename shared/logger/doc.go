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

/*
Package logger provides structured JSON logging with multi-tenant support
for ClearCheck components.

# Overview

The logger outputs single-line JSON to stdout, making logs consumable by
CloudWatch, ELK, or any other log aggregation system.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (server, auth, decision, audit, ...)
  - Instance ID and container name (for distributed tracing)
  - Tenant ID (for multi-tenant isolation)
  - Request ID (for request correlation)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("decision")

Log messages with tenant and request context:

	log.Info("tenant-123", "req-456", "Decision recorded", map[string]interface{}{
	    "item_id": itemID,
	    "action":  "approve",
	})

Tenant-isolation violations and other security-relevant events go to the
dedicated security channel so they can be routed independently:

	logger.Security().Error(tenantID, requestID, "Cross-tenant read refused", fields)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
