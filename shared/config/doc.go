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
Package config loads and validates process configuration for the ClearCheck
platform.

Configuration is layered, later layers overriding earlier ones:

 1. Built-in defaults
 2. Optional YAML file (CLEARCHECK_CONFIG_FILE)
 3. Environment variables
 4. Optional AWS Secrets Manager secret (CLEARCHECK_SECRETS_NAME), for the
    signing keys and the network pepper in production deployments

Loaded configuration is read-only for the life of the process. In any
non-development environment, Load refuses secrets shorter than 32 characters
or matching known placeholder values.
*/
package config
