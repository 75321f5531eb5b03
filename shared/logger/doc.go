// Copyright 2025 AxonFlow
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
Package logger provides structured JSON logging for CreditLens components.

Each log entry is a single JSON line carrying the timestamp, level, component,
instance and container identifiers, the run id of the orchestration run that
produced it, a message and optional fields:

	log := logger.New("pipeline")
	log.Info(runID, "tool completed", map[string]interface{}{
	    "tool":   "credit_scoring",
	    "status": "complete",
	})

Entries below the level named by LOG_LEVEL (DEBUG, INFO, WARN, ERROR; default
INFO) are dropped. INSTANCE_ID names the deployment instance.

Logger instances are safe for concurrent use.
*/
package logger
