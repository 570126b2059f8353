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
Package logger provides structured JSON logging for the identity tool
gateway.

# Overview

Every entry is a single JSON object written through the standard library
log package (stderr by default). Entries carry:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (dispatch, ledger, http, ...)
  - Instance ID and container name
  - Account reference ("guest" for anonymous calls)
  - Request ID (the tool call id when one exists)
  - Custom fields

# Usage

	log := logger.New("dispatch")

	log.Info("acct:42", callID, "Tool call settled", map[string]interface{}{
	    "tool":    "get_name",
	    "charged": 2,
	})

	log.ErrorWithCode("acct:42", callID, "Reservation failed", -32032, err, nil)

# Levels

LOG_LEVEL selects the minimum level written (DEBUG, INFO, WARN, ERROR).
Unset or unknown values default to INFO.

# Stdio mode

The stdio transport owns stdout for protocol frames, so log output must
never be redirected there. Leave the standard logger on stderr.
*/
package logger
