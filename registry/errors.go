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

package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound is returned when no definition has the requested name
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolDisabled is returned when invoking a definition that is switched off
	ErrToolDisabled = errors.New("tool is disabled")

	// ErrDuplicateTool is returned when two definitions share a name
	ErrDuplicateTool = errors.New("duplicate tool name")

	// ErrInvalidDefinition is returned for malformed definitions
	ErrInvalidDefinition = errors.New("invalid tool definition")
)

// ArgumentError reports a tool argument that failed validation
type ArgumentError struct {
	Param  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Param, e.Reason)
}
