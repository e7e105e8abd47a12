// Copyright (c) 2018 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package topology

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError reports a topology description that cannot be built:
// unknown node model, dangling link endpoint, duplicate names, invalid
// parameters or an exhausted address space.
type ConfigurationError struct {
	Reason string
}

// Error returns the message in the form "Configuration Error: <reason>".
func (e *ConfigurationError) Error() string {
	return "Configuration Error: " + e.Reason
}

// ResourceNotFoundError reports a topology file that does not exist.
type ResourceNotFoundError struct {
	Name string
	Path string
}

func (e *ResourceNotFoundError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("File not found '%s'", e.Name)
	}
	return fmt.Sprintf("File not found '%s' (looked in %s)", e.Name, e.Path)
}

// NewConfigurationError builds a ConfigurationError from a format string.
func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// IsConfigurationError returns true if the cause of err is a ConfigurationError.
func IsConfigurationError(err error) bool {
	_, ok := errors.Cause(err).(*ConfigurationError)
	return ok
}

// IsResourceNotFound returns true if the cause of err is a ResourceNotFoundError.
func IsResourceNotFound(err error) bool {
	_, ok := errors.Cause(err).(*ResourceNotFoundError)
	return ok
}
