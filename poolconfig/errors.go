// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package poolconfig

import (
	"errors"
	"strings"
)

// ErrConfiguration matches any *ConfigError via [errors.Is].
var ErrConfiguration = errors.New("invalid pool configuration")

// ViolationKind classifies a single configuration problem.
type ViolationKind int

const (
	KindUnknownOption ViolationKind = iota + 1
	KindWrongType
	KindOutOfRange
	KindInvalidDestination
)

func (k ViolationKind) String() string {
	switch k {
	case KindUnknownOption:
		return "unknown option"
	case KindWrongType:
		return "wrong type"
	case KindOutOfRange:
		return "out of range"
	case KindInvalidDestination:
		return "invalid destination"
	default:
		return "unknown"
	}
}

// Violation describes one problem found while validating a configuration.
type Violation struct {
	// Destination is the descriptor as it appeared in the input. It is
	// empty when a single option set was validated on its own.
	Destination string
	// Option is the offending option name. It is empty for destination
	// problems.
	Option string
	Kind   ViolationKind
	Detail string
}

func (v Violation) String() string {
	var sb strings.Builder
	if v.Destination != "" {
		sb.WriteString(v.Destination)
		sb.WriteString(": ")
	}
	if v.Option != "" {
		sb.WriteString("option ")
		sb.WriteString(`"` + v.Option + `": `)
	}
	sb.WriteString(v.Kind.String())
	if v.Detail != "" && v.Detail != v.Kind.String() {
		sb.WriteString(": ")
		sb.WriteString(v.Detail)
	}
	return sb.String()
}

// ConfigError is returned when a configuration fails validation. It lists
// every violation found.
type ConfigError struct {
	Violations []Violation
}

func (e *ConfigError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return ErrConfiguration.Error() + ": " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrConfiguration) true for any *ConfigError.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration //nolint:errorlint,goerr113
}
