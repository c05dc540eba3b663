// Copyright 2019 The Cockroach Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package contract

import (
	"fmt"

	"github.com/pkg/errors"
)

// MalformedClauseError is returned when a clause refers to a spec case
// that does not exist, or a spec case is declared twice.
type MalformedClauseError struct {
	Index  int
	Reason string
}

func (e *MalformedClauseError) Error() string {
	return fmt.Sprintf("malformed clause in spec case %d: %s", e.Index, e.Reason)
}

func malformed(index int, reason string) error {
	return errors.WithStack(&MalformedClauseError{Index: index, Reason: reason})
}

// UnresolvedOldReferenceError is returned when a postcondition uses
// an old-state token that no capture declares for its spec case.
type UnresolvedOldReferenceError struct {
	Index int
	Token string
}

func (e *UnresolvedOldReferenceError) Error() string {
	return fmt.Sprintf("spec case %d: old reference %q has no capture", e.Index, e.Token)
}

// UnknownVisibilityError is returned for a Visibility outside of the
// four recognized tiers.
type UnknownVisibilityError struct {
	Visibility Visibility
}

func (e *UnknownVisibilityError) Error() string {
	return fmt.Sprintf("unknown visibility %d", int(e.Visibility))
}

// ContractCompositionError is returned when an inherited contract
// cannot be merged into the contract of an overriding method.
type ContractCompositionError struct {
	Override  string
	Inherited string
	Reason    string
}

func (e *ContractCompositionError) Error() string {
	return fmt.Sprintf("cannot compose contract of %s into %s: %s",
		e.Inherited, e.Override, e.Reason)
}

// UnsupportedGenerationModeError is returned when there is no way to
// generate a wrapper for a method in the requested mode. It signals
// a missing feature, not invalid input.
type UnsupportedGenerationModeError struct {
	Method string
	Mode   Mode
	Reason string
}

func (e *UnsupportedGenerationModeError) Error() string {
	return fmt.Sprintf("%s: %s is not supported in %s mode", e.Method, e.Reason, e.Mode)
}
