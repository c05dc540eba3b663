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

// Package rac contains the runtime support that generated contract
// wrappers call into. It is deliberately small: a wrapper checks a
// condition, guards a single call and passes contract violations
// through to its caller.
package rac

import (
	"fmt"
	"reflect"

	"github.com/pkg/errors"
)

// A Kind identifies a class of contract violation. There is exactly
// one Kind for each combination of clause kind, visibility tier and
// instrumentation family.
type Kind int

// The client-aware kinds are split by visibility. All other
// instrumentation modes use the undifferentiated kinds.
const (
	EntryPublicPrecondition Kind = iota + 1
	EntryProtectedPrecondition
	EntryDefaultPrecondition
	EntryPrivatePrecondition
	ExitPublicNormalPostcondition
	ExitProtectedNormalPostcondition
	ExitDefaultNormalPostcondition
	ExitPrivateNormalPostcondition
	ExitPublicExceptionalPostcondition
	ExitProtectedExceptionalPostcondition
	ExitDefaultExceptionalPostcondition
	ExitPrivateExceptionalPostcondition

	InternalPrecondition
	ExitNormalPostcondition
	ExitExceptionalPostcondition

	// Unreachable is raised when control reaches code that a
	// contract declared to be unreachable.
	Unreachable
)

var kindNames = [...]string{
	EntryPublicPrecondition:               "EntryPublicPrecondition",
	EntryProtectedPrecondition:            "EntryProtectedPrecondition",
	EntryDefaultPrecondition:              "EntryDefaultPrecondition",
	EntryPrivatePrecondition:              "EntryPrivatePrecondition",
	ExitPublicNormalPostcondition:         "ExitPublicNormalPostcondition",
	ExitProtectedNormalPostcondition:      "ExitProtectedNormalPostcondition",
	ExitDefaultNormalPostcondition:        "ExitDefaultNormalPostcondition",
	ExitPrivateNormalPostcondition:        "ExitPrivateNormalPostcondition",
	ExitPublicExceptionalPostcondition:    "ExitPublicExceptionalPostcondition",
	ExitProtectedExceptionalPostcondition: "ExitProtectedExceptionalPostcondition",
	ExitDefaultExceptionalPostcondition:   "ExitDefaultExceptionalPostcondition",
	ExitPrivateExceptionalPostcondition:   "ExitPrivateExceptionalPostcondition",
	InternalPrecondition:                  "InternalPrecondition",
	ExitNormalPostcondition:               "ExitNormalPostcondition",
	ExitExceptionalPostcondition:          "ExitExceptionalPostcondition",
	Unreachable:                           "Unreachable",
}

// String returns the name of the constant, which is also how
// generated code refers to it.
func (k Kind) String() string {
	if k > 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k > 0 && int(k) < len(kindNames)
}

// Entry reports whether k is checked on method entry.
func (k Kind) Entry() bool {
	switch k {
	case EntryPublicPrecondition, EntryProtectedPrecondition,
		EntryDefaultPrecondition, EntryPrivatePrecondition, InternalPrecondition:
		return true
	default:
		return false
	}
}

// A Violation is raised, by panicking, when a contract check fails.
type Violation struct {
	Kind    Kind
	Message string
	cause   error
}

var _ error = &Violation{}

// NewViolation constructs a Violation without an underlying cause.
func NewViolation(kind Kind, msg string) *Violation {
	return &Violation{Kind: kind, Message: msg}
}

// Error implements error.
func (v *Violation) Error() string {
	if v.cause != nil {
		return fmt.Sprintf("%s: %s: %v", v.Kind, v.Message, v.cause)
	}
	return fmt.Sprintf("%s: %s", v.Kind, v.Message)
}

// Cause returns the signal that was being processed when the
// violation was detected, if any.
func (v *Violation) Cause() error { return v.cause }

// Unwrap is the go1.13 equivalent of Cause.
func (v *Violation) Unwrap() error { return v.cause }

// Check panics with a Violation of the given kind if ok is false.
func Check(ok bool, kind Kind, msg string) {
	if !ok {
		panic(&Violation{Kind: kind, Message: msg})
	}
}

// CheckCause is like Check, but records the signal raised by the
// checked operation as the cause of the violation.
func CheckCause(ok bool, kind Kind, caught interface{}, msg string) {
	if !ok {
		panic(&Violation{Kind: kind, Message: msg, cause: asError(caught)})
	}
}

// Guard invokes fn exactly once. It returns nil if fn returned
// normally, or the value fn panicked with.
func Guard(fn func()) (caught interface{}) {
	defer func() {
		if x := recover(); x != nil {
			caught = x
		}
	}()
	fn()
	return nil
}

// Propagate re-panics with caught if it is a contract violation.
// Violations raised by nested checked calls are never subject to the
// exceptional postconditions of an enclosing method.
func Propagate(caught interface{}) {
	if v, ok := caught.(*Violation); ok {
		panic(v)
	}
}

// NotReached panics with an Unreachable violation.
func NotReached(where string) {
	panic(&Violation{Kind: Unreachable, Message: where + ": unreachable code reached"})
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// As selects a caught signal of type T. Error values are unwrapped,
// so a wrapped *MyError still matches As[*MyError].
func As[T any](caught interface{}) (T, bool) {
	if t, ok := caught.(T); ok {
		return t, true
	}
	var zero T
	err, ok := caught.(error)
	if !ok {
		return zero, false
	}
	target := new(T)
	// errors.As panics unless the target is an interface or an error.
	if typ := reflect.TypeOf(target).Elem(); typ.Kind() != reflect.Interface && !typ.Implements(errorType) {
		return zero, false
	}
	if errors.As(err, target) {
		return *target, true
	}
	return zero, false
}

func asError(caught interface{}) error {
	switch t := caught.(type) {
	case nil:
		return nil
	case error:
		return t
	default:
		return errors.Errorf("%v", t)
	}
}
