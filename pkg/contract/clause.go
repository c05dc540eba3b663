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
	"strings"
)

// ClauseKind enumerates the closed set of clause variants.
type ClauseKind int

const (
	KindPrecondition ClauseKind = iota + 1
	KindNormalPostcondition
	KindExceptionalPostcondition
	KindUnreachable
)

func (k ClauseKind) String() string {
	switch k {
	case KindPrecondition:
		return "precondition"
	case KindNormalPostcondition:
		return "normal postcondition"
	case KindExceptionalPostcondition:
		return "exceptional postcondition"
	case KindUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("ClauseKind(%d)", int(k))
	}
}

// A Predicate is the text of a boolean Go expression.
type Predicate string

// HasAssertion returns false for predicates that can never fail: the
// empty predicate and the literal true.
func (p Predicate) HasAssertion() bool {
	s := strings.TrimSpace(string(p))
	for len(s) > 2 && s[0] == '(' && s[len(s)-1] == ')' && balanced(s[1:len(s)-1]) {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s != "" && s != "true"
}

// balanced reports whether the parentheses in s are balanced, so that
// stripping an enclosing pair is safe.
func balanced(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// Signals describes an exceptional postcondition. The predicate must
// hold whenever the method terminates by raising a signal of the
// given type, which is bound to Var while the predicate is evaluated.
// An empty ExceptionType matches any signal.
type Signals struct {
	ExceptionType string
	Var           string
	Predicate     Predicate
}

func (s Signals) String() string {
	typ := s.ExceptionType
	if typ == "" {
		typ = "interface{}"
	}
	if s.Var != "" {
		typ += " " + s.Var
	}
	return fmt.Sprintf("signals (%s) %s", typ, s.Predicate)
}

// A Clause is one of Precondition, NormalPostcondition,
// ExceptionalPostcondition or Unreachable.
type Clause interface {
	Kind() ClauseKind
	// SpecCase returns the index of the spec case that declared the
	// clause.
	SpecCase() int
	Pred() Predicate
	clause()
}

var (
	_ Clause = Precondition{}
	_ Clause = NormalPostcondition{}
	_ Clause = ExceptionalPostcondition{}
	_ Clause = Unreachable{}
)

// Precondition must hold on entry to the method.
type Precondition struct {
	Index     int
	Predicate Predicate
}

func (Precondition) Kind() ClauseKind  { return KindPrecondition }
func (c Precondition) SpecCase() int   { return c.Index }
func (c Precondition) Pred() Predicate { return c.Predicate }
func (Precondition) clause()           {}

// NormalPostcondition must hold when the method returns normally.
type NormalPostcondition struct {
	Index     int
	Predicate Predicate
}

func (NormalPostcondition) Kind() ClauseKind  { return KindNormalPostcondition }
func (c NormalPostcondition) SpecCase() int   { return c.Index }
func (c NormalPostcondition) Pred() Predicate { return c.Predicate }
func (NormalPostcondition) clause()           {}

// ExceptionalPostcondition must hold when the method raises a signal.
type ExceptionalPostcondition struct {
	Index int
	Signals
}

func (ExceptionalPostcondition) Kind() ClauseKind  { return KindExceptionalPostcondition }
func (c ExceptionalPostcondition) SpecCase() int   { return c.Index }
func (c ExceptionalPostcondition) Pred() Predicate { return c.Predicate }
func (ExceptionalPostcondition) clause()           {}

// Unreachable marks a point that control must never reach.
type Unreachable struct {
	Index int
}

func (Unreachable) Kind() ClauseKind { return KindUnreachable }
func (c Unreachable) SpecCase() int  { return c.Index }
func (Unreachable) Pred() Predicate  { return "false" }
func (Unreachable) clause()          {}
