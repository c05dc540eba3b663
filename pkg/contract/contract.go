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
	"strings"

	"github.com/cockroachdb/racgen/pkg/scan"
)

// Reserved identifiers used by generated code.
const (
	// ResultVar holds the value returned by the checked method.
	ResultVar = "racResult"
	// ErrorVar holds a trailing error result.
	ErrorVar = "racErr"
	// CaughtVar holds the signal raised by the checked method.
	CaughtVar = "racE"
	// ObjectPlaceholder stands for the object under construction in
	// the clauses of a constructor.
	ObjectPlaceholder = "racObject"
	// OldPrefix begins the name of every old-state binding.
	OldPrefix = "racOld"
	// ThisPlaceholder stands for the receiver of an abstract method,
	// which has no receiver name of its own.
	ThisPlaceholder = "racThis"
)

// A Param is a method parameter.
type Param struct {
	Name     string
	Type     string
	Variadic bool
}

// A Method describes the declaration that a contract is attached to.
type Method struct {
	Name string
	// Owner is the declaring type. It is empty for package functions.
	Owner string
	// OwnerType is the type of the object built by a constructor. It
	// defaults to a pointer to Owner.
	OwnerType string
	// Receiver is the name of the receiver variable, if any.
	Receiver        string
	PointerReceiver bool
	Params          []Param
	// ReturnType is empty if the method has no observable result.
	ReturnType string
	// ReturnsError is set when the method has a trailing error result.
	ReturnsError bool
	Static       bool
	Constructor  bool
	// Abstract methods are declared by an interface and have no body.
	Abstract   bool
	Visibility Visibility
}

// String returns the qualified name of the method.
func (m *Method) String() string {
	if m.Owner == "" {
		return m.Name
	}
	return m.Owner + "." + m.Name
}

// RecvType returns the receiver type expression, or the empty string
// for static methods.
func (m *Method) RecvType() string {
	if m.Static || m.Owner == "" {
		return ""
	}
	if m.PointerReceiver {
		return "*" + m.Owner
	}
	return m.Owner
}

// ConstructedType returns the type of the object built by a constructor.
func (m *Method) ConstructedType() string {
	if m.OwnerType != "" {
		return m.OwnerType
	}
	return "*" + m.Owner
}

// ParamNames returns the names of the parameters, in order.
func (m *Method) ParamNames() []string {
	ret := make([]string, len(m.Params))
	for i, p := range m.Params {
		ret[i] = p.Name
	}
	return ret
}

// An OldVar is the compound text of an old variable: a declaration
// and a capture statement separated by the first '/', as in
//
//	n int/n = len(s.items)
type OldVar string

func (v OldVar) split() (decl, capture string) {
	s := string(v)
	if idx := strings.IndexByte(s, '/'); idx >= 0 {
		return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+1:])
	}
	return strings.TrimSpace(s), ""
}

// Ident returns the name of the variable. Only the leading identifier
// of the declaration is considered, so type arguments such as
// map[K]Pair[A, B] never affect it.
func (v OldVar) Ident() string {
	decl, _ := v.split()
	decl = strings.TrimPrefix(decl, "var ")
	return scan.LeadingIdent(strings.TrimSpace(decl))
}

// Decl returns a Go variable declaration statement.
func (v OldVar) Decl() string {
	decl, _ := v.split()
	if strings.HasPrefix(decl, "var ") {
		return decl
	}
	return "var " + decl
}

// Capture returns the statement that captures the old value.
func (v OldVar) Capture() string {
	_, capture := v.split()
	return capture
}

// A MethodContract holds every clause of one checked method, keyed by
// spec case. It is read-only once built.
type MethodContract struct {
	Method Method

	// Preconditions defines the set of spec cases.
	Preconditions             Table[Predicate]
	NormalPostconditions      Table[Predicate]
	ExceptionalPostconditions Table[[]Signals]

	OldVarDecls  Table[[]OldVar]
	OldExprDecls Table[[]string]
	OldExprs     Table[[]string]

	// PreExprDecls declares the boolean variables assigned by PreExprs.
	PreExprDecls []string
	PreExprs     []string

	// XPostCode, if present, replaces the translation of the
	// exceptional postconditions.
	XPostCode []string
}

// Validate checks that every clause belongs to a declared spec case.
func (c *MethodContract) Validate() error {
	check := func(what string, indices []int) error {
		for _, idx := range indices {
			if !c.Preconditions.Has(idx) {
				return malformed(idx, what+" refers to an undeclared spec case")
			}
		}
		return nil
	}
	if err := check("normal postcondition", c.NormalPostconditions.Indices()); err != nil {
		return err
	}
	if err := check("exceptional postcondition", c.ExceptionalPostconditions.Indices()); err != nil {
		return err
	}
	if err := check("old variable", c.OldVarDecls.Indices()); err != nil {
		return err
	}
	if err := check("old expression declaration", c.OldExprDecls.Indices()); err != nil {
		return err
	}
	return check("old expression", c.OldExprs.Indices())
}

// Precondition returns the disjunction of the preconditions of all
// spec cases.
func (c *MethodContract) Precondition() Predicate {
	if c.Preconditions.Len() == 0 {
		return "true"
	}
	var parts []string
	for _, idx := range c.Preconditions.Indices() {
		p, _ := c.Preconditions.Get(idx)
		if !p.HasAssertion() {
			return "true"
		}
		parts = append(parts, string(p))
	}
	if len(parts) == 1 {
		return Predicate(parts[0])
	}
	return Predicate("(" + strings.Join(parts, ") || (") + ")")
}

// HasAssertion reports whether any spec case has a normal
// postcondition that can fail.
func (c *MethodContract) HasAssertion() bool {
	for _, idx := range c.NormalPostconditions.Indices() {
		if p, _ := c.NormalPostconditions.Get(idx); p.HasAssertion() {
			return true
		}
	}
	return false
}

// Clauses returns the clauses of the given kind in spec-case order.
func (c *MethodContract) Clauses(kind ClauseKind) []Clause {
	var ret []Clause
	switch kind {
	case KindPrecondition:
		_ = c.Preconditions.Each(func(idx int, p Predicate) error {
			ret = append(ret, Precondition{Index: idx, Predicate: p})
			return nil
		})
	case KindNormalPostcondition:
		_ = c.NormalPostconditions.Each(func(idx int, p Predicate) error {
			ret = append(ret, NormalPostcondition{Index: idx, Predicate: p})
			return nil
		})
	case KindExceptionalPostcondition:
		_ = c.ExceptionalPostconditions.Each(func(idx int, sigs []Signals) error {
			for _, s := range sigs {
				ret = append(ret, ExceptionalPostcondition{Index: idx, Signals: s})
			}
			return nil
		})
	case KindUnreachable:
		// Unreachable clauses are attached to statements, not methods.
	}
	return ret
}
