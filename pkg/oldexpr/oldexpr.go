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

// Package oldexpr decides where the old-state bindings of a contract
// are declared and captured.
//
// A binding that is referenced by a precondition or a pre-expression
// must be captured before the precondition is checked. All other
// bindings are captured after the precondition check, immediately
// before the checked method is invoked. Matching is done on
// identifier tokens, so a selector s.n counts as a reference to n.
package oldexpr

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/racgen/pkg/contract"
	"github.com/cockroachdb/racgen/pkg/scan"
	"github.com/pkg/errors"
)

// A Binding describes one old variable.
type Binding struct {
	Index int
	Ident string
	Var   contract.OldVar

	PreconditionReferenced bool
	PreExprReferenced      bool
}

// Early reports whether the binding must be captured before the
// precondition check.
func (b Binding) Early() bool {
	return b.PreconditionReferenced || b.PreExprReferenced
}

// A Plan lists the statements that a wrapper executes before it
// invokes the checked method, grouped by when they run.
type Plan struct {
	// Decls declares every temporary: old variables in spec-case
	// order, then pre-expression booleans, then old expressions.
	Decls []string
	// Early captures the old variables referenced by a precondition or
	// a pre-expression.
	Early []string
	// PreExprs are the pre-expression assignments, which run after
	// Early.
	PreExprs []string
	// Late captures everything else, in spec-case order.
	Late     []string
	Bindings []Binding
	// CheckPrecondition is set when the wrapper must check the
	// precondition itself.
	CheckPrecondition bool
}

// Temps returns the identifiers of every declared temporary, in
// declaration order.
func (p *Plan) Temps() []string {
	ret := make([]string, 0, len(p.Decls))
	for _, decl := range p.Decls {
		if id := declIdent(decl); id != "" {
			ret = append(ret, id)
		}
	}
	return ret
}

// Extract builds the Plan for a contract.
func Extract(c *contract.MethodContract, oracle contract.Oracle) (*Plan, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := checkOldReferences(c); err != nil {
		return nil, err
	}

	ret := &Plan{}
	seen := make(map[string]contract.OldVar)
	for _, idx := range c.Preconditions.Indices() {
		vars, _ := c.OldVarDecls.Get(idx)
		for _, v := range vars {
			id := v.Ident()
			if id == "" {
				return nil, errors.WithStack(&contract.MalformedClauseError{
					Index: idx, Reason: fmt.Sprintf("cannot find identifier in old variable %q", v)})
			}
			if prev, dup := seen[id]; dup {
				if prev == v {
					continue
				}
				return nil, errors.WithStack(&contract.MalformedClauseError{
					Index: idx, Reason: fmt.Sprintf("old variable %s declared twice", id)})
			}
			seen[id] = v
			b := Binding{
				Index:                  idx,
				Ident:                  id,
				Var:                    v,
				PreconditionReferenced: oracle.ReferencedInPrecondition(c, id),
				PreExprReferenced:      oracle.ReferencedInPreExpr(c, id),
			}
			ret.Bindings = append(ret.Bindings, b)
			ret.Decls = append(ret.Decls, v.Decl())
		}
	}

	for _, id := range c.PreExprDecls {
		ret.Decls = append(ret.Decls, preExprDecl(id))
	}

	for _, idx := range c.Preconditions.Indices() {
		decls, _ := c.OldExprDecls.Get(idx)
		ret.Decls = append(ret.Decls, decls...)
	}

	for _, b := range ret.Bindings {
		if b.Early() {
			ret.CheckPrecondition = true
			if capture := b.Var.Capture(); capture != "" {
				ret.Early = append(ret.Early, capture)
			}
		}
	}
	ret.PreExprs = append(ret.PreExprs, c.PreExprs...)
	if len(ret.PreExprs) > 0 {
		ret.CheckPrecondition = true
	}

	for _, idx := range c.Preconditions.Indices() {
		for _, b := range ret.Bindings {
			if b.Index != idx || b.Early() {
				continue
			}
			if capture := b.Var.Capture(); capture != "" {
				ret.Late = append(ret.Late, capture)
			}
		}
		exprs, _ := c.OldExprs.Get(idx)
		ret.Late = append(ret.Late, exprs...)
	}
	return ret, nil
}

// IsOldToken reports whether an identifier token refers to old state.
func IsOldToken(tok string) bool {
	return tok == `\old` || strings.HasPrefix(tok, contract.OldPrefix)
}

// checkOldReferences verifies that every old-state token in a
// postcondition is declared for the spec case that uses it.
func checkOldReferences(c *contract.MethodContract) error {
	declared := func(idx int) map[string]bool {
		ret := make(map[string]bool)
		vars, _ := c.OldVarDecls.Get(idx)
		for _, v := range vars {
			ret[v.Ident()] = true
		}
		decls, _ := c.OldExprDecls.Get(idx)
		for _, d := range decls {
			ret[declIdent(d)] = true
		}
		return ret
	}
	check := func(idx int, text contract.Predicate) error {
		var have map[string]bool
		for _, tok := range scan.Idents(string(text)) {
			if tok.Selector || !IsOldToken(tok.Text) {
				continue
			}
			if have == nil {
				have = declared(idx)
			}
			if !have[tok.Text] {
				return errors.WithStack(&contract.UnresolvedOldReferenceError{Index: idx, Token: tok.Text})
			}
		}
		return nil
	}

	if err := c.NormalPostconditions.Each(check); err != nil {
		return err
	}
	return c.ExceptionalPostconditions.Each(func(idx int, sigs []contract.Signals) error {
		for _, s := range sigs {
			if err := check(idx, s.Predicate); err != nil {
				return err
			}
		}
		return nil
	})
}

// declIdent returns the variable declared by a statement such as
// "var racOld0 int" or "racOld0 int".
func declIdent(decl string) string {
	decl = strings.TrimSpace(decl)
	decl = strings.TrimPrefix(decl, "var ")
	return scan.LeadingIdent(decl)
}

func preExprDecl(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "var ") {
		return id
	}
	if scan.IsIdent(id) {
		return "var " + id + " bool"
	}
	return "var " + id
}
