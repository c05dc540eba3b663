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

// Package compose merges the contracts that a method inherits from the
// interfaces it implements into the contract of the method itself.
//
// Every inherited spec case becomes a spec case of the result. Since
// the precondition of a method is the disjunction of the preconditions
// of its spec cases, an implementation may only weaken what callers
// must establish. Each normal postcondition must still hold, but only
// when the precondition of its own spec case held on entry, which is
// recorded in an old variable named racOldCase<N>.
package compose

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/racgen/pkg/contract"
	"github.com/cockroachdb/racgen/pkg/scan"
	"github.com/pkg/errors"
)

// CasePrefix begins the name of the old variables which record
// whether a spec case applied on entry.
const CasePrefix = contract.OldPrefix + "Case"

// Compose returns a new contract holding the spec cases of own
// followed by those of each inherited contract, in order. The
// parameters and receiver of inherited contracts are renamed to match
// those of own.
func Compose(
	own *contract.MethodContract, inherited ...*contract.MethodContract,
) (*contract.MethodContract, error) {
	if err := own.Validate(); err != nil {
		return nil, err
	}
	for _, inh := range inherited {
		if err := compatible(&own.Method, &inh.Method); err != nil {
			return nil, err
		}
		if err := inh.Validate(); err != nil {
			return nil, errors.Wrapf(err, "inherited from %s", inh.Method.String())
		}
	}

	m := &merger{
		ret:   &contract.MethodContract{Method: own.Method},
		taken: make(map[string]bool),
	}
	m.reserve(own)
	if err := m.add(own, nil); err != nil {
		return nil, err
	}
	for level, inh := range inherited {
		renames := m.renames(&own.Method, inh, level+1)
		m.reserve(inh)
		if err := m.add(inh, renames); err != nil {
			return nil, err
		}
	}
	if m.ret.Preconditions.Len() > 1 {
		if err := m.guardCases(); err != nil {
			return nil, err
		}
	}
	return m.ret, nil
}

// compatible checks that an inherited contract can apply to the
// overriding method.
func compatible(own, inh *contract.Method) error {
	fail := func(format string, args ...interface{}) error {
		return errors.WithStack(&contract.ContractCompositionError{
			Override:  own.String(),
			Inherited: inh.String(),
			Reason:    fmt.Sprintf(format, args...),
		})
	}
	switch {
	case !own.Visibility.Valid():
		return fail("override has unknown visibility %d", int(own.Visibility))
	case !inh.Visibility.Valid():
		return fail("inherited method has unknown visibility %d", int(inh.Visibility))
	case inh.Visibility == contract.Private:
		return fail("private methods are not inherited")
	case inh.Visibility.Rank() > own.Visibility.Rank():
		return fail("%s override of a %s method", own.Visibility, inh.Visibility)
	case inh.Name != own.Name:
		return fail("method names differ")
	case len(inh.Params) != len(own.Params):
		return fail("%d parameters, expecting %d", len(own.Params), len(inh.Params))
	}
	return nil
}

type merger struct {
	ret *contract.MethodContract
	// taken holds every temporary declared so far.
	taken map[string]bool
	next  int
}

// temps returns the temporaries declared by a contract.
func temps(c *contract.MethodContract) []string {
	var ret []string
	_ = c.OldVarDecls.Each(func(_ int, vars []contract.OldVar) error {
		for _, v := range vars {
			ret = append(ret, v.Ident())
		}
		return nil
	})
	_ = c.OldExprDecls.Each(func(_ int, decls []string) error {
		for _, d := range decls {
			ret = append(ret, scan.LeadingIdent(trimVar(d)))
		}
		return nil
	})
	for _, d := range c.PreExprDecls {
		ret = append(ret, scan.LeadingIdent(trimVar(d)))
	}
	return ret
}

func trimVar(decl string) string {
	return strings.TrimPrefix(strings.TrimSpace(decl), "var ")
}

// renames computes the renaming applied to an inherited contract.
// The caller must invoke it before reserving the temporaries of inh.
func (m *merger) renames(own *contract.Method, inh *contract.MethodContract, level int) map[string]string {
	ret := make(map[string]string)
	for i, p := range inh.Method.Params {
		to := own.Params[i].Name
		if p.Name != "" && p.Name != "_" && to != "" && p.Name != to {
			ret[p.Name] = to
		}
	}

	from := inh.Method.Receiver
	if from == "" {
		from = contract.ThisPlaceholder
	}
	to := own.Receiver
	if to == "" {
		to = contract.ThisPlaceholder
	}
	if from != to {
		ret[from] = to
	}

	for _, id := range temps(inh) {
		if id == "" || !m.taken[id] {
			continue
		}
		renamed := fmt.Sprintf("%s_%d", id, level)
		for n := 2; m.taken[renamed]; n++ {
			renamed = fmt.Sprintf("%s_%d_%d", id, level, n)
		}
		ret[id] = renamed
		m.taken[renamed] = true
	}
	return ret
}

func (m *merger) reserve(c *contract.MethodContract) {
	for _, id := range temps(c) {
		m.taken[id] = true
	}
}

// add copies the spec cases of c into the result under new indices.
func (m *merger) add(c *contract.MethodContract, renames map[string]string) error {
	r := func(s string) string { return scan.Rename(s, renames) }
	ret := m.ret

	for _, idx := range c.Preconditions.Indices() {
		to := m.next
		m.next++

		pre, _ := c.Preconditions.Get(idx)
		if err := ret.Preconditions.Put(to, contract.Predicate(r(string(pre)))); err != nil {
			return err
		}
		if post, ok := c.NormalPostconditions.Get(idx); ok {
			ret.NormalPostconditions.Set(to, contract.Predicate(r(string(post))))
		}
		if sigs, ok := c.ExceptionalPostconditions.Get(idx); ok {
			out := make([]contract.Signals, len(sigs))
			for i, s := range sigs {
				out[i] = contract.Signals{
					ExceptionType: s.ExceptionType,
					Var:           r(s.Var),
					Predicate:     contract.Predicate(r(string(s.Predicate))),
				}
			}
			ret.ExceptionalPostconditions.Set(to, out)
		}
		if vars, ok := c.OldVarDecls.Get(idx); ok {
			out := make([]contract.OldVar, len(vars))
			for i, v := range vars {
				out[i] = contract.OldVar(r(string(v)))
			}
			ret.OldVarDecls.Set(to, out)
		}
		if decls, ok := c.OldExprDecls.Get(idx); ok {
			ret.OldExprDecls.Set(to, renameAll(decls, renames))
		}
		if exprs, ok := c.OldExprs.Get(idx); ok {
			ret.OldExprs.Set(to, renameAll(exprs, renames))
		}
	}
	ret.PreExprDecls = append(ret.PreExprDecls, renameAll(c.PreExprDecls, renames)...)
	ret.PreExprs = append(ret.PreExprs, renameAll(c.PreExprs, renames)...)
	ret.XPostCode = append(ret.XPostCode, renameAll(c.XPostCode, renames)...)
	return nil
}

// guardCases makes the postconditions of each spec case conditional
// on its precondition having held on entry.
func (m *merger) guardCases() error {
	ret := m.ret
	for _, idx := range ret.Preconditions.Indices() {
		pre, _ := ret.Preconditions.Get(idx)
		if !pre.HasAssertion() {
			continue
		}
		post, _ := ret.NormalPostconditions.Get(idx)
		sigs, _ := ret.ExceptionalPostconditions.Get(idx)
		needed := post.HasAssertion()
		for _, s := range sigs {
			needed = needed || s.Predicate.HasAssertion()
		}
		if !needed {
			continue
		}

		name := fmt.Sprintf("%s%d", CasePrefix, idx)
		if m.taken[name] {
			return errors.WithStack(&contract.MalformedClauseError{
				Index: idx, Reason: fmt.Sprintf("%s is reserved", name)})
		}
		m.taken[name] = true
		contract.Append(&ret.OldVarDecls, idx,
			contract.OldVar(fmt.Sprintf("%s bool/%s = %s", name, name, pre)))

		if post.HasAssertion() {
			ret.NormalPostconditions.Set(idx, implies(name, post))
		}
		if len(sigs) > 0 {
			out := make([]contract.Signals, len(sigs))
			for i, s := range sigs {
				if s.Predicate.HasAssertion() {
					s.Predicate = implies(name, s.Predicate)
				}
				out[i] = s
			}
			ret.ExceptionalPostconditions.Set(idx, out)
		}
	}
	return nil
}

func implies(cond string, p contract.Predicate) contract.Predicate {
	return contract.Predicate(fmt.Sprintf("!%s || (%s)", cond, p))
}

func renameAll(texts []string, renames map[string]string) []string {
	if texts == nil {
		return nil
	}
	ret := make([]string, len(texts))
	for i, t := range texts {
		ret[i] = scan.Rename(t, renames)
	}
	return ret
}
