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
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestTable(t *testing.T) {
	a := assert.New(t)

	var tbl Table[Predicate]
	a.Equal(0, tbl.Len())
	a.NoError(tbl.Put(3, "a"))
	a.NoError(tbl.Put(1, "b"))
	a.NoError(tbl.Put(2, "c"))
	a.Equal([]int{3, 1, 2}, tbl.Indices())

	err := tbl.Put(1, "dup")
	if a.Error(err) {
		mal, ok := errors.Cause(err).(*MalformedClauseError)
		if a.True(ok) {
			a.Equal(1, mal.Index)
		}
	}
	v, ok := tbl.Get(1)
	a.True(ok)
	a.Equal(Predicate("b"), v)

	tbl.Set(1, "replaced")
	a.Equal([]int{3, 1, 2}, tbl.Indices())
	v, _ = tbl.Get(1)
	a.Equal(Predicate("replaced"), v)

	var seen []int
	a.NoError(tbl.Each(func(idx int, _ Predicate) error {
		seen = append(seen, idx)
		return nil
	}))
	a.Equal([]int{3, 1, 2}, seen)

	var lists Table[[]string]
	Append(&lists, 0, "x")
	Append(&lists, 0, "y", "z")
	got, _ := lists.Get(0)
	a.Equal([]string{"x", "y", "z"}, got)
}

func TestPredicateHasAssertion(t *testing.T) {
	tcs := map[Predicate]bool{
		"true":           false,
		" true ":         false,
		"(true)":         false,
		"((true))":       false,
		"(a) && (true)":  true,
		"racResult >= 0": true,
		"false":          true,
		"":               false,
	}
	for pred, expected := range tcs {
		t.Run(string(pred), func(t *testing.T) {
			assert.Equal(t, expected, pred.HasAssertion())
		})
	}
}

func TestOldVar(t *testing.T) {
	tcs := []struct {
		v       OldVar
		ident   string
		decl    string
		capture string
	}{
		{
			v:       "n int/n = len(s.items)",
			ident:   "n",
			decl:    "var n int",
			capture: "n = len(s.items)",
		},
		{
			v:       "var total float64/total = a / b",
			ident:   "total",
			decl:    "var total float64",
			capture: "total = a / b",
		},
		{
			v:       "m map[K]Pair[A, B]/m = clone(s.m)",
			ident:   "m",
			decl:    "var m map[K]Pair[A, B]",
			capture: "m = clone(s.m)",
		},
		{
			v:     "bare bool",
			ident: "bare",
			decl:  "var bare bool",
		},
	}
	for _, tc := range tcs {
		t.Run(string(tc.v), func(t *testing.T) {
			a := assert.New(t)
			a.Equal(tc.ident, tc.v.Ident())
			a.Equal(tc.decl, tc.v.Decl())
			a.Equal(tc.capture, tc.v.Capture())
		})
	}
}

func TestVisibility(t *testing.T) {
	a := assert.New(t)
	for _, s := range []string{"public", "protected", "package", "default", "private"} {
		v, err := ParseVisibility(s)
		a.NoError(err)
		a.True(v.Valid())
	}
	_, err := ParseVisibility("friend")
	a.Error(err)
	a.False(Visibility(0).Valid())
	a.False(Visibility(99).Valid())
	a.True(Public.Rank() > Protected.Rank())
	a.True(Protected.Rank() > Package.Rank())
	a.True(Package.Rank() > Private.Rank())
	a.Equal(-1, Visibility(42).Rank())
}

func TestParseMode(t *testing.T) {
	a := assert.New(t)
	a.Equal(ModeCallSite, ParseMode("callSite"))
	a.Equal(ModeClientAware, ParseMode("clientAwareChecking"))
	a.Equal(ModeDirect, ParseMode("anything"))
	a.Equal(ModeDirect, ParseMode(""))
	for _, m := range []Mode{ModeDirect, ModeCallSite, ModeClientAware} {
		a.Equal(m, ParseMode(m.String()))
	}
	a.False(ModeDirect.CallSite())
	a.True(ModeCallSite.CallSite())
	a.True(ModeClientAware.CallSite())
}

func sample(t *testing.T) *MethodContract {
	c := &MethodContract{
		Method: Method{Name: "Pop", Owner: "Stack", Receiver: "s", PointerReceiver: true},
	}
	assert.NoError(t, c.Preconditions.Put(0, "len(s.items) > 0"))
	assert.NoError(t, c.Preconditions.Put(1, "len(s.items) == 0"))
	assert.NoError(t, c.NormalPostconditions.Put(0, "len(s.items) == n - 1"))
	assert.NoError(t, c.ExceptionalPostconditions.Put(1, []Signals{
		{ExceptionType: "*ErrEmpty", Var: "e", Predicate: "e != nil"},
		{Predicate: "true"},
	}))
	assert.NoError(t, c.OldVarDecls.Put(0, []OldVar{"n int/n = len(s.items)"}))
	return c
}

func TestMethodContract(t *testing.T) {
	a := assert.New(t)
	c := sample(t)

	a.NoError(c.Validate())
	a.True(c.HasAssertion())
	a.Equal(Predicate("(len(s.items) > 0) || (len(s.items) == 0)"), c.Precondition())
	a.Equal("Stack.Pop", c.Method.String())
	a.Equal("*Stack", c.Method.RecvType())
	a.Equal("*Stack", c.Method.ConstructedType())

	pres := c.Clauses(KindPrecondition)
	if a.Len(pres, 2) {
		a.Equal(KindPrecondition, pres[0].Kind())
		a.Equal(1, pres[1].SpecCase())
	}
	a.Len(c.Clauses(KindNormalPostcondition), 1)
	sigs := c.Clauses(KindExceptionalPostcondition)
	if a.Len(sigs, 2) {
		a.Equal(Predicate("e != nil"), sigs[0].Pred())
		a.Equal(1, sigs[1].SpecCase())
	}
	a.Empty(c.Clauses(KindUnreachable))
}

func TestMethodContractPrecondition(t *testing.T) {
	a := assert.New(t)
	c := &MethodContract{}
	a.Equal(Predicate("true"), c.Precondition())
	a.False(c.HasAssertion())

	a.NoError(c.Preconditions.Put(0, "x > 0"))
	a.Equal(Predicate("x > 0"), c.Precondition())

	a.NoError(c.Preconditions.Put(1, "true"))
	a.Equal(Predicate("true"), c.Precondition())
}

func TestValidate(t *testing.T) {
	tcs := map[string]func(c *MethodContract){
		"normal": func(c *MethodContract) {
			_ = c.NormalPostconditions.Put(7, "x")
		},
		"exceptional": func(c *MethodContract) {
			_ = c.ExceptionalPostconditions.Put(7, []Signals{{Predicate: "x"}})
		},
		"old var": func(c *MethodContract) {
			_ = c.OldVarDecls.Put(7, []OldVar{"x int/x = 1"})
		},
		"old expr decl": func(c *MethodContract) {
			_ = c.OldExprDecls.Put(7, []string{"var racOld0 int"})
		},
		"old expr": func(c *MethodContract) {
			_ = c.OldExprs.Put(7, []string{"racOld0 = 1"})
		},
	}
	for name, fn := range tcs {
		t.Run(name, func(t *testing.T) {
			a := assert.New(t)
			c := sample(t)
			fn(c)
			err := c.Validate()
			if a.Error(err) {
				mal, ok := errors.Cause(err).(*MalformedClauseError)
				if a.True(ok) {
					a.Equal(7, mal.Index)
				}
			}
		})
	}
}

func TestScanOracle(t *testing.T) {
	a := assert.New(t)
	c := sample(t)
	c.PreExprDecls = []string{"racPre0"}
	c.PreExprs = []string{"racPre0 = limit > 3"}

	o := ScanOracle{Crosscut: map[string]bool{"Stack.Pop": true}}
	a.True(o.ReferencedInPrecondition(c, "items"))
	a.False(o.ReferencedInPrecondition(c, "n"))
	a.True(o.ReferencedInPreExpr(c, "limit"))
	a.False(o.ReferencedInPreExpr(c, "items"))
	a.True(o.IsCrosscut(&c.Method))
	a.False(o.IsCrosscut(&Method{Name: "Push", Owner: "Stack"}))
	a.False(ScanOracle{}.IsCrosscut(&c.Method))
}

func TestErrorMessages(t *testing.T) {
	a := assert.New(t)
	a.Contains((&MalformedClauseError{Index: 2, Reason: "why"}).Error(), "spec case 2")
	a.Contains((&UnresolvedOldReferenceError{Index: 1, Token: "racOld3"}).Error(), "racOld3")
	a.Contains((&UnknownVisibilityError{Visibility: 9}).Error(), "9")
	a.Contains((&ContractCompositionError{Override: "B.F", Inherited: "A.F", Reason: "r"}).Error(), "A.F")
	a.Contains((&UnsupportedGenerationModeError{Method: "T.M", Mode: ModeCallSite}).Error(), "callSite")
}
