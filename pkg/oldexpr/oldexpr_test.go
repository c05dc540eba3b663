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

package oldexpr

import (
	"testing"

	"github.com/cockroachdb/racgen/pkg/contract"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stack(t *testing.T) *contract.MethodContract {
	c := &contract.MethodContract{
		Method: contract.Method{Name: "Pop", Owner: "Stack", Receiver: "s"},
	}
	require.NoError(t, c.Preconditions.Put(0, "size > 0"))
	require.NoError(t, c.Preconditions.Put(1, "true"))
	require.NoError(t, c.NormalPostconditions.Put(0, "len(s.items) == size - 1 && racOld0 == racResult"))
	require.NoError(t, c.NormalPostconditions.Put(1, "len(s.items) == before"))
	require.NoError(t, c.OldVarDecls.Put(0, []contract.OldVar{"size int/size = len(s.items)"}))
	require.NoError(t, c.OldVarDecls.Put(1, []contract.OldVar{"before int/before = len(s.items)"}))
	require.NoError(t, c.OldExprDecls.Put(0, []string{"var racOld0 int"}))
	require.NoError(t, c.OldExprs.Put(0, []string{"racOld0 = s.items[len(s.items)-1]"}))
	return c
}

func TestExtract(t *testing.T) {
	a := assert.New(t)
	c := stack(t)

	plan, err := Extract(c, contract.ScanOracle{})
	if !a.NoError(err) {
		return
	}
	a.Equal([]string{
		"var size int",
		"var before int",
		"var racOld0 int",
	}, plan.Decls)
	a.Equal([]string{"size = len(s.items)"}, plan.Early)
	// Late captures are grouped by spec case.
	a.Equal([]string{
		"racOld0 = s.items[len(s.items)-1]",
		"before = len(s.items)",
	}, plan.Late)
	a.Empty(plan.PreExprs)
	a.True(plan.CheckPrecondition)
	a.Equal([]string{"size", "before", "racOld0"}, plan.Temps())

	if a.Len(plan.Bindings, 2) {
		a.True(plan.Bindings[0].PreconditionReferenced)
		a.False(plan.Bindings[0].PreExprReferenced)
		a.False(plan.Bindings[1].Early())
	}

	again, err := Extract(c, contract.ScanOracle{})
	a.NoError(err)
	a.Equal(plan, again)
}

func TestPreExprOrdering(t *testing.T) {
	a := assert.New(t)
	c := &contract.MethodContract{}
	a.NoError(c.Preconditions.Put(0, "racPre0 && racPre1"))
	a.NoError(c.OldVarDecls.Put(0, []contract.OldVar{
		"limit int/limit = s.limit",
		"count int/count = s.count",
	}))
	c.PreExprDecls = []string{"racPre1", "racPre0", "var racPre2 bool"}
	c.PreExprs = []string{"racPre1 = count < 10", "racPre0 = true", "racPre2 = false"}

	plan, err := Extract(c, contract.ScanOracle{})
	if !a.NoError(err) {
		return
	}
	a.Equal([]string{
		"var limit int",
		"var count int",
		"var racPre1 bool",
		"var racPre0 bool",
		"var racPre2 bool",
	}, plan.Decls)
	// count is used by a pre-expression, limit is not used before the call.
	a.Equal([]string{"count = s.count"}, plan.Early)
	a.Equal(c.PreExprs, plan.PreExprs)
	a.Equal([]string{"limit = s.limit"}, plan.Late)
	a.True(plan.CheckPrecondition)
	a.True(plan.Bindings[1].PreExprReferenced)
}

func TestNoEarlyReferences(t *testing.T) {
	a := assert.New(t)
	c := &contract.MethodContract{}
	a.NoError(c.Preconditions.Put(0, "true"))
	a.NoError(c.NormalPostconditions.Put(0, "racResult >= 0"))

	plan, err := Extract(c, contract.ScanOracle{})
	a.NoError(err)
	a.Empty(plan.Decls)
	a.Empty(plan.Early)
	a.Empty(plan.Late)
	a.False(plan.CheckPrecondition)
}

func TestSelectorMatches(t *testing.T) {
	a := assert.New(t)
	c := &contract.MethodContract{}
	a.NoError(c.Preconditions.Put(0, "s.n > 0"))
	a.NoError(c.OldVarDecls.Put(0, []contract.OldVar{"n int/n = s.n"}))

	plan, err := Extract(c, contract.ScanOracle{})
	a.NoError(err)
	a.Equal([]string{"n = s.n"}, plan.Early)
}

func TestGenericDeclaration(t *testing.T) {
	a := assert.New(t)
	c := &contract.MethodContract{}
	a.NoError(c.Preconditions.Put(0, "len(pairs) > 0"))
	a.NoError(c.OldVarDecls.Put(0, []contract.OldVar{
		"pairs map[string]Pair[int, string]/pairs = clone(s.pairs)",
	}))

	plan, err := Extract(c, contract.ScanOracle{})
	a.NoError(err)
	if a.Len(plan.Bindings, 1) {
		a.Equal("pairs", plan.Bindings[0].Ident)
		a.True(plan.Bindings[0].PreconditionReferenced)
	}
	a.Equal([]string{"var pairs map[string]Pair[int, string]"}, plan.Decls)
}

func TestDuplicateOldVar(t *testing.T) {
	a := assert.New(t)
	c := &contract.MethodContract{}
	a.NoError(c.Preconditions.Put(0, "true"))
	a.NoError(c.Preconditions.Put(1, "true"))
	a.NoError(c.OldVarDecls.Put(0, []contract.OldVar{"n int/n = s.n"}))
	a.NoError(c.OldVarDecls.Put(1, []contract.OldVar{"n int/n = s.n"}))

	plan, err := Extract(c, contract.ScanOracle{})
	a.NoError(err)
	a.Equal([]string{"var n int"}, plan.Decls)
	a.Equal([]string{"n = s.n"}, plan.Late)

	c.OldVarDecls.Set(1, []contract.OldVar{"n int64/n = s.n64"})
	_, err = Extract(c, contract.ScanOracle{})
	if a.Error(err) {
		_, ok := errors.Cause(err).(*contract.MalformedClauseError)
		a.True(ok)
	}
}

func TestUnresolved(t *testing.T) {
	tcs := map[string]func(c *contract.MethodContract){
		"undeclared temp": func(c *contract.MethodContract) {
			c.NormalPostconditions.Set(1, "racOld7 == 1")
		},
		"wrong spec case": func(c *contract.MethodContract) {
			c.NormalPostconditions.Set(1, "racOld0 == 1")
		},
		"untranslated marker": func(c *contract.MethodContract) {
			c.NormalPostconditions.Set(0, `racResult == \old(len(s.items))`)
		},
		"signals": func(c *contract.MethodContract) {
			c.ExceptionalPostconditions.Set(1, []contract.Signals{{Predicate: "racOld0 > 0"}})
		},
	}
	for name, fn := range tcs {
		t.Run(name, func(t *testing.T) {
			a := assert.New(t)
			c := stack(t)
			fn(c)
			plan, err := Extract(c, contract.ScanOracle{})
			a.Nil(plan)
			if a.Error(err) {
				_, ok := errors.Cause(err).(*contract.UnresolvedOldReferenceError)
				a.True(ok, "%T", errors.Cause(err))
			}
		})
	}
}

func TestMalformed(t *testing.T) {
	a := assert.New(t)
	c := stack(t)
	a.NoError(c.OldExprs.Put(5, []string{"racOld9 = 1"}))
	_, err := Extract(c, contract.ScanOracle{})
	if a.Error(err) {
		_, ok := errors.Cause(err).(*contract.MalformedClauseError)
		a.True(ok)
	}
}
