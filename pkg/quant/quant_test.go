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

package quant

import (
	"strings"
	"testing"

	"github.com/cockroachdb/racgen/pkg/contract"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestNoQuantifier(t *testing.T) {
	a := assert.New(t)
	e := &Expander{}

	exp, err := e.Expand("racResult >= 0", nil)
	a.NoError(err)
	a.Empty(exp.Decls)
	a.Equal(contract.Predicate("racResult >= 0"), exp.Pred)

	exp, err = e.Expand(`racObject != nil && name == "\\forall"`,
		map[string]string{"racObject": "racResult"})
	a.NoError(err)
	a.Empty(exp.Decls)
	a.Equal(contract.Predicate(`racResult != nil && name == "\\forall"`), exp.Pred)
	a.Equal(0, e.next)
}

func TestExpand(t *testing.T) {
	tcs := []struct {
		name     string
		pred     contract.Predicate
		decls    []string
		expected contract.Predicate
	}{
		{
			name: "forall",
			pred: `(\forall i int; 0 <= i && i < len(xs); xs[i] > 0)`,
			decls: []string{
				"racQuant0 := func() bool {\n" +
					"for i := 0; i < len(xs); i++ {\n" +
					"if !(xs[i] > 0) {\nreturn false\n}\n" +
					"}\n" +
					"return true\n}",
			},
			expected: "racQuant0()",
		},
		{
			name: "exists chained with filter",
			pred: `ok && (\exists j int64; 0 < j <= n && j != skip; f(j))`,
			decls: []string{
				"racQuant0 := func() bool {\n" +
					"for j := int64(0 + 1); j <= n; j++ {\n" +
					"if !(j != skip) {\ncontinue\n}\n" +
					"if f(j) {\nreturn true\n}\n" +
					"}\n" +
					"return false\n}",
			},
			expected: "ok && racQuant0()",
		},
		{
			name: "num_of over a map",
			pred: `(\num_of k, v := range m; v > 0) == 2`,
			decls: []string{
				"racQuant0 := func() (racCount int64) {\n" +
					"for _, v := range m {\n" +
					"if v > 0 {\nracCount++\n}\n" +
					"}\n" +
					"return\n}",
			},
			expected: "racQuant0() == 2",
		},
		{
			name: "sum",
			pred: `(\sum i int64; 1 <= i && i <= n; i * i) == racResult`,
			decls: []string{
				"racQuant0 := func() (racSum int64) {\n" +
					"for i := int64(1); i <= n; i++ {\n" +
					"racSum += i * i\n" +
					"}\n" +
					"return\n}",
			},
			expected: "racQuant0() == racResult",
		},
		{
			name: "two variables",
			pred: `(\exists i, j int; 0 <= i && i < n && i < j && j < n; xs[i] == xs[j])`,
			decls: []string{
				"racQuant0 := func() bool {\n" +
					"for i := 0; i < n; i++ {\n" +
					"for j := i + 1; j < n; j++ {\n" +
					"if xs[i] == xs[j] {\nreturn true\n}\n" +
					"}\n" +
					"}\n" +
					"return false\n}",
			},
			expected: "racQuant0()",
		},
		{
			name: "range with filter",
			pred: `(\forall k, v := range m; k != ""; v >= 0)`,
			decls: []string{
				"racQuant0 := func() bool {\n" +
					"for k, v := range m {\n" +
					"if !(k != \"\") {\ncontinue\n}\n" +
					"if !(v >= 0) {\nreturn false\n}\n" +
					"}\n" +
					"return true\n}",
			},
			expected: "racQuant0()",
		},
		{
			name: "siblings",
			pred: `(\forall x := range a; x > 0) && (\forall x := range b; x < 0)`,
			decls: []string{
				"racQuant0 := func() bool {\nfor x := range a {\nif !(x > 0) {\nreturn false\n}\n}\nreturn true\n}",
				"racQuant1 := func() bool {\nfor x := range b {\nif !(x < 0) {\nreturn false\n}\n}\nreturn true\n}",
			},
			expected: "racQuant0() && racQuant1()",
		},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			a := assert.New(t)
			exp, err := (&Expander{}).Expand(tc.pred, nil)
			if a.NoError(err) {
				a.Equal(tc.decls, exp.Decls)
				a.Equal(tc.expected, exp.Pred)
			}
		})
	}
}

func TestNested(t *testing.T) {
	a := assert.New(t)
	exp, err := (&Expander{}).Expand(
		`(\forall i int; 0 <= i && i < n; (\exists j int; 0 <= j && j < n; a[i] == b[j]))`, nil)
	if !a.NoError(err) {
		return
	}
	a.Equal(contract.Predicate("racQuant0()"), exp.Pred)
	if a.Len(exp.Decls, 1) {
		outer := exp.Decls[0]
		a.True(strings.HasPrefix(outer, "racQuant0 := func() bool {\nfor i := 0; i < n; i++ {\nracQuant1 := func() bool {"))
		a.Contains(outer, "for j := 0; j < n; j++ {\nif a[i] == b[j] {\nreturn true\n}")
		a.Contains(outer, "if !(racQuant1()) {\nreturn false\n}")
	}
}

func TestRenameEverywhere(t *testing.T) {
	a := assert.New(t)
	exp, err := (&Expander{}).Expand(
		`racObject.n > 0 && (\forall k, v := range racObject.items; v != racObject)`,
		map[string]string{"racObject": "racResult"})
	if !a.NoError(err) {
		return
	}
	a.Equal(contract.Predicate("racResult.n > 0 && racQuant0()"), exp.Pred)
	if a.Len(exp.Decls, 1) {
		a.Contains(exp.Decls[0], "for _, v := range racResult.items {")
		a.Contains(exp.Decls[0], "v != racResult")
	}
	for _, text := range append(exp.Decls, string(exp.Pred)) {
		a.NotContains(text, "racObject")
	}
}

func TestNumbering(t *testing.T) {
	a := assert.New(t)
	e := &Expander{Prefix: "q"}
	exp, err := e.Expand(`(\forall x := range xs; x)`, nil)
	a.NoError(err)
	a.Equal(contract.Predicate("q0()"), exp.Pred)
	exp, err = e.Expand(`(\exists x := range xs; x)`, nil)
	a.NoError(err)
	a.Equal(contract.Predicate("q1()"), exp.Pred)
}

func TestMalformed(t *testing.T) {
	tcs := map[string]contract.Predicate{
		"no lower bound":    `(\forall i int; i < n; true)`,
		"no upper bound":    `(\forall i int; 0 <= i; true)`,
		"unbalanced":        `(\forall i int; 0 <= i && i < n; f(i)`,
		"not parenthesized": `\forall i int; 0 <= i && i < n; true`,
		"range sum":         `(\sum x := range xs; x)`,
		"missing body":      `(\forall i int; 0 <= i && i < n)`,
		"bad range":         `(\forall x := xs; x)`,
		"missing type":      `(\forall i; 0 <= i && i < n; true)`,
	}
	for name, pred := range tcs {
		t.Run(name, func(t *testing.T) {
			a := assert.New(t)
			_, err := (&Expander{}).Expand(pred, nil)
			if a.Error(err) {
				_, ok := errors.Cause(err).(*MalformedQuantifierError)
				a.True(ok, "%v", err)
			}
		})
	}
}

func TestContains(t *testing.T) {
	a := assert.New(t)
	a.True(Contains(`(\forall i int; 0 <= i && i < n; true)`))
	a.True(Contains(`x && (\num_of v := range xs; v)`))
	a.False(Contains(`x > 0`))
	a.False(Contains(`s == "\\forall"`))
}
