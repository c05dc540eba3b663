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

package frontend

import (
	"go/token"
	"sort"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestResults(t *testing.T) {
	a := assert.New(t)
	fset := token.NewFileSet()
	f := fset.AddFile("/src/p/a.go", -1, 100)

	second := newResult(fset, f.Pos(10), "p.B", errors.New("second"))
	first := newResult(fset, f.Pos(5), "p.A", errors.New("first\nline two"))
	first.Children = Results{newResult(fset, f.Pos(20), "p.I.A", errors.New("inherited"))}

	results := Results{second, first}
	sort.Sort(results)
	a.Equal(first, results[0])

	a.Equal("In p.A\n  p/a.go:1:6: first\n  line two\n    p/a.go:1:21: inherited",
		results[0].StringRelative("/src"))
	a.Equal("In p.B\n  /src/p/a.go:1:11: second", results[1].String())
}
