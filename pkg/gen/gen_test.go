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

package gen

import (
	"context"
	"go/parser"
	"go/token"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/cockroachdb/racgen/pkg/contract"
	"github.com/cockroachdb/racgen/pkg/frontend"
	"github.com/cockroachdb/racgen/pkg/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// This test generates call-site checks for the testdata package and
// verifies that the output is a well-formed Go file.
func TestGenerate(t *testing.T) {
	a := assert.New(t)
	out := filepath.Join(t.TempDir(), "testdata_rac.go")

	g := &Gen{
		AssertedInterfaces: true,
		Dir:                "./testdata",
		Logger:             log.New(os.Stdout, "", 0),
		Mode:               contract.ModeCallSite,
		Outfile:            out,
		Packages:           []string{"."},
	}
	results, err := g.Execute(context.Background())
	require.NoError(t, err)
	a.Len(results, 1)
	a.Equal([]string{out}, g.written)

	src, err := os.ReadFile(out)
	require.NoError(t, err)

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, out, src, parser.ParseComments)
	require.NoError(t, err, string(src))
	a.Equal("testdata", file.Name.Name)
	a.Contains(string(src), "// "+Header)

	var imports []string
	for _, spec := range file.Imports {
		p, err := strconv.Unquote(spec.Path.Value)
		require.NoError(t, err)
		imports = append(imports, p)
	}
	a.ElementsMatch([]string{"github.com/cockroachdb/racgen/pkg/rac", "strings"}, imports)

	for _, name := range []string{
		"racCheckPostContainerPush",
		"racCheckPostStackPop",
		"racCheckPostStackJoin",
	} {
		a.Contains(string(src), "func "+name+"(")
	}
}

func TestRenderEmpty(t *testing.T) {
	a := assert.New(t)
	pkg := &frontend.Package{Name: "p", Path: "example.com/p"}
	src, err := Render(pkg, false)
	a.NoError(err)
	a.Nil(src)
}

func TestRender(t *testing.T) {
	a := assert.New(t)
	pkg := &frontend.Package{
		Name: "p",
		Path: "example.com/p",
		Wrappers: []*frontend.Wrapper{
			{
				GeneratedMethod: &synth.GeneratedMethod{
					Name:       "racCheckPostTitle",
					Doc:        "racCheckPostTitle checks Title.",
					CallTarget: "Title(s)",
					Params:     []contract.Param{{Name: "s", Type: "string"}},
					Results:    []string{"string"},
					Stmts: []synth.Stmt{
						{Phase: synth.PhaseInvokeOriginal, Kind: synth.StmtCode, Text: "racResult := Title(s)"},
						{Phase: synth.PhaseNormalPath, Kind: synth.StmtCode, Text: "_ = str.ToUpper(racResult)"},
						{Phase: synth.PhaseReturn, Kind: synth.StmtReturn, Text: "racResult"},
					},
				},
				Imports: map[string]string{"str": "strings"},
			},
			{
				GeneratedMethod: &synth.GeneratedMethod{
					Name:       "racCheckPostHelper",
					Doc:        "racCheckPostHelper checks helper.",
					CallTarget: "helper()",
					Stmts: []synth.Stmt{
						{Phase: synth.PhaseInvokeOriginal, Kind: synth.StmtCode, Text: "helper()"},
					},
				},
				Test: true,
			},
		},
	}

	src, err := Render(pkg, false)
	require.NoError(t, err)
	a.Contains(string(src), `str "strings"`)
	a.Contains(string(src), "func racCheckPostTitle(s string) string {")
	a.NotContains(string(src), "racCheckPostHelper")

	src, err = Render(pkg, true)
	require.NoError(t, err)
	a.Contains(string(src), "func racCheckPostHelper() {")
	a.NotContains(string(src), "strings")
}
