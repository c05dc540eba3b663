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

// Package gen writes the wrappers found by the frontend into Go source
// files which sit next to the checked packages.
package gen

import (
	"bytes"
	"context"
	"go/format"
	"go/parser"
	"go/token"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/racgen/pkg/contract"
	"github.com/cockroachdb/racgen/pkg/frontend"
	"github.com/cockroachdb/racgen/pkg/util"
	"github.com/dave/jennifer/jen"
	"github.com/pkg/errors"
	"golang.org/x/tools/go/ast/astutil"
)

// Header is the first line of every generated file.
const Header = "Code generated by racgen. DO NOT EDIT."

// Gen generates runtime assertion checks for a set of packages.
type Gen struct {
	// If true, only explicitly asserted interface implementations
	// inherit interface contracts.
	AssertedInterfaces bool
	// Additional build flags to pass to the loader.
	BuildFlags []string
	// The directory to operate in.
	Dir string
	// An optional Logger to receive diagnostic messages.
	Logger *log.Logger
	// The instrumentation mode of the wrappers.
	Mode contract.Mode
	// Override the output filename. This is only valid when a single
	// package is generated.
	Outfile string
	// The package-patterns to generate checks for.
	Packages []string
	// If true, the test sources for the package will be included.
	Tests bool

	// The files written by the last call to Execute.
	written []string
}

// Execute generates one file per package, plus one test file for the
// wrappers of declarations found in test sources. Declarations which
// cannot be checked are reported by the returned Results.
func (g *Gen) Execute(ctx context.Context) (frontend.Results, error) {
	l := &frontend.Loader{
		AssertedInterfaces: g.AssertedInterfaces,
		BuildFlags:         g.BuildFlags,
		Dir:                g.Dir,
		Logger:             g.Logger,
		Mode:               g.Mode,
		Packages:           g.Packages,
		Tests:              g.Tests,
	}
	pkgs, results, err := l.Execute(ctx)
	if err != nil {
		return nil, err
	}

	g.written = g.written[:0]
	for _, pkg := range pkgs {
		// The runtime must never be instrumented.
		if util.InPackage(pkg.Path, util.RuntimePath) {
			g.printf("skipping %s", pkg.Path)
			continue
		}
		for _, test := range []bool{false, true} {
			src, err := Render(pkg, test)
			if err != nil {
				return nil, err
			}
			if src == nil {
				continue
			}
			name, err := g.filename(pkg, test)
			if err != nil {
				return nil, err
			}
			if err := os.WriteFile(name, src, 0644); err != nil {
				return nil, errors.Wrap(err, name)
			}
			g.printf("wrote %s", name)
			g.written = append(g.written, name)
		}
	}
	return results, nil
}

func (g *Gen) filename(pkg *frontend.Package, test bool) (string, error) {
	if g.Outfile != "" {
		if len(g.written) > 0 {
			return "", errors.Errorf("--out cannot be used when generating %s and %s",
				g.written[0], pkg.Path)
		}
		return g.Outfile, nil
	}
	if test {
		return filepath.Join(pkg.Dir, pkg.Name+"_rac_test.go"), nil
	}
	return filepath.Join(pkg.Dir, pkg.Name+"_rac.go"), nil
}

// Render returns the formatted source of the wrappers of a package. It
// returns nil if there are no wrappers to write. The test flag selects
// the wrappers of declarations found in test sources.
func Render(pkg *frontend.Package, test bool) ([]byte, error) {
	f := jen.NewFilePathName(pkg.Path, pkg.Name)
	f.HeaderComment(Header)
	f.ImportName(util.RuntimePath, "rac")

	imports := make(map[string]string)
	count := 0
	for _, w := range pkg.Wrappers {
		if w.Test != test {
			continue
		}
		f.Add(w.Code())
		f.Line()
		for name, path := range w.Imports {
			imports[name] = path
		}
		count++
	}
	if count == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, errors.Wrapf(err, "rendering %s", pkg.Path)
	}
	return addImports(buf.Bytes(), imports)
}

// addImports declares the packages referred to by contract text, which
// the renderer cannot see.
func addImports(src []byte, imports map[string]string) ([]byte, error) {
	if len(imports) == 0 {
		return src, nil
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", src, parser.ParseComments)
	if err != nil {
		return nil, errors.Wrap(err, "parsing generated source")
	}

	names := make([]string, 0, len(imports))
	for name := range imports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		importPath := imports[name]
		if name == path.Base(importPath) {
			astutil.AddImport(fset, file, importPath)
		} else {
			astutil.AddNamedImport(fset, file, name, importPath)
		}
	}

	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return nil, errors.Wrap(err, "formatting generated source")
	}
	return buf.Bytes(), nil
}

// printf will emit a diagnostic message via the Logger, if one is set.
func (g *Gen) printf(format string, args ...interface{}) {
	if g.Logger != nil {
		g.Logger.Printf(format, args...)
	}
}
