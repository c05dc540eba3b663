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

// Package frontend loads Go packages, reads the rac: directives attached
// to their declarations and synthesizes a checking wrapper for every
// contracted function or method.
package frontend

import (
	"context"
	"go/ast"
	"go/token"
	"go/types"
	"log"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/racgen/pkg/compose"
	"github.com/cockroachdb/racgen/pkg/contract"
	"github.com/cockroachdb/racgen/pkg/scan"
	"github.com/cockroachdb/racgen/pkg/synth"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

// A Loader finds the contracts declared in a set of packages.
type Loader struct {
	// If true, we will only consider types to implement an interface
	// if there is an explicit assertion of the form:
	//   var _ Intf = &Impl{}
	AssertedInterfaces bool
	// Additional build flags to pass to the loader.
	BuildFlags []string
	// Allows the working directory to be overridden.
	Dir string
	// An optional Logger to receive diagnostic messages.
	Logger *log.Logger
	// The instrumentation mode of the generated wrappers.
	Mode contract.Mode
	// The package-patterns to load.
	Packages []string
	// If true, the test sources for the package will be included.
	Tests bool

	fset   *token.FileSet
	oracle *TypeOracle
	pkgs   []*packages.Package
	ssaPgm *ssa.Program

	mu struct {
		sync.Mutex
		results  Results
		wrappers map[*packages.Package][]*Wrapper
	}
}

// A Package collects the wrappers generated for one Go package.
type Package struct {
	// The directory which holds the package's sources.
	Dir  string
	Name string
	Path string
	// Wrappers are ordered by the position of their declarations.
	Wrappers []*Wrapper
}

// A Wrapper is the generated method for one declaration.
type Wrapper struct {
	*synth.GeneratedMethod
	// The contract that the wrapper checks, after composition.
	Contract *contract.MethodContract
	// Imports maps the package names used by the wrapper's code to
	// their import paths.
	Imports map[string]string
	Pos     token.Position
	// Test is set if the declaration is in a _test.go file.
	Test bool
}

// A job is the composition and synthesis of one declaration.
type job struct {
	decl      *decl
	own       *contract.MethodContract
	inherited []*contract.MethodContract
	// The interface methods that the inherited contracts came from.
	sources []*decl
}

// Execute loads the packages and generates the wrappers. Methods that
// cannot be checked are described by the returned Results; they do not
// prevent other methods from being generated.
func (l *Loader) Execute(ctx context.Context) ([]*Package, Results, error) {
	absDir, err := filepath.Abs(l.Dir)
	if err != nil {
		return nil, nil, err
	}
	l.Dir = absDir
	if len(l.Packages) == 0 {
		return nil, nil, errors.New("no packages specified")
	}
	// Load the source
	l.fset = token.NewFileSet()
	cfg := &packages.Config{
		BuildFlags: l.BuildFlags,
		Context:    ctx,
		Dir:        l.Dir,
		Fset:       l.fset,
		Mode:       packages.LoadAllSyntax,
		Tests:      l.Tests,
	}
	pkgs, err := packages.Load(cfg, l.Packages...)
	if err != nil {
		return nil, nil, err
	}
	l.pkgs = pkgs
	l.mu.wrappers = make(map[*packages.Package][]*Wrapper)

	// Prep SSA program. We'll build it once the declarations are known.
	l.ssaPgm, _ = ssautil.AllPackages(pkgs, 0 /* mode */)

	found, assertions, err := l.findDecls(ctx)
	if err != nil {
		return nil, nil, err
	}

	l.ssaPgm.Build()
	l.oracle = NewOracle(l.ssaPgm, assertions)

	work, oracle := l.plan(found)
	syn := &synth.Synthesizer{Oracle: oracle, Logger: l.Logger}
	if err := l.synthesizeAll(ctx, syn, work); err != nil {
		return nil, nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var ret []*Package
	for pkg, wrappers := range l.mu.wrappers {
		sort.Slice(wrappers, func(i, j int) bool {
			a, b := wrappers[i].Pos, wrappers[j].Pos
			if a.Filename != b.Filename {
				return a.Filename < b.Filename
			}
			return a.Offset < b.Offset
		})
		p := &Package{Name: pkg.Name, Path: pkg.PkgPath, Wrappers: wrappers}
		if len(pkg.GoFiles) > 0 {
			p.Dir = filepath.Dir(pkg.GoFiles[0])
		}
		ret = append(ret, p)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Path < ret[j].Path })

	results := append(Results(nil), l.mu.results...)
	sort.Sort(results)
	return ret, results, nil
}

// findDecls scans every file for function and interface-method
// declarations, together with interface assertions.
func (l *Loader) findDecls(ctx context.Context) (decls, Assertions, error) {
	// mu protects the variables shared between goroutines.
	mu := struct {
		sync.Mutex
		assertions Assertions
		decls      decls
	}{
		assertions: make(Assertions),
	}

	add := func(d *decl) {
		mu.Lock()
		mu.decls = append(mu.decls, d)
		mu.Unlock()
	}

	process := func(pkg *packages.Package, file *ast.File) {
		imports := fileImports(pkg, file)
		comments := ast.NewCommentMap(pkg.Fset, file, file.Comments)

		// extract records a declaration, reporting malformed directives.
		extract := func(node ast.Node, fn *types.Func, intf *types.Named) {
			if fn == nil {
				return
			}
			d := &decl{
				Fn:      fn,
				Imports: imports,
				Intf:    intf,
				Pkg:     pkg,
				Pos:     node.Pos(),
			}
			dirs, err := parseDirectives(comments[node])
			if err != nil {
				l.report(newResult(l.fset, node.Pos(), d.String(), err))
				return
			}
			d.Directives = dirs
			if len(dirs) > 0 {
				l.println("found", d)
			}
			add(d)
		}

		ast.Inspect(file, func(node ast.Node) bool {
			// We'll see a node==nil as the very last call.
			if node == nil {
				return false
			}

			switch t := node.(type) {
			case *ast.FuncDecl:
				// Top-level function or method declarations, such as
				//   func Foo() { .... }
				//   func (r Receiver) Bar() { ... }
				fn, _ := pkg.TypesInfo.Defs[t.Name].(*types.Func)
				extract(t, fn, nil)
				// We don't need to descend into function bodies.
				return false

			case *ast.GenDecl:
				switch t.Tok {
				case token.TYPE:
					// Interface declarations carry abstract contracts on
					// their methods, such as
					//   type I interface {
					//     //rac:requires x > 0
					//     Foo(x int)
					//   }
					for _, spec := range t.Specs {
						tSpec := spec.(*ast.TypeSpec)
						iType, ok := tSpec.Type.(*ast.InterfaceType)
						if !ok {
							continue
						}
						obj := pkg.TypesInfo.Defs[tSpec.Name]
						if obj == nil {
							continue
						}
						named, ok := obj.Type().(*types.Named)
						if !ok {
							continue
						}
						for _, field := range iType.Methods.List {
							if _, ok := field.Type.(*ast.FuncType); !ok || len(field.Names) == 0 {
								continue
							}
							fn, _ := pkg.TypesInfo.Defs[field.Names[0]].(*types.Func)
							extract(field, fn, named)
						}
					}

				case token.VAR:
					// Assertion declarations, such as
					//   var _ Intf = &Impl{}
					//   var _ Intf = Impl{}
					for _, spec := range t.Specs {
						v := spec.(*ast.ValueSpec)
						if len(v.Values) != 1 || v.Names[0].Name != "_" || v.Type == nil {
							continue
						}
						named, ok := pkg.TypesInfo.TypeOf(v.Type).(*types.Named)
						if !ok || !types.IsInterface(named) {
							continue
						}
						var impl types.Object
						switch v := pkg.TypesInfo.TypeOf(v.Values[0]).(type) {
						case *types.Named:
							impl = v.Obj()
						case *types.Pointer:
							if named, ok := v.Elem().(*types.Named); ok {
								impl = named.Obj()
							}
						}
						if impl != nil {
							l.println("assertion", named.Obj().Name(), impl.Name())
							mu.Lock()
							mu.assertions[named.Obj()] = append(mu.assertions[named.Obj()], impl)
							mu.Unlock()
						}
					}
				}
				return false

			default:
				return true
			}
		})
	}

	type work struct {
		pkg  *packages.Package
		file *ast.File
	}
	workCh := make(chan work, 1)

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < runtime.NumCPU(); i++ {
		g.Go(func() error {
			for {
				select {
				case next, open := <-workCh:
					if !open {
						return nil
					}
					process(next.pkg, next.file)
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}

	var loadErr error
sendLoop:
	for _, pkg := range l.pkgs {
		// See discussion on package.Config type for the naming scheme.
		if l.Tests && !strings.HasSuffix(pkg.ID, ".test]") {
			continue
		}
		if pkg.Errors != nil {
			loadErr = errors.Wrap(pkg.Errors[0], "could not load source due to error(s)")
			break
		}

		for _, file := range pkg.Syntax {
			select {
			case workCh <- work{pkg, file}:
			case <-ctx.Done():
				break sendLoop
			}
		}
	}
	close(workCh)

	// Wait for all the goroutines to exit.
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if loadErr != nil {
		return nil, nil, loadErr
	}

	// Produce stable output.
	sort.Sort(mu.decls)
	return mu.decls, mu.assertions, nil
}

// plan translates the contracts and attaches the contracts of
// interface methods to their implementations.
func (l *Loader) plan(found decls) ([]*job, contract.ScanOracle) {
	oracle := contract.ScanOracle{Crosscut: make(map[string]bool)}
	byFn := make(map[*types.Func]*job, len(found))
	var ret []*job

	get := func(d *decl) *job {
		if j := byFn[d.Fn]; j != nil {
			return j
		}
		j := &job{decl: d}
		byFn[d.Fn] = j
		return j
	}

	for _, d := range found {
		if len(d.Directives) == 0 {
			continue
		}
		hasBody := d.Intf == nil && l.oracle.HasBody(d.Fn)
		c, crosscut, err := l.buildContract(d, hasBody)
		if err != nil {
			l.report(newResult(l.fset, d.Pos, d.String(), err))
			continue
		}
		if crosscut {
			oracle.Crosscut[c.Method.String()] = true
		}
		get(d).own = c
	}

	// Attach the contracts of interface methods to their implementors.
	concrete := make(map[*types.Func]*decl, len(found))
	for _, d := range found {
		if d.Intf == nil {
			concrete[d.Fn] = d
		}
	}
	for _, d := range found {
		j := byFn[d.Fn]
		if d.Intf == nil || j == nil || j.own == nil {
			continue
		}
		intf := d.Intf.Underlying().(*types.Interface)
		for _, fn := range l.oracle.MethodImplementors(intf, d.Fn.Name(), l.AssertedInterfaces) {
			impl := concrete[fn]
			if impl == nil {
				continue
			}
			l.println("inherit", impl, "from", d)
			ij := get(impl)
			ij.inherited = append(ij.inherited, j.own)
			ij.sources = append(ij.sources, d)
		}
	}

	for _, d := range found {
		j := byFn[d.Fn]
		if j == nil || j.decl != d {
			continue
		}
		// Interfaces have no bodies to wrap, but their callers can
		// still be checked.
		if d.Intf != nil && !l.Mode.CallSite() {
			continue
		}
		if j.own == nil {
			c, _, err := l.buildContract(d, d.Intf == nil && l.oracle.HasBody(d.Fn))
			if err != nil {
				l.report(newResult(l.fset, d.Pos, d.String(), err))
				continue
			}
			j.own = c
		}
		ret = append(ret, j)
	}
	return ret, oracle
}

// synthesizeAll fans the jobs out to a pool of workers.
func (l *Loader) synthesizeAll(ctx context.Context, syn *synth.Synthesizer, work []*job) error {
	g, ctx := errgroup.WithContext(ctx)
	ch := make(chan *job, 1)

	for i := 0; i < runtime.NumCPU(); i++ {
		g.Go(func() error {
			for {
				select {
				case j, open := <-ch:
					if !open {
						return nil
					}
					l.synthesize(syn, j)
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		})
	}

sendLoop:
	for i, j := range work {
		select {
		case ch <- j:
			// Allow completed jobs to be garbage-collected.
			work[i] = nil
		case <-ctx.Done():
			break sendLoop
		}
	}
	close(ch)

	return g.Wait()
}

func (l *Loader) synthesize(syn *synth.Synthesizer, j *job) {
	d := j.decl
	l.printf("synthesizing %s: %s (%d inherited)", l.fset.Position(d.Pos), d, len(j.inherited))

	c, err := compose.Compose(j.own, j.inherited...)
	if err != nil {
		r := newResult(l.fset, d.Pos, d.String(), err)
		for _, src := range j.sources {
			child := newResult(l.fset, src.Pos, src.String(), errors.Errorf("inherited from %s", src))
			r.Children = append(r.Children, child)
		}
		l.report(r)
		return
	}

	gm, err := syn.Synthesize(c, l.Mode)
	if err != nil {
		l.report(newResult(l.fset, d.Pos, d.String(), err))
		return
	}

	pos := l.fset.Position(d.Pos)
	w := &Wrapper{
		GeneratedMethod: gm,
		Contract:        c,
		Imports:         usedImports(gm, d.Imports),
		Pos:             pos,
		Test:            strings.HasSuffix(pos.Filename, "_test.go"),
	}
	l.mu.Lock()
	l.mu.wrappers[d.Pkg] = append(l.mu.wrappers[d.Pkg], w)
	l.mu.Unlock()
}

func (l *Loader) report(r *Result) {
	l.printf("%s", r)
	l.mu.Lock()
	l.mu.results = append(l.mu.results, r)
	l.mu.Unlock()
}

// fileImports maps the package names visible in a file to their import
// paths. Packages imported by other files of the package are included
// under their own names, since type names are printed that way.
func fileImports(pkg *packages.Package, file *ast.File) map[string]string {
	ret := make(map[string]string)
	for _, spec := range file.Imports {
		var obj types.Object
		if spec.Name != nil {
			obj = pkg.TypesInfo.Defs[spec.Name]
		} else {
			obj = pkg.TypesInfo.Implicits[spec]
		}
		if pkgName, ok := obj.(*types.PkgName); ok {
			ret[pkgName.Name()] = pkgName.Imported().Path()
		}
	}
	for _, imp := range pkg.Types.Imports() {
		if _, ok := ret[imp.Name()]; !ok {
			ret[imp.Name()] = imp.Path()
		}
	}
	return ret
}

// usedImports returns the subset of imports which the wrapper's code
// refers to.
func usedImports(gm *synth.GeneratedMethod, imports map[string]string) map[string]string {
	var texts []string
	for _, s := range gm.Flatten() {
		texts = append(texts, s.Text, s.Type)
	}
	if gm.Recv != nil {
		texts = append(texts, gm.Recv.Type)
	}
	for _, p := range gm.Params {
		texts = append(texts, p.Type)
	}
	texts = append(texts, gm.Results...)

	ret := make(map[string]string)
	for _, text := range texts {
		for _, tok := range scan.Idents(text) {
			if tok.Selector || tok.End >= len(text) || text[tok.End] != '.' {
				continue
			}
			if path, ok := imports[tok.Text]; ok {
				ret[tok.Text] = path
			}
		}
	}
	return ret
}

// printf will emit a diagnostic message via the Logger, if one is set.
func (l *Loader) printf(format string, args ...interface{}) {
	if l.Logger != nil {
		l.Logger.Printf(format, args...)
	}
}

// println will emit a diagnostic message via the Logger, if one is set.
func (l *Loader) println(args ...interface{}) {
	if l.Logger != nil {
		l.Logger.Println(args...)
	}
}
