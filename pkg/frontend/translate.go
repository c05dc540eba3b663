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
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"strings"

	"github.com/cockroachdb/racgen/pkg/contract"
	"github.com/cockroachdb/racgen/pkg/scan"
	"github.com/pkg/errors"
	"golang.org/x/tools/go/ast/astutil"
	"golang.org/x/tools/go/packages"
)

// A decl is a function, method or interface method found in source.
type decl struct {
	Directives []directive
	Fn         *types.Func
	// Imports maps the package names visible in the declaring file to
	// their import paths.
	Imports map[string]string
	// Intf is set for the methods of an interface.
	Intf *types.Named
	Pkg  *packages.Package
	Pos  token.Pos
}

func (d *decl) String() string {
	if sig := d.Fn.Type().(*types.Signature); sig.Recv() != nil {
		return d.Fn.FullName()
	}
	return d.Fn.Pkg().Path() + "." + d.Fn.Name()
}

// decls is a sortable slice of *decl.
type decls []*decl

func (d decls) Len() int           { return len(d) }
func (d decls) Less(i, j int) bool { return d[i].Pos < d[j].Pos }
func (d decls) Swap(i, j int)      { d[i], d[j] = d[j], d[i] }

// The keywords which the quantifier expander will replace.
var quantifiers = map[string]bool{
	`\forall`: true,
	`\exists`: true,
	`\num_of`: true,
	`\sum`:    true,
}

// A translator turns the directives of one declaration into a
// MethodContract.
type translator struct {
	c    *contract.MethodContract
	d    *decl
	fset *token.FileSet
	// The replacements for \this and \result.
	this, result string

	// olds deduplicates \old expressions within a spec case.
	olds  map[string]string
	next  int
	scope *types.Package
}

// buildContract translates the directives of d. The returned flags
// report the crosscut directive.
func (l *Loader) buildContract(d *decl, hasBody bool) (*contract.MethodContract, bool, error) {
	m, err := method(d, hasBody)
	if err != nil {
		return nil, false, err
	}
	t := &translator{
		c:    &contract.MethodContract{Method: m},
		d:    d,
		fset: l.fset,
		this: m.Receiver,
		olds: make(map[string]string),
	}
	if t.this == "" {
		t.this = contract.ThisPlaceholder
	}
	switch {
	case m.Constructor:
		t.result = contract.ObjectPlaceholder
	case m.ReturnType != "":
		t.result = contract.ResultVar
	}

	crosscut := false
	idx := 0
	// The directives of the current spec case.
	var requires, ensures []string
	flush := func() error {
		if len(requires) == 0 && len(ensures) == 0 &&
			!t.c.ExceptionalPostconditions.Has(idx) && !t.c.OldVarDecls.Has(idx) {
			return nil
		}
		pre := conjoin(requires)
		if err := t.c.Preconditions.Put(idx, contract.Predicate(pre)); err != nil {
			return err
		}
		if len(ensures) > 0 {
			t.c.NormalPostconditions.Set(idx, contract.Predicate(conjoin(ensures)))
		}
		requires, ensures = nil, nil
		idx++
		return nil
	}

	for _, dir := range d.Directives {
		var err error
		switch dir.Kind {
		case DirectiveAlso:
			err = flush()

		case DirectiveConstructor:
			// Consumed by method.

		case DirectiveCrosscut:
			crosscut = true

		case DirectiveEnsures:
			var text string
			if text, err = t.expr(idx, dir.Text, true); err == nil {
				ensures = append(ensures, text)
			}

		case DirectiveLet:
			var ident, text string
			if ident, text, err = parseLet(dir.Text); err == nil {
				if text, err = t.expr(idx, text, false); err == nil {
					t.c.PreExprDecls = append(t.c.PreExprDecls, ident)
					t.c.PreExprs = append(t.c.PreExprs, ident+" = "+text)
				}
			}

		case DirectiveOld:
			err = t.oldVar(idx, dir.Text)

		case DirectiveRequires:
			var text string
			if text, err = t.expr(idx, dir.Text, false); err == nil {
				requires = append(requires, text)
			}

		case DirectiveSignals:
			var sig contract.Signals
			if sig, err = parseSignals(dir.Text); err == nil {
				var text string
				if text, err = t.expr(idx, string(sig.Predicate), true); err == nil {
					sig.Predicate = contract.Predicate(text)
					contract.Append(&t.c.ExceptionalPostconditions, idx, sig)
				}
			}

		case DirectiveVisibility:
			// Consumed by method.
		}
		if err != nil {
			return nil, false, errors.Wrapf(err, "at %s", l.fset.Position(dir.Pos))
		}
	}
	if err := flush(); err != nil {
		return nil, false, err
	}
	t.guardOlds()
	return t.c, crosscut, nil
}

// guardOlds makes the pre-state captures of each spec case conditional
// on the case's precondition, so that a capture is never evaluated in
// a state the case does not apply to. An old variable that a
// precondition or pre-expression reads is captured before the
// precondition is checked, and is left unguarded.
func (t *translator) guardOlds() {
	if t.c.Preconditions.Len() < 2 {
		return
	}
	oracle := contract.ScanOracle{}
	early := func(v contract.OldVar) bool {
		return oracle.ReferencedInPrecondition(t.c, v.Ident()) ||
			oracle.ReferencedInPreExpr(t.c, v.Ident())
	}
	guard := func(pre contract.Predicate, stmt string) string {
		return fmt.Sprintf("if %s {\n%s\n}", pre, stmt)
	}
	for _, idx := range t.c.Preconditions.Indices() {
		pre, _ := t.c.Preconditions.Get(idx)
		if !pre.HasAssertion() {
			continue
		}
		if exprs, ok := t.c.OldExprs.Get(idx); ok {
			guarded := make([]string, len(exprs))
			for i, e := range exprs {
				guarded[i] = guard(pre, e)
			}
			t.c.OldExprs.Set(idx, guarded)
		}
		if vars, ok := t.c.OldVarDecls.Get(idx); ok {
			guarded := make([]contract.OldVar, len(vars))
			for i, v := range vars {
				if early(v) || v.Capture() == "" {
					guarded[i] = v
					continue
				}
				guarded[i] = contract.OldVar(v.Decl() + "/" + guard(pre, v.Capture()))
			}
			t.c.OldVarDecls.Set(idx, guarded)
		}
	}
}

// method maps a Go declaration onto the model of a checked method.
func method(d *decl, hasBody bool) (contract.Method, error) {
	fn := d.Fn
	sig := fn.Type().(*types.Signature)
	if sig.TypeParams().Len() > 0 {
		return contract.Method{}, errors.New("generic functions are not supported")
	}
	qual := types.RelativeTo(fn.Pkg())
	ret := contract.Method{Name: fn.Name(), Visibility: contract.Package}
	if fn.Exported() {
		ret.Visibility = contract.Public
	}

	switch recv := sig.Recv(); {
	case d.Intf != nil:
		ret.Owner = d.Intf.Obj().Name()
		ret.Abstract = true

	case recv != nil:
		typ := recv.Type()
		if ptr, ok := typ.(*types.Pointer); ok {
			ret.PointerReceiver = true
			typ = ptr.Elem()
		}
		named, ok := typ.(*types.Named)
		if !ok {
			return contract.Method{}, errors.Errorf("unexpected receiver type %s", typ)
		}
		if named.TypeParams().Len() > 0 {
			return contract.Method{}, errors.New("methods of generic types are not supported")
		}
		ret.Owner = named.Obj().Name()
		if name := recv.Name(); name != "" && name != "_" {
			ret.Receiver = name
		}
		ret.Abstract = !hasBody

	default:
		ret.Static = true
		ret.Abstract = !hasBody
	}

	params := sig.Params()
	for i := 0; i < params.Len(); i++ {
		v := params.At(i)
		p := contract.Param{Name: v.Name(), Type: types.TypeString(v.Type(), qual)}
		if sig.Variadic() && i == params.Len()-1 {
			if slice, ok := v.Type().(*types.Slice); ok {
				p.Type = types.TypeString(slice.Elem(), qual)
				p.Variadic = true
			}
		}
		ret.Params = append(ret.Params, p)
	}

	results := sig.Results()
	errorType := types.Universe.Lookup("error").Type()
	switch n := results.Len(); {
	case n == 0:
	case n == 1 && types.Identical(results.At(0).Type(), errorType):
		ret.ReturnsError = true
	case n == 1:
		ret.ReturnType = types.TypeString(results.At(0).Type(), qual)
	case n == 2 && types.Identical(results.At(1).Type(), errorType):
		ret.ReturnType = types.TypeString(results.At(0).Type(), qual)
		ret.ReturnsError = true
	default:
		return contract.Method{}, errors.Errorf(
			"%d results are not supported; expecting (T), (error) or (T, error)", n)
	}

	for _, dir := range d.Directives {
		switch dir.Kind {
		case DirectiveConstructor:
			if sig.Recv() != nil || d.Intf != nil {
				return contract.Method{}, errors.New("a method cannot be a constructor")
			}
			ret.Constructor = true
		case DirectiveVisibility:
			vis, err := contract.ParseVisibility(dir.Text)
			if err != nil {
				return contract.Method{}, err
			}
			ret.Visibility = vis
		}
	}
	owner := constructed(fn, results)
	if owner != nil && fn.Name() == "New"+owner.Name() {
		ret.Constructor = true
	}
	if ret.Constructor {
		if owner == nil {
			return contract.Method{}, errors.New("a constructor must return a type declared in its package")
		}
		ret.Owner = owner.Name()
		ret.OwnerType = ret.ReturnType
	}
	return ret, nil
}

// constructed returns the named type built by a package function, if
// its first result is T or *T for some T of the same package.
func constructed(fn *types.Func, results *types.Tuple) *types.TypeName {
	if fn.Type().(*types.Signature).Recv() != nil || results.Len() == 0 {
		return nil
	}
	typ := results.At(0).Type()
	if ptr, ok := typ.(*types.Pointer); ok {
		typ = ptr.Elem()
	}
	named, ok := typ.(*types.Named)
	if !ok || named.Obj().Pkg() != fn.Pkg() {
		return nil
	}
	return named.Obj()
}

func conjoin(parts []string) string {
	switch len(parts) {
	case 0:
		return "true"
	case 1:
		return parts[0]
	}
	wrapped := make([]string, len(parts))
	for i, p := range parts {
		wrapped[i] = "(" + p + ")"
	}
	return strings.Join(wrapped, " && ")
}

// expr replaces the keywords of a clause with Go identifiers. The
// quantifier keywords are left for the expander.
func (t *translator) expr(idx int, text string, post bool) (string, error) {
	toks := scan.Idents(text)
	var sb strings.Builder
	last := 0
	for i := 0; i < len(toks); i++ {
		tok := toks[i]
		var to string
		switch {
		case tok.Text == `\old`:
			if !post {
				return "", errors.Errorf(`%s: \old is only allowed in postconditions`, text)
			}
			open := tok.End
			for open < len(text) && text[open] == ' ' {
				open++
			}
			end := -1
			if open < len(text) && text[open] == '(' {
				end = scan.MatchClose(text, open)
			}
			if end < 0 {
				return "", errors.Errorf(`%s: expecting \old(<expr>)`, text)
			}
			temp, err := t.old(idx, text[open+1:end])
			if err != nil {
				return "", err
			}
			sb.WriteString(text[last:tok.Pos])
			sb.WriteString(temp)
			last = end + 1
			for i+1 < len(toks) && toks[i+1].Pos < end {
				i++
			}
			continue

		case tok.Text == `\result`:
			if !post || t.result == "" {
				return "", errors.Errorf(`%s: \result is not available here`, text)
			}
			to = t.result

		case tok.Text == `\this`:
			to = t.this

		case quantifiers[tok.Text]:
			continue

		case strings.HasPrefix(tok.Text, `\`):
			return "", errors.Errorf("%s: unknown keyword %s", text, tok.Text)

		default:
			continue
		}
		sb.WriteString(text[last:tok.Pos])
		sb.WriteString(to)
		last = tok.End
	}
	sb.WriteString(text[last:])
	return strings.TrimSpace(sb.String()), nil
}

// old binds an \old expression to a fresh variable of the case and
// returns the variable's name.
func (t *translator) old(idx int, inner string) (string, error) {
	inner, err := t.expr(idx, inner, false)
	if err != nil {
		return "", err
	}
	node, err := parser.ParseExpr(inner)
	if err != nil {
		return "", errors.Wrapf(err, `\old(%s)`, inner)
	}
	node = astutil.Unparen(node)
	inner = inner[node.Pos()-1 : node.End()-1]

	key := fmt.Sprintf("%d/%s", idx, inner)
	if temp, ok := t.olds[key]; ok {
		return temp, nil
	}
	typ, err := t.typeOf(node, inner)
	if err != nil {
		return "", err
	}
	temp := fmt.Sprintf("%s%d", contract.OldPrefix, t.next)
	t.next++
	t.olds[key] = temp
	contract.Append(&t.c.OldExprDecls, idx, fmt.Sprintf("var %s %s", temp, typ))
	contract.Append(&t.c.OldExprs, idx, fmt.Sprintf("%s = %s", temp, inner))
	return temp, nil
}

// oldVar translates a rac:old directive.
func (t *translator) oldVar(idx int, text string) error {
	old, err := parseOld(text)
	if err != nil {
		return err
	}
	expr, err := t.expr(idx, old.Expr, false)
	if err != nil {
		return err
	}
	if old.Type == "" {
		node, err := parser.ParseExpr(expr)
		if err != nil {
			return errors.Wrapf(err, "rac:old %s", old.Ident)
		}
		if old.Type, err = t.typeOf(node, expr); err != nil {
			return err
		}
	}
	contract.Append(&t.c.OldVarDecls, idx, contract.OldVar(
		fmt.Sprintf("%s %s/%s = %s", old.Ident, old.Type, old.Ident, expr)))
	return nil
}

// typeOf evaluates the type of an expression written in the scope of
// the declaration: the package, the file's imports, the receiver and
// the parameters.
func (t *translator) typeOf(node ast.Expr, text string) (string, error) {
	if _, ok := node.(*ast.FuncLit); ok {
		return "", errors.Errorf("%s: cannot capture a function literal", text)
	}
	scope := t.evalScope()
	tv, err := types.Eval(t.fset, scope, token.NoPos, text)
	if err != nil {
		return "", errors.Wrapf(err, "cannot determine the type of %s; declare it with rac:old", text)
	}
	if !tv.IsValue() {
		return "", errors.Errorf("%s is not a value", text)
	}
	return types.TypeString(types.Default(tv.Type), types.RelativeTo(t.d.Fn.Pkg())), nil
}

// evalScope returns a package whose scope holds the package-level
// declarations together with the names visible inside the declaration.
func (t *translator) evalScope() *types.Package {
	if t.scope != nil {
		return t.scope
	}
	pkg := t.d.Fn.Pkg()
	ret := types.NewPackage(pkg.Path(), pkg.Name())
	scope := ret.Scope()

	sig := t.d.Fn.Type().(*types.Signature)
	declare := func(name string, typ types.Type) {
		if name != "" && name != "_" {
			scope.Insert(types.NewVar(token.NoPos, ret, name, typ))
		}
	}
	if t.d.Intf != nil {
		declare(contract.ThisPlaceholder, t.d.Intf)
	} else if recv := sig.Recv(); recv != nil {
		declare(t.this, recv.Type())
	}
	for i := 0; i < sig.Params().Len(); i++ {
		declare(sig.Params().At(i).Name(), sig.Params().At(i).Type())
	}

	imported := make(map[string]*types.Package)
	for _, imp := range pkg.Imports() {
		imported[imp.Path()] = imp
	}
	for name, path := range t.d.Imports {
		if imp := imported[path]; imp != nil {
			scope.Insert(types.NewPkgName(token.NoPos, ret, name, imp))
		}
	}
	for _, name := range pkg.Scope().Names() {
		scope.Insert(pkg.Scope().Lookup(name))
	}
	t.scope = ret
	return ret
}
