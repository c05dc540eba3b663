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

// Package quant rewrites quantified expressions into calls of local
// closures, so that the predicates which contain them become plain Go.
//
// The supported forms are
//
//	(\forall i int; 0 <= i && i < len(xs); xs[i] > 0)
//	(\exists i, j int; 0 <= i && i < n && i < j && j < n; xs[i] == xs[j])
//	(\num_of k, v := range m; v > 0)
//	(\sum i int64; 1 <= i && i <= n; i * i)
//
// A typed quantifier must bound each of its variables from below and
// from above with a top-level conjunct of its range predicate; any
// other conjunct acts as a filter. The range form iterates over a
// collection and may have an optional filter before the body. The
// rewriting is lexical: it only needs balanced delimiters to find the
// boundaries of each quantifier.
package quant

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/racgen/pkg/contract"
	"github.com/cockroachdb/racgen/pkg/scan"
	"github.com/pkg/errors"
)

// DefaultPrefix begins the name of every generated closure.
const DefaultPrefix = "racQuant"

// MalformedQuantifierError is returned for a quantifier that cannot be
// rewritten.
type MalformedQuantifierError struct {
	Text   string
	Reason string
}

func (e *MalformedQuantifierError) Error() string {
	return fmt.Sprintf("malformed quantifier %q: %s", e.Text, e.Reason)
}

// An Expansion is the result of rewriting a predicate.
type Expansion struct {
	// Decls declare the closures, in the order they must be emitted.
	Decls []string
	Pred  contract.Predicate
}

// An Expander numbers the closures it generates, so all expansions
// for one generated method should share an Expander.
type Expander struct {
	Prefix string
	next   int
}

// Expand rewrites every quantifier in pred. The renames are applied
// to the predicate before anything else, so that the declarations and
// the predicate always agree on identifier names.
func (e *Expander) Expand(pred contract.Predicate, renames map[string]string) (Expansion, error) {
	s := scan.Rename(string(pred), renames)
	decls, out, err := e.expand(s)
	if err != nil {
		return Expansion{}, err
	}
	return Expansion{Decls: decls, Pred: contract.Predicate(out)}, nil
}

type quantifier int

const (
	forall quantifier = iota
	exists
	numOf
	sum
)

var quantifiers = map[string]quantifier{
	`\forall`: forall,
	`\exists`: exists,
	`\num_of`: numOf,
	`\sum`:    sum,
}

// Contains reports whether s has any quantifier in it.
func Contains(s string) bool {
	for _, tok := range scan.Idents(s) {
		if _, ok := quantifiers[tok.Text]; ok {
			return true
		}
	}
	return false
}

// expand rewrites the outermost quantifiers of s. Nested quantifiers
// are handled while emitting the closure of their parent.
func (e *Expander) expand(s string) ([]string, string, error) {
	if !Contains(s) {
		return nil, s, nil
	}

	var decls []string
	var sb strings.Builder
	last := 0
	for _, tok := range scan.Idents(s) {
		if tok.Pos < last {
			continue
		}
		q, ok := quantifiers[tok.Text]
		if !ok {
			continue
		}
		open := strings.LastIndexFunc(s[:tok.Pos], func(r rune) bool {
			return r != ' ' && r != '\t' && r != '\n'
		})
		if open < 0 || s[open] != '(' {
			return nil, "", errors.WithStack(&MalformedQuantifierError{
				Text: s[tok.Pos:], Reason: "quantifiers must be parenthesized"})
		}
		end := scan.MatchClose(s, open)
		if end < 0 {
			return nil, "", errors.WithStack(&MalformedQuantifierError{
				Text: s[open:], Reason: "unbalanced parentheses"})
		}

		name := fmt.Sprintf("%s%d", e.prefix(), e.next)
		e.next++
		decl, err := e.closure(name, q, s[open:end+1], s[tok.End:end])
		if err != nil {
			return nil, "", err
		}
		decls = append(decls, decl)
		sb.WriteString(s[last:open])
		sb.WriteString(name + "()")
		last = end + 1
	}
	sb.WriteString(s[last:])
	return decls, sb.String(), nil
}

func (e *Expander) prefix() string {
	if e.Prefix == "" {
		return DefaultPrefix
	}
	return e.Prefix
}

func (e *Expander) closure(name string, q quantifier, text, inner string) (string, error) {
	malformed := func(reason string, args ...interface{}) error {
		return errors.WithStack(&MalformedQuantifierError{Text: text, Reason: fmt.Sprintf(reason, args...)})
	}

	parts := scan.SplitTopLevel(inner, ";")
	var loops []string
	var guards []string
	var body string
	var resultType string

	if binding := parts[0]; strings.Contains(binding, ":=") {
		// Range form.
		lhs, rhs, _ := strings.Cut(binding, ":=")
		rhs = strings.TrimSpace(rhs)
		if !strings.HasPrefix(rhs, "range ") {
			return "", malformed("expecting range clause")
		}
		switch len(parts) {
		case 2:
			body = parts[1]
		case 3:
			guards = []string{parts[1]}
			body = parts[2]
		default:
			return "", malformed("expecting binding; [filter;] body")
		}
		if q == sum {
			return "", malformed("sum requires a typed variable")
		}
		vars := scan.SplitTopLevel(lhs, ",")
		used := strings.Join(append([]string{body}, guards...), " ")
		for i, v := range vars {
			if !scan.IsIdent(v) || len(vars) > 2 {
				return "", malformed("bad range variables %q", lhs)
			}
			if v != "_" && !scan.References(used, v) {
				vars[i] = "_"
			}
		}
		header := "for " + strings.Join(vars, ", ") + " := " + rhs
		switch {
		case len(vars) == 1 && vars[0] == "_", len(vars) == 2 && vars[0] == "_" && vars[1] == "_":
			header = "for " + rhs
		case len(vars) == 2 && vars[1] == "_":
			header = "for " + vars[0] + " := " + rhs
		}
		loops = []string{header}
	} else {
		// Typed form.
		if len(parts) != 3 {
			return "", malformed("expecting declaration; range; body")
		}
		names, typ, err := parseDecl(binding)
		if err != nil {
			return "", malformed("%v", err)
		}
		resultType = typ
		body = parts[2]

		conjuncts := scan.SplitTopLevel(parts[1], "&&")
		usedBound := make([]bool, len(conjuncts))
		for n, v := range names {
			var lower, upper, upperOp string
			for i, conj := range conjuncts {
				lo, hi, op, ok := bounds(conj, v)
				if !ok || referencesAny(lo+" "+hi, names[n:]) {
					continue
				}
				if lo != "" && lower == "" {
					lower = lo
					usedBound[i] = true
				}
				if hi != "" && upper == "" {
					upper, upperOp = hi, op
					usedBound[i] = true
				}
			}
			if lower == "" {
				return "", malformed("no lower bound for %s", v)
			}
			if upper == "" {
				return "", malformed("no upper bound for %s", v)
			}
			init := lower
			if typ != "int" {
				init = typ + "(" + lower + ")"
			}
			loops = append(loops,
				fmt.Sprintf("for %s := %s; %s %s %s; %s++", v, init, v, upperOp, upper, v))
		}
		for i, conj := range conjuncts {
			if !usedBound[i] && conj != "" {
				guards = append(guards, conj)
			}
		}
	}

	if body == "" {
		return "", malformed("empty body")
	}
	var guardDecls []string
	for i := range guards {
		decls, guard, err := e.expand(guards[i])
		if err != nil {
			return "", err
		}
		guardDecls = append(guardDecls, decls...)
		guards[i] = guard
	}
	bodyDecls, body, err := e.expand(body)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	switch q {
	case forall, exists:
		fmt.Fprintf(&sb, "%s := func() bool {\n", name)
	case numOf:
		fmt.Fprintf(&sb, "%s := func() (racCount int64) {\n", name)
	case sum:
		fmt.Fprintf(&sb, "%s := func() (racSum %s) {\n", name, resultType)
	}
	for _, header := range loops {
		sb.WriteString(header + " {\n")
	}
	for _, d := range guardDecls {
		sb.WriteString(d + "\n")
	}
	if len(guards) > 0 {
		fmt.Fprintf(&sb, "if !(%s) {\ncontinue\n}\n", strings.Join(guards, " && "))
	}
	for _, d := range bodyDecls {
		sb.WriteString(d + "\n")
	}
	switch q {
	case forall:
		fmt.Fprintf(&sb, "if !(%s) {\nreturn false\n}\n", body)
	case exists:
		fmt.Fprintf(&sb, "if %s {\nreturn true\n}\n", body)
	case numOf:
		fmt.Fprintf(&sb, "if %s {\nracCount++\n}\n", body)
	case sum:
		fmt.Fprintf(&sb, "racSum += %s\n", body)
	}
	for range loops {
		sb.WriteString("}\n")
	}
	switch q {
	case forall:
		sb.WriteString("return true\n")
	case exists:
		sb.WriteString("return false\n")
	default:
		sb.WriteString("return\n")
	}
	sb.WriteString("}")
	return sb.String(), nil
}

// parseDecl splits a declaration such as "i, j int" into the variable
// names and their type.
func parseDecl(decl string) ([]string, string, error) {
	var names []string
	rest := strings.TrimSpace(decl)
	for {
		id := scan.LeadingIdent(rest)
		if id == "" {
			return nil, "", errors.Errorf("bad declaration %q", decl)
		}
		names = append(names, id)
		rest = strings.TrimSpace(rest[len(id):])
		if !strings.HasPrefix(rest, ",") {
			break
		}
		rest = strings.TrimSpace(rest[1:])
	}
	if rest == "" {
		return nil, "", errors.Errorf("missing type in %q", decl)
	}
	return names, rest, nil
}

// bounds extracts a bound on v from a comparison. A lower bound is
// returned as the first value of v, an upper bound together with the
// operator that v must satisfy. A chained comparison such as
// 0 <= i < n yields both.
func bounds(conj, v string) (lower, upper, op string, ok bool) {
	lhs, cmp, rhs, ok := scan.Comparison(conj)
	if !ok {
		return "", "", "", false
	}

	// Chained: lo <= v < hi
	if l2, cmp2, r2, chained := scan.Comparison(rhs); chained && l2 == v {
		lo, _, _, ok1 := bounds(lhs+" "+cmp+" "+v, v)
		_, hi, op2, ok2 := bounds(v+" "+cmp2+" "+r2, v)
		if ok1 && ok2 {
			return lo, hi, op2, true
		}
		return "", "", "", false
	}

	switch {
	case lhs == v && (cmp == ">=" || cmp == ">"):
		return start(rhs, cmp == ">"), "", "", true
	case lhs == v && (cmp == "<" || cmp == "<="):
		return "", rhs, cmp, true
	case rhs == v && (cmp == "<=" || cmp == "<"):
		return start(lhs, cmp == "<"), "", "", true
	case rhs == v && (cmp == ">" || cmp == ">="):
		return "", lhs, flip(cmp), true
	}
	return "", "", "", false
}

func referencesAny(s string, idents []string) bool {
	for _, id := range idents {
		if scan.References(s, id) {
			return true
		}
	}
	return false
}

// start returns the first value of a variable bounded below by lo.
func start(lo string, exclusive bool) string {
	if !exclusive {
		return lo
	}
	if scan.IsIdent(lo) || isNumber(lo) {
		return lo + " + 1"
	}
	return "(" + lo + ") + 1"
}

func flip(cmp string) string {
	switch cmp {
	case ">":
		return "<"
	case ">=":
		return "<="
	default:
		return cmp
	}
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
