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
	"go/ast"
	"go/token"
	"regexp"
	"strings"

	"github.com/cockroachdb/racgen/pkg/contract"
	"github.com/cockroachdb/racgen/pkg/scan"
	"github.com/pkg/errors"
)

// commentSyntax matches a single-line or block comment that carries a
// directive, such as //rac:requires n > 0.
var commentSyntax = regexp.MustCompile(`^(?s)(?://|/\*)[[:space:]]*rac:([[:alnum:]_]+)(.*?)(?:\*/)?$`)

// The directives understood by the frontend.
const (
	DirectiveAlso        = "also"
	DirectiveConstructor = "constructor"
	DirectiveCrosscut    = "crosscut"
	DirectiveEnsures     = "ensures"
	DirectiveLet         = "let"
	DirectiveOld         = "old"
	DirectiveRequires    = "requires"
	DirectiveSignals     = "signals"
	DirectiveVisibility  = "visibility"
)

// Directives maps each directive to a short usage string.
var Directives = map[string]string{
	DirectiveAlso:        "starts a new specification case",
	DirectiveConstructor: "marks a function as the constructor of its result type",
	DirectiveCrosscut:    "marks a function as a pointcut whose advice wraps intercepted members",
	DirectiveEnsures:     "<expr>: a normal postcondition; may use \\result, \\old(e) and quantifiers",
	DirectiveLet:         "<ident> = <expr>: a boolean pre-expression evaluated on entry",
	DirectiveOld:         "<ident> [<Type>] = <expr>: binds pre-state to a name",
	DirectiveRequires:    "<expr>: a precondition",
	DirectiveSignals:     "(<Type> [var]) <expr>: an exceptional postcondition",
	DirectiveVisibility:  "public|protected|package|private",
}

// A directive is a single rac: comment.
type directive struct {
	Kind string
	Text string
	Pos  token.Pos
}

// parseDirectives extracts the directives from the comments that ast
// has associated with a declaration.
func parseDirectives(groups []*ast.CommentGroup) ([]directive, error) {
	var ret []directive
	for _, group := range groups {
		for _, comment := range group.List {
			matches := commentSyntax.FindStringSubmatch(comment.Text)
			if matches == nil {
				continue
			}
			d := directive{
				Kind: matches[1],
				Text: strings.TrimSpace(matches[2]),
				Pos:  comment.Pos(),
			}
			if _, ok := Directives[d.Kind]; !ok {
				return nil, errors.Errorf("unknown directive rac:%s", d.Kind)
			}
			ret = append(ret, d)
		}
	}
	return ret, nil
}

// An oldDecl is a parsed rac:old directive.
type oldDecl struct {
	Ident string
	Type  string
	Expr  string
}

func parseOld(text string) (oldDecl, error) {
	lhs, rhs := scan.SplitAssign(text)
	if rhs == "" {
		return oldDecl{}, errors.Errorf("rac:old %q: expecting <ident> [<Type>] = <expr>", text)
	}
	ident := scan.LeadingIdent(lhs)
	if ident == "" {
		return oldDecl{}, errors.Errorf("rac:old %q: missing identifier", text)
	}
	return oldDecl{
		Ident: ident,
		Type:  strings.TrimSpace(lhs[len(ident):]),
		Expr:  rhs,
	}, nil
}

func parseLet(text string) (ident, expr string, err error) {
	lhs, rhs := scan.SplitAssign(text)
	if rhs == "" || !scan.IsIdent(lhs) {
		return "", "", errors.Errorf("rac:let %q: expecting <ident> = <expr>", text)
	}
	return lhs, rhs, nil
}

// parseSignals splits "(T v) pred" into its parts. An empty pair of
// parentheses matches any error.
func parseSignals(text string) (contract.Signals, error) {
	if !strings.HasPrefix(text, "(") {
		return contract.Signals{}, errors.Errorf("rac:signals %q: expecting (<Type> [var])", text)
	}
	end := scan.MatchClose(text, 0)
	if end < 0 {
		return contract.Signals{}, errors.Errorf("rac:signals %q: unbalanced parentheses", text)
	}
	ret := contract.Signals{Predicate: contract.Predicate(strings.TrimSpace(text[end+1:]))}
	if ret.Predicate == "" {
		ret.Predicate = "true"
	}
	switch fields := strings.Fields(text[1:end]); len(fields) {
	case 0:
	case 1:
		ret.ExceptionType = fields[0]
	case 2:
		if !scan.IsIdent(fields[1]) {
			return contract.Signals{}, errors.Errorf("rac:signals %q: bad variable %q", text, fields[1])
		}
		ret.ExceptionType, ret.Var = fields[0], fields[1]
	default:
		return contract.Signals{}, errors.Errorf("rac:signals %q: expecting (<Type> [var])", text)
	}
	return ret, nil
}
