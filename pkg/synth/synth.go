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

// Package synth generates the wrappers which check a contract at
// runtime.
//
// A wrapper declares its temporaries, captures old state, checks the
// precondition when the captured state requires it, then invokes the
// checked method exactly once under rac.Guard. A normal return is
// checked against every normal postcondition; a raised signal is
// checked against the exceptional postconditions and raised again.
// Violations raised by nested checked calls are never handled by the
// exceptional path.
package synth

import (
	"fmt"
	"log"
	"strings"

	"github.com/cockroachdb/racgen/pkg/classify"
	"github.com/cockroachdb/racgen/pkg/contract"
	"github.com/cockroachdb/racgen/pkg/oldexpr"
	"github.com/cockroachdb/racgen/pkg/quant"
	"github.com/cockroachdb/racgen/pkg/scan"
	"github.com/pkg/errors"
)

const (
	// Prefix begins the name of every wrapper.
	Prefix = "racCheckPost"
	// OrigPrefix begins the name that a checked method is renamed to
	// when its body is wrapped.
	OrigPrefix = "racOrig"
	// ProceedParam is the function which continues an intercepted call.
	ProceedParam = "racProceed"
)

// A Synthesizer builds wrappers. It holds no per-method state and may
// be shared by concurrent callers.
type Synthesizer struct {
	Oracle contract.Oracle
	Logger *log.Logger
}

// Synthesize builds the wrapper for a contract. No wrapper is returned
// if any part of the contract cannot be generated.
func (s *Synthesizer) Synthesize(
	c *contract.MethodContract, mode contract.Mode,
) (*GeneratedMethod, error) {
	ret, err := s.synthesize(c, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", c.Method.String())
	}
	s.printf("generated %s for %s", ret.Name, c.Method.String())
	return ret, nil
}

func (s *Synthesizer) oracle() contract.Oracle {
	if s.Oracle == nil {
		return contract.ScanOracle{}
	}
	return s.Oracle
}

// signature computes everything about the wrapper except its body.
type signature struct {
	gen        *GeneratedMethod
	crosscut   bool
	resultType string
	errResult  bool
	renames    map[string]string
}

func (s *Synthesizer) signature(c *contract.MethodContract, mode contract.Mode) (*signature, error) {
	m := c.Method
	unsupported := func(reason string) error {
		return errors.WithStack(&contract.UnsupportedGenerationModeError{
			Method: m.String(), Mode: mode, Reason: reason})
	}

	sig := &signature{
		crosscut: s.oracle().IsCrosscut(&m),
		gen:      &GeneratedMethod{Method: m, Mode: mode},
	}
	switch {
	case sig.crosscut && m.Constructor:
		return nil, unsupported("crosscut constructor")
	case m.Abstract && mode == contract.ModeDirect:
		return nil, unsupported("abstract method without a body")
	}

	// Result binding.
	switch {
	case sig.crosscut:
		sig.resultType = "interface{}"
	case m.ReturnType != "":
		sig.resultType = m.ReturnType
		sig.errResult = m.ReturnsError
	case m.Constructor && mode.CallSite():
		sig.resultType = m.ConstructedType()
		sig.errResult = m.ReturnsError
	default:
		sig.errResult = m.ReturnsError
	}
	if m.Constructor {
		if sig.resultType == "" {
			if usesObject(c) {
				return nil, unsupported("constructed object without a result binding")
			}
		} else {
			sig.renames = map[string]string{contract.ObjectPlaceholder: contract.ResultVar}
		}
	}

	// Parameters and call target.
	recv := m.Receiver
	if recv == "" {
		recv = contract.ThisPlaceholder
	}
	args := make([]string, len(m.Params))
	for i, p := range m.Params {
		if p.Name == "" || p.Name == "_" {
			p.Name = fmt.Sprintf("racArg%d", i)
		}
		sig.gen.Params = append(sig.gen.Params, p)
		args[i] = p.Name
		if p.Variadic {
			args[i] += "..."
		}
	}
	call := m.Name
	hasRecv := m.RecvType() != ""

	switch {
	case sig.crosscut:
		sig.gen.Name = Prefix + m.Owner + m.Name
		sig.gen.Params = append(sig.gen.Params,
			contract.Param{Name: ProceedParam, Type: "func() interface{}"})
		sig.gen.CallTarget = ProceedParam + "()"
		if hasRecv {
			sig.gen.Params = append([]contract.Param{{Name: recv, Type: m.RecvType()}}, sig.gen.Params...)
		}

	case mode == contract.ModeDirect:
		sig.gen.Name = Prefix + m.Name
		call = OrigPrefix + m.Name
		if hasRecv {
			sig.gen.Recv = &contract.Param{Name: recv, Type: m.RecvType()}
			call = recv + "." + call
		}
		sig.gen.CallTarget = call + "(" + strings.Join(args, ", ") + ")"

	default:
		sig.gen.Name = Prefix + m.Owner + m.Name
		if hasRecv {
			sig.gen.Params = append([]contract.Param{{Name: recv, Type: m.RecvType()}}, sig.gen.Params...)
			call = recv + "." + call
		}
		sig.gen.CallTarget = call + "(" + strings.Join(args, ", ") + ")"
	}

	if sig.resultType != "" {
		sig.gen.Results = append(sig.gen.Results, sig.resultType)
	}
	if sig.errResult {
		sig.gen.Results = append(sig.gen.Results, "error")
	}
	sig.gen.Doc = doc(sig.gen.Name, &m, sig.crosscut)
	return sig, nil
}

// doc returns the comment which describes a wrapper.
func doc(name string, m *contract.Method, crosscut bool) string {
	vis := m.Visibility.String()
	target := "method " + m.String()
	if crosscut {
		target = "members intercepted by " + m.String() + " pointcut"
	}
	return fmt.Sprintf("%s checks the %s precondition, normal and\nexceptional %s postcondition of %s.",
		name, vis, vis, target)
}

func usesObject(c *contract.MethodContract) bool {
	for _, kind := range []contract.ClauseKind{
		contract.KindPrecondition, contract.KindNormalPostcondition, contract.KindExceptionalPostcondition,
	} {
		for _, cl := range c.Clauses(kind) {
			if scan.References(string(cl.Pred()), contract.ObjectPlaceholder) {
				return true
			}
		}
	}
	return scan.References(strings.Join(c.XPostCode, "\n"), contract.ObjectPlaceholder)
}

// A builder accumulates statements. Its phase can only advance.
type builder struct {
	phase Phase
	stmts []Stmt
}

func (b *builder) enter(p Phase) {
	if p < b.phase {
		panic(errors.Errorf("cannot enter phase %s after %s", p, b.phase))
	}
	b.phase = p
}

func (b *builder) emit(s Stmt) {
	s.Phase = b.phase
	b.stmts = append(b.stmts, s)
}

// take returns the statements emitted since mark.
func (b *builder) take(mark int) []Stmt {
	ret := append([]Stmt(nil), b.stmts[mark:]...)
	b.stmts = b.stmts[:mark]
	return ret
}

func (s *Synthesizer) synthesize(
	c *contract.MethodContract, mode contract.Mode,
) (*GeneratedMethod, error) {
	m := &c.Method
	family, err := classify.FamilyFor(m.Visibility, mode)
	if err != nil {
		return nil, err
	}
	sig, err := s.signature(c, mode)
	if err != nil {
		return nil, err
	}
	plan, err := oldexpr.Extract(c, s.oracle())
	if err != nil {
		return nil, err
	}

	exp := &quant.Expander{}
	rename := func(text string) string { return scan.Rename(text, sig.renames) }
	// expand rewrites the quantifiers of a statement or predicate.
	expand := func(index int, text string) (quant.Expansion, error) {
		ret, err := exp.Expand(contract.Predicate(text), sig.renames)
		if err != nil {
			return quant.Expansion{}, errors.WithStack(&contract.MalformedClauseError{
				Index: index, Reason: err.Error()})
		}
		return ret, nil
	}
	message := func(text string) string {
		return m.String() + ": " + rename(text)
	}

	// Translate every piece of text up front, so that temporaries
	// which nothing reads can be marked as used.
	type piece struct {
		decls []string
		text  string
	}
	translate := func(index int, texts []string) ([]piece, error) {
		ret := make([]piece, len(texts))
		for i, t := range texts {
			e, err := expand(index, t)
			if err != nil {
				return nil, err
			}
			ret[i] = piece{decls: e.Decls, text: string(e.Pred)}
		}
		return ret, nil
	}

	early, err := translate(-1, plan.Early)
	if err != nil {
		return nil, err
	}
	preExprs, err := translate(-1, plan.PreExprs)
	if err != nil {
		return nil, err
	}

	var pre *piece
	precondition := c.Precondition()
	if plan.CheckPrecondition && precondition.HasAssertion() {
		p, err := translate(-1, []string{string(precondition)})
		if err != nil {
			return nil, err
		}
		pre = &p[0]
	}

	late, err := translate(-1, plan.Late)
	if err != nil {
		return nil, err
	}

	type post struct {
		piece
		message string
	}
	var posts []post
	for _, idx := range c.NormalPostconditions.Indices() {
		p, _ := c.NormalPostconditions.Get(idx)
		if !p.HasAssertion() {
			continue
		}
		tr, err := translate(idx, []string{string(p)})
		if err != nil {
			return nil, err
		}
		posts = append(posts, post{piece: tr[0], message: message(string(p))})
	}

	type signal struct {
		post
		typ, v string
	}
	var signals []signal
	var xpost []string
	if len(c.XPostCode) > 0 {
		for _, code := range c.XPostCode {
			xpost = append(xpost, rename(code))
		}
	} else {
		for _, cl := range c.Clauses(contract.KindExceptionalPostcondition) {
			x := cl.(contract.ExceptionalPostcondition)
			if !x.Predicate.HasAssertion() {
				continue
			}
			tr, err := translate(x.Index, []string{string(x.Predicate)})
			if err != nil {
				return nil, err
			}
			typ := x.ExceptionType
			if typ == "" {
				typ = "interface{}"
			}
			v := x.Var
			if v != "" && !scan.References(tr[0].text+strings.Join(tr[0].decls, "\n"), v) {
				v = ""
			}
			signals = append(signals, signal{
				post: post{piece: tr[0], message: message(x.Signals.String())},
				typ:  typ,
				v:    v,
			})
		}
	}

	// Everything that reads a temporary.
	var reads []string
	addReads := func(ps []piece, assignment bool) {
		for _, p := range ps {
			reads = append(reads, p.decls...)
			if assignment {
				reads = append(reads, rhs(p.text))
			} else {
				reads = append(reads, p.text)
			}
		}
	}
	addReads(early, true)
	addReads(preExprs, true)
	addReads(late, true)
	if pre != nil {
		addReads([]piece{*pre}, false)
	}
	for _, p := range posts {
		addReads([]piece{p.piece}, false)
	}
	for _, sg := range signals {
		addReads([]piece{sg.piece}, false)
	}
	reads = append(reads, xpost...)
	readText := strings.Join(reads, "\n")

	b := &builder{}
	emitPieces := func(kind StmtKind, ps []piece) {
		for _, p := range ps {
			for _, d := range p.decls {
				b.emit(Stmt{Kind: StmtAux, Text: d})
			}
			b.emit(Stmt{Kind: kind, Text: p.text})
		}
	}

	b.enter(PhaseDeclareTemps)
	if sig.resultType != "" {
		b.emit(Stmt{Kind: StmtDecl, Text: "var " + contract.ResultVar + " " + sig.resultType})
	}
	if sig.errResult {
		b.emit(Stmt{Kind: StmtDecl, Text: "var " + contract.ErrorVar + " error"})
	}
	for _, d := range plan.Decls {
		b.emit(Stmt{Kind: StmtDecl, Text: rename(d)})
	}
	for _, t := range plan.Temps() {
		if !scan.References(readText, t) {
			b.emit(Stmt{Kind: StmtAux, Text: "_ = " + t})
		}
	}

	b.enter(PhaseCaptureEarly)
	emitPieces(StmtCapture, early)
	emitPieces(StmtCapture, preExprs)

	if pre != nil {
		b.enter(PhaseCheckPrecondition)
		for _, d := range pre.decls {
			b.emit(Stmt{Kind: StmtAux, Text: d})
		}
		b.emit(Stmt{
			Kind:    StmtCheck,
			Text:    pre.text,
			Signal:  family.Precondition,
			Message: message(string(precondition)),
		})
	}

	b.enter(PhaseCaptureOldState)
	emitPieces(StmtCapture, late)

	b.enter(PhaseInvokeOriginal)
	var assign []string
	if sig.resultType != "" {
		assign = append(assign, contract.ResultVar)
	}
	if sig.errResult {
		assign = append(assign, contract.ErrorVar)
	}
	invoke := sig.gen.CallTarget
	if len(assign) > 0 {
		invoke = strings.Join(assign, ", ") + " = " + invoke
	}
	guard := Stmt{Kind: StmtGuard, Text: invoke, ErrorResult: sig.errResult}

	b.enter(PhaseNormalPath)
	mark := len(b.stmts)
	for _, p := range posts {
		for _, d := range p.decls {
			b.emit(Stmt{Kind: StmtAux, Text: d})
		}
		b.emit(Stmt{Kind: StmtCheck, Text: p.text, Signal: family.NormalPostcondition, Message: p.message})
	}
	guard.Normal = b.take(mark)

	b.enter(PhaseExceptionalPath)
	b.emit(Stmt{Kind: StmtPropagate})
	for _, code := range xpost {
		b.emit(Stmt{Kind: StmtCode, Text: code})
	}
	for _, sg := range signals {
		bodyMark := len(b.stmts)
		for _, d := range sg.decls {
			b.emit(Stmt{Kind: StmtAux, Text: d})
		}
		b.emit(Stmt{
			Kind:    StmtCheckCause,
			Text:    sg.text,
			Signal:  family.ExceptionalPostcondition,
			Message: sg.message,
		})
		body := b.take(bodyMark)
		b.emit(Stmt{Kind: StmtMatch, Type: sg.typ, Var: sg.v, Body: body})
	}
	b.emit(Stmt{Kind: StmtRethrow, ErrorResult: sig.errResult})
	guard.Exceptional = b.take(mark)

	guard.Phase = PhaseInvokeOriginal
	b.stmts = append(b.stmts, guard)

	b.enter(PhaseReturn)
	if len(assign) > 0 {
		b.emit(Stmt{Kind: StmtReturn, Text: strings.Join(assign, ", ")})
	}
	b.enter(PhaseDone)

	ret := sig.gen
	ret.Stmts = b.stmts
	return ret, nil
}

// rhs returns the right-hand side of an assignment, or the whole
// statement if it is not one. A capture guarded by an if statement
// reads its condition and the right-hand side of its body.
func rhs(stmt string) string {
	if strings.HasPrefix(stmt, "if ") {
		open, end := strings.Index(stmt, "{\n"), strings.LastIndex(stmt, "\n}")
		if open > 0 && end > open {
			return stmt[len("if "):open] + " " + rhs(strings.TrimSpace(stmt[open+2:end]))
		}
	}
	lhs, rest := scan.SplitAssign(stmt)
	if lhs == "" {
		return stmt
	}
	return rest
}

func (s *Synthesizer) printf(format string, args ...interface{}) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}
