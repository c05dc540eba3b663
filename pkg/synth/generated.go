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

package synth

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/cockroachdb/racgen/pkg/contract"
	"github.com/cockroachdb/racgen/pkg/rac"
	"github.com/cockroachdb/racgen/pkg/util"
	"github.com/dave/jennifer/jen"
	"github.com/pkg/errors"
)

// A Phase identifies the step of synthesis that produced a statement.
// Phases only ever advance.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseDeclareTemps
	// PhaseCaptureEarly captures the old state that the precondition
	// depends on.
	PhaseCaptureEarly
	PhaseCheckPrecondition
	PhaseCaptureOldState
	PhaseInvokeOriginal
	PhaseNormalPath
	PhaseExceptionalPath
	PhaseReturn
	PhaseDone
)

var phaseNames = [...]string{
	PhaseInit:              "Init",
	PhaseDeclareTemps:      "DeclareTemps",
	PhaseCaptureEarly:      "CaptureEarly",
	PhaseCheckPrecondition: "CheckPrecondition",
	PhaseCaptureOldState:   "CaptureOldState",
	PhaseInvokeOriginal:    "InvokeOriginal",
	PhaseNormalPath:        "NormalPath",
	PhaseExceptionalPath:   "ExceptionalPath",
	PhaseReturn:            "Return",
	PhaseDone:              "Done",
}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// StmtKind describes how a Stmt is rendered.
type StmtKind int

const (
	// StmtDecl declares a temporary.
	StmtDecl StmtKind = iota + 1
	// StmtCapture records old state or evaluates a pre-expression.
	StmtCapture
	// StmtAux is supporting code, such as a quantifier closure.
	StmtAux
	// StmtCheck raises a violation if Text is false.
	StmtCheck
	// StmtCheckCause is a StmtCheck which records the caught signal.
	StmtCheckCause
	// StmtGuard invokes the checked method and branches on the result.
	StmtGuard
	// StmtPropagate passes nested violations through.
	StmtPropagate
	// StmtMatch runs Body if the caught signal has type Type.
	StmtMatch
	// StmtCode is pre-translated code, emitted verbatim.
	StmtCode
	// StmtRethrow raises the caught signal again.
	StmtRethrow
	StmtReturn
)

// A Stmt is one statement of a generated method.
type Stmt struct {
	Phase Phase
	Kind  StmtKind
	// Text holds the source of the statement, the predicate of a check
	// or the invocation of a guard.
	Text string
	// The violation raised by a check and its message.
	Signal  rac.Kind
	Message string
	// Type and Var describe the binding made by a StmtMatch.
	Type string
	Var  string
	// ErrorResult is set on a guard or rethrow when the checked method
	// reports failures through a trailing error.
	ErrorResult bool
	// Body is the content of a StmtMatch.
	Body []Stmt
	// Normal and Exceptional are the branches of a StmtGuard.
	Normal      []Stmt
	Exceptional []Stmt
}

// A GeneratedMethod is a wrapper that checks the contract of a Method.
type GeneratedMethod struct {
	Name   string
	Doc    string
	Method contract.Method
	Mode   contract.Mode
	// CallTarget is the expression that invokes the checked method.
	CallTarget string
	// Recv is the receiver of the wrapper, if it is a method.
	Recv    *contract.Param
	Params  []contract.Param
	Results []string
	Stmts   []Stmt
}

// Flatten returns every statement, depth first, in emission order.
func (g *GeneratedMethod) Flatten() []Stmt {
	var ret []Stmt
	var walk func(stmts []Stmt)
	walk = func(stmts []Stmt) {
		for _, s := range stmts {
			ret = append(ret, s)
			walk(s.Body)
			walk(s.Normal)
			walk(s.Exceptional)
		}
	}
	walk(g.Stmts)
	return ret
}

// Code returns the declaration of the wrapper.
func (g *GeneratedMethod) Code() *jen.Statement {
	lines := strings.Split(g.Doc, "\n")
	code := jen.Comment(lines[0])
	for _, line := range lines[1:] {
		code.Line().Comment(line)
	}
	code.Line().Func()
	if g.Recv != nil {
		code.Params(jen.Id(g.Recv.Name).Id(g.Recv.Type))
	}
	code.Id(g.Name).Params(params(g.Params)...)
	switch len(g.Results) {
	case 0:
	case 1:
		code.Id(g.Results[0])
	default:
		res := make([]jen.Code, len(g.Results))
		for i, r := range g.Results {
			res[i] = jen.Id(r)
		}
		code.Params(res...)
	}
	return code.Block(block(g.Stmts)...)
}

// Render returns the formatted source of the wrapper.
func (g *GeneratedMethod) Render() (string, error) {
	var buf bytes.Buffer
	if err := g.Code().Render(&buf); err != nil {
		return "", errors.Wrapf(err, "rendering %s", g.Name)
	}
	return buf.String(), nil
}

func params(ps []contract.Param) []jen.Code {
	ret := make([]jen.Code, len(ps))
	for i, p := range ps {
		if p.Variadic {
			ret[i] = jen.Id(p.Name).Op("...").Id(p.Type)
		} else {
			ret[i] = jen.Id(p.Name).Id(p.Type)
		}
	}
	return ret
}

func block(stmts []Stmt) []jen.Code {
	ret := make([]jen.Code, 0, len(stmts))
	for _, s := range stmts {
		ret = append(ret, s.code()...)
	}
	return ret
}

func (s Stmt) code() []jen.Code {
	caught := jen.Id(contract.CaughtVar)
	switch s.Kind {
	case StmtDecl, StmtCapture, StmtAux, StmtCode:
		return []jen.Code{jen.Id(s.Text)}

	case StmtCheck:
		return []jen.Code{jen.Qual(util.RuntimePath, "Check").Call(
			jen.Id(s.Text), jen.Qual(util.RuntimePath, s.Signal.String()), jen.Lit(s.Message))}

	case StmtCheckCause:
		return []jen.Code{jen.Qual(util.RuntimePath, "CheckCause").Call(
			jen.Id(s.Text), jen.Qual(util.RuntimePath, s.Signal.String()), caught, jen.Lit(s.Message))}

	case StmtGuard:
		ret := []jen.Code{
			jen.Id(contract.CaughtVar).Op(":=").Qual(util.RuntimePath, "Guard").Call(
				jen.Func().Params().Block(jen.Id(s.Text))),
		}
		if s.ErrorResult {
			ret = append(ret, jen.If(
				jen.Id(contract.CaughtVar).Op("==").Nil().Op("&&").Id(contract.ErrorVar).Op("!=").Nil(),
			).Block(jen.Id(contract.CaughtVar).Op("=").Id(contract.ErrorVar)))
		}
		if len(s.Normal) == 0 {
			return append(ret, jen.If(caught.Clone().Op("!=").Nil()).Block(block(s.Exceptional)...))
		}
		return append(ret, jen.If(caught.Clone().Op("==").Nil()).Block(block(s.Normal)...).
			Else().Block(block(s.Exceptional)...))

	case StmtPropagate:
		return []jen.Code{jen.Qual(util.RuntimePath, "Propagate").Call(caught)}

	case StmtMatch:
		v := s.Var
		if v == "" {
			v = "_"
		}
		return []jen.Code{jen.If(
			jen.List(jen.Id(v), jen.Id("ok")).Op(":=").
				Qual(util.RuntimePath, "As").Types(jen.Id(s.Type)).Call(caught),
			jen.Id("ok"),
		).Block(block(s.Body)...)}

	case StmtRethrow:
		if s.ErrorResult {
			return []jen.Code{jen.If(jen.Id(contract.ErrorVar).Op("==").Nil()).Block(jen.Panic(caught))}
		}
		return []jen.Code{jen.Panic(caught)}

	case StmtReturn:
		return []jen.Code{jen.Return(jen.Id(s.Text))}

	default:
		panic(errors.Errorf("unknown statement kind %d", s.Kind))
	}
}
