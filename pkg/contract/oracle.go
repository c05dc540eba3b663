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

package contract

import (
	"strings"

	"github.com/cockroachdb/racgen/pkg/scan"
)

// An Oracle answers the questions the generators have about a
// contract that are not evident from a single clause.
type Oracle interface {
	// ReferencedInPrecondition reports whether ident is used by the
	// precondition of any spec case.
	ReferencedInPrecondition(c *MethodContract, ident string) bool
	// ReferencedInPreExpr reports whether ident is used by any
	// pre-expression.
	ReferencedInPreExpr(c *MethodContract, ident string) bool
	// IsCrosscut reports whether the method is a pointcut that
	// intercepts other members, rather than a plain declared method.
	IsCrosscut(m *Method) bool
}

// ScanOracle implements Oracle by scanning clause text for identifier
// tokens. A selector such as s.n is a reference to n.
type ScanOracle struct {
	// Crosscut holds the qualified names of crosscut methods.
	Crosscut map[string]bool
}

var _ Oracle = ScanOracle{}

// ReferencedInPrecondition implements Oracle.
func (ScanOracle) ReferencedInPrecondition(c *MethodContract, ident string) bool {
	for _, idx := range c.Preconditions.Indices() {
		p, _ := c.Preconditions.Get(idx)
		if scan.References(string(p), ident) {
			return true
		}
	}
	return false
}

// ReferencedInPreExpr implements Oracle.
func (ScanOracle) ReferencedInPreExpr(c *MethodContract, ident string) bool {
	return scan.References(strings.Join(c.PreExprs, "\n"), ident)
}

// IsCrosscut implements Oracle.
func (o ScanOracle) IsCrosscut(m *Method) bool {
	return o.Crosscut[m.String()]
}
