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

// Package contract defines the clause model consumed by the contract
// code generators.
//
// A MethodContract is built once per checked method, usually by the
// frontend from magic comments of the form
//
//	//rac:requires len(s.items) > 0
//	//rac:ensures \result == \old(len(s.items))
//
// A method may have several spec cases. Every clause table in a
// MethodContract is keyed by a spec-case index, and the Preconditions
// table defines which indices exist. The preconditions of the spec
// cases are combined by disjunction, while each normal postcondition
// must hold whenever the method returns normally.
//
//	//rac:requires n > 0
//	//rac:ensures \result == n
//	//rac:also
//	//rac:requires n == 0
//	//rac:signals (*ErrEmpty) true
//
// Old values are captured into temporary bindings before the checked
// method runs. The frontend names those bindings with the OldPrefix,
// which is how the generators recognize an old-state reference in a
// postcondition:
//
//	//rac:ensures \result == \old(len(s.items)) - 1
//
// becomes
//
//	OldExprDecls[0] = { "var racOld0 int" }
//	OldExprs[0]     = { "racOld0 = len(s.items)" }
//	NormalPostconditions[0] = "racResult == racOld0 - 1"
//
// Named old variables use a compound declaration, split at the first
// '/' into a declaration and a capture statement:
//
//	//rac:old n int = len(s.items)
//	OldVarDecls[0] = { "n int/n = len(s.items)" }
//
// Predicates are Go expressions. The generators treat them as text;
// they never need to be parsed.
package contract
