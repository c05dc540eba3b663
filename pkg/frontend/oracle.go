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
	"go/types"
	"sync"

	"golang.org/x/tools/go/ssa"
)

// Assertions define type relationships that have been explicitly
// asserted in source.  Generally, these are declarations of the form
//
//	var _ A = &B{}
type Assertions map[types.Object][]types.Object

// A TypeOracle answers questions about a program's typesystem.
// All methods are safe to call from multiple goroutines.
type TypeOracle struct {
	assertedImplementors map[*types.Interface][]types.Object
	pgm                  *ssa.Program
	mu                   struct {
		sync.RWMutex
		typeImplementors map[*types.Interface][]types.Object
	}
}

// NewOracle constructs a TypeOracle. The program must already have
// been built.
func NewOracle(pgm *ssa.Program, assertions Assertions) *TypeOracle {
	ret := &TypeOracle{
		assertedImplementors: make(map[*types.Interface][]types.Object, len(assertions)),
		pgm:                  pgm,
	}
	for k, v := range assertions {
		if intf, ok := k.Type().Underlying().(*types.Interface); ok {
			ret.assertedImplementors[intf] = v
		}
	}
	ret.mu.typeImplementors = make(map[*types.Interface][]types.Object)
	return ret
}

// MethodImplementors finds the declarations of the named method on all
// concrete types which implement the given interface. Promoted methods
// are not reported, since they inherit nothing from the interface.
func (o *TypeOracle) MethodImplementors(
	intf *types.Interface, name string, assertedOnly bool,
) []*types.Func {
	impls := o.TypeImplementors(intf, assertedOnly)
	ret := make([]*types.Func, 0, len(impls))
	for _, impl := range impls {
		// Try on the type directly
		sel := o.pgm.MethodSets.MethodSet(impl.Type()).Lookup(impl.Pkg(), name)
		if sel == nil {
			sel = o.pgm.MethodSets.MethodSet(types.NewPointer(impl.Type())).Lookup(impl.Pkg(), name)
		}
		if sel == nil {
			continue
		}
		fn := o.pgm.MethodValue(sel)
		// Interfaces implement themselves.
		if fn == nil || fn.Synthetic != "" {
			continue
		}
		if obj, ok := fn.Object().(*types.Func); ok {
			ret = append(ret, obj)
		}
	}
	return ret
}

// TypeImplementors returns the concrete types which implement the given
// interface. If assertedOnly is set, only explicit assertions made by
// the user are considered.
func (o *TypeOracle) TypeImplementors(intf *types.Interface, assertedOnly bool) []types.Object {
	var ret []types.Object

	if assertedOnly {
		ret = o.assertedImplementors[intf]
	} else {
		o.mu.RLock()
		// We may insert nil slices later on, so use comma-ok.
		maybe, found := o.mu.typeImplementors[intf]
		o.mu.RUnlock()

		if !found {
			for _, typ := range o.pgm.RuntimeTypes() {
				if types.IsInterface(typ) || !types.Implements(typ, intf) {
					continue
				}
				var lastName types.Object
			chase:
				for {
					switch t := typ.(type) {
					case *types.Pointer:
						typ = t.Elem()
					case *types.Named:
						lastName = t.Obj()
						typ = t.Underlying()
					default:
						break chase
					}
				}
				if lastName != nil && !containsObject(maybe, lastName) {
					maybe = append(maybe, lastName)
				}
			}

			o.mu.Lock()
			o.mu.typeImplementors[intf] = maybe
			o.mu.Unlock()
		}
		ret = maybe
	}

	// Return copies of non-nil slices.
	if ret != nil {
		ret = append([]types.Object(nil), ret...)
	}
	return ret
}

// HasBody reports whether the function has a Go body to wrap.
func (o *TypeOracle) HasBody(fn *types.Func) bool {
	v := o.pgm.FuncValue(fn)
	return v != nil && len(v.Blocks) > 0
}

func containsObject(objs []types.Object, obj types.Object) bool {
	for _, o := range objs {
		if o == obj {
			return true
		}
	}
	return false
}
