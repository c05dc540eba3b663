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

// A Table maps spec-case indices to values and iterates in insertion
// order. The zero value is an empty table ready to use.
type Table[V any] struct {
	indices []int
	values  map[int]V
}

// Put adds a value for a spec case. It is an error to add a second
// value for the same index.
func (t *Table[V]) Put(index int, v V) error {
	if _, found := t.values[index]; found {
		return malformed(index, "duplicate spec case")
	}
	t.Set(index, v)
	return nil
}

// Set adds or replaces the value for a spec case. A replaced value
// keeps its original position.
func (t *Table[V]) Set(index int, v V) {
	if t.values == nil {
		t.values = make(map[int]V)
	}
	if _, found := t.values[index]; !found {
		t.indices = append(t.indices, index)
	}
	t.values[index] = v
}

// Get returns the value for a spec case.
func (t *Table[V]) Get(index int) (V, bool) {
	v, ok := t.values[index]
	return v, ok
}

// Has reports whether the table contains a value for the spec case.
func (t *Table[V]) Has(index int) bool {
	_, ok := t.values[index]
	return ok
}

// Indices returns a copy of the spec-case indices, in insertion order.
func (t *Table[V]) Indices() []int {
	return append([]int(nil), t.indices...)
}

// Len returns the number of spec cases in the table.
func (t *Table[V]) Len() int {
	return len(t.indices)
}

// Each invokes fn in insertion order, stopping at the first error.
func (t *Table[V]) Each(fn func(index int, v V) error) error {
	for _, idx := range t.indices {
		if err := fn(idx, t.values[idx]); err != nil {
			return err
		}
	}
	return nil
}

// Append adds elements to the list stored for a spec case.
func Append[E any](t *Table[[]E], index int, elts ...E) {
	existing, _ := t.Get(index)
	t.Set(index, append(existing, elts...))
}
