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

package testdata

import (
	"fmt"
	"strings"
)

// Container is a collection of non-negative numbers.
type Container interface {
	// Push adds an element.
	//
	//rac:requires x >= 0
	//rac:ensures \this.Len() == \old(\this.Len()) + 1
	Push(x int)
	// Len returns the number of elements.
	Len() int
}

var _ Container = &Stack{}

// ErrEmpty is returned when an operation needs a non-empty Stack.
type ErrEmpty struct {
	Op string
}

func (e *ErrEmpty) Error() string { return fmt.Sprintf("%s: empty stack", e.Op) }

// Stack is a Container backed by a slice.
type Stack struct {
	items []int
}

// NewStack returns a Stack holding the given items.
//
//rac:requires (\forall _, x := range items; x >= 0)
//rac:ensures \result.Len() == len(items)
func NewStack(items ...int) *Stack {
	return &Stack{items: append([]int(nil), items...)}
}

// Len implements Container.
//
//rac:ensures \result >= 0
func (s *Stack) Len() int { return len(s.items) }

// Push implements Container.
//
//rac:ensures s.items[len(s.items)-1] == x
func (s *Stack) Push(x int) { s.items = append(s.items, x) }

// Pop removes the top of the stack.
//
//rac:requires len(s.items) > 0
//rac:ensures \result == \old(s.items[len(s.items)-1])
//rac:also
//rac:requires len(s.items) == 0
//rac:signals (*ErrEmpty e) e.Op == "pop"
func (s *Stack) Pop() (int, error) {
	if len(s.items) == 0 {
		return 0, &ErrEmpty{Op: "pop"}
	}
	ret := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return ret, nil
}

// Sum adds the elements of the stack.
//
//rac:old n = len(s.items)
//rac:ensures \result == (\sum i int; 0 <= i && i < n; s.items[i])
func (s *Stack) Sum() int {
	ret := 0
	for _, x := range s.items {
		ret += x
	}
	return ret
}

// Join formats the stack.
//
//rac:requires sep != ""
//rac:ensures len(s.items) < 2 || strings.Contains(\result, sep)
func (s *Stack) Join(sep string) string {
	parts := make([]string, len(s.items))
	for i, x := range s.items {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, sep)
}

// Take drops the bottom of the stack, unless the caller expects it to
// be empty. It returns the number of remaining elements.
//
//rac:old n = len(s.items)
//rac:requires n > 0
//rac:ensures \result == len(s.items)
//rac:also
//rac:requires empty
//rac:ensures \result == 0 || !empty
func (s *Stack) Take(empty bool) int {
	if len(s.items) > 0 {
		s.items = s.items[1:]
	}
	return len(s.items)
}

// Audit is a pointcut over the members of Stack.
//
//rac:crosscut
//rac:ensures \result != nil
func Audit() *Stack { return nil }

//rac:ensures len(s.items) == 0
func (s *Stack) reset() { s.items = s.items[:0] }

// Unchecked has no contract.
func (s *Stack) Unchecked() {}

// Split returns more results than can be checked.
//
//rac:ensures true
func Split() (int, int, error) { return 0, 0, nil }
