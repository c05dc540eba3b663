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
	"bytes"
	"fmt"
	"go/token"
	"path/filepath"
	"sort"
	"strings"
)

// A Result describes a method for which no wrapper could be generated.
type Result struct {
	// Nested Results, such as the inherited declarations involved in a
	// composition failure.
	Children Results
	// The explanation of the failure.
	Data bytes.Buffer
	// The position of the method declaration.
	Pos token.Position
	// The qualified name of the method.
	Producer string
}

func newResult(fset *token.FileSet, pos token.Pos, producer string, err error) *Result {
	ret := &Result{
		Pos:      fset.Position(pos),
		Producer: producer,
	}
	fmt.Fprintf(&ret.Data, "%v", err)
	return ret
}

// String is suitable for human consumption.
func (r Result) String() string {
	return r.StringRelative("")
}

// StringRelative is suitable for human consumption and makes all
// emitted file paths relative to the given base path.
func (r Result) StringRelative(basePath string) string {
	sb := &strings.Builder{}
	sb.WriteString(fmt.Sprintf("In %s", r.Producer))
	r.string("", basePath, sb)
	return sb.String()
}

func (r Result) string(prefix, basePath string, into *strings.Builder) {
	if r.Data.Len() > 0 {
		prefix = "  " + prefix

		into.WriteString("\n")
		into.WriteString(prefix)

		if basePath == "" {
			into.WriteString(r.Pos.Filename)
		} else if rel, err := filepath.Rel(basePath, r.Pos.Filename); err != nil {
			into.WriteString(r.Pos.Filename)
		} else {
			into.WriteString(rel)
		}
		into.WriteString(fmt.Sprintf(":%d:%d: ", r.Pos.Line, r.Pos.Column))

		for idx, line := range strings.Split(r.Data.String(), "\n") {
			if idx > 0 {
				into.WriteString("\n")
				into.WriteString(prefix)
			}
			into.WriteString(line)
		}
	}

	for _, child := range r.Children {
		child.string(prefix, basePath, into)
	}
}

// Results is a sortable slice of Result.
type Results []*Result

var _ sort.Interface = Results{}

// Len implements sort.Interface.
func (r Results) Len() int { return len(r) }

// Less implements sort.Interface. It orders results by their filenames,
// position within the file, producer, and then by data.
func (r Results) Less(i, j int) bool {
	a, b := r[i], r[j]

	if c := strings.Compare(a.Pos.Filename, b.Pos.Filename); c != 0 {
		return c < 0
	}
	if c := a.Pos.Offset - b.Pos.Offset; c != 0 {
		return c < 0
	}
	if c := strings.Compare(a.Producer, b.Producer); c != 0 {
		return c < 0
	}
	return bytes.Compare(a.Data.Bytes(), b.Data.Bytes()) < 0
}

// Swap implements sort.Interface.
func (r Results) Swap(i, j int) { r[i], r[j] = r[j], r[i] }

// String is for debugging use only.
func (r Results) String() string {
	sb := &strings.Builder{}
	sorted := append(Results(nil), r...)
	sort.Sort(sorted)
	for _, result := range sorted {
		sb.WriteString(fmt.Sprintf("%s\n\n", result.String()))
	}
	return sb.String()
}
