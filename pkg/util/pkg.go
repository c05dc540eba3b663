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

// Package util defines shared constants and package-path helpers.
package util

import "strings"

// Base is the path of this package.  We need this because generated
// code refers to the runtime support package by its import path and
// because the runtime itself must never be instrumented.
const Base = "github.com/cockroachdb/racgen/pkg/"

// RuntimePath is the import path of the package that generated
// wrappers call into.
const RuntimePath = Base + "rac"

// InPackage checks to see if the given package path is the given
// path or is a vendored version of the same.
func InPackage(pkg, path string) bool {
	if pkg == path {
		return true
	}
	if strings.HasSuffix(pkg, "/vendor/"+path) {
		return true
	}
	return false
}
