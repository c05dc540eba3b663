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
	"fmt"

	"github.com/pkg/errors"
)

// The Visibility of a method selects the family of violation signals
// raised under client-aware checking.
type Visibility int

// The zero value is not a valid Visibility.
const (
	Public Visibility = iota + 1
	Protected
	// Package is the package-default tier.
	Package
	Private
)

// Valid reports whether v is one of the four recognized tiers.
func (v Visibility) Valid() bool {
	return v >= Public && v <= Private
}

// String returns the keyword used for v in directives and generated
// documentation.
func (v Visibility) String() string {
	switch v {
	case Public:
		return "public"
	case Protected:
		return "protected"
	case Package:
		return "default"
	case Private:
		return "private"
	default:
		return fmt.Sprintf("Visibility(%d)", int(v))
	}
}

// Rank orders the tiers from least (private) to most (public) visible.
// It returns -1 for an invalid Visibility.
func (v Visibility) Rank() int {
	switch v {
	case Private:
		return 0
	case Package:
		return 1
	case Protected:
		return 2
	case Public:
		return 3
	default:
		return -1
	}
}

// ParseVisibility accepts public, protected, package, default or private.
func ParseVisibility(s string) (Visibility, error) {
	switch s {
	case "public":
		return Public, nil
	case "protected":
		return Protected, nil
	case "package", "default":
		return Package, nil
	case "private":
		return Private, nil
	default:
		return 0, errors.Errorf("unknown visibility %q", s)
	}
}

// A Mode selects where generated checks are injected and which
// family of violation signals they raise.
type Mode int

const (
	// ModeDirect wraps the execution of the method body.
	ModeDirect Mode = iota
	// ModeCallSite wraps each call to the method.
	ModeCallSite
	// ModeClientAware wraps each call and splits violation signals by
	// the visibility of the called method.
	ModeClientAware
)

// ParseMode maps an instrumentation token onto a Mode. Any token other
// than "callSite" or "clientAwareChecking" means direct checking.
func ParseMode(token string) Mode {
	switch token {
	case "callSite":
		return ModeCallSite
	case "clientAwareChecking":
		return ModeClientAware
	default:
		return ModeDirect
	}
}

// String returns the token accepted by ParseMode.
func (m Mode) String() string {
	switch m {
	case ModeCallSite:
		return "callSite"
	case ModeClientAware:
		return "clientAwareChecking"
	default:
		return "direct"
	}
}

// CallSite reports whether checks are woven around calls rather than
// around the method body. Constructors need a synthetic result binding
// in these modes.
func (m Mode) CallSite() bool {
	return m == ModeCallSite || m == ModeClientAware
}
