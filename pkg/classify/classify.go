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

// Package classify maps a clause onto the violation signal that a
// failed check of that clause raises.
package classify

import (
	"github.com/cockroachdb/racgen/pkg/contract"
	"github.com/cockroachdb/racgen/pkg/rac"
	"github.com/pkg/errors"
)

// A Signal is the outcome of classifying a clause.
type Signal struct {
	Kind       rac.Kind
	Clause     contract.ClauseKind
	Visibility contract.Visibility
	Mode       contract.Mode
}

// A Family holds the signals raised by the checks of one method.
type Family struct {
	Precondition             rac.Kind
	NormalPostcondition      rac.Kind
	ExceptionalPostcondition rac.Kind
}

// clientAware is indexed by visibility, then by clause kind.
var clientAware = map[contract.Visibility][3]rac.Kind{
	contract.Public: {
		rac.EntryPublicPrecondition,
		rac.ExitPublicNormalPostcondition,
		rac.ExitPublicExceptionalPostcondition,
	},
	contract.Protected: {
		rac.EntryProtectedPrecondition,
		rac.ExitProtectedNormalPostcondition,
		rac.ExitProtectedExceptionalPostcondition,
	},
	contract.Package: {
		rac.EntryDefaultPrecondition,
		rac.ExitDefaultNormalPostcondition,
		rac.ExitDefaultExceptionalPostcondition,
	},
	contract.Private: {
		rac.EntryPrivatePrecondition,
		rac.ExitPrivateNormalPostcondition,
		rac.ExitPrivateExceptionalPostcondition,
	},
}

var undifferentiated = [3]rac.Kind{
	rac.InternalPrecondition,
	rac.ExitNormalPostcondition,
	rac.ExitExceptionalPostcondition,
}

// Classify returns the signal raised when a clause of the given kind
// fails. The visibility is always validated, even in modes which do
// not distinguish between visibility tiers.
func Classify(
	kind contract.ClauseKind, vis contract.Visibility, mode contract.Mode,
) (Signal, error) {
	ret := Signal{Clause: kind, Visibility: vis, Mode: mode}
	if !vis.Valid() {
		return Signal{}, errors.WithStack(&contract.UnknownVisibilityError{Visibility: vis})
	}

	var slot int
	switch kind {
	case contract.KindPrecondition:
		slot = 0
	case contract.KindNormalPostcondition:
		slot = 1
	case contract.KindExceptionalPostcondition:
		slot = 2
	case contract.KindUnreachable:
		ret.Kind = rac.Unreachable
		return ret, nil
	default:
		return Signal{}, errors.WithStack(&contract.UnsupportedGenerationModeError{
			Method: kind.String(),
			Mode:   mode,
			Reason: "clause classification",
		})
	}

	if mode == contract.ModeClientAware {
		ret.Kind = clientAware[vis][slot]
	} else {
		ret.Kind = undifferentiated[slot]
	}
	return ret, nil
}

// FamilyFor classifies the precondition, normal postcondition and
// exceptional postcondition of a method at once.
func FamilyFor(vis contract.Visibility, mode contract.Mode) (Family, error) {
	var ret Family
	for _, x := range []struct {
		kind contract.ClauseKind
		dest *rac.Kind
	}{
		{contract.KindPrecondition, &ret.Precondition},
		{contract.KindNormalPostcondition, &ret.NormalPostcondition},
		{contract.KindExceptionalPostcondition, &ret.ExceptionalPostcondition},
	} {
		sig, err := Classify(x.kind, vis, mode)
		if err != nil {
			return Family{}, err
		}
		*x.dest = sig.Kind
	}
	return ret, nil
}
