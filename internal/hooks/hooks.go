// Package hooks implements component G: given the synthesized forward
// kernel program and the fingerprint of its gradient companion, it
// produces the registration fragments an
// AD-framework adjoint registry would need, per spec.md 4.G. The core
// never imports any concrete AD framework (none exists in the example
// pack to ground one on, and spec.md treats them as black-box
// collaborators); each framework is instead modeled as an explicit
// capability flag set at driver construction, per the Design Note in
// spec.md 9 ("Reliance on name-based visibility of optional backends ...
// re-express as explicit feature flags").
package hooks

import (
	"fmt"

	"tensorgen/internal/kernel"
)

// FragmentKind names one of the three registration idioms spec.md 4.G
// alludes to ("adjoint rule, tracked-array overload, differentiation
// rule").
type FragmentKind int

const (
	// FragmentAdjointRule registers an explicit reverse-mode adjoint
	// function keyed by the forward function's identity.
	FragmentAdjointRule FragmentKind = iota
	// FragmentTrackedOverload installs a method overload dispatching on a
	// "tracked" wrapper type, the idiom used by frameworks that overload
	// arithmetic on a tape-recording value type.
	FragmentTrackedOverload
	// FragmentDiffRule registers a named differentiation rule in a
	// rule-table-style framework.
	FragmentDiffRule
)

func (k FragmentKind) String() string {
	switch k {
	case FragmentTrackedOverload:
		return "tracked-overload"
	case FragmentDiffRule:
		return "diff-rule"
	default:
		return "adjoint-rule"
	}
}

// Capabilities records which reverse-mode AD frameworks are visible to the
// caller, one explicit boolean per framework idiom rather than reflection
// over the caller's import graph.
type Capabilities struct {
	AdjointFramework  bool // a framework exposing an explicit adjoint-registration function
	TrackedFramework  bool // a framework exposing a tracked-array arithmetic overload
	DiffRuleFramework bool // a framework exposing a named differentiation-rule table
}

// Fragment is one registration fragment ready for the caller to splice
// into their framework's registry — "returned for the caller to
// eval/write, since installing it into a *running* program is, by
// construction, something only the caller's framework can do" (spec.md
// 4.G realization note).
type Fragment struct {
	Kind   FragmentKind
	Source string // templated Go source implementing the registration call
}

// Register produces one Fragment per AD framework capability present in
// caps, binding fwd (the forward program) to bwdFingerprint (its gradient
// companion's identity — gradients are computed by internal/grad, which
// has no kernel.Program of its own to hand back, only a fingerprint
// derived from fwd and the differentiation mode). Returns nil if
// bwdFingerprint is empty (no gradient was synthesized) or no framework
// capability is set, matching spec.md 4.G's "for each ... framework
// visible in the caller's scope."
func Register(fwd *kernel.Program, bwdFingerprint string, caps Capabilities) []Fragment {
	if bwdFingerprint == "" {
		return nil
	}

	var frags []Fragment
	if caps.AdjointFramework {
		frags = append(frags, Fragment{
			Kind: FragmentAdjointRule,
			Source: fmt.Sprintf(
				"adjoint.Register(%s, func(dZ *tensor.Array, args ...tensor.Value) []*tensor.Array {\n\treturn grad.Run(%s, dZ, args...)\n})",
				fwd.Fingerprint, bwdFingerprint),
		})
	}
	if caps.TrackedFramework {
		frags = append(frags, Fragment{
			Kind: FragmentTrackedOverload,
			Source: fmt.Sprintf(
				"func (z Tracked) apply_%s(args ...Tracked) Tracked {\n\treturn trackedCall(%s, %s, z, args)\n}",
				fwd.Fingerprint, fwd.Fingerprint, bwdFingerprint),
		})
	}
	if caps.DiffRuleFramework {
		frags = append(frags, Fragment{
			Kind: FragmentDiffRule,
			Source: fmt.Sprintf(
				"diffrules.Define(%q, %s, %s)", fwd.Fingerprint, fwd.Fingerprint, bwdFingerprint),
		})
	}
	return frags
}
