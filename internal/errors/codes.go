// Package errors implements tensorgen's diagnostic model: every failure is
// raised at analysis time (compile-of-equation time), never silently
// deferred, per spec.md 7.
package errors

// Code identifies one of the diagnostic kinds enumerated in spec.md 7.
type Code string

const (
	ECUnsupportedEquation   Code = "T001" // LHS/RHS shape not recognized
	ECUnknownOption         Code = "T002" // option name not in the table
	ECIllegalOptionValue    Code = "T003" // out-of-domain value for an option
	ECRankMismatch          Code = "T004" // emitted as a runtime check, not raised here
	ECRangeDisagreement     Code = "T005" // two constraints that must agree but differ at runtime
	ECUnconstrainedIndex    Code = "T006" // analyzer cannot find any axis for an index
	ECOffsetWithoutSupport  Code = "T007" // non-1-origin axis requested, no offset-array facility
	ECBadInterpolation      Code = "T008" // $x with x not a bare symbol
	ECSelfReferenceOnCreate Code = "T009" // Z := ... Z ...
	ECUnsupportedForDual    Code = "T010" // RHS construct defeats dual-number differentiation
	ECUnsupportedAffine     Code = "T011" // non-integer affine scaling (Open Question: rejected)
	ECUnsupportedIndexExpr  Code = "T012" // an index position expression that isn't affine in at most one symbol
)
