package hooks

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tensorgen/internal/kernel"
)

func TestRegisterNoFrameworksYieldsNoFragments(t *testing.T) {
	fwd := &kernel.Program{Fingerprint: "abc"}
	assert.Empty(t, Register(fwd, "def", Capabilities{}))
}

func TestRegisterEmptyBackwardFingerprintYieldsNoFragments(t *testing.T) {
	fwd := &kernel.Program{Fingerprint: "abc"}
	assert.Empty(t, Register(fwd, "", Capabilities{AdjointFramework: true}))
}

func TestRegisterOneFragmentPerCapability(t *testing.T) {
	fwd := &kernel.Program{Fingerprint: "abc"}
	frags := Register(fwd, "def", Capabilities{
		AdjointFramework:  true,
		TrackedFramework:  true,
		DiffRuleFramework: true,
	})
	if assert.Len(t, frags, 3) {
		assert.Equal(t, FragmentAdjointRule, frags[0].Kind)
		assert.Equal(t, FragmentTrackedOverload, frags[1].Kind)
		assert.Equal(t, FragmentDiffRule, frags[2].Kind)
		assert.Contains(t, frags[0].Source, "abc")
		assert.Contains(t, frags[0].Source, "def")
	}
}
