package types

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalKey(t *testing.T) {
	assert.Equal(t, "new york", CanonicalKey("  New   York "))
	assert.Equal(t, "", CanonicalKey("   "))
}

func TestMergeAliases(t *testing.T) {
	got := MergeAliases("Alice", []string{"Ally"}, []string{"alice", "ALLY", "A. Smith", ""})
	assert.Equal(t, []string{"Ally", "A. Smith"}, got)
}

func TestClampWeight(t *testing.T) {
	assert.Equal(t, 0.0, ClampWeight(-1))
	assert.Equal(t, 1.0, ClampWeight(3))
	assert.Equal(t, 0.5, ClampWeight(0.5))
	assert.Equal(t, 0.0, ClampWeight(math.NaN()))
}

func TestIsValidFactType(t *testing.T) {
	assert.True(t, IsValidFactType(""))
	assert.True(t, IsValidFactType(FactOpinion))
	assert.False(t, IsValidFactType("rumour"))
}
