package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPKCEPair_ChallengeIsDeterministicFromVerifier(t *testing.T) {
	pair, err := newPKCEPair()
	require.NoError(t, err)
	assert.NotEmpty(t, pair.verifier)
	assert.NotEmpty(t, pair.challenge)
	assert.NotEqual(t, pair.verifier, pair.challenge)
}

func TestNewPKCEPair_GeneratesUniquePairs(t *testing.T) {
	a, err := newPKCEPair()
	require.NoError(t, err)
	b, err := newPKCEPair()
	require.NoError(t, err)
	assert.NotEqual(t, a.verifier, b.verifier)
}
