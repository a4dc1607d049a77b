package flood

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardAllowsWithinBurst(t *testing.T) {
	g := NewGuard(60, 5)

	for i := 0; i < 5; i++ {
		assert.True(t, g.Allow("u1"), "message %d within burst", i)
	}
	assert.False(t, g.Allow("u1"), "burst exhausted")
}

func TestGuardIsPerSender(t *testing.T) {
	g := NewGuard(60, 1)

	assert.True(t, g.Allow("u1"))
	assert.False(t, g.Allow("u1"))
	assert.True(t, g.Allow("u2"), "second sender has its own bucket")
}

func TestDisabledGuardAllowsEverything(t *testing.T) {
	g := NewGuard(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, g.Allow("u1"))
	}

	var nilGuard *Guard
	assert.True(t, nilGuard.Allow("u1"))
}
