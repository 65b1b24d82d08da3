package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCapabilities_String(t *testing.T) {
	assert.Equal(t, "none", Capabilities(0).String())
	assert.Equal(t, "network|local-media", (NetworkReachable | LocalMediaMounted).String())
	assert.Equal(t, "network|depot|depot-mounted|local-media", AllCapabilities.String())
}

func TestCapabilities_Has(t *testing.T) {
	c := NetworkReachable | DepotReachable
	assert.True(t, c.Has(NetworkReachable))
	assert.True(t, c.Has(NetworkReachable|DepotReachable))
	assert.False(t, c.Has(DepotMounted))
	assert.True(t, c.Has(0))
}

func TestCapabilities_Consistent(t *testing.T) {
	assert.True(t, Capabilities(0).Consistent())
	assert.True(t, AllCapabilities.Consistent())
	assert.True(t, LocalMediaMounted.Consistent())
	assert.False(t, DepotMounted.Consistent())
	assert.False(t, (DepotReachable | DepotMounted).Consistent())
	assert.False(t, DepotReachable.Consistent())
}

func TestAssess(t *testing.T) {
	assert.ErrorIs(t, Assess(LocalMediaMounted, true), ErrEnvironmentUnready)
	assert.NoError(t, Assess(LocalMediaMounted, false))
	assert.NoError(t, Assess(NetworkReachable, true))
}
