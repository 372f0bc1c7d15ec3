package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_AdjacencyByType(t *testing.T) {
	n := newTestNetwork(t, "a", "b", "c")
	require.NoError(t, n.AddConnection("a", "c", "follows"))
	require.NoError(t, n.AddConnection("a", "b", "follows"))
	require.NoError(t, n.AddConnection("b", "a", "friend"))

	ix := n.Index()
	assert.Equal(t, []UserID{"b", "c"}, ix.Outgoing("a", "follows"))
	assert.Empty(t, ix.Outgoing("a", "friend"))
	assert.Equal(t, []UserID{"a"}, ix.Incoming("b", "follows"))
	assert.Equal(t, []UserID{"b"}, ix.Incoming("a", "friend"))
	assert.Equal(t, []UserID{"b", "c"}, ix.Outgoing("a", AnyType))
	assert.Equal(t, 3, ix.EdgeCount())
	assert.True(t, ix.Has("c"))
	assert.False(t, ix.Has("z"))
}

func TestIndex_RebuiltAfterMutation(t *testing.T) {
	n := newTestNetwork(t, "a", "b")
	first := n.Index()
	assert.Same(t, first, n.Index())

	require.NoError(t, n.AddConnection("a", "b", "follows"))
	second := n.Index()
	assert.NotSame(t, first, second)
	assert.Equal(t, []UserID{"b"}, second.Outgoing("a", "follows"))

	n.AddUser("c", Attributes{})
	assert.True(t, n.Index().Has("c"))

	// A duplicate insert changes nothing but still leaves a usable index.
	n.AddUser("c", Attributes{})
	assert.Equal(t, []UserID{"a", "b", "c"}, n.Index().UserIDs())
}

func TestNewIndex_KeepsDanglingTargets(t *testing.T) {
	ix := NewIndex([]UserID{"a"}, []Edge{{From: "a", To: "ghost", Type: "follows"}})
	assert.Equal(t, []UserID{"ghost"}, ix.Outgoing("a", "follows"))
	assert.False(t, ix.Has("ghost"))
}
