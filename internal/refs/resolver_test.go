package refs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowline-dev/flowline/api/schemas"
)

func TestNodeIDRoundTrip(t *testing.T) {
	cases := []struct {
		role  schemas.Role
		index int
		want  string
	}{
		{schemas.RoleSource, 0, "source-0"},
		{schemas.RoleSource, 2, "source-2"},
		{schemas.RoleEnricher, 11, "enricher-11"},
		{schemas.RoleAI, 0, "ai-0"},
		{schemas.RoleStorage, 3, "storage-3"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, NodeID(tc.role, tc.index))
			role, index, ok := ParseNodeID(tc.want)
			require.True(t, ok)
			assert.Equal(t, tc.role, role)
			assert.Equal(t, tc.index, index)
		})
	}
}

func TestParseNodeIDGroupAndInvalid(t *testing.T) {
	role, index, ok := ParseNodeID("source-group")
	require.True(t, ok)
	assert.Equal(t, schemas.RoleSource, role)
	assert.Equal(t, -1, index)

	for _, bad := range []string{"", "source", "source-", "-2", "widget-2", "source--1", "source-x"} {
		_, _, ok := ParseNodeID(bad)
		assert.False(t, ok, "id %q must not parse", bad)
	}
}

func TestRoleForKey(t *testing.T) {
	role, ok := RoleForKey("provider")
	require.True(t, ok)
	assert.Equal(t, schemas.RoleAI, role)

	role, ok = RoleForKey("storage")
	require.True(t, ok)
	assert.Equal(t, schemas.RoleStorage, role)

	_, ok = RoleForKey("feeds")
	assert.False(t, ok)
}

func TestResolveByName(t *testing.T) {
	doc := &schemas.Document{
		AI: []schemas.PluginEntry{{Name: "gpt"}, {Name: "claude"}, {Name: "gpt"}},
	}

	idx, ok := ResolveByName(doc, schemas.RoleAI, "claude")
	require.True(t, ok)
	assert.Equal(t, 1, idx)

	t.Run("duplicate names bind to the first match", func(t *testing.T) {
		idx, ok := ResolveByName(doc, schemas.RoleAI, "gpt")
		require.True(t, ok)
		assert.Equal(t, 0, idx)
	})

	_, ok = ResolveByName(doc, schemas.RoleAI, "gemini")
	assert.False(t, ok)
	_, ok = ResolveByName(doc, schemas.RoleAI, "")
	assert.False(t, ok)
	_, ok = ResolveByName(doc, schemas.RoleStorage, "gpt")
	assert.False(t, ok, "lookup is scoped to the target role")
}

func TestFindNodeAndNameForConnection(t *testing.T) {
	nodes := []schemas.Node{
		{ID: "ai-0", DisplayName: "gpt"},
		{
			ID:   "source-group",
			Kind: schemas.NodeKindGroup,
			Children: []schemas.Node{
				{ID: "source-0", DisplayName: "rss"},
				{ID: "source-1", DisplayName: "discord"},
			},
		},
	}

	require.NotNil(t, FindNode(nodes, "ai-0"))
	child := FindNode(nodes, "source-1")
	require.NotNil(t, child, "children are searched recursively")
	assert.Equal(t, "discord", child.DisplayName)
	assert.Nil(t, FindNode(nodes, "storage-0"))

	conn := schemas.Connection{
		From: schemas.ConnectionFrom{NodeID: "ai-0", Output: "provider"},
		To:   schemas.ConnectionTo{NodeID: "source-0", Input: "provider"},
	}
	name, ok := NameForConnection(conn, nodes)
	require.True(t, ok)
	assert.Equal(t, "gpt", name)

	conn.From.NodeID = "ai-9"
	_, ok = NameForConnection(conn, nodes)
	assert.False(t, ok)
}
