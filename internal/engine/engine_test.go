package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/flowline-dev/flowline/api/schemas"
	"github.com/flowline-dev/flowline/internal/document"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// sessionDoc is a small but fully wired pipeline: two sources, one generator,
// two ai providers and one storage backend, with three live references.
func sessionDoc() *schemas.Document {
	return &schemas.Document{
		Name: "daily-brief",
		Sources: []schemas.PluginEntry{
			{Name: "rss", Params: schemas.Params{"provider": "gpt", "url": "https://news.example/feed"}, Interval: 300},
			{Name: "scraper", Params: schemas.Params{"depth": float64(2)}},
		},
		Generators: []schemas.PluginEntry{
			{Name: "digest", Params: schemas.Params{"provider": "gpt", "storage": "db"}},
		},
		AI: []schemas.PluginEntry{
			{Name: "gpt", Params: schemas.Params{"model": "gpt-4"}},
			{Name: "claude", Params: schemas.Params{"model": "claude-3"}},
		},
		Storage: []schemas.PluginEntry{
			{Name: "db", Params: schemas.Params{"path": "/tmp/brief.db"}},
		},
	}
}

type fakeStore struct {
	docs    map[string]*schemas.Document
	saved   []*schemas.Document
	failure error
}

func (s *fakeStore) Load(_ context.Context, name string) (*schemas.Document, error) {
	doc, ok := s.docs[name]
	if !ok {
		return nil, fmt.Errorf("document %q not found", name)
	}
	return doc.Clone(), nil
}

func (s *fakeStore) Save(_ context.Context, doc *schemas.Document) error {
	if s.failure != nil {
		return s.failure
	}
	s.saved = append(s.saved, doc)
	return nil
}

func (s *fakeStore) List(context.Context) ([]string, error) {
	names := make([]string, 0, len(s.docs))
	for name := range s.docs {
		names = append(names, name)
	}
	return names, nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(zaptest.NewLogger(t), nil)
	require.NoError(t, e.LoadDocument(sessionDoc()))
	return e
}

// countEvents wires a counter to every structural event kind.
func countEvents(e *Engine, kinds ...EventKind) *int {
	count := new(int)
	for _, kind := range kinds {
		e.Subscribe(kind, func(Event) { *count++ })
	}
	return count
}

func connTargeting(conns []schemas.Connection, nodeID, input string) (schemas.Connection, bool) {
	for _, c := range conns {
		if c.To.NodeID == nodeID && c.To.Input == input {
			return c, true
		}
	}
	return schemas.Connection{}, false
}

func TestLoadDocumentBuildsGraph(t *testing.T) {
	e := newTestEngine(t)

	assert.True(t, document.Equal(sessionDoc(), e.Document()), "load must not alter document content")
	assert.False(t, e.HasPendingChanges())
	assert.Empty(t, e.Warnings())

	ids := make([]string, 0)
	for _, n := range e.Nodes() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"storage-0", "ai-0", "ai-1", "source-group", "generator-group"}, ids)

	conns := e.Connections()
	require.Len(t, conns, 3)
	for _, want := range []struct{ from, to, key string }{
		{"ai-0", "source-0", "provider"},
		{"ai-0", "generator-0", "provider"},
		{"storage-0", "generator-0", "storage"},
	} {
		c, ok := connTargeting(conns, want.to, want.key)
		require.True(t, ok, "missing connection into %s.%s", want.to, want.key)
		assert.Equal(t, want.from, c.From.NodeID)
	}
}

func TestLoadFromStore(t *testing.T) {
	store := &fakeStore{docs: map[string]*schemas.Document{"daily-brief": sessionDoc()}}
	e := New(zaptest.NewLogger(t), store)

	require.NoError(t, e.Load(context.Background(), "daily-brief"))
	assert.Equal(t, "daily-brief", e.Document().Name)

	assert.Error(t, e.Load(context.Background(), "missing"))
}

func TestUpdateParamsRewiresConnection(t *testing.T) {
	e := newTestEngine(t)
	entryEvents := countEvents(e, EventEntryUpdated)

	ok := e.ApplyGraphEdit(UpdateParams{
		NodeID: "source-0",
		Params: schemas.Params{"provider": "claude", "url": "https://news.example/feed"},
	})
	require.True(t, ok)

	c, found := connTargeting(e.Connections(), "source-0", "provider")
	require.True(t, found)
	assert.Equal(t, "ai-1", c.From.NodeID, "connection must follow the typed reference")

	assert.Equal(t, "claude", e.Document().Sources[0].Params["provider"])
	assert.True(t, e.HasPendingChanges())
	assert.Equal(t, 1, *entryEvents)
}

func TestUpdateParamsNullValueKeepsPort(t *testing.T) {
	e := newTestEngine(t)

	ok := e.ApplyGraphEdit(UpdateParams{
		NodeID: "source-0",
		Params: schemas.Params{"provider": nil, "url": "https://news.example/feed"},
	})
	require.True(t, ok)

	_, found := connTargeting(e.Connections(), "source-0", "provider")
	assert.False(t, found, "null reference carries no connection")

	node := findNode(e.nodes, "source-0")
	require.NotNil(t, node)
	assert.True(t, hasPort(node.Inputs, "provider"), "key present in params keeps its port")

	v, present := e.Document().Sources[0].Params["provider"]
	assert.True(t, present)
	assert.Nil(t, v)
}

func TestUpdateParamsIntervalOnly(t *testing.T) {
	e := newTestEngine(t)
	interval := 600.0

	require.True(t, e.ApplyGraphEdit(UpdateParams{
		NodeID:   "source-0",
		Params:   sessionDoc().Sources[0].Params,
		Interval: &interval,
	}))
	assert.Equal(t, 600.0, e.Document().Sources[0].Interval)
	assert.Equal(t, 600.0, findNode(e.nodes, "source-0").Interval)
}

func TestUpdateParamsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	events := countEvents(e, EventDocumentUpdated, EventNodesUpdated, EventConnectionsUpdated, EventEntryUpdated)

	ok := e.ApplyGraphEdit(UpdateParams{
		NodeID: "source-0",
		Params: sessionDoc().Sources[0].Params,
	})
	require.True(t, ok, "a no-op edit is accepted")
	assert.Zero(t, *events, "a no-op edit emits nothing")
	assert.False(t, e.HasPendingChanges())
}

func TestUpdateParamsUnknownNode(t *testing.T) {
	e := newTestEngine(t)
	assert.False(t, e.ApplyGraphEdit(UpdateParams{NodeID: "source-9", Params: schemas.Params{}}))
	assert.False(t, e.ApplyGraphEdit(UpdateParams{NodeID: "source-group", Params: schemas.Params{}}))
}

func TestSetConnectionsWritesParameter(t *testing.T) {
	e := newTestEngine(t)

	conns := e.Connections()
	conns = append(conns, schemas.Connection{
		From: schemas.ConnectionFrom{NodeID: "ai-1", Output: "provider"},
		To:   schemas.ConnectionTo{NodeID: "source-1", Input: "provider"},
	})
	require.True(t, e.ApplyGraphEdit(SetConnections{Connections: conns}))

	assert.Equal(t, "claude", e.Document().Sources[1].Params["provider"],
		"drawing a connection must write the source name into the target parameter")
	node := findNode(e.nodes, "source-1")
	require.NotNil(t, node)
	assert.True(t, hasPort(node.Inputs, "provider"))
	assert.True(t, e.HasPendingChanges())
}

func TestSetConnectionsRemovalClearsParameter(t *testing.T) {
	e := newTestEngine(t)

	var kept []schemas.Connection
	for _, c := range e.Connections() {
		if c.To.NodeID == "generator-0" && c.To.Input == "storage" {
			continue
		}
		kept = append(kept, c)
	}
	require.True(t, e.ApplyGraphEdit(SetConnections{Connections: kept}))

	_, present := e.Document().Generators[0].Params["storage"]
	assert.False(t, present, "a cleared connection removes the parameter, never leaves it stale")
	node := findNode(e.nodes, "generator-0")
	require.NotNil(t, node)
	assert.False(t, hasPort(node.Inputs, "storage"), "absent key loses its port")
}

func TestSetConnectionsRedirect(t *testing.T) {
	e := newTestEngine(t)

	conns := e.Connections()
	for i := range conns {
		if conns[i].To.NodeID == "source-0" && conns[i].To.Input == "provider" {
			conns[i].From.NodeID = "ai-1"
		}
	}
	require.True(t, e.ApplyGraphEdit(SetConnections{Connections: conns}))
	assert.Equal(t, "claude", e.Document().Sources[0].Params["provider"])
}

func TestSetNodesAdoptsLayoutOnly(t *testing.T) {
	e := newTestEngine(t)

	nodes := e.Nodes()
	moved := findNode(nodes, "ai-0")
	require.NotNil(t, moved)
	moved.Position = schemas.Position{X: 500, Y: 250}
	moved.DisplayName = "renamed"
	moved.Params = schemas.Params{"model": "tampered"}

	require.True(t, e.ApplyGraphEdit(SetNodes{Nodes: nodes}))

	got := findNode(e.nodes, "ai-0")
	require.NotNil(t, got)
	assert.Equal(t, schemas.Position{X: 500, Y: 250}, got.Position)
	assert.Equal(t, "gpt", got.DisplayName, "names are document-owned")
	assert.Equal(t, "gpt-4", got.Params["model"], "params are document-owned")
	assert.False(t, e.HasPendingChanges(), "layout does not dirty the document")
}

func TestRemoveNodeCascadeClearsReferences(t *testing.T) {
	e := newTestEngine(t)

	require.True(t, e.ApplyGraphEdit(RemoveNode{NodeID: "ai-0"}))

	doc := e.Document()
	require.Len(t, doc.AI, 1)
	assert.Equal(t, "claude", doc.AI[0].Name)

	_, rssHas := doc.Sources[0].Params["provider"]
	_, digestHas := doc.Generators[0].Params["provider"]
	assert.False(t, rssHas, "reference to removed provider must be cleared")
	assert.False(t, digestHas, "reference to removed provider must be cleared")
	assert.Empty(t, e.Warnings(), "cascade clearing leaves no dangling references")

	got := findNode(e.nodes, "ai-0")
	require.NotNil(t, got, "surviving provider shifts into the freed index")
	assert.Equal(t, "claude", got.DisplayName)
}

func TestRemoveMiddleEntryShiftsIndices(t *testing.T) {
	doc := sessionDoc()
	doc.Sources = append(doc.Sources, schemas.PluginEntry{Name: "mail", Params: schemas.Params{"host": "imap.example"}})
	e := New(zaptest.NewLogger(t), nil)
	require.NoError(t, e.LoadDocument(doc))

	require.True(t, e.ApplyGraphEdit(RemoveNode{NodeID: "source-1"}))

	got := e.Document()
	require.Len(t, got.Sources, 2)
	assert.Equal(t, "rss", got.Sources[0].Name)
	assert.Equal(t, "mail", got.Sources[1].Name)
	assert.Equal(t, "rss", findNode(e.nodes, "source-0").DisplayName)
	assert.Equal(t, "mail", findNode(e.nodes, "source-1").DisplayName)
}

func TestRemoveGroupNodeRemovesRole(t *testing.T) {
	e := newTestEngine(t)

	require.True(t, e.ApplyGraphEdit(RemoveNode{NodeID: "source-group"}))
	assert.Empty(t, e.Document().Sources)
	assert.Nil(t, findNode(e.nodes, "source-group"))
	assert.Nil(t, findNode(e.nodes, "source-0"))
}

func TestRemoveUnknownNode(t *testing.T) {
	e := newTestEngine(t)
	assert.False(t, e.ApplyGraphEdit(RemoveNode{NodeID: "enricher-0"}))
	assert.False(t, e.HasPendingChanges())
}

func TestDanglingReferenceStaysVerbatim(t *testing.T) {
	e := newTestEngine(t)

	require.True(t, e.ApplyGraphEdit(UpdateParams{
		NodeID: "source-0",
		Params: schemas.Params{"provider": "vanished", "url": "https://news.example/feed"},
	}))

	assert.Equal(t, "vanished", e.Document().Sources[0].Params["provider"],
		"dangling references are surfaced, never rewritten")
	_, found := connTargeting(e.Connections(), "source-0", "provider")
	assert.False(t, found)

	warnings := e.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "rss", warnings[0].Entry)
	assert.Equal(t, "vanished", warnings[0].Target)
}

func TestSweepConvergesInOnePass(t *testing.T) {
	e := newTestEngine(t)
	assert.False(t, e.sweepState(), "freshly loaded state is already converged")

	require.True(t, e.ApplyGraphEdit(UpdateParams{
		NodeID: "source-0",
		Params: schemas.Params{"provider": "claude"},
	}))
	assert.False(t, e.sweepState(), "every edit leaves converged state behind")
}

func TestSweepCollapsesDuplicateConnections(t *testing.T) {
	e := newTestEngine(t)

	// Two edges into the same input port; the later one wins.
	e.conns = append(e.conns, schemas.Connection{
		From: schemas.ConnectionFrom{NodeID: "ai-1", Output: "provider"},
		To:   schemas.ConnectionTo{NodeID: "source-0", Input: "provider"},
	})
	assert.True(t, e.sweepState())

	c, found := connTargeting(e.conns, "source-0", "provider")
	require.True(t, found)
	assert.Equal(t, "ai-1", c.From.NodeID)
	assert.Equal(t, "claude", e.Document().Sources[0].Params["provider"])
	assert.False(t, e.sweepState(), "second sweep is a no-op")
}

func TestSweepDropsInvalidConnections(t *testing.T) {
	e := newTestEngine(t)
	before := len(e.conns)

	e.conns = append(e.conns,
		schemas.Connection{ // missing target node
			From: schemas.ConnectionFrom{NodeID: "ai-0", Output: "provider"},
			To:   schemas.ConnectionTo{NodeID: "source-7", Input: "provider"},
		},
		schemas.Connection{ // output/input port mismatch
			From: schemas.ConnectionFrom{NodeID: "storage-0", Output: "storage"},
			To:   schemas.ConnectionTo{NodeID: "source-0", Input: "provider"},
		},
		schemas.Connection{ // non-reference input
			From: schemas.ConnectionFrom{NodeID: "ai-0", Output: "provider"},
			To:   schemas.ConnectionTo{NodeID: "source-0", Input: "url"},
		},
	)
	assert.True(t, e.sweepState())
	assert.Len(t, e.conns, before)
}

func TestSelectNode(t *testing.T) {
	e := newTestEngine(t)
	events := countEvents(e, EventNodeSelected)

	assert.False(t, e.SelectNode("ai-9"))
	assert.Empty(t, e.SelectedNode())

	require.True(t, e.SelectNode("source-1"))
	assert.Equal(t, "source-1", e.SelectedNode())
	require.True(t, e.SelectNode("source-1"), "reselecting is accepted")
	assert.Equal(t, 1, *events, "reselecting emits nothing")
}

func TestRemoveNodeClearsSelection(t *testing.T) {
	e := newTestEngine(t)
	require.True(t, e.SelectNode("generator-0"))
	require.True(t, e.ApplyGraphEdit(RemoveNode{NodeID: "generator-group"}))
	assert.Empty(t, e.SelectedNode())
}

func TestReentrantMutationRejected(t *testing.T) {
	e := newTestEngine(t)

	var editOK, selectOK bool
	var saveErr, textErr error
	e.Subscribe(EventNodesUpdated, func(Event) {
		editOK = e.ApplyGraphEdit(RemoveNode{NodeID: "ai-0"})
		selectOK = e.SelectNode("ai-0")
		saveErr = e.Save(context.Background())
		textErr = e.ApplyText([]byte(`{}`))
	})

	require.True(t, e.ApplyGraphEdit(UpdateParams{
		NodeID: "source-0",
		Params: schemas.Params{"provider": "claude"},
	}))

	assert.False(t, editOK)
	assert.False(t, selectOK)
	assert.ErrorIs(t, saveErr, ErrReentrantEdit)
	assert.ErrorIs(t, textErr, ErrReentrantEdit)
	assert.Len(t, e.Document().AI, 2, "re-entrant removal must not have run")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	e := newTestEngine(t)

	count := 0
	unsubscribe := e.Subscribe(EventDocumentUpdated, func(Event) { count++ })
	require.True(t, e.ApplyGraphEdit(UpdateParams{NodeID: "source-0", Params: schemas.Params{"provider": "claude"}}))
	require.Equal(t, 1, count)

	unsubscribe()
	require.True(t, e.ApplyGraphEdit(UpdateParams{NodeID: "source-0", Params: schemas.Params{"provider": "gpt"}}))
	assert.Equal(t, 1, count)
}

func TestSaveLifecycle(t *testing.T) {
	store := &fakeStore{failure: errors.New("connection refused")}
	e := New(zaptest.NewLogger(t), store)
	require.NoError(t, e.LoadDocument(sessionDoc()))
	require.True(t, e.ApplyGraphEdit(RemoveNode{NodeID: "source-1"}))

	require.Error(t, e.Save(context.Background()))
	assert.True(t, e.HasPendingChanges(), "failed save keeps changes pending for retry")

	store.failure = nil
	require.NoError(t, e.Save(context.Background()))
	assert.False(t, e.HasPendingChanges())
	require.Len(t, store.saved, 1)
	assert.Len(t, store.saved[0].Sources, 1)
}

func TestSaveWithoutStore(t *testing.T) {
	e := newTestEngine(t)
	assert.ErrorIs(t, e.Save(context.Background()), ErrNoStore)

	empty := New(zaptest.NewLogger(t), &fakeStore{})
	assert.ErrorIs(t, empty.Save(context.Background()), ErrNoDocument)
}

func TestEditBeforeLoadRejected(t *testing.T) {
	e := New(zaptest.NewLogger(t), nil)
	assert.False(t, e.ApplyGraphEdit(RemoveNode{NodeID: "ai-0"}))
	assert.Error(t, e.LoadDocument(nil))
}

func TestForceSync(t *testing.T) {
	e := newTestEngine(t)

	// Mutate internal document state directly, as a debugging hook would.
	e.doc.Sources[0].Params["provider"] = "claude"
	require.True(t, e.ForceSync())
	c, found := connTargeting(e.Connections(), "source-0", "provider")
	require.True(t, found)
	assert.Equal(t, "ai-1", c.From.NodeID)
}
