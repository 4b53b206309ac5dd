// Package engine implements the bidirectional graph/config synchronization
// engine: one explicit state owner per editing session that keeps the nested
// document and the derived node/edge graph mutually consistent under
// interleaved edits from either side.
//
// The engine is single-owner and cooperative: every mutation runs
// synchronously as synchronize -> sweep -> notify, so observers only ever see
// fully converged state. Re-entrant mutation from inside a notification
// callback is rejected; handlers queue further edits instead.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowline-dev/flowline/api/schemas"
	"github.com/flowline-dev/flowline/internal/document"
	"github.com/flowline-dev/flowline/internal/rebuild"
)

// EventKind names the notification channels exposed to collaborators.
type EventKind string

const (
	EventDocumentUpdated    EventKind = "document-updated"
	EventNodesUpdated       EventKind = "nodes-updated"
	EventConnectionsUpdated EventKind = "connections-updated"
	EventNodeSelected       EventKind = "node-selected"
	EventEntryUpdated       EventKind = "entry-updated"
)

// Event is the envelope delivered to subscribers. Payload fields are deep
// copies; mutating them never touches engine state.
type Event struct {
	ID          string
	Timestamp   time.Time
	Kind        EventKind
	Document    *schemas.Document
	Nodes       []schemas.Node
	Connections []schemas.Connection
	NodeID      string
	EntryName   string
}

// Callback receives events synchronously, after the state is already
// consistent. Callbacks must not mutate the engine; mutating calls made from
// inside a callback fail with ErrReentrantEdit or a false result.
type Callback func(Event)

var (
	// ErrNoDocument is returned when an operation needs a loaded document.
	ErrNoDocument = errors.New("engine: no document loaded")
	// ErrNoStore is returned by Save when no persistence collaborator was
	// provided.
	ErrNoStore = errors.New("engine: no document store configured")
	// ErrReentrantEdit is returned for mutations attempted from inside a
	// notification callback.
	ErrReentrantEdit = errors.New("engine: mutation from notification callback")
)

// Engine owns one document/graph pair. Construct one per editing session and
// hand it to consumers by reference; there is no process-wide instance.
type Engine struct {
	log   *zap.Logger
	store schemas.DocumentStore

	doc      *schemas.Document
	nodes    []schemas.Node
	conns    []schemas.Connection
	warnings []rebuild.Warning

	pendingText []byte
	parseErr    *document.ParseError

	subs      map[EventKind]map[int]Callback
	nextSub   int
	notifying bool

	pending  bool
	selected string
}

// New creates an engine with no document loaded. The store may be nil; Save
// then reports ErrNoStore.
func New(logger *zap.Logger, store schemas.DocumentStore) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		log:   logger.Named("engine"),
		store: store,
		subs:  make(map[EventKind]map[int]Callback),
	}
}

// LoadDocument resets the engine to the given document as the canonical
// state. All derived graph state is discarded and rebuilt; the pending flag
// and any buffered text edit are cleared.
func (e *Engine) LoadDocument(doc *schemas.Document) error {
	if e.notifying {
		return ErrReentrantEdit
	}
	if doc == nil {
		return ErrNoDocument
	}
	e.doc = doc.Clone()
	document.EnsureIDs(e.doc)
	e.refreshGraph()
	e.pending = false
	e.pendingText = nil
	e.parseErr = nil
	e.selected = ""
	e.log.Info("Document loaded",
		zap.String("name", e.doc.Name),
		zap.Int("nodes", len(e.nodes)),
		zap.Int("connections", len(e.conns)),
		zap.Int("reference_warnings", len(e.warnings)),
	)
	e.notify(EventDocumentUpdated, EventNodesUpdated, EventConnectionsUpdated)
	return nil
}

// Load pulls a document from the persistence collaborator and loads it.
func (e *Engine) Load(ctx context.Context, name string) error {
	if e.store == nil {
		return ErrNoStore
	}
	doc, err := e.store.Load(ctx, name)
	if err != nil {
		return err
	}
	return e.LoadDocument(doc)
}

// refreshGraph rebuilds the full graph model from the document and runs the
// consistency sweep. Used after load and after any structural removal, where
// index-encoded node ids shift and patching would leave stale identities.
func (e *Engine) refreshGraph() {
	e.nodes, e.conns, e.warnings = rebuild.Rebuild(e.doc)
	e.sweepState()
}

// Document returns a deep copy of the converged document.
func (e *Engine) Document() *schemas.Document {
	return e.doc.Clone()
}

// Nodes returns a deep copy of the converged node model.
func (e *Engine) Nodes() []schemas.Node {
	return schemas.CloneNodes(e.nodes)
}

// Connections returns a copy of the converged connection list.
func (e *Engine) Connections() []schemas.Connection {
	return schemas.CloneConnections(e.conns)
}

// Warnings returns the current reference-inconsistency list. Dangling
// references are tolerated and re-checked on every rebuild and sweep.
func (e *Engine) Warnings() []rebuild.Warning {
	return append([]rebuild.Warning(nil), e.warnings...)
}

// HasPendingChanges reports whether any accepted mutation has not yet been
// confirmed saved.
func (e *Engine) HasPendingChanges() bool {
	return e.pending
}

// SelectNode marks a node as selected and emits node-selected. Selecting the
// currently selected node again is a no-op.
func (e *Engine) SelectNode(id string) bool {
	if e.notifying {
		e.log.Warn("SelectNode rejected inside notification callback", zap.String("node_id", id))
		return false
	}
	if findNode(e.nodes, id) == nil {
		return false
	}
	if e.selected == id {
		return true
	}
	e.selected = id
	e.notify(EventNodeSelected)
	return true
}

// SelectedNode returns the id of the selected node, or "".
func (e *Engine) SelectedNode() string {
	return e.selected
}

// ForceSync rebuilds the graph from the document and re-runs the sweep
// unconditionally, then notifies all structural listeners.
func (e *Engine) ForceSync() bool {
	if e.notifying || e.doc == nil {
		return false
	}
	e.refreshGraph()
	e.notify(EventDocumentUpdated, EventNodesUpdated, EventConnectionsUpdated)
	return true
}

// Save delegates to the persistence collaborator and clears the pending flag
// only on confirmed success. A failed save leaves the flag set for retry; the
// engine keeps accepting edits either way.
func (e *Engine) Save(ctx context.Context) error {
	if e.notifying {
		return ErrReentrantEdit
	}
	if e.store == nil {
		return ErrNoStore
	}
	if e.doc == nil {
		return ErrNoDocument
	}
	if err := e.store.Save(ctx, e.doc.Clone()); err != nil {
		e.log.Warn("Save failed, pending changes retained", zap.Error(err))
		return err
	}
	e.pending = false
	return nil
}

// Subscribe registers a callback for one event kind and returns its
// unsubscribe function.
func (e *Engine) Subscribe(kind EventKind, cb Callback) func() {
	id := e.nextSub
	e.nextSub++
	if e.subs[kind] == nil {
		e.subs[kind] = make(map[int]Callback)
	}
	e.subs[kind][id] = cb
	return func() {
		delete(e.subs[kind], id)
	}
}

// notify dispatches one event per kind to the matching subscribers. State is
// already converged when this runs; the notifying guard turns any mutating
// call from a handler into a clean failure instead of corruption.
func (e *Engine) notify(kinds ...EventKind) {
	e.notifying = true
	defer func() { e.notifying = false }()

	for _, kind := range kinds {
		e.dispatch(e.buildEvent(kind))
	}
}

// notifyEntry emits entry-updated carrying the entry name.
func (e *Engine) notifyEntry(name string) {
	e.notifying = true
	defer func() { e.notifying = false }()

	ev := e.buildEvent(EventEntryUpdated)
	ev.EntryName = name
	e.dispatch(ev)
}

func (e *Engine) dispatch(ev Event) {
	subs := e.subs[ev.Kind]
	if len(subs) == 0 {
		return
	}
	// Copy so an unsubscribe from inside a handler is safe.
	cbs := make([]Callback, 0, len(subs))
	for _, cb := range subs {
		cbs = append(cbs, cb)
	}
	for _, cb := range cbs {
		cb(ev)
	}
}

func (e *Engine) buildEvent(kind EventKind) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      kind,
	}
	switch kind {
	case EventDocumentUpdated, EventEntryUpdated:
		ev.Document = e.doc.Clone()
	case EventNodesUpdated:
		ev.Nodes = schemas.CloneNodes(e.nodes)
	case EventConnectionsUpdated:
		ev.Connections = schemas.CloneConnections(e.conns)
	case EventNodeSelected:
		ev.NodeID = e.selected
	}
	return ev
}
