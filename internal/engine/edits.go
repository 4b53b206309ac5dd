package engine

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/flowline-dev/flowline/api/schemas"
	"github.com/flowline-dev/flowline/internal/document"
	"github.com/flowline-dev/flowline/internal/refs"
)

// GraphEdit is one discrete edit arriving from the graph view.
type GraphEdit interface {
	editName() string
}

// SetNodes replaces graph-owned node state: layout positions. Parameter
// values stay owned by the document and are re-derived by the sweep, so a
// caller cannot smuggle document changes through this edit.
type SetNodes struct {
	Nodes []schemas.Node
}

// SetConnections replaces the connection list wholesale, as drawn by the
// user. Connections win over typed parameters inside this edit: every
// connection's source name is written into the target parameter, and a
// previously referenced parameter whose connection disappeared is cleared.
type SetConnections struct {
	Connections []schemas.Connection
}

// UpdateParams writes a new parameter map (and optionally the interval) onto
// a node and its document entry. Typed parameters win over connections inside
// this edit: a changed reference value replaces the port's connection.
type UpdateParams struct {
	NodeID   string
	Params   schemas.Params
	Interval *float64
}

// RemoveNode deletes a node and its document entry. Removing a group node
// removes every entry of its role. Index-encoded ids of later siblings shift,
// so the graph is fully rebuilt afterwards rather than patched.
type RemoveNode struct {
	NodeID string
}

func (SetNodes) editName() string       { return "set-nodes" }
func (SetConnections) editName() string { return "set-connections" }
func (UpdateParams) editName() string   { return "update-params" }
func (RemoveNode) editName() string     { return "remove-node" }

// findNode is the package-local shorthand for recursive node lookup.
func findNode(nodes []schemas.Node, id string) *schemas.Node {
	return refs.FindNode(nodes, id)
}

// ApplyGraphEdit folds one graph edit into the document, sweeps, and
// notifies. It returns false for edits that target unknown state or arrive
// from inside a notification callback; it never panics across this boundary.
//
// Every edit is idempotent under repetition: an edit that would produce no
// change performs no write and emits no notification.
func (e *Engine) ApplyGraphEdit(edit GraphEdit) bool {
	if e.notifying {
		e.log.Warn("Graph edit rejected inside notification callback", zap.String("edit", edit.editName()))
		return false
	}
	if e.doc == nil {
		e.log.Warn("Graph edit rejected, no document loaded", zap.String("edit", edit.editName()))
		return false
	}

	switch ed := edit.(type) {
	case UpdateParams:
		return e.applyUpdateParams(ed)
	case SetConnections:
		return e.applySetConnections(ed)
	case SetNodes:
		return e.applySetNodes(ed)
	case RemoveNode:
		return e.applyRemoveNode(ed)
	default:
		e.log.Warn("Unknown graph edit", zap.String("edit", edit.editName()))
		return false
	}
}

func (e *Engine) applyUpdateParams(ed UpdateParams) bool {
	node := findNode(e.nodes, ed.NodeID)
	if node == nil || node.Kind != schemas.NodeKindLeaf {
		e.log.Warn("UpdateParams on unknown node", zap.String("node_id", ed.NodeID))
		return false
	}
	entry, _, _ := document.FindEntry(e.doc, node.EntryID)
	if entry == nil {
		e.log.Warn("UpdateParams node has no backing entry", zap.String("node_id", ed.NodeID))
		return false
	}

	params := ed.Params
	if params == nil {
		e.log.Warn("Malformed parameter map coerced to empty", zap.String("node_id", ed.NodeID))
		params = schemas.Params{}
	}
	newParams := params.Clone()

	intervalChanged := ed.Interval != nil && *ed.Interval != entry.Interval
	if document.ParamsEqual(entry.Params, newParams) && !intervalChanged {
		return true // no semantic change, no write, no notification
	}

	// This is the single path by which typed edits become graph edges: a
	// changed reference value drops the port's existing connection and, if
	// the new name resolves, draws the replacement.
	connsChanged := false
	for _, key := range schemas.ReferenceKeys {
		oldVal, _ := document.ReferenceValue(entry.Params, key)
		newVal, _ := document.ReferenceValue(newParams, key)
		if oldVal == newVal {
			continue
		}
		if e.removeConnectionsTo(ed.NodeID, key) {
			connsChanged = true
		}
		if newVal == "" {
			continue
		}
		targetRole := schemas.ReferenceKeyTargets[key]
		idx, ok := refs.ResolveByName(e.doc, targetRole, newVal)
		if !ok {
			e.log.Debug("Typed reference does not resolve, no connection created",
				zap.String("key", key), zap.String("target", newVal))
			continue
		}
		e.conns = append(e.conns, schemas.Connection{
			From: schemas.ConnectionFrom{NodeID: refs.NodeID(targetRole, idx), Output: key},
			To:   schemas.ConnectionTo{NodeID: ed.NodeID, Input: key},
		})
		connsChanged = true
	}

	entry.Params = newParams
	if ed.Interval != nil {
		entry.Interval = *ed.Interval
	}
	e.sweepState()
	e.pending = true

	e.notify(EventDocumentUpdated, EventNodesUpdated)
	if connsChanged {
		e.notify(EventConnectionsUpdated)
	}
	e.notifyEntry(entry.Name)
	return true
}

func (e *Engine) applySetConnections(ed SetConnections) bool {
	newConns := schemas.CloneConnections(ed.Connections)
	if reflect.DeepEqual(newConns, e.conns) || (len(newConns) == 0 && len(e.conns) == 0) {
		return true
	}

	oldPairs := connectionTargets(e.conns)
	newPairs := connectionTargets(newConns)

	// Freshly drawn connections win: write each source name into the target
	// entry's parameter.
	for _, c := range newConns {
		key := c.To.Input
		if _, isRef := schemas.ReferenceKeyTargets[key]; !isRef {
			e.log.Warn("Connection targets a non-reference input, the sweep will drop it",
				zap.String("input", key))
			continue
		}
		name, ok := refs.NameForConnection(c, e.nodes)
		if !ok {
			continue // dangling endpoint, swept away below
		}
		node := findNode(e.nodes, c.To.NodeID)
		if node == nil {
			continue
		}
		entry, _, _ := document.FindEntry(e.doc, node.EntryID)
		if entry == nil {
			continue
		}
		if entry.Params == nil {
			entry.Params = schemas.Params{}
		}
		entry.Params[key] = name
	}

	// A previously referenced parameter whose connection disappeared is
	// cleared to absent, never left stale.
	for pair := range oldPairs {
		if newPairs[pair] {
			continue
		}
		node := findNode(e.nodes, pair.nodeID)
		if node == nil {
			continue
		}
		entry, _, _ := document.FindEntry(e.doc, node.EntryID)
		if entry == nil {
			continue
		}
		delete(entry.Params, pair.input)
	}

	e.conns = newConns
	e.sweepState()
	e.pending = true
	e.notify(EventDocumentUpdated, EventNodesUpdated, EventConnectionsUpdated)
	return true
}

type targetPair struct {
	nodeID string
	input  string
}

func connectionTargets(conns []schemas.Connection) map[targetPair]bool {
	out := make(map[targetPair]bool, len(conns))
	for _, c := range conns {
		out[targetPair{nodeID: c.To.NodeID, input: c.To.Input}] = true
	}
	return out
}

// applySetNodes adopts graph-owned state from the caller's node list: layout
// positions of nodes that still exist. Everything else (ports, params,
// display names) is re-derived from the document by the sweep.
func (e *Engine) applySetNodes(ed SetNodes) bool {
	changed := false
	var adopt func(incoming []schemas.Node)
	adopt = func(incoming []schemas.Node) {
		for i := range incoming {
			if cur := findNode(e.nodes, incoming[i].ID); cur != nil && cur.Position != incoming[i].Position {
				cur.Position = incoming[i].Position
				changed = true
			}
			adopt(incoming[i].Children)
		}
	}
	adopt(ed.Nodes)

	if !changed {
		return true
	}
	e.sweepState()
	// Layout is derived view state, rebuilt on every reload; it does not mark
	// the document dirty.
	e.notify(EventNodesUpdated)
	return true
}

func (e *Engine) applyRemoveNode(ed RemoveNode) bool {
	node := findNode(e.nodes, ed.NodeID)
	if node == nil {
		e.log.Warn("RemoveNode on unknown node", zap.String("node_id", ed.NodeID))
		return false
	}

	var removed []schemas.PluginEntry
	role := node.Role
	if node.Kind == schemas.NodeKindGroup {
		removed = append(removed, e.doc.Entries(role)...)
		e.doc.SetEntries(role, nil)
	} else {
		entry, ok := document.RemoveEntry(e.doc, node.EntryID)
		if !ok {
			e.log.Warn("RemoveNode node has no backing entry", zap.String("node_id", ed.NodeID))
			return false
		}
		removed = append(removed, entry)
	}

	// Deleting a referenced ai/storage entry clears every parameter that
	// named it, including nested children.
	if role == schemas.RoleAI || role == schemas.RoleStorage {
		for _, entry := range removed {
			cleared := document.ClearReferencesTo(e.doc, role, entry.Name)
			if cleared > 0 {
				e.log.Debug("Cascade-cleared references to removed entry",
					zap.String("entry", entry.Name), zap.Int("cleared", cleared))
			}
		}
	}

	// Index-encoded ids of later siblings shifted: rebuild, never patch.
	e.refreshGraph()
	if e.selected != "" && findNode(e.nodes, e.selected) == nil {
		e.selected = ""
	}
	e.pending = true
	e.notify(EventDocumentUpdated, EventNodesUpdated, EventConnectionsUpdated)
	return true
}

// removeConnectionsTo drops every connection targeting the given input port.
func (e *Engine) removeConnectionsTo(nodeID, input string) bool {
	kept := e.conns[:0]
	removed := false
	for _, c := range e.conns {
		if c.To.NodeID == nodeID && c.To.Input == input {
			removed = true
			continue
		}
		kept = append(kept, c)
	}
	e.conns = kept
	return removed
}
