package engine

import (
	"reflect"

	"go.uber.org/zap"

	"github.com/flowline-dev/flowline/api/schemas"
	"github.com/flowline-dev/flowline/internal/document"
	"github.com/flowline-dev/flowline/internal/rebuild"
	"github.com/flowline-dev/flowline/internal/refs"
)

// sweepState runs the consistency sweep over the current document/graph pair
// and reports whether anything changed. The sweep is idempotent: running it
// twice in a row never changes state on the second run.
//
// Three passes, in order:
//
//  1. Node reconciliation. Every leaf node mirrors its backing entry: display
//     name, params, interval and the derived port lists. Leaf nodes whose
//     entry vanished are dropped.
//  2. Connection pruning. Connections with a missing endpoint, a mismatched
//     port or a non-reference input are removed. Duplicate connections into
//     the same input port are collapsed to the most recently added one.
//  3. Parameter re-derivation. Every surviving connection writes its source
//     entry name into the target parameter and stamps the input port's
//     ConnectedTo, so references and edges agree exactly.
func (e *Engine) sweepState() bool {
	before := struct {
		doc   *schemas.Document
		nodes []schemas.Node
		conns []schemas.Connection
	}{e.doc.Clone(), schemas.CloneNodes(e.nodes), schemas.CloneConnections(e.conns)}

	e.reconcileNodes()
	e.pruneConnections()
	e.rederiveParams()
	e.warnings = rebuild.CollectWarnings(e.doc)

	changed := !document.Equal(before.doc, e.doc) ||
		!reflect.DeepEqual(before.nodes, e.nodes) ||
		!reflect.DeepEqual(before.conns, e.conns)
	if changed {
		e.log.Debug("Consistency sweep converged state",
			zap.Int("nodes", len(e.nodes)),
			zap.Int("connections", len(e.conns)),
			zap.Int("reference_warnings", len(e.warnings)),
		)
	}
	return changed
}

// reconcileNodes mirrors entry state onto every leaf node and regenerates its
// port lists. Port existence follows the params map: a reference key present
// in the map (even null) owns a port, an absent key does not. Leaf nodes whose
// backing entry no longer exists are dropped; structural additions go through
// a full rebuild instead, so the sweep never creates nodes.
func (e *Engine) reconcileNodes() {
	e.nodes = e.reconcileNodeList(e.nodes)
}

func (e *Engine) reconcileNodeList(nodes []schemas.Node) []schemas.Node {
	kept := nodes[:0]
	for i := range nodes {
		n := nodes[i]
		if n.Kind == schemas.NodeKindGroup {
			n.Children = e.reconcileNodeList(n.Children)
			n.DisplayName = n.Role.DisplayName()
			kept = append(kept, n)
			continue
		}
		entry, _, _ := document.FindEntry(e.doc, n.EntryID)
		if entry == nil {
			continue
		}
		n.DisplayName = entry.Name
		n.Params = entry.Params.Clone()
		n.Interval = entry.Interval
		n.Inputs = rebuild.InputPorts(entry.Params)
		n.Outputs = rebuild.OutputPorts(n.Role)
		kept = append(kept, n)
	}
	return kept
}

// pruneConnections drops connections that no longer describe a valid edge and
// collapses duplicates per input port, keeping the last occurrence so a
// freshly drawn connection wins over an older one.
func (e *Engine) pruneConnections() {
	type target struct {
		nodeID string
		input  string
	}
	lastFor := make(map[target]int)
	for i, c := range e.conns {
		lastFor[target{c.To.NodeID, c.To.Input}] = i
	}

	kept := e.conns[:0]
	for i, c := range e.conns {
		if lastFor[target{c.To.NodeID, c.To.Input}] != i {
			continue
		}
		if !e.connectionValid(c) {
			continue
		}
		kept = append(kept, c)
	}
	e.conns = kept
}

// connectionValid checks both endpoints against the reconciled node model.
func (e *Engine) connectionValid(c schemas.Connection) bool {
	if _, isRef := schemas.ReferenceKeyTargets[c.To.Input]; !isRef {
		return false
	}
	to := findNode(e.nodes, c.To.NodeID)
	if to == nil || to.Kind != schemas.NodeKindLeaf || !hasPort(to.Inputs, c.To.Input) {
		return false
	}
	from := findNode(e.nodes, c.From.NodeID)
	if from == nil || from.Kind != schemas.NodeKindLeaf || !hasPort(from.Outputs, c.From.Output) {
		return false
	}
	// The output port name doubles as the reference key, so a provider edge
	// can only leave an ai node and a storage edge a storage node.
	return c.From.Output == c.To.Input
}

func hasPort(ports []schemas.Port, name string) bool {
	for _, p := range ports {
		if p.Name == name {
			return true
		}
	}
	return false
}

// rederiveParams makes the document agree with the surviving connections:
// each connection writes its source entry name into the target parameter and
// marks the input port connected. Reference parameters without a connection
// keep their typed value; the warning list covers the dangling ones.
func (e *Engine) rederiveParams() {
	clearConnected(e.nodes)
	for _, c := range e.conns {
		name, ok := refs.NameForConnection(c, e.nodes)
		if !ok {
			continue
		}
		to := findNode(e.nodes, c.To.NodeID)
		if to == nil {
			continue
		}
		entry, _, _ := document.FindEntry(e.doc, to.EntryID)
		if entry == nil {
			continue
		}
		if cur, _ := document.ReferenceValue(entry.Params, c.To.Input); cur != name {
			if entry.Params == nil {
				entry.Params = schemas.Params{}
			}
			entry.Params[c.To.Input] = name
			to.Params = entry.Params.Clone()
		}
		for p := range to.Inputs {
			if to.Inputs[p].Name == c.To.Input {
				to.Inputs[p].ConnectedTo = c.From.NodeID
			}
		}
	}
}

func clearConnected(nodes []schemas.Node) {
	for i := range nodes {
		for p := range nodes[i].Inputs {
			nodes[i].Inputs[p].ConnectedTo = ""
		}
		clearConnected(nodes[i].Children)
	}
}
