// Package rebuild derives a complete graph model from a document. Rebuild is
// a pure function: identical documents always produce identical node ids,
// layout positions and connection sets.
package rebuild

import (
	"fmt"

	"github.com/flowline-dev/flowline/api/schemas"
	"github.com/flowline-dev/flowline/internal/document"
	"github.com/flowline-dev/flowline/internal/refs"
)

// Warning records a reference-valued parameter that names a non-existent
// entry. Dangling references are surfaced, never silently dropped; the
// parameter value stays in the document verbatim.
type Warning struct {
	Role   schemas.Role
	Entry  string
	Key    string
	Target string
	Nested bool
}

func (w Warning) String() string {
	where := string(w.Role)
	if w.Nested {
		where += " (nested child)"
	}
	return fmt.Sprintf("%s entry %q: %s references unknown %s %q", where, w.Entry, w.Key, schemas.ReferenceKeyTargets[w.Key], w.Target)
}

// Rebuild constructs the full node and connection model for a document.
//
// Construction runs in two passes, like the dependency-graph builders this
// engine descends from: first every entry becomes a node in the fixed role
// order, then reference-valued parameters are linked into connections.
func Rebuild(doc *schemas.Document) ([]schemas.Node, []schemas.Connection, []Warning) {
	nodes := createNodes(doc)
	conns, warnings := linkNodes(doc, nodes)
	return nodes, conns, warnings
}

// createNodes materializes one node per entry. Grouped roles are wrapped in a
// synthetic parent; non-grouped roles stack in a fixed left column. Empty
// role arrays produce nothing and reserve no layout space.
func createNodes(doc *schemas.Document) []schemas.Node {
	var nodes []schemas.Node
	leftY := leftColumnY0
	groupX := groupX0

	for _, role := range schemas.RebuildOrder {
		entries := doc.Entries(role)
		if len(entries) == 0 {
			continue
		}

		if !role.Grouped() {
			for i, e := range entries {
				n := leafNode(role, i, e)
				n.Position = schemas.Position{X: leftColumnX, Y: leftY}
				leftY += leftRowSpacing
				nodes = append(nodes, n)
			}
			continue
		}

		group := schemas.Node{
			ID:          refs.GroupNodeID(role),
			Kind:        schemas.NodeKindGroup,
			Role:        role,
			DisplayName: role.DisplayName(),
			Position:    schemas.Position{X: groupX, Y: groupY},
		}
		for i, e := range entries {
			child := leafNode(role, i, e)
			child.Position = schemas.Position{
				X: groupX + childOffsetX,
				Y: groupY + childOffsetY + float64(i)*childSpacingY,
			}
			group.Children = append(group.Children, child)
		}
		nodes = append(nodes, group)
		groupX += groupSpacingX
	}
	return nodes
}

func leafNode(role schemas.Role, index int, e schemas.PluginEntry) schemas.Node {
	n := schemas.Node{
		ID:          refs.NodeID(role, index),
		EntryID:     e.ID,
		Kind:        schemas.NodeKindLeaf,
		Role:        role,
		DisplayName: e.Name,
		Params:      e.Params.Clone(),
		Interval:    e.Interval,
	}
	n.Inputs = InputPorts(e.Params)
	n.Outputs = OutputPorts(role)
	return n
}

// InputPorts derives the input port list for an entry's current params: one
// port per reference-valued key present in the map, in fixed key order. A key
// holding null still owns a port; an absent key does not.
func InputPorts(params schemas.Params) []schemas.Port {
	var ports []schemas.Port
	for _, key := range schemas.ReferenceKeys {
		if _, present := params[key]; present {
			ports = append(ports, schemas.Port{Name: key, Kind: schemas.PortKind(key)})
		}
	}
	return ports
}

// OutputPorts derives the output port list for a role. Only reference-target
// roles export anything: ai entries offer a provider output, storage entries
// a storage output.
func OutputPorts(role schemas.Role) []schemas.Port {
	switch role {
	case schemas.RoleAI:
		return []schemas.Port{{Name: "provider", Kind: schemas.PortProvider}}
	case schemas.RoleStorage:
		return []schemas.Port{{Name: "storage", Kind: schemas.PortStorage}}
	}
	return nil
}

// linkNodes emits one connection per resolvable reference-valued parameter.
// Dangling references (top-level and nested) become warnings via
// CollectWarnings; nested child references cannot carry connections because
// children own no nodes.
func linkNodes(doc *schemas.Document, nodes []schemas.Node) ([]schemas.Connection, []Warning) {
	var conns []schemas.Connection

	for _, role := range schemas.RebuildOrder {
		entries := doc.Entries(role)
		for i := range entries {
			e := entries[i]
			for _, key := range schemas.ReferenceKeys {
				target, ok := document.ReferenceValue(e.Params, key)
				if !ok {
					continue
				}
				targetRole := schemas.ReferenceKeyTargets[key]
				idx, found := refs.ResolveByName(doc, targetRole, target)
				if !found {
					continue
				}
				conn := schemas.Connection{
					From: schemas.ConnectionFrom{NodeID: refs.NodeID(targetRole, idx), Output: key},
					To:   schemas.ConnectionTo{NodeID: refs.NodeID(role, i), Input: key},
				}
				conns = append(conns, conn)
				markConnected(nodes, conn)
			}
		}
	}

	return conns, CollectWarnings(doc)
}

// CollectWarnings reports every reference-valued parameter in the document
// whose target name does not resolve, including references inside nested
// children. The consistency sweep recomputes this after every mutation.
func CollectWarnings(doc *schemas.Document) []Warning {
	var warnings []Warning
	for _, ref := range document.CollectReferences(doc) {
		targetRole := schemas.ReferenceKeyTargets[ref.Key]
		if _, found := refs.ResolveByName(doc, targetRole, ref.Target); !found {
			warnings = append(warnings, Warning{Role: ref.OwnerRole, Entry: ref.OwnerName, Key: ref.Key, Target: ref.Target, Nested: ref.Nested})
		}
	}
	return warnings
}

func markConnected(nodes []schemas.Node, conn schemas.Connection) {
	n := refs.FindNode(nodes, conn.To.NodeID)
	if n == nil {
		return
	}
	for p := range n.Inputs {
		if n.Inputs[p].Name == conn.To.Input {
			n.Inputs[p].ConnectedTo = conn.From.NodeID
		}
	}
}
