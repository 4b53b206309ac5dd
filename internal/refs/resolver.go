// Package refs resolves named cross-references between the document and the
// graph view: entry-name lookups, node-id derivation and the mapping from a
// connection back to the name that belongs in the target parameter.
package refs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/flowline-dev/flowline/api/schemas"
)

// groupSuffix terminates the id of a synthetic role parent node
// ("source-group").
const groupSuffix = "group"

// NodeID derives the positional rendering id for the entry at index within
// its role array.
func NodeID(role schemas.Role, index int) string {
	return fmt.Sprintf("%s-%d", role, index)
}

// GroupNodeID derives the id of the synthetic parent node for a grouped role.
func GroupNodeID(role schemas.Role) string {
	return fmt.Sprintf("%s-%s", role, groupSuffix)
}

// ParseNodeID splits a positional node id back into role and index. Group ids
// return index -1 and ok true; anything else returns ok false.
func ParseNodeID(id string) (role schemas.Role, index int, ok bool) {
	cut := strings.LastIndexByte(id, '-')
	if cut <= 0 || cut == len(id)-1 {
		return "", 0, false
	}
	role = schemas.Role(id[:cut])
	switch role {
	case schemas.RoleSource, schemas.RoleEnricher, schemas.RoleGenerator, schemas.RoleAI, schemas.RoleStorage:
	default:
		return "", 0, false
	}
	rest := id[cut+1:]
	if rest == groupSuffix {
		return role, -1, true
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return "", 0, false
	}
	return role, n, true
}

// RoleForKey maps a reference-valued parameter key to the role its value must
// name an entry of.
func RoleForKey(key string) (schemas.Role, bool) {
	role, ok := schemas.ReferenceKeyTargets[key]
	return role, ok
}

// ResolveByName returns the index of the first entry with the given name in
// the role array. Lookups are O(role length) and never cached: indices shift
// on every insert or delete, so callers re-resolve after each mutation.
func ResolveByName(doc *schemas.Document, role schemas.Role, name string) (int, bool) {
	if name == "" {
		return 0, false
	}
	for i, e := range doc.Entries(role) {
		if e.Name == name {
			return i, true
		}
	}
	return 0, false
}

// FindNode locates a node by id, descending into group children. The pointer
// addresses the caller's slice so mutations through it are visible.
func FindNode(nodes []schemas.Node, id string) *schemas.Node {
	for i := range nodes {
		if nodes[i].ID == id {
			return &nodes[i]
		}
		if child := FindNode(nodes[i].Children, id); child != nil {
			return child
		}
	}
	return nil
}

// NameForConnection follows a connection's source endpoint to the display
// name of its node, which is the value that belongs in the target entry's
// reference parameter.
func NameForConnection(conn schemas.Connection, nodes []schemas.Node) (string, bool) {
	n := FindNode(nodes, conn.From.NodeID)
	if n == nil {
		return "", false
	}
	return n.DisplayName, true
}
