package schemas

// NodeKind distinguishes leaf plugin nodes from synthetic group parents.
type NodeKind string

const (
	NodeKindLeaf  NodeKind = "leaf"
	NodeKindGroup NodeKind = "group"
)

// PortKind is the reference-parameter key a port stands for.
type PortKind string

const (
	PortProvider PortKind = "provider"
	PortStorage  PortKind = "storage"
)

// Position is a node's layout coordinate. Layout is a pure function of role,
// index and counts; it carries no user state.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Port is an input or output attachment point on a node. Input ports exist if
// and only if the owning entry's params currently carry the matching
// reference key; they are regenerated by the consistency sweep, never stored
// independently.
type Port struct {
	Name        string   `json:"name"`
	Kind        PortKind `json:"portKind"`
	ConnectedTo string   `json:"connectedTo,omitempty"`
}

// Node is one element of the derived graph model.
//
// ID is the positional rendering id ("source-2"); it shifts when the role
// array shifts and is recomputed by every rebuild. EntryID is the stable
// identity of the backing document entry and is what internal logic keys by.
type Node struct {
	ID          string   `json:"id"`
	EntryID     string   `json:"-"`
	Kind        NodeKind `json:"kind"`
	Role        Role     `json:"roleType"`
	DisplayName string   `json:"displayName"`
	Position    Position `json:"position"`
	Inputs      []Port   `json:"inputs,omitempty"`
	Outputs     []Port   `json:"outputs,omitempty"`
	Params      Params   `json:"params,omitempty"`
	Interval    float64  `json:"interval,omitempty"`
	Children    []Node   `json:"children,omitempty"`
}

// Clone returns a deep copy of the node and its children.
func (n Node) Clone() Node {
	out := n
	out.Params = n.Params.Clone()
	if n.Inputs != nil {
		out.Inputs = append([]Port(nil), n.Inputs...)
	}
	if n.Outputs != nil {
		out.Outputs = append([]Port(nil), n.Outputs...)
	}
	if n.Children != nil {
		out.Children = make([]Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// CloneNodes deep-copies a node list.
func CloneNodes(nodes []Node) []Node {
	if nodes == nil {
		return nil
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// ConnectionFrom is the source endpoint of a connection: an output port on
// the node whose entry is being referenced.
type ConnectionFrom struct {
	NodeID string `json:"nodeId"`
	Output string `json:"output"`
}

// ConnectionTo is the target endpoint: the input port on the node whose
// entry carries the reference-valued parameter.
type ConnectionTo struct {
	NodeID string `json:"nodeId"`
	Input  string `json:"input"`
}

// Connection is the graph-level encoding of exactly one reference-valued
// parameter on the target entry.
type Connection struct {
	From ConnectionFrom `json:"from"`
	To   ConnectionTo   `json:"to"`
}

// CloneConnections copies a connection list. Connections are value types, so
// a shallow copy of the slice is a full copy.
func CloneConnections(conns []Connection) []Connection {
	if conns == nil {
		return nil
	}
	return append([]Connection(nil), conns...)
}
