package schemas

// Role identifies one of the five plugin categories of a pipeline document.
// The string value doubles as the node id prefix in the derived graph
// ("source-0", "ai-2", ...).
type Role string

const (
	RoleSource    Role = "source"
	RoleEnricher  Role = "enricher"
	RoleGenerator Role = "generator"
	RoleAI        Role = "ai"
	RoleStorage   Role = "storage"
)

// RebuildOrder is the fixed order in which roles are materialized into graph
// nodes. Non-grouped roles come first so reference targets exist before the
// entries that point at them.
var RebuildOrder = []Role{RoleStorage, RoleAI, RoleSource, RoleEnricher, RoleGenerator}

// Grouped reports whether entries of this role are wrapped in a synthetic
// parent node in the graph view. The ai and storage roles render as
// free-standing leaf nodes in a fixed column instead.
func (r Role) Grouped() bool {
	switch r {
	case RoleSource, RoleEnricher, RoleGenerator:
		return true
	}
	return false
}

// DisplayName returns the plural, human-facing label for the role, used for
// group node captions.
func (r Role) DisplayName() string {
	switch r {
	case RoleSource:
		return "Sources"
	case RoleEnricher:
		return "Enrichers"
	case RoleGenerator:
		return "Generators"
	case RoleAI:
		return "AI Providers"
	case RoleStorage:
		return "Storage"
	}
	return string(r)
}

// ReferenceKeyTargets maps each reference-valued parameter key to the role its
// value must name an entry of. A graph connection is the edge-level encoding
// of one of these parameters.
var ReferenceKeyTargets = map[string]Role{
	"provider": RoleAI,
	"storage":  RoleStorage,
}

// ReferenceKeys lists the reference-valued parameter keys in deterministic
// port order.
var ReferenceKeys = []string{"provider", "storage"}

// ChildrenKey is the parameter key under which composite plugins nest their
// sub-entry configuration.
const ChildrenKey = "children"

// Params is the free-form parameter map of a plugin entry. Values are plain
// decoded JSON: scalars, []interface{}, or map[string]interface{}. Nested
// child entries live under ChildrenKey as a list of objects.
type Params map[string]interface{}

// Clone returns a deep copy of the parameter map. Mutating the copy never
// aliases the original.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return t
	}
}

// PluginEntry is one plugin configuration record inside a role array.
//
// ID is the stable internal identity assigned when the entry first enters the
// engine; it survives index shifts and renames and is never serialized. Name
// is the user-facing identity referenced by provider/storage parameters and
// must be unique within its role array.
type PluginEntry struct {
	ID       string  `json:"-"`
	Name     string  `json:"name"`
	Params   Params  `json:"params,omitempty"`
	Interval float64 `json:"interval,omitempty"`
}

// Clone returns a deep copy of the entry, preserving its stable ID.
func (e PluginEntry) Clone() PluginEntry {
	out := e
	out.Params = e.Params.Clone()
	return out
}

// Settings holds the document-global run options.
type Settings struct {
	RunOnce   bool `json:"runOnce"`
	OnlyFetch bool `json:"onlyFetch"`
}

// Document is the canonical nested pipeline configuration. It owns parameter
// values; the graph model derived from it owns node identity and layout.
type Document struct {
	Name       string        `json:"name"`
	Sources    []PluginEntry `json:"sources"`
	Enrichers  []PluginEntry `json:"enrichers"`
	Generators []PluginEntry `json:"generators"`
	AI         []PluginEntry `json:"ai"`
	Storage    []PluginEntry `json:"storage"`
	Settings   Settings      `json:"settings"`
}

// Entries returns the role array for the given role. The returned slice is
// the document's own backing array, not a copy.
func (d *Document) Entries(role Role) []PluginEntry {
	switch role {
	case RoleSource:
		return d.Sources
	case RoleEnricher:
		return d.Enrichers
	case RoleGenerator:
		return d.Generators
	case RoleAI:
		return d.AI
	case RoleStorage:
		return d.Storage
	}
	return nil
}

// SetEntries replaces the role array for the given role.
func (d *Document) SetEntries(role Role, entries []PluginEntry) {
	switch role {
	case RoleSource:
		d.Sources = entries
	case RoleEnricher:
		d.Enrichers = entries
	case RoleGenerator:
		d.Generators = entries
	case RoleAI:
		d.AI = entries
	case RoleStorage:
		d.Storage = entries
	}
}

// Clone returns a deep copy of the document. Every mutation boundary in the
// engine works on a clone so callers can never alias engine state.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := &Document{Name: d.Name, Settings: d.Settings}
	for _, role := range RebuildOrder {
		src := d.Entries(role)
		if src == nil {
			continue
		}
		dst := make([]PluginEntry, len(src))
		for i, e := range src {
			dst[i] = e.Clone()
		}
		out.SetEntries(role, dst)
	}
	return out
}
