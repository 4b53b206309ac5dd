package schemas

// ParamSpec describes one constructor parameter of a plugin as exposed by the
// plugin catalog. Only the structural shape is described; value semantics are
// out of scope for the editor.
type ParamSpec struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// PluginDescriptor describes one installable plugin type.
type PluginDescriptor struct {
	Name        string      `json:"name"`
	PrettyName  string      `json:"prettyName,omitempty"`
	Role        Role        `json:"role"`
	Description string      `json:"description,omitempty"`
	Params      []ParamSpec `json:"params,omitempty"`
}

// CategorizedPluginDescriptors groups descriptors by role, the shape the
// editor's autocomplete consumes.
type CategorizedPluginDescriptors map[Role][]PluginDescriptor
