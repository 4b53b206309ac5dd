package schemas

import "context"

// DocumentStore is the persistence collaborator. The engine never persists on
// its own; a caller invokes Save after the engine reports a converged state.
type DocumentStore interface {
	// Load retrieves a document by name.
	Load(ctx context.Context, name string) (*Document, error)
	// Save upserts a document keyed by its Name field.
	Save(ctx context.Context, doc *Document) error
	// List returns the names of all stored documents.
	List(ctx context.Context) ([]string, error)
}

// PluginCatalog exposes the installed plugin descriptors. It participates in
// shape validation and autocomplete only, never in graph/document
// reconciliation.
type PluginCatalog interface {
	ListPlugins(ctx context.Context) (CategorizedPluginDescriptors, error)
}
