// Package document implements the canonical document model helpers: parsing,
// canonical marshalling, stable identity assignment and reference scanning
// (including composite plugins' nested children).
package document

import (
	"bytes"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/flowline-dev/flowline/api/schemas"
)

// jsonAPI is the shared jsoniter config; it sorts map keys like the standard
// library, which makes Marshal output canonical and byte-comparable.
var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal renders a document in canonical form (sorted object keys). Two
// semantically identical documents always marshal to identical bytes.
func Marshal(doc *schemas.Document) ([]byte, error) {
	return jsonAPI.Marshal(doc)
}

// Equal reports content equality of two documents by comparing their
// canonical marshalled forms. The stable internal entry IDs are excluded
// because they never serialize.
func Equal(a, b *schemas.Document) bool {
	if a == nil || b == nil {
		return a == b
	}
	ab, errA := Marshal(a)
	bb, errB := Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// ParamsEqual reports content equality of two parameter maps. Nil and empty
// maps compare equal; everything else compares by canonical marshalled form.
func ParamsEqual(a, b schemas.Params) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	ab, errA := jsonAPI.Marshal(a)
	bb, errB := jsonAPI.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// EnsureIDs assigns a stable internal id to every entry that lacks one.
// Existing ids are preserved so repeated calls are no-ops.
func EnsureIDs(doc *schemas.Document) {
	for _, role := range schemas.RebuildOrder {
		entries := doc.Entries(role)
		for i := range entries {
			if entries[i].ID == "" {
				entries[i].ID = uuid.NewString()
			}
		}
	}
}

// AdoptIDs carries stable ids over from prev onto next for entries that match
// by role and name, then assigns fresh ids to the remainder. Used when a text
// edit replaces the whole document: unchanged entries keep their identity.
func AdoptIDs(next, prev *schemas.Document) {
	if prev != nil {
		for _, role := range schemas.RebuildOrder {
			prevByName := make(map[string]string)
			for _, e := range prev.Entries(role) {
				if _, taken := prevByName[e.Name]; !taken {
					prevByName[e.Name] = e.ID
				}
			}
			entries := next.Entries(role)
			for i := range entries {
				if id, ok := prevByName[entries[i].Name]; ok {
					entries[i].ID = id
				}
			}
		}
	}
	EnsureIDs(next)
}

// FindEntry returns a pointer into the document's role array for the entry
// with the given stable id, or nil.
func FindEntry(doc *schemas.Document, entryID string) (*schemas.PluginEntry, schemas.Role, int) {
	for _, role := range schemas.RebuildOrder {
		entries := doc.Entries(role)
		for i := range entries {
			if entries[i].ID == entryID {
				return &entries[i], role, i
			}
		}
	}
	return nil, "", -1
}

// FindEntryByName returns the index of the first entry with the given name in
// the role array, or -1. Duplicate names bind to the first match.
func FindEntryByName(doc *schemas.Document, role schemas.Role, name string) int {
	for i, e := range doc.Entries(role) {
		if e.Name == name {
			return i
		}
	}
	return -1
}

// RemoveEntry deletes the entry with the given stable id from its role array,
// shifting subsequent entries down. It returns the removed entry and true on
// success.
func RemoveEntry(doc *schemas.Document, entryID string) (schemas.PluginEntry, bool) {
	for _, role := range schemas.RebuildOrder {
		entries := doc.Entries(role)
		for i := range entries {
			if entries[i].ID == entryID {
				removed := entries[i]
				doc.SetEntries(role, append(entries[:i:i], entries[i+1:]...))
				return removed, true
			}
		}
	}
	return schemas.PluginEntry{}, false
}

// Reference is one occurrence of a reference-valued parameter somewhere in
// the document, including inside nested children of composite plugins.
type Reference struct {
	OwnerRole schemas.Role // role of the top-level entry that carries it
	OwnerName string       // name of the top-level entry
	Key       string       // "provider" or "storage"
	Target    string       // the referenced entry name
	Nested    bool         // true when found inside params.children
}

// CollectReferences walks every entry (and nested children) and returns all
// non-empty reference-valued parameters in deterministic order.
func CollectReferences(doc *schemas.Document) []Reference {
	var refs []Reference
	for _, role := range schemas.RebuildOrder {
		for _, e := range doc.Entries(role) {
			for _, key := range schemas.ReferenceKeys {
				if target, ok := referenceValue(e.Params, key); ok {
					refs = append(refs, Reference{OwnerRole: role, OwnerName: e.Name, Key: key, Target: target})
				}
			}
			refs = append(refs, collectChildRefs(role, e.Name, e.Params)...)
		}
	}
	return refs
}

func collectChildRefs(ownerRole schemas.Role, ownerName string, params schemas.Params) []Reference {
	var refs []Reference
	for _, child := range childMaps(params) {
		childParams, _ := child["params"].(map[string]interface{})
		for _, key := range schemas.ReferenceKeys {
			if target, ok := referenceValue(childParams, key); ok {
				refs = append(refs, Reference{OwnerRole: ownerRole, OwnerName: ownerName, Key: key, Target: target, Nested: true})
			}
		}
		// Children may themselves be composite.
		refs = append(refs, collectChildRefs(ownerRole, ownerName, childParams)...)
	}
	return refs
}

// ClearReferencesTo removes every reference-valued parameter (top-level and
// nested) whose key targets the given role and whose value equals name. It
// returns the number of parameters cleared.
func ClearReferencesTo(doc *schemas.Document, role schemas.Role, name string) int {
	cleared := 0
	for _, r := range schemas.RebuildOrder {
		entries := doc.Entries(r)
		for i := range entries {
			cleared += clearRefsInParams(entries[i].Params, role, name)
		}
	}
	return cleared
}

func clearRefsInParams(params schemas.Params, role schemas.Role, name string) int {
	cleared := 0
	for key, target := range schemas.ReferenceKeyTargets {
		if target != role {
			continue
		}
		if v, ok := referenceValue(params, key); ok && v == name {
			delete(params, key)
			cleared++
		}
	}
	for _, child := range childMaps(params) {
		if childParams, ok := child["params"].(map[string]interface{}); ok {
			cleared += clearRefsInParams(childParams, role, name)
		}
	}
	return cleared
}

// referenceValue extracts a non-empty string reference value for key. Null,
// absent and non-string values all count as "no reference".
func referenceValue(params map[string]interface{}, key string) (string, bool) {
	if params == nil {
		return "", false
	}
	v, ok := params[key]
	if !ok || v == nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// ReferenceValue is the exported form of referenceValue for other packages.
func ReferenceValue(params schemas.Params, key string) (string, bool) {
	return referenceValue(params, key)
}

func childMaps(params map[string]interface{}) []map[string]interface{} {
	if params == nil {
		return nil
	}
	list, ok := params[schemas.ChildrenKey].([]interface{})
	if !ok {
		return nil
	}
	var out []map[string]interface{}
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}
