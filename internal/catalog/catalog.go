// Package catalog exposes the installed plugin descriptors consumed by the
// editor's autocomplete and shape validation. A built-in descriptor set ships
// with the binary; a deployment can overlay its own descriptor file on top.
package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/flowline-dev/flowline/api/schemas"
)

//go:embed builtin.json
var builtinJSON []byte

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Catalog is an immutable descriptor set. It never participates in
// graph/document reconciliation.
type Catalog struct {
	log         *zap.Logger
	descriptors schemas.CategorizedPluginDescriptors
}

// NewBuiltin returns the catalog shipped with the binary.
func NewBuiltin(logger *zap.Logger) (*Catalog, error) {
	descriptors, err := parseDescriptors(builtinJSON)
	if err != nil {
		return nil, fmt.Errorf("built-in catalog is invalid: %w", err)
	}
	return &Catalog{
		log:         logger.Named("catalog"),
		descriptors: descriptors,
	}, nil
}

// Load builds a catalog from the built-in set overlaid with the descriptor
// file at path. Overlay descriptors replace built-in ones with the same role
// and name; new ones are appended.
func Load(path string, logger *zap.Logger) (*Catalog, error) {
	c, err := NewBuiltin(logger)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %q: %w", path, err)
	}
	overlay, err := parseDescriptors(raw)
	if err != nil {
		return nil, fmt.Errorf("catalog file %q is invalid: %w", path, err)
	}
	for role, descs := range overlay {
		for _, d := range descs {
			c.merge(role, d)
		}
	}
	c.log.Info("Catalog overlay applied", zap.String("path", path))
	return c, nil
}

func (c *Catalog) merge(role schemas.Role, d schemas.PluginDescriptor) {
	list := c.descriptors[role]
	for i := range list {
		if list[i].Name == d.Name {
			list[i] = d
			return
		}
	}
	c.descriptors[role] = append(list, d)
}

// ListPlugins returns a copy of the descriptor set grouped by role.
func (c *Catalog) ListPlugins(context.Context) (schemas.CategorizedPluginDescriptors, error) {
	out := make(schemas.CategorizedPluginDescriptors, len(c.descriptors))
	for role, descs := range c.descriptors {
		out[role] = append([]schemas.PluginDescriptor(nil), descs...)
	}
	return out, nil
}

// Describe looks up one descriptor by role and plugin name.
func (c *Catalog) Describe(role schemas.Role, name string) (schemas.PluginDescriptor, bool) {
	for _, d := range c.descriptors[role] {
		if d.Name == name {
			return d, true
		}
	}
	return schemas.PluginDescriptor{}, false
}

func parseDescriptors(raw []byte) (schemas.CategorizedPluginDescriptors, error) {
	var byRole map[string][]schemas.PluginDescriptor
	if err := jsonAPI.Unmarshal(raw, &byRole); err != nil {
		return nil, err
	}

	out := make(schemas.CategorizedPluginDescriptors, len(byRole))
	for key, descs := range byRole {
		role := schemas.Role(key)
		if !knownRole(role) {
			return nil, fmt.Errorf("unknown role %q", key)
		}
		for i, d := range descs {
			if d.Name == "" {
				return nil, fmt.Errorf("role %q: descriptor %d has no name", key, i)
			}
			if d.Role != role {
				return nil, fmt.Errorf("role %q: descriptor %q declares mismatched role %q", key, d.Name, d.Role)
			}
		}
		out[role] = descs
	}
	return out, nil
}

func knownRole(role schemas.Role) bool {
	for _, r := range schemas.RebuildOrder {
		if r == role {
			return true
		}
	}
	return false
}
