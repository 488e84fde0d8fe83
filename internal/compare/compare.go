// Package compare computes a non-mutating before/after diff between two
// configuration trees: the current export of a store and an incoming
// bundle. It covers the UUID-addressed template subtree only; entities
// without a UUID are invisible to it.
//
// The diff honors the same per-kind policy flags as an import would:
// additions are dropped unless the kind may create, removals unless it may
// delete, and for kinds that may not update, the "after" side of a
// matched entity is forced back to its "before" value so the diff shows
// no change the import would not make.
package compare

import (
	"reflect"

	"github.com/opsforge/confsync/internal/types"
)

// Object is one entity of a tree: a loose field map, with child kinds as
// nested []Object values under their kind key.
type Object = map[string]any

// Node is one kind's diff. Updated entries carry "before" and "after"
// Objects plus one nested Node per changed child kind.
type Node = map[string]any

// childKinds names the nested kinds below each kind; the empty key is the
// tree root.
var childKinds = map[string][]string{
	"":                {"groups", "templates", "triggers", "graphs"},
	"templates":       {"valuemaps", "items", "discovery_rules", "httptests", "dashboards"},
	"discovery_rules": {"item_prototypes", "trigger_prototypes", "graph_prototypes", "host_prototypes"},
}

// Comparator diffs trees under one policy set.
type Comparator struct {
	opts types.Options
}

func New(opts types.Options) *Comparator {
	return &Comparator{opts: opts}
}

// Compare diffs two trees. The result maps each kind with changes to its
// Node; an empty result means the import would be a no-op for the
// covered subtree.
func (c *Comparator) Compare(before, after Object) Node {
	return c.compareChildren("", before, after)
}

func (c *Comparator) compareChildren(kind string, before, after Object) Node {
	out := Node{}
	for _, child := range childKinds[kind] {
		node := c.compareKind(child, listOf(before, child), listOf(after, child))
		if len(node) > 0 {
			out[child] = node
		}
	}
	return out
}

func (c *Comparator) compareKind(kind string, before, after []Object) Node {
	flags := c.flagsFor(kind)

	beforeByUUID := map[string]Object{}
	for _, obj := range before {
		if u := uuidOf(obj); u != "" {
			beforeByUUID[u] = obj
		}
	}
	afterUUIDs := map[string]struct{}{}

	node := Node{}
	var added []Object
	var updated []Node
	for _, obj := range after {
		u := uuidOf(obj)
		if u == "" {
			continue
		}
		afterUUIDs[u] = struct{}{}
		prev, ok := beforeByUUID[u]
		if !ok {
			if flags.CreateMissing {
				added = append(added, obj)
			}
			continue
		}
		if entry := c.compareMatched(kind, flags, prev, obj); entry != nil {
			updated = append(updated, entry)
		}
	}

	var removed []Object
	if flags.DeleteMissing {
		for _, obj := range before {
			u := uuidOf(obj)
			if u == "" {
				continue
			}
			if _, ok := afterUUIDs[u]; !ok {
				removed = append(removed, obj)
			}
		}
	}

	if len(added) > 0 {
		node["added"] = added
	}
	if len(removed) > 0 {
		node["removed"] = removed
	}
	if len(updated) > 0 {
		node["updated"] = updated
	}
	return node
}

// compareMatched diffs one UUID-matched pair. Returns nil when the import
// would leave the entity untouched.
func (c *Comparator) compareMatched(kind string, flags types.CreateUpdateDelete, before, after Object) Node {
	children := c.compareChildren(kind, before, after)

	beforeFields := ownFields(kind, before)
	afterFields := ownFields(kind, after)
	if kind == "templates" {
		afterFields = c.mergeLinkage(beforeFields, afterFields)
	}
	changed := !reflect.DeepEqual(beforeFields, afterFields)
	if changed && !flags.UpdateExisting {
		// Policy suppresses the update; show the entity unchanged.
		afterFields = beforeFields
		changed = false
	}
	if !changed && len(children) == 0 {
		return nil
	}

	entry := Node{"before": beforeFields, "after": afterFields}
	for k, v := range children {
		entry[k] = v
	}
	return entry
}

// mergeLinkage applies the template-linkage flags to the "templates" link
// list, which is gated separately from the owning entity's update flag.
func (c *Comparator) mergeLinkage(before, after Object) Object {
	beforeLinks := stringList(before["templates"])
	afterLinks := stringList(after["templates"])

	merged := make([]string, 0, len(beforeLinks)+len(afterLinks))
	for _, l := range beforeLinks {
		if contains(afterLinks, l) || !c.opts.TemplateLinkage.DeleteMissing {
			merged = append(merged, l)
		}
	}
	if c.opts.TemplateLinkage.CreateMissing {
		for _, l := range afterLinks {
			if !contains(merged, l) {
				merged = append(merged, l)
			}
		}
	}

	out := Object{}
	for k, v := range after {
		out[k] = v
	}
	if len(merged) > 0 {
		out["templates"] = merged
	} else {
		delete(out, "templates")
	}
	return out
}

func (c *Comparator) flagsFor(kind string) types.CreateUpdateDelete {
	cud := func(cu types.CreateUpdate) types.CreateUpdateDelete {
		return types.CreateUpdateDelete{CreateMissing: cu.CreateMissing, UpdateExisting: cu.UpdateExisting}
	}
	switch kind {
	case "groups":
		return cud(c.opts.Groups)
	case "templates":
		return cud(c.opts.Templates)
	case "valuemaps":
		return c.opts.ValueMaps
	case "items":
		return c.opts.Items
	case "discovery_rules",
		"item_prototypes", "trigger_prototypes", "graph_prototypes", "host_prototypes":
		return c.opts.DiscoveryRules
	case "triggers":
		return c.opts.Triggers
	case "graphs":
		return c.opts.Graphs
	case "httptests":
		return c.opts.HTTPTests
	case "dashboards":
		return c.opts.Dashboards
	}
	return types.CreateUpdateDelete{}
}

// ownFields copies an object minus its child-kind lists, so structural
// recursion and field comparison stay disjoint.
func ownFields(kind string, obj Object) Object {
	out := Object{}
	children := childKinds[kind]
	for k, v := range obj {
		if !contains(children, k) {
			out[k] = v
		}
	}
	return out
}

func listOf(obj Object, key string) []Object {
	raw, ok := obj[key]
	if !ok {
		return nil
	}
	switch list := raw.(type) {
	case []Object:
		return list
	case []any:
		out := make([]Object, 0, len(list))
		for _, v := range list {
			if m, ok := v.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}

func uuidOf(obj Object) string {
	u, _ := obj["uuid"].(string)
	return u
}

func stringList(raw any) []string {
	switch list := raw.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
