// Package store defines the entity store consumed by the importer.
//
// The store is an external collaborator: the importer only depends on the
// per-kind CRUD services declared here so that any backend (the in-memory
// reference implementation in the memory sub-package, a SQL layer, an RPC
// proxy) can be substituted. All reads and writes are batched; the importer
// never issues one-at-a-time calls.
//
// Atomicity across calls is the backend's concern. The importer performs a
// strict sequence of batched calls and does not roll back on failure.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an update or delete names an id that does
// not exist in the store.
var ErrNotFound = errors.New("not found")

// Query is the filter accepted by every Get call. Slices that are nil do
// not constrain the result. Names matches each kind's natural key field:
// the name for groups and maps, the technical name for hosts and
// templates, the key for items and rules.
type Query struct {
	IDs     []string
	UUIDs   []string
	Names   []string
	HostIDs []string
	RuleIDs []string

	// Inherited, when set, restricts rows by whether they were created
	// by template inheritance rather than directly.
	Inherited *bool

	// SearchByAny switches the populated filters from AND to OR
	// semantics, so one query can fetch rows matched by UUID as well as
	// rows matched by natural key.
	SearchByAny bool
}

// Service is the uniform per-kind CRUD contract. Create assigns and
// returns store ids in input order; Update returns the ids it touched.
type Service[R any] interface {
	Get(ctx context.Context, q Query) ([]R, error)
	Create(ctx context.Context, records []R) ([]string, error)
	Update(ctx context.Context, records []R) ([]string, error)
	Delete(ctx context.Context, ids []string) error
}

// EntityStore bundles one service per entity kind. Items, discovery rules
// and item prototypes share one record shape and one key namespace per
// host but live in separate services.
type EntityStore interface {
	Groups() Service[GroupRecord]
	Templates() Service[TemplateRecord]
	Hosts() Service[HostRecord]
	Items() Service[ItemRecord]
	ItemPrototypes() Service[ItemRecord]
	DiscoveryRules() Service[ItemRecord]
	Triggers() Service[TriggerRecord]
	TriggerPrototypes() Service[TriggerRecord]
	Graphs() Service[GraphRecord]
	GraphPrototypes() Service[GraphRecord]
	HostPrototypes() Service[HostPrototypeRecord]
	ValueMaps() Service[ValueMapRecord]
	HTTPTests() Service[HTTPTestRecord]
	Maps() Service[MapRecord]
	Dashboards() Service[DashboardRecord]
	MediaTypes() Service[MediaTypeRecord]
	Images() Service[ImageRecord]
	Proxies() Service[ProxyRecord]
}
