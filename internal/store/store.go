// Package store abstracts the document store used for the master catalog and
// the isolated per-tenant databases. The service core is written against the
// Driver interface only; the Mongo implementation is the deployed form and the
// memory implementation backs tests.
package store

import (
	"context"
	"errors"
)

// Common store errors.
var (
	// ErrNotFound indicates that no document matched the filter.
	ErrNotFound = errors.New("document not found")

	// ErrDuplicateKey indicates a unique index violation.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrUnavailable indicates that the store cannot be reached.
	ErrUnavailable = errors.New("store unavailable")

	// ErrClosed indicates that the driver has been closed.
	ErrClosed = errors.New("store closed")
)

// Filter is an equality filter over document fields.
type Filter map[string]interface{}

// Update is a field-set update ({"field": newValue}).
type Update map[string]interface{}

// FindOptions controls pagination for Find.
type FindOptions struct {
	Skip  int64
	Limit int64

	// SortField orders results ascending by the named field when set.
	SortField string
}

// Collection is a named set of documents inside a Handle.
type Collection interface {
	// FindOne decodes the first matching document into out.
	// Returns ErrNotFound when nothing matches.
	FindOne(ctx context.Context, filter Filter, out interface{}) error

	// Find decodes all matching documents into out, which must be a pointer
	// to a slice.
	Find(ctx context.Context, filter Filter, out interface{}, opts *FindOptions) error

	// InsertOne inserts a document. Returns ErrDuplicateKey on unique index
	// violation.
	InsertOne(ctx context.Context, doc interface{}) error

	// UpdateOne applies a field-set update to the first matching document
	// and reports whether a document matched.
	UpdateOne(ctx context.Context, filter Filter, update Update) (bool, error)

	// DeleteOne deletes the first matching document and reports whether a
	// document was deleted.
	DeleteOne(ctx context.Context, filter Filter) (bool, error)

	// Count returns the number of matching documents.
	Count(ctx context.Context, filter Filter) (int64, error)

	// EnsureIndex creates an index over the given fields.
	EnsureIndex(ctx context.Context, fields []string, unique bool) error
}

// Handle is a logical database: the master catalog or one tenant's isolated
// store. Handles are obtained from the Driver and, for tenant stores, owned
// by the router's cache.
type Handle interface {
	// Name returns the logical database name.
	Name() string

	// Collection returns a named collection.
	Collection(name string) Collection

	// Ping verifies the underlying connection.
	Ping(ctx context.Context) error
}

// Driver is the document store capability.
type Driver interface {
	// Master returns the master catalog handle.
	Master() Handle

	// Open returns a handle to an existing named database.
	Open(ctx context.Context, name string) (Handle, error)

	// Provision creates a named database with its baseline collections and
	// indexes and returns its handle. Invoked only during tenant creation.
	Provision(ctx context.Context, name string) (Handle, error)

	// Teardown drops a named database. Best effort; the catalog record is
	// the source of truth for deletion.
	Teardown(ctx context.Context, name string) error

	// Ping verifies the cluster connection.
	Ping(ctx context.Context) error

	// Close releases all connections.
	Close(ctx context.Context) error
}

// TenantCollections are the collections bootstrapped in every tenant store.
var TenantCollections = []string{"documents", "settings"}
