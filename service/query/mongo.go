// Package query wraps the mongo driver with the few collection operations the
// stores need, adding metrics, slow query logging and optional COLLSCAN
// rejection. See https://pkg.go.dev/go.mongodb.org/mongo-driver/mongo for the
// semantics of the underlying calls.
package query

import (
	"golang.org/x/xerrors"

	"github.com/x-xyz/goauction/base/ctx"
	"github.com/x-xyz/goauction/domain"
)

var (
	// ErrNotFound is returned when no document matches
	ErrNotFound = xerrors.New("document not found")

	// ErrDuplicateKey is returned when a write violates a unique index
	ErrDuplicateKey = xerrors.New("duplicate key")

	// ErrCollScan is returned for unindexed queries when index checking is on
	ErrCollScan = xerrors.New("COLLSCAN is not allowed")
)

// Index describes a collection index, fields prefixed with "-" are descending
type Index struct {
	Fields []string
	Unique bool
}

// Mongo abstract the mongo layer.
type Mongo interface {
	// Insert adds a document, ErrDuplicateKey if a unique index is violated
	Insert(c ctx.Ctx, table domain.Table, doc interface{}) error

	// FindOne decodes the first match into result, ErrNotFound if none
	FindOne(c ctx.Ctx, table domain.Table, query, result interface{}) error

	// Upsert replaces the document matching selector or inserts it
	Upsert(c ctx.Ctx, table domain.Table, selector, doc interface{}) error

	// Search decodes every match into results. sortFields follow the Index
	// convention ("-placedAt" is descending), a zero limit means no limit.
	Search(c ctx.Ctx, table domain.Table, offset, limit int, sortFields []string, query, results interface{}) error

	// EnsureIndexes creates the indexes if missing, existing ones are left untouched
	EnsureIndexes(c ctx.Ctx, table domain.Table, indexes ...Index) error
}
