// Package repo stores virtual table descriptions. The router consults it on
// every data-plane miss of the mapping cache and mutates it from the
// create/delete table control-plane operations.
package repo

import (
	"context"
	"errors"

	"github.com/dynashard/dynashard/metadata"
)

// ErrNoSuchTable is returned when a virtual table description is not found
// for the current tenant.
var ErrNoSuchTable = errors.New("no such virtual table")

// MetadataRepo is the durable store of virtual table descriptions. All
// methods operate in the scope of the current tenant.
type MetadataRepo interface {
	// CreateTable persists the description and returns it.
	CreateTable(ctx context.Context, desc metadata.TableDescription) (metadata.TableDescription, error)
	// TableDescription returns the description, or ErrNoSuchTable.
	TableDescription(ctx context.Context, name string) (metadata.TableDescription, error)
	// DeleteTable removes the description and returns the removed value, or
	// ErrNoSuchTable.
	DeleteTable(ctx context.Context, name string) (metadata.TableDescription, error)
	// ListTables returns the current tenant's virtual table descriptions.
	ListTables(ctx context.Context) ([]metadata.TableDescription, error)
}
