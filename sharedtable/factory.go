package sharedtable

import (
	"context"
	"fmt"

	"github.com/dynashard/dynashard/admin"
	"github.com/dynashard/dynashard/metadata"
	"github.com/dynashard/dynashard/mtcontext"
	"github.com/dynashard/dynashard/prefix"
)

// CreateTableRequestFactory resolves the physical table template serving a
// virtual table. Returning a nil template (without error) marks the virtual
// table as unsupported.
type CreateTableRequestFactory interface {
	CreateTableRequest(virtual metadata.TableDescription) (*metadata.TableDescription, error)
	// PrecreateTables lists the physical tables to create eagerly at router
	// construction.
	PrecreateTables() []metadata.TableDescription
}

// MappingFactory builds TableMapping instances and, as a side effect of each
// build, ensures the backing physical table exists and is active so the
// mapping can capture backend-assigned fields such as the stream ARN.
type MappingFactory struct {
	tables      CreateTableRequestFactory
	provider    mtcontext.Provider
	indexMapper SecondaryIndexMapper
	codec       prefix.Codec
	admin       *admin.Admin
}

func newMappingFactory(
	tables CreateTableRequestFactory,
	provider mtcontext.Provider,
	indexMapper SecondaryIndexMapper,
	codec prefix.Codec,
	adm *admin.Admin,
) *MappingFactory {
	return &MappingFactory{
		tables:      tables,
		provider:    provider,
		indexMapper: indexMapper,
		codec:       codec,
		admin:       adm,
	}
}

// TableMapping builds and validates the mapping for one virtual table.
func (f *MappingFactory) TableMapping(ctx context.Context, virtual metadata.TableDescription) (*TableMapping, error) {
	mapping, err := newTableMapping(virtual, f.tables, f.indexMapper, f.provider, f.codec)
	if err != nil {
		return nil, err
	}
	physical, err := f.admin.CreateTableIfNotExists(ctx, mapping.Physical())
	if err != nil {
		return nil, fmt.Errorf("ensure physical table %s: %w", mapping.Physical().Name, err)
	}
	mapping.refreshPhysical(physical)
	return mapping, nil
}

// Precreate eagerly creates every physical table the factory knows about.
// Runs without tenant context.
func (f *MappingFactory) Precreate(ctx context.Context) error {
	for _, desc := range f.tables.PrecreateTables() {
		if _, err := f.admin.CreateTableIfNotExists(ctx, desc); err != nil {
			return fmt.Errorf("precreate physical table %s: %w", desc.Name, err)
		}
	}
	return nil
}
