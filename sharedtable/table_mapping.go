package sharedtable

import (
	"fmt"

	"github.com/dynashard/dynashard/metadata"
	"github.com/dynashard/dynashard/mtcontext"
	"github.com/dynashard/dynashard/prefix"
)

// TableMapping holds the state of one virtual table laid over a physical
// table: both descriptions, the field rewrite rules in both directions, and
// the item and query mappers operating on them. It is immutable after
// construction except for a one-time physical refresh capturing
// backend-assigned fields such as the stream ARN.
type TableMapping struct {
	virtual  metadata.TableDescription
	physical metadata.TableDescription

	// virtualToPhysical is keyed by virtual attribute name. A single virtual
	// field can feed several physical fields when the table hash key also
	// serves as an index hash key.
	virtualToPhysical map[string][]FieldMapping
	physicalToVirtual map[string][]FieldMapping
	// indexMappings is keyed by virtual index name and holds that index's
	// primary key field mappings.
	indexMappings map[string][]FieldMapping
	// physicalIndexNames maps each virtual index name to its physical target.
	physicalIndexNames map[string]string

	itemMapper  *ItemMapper
	queryMapper *QueryMapper
}

// newTableMapping resolves the physical template for the virtual table,
// validates compatibility, and derives all field mappings.
func newTableMapping(
	virtual metadata.TableDescription,
	tables CreateTableRequestFactory,
	indexMapper SecondaryIndexMapper,
	provider mtcontext.Provider,
	codec prefix.Codec,
) (*TableMapping, error) {
	physical, err := lookupPhysicalTable(virtual, tables)
	if err != nil {
		return nil, err
	}
	if err := validatePhysicalTable(physical); err != nil {
		return nil, err
	}

	m := &TableMapping{
		virtual:            virtual,
		physical:           physical,
		virtualToPhysical:  make(map[string][]FieldMapping),
		physicalToVirtual:  make(map[string][]FieldMapping),
		indexMappings:      make(map[string][]FieldMapping),
		physicalIndexNames: make(map[string]string),
	}

	if err := m.buildIndexFieldMappings(indexMapper); err != nil {
		return nil, err
	}
	if err := m.buildTableFieldMappings(); err != nil {
		return nil, err
	}
	m.buildReverseMappings()

	fields := fieldMapper{provider: provider, virtualTable: virtual.Name, codec: codec}
	m.itemMapper = &ItemMapper{mapping: m, fields: fields}
	m.queryMapper = &QueryMapper{mapping: m, fields: fields, provider: provider, codec: codec}
	return m, nil
}

// Virtual returns the virtual table description.
func (m *TableMapping) Virtual() metadata.TableDescription {
	return m.virtual
}

// Physical returns the physical table description.
func (m *TableMapping) Physical() metadata.TableDescription {
	return m.physical
}

// ItemMapper returns the item rewriter for this mapping.
func (m *TableMapping) ItemMapper() *ItemMapper {
	return m.itemMapper
}

// QueryMapper returns the query/scan rewriter for this mapping.
func (m *TableMapping) QueryMapper() *QueryMapper {
	return m.queryMapper
}

// IndexFieldMappings returns the primary key field mappings of the named
// virtual secondary index.
func (m *TableMapping) IndexFieldMappings(virtualIndex string) []FieldMapping {
	return m.indexMappings[virtualIndex]
}

// refreshPhysical swaps in the described physical table. Called once, after
// create-if-not-exists, to capture fields the backend assigns on creation.
func (m *TableMapping) refreshPhysical(physical metadata.TableDescription) {
	m.physical = physical
}

func lookupPhysicalTable(virtual metadata.TableDescription, tables CreateTableRequestFactory) (metadata.TableDescription, error) {
	tmpl, err := tables.CreateTableRequest(virtual)
	if err != nil {
		return metadata.TableDescription{}, fmt.Errorf("resolve physical template for %s: %w", virtual.Name, err)
	}
	if tmpl == nil {
		return metadata.TableDescription{}, fmt.Errorf("%w: %s", ErrUnsupportedVirtualTable, virtual.Name)
	}
	return *tmpl, nil
}

// validatePhysicalTable checks that the physical table's primary key and all
// of its secondary index primary keys hash on type S.
func validatePhysicalTable(physical metadata.TableDescription) error {
	if physical.Key.HashKeyType != metadata.KeyTypeS {
		return fmt.Errorf("%w: physical table %s primary key hash must be type S, got %s",
			ErrInvalidMapping, physical.Name, physical.Key.HashKeyType)
	}
	for _, idx := range physical.Indexes {
		if idx.Key.HashKeyType != metadata.KeyTypeS {
			return fmt.Errorf("%w: physical table %s %s %s hash must be type S, got %s",
				ErrInvalidMapping, physical.Name, idx.Kind, idx.Name, idx.Key.HashKeyType)
		}
	}
	return nil
}

// buildIndexFieldMappings resolves each virtual secondary index to a physical
// one, validates key compatibility, builds the per-index field mappings, and
// rejects two virtual LSIs claiming the same physical LSI.
func (m *TableMapping) buildIndexFieldMappings(indexMapper SecondaryIndexMapper) error {
	usedPhysicalLSIs := make(map[string]string)
	for _, virtualIdx := range m.virtual.Indexes {
		physicalIdx, err := indexMapper.MapIndex(virtualIdx, m.physical)
		if err != nil {
			return fmt.Errorf("mapping %s %s of table %s: %w", virtualIdx.Kind, virtualIdx.Name, m.virtual.Name, err)
		}
		if err := compatibleKeys(virtualIdx.Key, physicalIdx.Key); err != nil {
			return fmt.Errorf("%w: %s %s onto %s: %v", ErrInvalidMapping, virtualIdx.Kind, virtualIdx.Name, physicalIdx.Name, err)
		}
		if virtualIdx.Kind == metadata.IndexKindLSI {
			if other, used := usedPhysicalLSIs[physicalIdx.Name]; used {
				return fmt.Errorf("%w: virtual LSIs %s and %s both map to physical LSI %s",
					ErrInvalidMapping, other, virtualIdx.Name, physicalIdx.Name)
			}
			usedPhysicalLSIs[physicalIdx.Name] = virtualIdx.Name
		}

		// An LSI hash field is the table's partition key, so its mapping is
		// table-scoped; the range mapping stays index-scoped.
		hashScope := ScopeSecondaryIndex
		if virtualIdx.Kind == metadata.IndexKindLSI {
			hashScope = ScopeTable
		}
		mappings := []FieldMapping{{
			Source:        Field{Name: virtualIdx.Key.HashKey, Type: virtualIdx.Key.HashKeyType},
			Target:        Field{Name: physicalIdx.Key.HashKey, Type: physicalIdx.Key.HashKeyType},
			VirtualIndex:  virtualIdx.Name,
			PhysicalIndex: physicalIdx.Name,
			Scope:         hashScope,
			ContextAware:  true,
		}}
		if virtualIdx.Key.HasRangeKey() {
			mappings = append(mappings, FieldMapping{
				Source:        Field{Name: virtualIdx.Key.RangeKey, Type: virtualIdx.Key.RangeKeyType},
				Target:        Field{Name: physicalIdx.Key.RangeKey, Type: physicalIdx.Key.RangeKeyType},
				VirtualIndex:  virtualIdx.Name,
				PhysicalIndex: physicalIdx.Name,
				Scope:         ScopeSecondaryIndex,
				ContextAware:  false,
			})
		}
		m.indexMappings[virtualIdx.Name] = mappings
		m.physicalIndexNames[virtualIdx.Name] = physicalIdx.Name
		for _, fm := range mappings {
			m.addVirtualToPhysical(fm)
		}
	}
	return nil
}

// buildTableFieldMappings validates and maps the table-level primary key.
func (m *TableMapping) buildTableFieldMappings() error {
	if err := compatibleKeys(m.virtual.Key, m.physical.Key); err != nil {
		return fmt.Errorf("%w: table %s onto %s: %v", ErrInvalidMapping, m.virtual.Name, m.physical.Name, err)
	}
	m.addVirtualToPhysical(FieldMapping{
		Source:        Field{Name: m.virtual.Key.HashKey, Type: m.virtual.Key.HashKeyType},
		Target:        Field{Name: m.physical.Key.HashKey, Type: m.physical.Key.HashKeyType},
		VirtualIndex:  m.virtual.Name,
		PhysicalIndex: m.physical.Name,
		Scope:         ScopeTable,
		ContextAware:  true,
	})
	if m.virtual.Key.HasRangeKey() {
		m.addVirtualToPhysical(FieldMapping{
			Source:        Field{Name: m.virtual.Key.RangeKey, Type: m.virtual.Key.RangeKeyType},
			Target:        Field{Name: m.physical.Key.RangeKey, Type: m.physical.Key.RangeKeyType},
			VirtualIndex:  m.virtual.Name,
			PhysicalIndex: m.physical.Name,
			Scope:         ScopeTable,
			ContextAware:  false,
		})
	}
	return nil
}

func (m *TableMapping) addVirtualToPhysical(fm FieldMapping) {
	m.virtualToPhysical[fm.Source.Name] = append(m.virtualToPhysical[fm.Source.Name], fm)
}

// buildReverseMappings derives the physical-to-virtual map by swapping source
// and target on every mapping. Several virtual-side mappings of one field
// reverse to the same rule, so one entry per physical name suffices.
func (m *TableMapping) buildReverseMappings() {
	for _, mappings := range m.virtualToPhysical {
		for _, fm := range mappings {
			m.physicalToVirtual[fm.Target.Name] = []FieldMapping{fm.reversed()}
		}
	}
}

// mappingFor returns the rewrite rule for a virtual field in the scope of the
// given virtual index (the virtual table name denotes table scope).
func (m *TableMapping) mappingFor(virtualField, virtualIndex string) (FieldMapping, bool) {
	for _, fm := range m.virtualToPhysical[virtualField] {
		if fm.VirtualIndex == virtualIndex {
			return fm, true
		}
	}
	return FieldMapping{}, false
}
