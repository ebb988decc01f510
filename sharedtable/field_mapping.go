package sharedtable

import "github.com/dynashard/dynashard/metadata"

// IndexScope tells whether a field mapping belongs to the table-level key
// schema or to a secondary index. LSI hash-field mappings carry ScopeTable
// because an LSI shares its table's partition key.
type IndexScope string

const (
	ScopeTable          IndexScope = "TABLE"
	ScopeSecondaryIndex IndexScope = "SECONDARY_INDEX"
)

// Field names one attribute together with its declared key type.
type Field struct {
	Name string
	Type metadata.KeyType
}

// FieldMapping is the rewrite rule for a single attribute between its virtual
// and physical forms. ContextAware is set on all hash-key mappings: those are
// the fields whose values carry the tenant/virtual-table prefix.
type FieldMapping struct {
	Source        Field
	Target        Field
	VirtualIndex  string
	PhysicalIndex string
	Scope         IndexScope
	ContextAware  bool
}

// reversed swaps source and target, producing the physical-to-virtual rule.
func (m FieldMapping) reversed() FieldMapping {
	return FieldMapping{
		Source:        m.Target,
		Target:        m.Source,
		VirtualIndex:  m.VirtualIndex,
		PhysicalIndex: m.PhysicalIndex,
		Scope:         m.Scope,
		ContextAware:  m.ContextAware,
	}
}
