package sharedtable

import (
	"fmt"

	"github.com/dynashard/dynashard/metadata"
)

// SecondaryIndexMapper pairs a virtual secondary index with a compatible
// physical index on the shared table.
type SecondaryIndexMapper interface {
	MapIndex(virtual metadata.SecondaryIndex, physical metadata.TableDescription) (metadata.SecondaryIndex, error)
}

// ByTypeIndexMapper matches indexes of the same kind in declaration order:
// the first physical index with a compatible key schema wins. The table
// mapping builder separately enforces that no physical LSI is claimed twice.
type ByTypeIndexMapper struct{}

func (ByTypeIndexMapper) MapIndex(virtual metadata.SecondaryIndex, physical metadata.TableDescription) (metadata.SecondaryIndex, error) {
	for _, candidate := range physical.Indexes {
		if candidate.Kind != virtual.Kind {
			continue
		}
		if compatibleKeys(virtual.Key, candidate.Key) == nil {
			return candidate, nil
		}
	}
	return metadata.SecondaryIndex{}, fmt.Errorf("%w: no physical %s matches %s %s on table %s",
		ErrUnmappableIndex, virtual.Kind, virtual.Kind, virtual.Name, physical.Name)
}

// ByNameIndexMapper requires the physical table to carry an index with the
// identical name and kind. Useful when physical tables are provisioned to
// mirror virtual index names.
type ByNameIndexMapper struct{}

func (ByNameIndexMapper) MapIndex(virtual metadata.SecondaryIndex, physical metadata.TableDescription) (metadata.SecondaryIndex, error) {
	candidate, ok := physical.Index(virtual.Name)
	if !ok || candidate.Kind != virtual.Kind {
		return metadata.SecondaryIndex{}, fmt.Errorf("%w: physical table %s has no %s named %s",
			ErrUnmappableIndex, physical.Name, virtual.Kind, virtual.Name)
	}
	return candidate, nil
}

// compatibleKeys validates that a virtual key schema can be laid over a
// physical one: both hash keys present, the physical hash key of type S, and
// a virtual range key matched by a physical range key of the exact same type.
func compatibleKeys(virtual, physical metadata.PrimaryKey) error {
	if virtual.HashKey == "" {
		return fmt.Errorf("hash key is required on the virtual key schema")
	}
	if physical.HashKey == "" {
		return fmt.Errorf("hash key is required on the physical key schema")
	}
	if physical.HashKeyType != metadata.KeyTypeS {
		return fmt.Errorf("physical hash key must be of type S, got %s", physical.HashKeyType)
	}
	if virtual.HasRangeKey() {
		if !physical.HasRangeKey() {
			return fmt.Errorf("range key exists on the virtual key schema but not on the physical")
		}
		if virtual.RangeKeyType != physical.RangeKeyType {
			return fmt.Errorf("virtual and physical range key types mismatch: %s != %s",
				virtual.RangeKeyType, physical.RangeKeyType)
		}
	}
	return nil
}
