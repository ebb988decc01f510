// Package metadata models virtual and physical table schemas: primary keys,
// secondary indexes, and stream specifications, with conversions to and from
// the AWS SDK request and description shapes.
package metadata

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// KeyType is the scalar attribute type of a key field.
type KeyType string

const (
	KeyTypeS KeyType = "S"
	KeyTypeN KeyType = "N"
	KeyTypeB KeyType = "B"
)

// IndexKind distinguishes global from local secondary indexes.
type IndexKind string

const (
	IndexKindGSI IndexKind = "GSI"
	IndexKindLSI IndexKind = "LSI"
)

// PrimaryKey describes a hash key and an optional range key. RangeKey is
// empty when the key is hash-only.
type PrimaryKey struct {
	HashKey      string  `yaml:"hashKey" json:"hashKey"`
	HashKeyType  KeyType `yaml:"hashKeyType" json:"hashKeyType"`
	RangeKey     string  `yaml:"rangeKey,omitempty" json:"rangeKey,omitempty"`
	RangeKeyType KeyType `yaml:"rangeKeyType,omitempty" json:"rangeKeyType,omitempty"`
}

func (k PrimaryKey) HasRangeKey() bool {
	return k.RangeKey != ""
}

func (k PrimaryKey) String() string {
	if k.HasRangeKey() {
		return fmt.Sprintf("{hashKey=%s:%s, rangeKey=%s:%s}", k.HashKey, k.HashKeyType, k.RangeKey, k.RangeKeyType)
	}
	return fmt.Sprintf("{hashKey=%s:%s}", k.HashKey, k.HashKeyType)
}

// SecondaryIndex describes one GSI or LSI.
type SecondaryIndex struct {
	Name       string               `yaml:"name" json:"name"`
	Kind       IndexKind            `yaml:"kind" json:"kind"`
	Key        PrimaryKey           `yaml:"key" json:"key"`
	Projection types.ProjectionType `yaml:"projection,omitempty" json:"projection,omitempty"`
}

// StreamSpecification describes change capture on a table. Arn is assigned by
// the backend and only present on described physical tables.
type StreamSpecification struct {
	Enabled  bool                 `yaml:"enabled" json:"enabled"`
	ViewType types.StreamViewType `yaml:"viewType,omitempty" json:"viewType,omitempty"`
	Arn      string               `yaml:"-" json:"arn,omitempty"`
}

// TableDescription describes one table, virtual or physical.
type TableDescription struct {
	Name    string               `yaml:"name" json:"name"`
	Key     PrimaryKey           `yaml:"key" json:"key"`
	Indexes []SecondaryIndex     `yaml:"indexes,omitempty" json:"indexes,omitempty"`
	Stream  *StreamSpecification `yaml:"stream,omitempty" json:"stream,omitempty"`
	Status  types.TableStatus    `yaml:"-" json:"status,omitempty"`
}

// GSIs returns the global secondary indexes in declaration order.
func (t TableDescription) GSIs() []SecondaryIndex {
	return t.indexesOfKind(IndexKindGSI)
}

// LSIs returns the local secondary indexes in declaration order.
func (t TableDescription) LSIs() []SecondaryIndex {
	return t.indexesOfKind(IndexKindLSI)
}

func (t TableDescription) indexesOfKind(kind IndexKind) []SecondaryIndex {
	var out []SecondaryIndex
	for _, idx := range t.Indexes {
		if idx.Kind == kind {
			out = append(out, idx)
		}
	}
	return out
}

// Index returns the secondary index with the given name.
func (t TableDescription) Index(name string) (SecondaryIndex, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return SecondaryIndex{}, false
}

// StreamEnabled reports whether change capture is turned on.
func (t TableDescription) StreamEnabled() bool {
	return t.Stream != nil && t.Stream.Enabled
}

// KeyAttributes returns the names of the table-level key fields.
func (t TableDescription) KeyAttributes() []string {
	attrs := []string{t.Key.HashKey}
	if t.Key.HasRangeKey() {
		attrs = append(attrs, t.Key.RangeKey)
	}
	return attrs
}

func (t TableDescription) String() string {
	return fmt.Sprintf("{tableName=%s, key=%s, indexes=%d}", t.Name, t.Key, len(t.Indexes))
}
