package metadata

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// FromCreateTableInput builds a TableDescription from an SDK create request.
func FromCreateTableInput(in *dynamodb.CreateTableInput) (TableDescription, error) {
	if in == nil || in.TableName == nil {
		return TableDescription{}, fmt.Errorf("create table request requires a table name")
	}
	attrTypes := make(map[string]KeyType, len(in.AttributeDefinitions))
	for _, def := range in.AttributeDefinitions {
		attrTypes[aws.ToString(def.AttributeName)] = KeyType(def.AttributeType)
	}
	key, err := keyFromSchema(in.KeySchema, attrTypes)
	if err != nil {
		return TableDescription{}, fmt.Errorf("table %s: %w", aws.ToString(in.TableName), err)
	}
	desc := TableDescription{
		Name: aws.ToString(in.TableName),
		Key:  key,
	}
	for _, gsi := range in.GlobalSecondaryIndexes {
		idxKey, err := keyFromSchema(gsi.KeySchema, attrTypes)
		if err != nil {
			return TableDescription{}, fmt.Errorf("GSI %s: %w", aws.ToString(gsi.IndexName), err)
		}
		desc.Indexes = append(desc.Indexes, SecondaryIndex{
			Name:       aws.ToString(gsi.IndexName),
			Kind:       IndexKindGSI,
			Key:        idxKey,
			Projection: projectionType(gsi.Projection),
		})
	}
	for _, lsi := range in.LocalSecondaryIndexes {
		idxKey, err := keyFromSchema(lsi.KeySchema, attrTypes)
		if err != nil {
			return TableDescription{}, fmt.Errorf("LSI %s: %w", aws.ToString(lsi.IndexName), err)
		}
		desc.Indexes = append(desc.Indexes, SecondaryIndex{
			Name:       aws.ToString(lsi.IndexName),
			Kind:       IndexKindLSI,
			Key:        idxKey,
			Projection: projectionType(lsi.Projection),
		})
	}
	if in.StreamSpecification != nil {
		desc.Stream = &StreamSpecification{
			Enabled:  aws.ToBool(in.StreamSpecification.StreamEnabled),
			ViewType: in.StreamSpecification.StreamViewType,
		}
	}
	return desc, nil
}

// ToCreateTableInput renders the description as an SDK create request.
func (t TableDescription) ToCreateTableInput() *dynamodb.CreateTableInput {
	attrs := newAttributeSet()
	attrs.add(t.Key)
	in := &dynamodb.CreateTableInput{
		TableName:   aws.String(t.Name),
		KeySchema:   schemaFromKey(t.Key),
		BillingMode: types.BillingModePayPerRequest,
	}
	for _, idx := range t.Indexes {
		attrs.add(idx.Key)
		proj := &types.Projection{ProjectionType: idx.Projection}
		if proj.ProjectionType == "" {
			proj.ProjectionType = types.ProjectionTypeAll
		}
		switch idx.Kind {
		case IndexKindGSI:
			in.GlobalSecondaryIndexes = append(in.GlobalSecondaryIndexes, types.GlobalSecondaryIndex{
				IndexName:  aws.String(idx.Name),
				KeySchema:  schemaFromKey(idx.Key),
				Projection: proj,
			})
		case IndexKindLSI:
			in.LocalSecondaryIndexes = append(in.LocalSecondaryIndexes, types.LocalSecondaryIndex{
				IndexName:  aws.String(idx.Name),
				KeySchema:  schemaFromKey(idx.Key),
				Projection: proj,
			})
		}
	}
	in.AttributeDefinitions = attrs.definitions()
	if t.Stream != nil {
		in.StreamSpecification = &types.StreamSpecification{
			StreamEnabled:  aws.Bool(t.Stream.Enabled),
			StreamViewType: t.Stream.ViewType,
		}
	}
	return in
}

// FromTableDescription builds a TableDescription from an SDK describe result.
func FromTableDescription(d *types.TableDescription) (TableDescription, error) {
	if d == nil || d.TableName == nil {
		return TableDescription{}, fmt.Errorf("table description requires a table name")
	}
	attrTypes := make(map[string]KeyType, len(d.AttributeDefinitions))
	for _, def := range d.AttributeDefinitions {
		attrTypes[aws.ToString(def.AttributeName)] = KeyType(def.AttributeType)
	}
	key, err := keyFromSchema(d.KeySchema, attrTypes)
	if err != nil {
		return TableDescription{}, fmt.Errorf("table %s: %w", aws.ToString(d.TableName), err)
	}
	desc := TableDescription{
		Name:   aws.ToString(d.TableName),
		Key:    key,
		Status: d.TableStatus,
	}
	for _, gsi := range d.GlobalSecondaryIndexes {
		idxKey, err := keyFromSchema(gsi.KeySchema, attrTypes)
		if err != nil {
			return TableDescription{}, fmt.Errorf("GSI %s: %w", aws.ToString(gsi.IndexName), err)
		}
		desc.Indexes = append(desc.Indexes, SecondaryIndex{
			Name:       aws.ToString(gsi.IndexName),
			Kind:       IndexKindGSI,
			Key:        idxKey,
			Projection: projectionType(gsi.Projection),
		})
	}
	for _, lsi := range d.LocalSecondaryIndexes {
		idxKey, err := keyFromSchema(lsi.KeySchema, attrTypes)
		if err != nil {
			return TableDescription{}, fmt.Errorf("LSI %s: %w", aws.ToString(lsi.IndexName), err)
		}
		desc.Indexes = append(desc.Indexes, SecondaryIndex{
			Name:       aws.ToString(lsi.IndexName),
			Kind:       IndexKindLSI,
			Key:        idxKey,
			Projection: projectionType(lsi.Projection),
		})
	}
	if d.StreamSpecification != nil {
		desc.Stream = &StreamSpecification{
			Enabled:  aws.ToBool(d.StreamSpecification.StreamEnabled),
			ViewType: d.StreamSpecification.StreamViewType,
			Arn:      aws.ToString(d.LatestStreamArn),
		}
	}
	return desc, nil
}

// ToTableDescription renders the description as an SDK describe result.
func (t TableDescription) ToTableDescription() *types.TableDescription {
	attrs := newAttributeSet()
	attrs.add(t.Key)
	d := &types.TableDescription{
		TableName:   aws.String(t.Name),
		KeySchema:   schemaFromKey(t.Key),
		TableStatus: t.Status,
	}
	for _, idx := range t.Indexes {
		attrs.add(idx.Key)
		proj := &types.Projection{ProjectionType: idx.Projection}
		if proj.ProjectionType == "" {
			proj.ProjectionType = types.ProjectionTypeAll
		}
		switch idx.Kind {
		case IndexKindGSI:
			d.GlobalSecondaryIndexes = append(d.GlobalSecondaryIndexes, types.GlobalSecondaryIndexDescription{
				IndexName:  aws.String(idx.Name),
				KeySchema:  schemaFromKey(idx.Key),
				Projection: proj,
			})
		case IndexKindLSI:
			d.LocalSecondaryIndexes = append(d.LocalSecondaryIndexes, types.LocalSecondaryIndexDescription{
				IndexName:  aws.String(idx.Name),
				KeySchema:  schemaFromKey(idx.Key),
				Projection: proj,
			})
		}
	}
	d.AttributeDefinitions = attrs.definitions()
	if t.Stream != nil {
		d.StreamSpecification = &types.StreamSpecification{
			StreamEnabled:  aws.Bool(t.Stream.Enabled),
			StreamViewType: t.Stream.ViewType,
		}
		if t.Stream.Arn != "" {
			d.LatestStreamArn = aws.String(t.Stream.Arn)
		}
	}
	return d
}

func keyFromSchema(schema []types.KeySchemaElement, attrTypes map[string]KeyType) (PrimaryKey, error) {
	var key PrimaryKey
	for _, elem := range schema {
		name := aws.ToString(elem.AttributeName)
		kt, ok := attrTypes[name]
		if !ok {
			return PrimaryKey{}, fmt.Errorf("key attribute %q has no attribute definition", name)
		}
		switch elem.KeyType {
		case types.KeyTypeHash:
			key.HashKey = name
			key.HashKeyType = kt
		case types.KeyTypeRange:
			key.RangeKey = name
			key.RangeKeyType = kt
		default:
			return PrimaryKey{}, fmt.Errorf("unknown key type %q for attribute %q", elem.KeyType, name)
		}
	}
	if key.HashKey == "" {
		return PrimaryKey{}, fmt.Errorf("key schema has no hash key")
	}
	return key, nil
}

func schemaFromKey(key PrimaryKey) []types.KeySchemaElement {
	schema := []types.KeySchemaElement{{
		AttributeName: aws.String(key.HashKey),
		KeyType:       types.KeyTypeHash,
	}}
	if key.HasRangeKey() {
		schema = append(schema, types.KeySchemaElement{
			AttributeName: aws.String(key.RangeKey),
			KeyType:       types.KeyTypeRange,
		})
	}
	return schema
}

func projectionType(p *types.Projection) types.ProjectionType {
	if p == nil {
		return types.ProjectionTypeAll
	}
	return p.ProjectionType
}

// attributeSet deduplicates attribute definitions across the table key and
// index keys. An attribute used by several key schemas must carry the same
// type in each.
type attributeSet struct {
	order []string
	types map[string]KeyType
}

func newAttributeSet() *attributeSet {
	return &attributeSet{types: make(map[string]KeyType)}
}

func (s *attributeSet) add(key PrimaryKey) {
	s.put(key.HashKey, key.HashKeyType)
	if key.HasRangeKey() {
		s.put(key.RangeKey, key.RangeKeyType)
	}
}

func (s *attributeSet) put(name string, kt KeyType) {
	if _, ok := s.types[name]; !ok {
		s.order = append(s.order, name)
		s.types[name] = kt
	}
}

func (s *attributeSet) definitions() []types.AttributeDefinition {
	defs := make([]types.AttributeDefinition, 0, len(s.order))
	for _, name := range s.order {
		defs = append(defs, types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: types.ScalarAttributeType(s.types[name]),
		})
	}
	return defs
}
