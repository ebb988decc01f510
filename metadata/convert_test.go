package metadata

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDescription() TableDescription {
	return TableDescription{
		Name: "mt_data",
		Key: PrimaryKey{
			HashKey:      "hk",
			HashKeyType:  KeyTypeS,
			RangeKey:     "rk",
			RangeKeyType: KeyTypeS,
		},
		Indexes: []SecondaryIndex{
			{
				Name:       "gsi_1",
				Kind:       IndexKindGSI,
				Key:        PrimaryKey{HashKey: "gsi_hk", HashKeyType: KeyTypeS},
				Projection: types.ProjectionTypeAll,
			},
			{
				Name: "lsi_1",
				Kind: IndexKindLSI,
				Key: PrimaryKey{
					HashKey:      "hk",
					HashKeyType:  KeyTypeS,
					RangeKey:     "lsi_rk",
					RangeKeyType: KeyTypeN,
				},
				Projection: types.ProjectionTypeAll,
			},
		},
		Stream: &StreamSpecification{
			Enabled:  true,
			ViewType: types.StreamViewTypeNewAndOldImages,
		},
	}
}

func TestCreateTableInputRoundTrip(t *testing.T) {
	desc := testDescription()

	in := desc.ToCreateTableInput()
	assert.Equal(t, "mt_data", aws.ToString(in.TableName))
	assert.Len(t, in.AttributeDefinitions, 4)
	assert.Len(t, in.GlobalSecondaryIndexes, 1)
	assert.Len(t, in.LocalSecondaryIndexes, 1)
	require.NotNil(t, in.StreamSpecification)
	assert.True(t, aws.ToBool(in.StreamSpecification.StreamEnabled))

	parsed, err := FromCreateTableInput(in)
	require.NoError(t, err)
	assert.Equal(t, desc, parsed)
}

func TestTableDescriptionRoundTrip(t *testing.T) {
	desc := testDescription()
	desc.Status = types.TableStatusActive
	desc.Stream.Arn = "arn:aws:dynamodb:local:000000000000:table/mt_data/stream/x"

	d := desc.ToTableDescription()
	parsed, err := FromTableDescription(d)
	require.NoError(t, err)
	assert.Equal(t, desc, parsed)
}

func TestFromCreateTableInput_Invalid(t *testing.T) {
	t.Run("nil input", func(t *testing.T) {
		_, err := FromCreateTableInput(nil)
		require.Error(t, err)
	})

	t.Run("missing attribute definition", func(t *testing.T) {
		_, err := FromCreateTableInput(&dynamodb.CreateTableInput{
			TableName: aws.String("t"),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("hk"), KeyType: types.KeyTypeHash},
			},
		})
		require.Error(t, err)
	})

	t.Run("no hash key", func(t *testing.T) {
		_, err := FromCreateTableInput(&dynamodb.CreateTableInput{
			TableName: aws.String("t"),
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("rk"), AttributeType: types.ScalarAttributeTypeS},
			},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("rk"), KeyType: types.KeyTypeRange},
			},
		})
		require.Error(t, err)
	})
}

func TestTableDescriptionAccessors(t *testing.T) {
	desc := testDescription()

	assert.Len(t, desc.GSIs(), 1)
	assert.Len(t, desc.LSIs(), 1)
	assert.Equal(t, []string{"hk", "rk"}, desc.KeyAttributes())
	assert.True(t, desc.StreamEnabled())

	idx, ok := desc.Index("gsi_1")
	require.True(t, ok)
	assert.Equal(t, IndexKindGSI, idx.Kind)

	_, ok = desc.Index("nope")
	assert.False(t, ok)
}
