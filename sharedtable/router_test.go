package sharedtable

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynashard/dynashard/localddb"
	"github.com/dynashard/dynashard/metadata"
	"github.com/dynashard/dynashard/mtcontext"
	"github.com/dynashard/dynashard/repo"
)

// newTestRouter builds a router over an in-process backend with one shared
// hash-only template and one hash+range template.
func newTestRouter(t *testing.T, opts ...Option) (*Router, *localddb.Store) {
	t.Helper()
	store, err := localddb.New(localddb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	templates := &StaticTemplateFactory{Templates: []metadata.TableDescription{
		physicalTemplate(),
		{
			Name: "mt_data_rk",
			Key: metadata.PrimaryKey{
				HashKey: "hk", HashKeyType: metadata.KeyTypeS,
				RangeKey: "rk", RangeKeyType: metadata.KeyTypeS,
			},
		},
	}}

	base := []Option{
		WithCreateTableRequestFactory(templates),
		WithTruncateOnDeleteTable(true),
	}
	router, err := New(context.Background(), "test-router", store, append(base, opts...)...)
	require.NoError(t, err)
	return router, store
}

func createVirtualTable(t *testing.T, router *Router, ctx context.Context, name string) {
	t.Helper()
	_, err := router.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(name),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("hashKeyField"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("hashKeyField"), KeyType: types.KeyTypeHash},
		},
	})
	require.NoError(t, err)
}

func putRow(t *testing.T, router *Router, ctx context.Context, table, key, someField string) {
	t.Helper()
	_, err := router.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item: Item{
			"hashKeyField": &types.AttributeValueMemberS{Value: key},
			"someField":    &types.AttributeValueMemberS{Value: someField},
		},
	})
	require.NoError(t, err)
}

func scanAll(t *testing.T, router *Router, ctx context.Context, table string) []Item {
	t.Helper()
	out, err := router.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String(table)})
	require.NoError(t, err)
	return out.Items
}

func TestRouter_CrossTenantIsolation(t *testing.T) {
	router, store := newTestRouter(t)
	provider := mtcontext.ContextProvider{}
	ctx1 := provider.WithTenant(context.Background(), "ctx1")
	ctx2 := provider.WithTenant(context.Background(), "ctx2")

	createVirtualTable(t, router, ctx1, "table1")
	createVirtualTable(t, router, ctx2, "table1")
	putRow(t, router, ctx1, "table1", "1", "value-1")
	putRow(t, router, ctx2, "table1", "1", "value-1")

	for _, ctx := range []context.Context{ctx1, ctx2} {
		items := scanAll(t, router, ctx, "table1")
		require.Len(t, items, 1)
		assert.Equal(t, Item{
			"hashKeyField": &types.AttributeValueMemberS{Value: "1"},
			"someField":    &types.AttributeValueMemberS{Value: "value-1"},
		}, items[0])
	}

	// The physical rows carry tenant/table qualified keys.
	physical, err := store.Scan(context.Background(), &dynamodb.ScanInput{TableName: aws.String("mt_data")})
	require.NoError(t, err)
	var keys []string
	for _, item := range physical.Items {
		keys = append(keys, item["hk"].(*types.AttributeValueMemberS).Value)
	}
	assert.ElementsMatch(t, []string{"ctx1.table1.1", "ctx2.table1.1"}, keys)
}

func TestRouter_SameTenantTwoTables(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := mtcontext.ContextProvider{}.WithTenant(context.Background(), "ctx1")

	createVirtualTable(t, router, ctx, "table1")
	createVirtualTable(t, router, ctx, "table2")
	putRow(t, router, ctx, "table1", "1", "from-table1")
	putRow(t, router, ctx, "table2", "1", "from-table2")

	items := scanAll(t, router, ctx, "table1")
	require.Len(t, items, 1)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "from-table1"}, items[0]["someField"])

	items = scanAll(t, router, ctx, "table2")
	require.Len(t, items, 1)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "from-table2"}, items[0]["someField"])
}

func TestRouter_GetItemReverseMapping(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := mtcontext.ContextProvider{}.WithTenant(context.Background(), "ctx1")

	createVirtualTable(t, router, ctx, "table1")
	putRow(t, router, ctx, "table1", "1", "value-1")

	out, err := router.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String("table1"),
		Key: Item{
			"hashKeyField": &types.AttributeValueMemberS{Value: "1"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, Item{
		"hashKeyField": &types.AttributeValueMemberS{Value: "1"},
		"someField":    &types.AttributeValueMemberS{Value: "value-1"},
	}, out.Item)
}

func TestRouter_IdempotentPut(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := mtcontext.ContextProvider{}.WithTenant(context.Background(), "ctx1")

	createVirtualTable(t, router, ctx, "table1")
	putRow(t, router, ctx, "table1", "1", "value-1")
	putRow(t, router, ctx, "table1", "1", "value-1")

	assert.Len(t, scanAll(t, router, ctx, "table1"), 1)
}

func TestRouter_DeleteTableTruncates(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := mtcontext.ContextProvider{}.WithTenant(context.Background(), "ctx1")

	createVirtualTable(t, router, ctx, "table1")
	putRow(t, router, ctx, "table1", "1", "value-1")
	putRow(t, router, ctx, "table1", "2", "value-2")

	out, err := router.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String("table1")})
	require.NoError(t, err)
	assert.Equal(t, "table1", aws.ToString(out.TableDescription.TableName))

	createVirtualTable(t, router, ctx, "table1")
	assert.Empty(t, scanAll(t, router, ctx, "table1"))
}

func TestRouter_DeleteItem(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := mtcontext.ContextProvider{}.WithTenant(context.Background(), "ctx1")

	createVirtualTable(t, router, ctx, "table1")
	putRow(t, router, ctx, "table1", "1", "value-1")

	_, err := router.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String("table1"),
		Key: Item{
			"hashKeyField": &types.AttributeValueMemberS{Value: "1"},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, scanAll(t, router, ctx, "table1"))
}

func TestRouter_UpdateItemPassesExpressionsThrough(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := mtcontext.ContextProvider{}.WithTenant(context.Background(), "ctx1")

	createVirtualTable(t, router, ctx, "table1")
	putRow(t, router, ctx, "table1", "1", "value-1")

	_, err := router.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String("table1"),
		Key: Item{
			"hashKeyField": &types.AttributeValueMemberS{Value: "1"},
		},
		UpdateExpression: aws.String("SET someField = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: "updated"},
		},
	})
	require.NoError(t, err)

	items := scanAll(t, router, ctx, "table1")
	require.Len(t, items, 1)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "updated"}, items[0]["someField"])
}

func TestRouter_Query(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := mtcontext.ContextProvider{}.WithTenant(context.Background(), "ctx1")

	createVirtualTable(t, router, ctx, "table1")
	putRow(t, router, ctx, "table1", "1", "value-1")
	putRow(t, router, ctx, "table1", "2", "value-2")

	out, err := router.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String("table1"),
		KeyConditionExpression: aws.String("hashKeyField = :h"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":h": &types.AttributeValueMemberS{Value: "1"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, Item{
		"hashKeyField": &types.AttributeValueMemberS{Value: "1"},
		"someField":    &types.AttributeValueMemberS{Value: "value-1"},
	}, out.Items[0])
}

func TestRouter_QueryOnSecondaryIndex(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := mtcontext.ContextProvider{}.WithTenant(context.Background(), "ctx1")

	_, err := router.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String("table1"),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("hashKeyField"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("indexField"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("hashKeyField"), KeyType: types.KeyTypeHash},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{{
			IndexName: aws.String("virtual-gsi"),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("indexField"), KeyType: types.KeyTypeHash},
			},
			Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
		}},
	})
	require.NoError(t, err)

	for key, indexValue := range map[string]string{"1": "x", "2": "y"} {
		_, err := router.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String("table1"),
			Item: Item{
				"hashKeyField": &types.AttributeValueMemberS{Value: key},
				"indexField":   &types.AttributeValueMemberS{Value: indexValue},
			},
		})
		require.NoError(t, err)
	}

	out, err := router.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String("table1"),
		IndexName:              aws.String("virtual-gsi"),
		KeyConditionExpression: aws.String("indexField = :v"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: "x"},
		},
	})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "1"}, out.Items[0]["hashKeyField"])
	assert.Equal(t, &types.AttributeValueMemberS{Value: "x"}, out.Items[0]["indexField"])
}

func TestRouter_DescribeTableForcesActive(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := mtcontext.ContextProvider{}.WithTenant(context.Background(), "ctx1")

	createVirtualTable(t, router, ctx, "table1")
	out, err := router.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String("table1")})
	require.NoError(t, err)
	assert.Equal(t, types.TableStatusActive, out.Table.TableStatus)
	assert.Equal(t, "table1", aws.ToString(out.Table.TableName))
}

func TestRouter_DataPlaneRequiresTenant(t *testing.T) {
	router, _ := newTestRouter(t)

	_, err := router.Scan(context.Background(), &dynamodb.ScanInput{TableName: aws.String("table1")})
	require.ErrorIs(t, err, mtcontext.ErrNoTenant)
}

func TestRouter_UnknownVirtualTable(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := mtcontext.ContextProvider{}.WithTenant(context.Background(), "ctx1")

	_, err := router.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String("nope"),
		Key: Item{
			"hashKeyField": &types.AttributeValueMemberS{Value: "1"},
		},
	})
	require.ErrorIs(t, err, repo.ErrNoSuchTable)
}

func TestRouter_RangeKeyTableUsesRangeTemplate(t *testing.T) {
	router, store := newTestRouter(t)
	ctx := mtcontext.ContextProvider{}.WithTenant(context.Background(), "ctx1")

	_, err := router.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String("events"),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("hashKeyField"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("rangeKeyField"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("hashKeyField"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("rangeKeyField"), KeyType: types.KeyTypeRange},
		},
	})
	require.NoError(t, err)

	_, err = router.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String("events"),
		Item: Item{
			"hashKeyField":  &types.AttributeValueMemberS{Value: "1"},
			"rangeKeyField": &types.AttributeValueMemberS{Value: "2024-01-01"},
		},
	})
	require.NoError(t, err)

	physical, err := store.Scan(context.Background(), &dynamodb.ScanInput{TableName: aws.String("mt_data_rk")})
	require.NoError(t, err)
	require.Len(t, physical.Items, 1)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "ctx1.events.1"}, physical.Items[0]["hk"])
	// Range keys carry no tenant prefix.
	assert.Equal(t, &types.AttributeValueMemberS{Value: "2024-01-01"}, physical.Items[0]["rk"])
}

func TestRouter_ScanPagination(t *testing.T) {
	router, _ := newTestRouter(t)
	ctx := mtcontext.ContextProvider{}.WithTenant(context.Background(), "ctx1")

	createVirtualTable(t, router, ctx, "table1")
	for _, key := range []string{"1", "2", "3"} {
		putRow(t, router, ctx, "table1", key, "value-"+key)
	}

	var items []Item
	var startKey map[string]types.AttributeValue
	pages := 0
	for {
		out, err := router.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String("table1"),
			Limit:             aws.Int32(2),
			ExclusiveStartKey: startKey,
		})
		require.NoError(t, err)
		items = append(items, out.Items...)
		pages++
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	assert.Len(t, items, 3)
	assert.GreaterOrEqual(t, pages, 2)
}

func TestRouter_DeleteTableAsync(t *testing.T) {
	router, _ := newTestRouter(t, WithDeleteTableAsync(true))
	ctx := mtcontext.ContextProvider{}.WithTenant(context.Background(), "ctx1")

	createVirtualTable(t, router, ctx, "table1")
	putRow(t, router, ctx, "table1", "1", "value-1")

	out, err := router.DeleteTable(ctx, &dynamodb.DeleteTableInput{TableName: aws.String("table1")})
	require.NoError(t, err)
	// The synchronous result carries the pre-delete description.
	assert.Equal(t, "table1", aws.ToString(out.TableDescription.TableName))

	require.Eventually(t, func() bool {
		_, err := router.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String("table1")})
		return errors.Is(err, repo.ErrNoSuchTable)
	}, 5*time.Second, 10*time.Millisecond)
}
