package sharedtable

import (
	"context"
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

func TestNew_RequiresFactoryAndBackend(t *testing.T) {
	store, err := localddb.New(localddb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = New(context.Background(), "r", nil)
	require.Error(t, err)

	_, err = New(context.Background(), "r", store)
	require.Error(t, err)

	_, err = New(context.Background(), "r", store,
		WithCreateTableRequestFactory(&StaticTemplateFactory{Templates: []metadata.TableDescription{physicalTemplate()}}),
		WithDelimiter(""),
	)
	require.Error(t, err)
}

func TestNew_PrecreatesTables(t *testing.T) {
	store, err := localddb.New(localddb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	_, err = New(context.Background(), "r", store,
		WithCreateTableRequestFactory(&StaticTemplateFactory{Templates: []metadata.TableDescription{physicalTemplate()}}),
		WithPrecreateTables(true),
		WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)

	// The physical table exists before any tenant has touched the router.
	out, err := store.DescribeTable(context.Background(), &dynamodb.DescribeTableInput{TableName: aws.String("mt_data")})
	require.NoError(t, err)
	assert.Equal(t, "mt_data", aws.ToString(out.Table.TableName))
}

func TestNew_CustomDelimiter(t *testing.T) {
	store, err := localddb.New(localddb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	router, err := New(context.Background(), "r", store,
		WithCreateTableRequestFactory(&StaticTemplateFactory{Templates: []metadata.TableDescription{physicalTemplate()}}),
		WithDelimiter("|"),
	)
	require.NoError(t, err)

	ctx := mtcontext.ContextProvider{}.WithTenant(context.Background(), "ctx1")
	createVirtualTable(t, router, ctx, "table1")
	putRow(t, router, ctx, "table1", "1", "v")

	physical, err := store.Scan(context.Background(), &dynamodb.ScanInput{TableName: aws.String("mt_data")})
	require.NoError(t, err)
	require.Len(t, physical.Items, 1)
	assert.Equal(t, &types.AttributeValueMemberS{Value: "ctx1|table1|1"}, physical.Items[0]["hk"])
}

func TestNew_StaticContextProvider(t *testing.T) {
	store, err := localddb.New(localddb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	provider := mtcontext.Static{ID: "only-tenant"}
	router, err := New(context.Background(), "r", store,
		WithCreateTableRequestFactory(&StaticTemplateFactory{Templates: []metadata.TableDescription{physicalTemplate()}}),
		WithContextProvider(provider),
		WithMetadataRepo(repo.NewMemory(provider)),
	)
	require.NoError(t, err)

	ctx := context.Background()
	createVirtualTable(t, router, ctx, "table1")
	putRow(t, router, ctx, "table1", "1", "v")

	physical, err := store.Scan(ctx, &dynamodb.ScanInput{TableName: aws.String("mt_data")})
	require.NoError(t, err)
	require.Len(t, physical.Items, 1)
}
