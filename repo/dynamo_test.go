package repo

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynashard/dynashard/localddb"
	"github.com/dynashard/dynashard/metadata"
	"github.com/dynashard/dynashard/mtcontext"
)

func newDynamoRepo(t *testing.T) *DynamoDB {
	t.Helper()
	store, err := localddb.New(localddb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewDynamoDB(store, mtcontext.ContextProvider{})
}

func TestDynamoDB_RoundTrip(t *testing.T) {
	repo := newDynamoRepo(t)
	ctx := mtcontext.ContextProvider{}.WithTenant(context.Background(), "ctx1")

	desc := metadata.TableDescription{
		Name: "table1",
		Key: metadata.PrimaryKey{
			HashKey: "hashKeyField", HashKeyType: metadata.KeyTypeS,
			RangeKey: "rangeKeyField", RangeKeyType: metadata.KeyTypeN,
		},
		Indexes: []metadata.SecondaryIndex{
			{
				Name:       "by-field",
				Kind:       metadata.IndexKindGSI,
				Key:        metadata.PrimaryKey{HashKey: "field", HashKeyType: metadata.KeyTypeS},
				Projection: types.ProjectionTypeAll,
			},
		},
	}

	_, err := repo.CreateTable(ctx, desc)
	require.NoError(t, err)

	got, err := repo.TableDescription(ctx, "table1")
	require.NoError(t, err)
	assert.Equal(t, desc, got)

	deleted, err := repo.DeleteTable(ctx, "table1")
	require.NoError(t, err)
	assert.Equal(t, desc, deleted)

	_, err = repo.TableDescription(ctx, "table1")
	require.ErrorIs(t, err, ErrNoSuchTable)
}

func TestDynamoDB_TenantIsolation(t *testing.T) {
	repo := newDynamoRepo(t)
	provider := mtcontext.ContextProvider{}
	ctx1 := provider.WithTenant(context.Background(), "ctx1")
	ctx2 := provider.WithTenant(context.Background(), "ctx2")

	_, err := repo.CreateTable(ctx1, tableDesc("table1"))
	require.NoError(t, err)

	_, err = repo.TableDescription(ctx2, "table1")
	require.ErrorIs(t, err, ErrNoSuchTable)
}

func TestDynamoDB_ListTablesScopedToTenant(t *testing.T) {
	repo := newDynamoRepo(t)
	provider := mtcontext.ContextProvider{}
	ctx1 := provider.WithTenant(context.Background(), "ctx1")
	ctx2 := provider.WithTenant(context.Background(), "ctx2")

	for _, name := range []string{"table1", "table2"} {
		_, err := repo.CreateTable(ctx1, tableDesc(name))
		require.NoError(t, err)
	}
	_, err := repo.CreateTable(ctx2, tableDesc("other"))
	require.NoError(t, err)

	descs, err := repo.ListTables(ctx1)
	require.NoError(t, err)
	require.Len(t, descs, 2)
	names := []string{descs[0].Name, descs[1].Name}
	assert.ElementsMatch(t, []string{"table1", "table2"}, names)
}

func TestDynamoDB_RequiresTenant(t *testing.T) {
	repo := newDynamoRepo(t)

	_, err := repo.TableDescription(context.Background(), "table1")
	require.ErrorIs(t, err, mtcontext.ErrNoTenant)
}
