package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynashard/dynashard/metadata"
	"github.com/dynashard/dynashard/mtcontext"
)

func tableDesc(name string) metadata.TableDescription {
	return metadata.TableDescription{
		Name: name,
		Key:  metadata.PrimaryKey{HashKey: "hashKeyField", HashKeyType: metadata.KeyTypeS},
	}
}

func TestMemory_CRUD(t *testing.T) {
	provider := mtcontext.ContextProvider{}
	repo := NewMemory(provider)
	ctx := provider.WithTenant(context.Background(), "ctx1")

	created, err := repo.CreateTable(ctx, tableDesc("table1"))
	require.NoError(t, err)
	assert.Equal(t, "table1", created.Name)

	_, err = repo.CreateTable(ctx, tableDesc("table1"))
	require.Error(t, err)

	got, err := repo.TableDescription(ctx, "table1")
	require.NoError(t, err)
	assert.Equal(t, created, got)

	deleted, err := repo.DeleteTable(ctx, "table1")
	require.NoError(t, err)
	assert.Equal(t, created, deleted)

	_, err = repo.TableDescription(ctx, "table1")
	require.ErrorIs(t, err, ErrNoSuchTable)

	_, err = repo.DeleteTable(ctx, "table1")
	require.ErrorIs(t, err, ErrNoSuchTable)
}

func TestMemory_TenantIsolation(t *testing.T) {
	provider := mtcontext.ContextProvider{}
	repo := NewMemory(provider)
	ctx1 := provider.WithTenant(context.Background(), "ctx1")
	ctx2 := provider.WithTenant(context.Background(), "ctx2")

	_, err := repo.CreateTable(ctx1, tableDesc("table1"))
	require.NoError(t, err)

	_, err = repo.TableDescription(ctx2, "table1")
	require.ErrorIs(t, err, ErrNoSuchTable)

	// Same name is independent per tenant.
	_, err = repo.CreateTable(ctx2, tableDesc("table1"))
	require.NoError(t, err)
}

func TestMemory_ListTables(t *testing.T) {
	provider := mtcontext.ContextProvider{}
	repo := NewMemory(provider)
	ctx := provider.WithTenant(context.Background(), "ctx1")

	for _, name := range []string{"zeta", "alpha"} {
		_, err := repo.CreateTable(ctx, tableDesc(name))
		require.NoError(t, err)
	}

	descs, err := repo.ListTables(ctx)
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, "alpha", descs[0].Name)
	assert.Equal(t, "zeta", descs[1].Name)
}

func TestMemory_RequiresTenant(t *testing.T) {
	repo := NewMemory(mtcontext.ContextProvider{})

	_, err := repo.TableDescription(context.Background(), "table1")
	require.ErrorIs(t, err, mtcontext.ErrNoTenant)
}
