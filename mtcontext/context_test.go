package mtcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextProvider(t *testing.T) {
	provider := ContextProvider{}

	t.Run("unset", func(t *testing.T) {
		_, err := provider.Tenant(context.Background())
		require.ErrorIs(t, err, ErrNoTenant)
	})

	t.Run("set and get", func(t *testing.T) {
		ctx := provider.WithTenant(context.Background(), "ctx1")
		tenant, err := provider.Tenant(ctx)
		require.NoError(t, err)
		assert.Equal(t, "ctx1", tenant)
	})

	t.Run("scoped override unwinds", func(t *testing.T) {
		outer := provider.WithTenant(context.Background(), "ctx1")
		inner := provider.WithTenant(outer, "ctx2")

		tenant, err := provider.Tenant(inner)
		require.NoError(t, err)
		assert.Equal(t, "ctx2", tenant)

		tenant, err = provider.Tenant(outer)
		require.NoError(t, err)
		assert.Equal(t, "ctx1", tenant)
	})
}

func TestStatic(t *testing.T) {
	tenant, err := Static{ID: "fixed"}.Tenant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fixed", tenant)

	_, err = Static{}.Tenant(context.Background())
	require.ErrorIs(t, err, ErrNoTenant)
}
