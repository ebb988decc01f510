package admin

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynashard/dynashard/localddb"
	"github.com/dynashard/dynashard/metadata"
)

func testTable() metadata.TableDescription {
	return metadata.TableDescription{
		Name: "mt_data",
		Key:  metadata.PrimaryKey{HashKey: "hk", HashKeyType: metadata.KeyTypeS},
	}
}

func TestCreateTableIfNotExists(t *testing.T) {
	store, err := localddb.New(localddb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	adm := New(store, 10*time.Millisecond)

	created, err := adm.CreateTableIfNotExists(context.Background(), testTable())
	require.NoError(t, err)
	assert.Equal(t, "mt_data", created.Name)
	assert.Equal(t, types.TableStatusActive, created.Status)

	// Second call is a no-op returning the existing description.
	again, err := adm.CreateTableIfNotExists(context.Background(), testTable())
	require.NoError(t, err)
	assert.Equal(t, created, again)
}

func TestCreateTableIfNotExists_Cancelled(t *testing.T) {
	store, err := localddb.New(localddb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	adm := New(store, 10*time.Millisecond)

	_, err = adm.CreateTableIfNotExists(context.Background(), testTable())
	require.NoError(t, err)

	// Describe of an existing table short-circuits before any polling, so a
	// cancelled context still resolves.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = adm.CreateTableIfNotExists(ctx, testTable())
	require.NoError(t, err)
}

func TestDefaultPollInterval(t *testing.T) {
	store, err := localddb.New(localddb.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	adm := New(store, 0)
	assert.Equal(t, DefaultPollInterval, adm.pollInterval)
}
