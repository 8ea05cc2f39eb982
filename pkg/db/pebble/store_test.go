package pebble

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/pebblekv/internal/config"
	"github.com/eigerco/pebblekv/pkg/db"
)

func TestKVStore(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store *KVStore)
	}{
		{
			name: "basic_put_get",
			fn:   testBasicPutGet,
		},
		{
			name: "overwrite",
			fn:   testOverwrite,
		},
		{
			name: "delete_operations",
			fn:   testDelete,
		},
		{
			name: "store_closure",
			fn:   testStoreClosure,
		},
		{
			name: "compact",
			fn:   testCompact,
		},
		{
			name: "concurrent_writers",
			fn:   testConcurrentWriters,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewKVStore()
			require.NoError(t, err)
			defer store.Close() //nolint:errcheck // double close is a no-op

			tc.fn(t, store)
		})
	}
}

func testBasicPutGet(t *testing.T, store *KVStore) {
	key := []byte("test-key")
	value := []byte("test-value")

	err := store.Put(key, value)
	require.NoError(t, err)

	retrieved, err := store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, value, retrieved)

	// Test non-existent key
	_, err = store.Get([]byte("non-existent"))
	assert.ErrorIs(t, err, db.ErrNotFound)
}

func testOverwrite(t *testing.T, store *KVStore) {
	key := []byte("k")
	require.NoError(t, store.Put(key, []byte("1")))
	require.NoError(t, store.Put(key, []byte("2")))

	v, err := store.Get(key)
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func testDelete(t *testing.T, store *KVStore) {
	key := []byte("delete-test")
	value := []byte("to-be-deleted")

	err := store.Put(key, value)
	require.NoError(t, err)

	err = store.Delete(key)
	require.NoError(t, err)

	_, err = store.Get(key)
	assert.ErrorIs(t, err, db.ErrNotFound)

	// Delete non-existent key should not error
	err = store.Delete([]byte("non-existent"))
	assert.NoError(t, err)
}

func testStoreClosure(t *testing.T, store *KVStore) {
	err := store.Close()
	require.NoError(t, err)

	// Test operations after close
	_, err = store.Get([]byte("key"))
	assert.ErrorIs(t, err, db.ErrHandleClosed)

	err = store.Put([]byte("key"), []byte("value"))
	assert.ErrorIs(t, err, db.ErrHandleClosed)

	err = store.Delete([]byte("key"))
	assert.ErrorIs(t, err, db.ErrHandleClosed)

	_, err = store.NewBatch()
	assert.ErrorIs(t, err, db.ErrHandleClosed)

	_, err = store.NewIterator(nil, nil)
	assert.ErrorIs(t, err, db.ErrHandleClosed)

	_, err = store.Property(db.PropStats)
	assert.ErrorIs(t, err, db.ErrHandleClosed)

	err = store.Compact(nil, nil)
	assert.ErrorIs(t, err, db.ErrHandleClosed)

	// Double close should not error
	err = store.Close()
	assert.NoError(t, err)
}

func testCompact(t *testing.T, store *KVStore) {
	// empty store
	require.NoError(t, store.Compact(nil, nil))

	for i := 0; i < 500; i++ {
		require.NoError(t, store.Put([]byte("k"+strconv.Itoa(i)), []byte("v")))
	}
	for i := 0; i < 250; i++ {
		require.NoError(t, store.Delete([]byte("k"+strconv.Itoa(i))))
	}
	require.NoError(t, store.Compact(nil, nil))

	_, err := store.Get([]byte("k1"))
	assert.ErrorIs(t, err, db.ErrNotFound)
	v, err := store.Get([]byte("k499"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	// single key range
	require.NoError(t, store.Compact([]byte("k300"), []byte("k300")))
}

func testConcurrentWriters(t *testing.T, store *KVStore) {
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				key := []byte(strconv.Itoa(w) + ":" + strconv.Itoa(i))
				assert.NoError(t, store.Put(key, key))
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < 8; w++ {
		key := []byte(strconv.Itoa(w) + ":49")
		v, err := store.Get(key)
		require.NoError(t, err)
		assert.Equal(t, key, v)
	}
}

func TestCloseNilAndZero(t *testing.T) {
	var nilStore *KVStore
	assert.NoError(t, nilStore.Close())

	var zero KVStore
	assert.NoError(t, zero.Close())
	_, err := zero.Get([]byte("a"))
	assert.ErrorIs(t, err, db.ErrHandleClosed)
}

func TestCloseWaitsForIterators(t *testing.T) {
	store, err := NewKVStore()
	require.NoError(t, err)
	require.NoError(t, store.Put([]byte("a"), []byte("1")))

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)

	closed := make(chan error, 1)
	go func() { closed <- store.Close() }()

	// new work is refused as soon as close has started
	require.Eventually(t, func() bool {
		_, err := store.Get([]byte("a"))
		return err != nil
	}, waitFor, tick)

	select {
	case <-closed:
		t.Fatal("close returned while an iterator was open")
	default:
	}

	assert.True(t, iter.Next())
	assert.Equal(t, []byte("a"), iter.Key())
	require.NoError(t, iter.Close())
	require.NoError(t, <-closed)
}

func TestOpenOnDisk(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	cfg := config.DefaultEngine()
	cfg.Dir = dir
	cfg.BlockCacheSize = 1 << 20

	store, err := Open(cfg)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())
	require.NoError(t, store.Put([]byte("persisted"), []byte("yes")))
	writeCompressedTables(t, store)
	require.NoError(t, store.Close())

	_, err = os.Stat(dir)
	require.NoError(t, err)

	// reopen without creation: the data survives
	cfg.CreateIfMissing = false
	store, err = Open(cfg)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck // test cleanup

	v, err := store.Get([]byte("persisted"))
	require.NoError(t, err)
	assert.Equal(t, []byte("yes"), v)

	// a fresh block cache forces the compacted tables to be read from disk
	require.NoError(t, store.Delete([]byte("persisted")))
	requireCompressedEntries(t, store)
}

func TestOpenErrors(t *testing.T) {
	t.Run("missing_without_create", func(t *testing.T) {
		cfg := config.DefaultEngine()
		cfg.Dir = filepath.Join(t.TempDir(), "absent")
		cfg.CreateIfMissing = false
		_, err := Open(cfg)
		assert.ErrorIs(t, err, db.ErrEngineOpen)
	})
	t.Run("invalid_config", func(t *testing.T) {
		cfg := config.DefaultEngine()
		cfg.Dir = t.TempDir()
		cfg.Compression = config.CompressionLZ4
		_, err := Open(cfg)
		assert.ErrorIs(t, err, db.ErrEngineOpen)
	})
	t.Run("path_is_a_file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		cfg := config.DefaultEngine()
		cfg.Dir = file
		_, err := Open(cfg)
		assert.ErrorIs(t, err, db.ErrEngineOpen)
	})
}
