package pebble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/pebblekv/pkg/db"
)

func TestIterator(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store *KVStore)
	}{
		{
			name: "full_range_iteration",
			fn:   testFullRangeIteration,
		},
		{
			name: "bounded_range_iteration",
			fn:   testBoundedRangeIteration,
		},
		{
			name: "iterator_validity",
			fn:   testIteratorValidity,
		},
		{
			name: "snapshot_at_creation",
			fn:   testIteratorSnapshot,
		},
		{
			name: "close_is_idempotent",
			fn:   testIteratorClose,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewKVStore()
			require.NoError(t, err)
			defer store.Close() //nolint:errcheck // test cleanup

			tc.fn(t, store)
		})
	}
}

func collectKeys(t *testing.T, iter db.Iterator) []string {
	t.Helper()
	var keys []string
	for iter.Next() {
		keys = append(keys, string(iter.Key()))
	}
	require.NoError(t, iter.Error())
	return keys
}

func testFullRangeIteration(t *testing.T, store *KVStore) {
	// Prepare data
	data := map[string]string{
		"d": "value-d",
		"a": "value-a",
		"c": "value-c",
		"b": "value-b",
	}

	for k, v := range data {
		err := store.Put([]byte(k), []byte(v))
		require.NoError(t, err)
	}

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck // test cleanup

	count := 0
	for iter.Next() {
		value, err := iter.Value()
		require.NoError(t, err)

		expectedValue, exists := data[string(iter.Key())]
		assert.True(t, exists)
		assert.Equal(t, []byte(expectedValue), value)
		count++
	}
	assert.Equal(t, len(data), count)
}

func testBoundedRangeIteration(t *testing.T, store *KVStore) {
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, store.Put([]byte(k), []byte("value-"+k)))
	}

	// Test bounded range iteration (b to d)
	iter, err := store.NewIterator([]byte("b"), []byte("e"))
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck // test cleanup

	assert.Equal(t, []string{"b", "c", "d"}, collectKeys(t, iter))
}

func testIteratorValidity(t *testing.T, store *KVStore) {
	testData := map[string]string{
		"key1": "value1",
		"key2": "value2",
	}

	for k, v := range testData {
		err := store.Put([]byte(k), []byte(v))
		require.NoError(t, err)
	}

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck // test cleanup

	// Initial state - iterator is not positioned
	assert.False(t, iter.Valid())
	_, err = iter.Value()
	assert.ErrorIs(t, err, db.ErrIteratorInvalid)

	// First Next() should position at first element
	assert.True(t, iter.Next())
	assert.True(t, iter.Valid())
	assert.Equal(t, "key1", string(iter.Key()))

	val, err := iter.Value()
	require.NoError(t, err)
	assert.Equal(t, "value1", string(val))

	assert.True(t, iter.Next())
	assert.Equal(t, "key2", string(iter.Key()))

	// No more elements, and the iterator does not wrap around
	assert.False(t, iter.Next())
	assert.False(t, iter.Valid())
	assert.False(t, iter.Next())
	assert.Nil(t, iter.Key())

	// Value() should error when invalid
	_, err = iter.Value()
	assert.ErrorIs(t, err, db.ErrIteratorInvalid)
}

func testIteratorSnapshot(t *testing.T, store *KVStore) {
	require.NoError(t, store.Put([]byte("a"), []byte("1")))

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	defer iter.Close() //nolint:errcheck // test cleanup

	require.NoError(t, store.Put([]byte("b"), []byte("2")))

	assert.Equal(t, []string{"a"}, collectKeys(t, iter))
}

func testIteratorClose(t *testing.T, store *KVStore) {
	require.NoError(t, store.Put([]byte("a"), []byte("1")))

	iter, err := store.NewIterator(nil, nil)
	require.NoError(t, err)
	require.True(t, iter.Next())

	require.NoError(t, iter.Close())
	require.NoError(t, iter.Close())
	assert.False(t, iter.Valid())
	assert.False(t, iter.Next())

	// the store can close once every iterator is released
	require.NoError(t, store.Close())
}
