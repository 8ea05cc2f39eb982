package stats

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/pebblekv/pkg/db"
	"github.com/eigerco/pebblekv/pkg/db/pebble"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) Property(name string) (string, error) {
	args := m.Called(name)
	return args.String(0), args.Error(1)
}

func TestCollectDegradesPerField(t *testing.T) {
	src := &mockSource{}
	src.On("Property", db.PropStats).Return("raw dump", nil)
	src.On("Property", db.PropTotalSSTFilesSize).Return("1024", nil)
	src.On("Property", db.PropSizeAllMemTables).Return("", errors.New("i/o"))
	src.On("Property", mock.Anything).Return("", fmt.Errorf("%w: nope", db.ErrEngineQuery))

	r, err := NewCollector(src).Collect()
	require.NoError(t, err)

	assert.Equal(t, "raw dump", r.Stats)
	assert.Equal(t, map[string]string{TotalSSTFilesSize: "1024"}, r.SizeInfo)
	assert.Equal(t, map[string]float64{TotalSSTFilesSize: 1024}, r.Numeric())
}

func TestCollectClosedHandle(t *testing.T) {
	src := &mockSource{}
	src.On("Property", mock.Anything).Return("", db.ErrHandleClosed)

	_, err := NewCollector(src).Collect()
	assert.ErrorIs(t, err, db.ErrHandleClosed)
	src.AssertNumberOfCalls(t, "Property", 1)
}

func TestCollectFromEngine(t *testing.T) {
	store, err := pebble.NewKVStore()
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck // test cleanup

	require.NoError(t, store.Put([]byte("a"), []byte("1")))

	r, err := NewCollector(store).Collect()
	require.NoError(t, err)

	assert.NotEmpty(t, r.Stats)
	for _, name := range []string{TotalSSTFilesSize, SizeAllMemTables, NumMemTables, DiskSpaceUsage} {
		assert.Contains(t, r.SizeInfo, name)
	}
	// entry counts are not tracked by the engine and are omitted
	assert.NotContains(t, r.SizeInfo, NumEntriesActiveMemTable)
	assert.NotContains(t, r.SizeInfo, NumEntriesImmMemTables)

	require.NoError(t, store.Close())
	_, err = NewCollector(store).Collect()
	assert.ErrorIs(t, err, db.ErrHandleClosed)
}
