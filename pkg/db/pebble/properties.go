package pebble

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/eigerco/pebblekv/pkg/db"
)

var properties = map[string]func(m *pebble.Metrics) (string, bool){
	db.PropStats: func(m *pebble.Metrics) (string, bool) {
		return m.String(), true
	},
	db.PropTotalSSTFilesSize: func(m *pebble.Metrics) (string, bool) {
		total := m.Total()
		return fmt.Sprintf("%d", total.Size), true
	},
	db.PropSizeAllMemTables: func(m *pebble.Metrics) (string, bool) {
		return fmt.Sprintf("%d", m.MemTable.Size), true
	},
	db.PropNumMemTables: func(m *pebble.Metrics) (string, bool) {
		return fmt.Sprintf("%d", m.MemTable.Count), true
	},
	db.PropNumImmutableMemTables: func(m *pebble.Metrics) (string, bool) {
		// Count includes the mutable memtable.
		n := m.MemTable.Count - 1
		if n < 0 {
			n = 0
		}
		return fmt.Sprintf("%d", n), true
	},
	// Pebble does not track per-memtable entry counts.
	db.PropNumEntriesActiveMemTable: unavailable,
	db.PropNumEntriesImmMemTables:   unavailable,
	db.PropDiskSpaceUsage: func(m *pebble.Metrics) (string, bool) {
		return fmt.Sprintf("%d", m.DiskSpaceUsage()), true
	},
	db.PropPendingCompactionBytes: func(m *pebble.Metrics) (string, bool) {
		return fmt.Sprintf("%d", m.Compact.EstimatedDebt), true
	},
	db.PropNumRunningCompactions: func(m *pebble.Metrics) (string, bool) {
		return fmt.Sprintf("%d", m.Compact.NumInProgress), true
	},
	db.PropBlockCacheUsage: func(m *pebble.Metrics) (string, bool) {
		return fmt.Sprintf("%d", m.BlockCache.Size), true
	},
	db.PropWALSize: func(m *pebble.Metrics) (string, bool) {
		return fmt.Sprintf("%d", m.WAL.Size), true
	},
}

func unavailable(*pebble.Metrics) (string, bool) {
	return "", false
}

// Property returns the named engine property. Unknown names and properties
// the engine cannot provide fail with db.ErrEngineQuery.
func (p *KVStore) Property(name string) (string, error) {
	prop, ok := properties[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown property %q", db.ErrEngineQuery, name)
	}

	release, err := p.acquire()
	if err != nil {
		return "", err
	}
	defer release()

	value, ok := prop(p.db.Metrics())
	if !ok {
		return "", fmt.Errorf("%w: %q is not tracked by the engine", db.ErrEngineQuery, name)
	}
	return value, nil
}
