// Package stats turns raw engine properties into the metrics reported by the
// stats endpoint.
package stats

import (
	"errors"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/eigerco/pebblekv/pkg/db"
	"github.com/eigerco/pebblekv/pkg/log"
)

// Metric names used as size_info keys.
const (
	TotalSSTFilesSize        = "total-sst-files-size"
	SizeAllMemTables         = "size-all-mem-tables"
	NumEntriesActiveMemTable = "num-entries-active-mem-table"
	NumEntriesImmMemTables   = "num-entries-imm-mem-tables"
	NumMemTables             = "num-mem-tables"
	NumImmutableMemTables    = "num-immutable-mem-tables"
	DiskSpaceUsage           = "disk-space-usage"
	PendingCompactionBytes   = "estimate-pending-compaction-bytes"
	NumRunningCompactions    = "num-running-compactions"
	BlockCacheUsage          = "block-cache-usage"
	WALSize                  = "wal-size"
)

type metric struct {
	name     string
	property string
}

var sizeInfo = []metric{
	{TotalSSTFilesSize, db.PropTotalSSTFilesSize},
	{SizeAllMemTables, db.PropSizeAllMemTables},
	{NumEntriesActiveMemTable, db.PropNumEntriesActiveMemTable},
	{NumEntriesImmMemTables, db.PropNumEntriesImmMemTables},
	{NumMemTables, db.PropNumMemTables},
	{NumImmutableMemTables, db.PropNumImmutableMemTables},
	{DiskSpaceUsage, db.PropDiskSpaceUsage},
	{PendingCompactionBytes, db.PropPendingCompactionBytes},
	{NumRunningCompactions, db.PropNumRunningCompactions},
	{BlockCacheUsage, db.PropBlockCacheUsage},
	{WALSize, db.PropWALSize},
}

// Report is the structured form of the engine statistics.
type Report struct {
	// Stats is the engine's free-form statistics dump.
	Stats string `json:"stats"`
	// SizeInfo maps metric names to their values. Metrics the engine cannot
	// provide are left out.
	SizeInfo map[string]string `json:"size_info"`
}

// Numeric returns the size info values that parse as numbers.
func (r Report) Numeric() map[string]float64 {
	out := make(map[string]float64, len(r.SizeInfo))
	for k, v := range r.SizeInfo {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out[k] = f
	}
	return out
}

// Collector reads well-known properties from a PropertySource.
type Collector struct {
	source db.PropertySource
	logger zerolog.Logger
}

func NewCollector(source db.PropertySource) *Collector {
	return &Collector{source: source, logger: log.Store}
}

// Collect gathers every known metric. A closed handle fails the whole call;
// any other property error only drops that field.
func (c *Collector) Collect() (Report, error) {
	r := Report{SizeInfo: make(map[string]string, len(sizeInfo))}

	raw, err := c.source.Property(db.PropStats)
	switch {
	case errors.Is(err, db.ErrHandleClosed):
		return Report{}, err
	case err != nil:
		c.logger.Debug().Err(err).Str("property", db.PropStats).Msg("property omitted")
	default:
		r.Stats = raw
	}

	for _, m := range sizeInfo {
		v, err := c.source.Property(m.property)
		if errors.Is(err, db.ErrHandleClosed) {
			return Report{}, err
		}
		if err != nil {
			c.logger.Debug().Err(err).Str("property", m.property).Msg("property omitted")
			continue
		}
		r.SizeInfo[m.name] = v
	}
	return r, nil
}
