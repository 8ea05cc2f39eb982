package db

// Property names every PropertySource understands.
const (
	PropStats                    = "pebble.stats"
	PropTotalSSTFilesSize        = "pebble.total-sst-files-size"
	PropSizeAllMemTables         = "pebble.size-all-mem-tables"
	PropNumMemTables             = "pebble.num-mem-tables"
	PropNumImmutableMemTables    = "pebble.num-immutable-mem-tables"
	PropNumEntriesActiveMemTable = "pebble.num-entries-active-mem-table"
	PropNumEntriesImmMemTables   = "pebble.num-entries-imm-mem-tables"
	PropDiskSpaceUsage           = "pebble.disk-space-usage"
	PropPendingCompactionBytes   = "pebble.estimate-pending-compaction-bytes"
	PropNumRunningCompactions    = "pebble.num-running-compactions"
	PropBlockCacheUsage          = "pebble.block-cache-usage"
	PropWALSize                  = "pebble.wal-size"
)
