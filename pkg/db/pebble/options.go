package pebble

import (
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/rs/zerolog"

	"github.com/eigerco/pebblekv/internal/config"
)

// numLevels is the depth of Pebble's LSM; the last level is the bottommost.
const numLevels = 7

func newPebbleOptions(cfg config.Engine, fs vfs.FS, logger zerolog.Logger) (*pebble.Options, *pebble.Cache) {
	var cache *pebble.Cache
	if cfg.BlockCacheSize > 0 {
		cache = pebble.NewCache(cfg.BlockCacheSize)
	}

	jobs := cfg.MaxBackgroundJobs
	opts := &pebble.Options{
		FS:                          fs,
		Cache:                       cache,
		MemTableSize:                cfg.WriteBufferSize,
		MemTableStopWritesThreshold: cfg.MaxWriteBufferNumber,
		MaxConcurrentCompactions:    func() int { return jobs },
		ErrorIfNotExists:            !cfg.CreateIfMissing,
		Logger:                      engineLogger{logger: logger},
		EventListener:               newEventListener(logger),
		Levels:                      make([]pebble.LevelOptions, numLevels),
	}

	upper := compression(cfg.Compression)
	bottom := compression(cfg.BottommostCompression)
	for i := range opts.Levels {
		l := &opts.Levels[i]
		l.Compression = upper
		if i == numLevels-1 {
			l.Compression = bottom
		}
		if cfg.BloomFilterBits > 0 {
			l.FilterPolicy = bloom.FilterPolicy(cfg.BloomFilterBits)
			l.FilterType = pebble.TableFilter
		}
		l.EnsureDefaults()
	}

	// Pebble always loads index and filter blocks through the block cache,
	// so there is nothing to switch on; turning the flags off has no effect.
	if !cfg.CacheIndexAndFilterBlocks || !cfg.PinL0FilterAndIndexBlocksInCache {
		logger.Warn().
			Bool("cache_index_and_filter_blocks", cfg.CacheIndexAndFilterBlocks).
			Bool("pin_l0_filter_and_index_blocks_in_cache", cfg.PinL0FilterAndIndexBlocksInCache).
			Msg("index and filter blocks are always cached, option ignored")
	}

	return opts.EnsureDefaults(), cache
}

func compression(name string) pebble.Compression {
	switch name {
	case config.CompressionNone:
		return pebble.NoCompression
	case config.CompressionZstd:
		return pebble.ZstdCompression
	case config.CompressionSnappy:
		return pebble.SnappyCompression
	default:
		return pebble.DefaultCompression
	}
}
