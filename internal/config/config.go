package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultDataDir         = "pebblekv-data"
	DefaultHTTPAddr        = ":8080"
	DefaultShutdownTimeout = 10 * time.Second

	// Pebble refuses memtables of 4 GiB or more.
	maxWriteBufferSize = 4 << 30
)

// Compression names accepted by the engine section.
const (
	CompressionNone   = "none"
	CompressionSnappy = "snappy"
	CompressionZstd   = "zstd"
	CompressionLZ4    = "lz4"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete process configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`
	Engine  Engine `yaml:"engine"`
	Server  Server `yaml:"server"`
	Log     Log    `yaml:"log"`
}

// Engine holds the storage tuning options. It is fixed once the engine is
// opened.
type Engine struct {
	// Dir is the data directory; filled from Config.DataDir.
	Dir string `yaml:"-"`

	CreateIfMissing                  bool   `yaml:"create_if_missing"`
	WriteBufferSize                  uint64 `yaml:"write_buffer_size"`
	MaxWriteBufferNumber             int    `yaml:"max_write_buffer_number"`
	MaxBackgroundJobs                int    `yaml:"max_background_jobs"`
	Compression                      string `yaml:"compression"`
	BottommostCompression            string `yaml:"bottommost_compression"`
	BloomFilterBits                  int    `yaml:"bloom_filter_bits"`
	UseBlockBasedBloom               bool   `yaml:"use_block_based_bloom"`
	BlockCacheSize                   int64  `yaml:"block_cache_size"`
	CacheIndexAndFilterBlocks        bool   `yaml:"cache_index_and_filter_blocks"`
	PinL0FilterAndIndexBlocksInCache bool   `yaml:"pin_l0_filter_and_index_blocks_in_cache"`
	SyncWrites                       bool   `yaml:"sync_writes"`
}

type Server struct {
	HTTPAddr        string        `yaml:"http_addr"`
	QUICAddr        string        `yaml:"quic_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Log struct {
	Level string `yaml:"level"`
	Type  string `yaml:"type"`
}

// DefaultEngine returns the tuning used when no file overrides it:
// 64 MiB write buffers, three of them, ten background jobs, snappy on the
// upper levels, zstd at the bottom, 10-bit bloom filters and a 256 MiB
// block cache.
func DefaultEngine() Engine {
	return Engine{
		CreateIfMissing:                  true,
		WriteBufferSize:                  64 << 20,
		MaxWriteBufferNumber:             3,
		MaxBackgroundJobs:                10,
		Compression:                      CompressionSnappy,
		BottommostCompression:            CompressionZstd,
		BloomFilterBits:                  10,
		UseBlockBasedBloom:               false,
		BlockCacheSize:                   256 << 20,
		CacheIndexAndFilterBlocks:        true,
		PinL0FilterAndIndexBlocksInCache: true,
		SyncWrites:                       true,
	}
}

// Default returns a configuration with every field set.
func Default() Config {
	c := Config{
		DataDir: DefaultDataDir,
		Engine:  DefaultEngine(),
		Server: Server{
			HTTPAddr:        DefaultHTTPAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Log: Log{Level: "info", Type: "console"},
	}
	c.Engine.Dir = c.DataDir
	return c
}

// Load reads a YAML file on top of the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	c.Engine.Dir = c.DataDir
	return c, nil
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is required", ErrInvalidConfig)
	}
	if c.Server.HTTPAddr == "" && c.Server.QUICAddr == "" {
		return fmt.Errorf("%w: at least one of server.http_addr and server.quic_addr is required", ErrInvalidConfig)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: server.shutdown_timeout must not be negative", ErrInvalidConfig)
	}
	return c.Engine.Validate()
}

// Validate checks the engine options.
func (e Engine) Validate() error {
	if e.WriteBufferSize == 0 || e.WriteBufferSize >= maxWriteBufferSize {
		return fmt.Errorf("%w: write_buffer_size must be in (0, 4GiB), got %d", ErrInvalidConfig, e.WriteBufferSize)
	}
	if e.MaxWriteBufferNumber < 1 {
		return fmt.Errorf("%w: max_write_buffer_number must be at least 1", ErrInvalidConfig)
	}
	if e.MaxBackgroundJobs < 1 {
		return fmt.Errorf("%w: max_background_jobs must be at least 1", ErrInvalidConfig)
	}
	if e.BloomFilterBits < 0 {
		return fmt.Errorf("%w: bloom_filter_bits must not be negative", ErrInvalidConfig)
	}
	if e.UseBlockBasedBloom {
		return fmt.Errorf("%w: block-based bloom filters are not supported, use full table filters", ErrInvalidConfig)
	}
	if e.BlockCacheSize < 0 {
		return fmt.Errorf("%w: block_cache_size must not be negative", ErrInvalidConfig)
	}
	if err := validateCompression("compression", e.Compression); err != nil {
		return err
	}
	return validateCompression("bottommost_compression", e.BottommostCompression)
}

func validateCompression(field, name string) error {
	switch name {
	case CompressionNone, CompressionSnappy, CompressionZstd:
		return nil
	case CompressionLZ4:
		return fmt.Errorf("%w: %s: lz4 is not available in this engine, use snappy or zstd", ErrInvalidConfig, field)
	default:
		return fmt.Errorf("%w: %s: unknown compression %q", ErrInvalidConfig, field, name)
	}
}
