// Package config reads the YAML configuration shared by the lmfs commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mit-pdos/go-lmfs/bcache"
	"github.com/mit-pdos/go-lmfs/common"
	"github.com/mit-pdos/go-lmfs/util/logger"
)

var ErrInvalid = errors.New("config: invalid")

type CacheConfig struct {
	BlockSize  uint64 `yaml:"block_size"`
	Buffers    uint64 `yaml:"buffers"`
	VMMayCache bool   `yaml:"vm_may_cache"`
}

type DeviceConfig struct {
	// image file; empty for an in-memory disk
	Image  string `yaml:"image"`
	SizeMB uint64 `yaml:"size_mb"`
	Create bool   `yaml:"create"`
	// raw file accessed with vectored I/O instead of a labeled image
	Raw bool `yaml:"raw"`
	// address of an lmfs-blkd server; replaces the local device
	Remote string `yaml:"remote"`
}

type ServerConfig struct {
	Listen        string `yaml:"listen"`
	MetricsListen string `yaml:"metrics_listen"`
}

type SyncConfig struct {
	// 0 disables the sync daemon
	Interval time.Duration `yaml:"interval"`
}

type Config struct {
	Cache  CacheConfig   `yaml:"cache"`
	Device DeviceConfig  `yaml:"device"`
	Server ServerConfig  `yaml:"server"`
	Sync   SyncConfig    `yaml:"sync"`
	Log    logger.Config `yaml:"log"`
}

func Default() *Config {
	return &Config{
		Cache: CacheConfig{
			BlockSize: 4096,
			Buffers:   1024,
		},
		Device: DeviceConfig{
			SizeMB: 64,
		},
		Server: ServerConfig{
			Listen: "127.0.0.1:7117",
		},
		Sync: SyncConfig{
			Interval: 5 * time.Second,
		},
		Log: logger.Config{
			Level:      "info",
			Format:     "console",
			OutputFile: "stderr",
		},
	}
}

// Load reads path over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

func (c *Config) Validate() error {
	if !common.ValidBlockSize(c.Cache.BlockSize) {
		return fmt.Errorf("%w: block size %d", ErrInvalid, c.Cache.BlockSize)
	}
	if c.Cache.Buffers == 0 {
		return fmt.Errorf("%w: no buffers", ErrInvalid)
	}
	if c.Device.Remote != "" && c.Device.Image != "" {
		return fmt.Errorf("%w: both remote and image device", ErrInvalid)
	}
	if c.Device.Remote == "" && c.Device.SizeMB == 0 {
		return fmt.Errorf("%w: zero-sized device", ErrInvalid)
	}
	if c.Device.Raw && c.Device.Image == "" {
		return fmt.Errorf("%w: raw device needs an image file", ErrInvalid)
	}
	if c.Sync.Interval < 0 {
		return fmt.Errorf("%w: sync interval %v", ErrInvalid, c.Sync.Interval)
	}
	return nil
}

// Bcache is the pool configuration.
func (c *Config) Bcache() bcache.Config {
	return bcache.Config{
		BlockSize:  c.Cache.BlockSize,
		Buffers:    c.Cache.Buffers,
		VMMayCache: c.Cache.VMMayCache,
	}
}

// DeviceBytes is the configured device size.
func (c *Config) DeviceBytes() uint64 {
	return c.Device.SizeMB * 1024 * 1024
}

func (c *Config) String() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err.Error()
	}
	return string(data)
}
