package internal

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/tuannm99/pagestore/internal/bufferpool"
)

// Config is the YAML-driven configuration for a pagestore process: which
// page file to open, how big its buffer pool is and which replacement
// policy it runs, and whether to run in debug logging mode.
type Config struct {
	PageFile struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"pagefile"`

	BufferPool struct {
		NumFrames int    `mapstructure:"num_frames"`
		Policy    string `mapstructure:"policy"`
		LRUK      int    `mapstructure:"lru_k"`
	} `mapstructure:"bufferpool"`

	Server struct {
		Debug bool `mapstructure:"debug"`
	} `mapstructure:"server"`
}

// LoadConfig reads a YAML config file at path into a Config.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// ResolvePolicy translates the textual BufferPool.Policy field into the
// bufferpool package's Policy enum and, for LRU-K, its strategy data.
func (c Config) ResolvePolicy() (bufferpool.Policy, *bufferpool.StrategyData, error) {
	switch strings.ToUpper(c.BufferPool.Policy) {
	case "FIFO":
		return bufferpool.FIFO, nil, nil
	case "LRU":
		return bufferpool.LRU, nil, nil
	case "CLOCK":
		return bufferpool.CLOCK, nil, nil
	case "LFU":
		return bufferpool.LFU, nil, nil
	case "LRU-K", "LRUK":
		k := c.BufferPool.LRUK
		if k <= 0 {
			k = bufferpool.DefaultLRUK
		}
		return bufferpool.LRUK, &bufferpool.StrategyData{K: k}, nil
	default:
		return 0, nil, fmt.Errorf("config: unknown replacement policy %q", c.BufferPool.Policy)
	}
}
