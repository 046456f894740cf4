package bigcache

import (
	"context"
	"time"

	bc "github.com/allegro/bigcache/v3"
)

// Store adapts allegro/bigcache as a sweepcache byte store. BigCache bounds
// memory with shard ring buffers, so entries may be dropped under pressure;
// to the cache that is just another miss.
type Store struct {
	c *bc.BigCache
}

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Store, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Store{c: c}, nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := s.c.Get(key)
	if err == bc.ErrEntryNotFound {
		return nil, false, nil
	}
	return b, err == nil, err
}

func (s *Store) Set(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	// BigCache does not support per-entry TTL; uses global LifeWindow.
	// The cache's envelope deadline still applies on read.
	return true, s.c.Set(key, value)
}

func (s *Store) Del(_ context.Context, key string) error {
	err := s.c.Delete(key)
	if err == bc.ErrEntryNotFound {
		return nil
	}
	return err
}

func (s *Store) Len() int { return s.c.Len() }

func (s *Store) Close(_ context.Context) error {
	return s.c.Close()
}
