package infra

import (
	"context"
	"sync"
)

// MemoryImageCache é o cache de snapshots do processo. Só cresce; Clear
// esvazia tudo.
type MemoryImageCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func NewMemoryImageCache() *MemoryImageCache {
	return &MemoryImageCache{entries: make(map[string][]byte)}
}

func (c *MemoryImageCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	img, ok := c.entries[key]
	return img, ok, nil
}

func (c *MemoryImageCache) Set(_ context.Context, key string, img []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = img
	return nil
}

func (c *MemoryImageCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]byte)
	return nil
}

func (c *MemoryImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
