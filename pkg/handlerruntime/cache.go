package handlerruntime

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/r3e/taskgraph/pkg/graph"
)

// Cache memoizes handler results by key (spec.md §4.3 step 6).
type Cache interface {
	Get(key string) (map[string]any, bool)
	Set(key string, value map[string]any)
}

// MemoryCache is a process-local, unbounded result cache.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]map[string]any
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{items: make(map[string]map[string]any)}
}

func (c *MemoryCache) Get(key string) (map[string]any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *MemoryCache) Set(key string, value map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

// DeriveCacheKey hashes the node's agent type and input data into a stable
// key. Execute uses it for every invocation whenever a Cache is set: a
// handler cannot supply its own key or opt out, so every successful result
// is cached under this key.
func DeriveCacheKey(node *graph.TaskNode) string {
	payload, _ := json.Marshal(node.InputData)
	sum := sha256.Sum256(append([]byte(node.AgentType+":"), payload...))
	return hex.EncodeToString(sum[:])
}
