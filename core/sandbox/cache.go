package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/dop251/goja"
	"golang.org/x/sync/singleflight"
)

// programCache memoizes compilation per compiled text, including failures.
// Concurrent first requests for the same text compile once.
type programCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	group   singleflight.Group
}

type cacheEntry struct {
	program *goja.Program
	failure *Failure
}

func newProgramCache() *programCache {
	return &programCache{entries: make(map[string]*cacheEntry)}
}

func cacheKey(compiled string) string {
	sum := sha256.Sum256([]byte(compiled))
	return hex.EncodeToString(sum[:])
}

// load returns the compiled program for the unit text, or the cached
// compile failure.
func (c *programCache) load(compiled string) (*goja.Program, string, error) {
	key := cacheKey(compiled)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		v, _, _ := c.group.Do(key, func() (any, error) {
			c.mu.RLock()
			if e, ok := c.entries[key]; ok {
				c.mu.RUnlock()
				return e, nil
			}
			c.mu.RUnlock()

			e := &cacheEntry{}
			prog, err := goja.Compile("unit.js", wrapModule(compiled), false)
			if err != nil {
				e.failure = compileFailure("%v", err)
			} else {
				e.program = prog
			}

			c.mu.Lock()
			c.entries[key] = e
			c.mu.Unlock()
			return e, nil
		})
		entry = v.(*cacheEntry)
	}

	if entry.failure != nil {
		return nil, key, entry.failure
	}
	return entry.program, key, nil
}

// reject records a compile failure found after compilation, such as a
// default export that is not callable.
func (c *programCache) reject(key string, f *Failure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{failure: f}
}

// wrapModule turns CommonJS-style compiled output into a function taking
// module and exports.
func wrapModule(compiled string) string {
	return "(function (module, exports) {\n" + compiled + "\n})"
}
