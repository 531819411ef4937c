// interpreter.go verifies that requested script interpreters exist on the system.
// It uses exec.LookPath to search $PATH for interpreter binaries, failing fast
// before a slot is consumed rather than failing at execution time.
package runner

import (
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// InterpreterCache caches interpreter paths to avoid repeated lookups.
type InterpreterCache struct {
	mu      sync.RWMutex
	allowed []string
	cache   map[string]string
}

// NewInterpreterCache creates a cache over the given interpreter
// allow-list. Only listed interpreters can be used for execution.
func NewInterpreterCache(allowed []string) *InterpreterCache {
	return &InterpreterCache{
		allowed: allowed,
		cache:   make(map[string]string),
	}
}

// Verify checks if the specified interpreter exists and returns its absolute path.
// Returns error if the interpreter is not in the allow-list or not found in PATH.
func (c *InterpreterCache) Verify(interpreter string) (string, error) {
	if !c.isAllowed(interpreter) {
		return "", fmt.Errorf("invalid interpreter: %s (allowed: %s)",
			interpreter, strings.Join(c.allowed, ", "))
	}

	// Check cache first (read lock)
	c.mu.RLock()
	if path, ok := c.cache[interpreter]; ok {
		c.mu.RUnlock()
		return path, nil
	}
	c.mu.RUnlock()

	// Use exec.LookPath to search $PATH
	path, err := exec.LookPath(interpreter)
	if err != nil {
		return "", fmt.Errorf("interpreter '%s' not found in PATH: %w", interpreter, err)
	}

	// Cache for future use (write lock)
	c.mu.Lock()
	c.cache[interpreter] = path
	c.mu.Unlock()

	return path, nil
}

// isAllowed checks if interpreter is in the allow-list.
func (c *InterpreterCache) isAllowed(interpreter string) bool {
	for _, valid := range c.allowed {
		if interpreter == valid {
			return true
		}
	}
	return false
}
