// Package station holds the operator's home grid locator.
package station

import (
	"strings"
	"sync"
)

// Context is the process-wide station state read when new contacts are built.
type Context struct {
	mu   sync.RWMutex
	grid string
}

// New returns a Context initialised with grid.
func New(grid string) *Context {
	return &Context{grid: clean(grid)}
}

// Grid returns the current locator.
func (c *Context) Grid() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.grid
}

// Set replaces the locator. Contacts already built are not affected.
func (c *Context) Set(grid string) {
	c.mu.Lock()
	c.grid = clean(grid)
	c.mu.Unlock()
}

func clean(grid string) string {
	return strings.ToUpper(strings.TrimSpace(grid))
}
