package page

import "sync"

// Target receives the rendered list.
type Target interface {
	Replace(html string)
}

// Container is an in-memory render target identified by its element id.
type Container struct {
	id string

	mu       sync.RWMutex
	inner    string
	mutation int
}

// NewContainer creates an empty container.
func NewContainer(id string) *Container {
	return &Container{id: id}
}

// ID returns the element id.
func (c *Container) ID() string {
	return c.id
}

// Replace swaps the whole content in one mutation.
func (c *Container) Replace(html string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner = html
	c.mutation++
}

// InnerHTML returns the current content.
func (c *Container) InnerHTML() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.inner
}

// Mutations reports how many times the content was replaced.
func (c *Container) Mutations() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mutation
}
