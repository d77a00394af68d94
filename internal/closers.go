package internal

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

type closer struct {
	name  string
	close func() error
}

// Closers releases resources in registration order. Register each resource as soon
// as it is opened so a failed startup still releases it.
type Closers struct {
	mu   sync.Mutex
	list []closer
}

// Add registers fn under name.
func (c *Closers) Add(name string, fn func() error) *Closers {
	c.mu.Lock()
	c.list = append(c.list, closer{name: name, close: fn})
	c.mu.Unlock()
	return c
}

// Close runs every registered closer once and reports every failure.
// Later calls are no-ops until something new is added.
func (c *Closers) Close() error {
	c.mu.Lock()
	list := c.list
	c.list = nil
	c.mu.Unlock()

	var errs error
	for _, cl := range list {
		if err := cl.close(); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "close %s", cl.name))
		}
	}
	return errs
}
