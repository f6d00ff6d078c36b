package clients

import (
	"sync"
)

// container serializes connects of the same client id.
// Session held by container may be swapped only with lock acquired
type container struct {
	lock sync.Mutex
	ses  *Session
}

func (c *container) acquire() {
	c.lock.Lock()
}

func (c *container) release() {
	c.lock.Unlock()
}

// live returns session if it is not destroyed
func (c *container) live() *Session {
	if c.ses == nil || c.ses.State() == StateDestroyed {
		return nil
	}

	return c.ses
}
