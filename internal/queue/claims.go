package queue

import "sync"

// claimSet tracks the records currently owned by this process's workers.
type claimSet struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newClaimSet() *claimSet {
	return &claimSet{held: map[string]struct{}{}}
}

func (c *claimSet) TryAcquire(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.held[key]; ok {
		return false
	}
	c.held[key] = struct{}{}
	return true
}

func (c *claimSet) Release(key string) {
	c.mu.Lock()
	delete(c.held, key)
	c.mu.Unlock()
}

func (c *claimSet) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.held)
}
