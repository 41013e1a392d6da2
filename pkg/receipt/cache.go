package receipt

import "sync"

// Cache memoizes decoded receipts keyed by their raw encoding. Signature
// recovery is the expensive part of decoding and the engine re-reads the same
// receipts on every balance reconciliation pass.
type Cache struct {
	mu      sync.RWMutex
	decoded map[string]*Receipt
}

func NewCache() *Cache {
	return &Cache{decoded: make(map[string]*Receipt)}
}

// Get returns the decoded receipt for raw, decoding it on first sight.
func (c *Cache) Get(raw string) (*Receipt, error) {
	c.mu.RLock()
	rcpt, ok := c.decoded[raw]
	c.mu.RUnlock()
	if ok {
		return rcpt, nil
	}

	rcpt, err := Decode(raw)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.decoded[raw] = rcpt
	c.mu.Unlock()
	return rcpt, nil
}
