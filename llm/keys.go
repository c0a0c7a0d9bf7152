package llm

import (
	"sync"
	"sync/atomic"
)

// KeyManager rotates Gemini API credentials. A credential that fails
// authentication is removed from rotation for the remainder of the run.
type KeyManager struct {
	keys    []string
	current uint32

	mu      sync.RWMutex
	invalid map[string]bool
}

// NewKeyManager wraps the configured credentials.
func NewKeyManager(keys []string) *KeyManager {
	return &KeyManager{
		keys:    keys,
		invalid: make(map[string]bool),
	}
}

// Next returns the next valid key in rotation, or "" when none remain.
func (km *KeyManager) Next() string {
	km.mu.RLock()
	defer km.mu.RUnlock()

	for range km.keys {
		current := atomic.AddUint32(&km.current, 1)
		key := km.keys[(current-1)%uint32(len(km.keys))]
		if !km.invalid[key] {
			return key
		}
	}
	return ""
}

// MarkInvalid removes a credential from rotation after an auth failure.
func (km *KeyManager) MarkInvalid(key string) {
	km.mu.Lock()
	km.invalid[key] = true
	km.mu.Unlock()
}

// ActiveCount reports how many credentials remain usable.
func (km *KeyManager) ActiveCount() int {
	km.mu.RLock()
	defer km.mu.RUnlock()

	n := 0
	for _, k := range km.keys {
		if !km.invalid[k] {
			n++
		}
	}
	return n
}
