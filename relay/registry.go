package relay

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/phantomband/crypto"
)

// Registry maps client ids to their session keys. It is shared by every
// connection handler. Each method holds the lock for that one operation only.
type Registry struct {
	mu      sync.Mutex
	clients map[string]crypto.KeyMaterial
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]crypto.KeyMaterial)}
}

// Register stores key for clientID and reports whether it replaced an
// existing entry.
func (r *Registry) Register(clientID string, key crypto.KeyMaterial) bool {
	r.mu.Lock()
	_, replaced := r.clients[clientID]
	r.clients[clientID] = key
	n := len(r.clients)
	r.mu.Unlock()

	registeredClients.Set(float64(n))
	if replaced {
		logrus.WithFields(logrus.Fields{
			"function":  "Registry.Register",
			"client_id": clientID,
		}).Warn("Client re-registered; previous session key replaced")
	}
	return replaced
}

// Lookup returns the session key registered for clientID.
func (r *Registry) Lookup(clientID string) (crypto.KeyMaterial, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, ok := r.clients[clientID]
	return key, ok
}

// Remove deletes clientID. Removing an unknown id is a no-op.
func (r *Registry) Remove(clientID string) {
	r.mu.Lock()
	delete(r.clients, clientID)
	n := len(r.clients)
	r.mu.Unlock()
	registeredClients.Set(float64(n))
}

// RemoveIf deletes clientID only while it still maps to key, so a stale
// connection cannot evict the session that replaced it.
func (r *Registry) RemoveIf(clientID string, key crypto.KeyMaterial) bool {
	r.mu.Lock()
	current, ok := r.clients[clientID]
	removed := ok && current == key
	if removed {
		delete(r.clients, clientID)
	}
	n := len(r.clients)
	r.mu.Unlock()

	registeredClients.Set(float64(n))
	return removed
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
