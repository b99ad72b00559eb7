// Package session tracks the receiver side of active transfer streams: the
// binding of a session id to its unwrapped symmetric key. Sessions are
// volatile; after a restart the next packet's wrapped-key header re-creates
// the entry, so nothing here is persisted.
package session

import (
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	"github.com/indexcp/indexcp/internal/cryptox"
)

type entry struct {
	key       []byte
	createdAt time.Time
	lastSeen  time.Time
}

// Registry owns the session table for one receiver keypair.
type Registry struct {
	keyID string
	priv  *rsa.PrivateKey

	// now is a test seam.
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewRegistry(keyID string, priv *rsa.PrivateKey) *Registry {
	return &Registry{
		keyID:    keyID,
		priv:     priv,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Ensure returns the session key for sessionID, unwrapping it on the first
// packet of the stream. The keyID must match the active receiver key so a
// stale cached public key fails loudly instead of producing garbage.
func (r *Registry) Ensure(sessionID, keyID string, wrapped []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[sessionID]; ok {
		e.lastSeen = r.now()
		return e.key, nil
	}

	if keyID != r.keyID {
		return nil, fmt.Errorf("unknown key id %q (active %q)", keyID, r.keyID)
	}

	key, err := cryptox.UnwrapSessionKey(r.priv, wrapped)
	if err != nil {
		return nil, err
	}

	now := r.now()
	r.sessions[sessionID] = &entry{key: key, createdAt: now, lastSeen: now}
	return key, nil
}

// Drop tears a session down. Dropping an unknown session is a no-op.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

// PurgeIdle removes sessions not seen within maxIdle and reports how many
// were removed. Run periodically from app wiring.
func (r *Registry) PurgeIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	purged := 0
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			purged++
		}
	}
	return purged
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
