// Package keycache caches the receiver's public key so every stream does not
// refetch it. The cache has an explicit lifecycle (fetch, cache with expiry,
// refetch on miss/expiry) and is passed into the uploader as a dependency.
package keycache

import (
	"context"
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	"github.com/indexcp/indexcp/internal/client/transport"
	"github.com/indexcp/indexcp/internal/cryptox"
)

type Cache struct {
	client transport.Client
	ttl    time.Duration

	// now is a test seam.
	now func() time.Time

	mu        sync.Mutex
	keyID     string
	publicKey *rsa.PublicKey
	fetchedAt time.Time
}

func New(client transport.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl, now: time.Now}
}

// Get returns the cached receiver key, refetching when absent or expired.
// An expired entry is not a failure: it just triggers a fetch.
func (c *Cache) Get(ctx context.Context) (string, *rsa.PublicKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.publicKey != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.keyID, c.publicKey, nil
	}

	keyID, pemData, err := c.client.PublicKey(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("fetch receiver key: %w", err)
	}

	pub, err := cryptox.DecodePublicKey(pemData)
	if err != nil {
		return "", nil, fmt.Errorf("decode receiver key: %w", err)
	}

	c.keyID = keyID
	c.publicKey = pub
	c.fetchedAt = c.now()

	return keyID, pub, nil
}

// Invalidate drops the cached key so the next Get refetches. Callers use it
// when the receiver rejects the key id, which means the keypair rotated
// inside the TTL window.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publicKey = nil
}
