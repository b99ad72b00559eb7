// Package cryptox implements the envelope-encryption scheme protecting chunk
// payloads: a fresh 256-bit session key per stream, wrapped with the
// receiver's RSA public key, and AES-GCM over each chunk with a nonce derived
// deterministically from the chunk index.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/indexcp/indexcp/internal/common"
	"golang.org/x/crypto/hkdf"
)

const (
	// SessionKeySize is the AES-256 session key length.
	SessionKeySize = 32

	gcmNonceSize = 12
	noncePrefix  = 4
)

// GenerateSessionKey returns a fresh random symmetric key for one stream.
// The caller holds it in volatile memory only; it is never persisted.
func GenerateSessionKey() ([]byte, error) {
	key := make([]byte, SessionKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("session key: %w", err)
	}
	return key, nil
}

// WrapSessionKey encrypts the session key with the receiver's public key
// using RSA-OAEP (SHA-256). Only the wrapped form ever leaves the sender.
func WrapSessionKey(pub *rsa.PublicKey, key []byte) ([]byte, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap session key: %w", err)
	}
	return wrapped, nil
}

// UnwrapSessionKey recovers the session key with the receiver's private key.
// Malformed or mismatched key material yields common.ErrKeyUnwrap.
func UnwrapSessionKey(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrKeyUnwrap, err)
	}
	if len(key) != SessionKeySize {
		return nil, fmt.Errorf("%w: unexpected key length %d", common.ErrKeyUnwrap, len(key))
	}
	return key, nil
}

// ChunkNonce derives the 12-byte GCM nonce for a chunk: a 4-byte prefix
// drawn from HKDF over the session key and file key, followed by the chunk
// index as a big-endian counter. The derivation is deterministic, so a
// retransmitted chunk produces an identical nonce/ciphertext pair, and a
// session key is never shared across files, so the counter cannot repeat
// under one key.
func ChunkNonce(key []byte, fileKey string, index uint64) ([]byte, error) {
	r := hkdf.New(sha256.New, key, nil, []byte("indexcp nonce "+fileKey))

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(r, nonce[:noncePrefix]); err != nil {
		return nil, fmt.Errorf("nonce derivation: %w", err)
	}
	binary.BigEndian.PutUint64(nonce[noncePrefix:], index)
	return nonce, nil
}

// AssociatedData binds a packet to its session, file and position. A packet
// replayed into another session or under another index fails authentication.
func AssociatedData(sessionID, fileKey string, index uint64) []byte {
	return fmt.Appendf(nil, "%s|%s|%d", sessionID, fileKey, index)
}

// EncryptChunk seals one chunk payload under the session key. The GCM tag is
// appended to the returned ciphertext. Identical inputs yield byte-identical
// (nonce, ciphertext), which makes retries idempotent on the wire.
func EncryptChunk(key []byte, fileKey string, index uint64, payload, aad []byte) (nonce, ciphertext []byte, err error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce, err = ChunkNonce(key, fileKey, index)
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aead.Seal(nil, nonce, payload, aad)
	return nonce, ciphertext, nil
}

// DecryptChunk opens one chunk. A tag or associated-data mismatch yields
// common.ErrAuthenticationFailed; that packet must be rejected, never retried.
func DecryptChunk(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length %d", common.ErrAuthenticationFailed, len(nonce))
	}

	payload, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrAuthenticationFailed, err)
	}
	return payload, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm init: %w", err)
	}
	return aead, nil
}
