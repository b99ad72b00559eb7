// Package keys manages the receiver's long-lived RSA keypair: load it from
// PEM files when present, otherwise generate and persist a fresh pair.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"os"
	"path/filepath"

	"github.com/indexcp/indexcp/internal/cryptox"
	"github.com/indexcp/indexcp/internal/filex"
)

const (
	privateKeyFile = "private_key.pem"
	publicKeyFile  = "public_key.pem"

	keyBits = 2048
)

// Receiver holds the active keypair and its derived key id.
type Receiver struct {
	KeyID   string
	Private *rsa.PrivateKey
}

// PublicPEM returns the PEM encoding of the public half.
func (r *Receiver) PublicPEM() ([]byte, error) {
	return cryptox.EncodePublicKey(&r.Private.PublicKey)
}

// LoadOrGenerate returns the keypair stored under dir, generating and
// persisting a new one when none exists.
func LoadOrGenerate(dir string) (*Receiver, error) {
	if err := filex.EnsureDir(dir); err != nil {
		return nil, err
	}

	privPath := filepath.Join(dir, privateKeyFile)

	data, err := os.ReadFile(privPath)
	switch {
	case err == nil:
		priv, err := cryptox.DecodePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", privPath, err)
		}
		return newReceiver(priv)
	case os.IsNotExist(err):
		return generate(dir)
	default:
		return nil, fmt.Errorf("read %s: %w", privPath, err)
	}
}

func generate(dir string) (*Receiver, error) {
	priv, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	privPEM, err := cryptox.EncodePrivateKey(priv)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, privateKeyFile), privPEM, 0o600); err != nil {
		return nil, fmt.Errorf("save private key: %w", err)
	}

	pubPEM, err := cryptox.EncodePublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, publicKeyFile), pubPEM, 0o644); err != nil {
		return nil, fmt.Errorf("save public key: %w", err)
	}

	return newReceiver(priv)
}

func newReceiver(priv *rsa.PrivateKey) (*Receiver, error) {
	keyID, err := cryptox.Fingerprint(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	return &Receiver{KeyID: keyID, Private: priv}, nil
}
