// Package sshkeys generates the key material the cloud backends import when
// a reservation names a key pair that does not exist yet.
package sshkeys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// KeyPair holds a generated SSH key pair in memory. PrivateKey is
// PEM-encoded, PublicKey is in OpenSSH authorized_keys format.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
}

// Generate creates a new 2048-bit RSA key pair.
func Generate() (*KeyPair, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})

	publicKey, err := ssh.NewPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	return &KeyPair{
		PrivateKey: string(privatePEM),
		PublicKey:  string(ssh.MarshalAuthorizedKey(publicKey)),
	}, nil
}

// SavePrivateKey writes the private key under dir as <name>.pem with owner-only
// permissions and returns the path.
func (kp *KeyPair) SavePrivateKey(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create key directory: %w", err)
	}
	path := filepath.Join(dir, name+".pem")
	if err := os.WriteFile(path, []byte(kp.PrivateKey), 0600); err != nil {
		return "", fmt.Errorf("failed to write private key: %w", err)
	}
	return path, nil
}
