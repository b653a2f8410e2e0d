// Package authstore keeps the control-plane credentials encrypted at
// rest. A per-machine age identity is generated on first login; the
// credentials file is useless without it.
package authstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
)

const (
	identityFile    = "identity.key"
	credentialsFile = "credentials.age"
)

// ErrNotLoggedIn means no credentials have been saved yet.
var ErrNotLoggedIn = errors.New("not logged in")

// Credentials is what a login stores: the API key pair plus the
// account id the manifests are stamped with.
type Credentials struct {
	KeyID  string `json:"key_id"`
	Secret string `json:"secret"`
	UserID int    `json:"user_id"`
	Email  string `json:"email"`
}

// Store reads and writes encrypted credentials under one directory.
type Store struct {
	dir string
}

func New(dir string) *Store {
	return &Store{dir: dir}
}

// Save encrypts the credentials with the machine identity, creating
// the identity on first use.
func (s *Store) Save(c Credentials) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create auth directory: %w", err)
	}
	id, err := s.identity()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, id.Recipient())
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	path := filepath.Join(s.dir, credentialsFile)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}

// Load decrypts the stored credentials.
func (s *Store) Load() (*Credentials, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, credentialsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotLoggedIn
		}
		return nil, err
	}
	id, err := s.loadIdentity()
	if err != nil {
		return nil, err
	}

	r, err := age.Decrypt(bytes.NewReader(data), id)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var c Credentials
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return &c, nil
}

// Clear removes the stored credentials. The identity stays so a
// re-login reuses it.
func (s *Store) Clear() error {
	err := os.Remove(filepath.Join(s.dir, credentialsFile))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// identity loads the machine identity, generating and persisting a
// fresh one when none exists.
func (s *Store) identity() (*age.X25519Identity, error) {
	id, err := s.loadIdentity()
	if err == nil {
		return id, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	id, err = age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity: %w", err)
	}
	path := filepath.Join(s.dir, identityFile)
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write identity: %w", err)
	}
	return id, nil
}

func (s *Store) loadIdentity() (*age.X25519Identity, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, identityFile))
	if err != nil {
		return nil, err
	}
	id, err := age.ParseX25519Identity(string(bytes.TrimSpace(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse identity: %w", err)
	}
	return id, nil
}
