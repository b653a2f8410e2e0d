package authstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoad(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "auth"))

	creds := Credentials{KeyID: "hmac-key-1", Secret: "s3cret", UserID: 7, Email: "u@example.com"}
	require.NoError(t, s.Save(creds))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, creds, *got)
}

func TestLoadWithoutLogin(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestCredentialsAreNotPlaintext(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "auth")
	s := New(dir)
	require.NoError(t, s.Save(Credentials{KeyID: "k", Secret: "very-secret-value"}))

	raw, err := os.ReadFile(filepath.Join(dir, "credentials.age"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "very-secret-value")
}

func TestIdentitySurvivesClear(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "auth")
	s := New(dir)
	require.NoError(t, s.Save(Credentials{KeyID: "k", Secret: "a"}))

	before, err := os.ReadFile(filepath.Join(dir, "identity.key"))
	require.NoError(t, err)

	require.NoError(t, s.Clear())
	_, err = s.Load()
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	require.NoError(t, s.Save(Credentials{KeyID: "k", Secret: "b"}))
	after, err := os.ReadFile(filepath.Join(dir, "identity.key"))
	require.NoError(t, err)
	assert.Equal(t, before, after, "re-login reuses the machine identity")
}
