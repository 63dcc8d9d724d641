package store

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Store wraps the upload directory and the at-rest crypto. DB access goes
// through gorm directly; this only owns what gorm can't: files and sealing.
type Store struct {
	dir    string
	crypto *dataCrypto
}

type Options struct {
	UploadDir string
	DataKey   string
}

func New(opts Options) (*Store, error) {
	dir := opts.UploadDir
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	crypto, err := newDataCrypto(opts.DataKey)
	if err != nil {
		return nil, err
	}
	return &Store{dir: dir, crypto: crypto}, nil
}

// SaveBlob seals and writes a selfie, returning the relative path. Files
// are named by uuid so nothing about the person leaks into the filesystem.
func (s *Store) SaveBlob(plain []byte) (string, error) {
	sealed, err := s.crypto.EncryptBlob(plain)
	if err != nil {
		return "", err
	}
	name := uuid.NewString() + ".bin"
	if err := os.WriteFile(filepath.Join(s.dir, name), sealed, 0o640); err != nil {
		return "", err
	}
	return name, nil
}

// LoadBlob reads and opens a sealed selfie.
func (s *Store) LoadBlob(name string) ([]byte, error) {
	// name comes from our own DB rows, but keep path traversal out anyway
	sealed, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(name)))
	if err != nil {
		return nil, err
	}
	return s.crypto.DecryptBlob(sealed)
}

// DeleteBlob removes a stored selfie.
func (s *Store) DeleteBlob(name string) error {
	return os.Remove(filepath.Join(s.dir, filepath.Base(name)))
}

// EncryptValue seals a sensitive string column value.
func (s *Store) EncryptValue(value string) (string, error) {
	return s.crypto.Encrypt(value)
}

// DecryptValue opens a sealed string column value.
func (s *Store) DecryptValue(value string) (string, error) {
	return s.crypto.Decrypt(value)
}

// HashValue returns the keyed lookup hash for a sensitive value.
func (s *Store) HashValue(value string) string {
	return s.crypto.Hash(value)
}
