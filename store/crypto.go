package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

const (
	encPrefix  = "enc:"
	hashPrefix = "h:"
)

type dataCrypto struct {
	gcm    cipher.AEAD
	macKey []byte
}

func newDataCrypto(key string) (*dataCrypto, error) {
	if key == "" {
		return nil, nil
	}
	encKey := sha256.Sum256([]byte("enc:" + key))
	macKey := sha256.Sum256([]byte("mac:" + key))
	block, err := aes.NewCipher(encKey[:])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &dataCrypto{gcm: gcm, macKey: macKey[:]}, nil
}

func (c *dataCrypto) Encrypt(value string) (string, error) {
	if c == nil || value == "" {
		return value, nil
	}
	if strings.HasPrefix(value, encPrefix) {
		return value, nil
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	cipherText := c.gcm.Seal(nil, nonce, []byte(value), nil)
	return encPrefix + base64.RawStdEncoding.EncodeToString(nonce) + ":" + base64.RawStdEncoding.EncodeToString(cipherText), nil
}

func (c *dataCrypto) Decrypt(value string) (string, error) {
	if c == nil || value == "" {
		return value, nil
	}
	if !strings.HasPrefix(value, encPrefix) {
		return value, nil
	}
	parts := strings.SplitN(strings.TrimPrefix(value, encPrefix), ":", 2)
	if len(parts) != 2 {
		return "", errors.New("invalid encrypted payload")
	}
	nonce, err := base64.RawStdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", err
	}
	cipherText, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", err
	}
	plain, err := c.gcm.Open(nil, nonce, cipherText, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// EncryptBlob seals raw bytes, nonce prepended. Used for selfies on disk.
func (c *dataCrypto) EncryptBlob(plain []byte) ([]byte, error) {
	if c == nil {
		return plain, nil
	}
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.gcm.Seal(nonce, nonce, plain, nil), nil
}

// DecryptBlob opens bytes sealed by EncryptBlob.
func (c *dataCrypto) DecryptBlob(sealed []byte) ([]byte, error) {
	if c == nil {
		return sealed, nil
	}
	ns := c.gcm.NonceSize()
	if len(sealed) < ns {
		return nil, errors.New("sealed blob too short")
	}
	return c.gcm.Open(nil, sealed[:ns], sealed[ns:], nil)
}

// Hash returns a keyed lookup hash for a sensitive value.
func (c *dataCrypto) Hash(value string) string {
	if c == nil || value == "" {
		return value
	}
	mac := hmac.New(sha256.New, c.macKey)
	mac.Write([]byte(value))
	return hashPrefix + hex.EncodeToString(mac.Sum(nil))
}

func (c *dataCrypto) IsHash(value string) bool {
	return strings.HasPrefix(value, hashPrefix)
}
