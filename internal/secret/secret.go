// Package secret encrypts credentials stored in the configuration file.
//
// Encrypted values carry the "enc:" prefix followed by base64 age
// ciphertext. The X25519 identity lives beside the configuration in
// keys/qsolog.key and is created on first use.
package secret

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// Prefix marks an encrypted configuration value.
const Prefix = "enc:"

// KeyPath returns the identity file under baseDir.
func KeyPath(baseDir string) string {
	return filepath.Join(baseDir, "keys", "qsolog.key")
}

// IsEncrypted reports whether value carries the encryption prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, Prefix)
}

// Box encrypts to and decrypts with one identity.
type Box struct {
	identity *age.X25519Identity
}

// LoadOrCreate reads the identity at path, generating and writing a new one
// (mode 0600) when the file does not exist.
func LoadOrCreate(path string) (*Box, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return create(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing key file: %w", err)
	}
	for _, id := range identities {
		if x, ok := id.(*age.X25519Identity); ok {
			return &Box{identity: x}, nil
		}
	}
	return nil, fmt.Errorf("no X25519 identity in %s", path)
}

func create(path string) (*Box, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	body := "# public key: " + identity.Recipient().String() + "\n" + identity.String() + "\n"
	// Never overwrite an existing key.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return nil, fmt.Errorf("creating key file: %w", err)
	}
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	return &Box{identity: identity}, nil
}

// Encrypt returns plain as an "enc:" value.
func (b *Box) Encrypt(plain string) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, b.identity.Recipient())
	if err != nil {
		return "", fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.WriteString(w, plain); err != nil {
		return "", fmt.Errorf("encrypting value: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing encryption: %w", err)
	}
	return Prefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Decrypt returns the plaintext of an "enc:" value. Values without the
// prefix are returned unchanged.
func (b *Box) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, Prefix))
	if err != nil {
		return "", fmt.Errorf("decoding encrypted value: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), b.identity)
	if err != nil {
		return "", fmt.Errorf("decrypting value: %w", err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("decrypting value: %w", err)
	}
	return string(plain), nil
}

// Reveal decrypts value with the identity under baseDir. Plain values are
// returned without touching the key file.
func Reveal(baseDir, value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	box, err := LoadOrCreate(KeyPath(baseDir))
	if err != nil {
		return "", err
	}
	return box.Decrypt(value)
}
