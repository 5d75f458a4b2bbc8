// Package identity derives the opaque client id under which a snapshot is
// shared. The id is stable for an install and cannot be linked back to the
// player secret it was derived from.
package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"

	"github.com/ramonehamilton/matchup-companion/internal/config"
)

const (
	// Prefix marks ids produced by this package.
	Prefix = "mc_"

	// MinLength is the shortest accepted client id.
	MinLength = 16

	// MaxLength is the longest accepted client id.
	MaxLength = 128

	// Default Argon2 parameters (RFC 9106 recommendations)
	defaultArgon2Time    = 1
	defaultArgon2Memory  = 64 * 1024 // 64 MB
	defaultArgon2Threads = 4

	idKeyLen = 16
)

// KDFConfig holds Argon2id parameters.
type KDFConfig struct {
	// Argon2Time is the number of iterations
	// Default: 1
	Argon2Time uint32

	// Argon2Memory is the amount of memory to use in KB
	// Default: 64 MB (65536 KB)
	Argon2Memory uint32

	// Argon2Threads is the number of threads to use
	// Default: 4
	Argon2Threads uint8
}

// DefaultKDFConfig returns Argon2id parameters with secure defaults.
func DefaultKDFConfig() *KDFConfig {
	return &KDFConfig{
		Argon2Time:    defaultArgon2Time,
		Argon2Memory:  defaultArgon2Memory,
		Argon2Threads: defaultArgon2Threads,
	}
}

// Derive computes the client id for secret and the install salt using Argon2id.
func Derive(secret, salt string, kdf *KDFConfig) (string, error) {
	if secret == "" {
		return "", errors.New("player secret is empty")
	}
	if salt == "" {
		return "", errors.New("install salt is empty")
	}
	if kdf == nil {
		kdf = DefaultKDFConfig()
	}

	key := argon2.IDKey([]byte(secret), []byte(salt), kdf.Argon2Time, kdf.Argon2Memory, kdf.Argon2Threads, idKeyLen)
	return Prefix + hex.EncodeToString(key), nil
}

// Anonymous turns an install salt into a client id without any player secret.
func Anonymous(salt string) (string, error) {
	u, err := uuid.Parse(salt)
	if err != nil {
		return "", fmt.Errorf("install salt is not a uuid: %w", err)
	}
	return Prefix + hex.EncodeToString(u[:]), nil
}

// NewSalt returns a fresh random install salt.
func NewSalt() string {
	return uuid.NewString()
}

// Validate checks that id is usable as a client id.
func Validate(id string) error {
	if id == "" {
		return config.Invalid("client.client_id", "missing client id", nil)
	}
	if len(id) < MinLength || len(id) > MaxLength {
		return config.Invalid("client.client_id", fmt.Sprintf("length must be within [%d, %d], got %d", MinLength, MaxLength, len(id)), nil)
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return config.Invalid("client.client_id", fmt.Sprintf("invalid character %q", r), nil)
		}
	}
	return nil
}

// Options controls Resolve.
type Options struct {
	// ClientID is used as-is when set.
	ClientID string

	// PlayerSecret is hashed with the install salt when ClientID is empty.
	PlayerSecret string

	// SaltPath is where the install salt lives. It is created on first use.
	SaltPath string

	KDF *KDFConfig
}

// Resolve returns the client id for this install: an explicit id, an id derived
// from the player secret, or an anonymous id derived from the install salt.
func Resolve(opts Options) (string, error) {
	if opts.ClientID != "" {
		if err := Validate(opts.ClientID); err != nil {
			return "", err
		}
		return opts.ClientID, nil
	}

	salt, err := LoadOrCreateSalt(opts.SaltPath)
	if err != nil {
		return "", err
	}

	var id string
	if opts.PlayerSecret != "" {
		id, err = Derive(opts.PlayerSecret, salt, opts.KDF)
	} else {
		id, err = Anonymous(salt)
	}
	if err != nil {
		return "", config.Invalid("client", "cannot derive client id", err)
	}
	return id, Validate(id)
}

// LoadOrCreateSalt reads the install salt at path, writing a new one if the file
// does not exist.
func LoadOrCreateSalt(path string) (string, error) {
	if path == "" {
		return "", config.Invalid("client.data_dir", "no location for the install salt", nil)
	}

	data, err := os.ReadFile(path)
	if err == nil {
		salt := strings.TrimSpace(string(data))
		if _, perr := uuid.Parse(salt); perr != nil {
			return "", config.Invalid("client", fmt.Sprintf("corrupt install salt in %s", path), perr)
		}
		return salt, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("read install salt: %w", err)
	}

	salt := NewSalt()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create salt directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(salt+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write install salt: %w", err)
	}
	return salt, nil
}
