// Package auth verifies the API keys that guard the admin API.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidKey is returned when no configured key matches.
var ErrInvalidKey = errors.New("invalid api key")

// ErrUnknownHashType is returned when a stored hash has an unrecognized format.
var ErrUnknownHashType = errors.New("unknown hash type")

// HashType names a stored key hash format.
type HashType string

const (
	HashArgon2id HashType = "argon2id"
	HashSHA256   HashType = "sha256"
	HashUnknown  HashType = "unknown"
)

// argon2idParams follow the OWASP minimum: 46 MiB, one pass, one lane.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// AdminKey is one configured admin credential. Hash is either an Argon2id
// PHC string or a SHA-256 hex digest, optionally prefixed with "sha256:".
type AdminKey struct {
	Name string
	Hash string
}

// Keyring holds the admin keys loaded from configuration.
type Keyring struct {
	keys []AdminKey
}

// NewKeyring validates every key and returns a keyring holding them.
func NewKeyring(keys []AdminKey) (*Keyring, error) {
	seen := make(map[string]struct{}, len(keys))
	for i, k := range keys {
		if k.Name == "" {
			return nil, fmt.Errorf("admin key %d: name is required", i)
		}
		if _, dup := seen[k.Name]; dup {
			return nil, fmt.Errorf("admin key %q: duplicate name", k.Name)
		}
		seen[k.Name] = struct{}{}
		if DetectHashType(k.Hash) == HashUnknown {
			return nil, fmt.Errorf("admin key %q: %w", k.Name, ErrUnknownHashType)
		}
	}
	return &Keyring{keys: append([]AdminKey(nil), keys...)}, nil
}

// Len returns the number of configured keys.
func (k *Keyring) Len() int {
	if k == nil {
		return 0
	}
	return len(k.keys)
}

// Authenticate returns the name of the key matching rawKey.
func (k *Keyring) Authenticate(rawKey string) (string, error) {
	if k == nil || rawKey == "" {
		return "", ErrInvalidKey
	}
	for _, key := range k.keys {
		if ok, err := VerifyKey(rawKey, key.Hash); err == nil && ok {
			return key.Name, nil
		}
	}
	return "", ErrInvalidKey
}

// HashKey returns the SHA-256 hex digest of rawKey. New keys should use
// HashKeyArgon2id.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// HashKeyArgon2id returns a salted Argon2id hash of rawKey in PHC format:
// $argon2id$v=19$m=48128,t=1,p=1$<salt>$<hash>
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// DetectHashType identifies the format of a stored hash.
func DetectHashType(stored string) HashType {
	switch {
	case strings.HasPrefix(stored, "$argon2id$"):
		return HashArgon2id
	case strings.HasPrefix(stored, "sha256:"):
		return HashSHA256
	case len(stored) == sha256.Size*2 && isHex(stored):
		return HashSHA256
	default:
		return HashUnknown
	}
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil
}

// VerifyKey reports whether rawKey matches stored. It fails with
// ErrUnknownHashType for unrecognized formats and never panics on malformed
// Argon2id parameters.
func VerifyKey(rawKey, stored string) (bool, error) {
	switch DetectHashType(stored) {
	case HashArgon2id:
		return compareArgon2id(rawKey, stored)
	case HashSHA256:
		want := strings.ToLower(strings.TrimPrefix(stored, "sha256:"))
		return subtle.ConstantTimeCompare([]byte(HashKey(rawKey)), []byte(want)) == 1, nil
	default:
		return false, ErrUnknownHashType
	}
}

// compareArgon2id recovers from the panic argon2 raises on zero rounds or
// zero lanes.
func compareArgon2id(rawKey, stored string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, stored)
}
