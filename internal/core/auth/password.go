package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt cost parameters. Changing them invalidates every stored hash.
const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64
	saltLen      = 16
)

// ErrMalformedHash is returned when a stored hash is not in salt:key hex form.
var ErrMalformedHash = errors.New("malformed password hash")

// HashPassword derives a key with a fresh random salt and encodes it as "salthex:keyhex".
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("derive key: %w", err)
	}

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// VerifyPassword reports whether password matches a hash produced by HashPassword.
func VerifyPassword(password, stored string) (bool, error) {
	saltHex, keyHex, ok := strings.Cut(stored, ":")
	if !ok || saltHex == "" || keyHex == "" {
		return false, ErrMalformedHash
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false, ErrMalformedHash
	}
	expected, err := hex.DecodeString(keyHex)
	if err != nil || len(expected) == 0 {
		return false, ErrMalformedHash
	}

	derived, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, len(expected))
	if err != nil {
		return false, fmt.Errorf("derive key: %w", err)
	}

	return subtle.ConstantTimeCompare(derived, expected) == 1, nil
}
