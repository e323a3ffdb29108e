package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"io"
)

// SaltSize matches the SHA-512 block size so the salt is used as a full-width HMAC key.
const SaltSize = sha512.BlockSize

var ErrEmptyPassword = errors.New("password must not be empty")

// HashPassword derives an HMAC-SHA512 digest of plain keyed by a fresh random salt.
func HashPassword(plain string) (hash, salt []byte, err error) {
	if plain == "" {
		return nil, nil, ErrEmptyPassword
	}

	salt = make([]byte, SaltSize)

	if _, err = io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, err
	}

	return hmacSHA512(salt, plain), salt, nil
}

// VerifyPassword recomputes the digest with the stored salt and compares in constant time.
// Malformed or mismatched input simply yields false.
func VerifyPassword(plain string, hash, salt []byte) bool {
	if len(hash) != sha512.Size || len(salt) == 0 {
		return false
	}

	return hmac.Equal(hmacSHA512(salt, plain), hash)
}

func hmacSHA512(key []byte, plain string) []byte {
	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(plain))
	return mac.Sum(nil)
}
