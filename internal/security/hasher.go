package security

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

type Scheme string

const (
	SchemeHMACSHA512 Scheme = "hmac-sha512"
	SchemeArgon2id   Scheme = "argon2id"
)

func (s Scheme) IsValid() bool {
	switch s {
	case SchemeHMACSHA512, SchemeArgon2id:
		return true
	default:
		return false
	}
}

// Argon2Params tunes the argon2id scheme. Zero values fall back to DefaultArgon2Params.
type Argon2Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Time:        1,
	Parallelism: 2,
	SaltLength:  32,
	KeyLength:   64,
}

// Digest is what gets persisted for a password: the scheme it was produced with,
// the derived hash and the salt.
type Digest struct {
	Scheme Scheme
	Hash   []byte
	Salt   []byte
}

// Hasher produces digests with one configured scheme but verifies digests of any known scheme,
// so switching PASSWORD_SCHEME does not lock out existing users.
type Hasher struct {
	scheme Scheme
	argon  Argon2Params
}

func NewHasher(scheme Scheme, argon Argon2Params) (*Hasher, error) {
	if scheme == "" {
		scheme = SchemeHMACSHA512
	}

	if !scheme.IsValid() {
		return nil, fmt.Errorf("unknown password scheme %q", scheme)
	}

	return &Hasher{scheme: scheme, argon: withArgonDefaults(argon)}, nil
}

func (h *Hasher) Scheme() Scheme {
	return h.scheme
}

func (h *Hasher) Hash(plain string) (Digest, error) {
	switch h.scheme {
	case SchemeArgon2id:
		if plain == "" {
			return Digest{}, ErrEmptyPassword
		}

		salt := make([]byte, h.argon.SaltLength)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return Digest{}, err
		}

		return Digest{Scheme: SchemeArgon2id, Hash: h.argon2id(plain, salt), Salt: salt}, nil
	default:
		hash, salt, err := HashPassword(plain)
		if err != nil {
			return Digest{}, err
		}

		return Digest{Scheme: SchemeHMACSHA512, Hash: hash, Salt: salt}, nil
	}
}

func (h *Hasher) Verify(plain string, d Digest) bool {
	switch d.Scheme {
	case SchemeHMACSHA512, "":
		return VerifyPassword(plain, d.Hash, d.Salt)
	case SchemeArgon2id:
		if len(d.Hash) != int(h.argon.KeyLength) || len(d.Salt) == 0 {
			return false
		}

		return subtle.ConstantTimeCompare(h.argon2id(plain, d.Salt), d.Hash) == 1
	default:
		return false
	}
}

func (h *Hasher) argon2id(plain string, salt []byte) []byte {
	return argon2.IDKey([]byte(plain), salt, h.argon.Time, h.argon.Memory, h.argon.Parallelism, h.argon.KeyLength)
}

func withArgonDefaults(p Argon2Params) Argon2Params {
	if p.Memory == 0 {
		p.Memory = DefaultArgon2Params.Memory
	}
	if p.Time == 0 {
		p.Time = DefaultArgon2Params.Time
	}
	if p.Parallelism == 0 {
		p.Parallelism = DefaultArgon2Params.Parallelism
	}
	if p.SaltLength == 0 {
		p.SaltLength = DefaultArgon2Params.SaltLength
	}
	if p.KeyLength == 0 {
		p.KeyLength = DefaultArgon2Params.KeyLength
	}
	return p
}
