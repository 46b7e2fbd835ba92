package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
)

const (
	DefaultPBKDF2Iterations = 310_000
	MinPBKDF2Iterations     = 250_000
	DefaultSaltLen          = 16
	DefaultKeyLen           = 32
	MinPassphraseChars      = 8
)

var (
	ErrInvalidKDFParams   = errors.New("invalid kdf parameters")
	ErrPassphraseTooShort = errors.New("passphrase too short")
)

type PBKDF2Params struct {
	Iterations int
	SaltLen    int
	KeyLen     int
}

func DefaultPBKDF2Params() PBKDF2Params {
	return PBKDF2Params{
		Iterations: DefaultPBKDF2Iterations,
		SaltLen:    DefaultSaltLen,
		KeyLen:     DefaultKeyLen,
	}
}

func (p PBKDF2Params) Validate() error {
	switch {
	case p.Iterations < MinPBKDF2Iterations:
		return fmt.Errorf("%w: iterations must be >= %d", ErrInvalidKDFParams, MinPBKDF2Iterations)
	case p.SaltLen < 16:
		return fmt.Errorf("%w: salt length must be >= 16", ErrInvalidKDFParams)
	case p.KeyLen != 32:
		return fmt.Errorf("%w: key length must be 32", ErrInvalidKDFParams)
	default:
		return nil
	}
}

func DeriveKey(passphrase []byte, salt []byte, params PBKDF2Params) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if utf8.RuneCount(passphrase) < MinPassphraseChars {
		return nil, fmt.Errorf("%w: need at least %d characters", ErrPassphraseTooShort, MinPassphraseChars)
	}
	if len(salt) < params.SaltLen {
		return nil, fmt.Errorf("%w: salt must be at least %d bytes", ErrInvalidKDFParams, params.SaltLen)
	}

	return pbkdf2.Key(passphrase, salt, params.Iterations, params.KeyLen, sha256.New), nil
}

func GenerateSalt(length int) ([]byte, error) {
	if length < 16 {
		return nil, fmt.Errorf("generate salt: length must be >= 16, got %d", length)
	}
	salt := make([]byte, length)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}
