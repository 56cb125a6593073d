// Package symmetric wraps the authenticated ciphers used to protect a
// puzzle's message.
//
// Ciphertexts are self-describing: a one byte suite identifier, the nonce,
// then the sealed box. Keys are 32 random bytes for every suite.
package symmetric

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the key length shared by all suites.
const KeySize = 32

// Suite identifies an AEAD construction.
type Suite byte

const (
	SuiteXChaCha20Poly1305 Suite = 1
	SuiteAES256GCM         Suite = 2
)

func (s Suite) String() string {
	switch s {
	case SuiteXChaCha20Poly1305:
		return "xchacha20-poly1305"
	case SuiteAES256GCM:
		return "aes-256-gcm"
	default:
		return fmt.Sprintf("suite(%d)", byte(s))
	}
}

// ParseSuite maps a suite name back to its identifier.
func ParseSuite(name string) (Suite, error) {
	switch name {
	case "xchacha20-poly1305", "":
		return SuiteXChaCha20Poly1305, nil
	case "aes-256-gcm":
		return SuiteAES256GCM, nil
	default:
		return 0, fmt.Errorf("unknown cipher suite %q", name)
	}
}

var (
	ErrAuthenticationFailed = errors.New("message authentication failed")
	ErrInvalidKey           = errors.New("invalid key size")
	ErrUnknownSuite         = errors.New("unknown cipher suite")
)

// Cipher is the contract the puzzle engine needs from a symmetric scheme.
type Cipher interface {
	GenerateKey() ([]byte, error)
	Encrypt(key []byte, plaintext string) ([]byte, error)
	Decrypt(key, ciphertext []byte) (string, error)
}

// Scheme encrypts with one suite and decrypts any known suite.
type Scheme struct {
	Suite Suite
	// Rand defaults to crypto/rand.Reader when nil.
	Rand io.Reader
}

// New returns a Scheme using the default suite.
func New() *Scheme {
	return &Scheme{Suite: SuiteXChaCha20Poly1305, Rand: rand.Reader}
}

// NewWithSuite returns a Scheme encrypting under the given suite.
func NewWithSuite(s Suite) (*Scheme, error) {
	if _, err := newAEAD(s, make([]byte, KeySize)); err != nil {
		return nil, err
	}
	return &Scheme{Suite: s, Rand: rand.Reader}, nil
}

func (s *Scheme) random() io.Reader {
	if s.Rand == nil {
		return rand.Reader
	}
	return s.Rand
}

// GenerateKey returns a fresh random key.
func (s *Scheme) GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(s.random(), key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under key with a random nonce.
func (s *Scheme) Encrypt(key []byte, plaintext string) ([]byte, error) {
	aead, err := newAEAD(s.Suite, key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = byte(s.Suite)
	nonce := out[1:]
	if _, err := io.ReadFull(s.random(), nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	// The suite byte is authenticated as associated data.
	return aead.Seal(out, nonce, []byte(plaintext), []byte{byte(s.Suite)}), nil
}

// Decrypt opens a ciphertext produced by Encrypt.
func (s *Scheme) Decrypt(key, ciphertext []byte) (string, error) {
	if len(ciphertext) < 1 {
		return "", ErrAuthenticationFailed
	}

	aead, err := newAEAD(Suite(ciphertext[0]), key)
	if err != nil {
		if errors.Is(err, ErrUnknownSuite) || errors.Is(err, ErrInvalidKey) {
			return "", fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
		}
		return "", err
	}

	body := ciphertext[1:]
	if len(body) < aead.NonceSize()+aead.Overhead() {
		return "", ErrAuthenticationFailed
	}

	nonce, sealed := body[:aead.NonceSize()], body[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, []byte{ciphertext[0]})
	if err != nil {
		return "", ErrAuthenticationFailed
	}

	return string(plaintext), nil
}

func newAEAD(s Suite, key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: %d bytes (must be %d bytes)", ErrInvalidKey, len(key), KeySize)
	}

	switch s {
	case SuiteXChaCha20Poly1305:
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher: %w", err)
		}
		return aead, nil

	case SuiteAES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM: %w", err)
		}
		return gcm, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownSuite, byte(s))
	}
}

// SuiteOf reports the suite a ciphertext was sealed with.
func SuiteOf(ciphertext []byte) (Suite, error) {
	if len(ciphertext) == 0 {
		return 0, ErrUnknownSuite
	}
	s := Suite(ciphertext[0])
	if s != SuiteXChaCha20Poly1305 && s != SuiteAES256GCM {
		return 0, fmt.Errorf("%w: %d", ErrUnknownSuite, byte(s))
	}
	return s, nil
}
