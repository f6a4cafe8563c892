package transfer

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// SealMagicHeader is prepended to sealed documents for identification.
	SealMagicHeader = "BINDSEAL1"

	// Default Argon2 parameters (RFC 9106 recommendations)
	defaultArgon2Time    = 1
	defaultArgon2Memory  = 64 * 1024 // 64 MB
	defaultArgon2Threads = 4
	argon2KeyLen         = 32 // AES-256

	saltLength = 32
	gcmTagSize = 16
)

var (
	// ErrPassphraseRequired is returned when a sealed document is read
	// without a passphrase.
	ErrPassphraseRequired = errors.New("document is sealed; a passphrase is required")

	// ErrUnsealFailed is returned for a wrong passphrase or a damaged document.
	ErrUnsealFailed = errors.New("failed to unseal document (wrong passphrase or corrupted data)")
)

// SealConfig holds key derivation parameters.
type SealConfig struct {
	Passphrase string

	// Argon2Time is the number of iterations.
	// Default: 1
	Argon2Time uint32

	// Argon2Memory is the memory cost in KB.
	// Default: 64 MB (65536 KB)
	Argon2Memory uint32

	// Argon2Threads is the parallelism.
	// Default: 4
	Argon2Threads uint8
}

// DefaultSealConfig returns a config with the default Argon2id parameters.
func DefaultSealConfig(passphrase string) *SealConfig {
	return &SealConfig{
		Passphrase:    passphrase,
		Argon2Time:    defaultArgon2Time,
		Argon2Memory:  defaultArgon2Memory,
		Argon2Threads: defaultArgon2Threads,
	}
}

func (c *SealConfig) deriveKey(salt []byte) []byte {
	return argon2.IDKey([]byte(c.Passphrase), salt, c.Argon2Time, c.Argon2Memory, c.Argon2Threads, argon2KeyLen)
}

func (c *SealConfig) aead(salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.deriveKey(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts a document with AES-256-GCM under an Argon2id-derived key.
// Layout: magic || salt || nonce || ciphertext+tag. The magic header is
// authenticated as additional data.
func Seal(plaintext []byte, config *SealConfig) ([]byte, error) {
	if config == nil || config.Passphrase == "" {
		return nil, ErrPassphraseRequired
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	gcm, err := config.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(SealMagicHeader)+saltLength+len(nonce)+len(plaintext)+gcmTagSize)
	out = append(out, SealMagicHeader...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, []byte(SealMagicHeader)), nil
}

// Unseal reverses Seal.
func Unseal(sealed []byte, config *SealConfig) ([]byte, error) {
	if !IsSealed(sealed) {
		return nil, fmt.Errorf("document is not sealed")
	}
	if config == nil || config.Passphrase == "" {
		return nil, ErrPassphraseRequired
	}

	body := sealed[len(SealMagicHeader):]
	if len(body) < saltLength+12+gcmTagSize {
		return nil, fmt.Errorf("%w: sealed data too short", ErrUnsealFailed)
	}
	salt, body := body[:saltLength], body[saltLength:]

	gcm, err := config.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext := body[:gcm.NonceSize()], body[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(SealMagicHeader))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsealFailed, err)
	}
	return plaintext, nil
}

// IsSealed reports whether data starts with the seal header.
func IsSealed(data []byte) bool {
	return bytes.HasPrefix(data, []byte(SealMagicHeader))
}

// Decode returns a validated import from plain or sealed data. config may be
// nil for plain documents.
func Decode(data []byte, config *SealConfig, opts ImportOptions) (*Imported, error) {
	if IsSealed(data) {
		plain, err := Unseal(data, config)
		if err != nil {
			return nil, err
		}
		data = plain
	}
	return Import(data, opts)
}
