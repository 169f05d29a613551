package qyn1

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	"github.com/everplay-tech/quenyan/config"
)

const (
	saltSize             = 16
	hkdfSaltSize         = 16
	nonceSize            = chacha20poly1305.NonceSize
	tagSize              = chacha20poly1305.Overhead
	pbkdf2Rounds         = 200_000
	currentEncryptionVer = 2

	argon2TimeCost    = 4
	argon2MemoryCost  = 64 * 1024 // KiB
	argon2Parallelism = 4
	argon2HashLen     = 32

	hkdfInfo = "QYN1-ENVELOPE:v2"
)

// EncryptionEnvelope carries everything needed to decrypt a package payload
// frame: nonce, salts, ciphertext and tag stored separately (per the wire
// format's wrapper header), and the KDF/AEAD identifiers needed to support
// legacy (v1) packages.
type EncryptionEnvelope struct {
	Nonce      []byte
	Salt       []byte
	HKDFSalt   []byte
	Ciphertext []byte
	Tag        []byte
	Version    int
	AEAD       string
	KDF        string
	KDFRounds  int // legacy PBKDF2 iteration count, when KDF == "pbkdf2"
}

// deriveArgon2id derives a 32-byte key-encryption key from passphrase and
// salt using the fixed Argon2id parameters.
func deriveArgon2id(passphrase config.SecretString, salt []byte) []byte {
	return argon2.IDKey(passphrase.Bytes(), salt, argon2TimeCost, argon2MemoryCost, argon2Parallelism, argon2HashLen)
}

// deriveHKDF stretches a key-encryption key into the final 32-byte AEAD key.
func deriveHKDF(kek []byte, salt []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, kek, salt, []byte(hkdfInfo))
	out := make([]byte, 32)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("qyn1: hkdf expansion failed: %w", err)
	}
	return out, nil
}

// derivePBKDF2Legacy derives the AEAD key directly, as v1 packages did
// before the HKDF stage was introduced.
func derivePBKDF2Legacy(passphrase config.SecretString, salt []byte) []byte {
	return pbkdf2.Key(passphrase.Bytes(), salt, pbkdf2Rounds, 32, sha256.New)
}

// Encrypt seals plaintext under a key derived from passphrase, with aad as
// associated data. The returned envelope always uses the current (v2)
// encryption scheme: Argon2id -> HKDF-SHA256 -> ChaCha20-Poly1305.
func Encrypt(plaintext []byte, passphrase config.SecretString, aad []byte) (*EncryptionEnvelope, error) {
	salt := make([]byte, saltSize)
	hkdfSalt := make([]byte, hkdfSaltSize)
	nonce := make([]byte, nonceSize)
	for _, b := range [][]byte{salt, hkdfSalt, nonce} {
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("qyn1: failed to generate random material: %w", err)
		}
	}

	kek := deriveArgon2id(passphrase, salt)
	key, err := deriveHKDF(kek, hkdfSalt)
	config.Wipe(kek)
	if err != nil {
		return nil, err
	}
	defer config.Wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("qyn1: failed to initialise AEAD: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, aad)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return &EncryptionEnvelope{
		Nonce:      nonce,
		Salt:       salt,
		HKDFSalt:   hkdfSalt,
		Ciphertext: ciphertext,
		Tag:        tag,
		Version:    currentEncryptionVer,
		AEAD:       "chacha20poly1305",
		KDF:        "argon2id",
	}, nil
}

// Decrypt opens env under a key derived from passphrase, with aad as
// associated data, handling both the current scheme and the legacy v1
// (PBKDF2, no HKDF) scheme.
func Decrypt(env *EncryptionEnvelope, passphrase config.SecretString, aad []byte) ([]byte, error) {
	var key []byte
	if env.Version == 1 {
		key = derivePBKDF2Legacy(passphrase, env.Salt)
	} else {
		if env.Version != currentEncryptionVer {
			return nil, &AuthFailedError{Reason: fmt.Sprintf("unsupported encryption version %d", env.Version)}
		}
		hkdfSalt := env.HKDFSalt
		if len(hkdfSalt) == 0 {
			hkdfSalt = env.Salt
		}
		kek := deriveArgon2id(passphrase, env.Salt)
		derived, err := deriveHKDF(kek, hkdfSalt)
		config.Wipe(kek)
		if err != nil {
			return nil, err
		}
		key = derived
	}
	defer config.Wipe(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("qyn1: failed to initialise AEAD: %w", err)
	}
	combined := append(append([]byte{}, env.Ciphertext...), env.Tag...)
	plaintext, err := aead.Open(nil, env.Nonce, combined, aad)
	if err != nil {
		return nil, &AuthFailedError{Reason: "AEAD tag verification failed"}
	}
	return plaintext, nil
}
