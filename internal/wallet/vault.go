// Package wallet custodies Solana keypairs: generation, encryption at rest,
// PIN verification, and chain access (balances, transfers, transaction
// submission). Decrypted key material never leaves the signing call.
package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// currentVersion is the encrypted-key JSON schema version.
	currentVersion = 1

	// bcryptCost for PIN hashes. PINs are low-entropy, so the bot also
	// limits verification attempts at the conversation layer.
	bcryptCost = 10
)

var pinPattern = regexp.MustCompile(`^\d{4}$`)

// ErrInvalidPin is returned when a PIN is not exactly four digits.
var ErrInvalidPin = errors.New("wallet: pin must be exactly 4 digits")

// encryptedKeyJSON is the stored format for an encrypted private key.
type encryptedKeyJSON struct {
	Version    int    `json:"version"`
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// Vault encrypts and decrypts custodied private keys with a server-side
// secret using PBKDF2-HMAC-SHA256 key derivation and AES-256-GCM.
type Vault struct {
	secret []byte
}

// NewVault creates a Vault from the configured encryption secret.
func NewVault(secret string) (*Vault, error) {
	if secret == "" {
		return nil, errors.New("wallet: encryption secret must not be empty")
	}
	return &Vault{secret: []byte(secret)}, nil
}

// Generate creates a fresh Solana keypair and returns its public key
// together with the encrypted private key blob.
func (v *Vault) Generate() (publicKey string, encrypted string, err error) {
	w := solana.NewWallet()
	enc, err := v.Encrypt(w.PrivateKey)
	if err != nil {
		return "", "", err
	}
	return w.PublicKey().String(), enc, nil
}

// Encrypt seals a private key into the versioned JSON blob stored in the
// wallets table.
func (v *Vault) Encrypt(key solana.PrivateKey) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("wallet: generating salt: %w", err)
	}

	derivedKey := pbkdf2.Key(v.secret, salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return "", fmt.Errorf("wallet: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("wallet: creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("wallet: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(key), nil)

	out := encryptedKeyJSON{
		Version:    currentVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}

	blob, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("wallet: marshal encrypted key: %w", err)
	}
	return string(blob), nil
}

// Open decrypts a blob produced by Encrypt and returns the private key.
func (v *Vault) Open(encrypted string) (solana.PrivateKey, error) {
	var stored encryptedKeyJSON
	if err := json.Unmarshal([]byte(encrypted), &stored); err != nil {
		return nil, fmt.Errorf("wallet: parsing encrypted key: %w", err)
	}
	if stored.Version != currentVersion {
		return nil, fmt.Errorf("wallet: unsupported key version %d", stored.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(stored.Salt)
	if err != nil {
		return nil, fmt.Errorf("wallet: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored.Nonce)
	if err != nil {
		return nil, fmt.Errorf("wallet: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("wallet: decoding ciphertext: %w", err)
	}

	derivedKey := pbkdf2.Key(v.secret, salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("wallet: creating GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("wallet: decryption failed (wrong secret?): %w", err)
	}

	if len(plaintext) != 64 {
		return nil, fmt.Errorf("wallet: decrypted key has unexpected length %d", len(plaintext))
	}
	return solana.PrivateKey(plaintext), nil
}

// HashPin validates and hashes a 4-digit PIN for storage.
func HashPin(pin string) (string, error) {
	if !pinPattern.MatchString(pin) {
		return "", ErrInvalidPin
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcryptCost)
	if err != nil {
		return "", fmt.Errorf("wallet: hashing pin: %w", err)
	}
	return string(hash), nil
}

// VerifyPin reports whether the PIN matches the stored hash.
func VerifyPin(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// IsValidAddress reports whether s parses as a Solana public key.
func IsValidAddress(s string) bool {
	_, err := solana.PublicKeyFromBase58(s)
	return err == nil
}
