// Package keystore holds an author's Ed25519 keypair at rest, encrypted
// with a password-derived key, and implements the search-path discovery
// and atomic save/load operations that keep a keypair file from ever
// being partially written.
package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

const (
	envelopeVersion = 1
	saltSize        = chacha20poly1305.NonceSize // the salt doubles as the AEAD nonce

	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = chacha20poly1305.KeySize
)

var (
	// ErrWrongPassword is returned when an encrypted keypair fails to
	// authenticate under the supplied username/password.
	ErrWrongPassword = errors.New("keystore: wrong username or password")
	// ErrUnsupportedEnvelope is returned for an envelope this version of
	// the package does not know how to open.
	ErrUnsupportedEnvelope = errors.New("keystore: unsupported envelope version or kdf")
	// ErrTamperedVK is returned when an envelope's self-certifying
	// vk/vk_signature pair does not authenticate: either the decrypted
	// private key's public half does not match the recorded vk, or vk's
	// own signature over itself fails. Either way the envelope has been
	// altered since it was written.
	ErrTamperedVK = errors.New("keystore: envelope vk/vk_signature does not authenticate")
)

// EncryptedKeypair is the on-disk form of a Keypair once a
// username/password has been supplied: the signing key material is
// sealed behind scrypt(username, password) and ChaCha20-Poly1305.
//
// PubKey ("vk") and VKSignature ("vk_signature") travel alongside the
// ciphertext in the clear, per spec.md §3's {vk, salt, ciphertext,
// vk_signature} shape. vk_signature is sign(sk, vk): anyone holding vk
// can confirm the envelope is internally consistent — that vk really is
// the public half of whatever key opens it — without ever decrypting it.
type EncryptedKeypair struct {
	Version     int               `json:"version"`
	KDF         string            `json:"kdf"`
	PubKey      ed25519.PublicKey `json:"vk"`
	VKSignature []byte            `json:"vk_signature"`
	Salt        []byte            `json:"salt"`
	Ciphertext  []byte            `json:"ciphertext"`
}

// Keypair is the plaintext form: an Ed25519 keypair plus the product
// identity it was issued for, exactly as spec.md §3 describes it.
type Keypair struct {
	Product    string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// VerifyVK checks env's self-certifying vk_signature offline, with no
// password required: it confirms vk_signature is a valid Ed25519
// signature by vk over vk itself. This lets a caller reject a corrupted
// or foreign envelope before ever attempting the (expensive) scrypt
// derivation.
func VerifyVK(env *EncryptedKeypair) bool {
	if len(env.PubKey) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(env.PubKey, env.PubKey, env.VKSignature)
}

// Derive runs scrypt(N=16384, r=8, p=1) over username||password salted
// with salt, producing the 32-byte AEAD key used to seal a keypair.
// This is a deliberate hardening choice: the legacy format this module
// supersedes derived the same key with a single SHA-256 pass.
//
// username is lower-cased first: per spec invariant (c), username
// comparison throughout this package is case-insensitive, so "Alice"
// and "alice" must derive the same key.
func Derive(username, password string, salt []byte) ([]byte, error) {
	material := append([]byte(strings.ToLower(username)), []byte(password)...)
	return scrypt.Key(material, salt, scryptN, scryptR, scryptP, scryptKeyLen)
}

// Encrypt seals a plaintext Keypair's private key bytes behind
// scrypt(username, password), returning the on-disk EncryptedKeypair.
func Encrypt(kp *Keypair, username, password string) (*EncryptedKeypair, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keystore: generating salt: %w", err)
	}
	key, err := Derive(username, password, salt)
	if err != nil {
		return nil, fmt.Errorf("keystore: deriving key: %w", err)
	}
	defer zeroBytes(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	ciphertext := aead.Seal(nil, salt, kp.PrivateKey, []byte(kp.Product))

	return &EncryptedKeypair{
		Version:     envelopeVersion,
		KDF:         "scrypt",
		PubKey:      kp.PublicKey,
		VKSignature: ed25519.Sign(kp.PrivateKey, kp.PublicKey),
		Salt:        salt,
		Ciphertext:  ciphertext,
	}, nil
}

// Decrypt opens an EncryptedKeypair given the product name it was sealed
// under (used as AEAD associated data) plus the username/password.
//
// Two checks beyond AEAD authentication enforce spec invariant (a) — an
// EncryptedKeypair's vk always matches the key it decrypts to: the
// recovered public key must equal env.PubKey, and env.PubKey's own
// vk_signature over itself must verify.
func Decrypt(env *EncryptedKeypair, product, username, password string) (*Keypair, error) {
	if env.Version != envelopeVersion || env.KDF != "scrypt" {
		return nil, ErrUnsupportedEnvelope
	}
	if !VerifyVK(env) {
		return nil, ErrTamperedVK
	}
	key, err := Derive(username, password, env.Salt)
	if err != nil {
		return nil, fmt.Errorf("keystore: deriving key: %w", err)
	}
	defer zeroBytes(key)

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Salt, env.Ciphertext, []byte(product))
	if err != nil {
		return nil, ErrWrongPassword
	}

	priv := ed25519.PrivateKey(plaintext)
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("keystore: decrypted material is not an ed25519 key")
	}
	if !pub.Equal(env.PubKey) {
		return nil, ErrTamperedVK
	}
	return &Keypair{Product: product, PublicKey: pub, PrivateKey: priv}, nil
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
