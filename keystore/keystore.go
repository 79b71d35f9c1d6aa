package keystore

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"

	"github.com/dominion-rnd/crypto-licensing/codec"
)

// diskKeypair is the canonical wire shape of an encrypted keypair file,
// matching the *.crypto-keypair format.
type diskKeypair struct {
	Product     string `json:"product"`
	Version     int    `json:"version"`
	KDF         string `json:"kdf"`
	PubKey      string `json:"vk"`
	VKSignature string `json:"vk_signature"`
	Salt        string `json:"salt"`
	Ciphertext  string `json:"ciphertext"`
}

// Create generates an Ed25519 keypair for product, encrypted at rest
// under username/password, per spec.md §4.2's create(seed?, ...).
//
// When seed is nil a fresh random seed is drawn (see GenerateSeed); when
// non-nil it must be exactly ed25519.SeedSize (32) bytes and the keypair
// is deterministically derived from it with ed25519.NewKeyFromSeed, so
// the same seed — however it was obtained, including recovered from a
// BIP-39 mnemonic via ImportMnemonic or a *.crypto-seed file via
// SeedFromFile — always reconstructs the same keypair.
func Create(product, username, password string, seed []byte) (*Keypair, *EncryptedKeypair, error) {
	if seed == nil {
		generated, err := GenerateSeed()
		if err != nil {
			return nil, nil, newErr(CodeIOError, "generating seed", err)
		}
		seed = generated
	}
	if len(seed) != ed25519.SeedSize {
		return nil, nil, newErr(CodeCorruptRecord, "seed must be 32 bytes", nil)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	kp := &Keypair{Product: product, PublicKey: pub, PrivateKey: priv}

	env, err := Encrypt(kp, username, password)
	if err != nil {
		return nil, nil, err
	}
	return kp, env, nil
}

// GenerateSeed draws a fresh 32-byte Ed25519 seed from the system CSPRNG.
// The caller typically either passes it straight to Create, or first
// round-trips it through ExportMnemonic so the operator has a
// human-transcribable backup before the seed is discarded.
func GenerateSeed() ([]byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, newErr(CodeIOError, "reading random seed", err)
	}
	return seed, nil
}

// Open decrypts an EncryptedKeypair previously produced by Create or
// Load, returning ErrWrongPassword on authentication failure.
func Open(env *EncryptedKeypair, product, username, password string) (*Keypair, error) {
	return Decrypt(env, product, username, password)
}

// Save atomically writes env to path: a temp file in the same directory
// is written and fsynced, then renamed over the destination, so a crash
// mid-write never leaves a half-written *.crypto-keypair file. Save
// refuses to overwrite an existing keypair.
func Save(path, product string, env *EncryptedKeypair) error {
	data, err := encodeDisk(product, env)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return newErr(CodeIOError, "creating directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".crypto-keypair-*")
	if err != nil {
		return newErr(CodeIOError, "creating temp file", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return newErr(CodeIOError, "writing temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return newErr(CodeIOError, "syncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return newErr(CodeIOError, "closing temp file", err)
	}
	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return newErr(CodeIOError, "setting permissions", err)
	}

	if _, err := os.Stat(path); err == nil {
		return newErr(CodeFileExists, "refusing to overwrite existing keypair at "+path, nil)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return newErr(CodeIOError, "renaming into place", err)
	}
	return nil
}

// SaveToSearchPath writes env under filename to the first writable
// directory in searchPath, implementing spec.md §4.2's "most specific
// writable directory" save semantics.
//
// searchPath is ordered most-general to most-specific, matching
// config.Config.SearchPath. With reverseSave false, directories are
// tried in that given order (most general first) — the conventional
// "prefer the shared/system location" behavior. With reverseSave true,
// the order is reversed so the most specific (innermost, typically the
// per-user or per-project) writable directory wins, which is what an
// operator who just wants "save next to where I'm standing" expects.
// The first directory Save succeeds against is used; an unwritable or
// missing directory is skipped rather than treated as fatal.
func SaveToSearchPath(searchPath []string, reverseSave bool, filename, product string, env *EncryptedKeypair) (string, error) {
	dirs := make([]string, len(searchPath))
	copy(dirs, searchPath)
	if reverseSave {
		for i, j := 0, len(dirs)-1; i < j; i, j = i+1, j-1 {
			dirs[i], dirs[j] = dirs[j], dirs[i]
		}
	}

	var lastErr error
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		path := filepath.Join(dir, filename)
		if err := Save(path, product, env); err != nil {
			lastErr = err
			continue
		}
		return path, nil
	}
	if lastErr == nil {
		lastErr = newErr(CodeIOError, "search path is empty", nil)
	}
	return "", newErr(CodeIOError, "no writable directory in search path", lastErr)
}

// Load reads and decodes an EncryptedKeypair previously written by Save.
// The product name is recovered from the file itself so callers do not
// need to already know it.
func Load(path string) (product string, env *EncryptedKeypair, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, newErr(CodeIOError, "reading "+path, err)
	}
	var disk diskKeypair
	if err := codec.Decode(data, &disk); err != nil {
		return "", nil, newErr(CodeCorruptRecord, "decoding "+path, err)
	}
	pubKey, err := codec.DecodeBinary(disk.PubKey)
	if err != nil {
		return "", nil, newErr(CodeCorruptRecord, "decoding vk", err)
	}
	vkSignature, err := codec.DecodeBinary(disk.VKSignature)
	if err != nil {
		return "", nil, newErr(CodeCorruptRecord, "decoding vk_signature", err)
	}
	salt, err := codec.DecodeBinary(disk.Salt)
	if err != nil {
		return "", nil, newErr(CodeCorruptRecord, "decoding salt", err)
	}
	ciphertext, err := codec.DecodeBinary(disk.Ciphertext)
	if err != nil {
		return "", nil, newErr(CodeCorruptRecord, "decoding ciphertext", err)
	}
	return disk.Product, &EncryptedKeypair{
		Version:     disk.Version,
		KDF:         disk.KDF,
		PubKey:      ed25519.PublicKey(pubKey),
		VKSignature: vkSignature,
		Salt:        salt,
		Ciphertext:  ciphertext,
	}, nil
}

func encodeDisk(product string, env *EncryptedKeypair) ([]byte, error) {
	disk := diskKeypair{
		Product:     product,
		Version:     env.Version,
		KDF:         env.KDF,
		PubKey:      codec.EncodeBinary(env.PubKey),
		VKSignature: codec.EncodeBinary(env.VKSignature),
		Salt:        codec.EncodeBinary(env.Salt),
		Ciphertext:  codec.EncodeBinary(env.Ciphertext),
	}
	data, err := codec.Encode(disk)
	if err != nil {
		return nil, newErr(CodeCorruptRecord, "encoding envelope", err)
	}
	return data, nil
}
