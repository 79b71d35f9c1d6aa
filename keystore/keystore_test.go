package keystore

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"path/filepath"
	"testing"
)

func TestCreateOpenRoundTrip(t *testing.T) {
	kp, env, err := Create("acme-widgets", "alice", "correct horse battery staple", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	opened, err := Open(env, "acme-widgets", "alice", "correct horse battery staple")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened.PrivateKey, kp.PrivateKey) {
		t.Fatalf("private key mismatch after round trip")
	}
	if !bytes.Equal(opened.PublicKey, kp.PublicKey) {
		t.Fatalf("public key mismatch after round trip")
	}
}

func TestCreateIsCaseInsensitiveOnUsername(t *testing.T) {
	_, env, err := Create("acme-widgets", "Alice", "correct horse battery staple", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := Open(env, "acme-widgets", "alice", "correct horse battery staple"); err != nil {
		t.Fatalf("expected lower-cased username to open envelope, got %v", err)
	}
	if _, err := Open(env, "acme-widgets", "ALICE", "correct horse battery staple"); err != nil {
		t.Fatalf("expected upper-cased username to open envelope, got %v", err)
	}
}

func TestCreateWithSeedIsDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{0x07}, 32)
	kp1, _, err := Create("acme-widgets", "alice", "pw", seed)
	if err != nil {
		t.Fatalf("create 1: %v", err)
	}
	kp2, _, err := Create("acme-widgets", "alice", "pw", seed)
	if err != nil {
		t.Fatalf("create 2: %v", err)
	}
	if !bytes.Equal(kp1.PrivateKey, kp2.PrivateKey) {
		t.Fatalf("expected identical seed to reconstruct the identical keypair")
	}
}

func TestCreateRejectsWrongSeedSize(t *testing.T) {
	_, _, err := Create("acme-widgets", "alice", "pw", []byte{0x01, 0x02})
	var kerr *Error
	if !errors.As(err, &kerr) || kerr.Code != CodeCorruptRecord {
		t.Fatalf("expected CodeCorruptRecord for a short seed, got %v", err)
	}
}

func TestOpenWrongPassword(t *testing.T) {
	_, env, err := Create("acme-widgets", "alice", "correct horse battery staple", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = Open(env, "acme-widgets", "alice", "wrong password")
	if !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword, got %v", err)
	}
}

func TestOpenWrongProductFailsAuthentication(t *testing.T) {
	_, env, err := Create("acme-widgets", "alice", "correct horse battery staple", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = Open(env, "other-product", "alice", "correct horse battery staple")
	if !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected ErrWrongPassword for mismatched AAD, got %v", err)
	}
}

func TestVerifyVKDetectsTamperedVK(t *testing.T) {
	_, env, err := Create("acme-widgets", "alice", "pw", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !VerifyVK(env) {
		t.Fatalf("expected freshly-created envelope's vk_signature to verify")
	}

	other, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	env.PubKey = other
	if VerifyVK(env) {
		t.Fatalf("expected tampered vk to fail VerifyVK")
	}
	if _, err := Open(env, "acme-widgets", "alice", "pw"); !errors.Is(err, ErrTamperedVK) {
		t.Fatalf("expected ErrTamperedVK from Open on a tampered vk, got %v", err)
	}
}

func TestSaveRefusesToOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acme.crypto-keypair")
	_, env, err := Create("acme-widgets", "alice", "pw", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := Save(path, "acme-widgets", env); err != nil {
		t.Fatalf("first save: %v", err)
	}
	err = Save(path, "acme-widgets", env)
	var kerr *Error
	if !errors.As(err, &kerr) || kerr.Code != CodeFileExists {
		t.Fatalf("expected CodeFileExists on second save, got %v", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acme.crypto-keypair")
	kp, env, err := Create("acme-widgets", "alice", "pw", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := Save(path, "acme-widgets", env); err != nil {
		t.Fatalf("save: %v", err)
	}
	product, loadedEnv, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if product != "acme-widgets" {
		t.Fatalf("expected product acme-widgets, got %q", product)
	}
	if !VerifyVK(loadedEnv) {
		t.Fatalf("expected loaded envelope's vk_signature to verify")
	}
	opened, err := Open(loadedEnv, product, "alice", "pw")
	if err != nil {
		t.Fatalf("open loaded: %v", err)
	}
	if !bytes.Equal(opened.PrivateKey, kp.PrivateKey) {
		t.Fatalf("private key mismatch after save/load round trip")
	}
}

func TestSaveToSearchPathPrefersMostSpecificWhenReversed(t *testing.T) {
	general := filepath.Join(t.TempDir())
	specific := filepath.Join(t.TempDir())
	_, env, err := Create("acme-widgets", "alice", "pw", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	path, err := SaveToSearchPath([]string{general, specific}, true, "acme.crypto-keypair", "acme-widgets", env)
	if err != nil {
		t.Fatalf("save to search path: %v", err)
	}
	if filepath.Dir(path) != specific {
		t.Fatalf("expected reverse_save to write into the most specific directory %q, got %q", specific, path)
	}
}

func TestSaveToSearchPathDefaultsToFirstWritable(t *testing.T) {
	general := filepath.Join(t.TempDir())
	specific := filepath.Join(t.TempDir())
	_, env, err := Create("acme-widgets", "alice", "pw", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	path, err := SaveToSearchPath([]string{general, specific}, false, "acme.crypto-keypair", "acme-widgets", env)
	if err != nil {
		t.Fatalf("save to search path: %v", err)
	}
	if filepath.Dir(path) != general {
		t.Fatalf("expected non-reversed save to write into %q, got %q", general, path)
	}
}

func TestMnemonicRoundTrip(t *testing.T) {
	seed := bytes.Repeat([]byte{0x01}, 32)
	words, err := ExportMnemonic(seed)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	recovered, err := ImportMnemonic(words)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !bytes.Equal(recovered, seed) {
		t.Fatalf("mnemonic round trip mismatch")
	}
}

func TestCreateFromMnemonicRecoveredSeed(t *testing.T) {
	seed, err := GenerateSeed()
	if err != nil {
		t.Fatalf("generate seed: %v", err)
	}
	words, err := ExportMnemonic(seed)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	recoveredSeed, err := ImportMnemonic(words)
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	kp1, _, err := Create("acme-widgets", "alice", "pw", seed)
	if err != nil {
		t.Fatalf("create from seed: %v", err)
	}
	kp2, _, err := Create("acme-widgets", "alice", "pw", recoveredSeed)
	if err != nil {
		t.Fatalf("create from recovered seed: %v", err)
	}
	if !bytes.Equal(kp1.PrivateKey, kp2.PrivateKey) {
		t.Fatalf("expected mnemonic-recovered seed to reconstruct the same keypair")
	}
}

func TestSeedFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acme.crypto-seed")
	seed, err := GenerateSeed()
	if err != nil {
		t.Fatalf("generate seed: %v", err)
	}
	if err := SaveSeedFile(path, seed); err != nil {
		t.Fatalf("save seed file: %v", err)
	}
	recovered, err := SeedFromFile(path)
	if err != nil {
		t.Fatalf("seed from file: %v", err)
	}
	if !bytes.Equal(seed, recovered) {
		t.Fatalf("seed file round trip mismatch")
	}
}
