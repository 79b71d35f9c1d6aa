package keystore

import (
	"encoding/hex"
	"os"
	"strings"
)

// SeedFromFile reads a *.crypto-seed file: 64 hex characters (32 bytes
// of raw Ed25519 seed material), per spec.md §6. Trailing whitespace is
// tolerated since these files are meant to be hand-edited.
func SeedFromFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newErr(CodeIOError, "reading "+path, err)
	}
	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, newErr(CodeCorruptRecord, "decoding seed hex", err)
	}
	if len(seed) != 32 {
		return nil, newErr(CodeCorruptRecord, "seed file must contain 64 hex characters", nil)
	}
	return seed, nil
}

// SaveSeedFile writes seed to path as 64 hex characters, the inverse of
// SeedFromFile. Like Save, it refuses to overwrite an existing file so a
// backup is never silently clobbered.
func SaveSeedFile(path string, seed []byte) error {
	if len(seed) != 32 {
		return newErr(CodeCorruptRecord, "seed must be 32 bytes", nil)
	}
	if _, err := os.Stat(path); err == nil {
		return newErr(CodeFileExists, "refusing to overwrite existing seed file at "+path, nil)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(seed)+"\n"), 0o600); err != nil {
		return newErr(CodeIOError, "writing "+path, err)
	}
	return nil
}
