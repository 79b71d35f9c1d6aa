package keystore

import (
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// ExportMnemonic encodes a raw seed as a BIP-39 mnemonic, giving an
// operator a human-transcribable backup of *.crypto-seed material
// independent of the password-encrypted keypair file.
func ExportMnemonic(seed []byte) (string, error) {
	entropy := seed
	if len(entropy) != 16 && len(entropy) != 20 && len(entropy) != 24 && len(entropy) != 28 && len(entropy) != 32 {
		return "", fmt.Errorf("keystore: seed length %d is not a valid BIP-39 entropy size", len(entropy))
	}
	return bip39.NewMnemonic(entropy)
}

// ImportMnemonic reverses ExportMnemonic, validating checksum words
// before returning the recovered entropy bytes.
func ImportMnemonic(words string) ([]byte, error) {
	words = strings.TrimSpace(words)
	if !bip39.IsMnemonicValid(words) {
		return nil, fmt.Errorf("keystore: invalid mnemonic")
	}
	return bip39.EntropyFromMnemonic(words)
}
