// Package discovery walks a configured search path for keypair and
// license files, opens keypairs against a list of credential
// candidates, and verifies whatever license accompanies each keypair.
package discovery

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/dominion-rnd/crypto-licensing/keystore"
	"github.com/dominion-rnd/crypto-licensing/licensing"
)

// Credential is one (username, password) candidate Discovery tries
// against each keypair file it finds.
type Credential struct {
	Username string
	Password string
}

// CredentialsFromEnv builds the single Credential implied by
// CRYPTO_LIC_USERNAME/CRYPTO_LIC_PASSWORD, or nil if either is unset.
func CredentialsFromEnv() []Credential {
	user := os.Getenv("CRYPTO_LIC_USERNAME")
	pass := os.Getenv("CRYPTO_LIC_PASSWORD")
	if user == "" || pass == "" {
		return nil
	}
	return []Credential{{Username: user, Password: pass}}
}

// Found is one result of a Discovery walk: an opened keypair, and its
// accompanying verified license if one was found and verified (nil
// otherwise, so the caller may elect to issue one).
type Found struct {
	Path     string
	Product  string
	Keypair  *keystore.Keypair
	Verified *licensing.VerifiedLicense // nil if no license verified
}

// Walk enumerates *.crypto-keypair files across searchPath (most
// general to most specific, in the order given — deterministic per
// spec §9), opening each against credentials in order and verifying any
// *.crypto-license file found alongside it. When credentials is empty,
// the candidate from CredentialsFromEnv is used instead.
func Walk(ctx context.Context, searchPath []string, credentials []Credential, verifier *licensing.Verifier, opts licensing.VerifyOptions) ([]Found, error) {
	var results []Found
	if len(credentials) == 0 {
		credentials = CredentialsFromEnv()
	}

	for _, dir := range searchPath {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue // an unreadable search-path directory is skipped, not fatal
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.Contains(entry.Name(), ".crypto-keypair") {
				continue
			}
			keypairPath := filepath.Join(dir, entry.Name())
			found, err := tryOpen(ctx, keypairPath, credentials, verifier, opts)
			if err != nil {
				continue // no credential candidate worked; skip, per §4.7
			}
			results = append(results, found)
		}
	}

	return results, nil
}

func tryOpen(ctx context.Context, keypairPath string, credentials []Credential, verifier *licensing.Verifier, opts licensing.VerifyOptions) (Found, error) {
	product, env, err := keystore.Load(keypairPath)
	if err != nil {
		return Found{}, err
	}

	var kp *keystore.Keypair
	for _, cred := range credentials {
		opened, err := keystore.Open(env, product, cred.Username, cred.Password)
		if err == nil {
			kp = opened
			break
		}
	}
	if kp == nil {
		return Found{}, keystore.ErrWrongPassword
	}

	found := Found{Path: keypairPath, Product: product, Keypair: kp}

	licensePath := matchingLicensePath(keypairPath)
	if licensePath == "" {
		return found, nil
	}
	data, err := os.ReadFile(licensePath)
	if err != nil {
		return found, nil
	}
	signed, err := licensing.Decode(data)
	if err != nil {
		return found, nil
	}
	verified, err := verifier.Verify(ctx, signed, opts)
	if err != nil {
		return found, nil
	}
	found.Verified = verified
	return found, nil
}

// matchingLicensePath swaps the .crypto-keypair suffix for
// .crypto-license, the naming convention this authority's tooling uses
// to pair a keypair file with the license issued alongside it.
func matchingLicensePath(keypairPath string) string {
	if !strings.HasSuffix(keypairPath, ".crypto-keypair") {
		return ""
	}
	candidate := strings.TrimSuffix(keypairPath, ".crypto-keypair") + ".crypto-license"
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}
