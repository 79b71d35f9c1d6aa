package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dominion-rnd/crypto-licensing/keystore"
	"github.com/dominion-rnd/crypto-licensing/licensing"
)

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv("CRYPTO_LIC_USERNAME", "alice")
	t.Setenv("CRYPTO_LIC_PASSWORD", "hunter2")
	creds := CredentialsFromEnv()
	if len(creds) != 1 || creds[0].Username != "alice" || creds[0].Password != "hunter2" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
}

func TestCredentialsFromEnvMissing(t *testing.T) {
	t.Setenv("CRYPTO_LIC_USERNAME", "")
	t.Setenv("CRYPTO_LIC_PASSWORD", "")
	if creds := CredentialsFromEnv(); creds != nil {
		t.Fatalf("expected nil credentials when env unset, got %+v", creds)
	}
}

func TestWalkFindsOpenableKeypairWithoutLicense(t *testing.T) {
	dir := t.TempDir()
	_, env, err := keystore.Create("acme-widgets", "alice", "pw", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	path := filepath.Join(dir, "acme.crypto-keypair")
	if err := keystore.Save(path, "acme-widgets", env); err != nil {
		t.Fatalf("save: %v", err)
	}

	found, err := Walk(context.Background(), []string{dir}, []Credential{{Username: "alice", Password: "pw"}}, nil, licensing.VerifyOptions{})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("expected one result, got %d", len(found))
	}
	if found[0].Verified != nil {
		t.Fatalf("expected no verified license, got one")
	}
}

func TestWalkSkipsUnopenableKeypair(t *testing.T) {
	dir := t.TempDir()
	_, env, err := keystore.Create("acme-widgets", "alice", "pw", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	path := filepath.Join(dir, "acme.crypto-keypair")
	if err := keystore.Save(path, "acme-widgets", env); err != nil {
		t.Fatalf("save: %v", err)
	}

	found, err := Walk(context.Background(), []string{dir}, []Credential{{Username: "alice", Password: "wrong"}}, nil, licensing.VerifyOptions{})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected zero results for wrong credentials, got %d", len(found))
	}
}

func TestWalkSkipsUnreadableDirectory(t *testing.T) {
	found, err := Walk(context.Background(), []string{filepath.Join(os.TempDir(), "does-not-exist-xyz")}, nil, nil, licensing.VerifyOptions{})
	if err != nil {
		t.Fatalf("walk should not error on missing directory: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no results, got %d", len(found))
	}
}
