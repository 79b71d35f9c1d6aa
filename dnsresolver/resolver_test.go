package dnsresolver

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"testing"
)

type fakeLookuper struct {
	records map[string][]string
	calls   int
}

func (f *fakeLookuper) LookupTXT(ctx context.Context, name string) ([]string, error) {
	f.calls++
	recs, ok := f.records[name]
	if !ok {
		return nil, errors.New("no such host")
	}
	return recs, nil
}

func TestServiceSlug(t *testing.T) {
	cases := map[string]string{
		"Acme Widgets":   "acme-widgets",
		"acme.widgets":   "acme-widgets",
		"Acme/Widgets_2": "acme-widgets-2",
	}
	for in, want := range cases {
		if got := ServiceSlug(in); got != want {
			t.Fatalf("ServiceSlug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLookupParsesValidRecord(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	b64 := base64.StdEncoding.EncodeToString(pub)
	name := RecordName("acme-widgets", "example.com")
	fake := &fakeLookuper{records: map[string][]string{
		name: {"v=DKIM1; k=ed25519; p=" + b64},
	}}
	r := New(fake, 1000)
	got, err := r.Lookup(context.Background(), "acme-widgets", "example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !got.Equal(pub) {
		t.Fatalf("public key mismatch")
	}
}

func TestLookupRejectsMalformedRecord(t *testing.T) {
	name := RecordName("acme-widgets", "example.com")
	fake := &fakeLookuper{records: map[string][]string{
		name: {"not a dkim record"},
	}}
	r := New(fake, 1000)
	_, err := r.Lookup(context.Background(), "acme-widgets", "example.com")
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestLookupRejectsUnsupportedKeyType(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	name := RecordName("acme-widgets", "example.com")
	fake := &fakeLookuper{records: map[string][]string{
		name: {"v=DKIM1; k=rsa; p=" + base64.StdEncoding.EncodeToString(pub)},
	}}
	r := New(fake, 1000)
	_, err = r.Lookup(context.Background(), "acme-widgets", "example.com")
	if !errors.Is(err, ErrUnsupportedKeyType) {
		t.Fatalf("expected ErrUnsupportedKeyType, got %v", err)
	}
}

func TestLookupNoRecordDoesNotRetryForeverOnPermanentParseFailure(t *testing.T) {
	name := RecordName("acme-widgets", "example.com")
	fake := &fakeLookuper{records: map[string][]string{
		name: {"v=DKIM1; k=ed25519; p=not-valid-base64!!"},
	}}
	r := New(fake, 1000)
	_, err := r.Lookup(context.Background(), "acme-widgets", "example.com")
	if err == nil {
		t.Fatalf("expected error")
	}
	if fake.calls != 1 {
		t.Fatalf("expected a malformed record to short-circuit retry, got %d calls", fake.calls)
	}
}

func TestCacheMemoizesWithinPass(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	name := RecordName("acme-widgets", "example.com")
	fake := &fakeLookuper{records: map[string][]string{
		name: {"v=DKIM1; k=ed25519; p=" + base64.StdEncoding.EncodeToString(pub)},
	}}
	resolver := New(fake, 1000)
	cache := NewCache(resolver)

	if _, err := cache.Lookup(context.Background(), "acme-widgets", "example.com"); err != nil {
		t.Fatalf("first lookup: %v", err)
	}
	if _, err := cache.Lookup(context.Background(), "acme-widgets", "example.com"); err != nil {
		t.Fatalf("second lookup: %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("expected cache to avoid a second network call, got %d calls", fake.calls)
	}
}
