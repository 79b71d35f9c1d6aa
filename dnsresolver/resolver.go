// Package dnsresolver looks up an author's published Ed25519 public key
// via a DKIM-style DNS TXT record and caches the result for the lifetime
// of a single verification pass.
package dnsresolver

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	dkimZone = "crypto-licensing._domainkey"
)

var (
	// ErrNoRecord is returned when the TXT lookup at the expected DKIM
	// path still fails after all retries, whether because no record is
	// published there or because DNS could not be reached.
	ErrNoRecord = errors.New("dnsresolver: no DKIM TXT record found")
	// ErrMalformedRecord is returned when a TXT record exists but does
	// not parse as "v=DKIM1; k=ed25519; p=<base64>".
	ErrMalformedRecord = errors.New("dnsresolver: malformed DKIM record")
	// ErrUnsupportedKeyType is returned when a TXT record parses fine but
	// names a key algorithm other than ed25519 in its "k=" field — a
	// well-formed record this resolver simply cannot authenticate
	// against, distinct from one that fails to parse at all.
	ErrUnsupportedKeyType = errors.New("dnsresolver: unsupported DKIM key type")
)

// Lookuper is the seam tests substitute to avoid real network lookups;
// net.Resolver.LookupTXT satisfies it.
type Lookuper interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Resolver performs DKIM-style author-key lookups with bounded retry and
// outbound rate limiting. The zero value is not usable; use New.
type Resolver struct {
	lookup  Lookuper
	limiter *rate.Limiter
}

// New builds a Resolver around the given Lookuper (pass nil to use
// net.DefaultResolver), rate limited to qps lookups per second.
func New(lookup Lookuper, qps float64) *Resolver {
	if lookup == nil {
		lookup = net.DefaultResolver
	}
	if qps <= 0 {
		qps = 5
	}
	return &Resolver{lookup: lookup, limiter: rate.NewLimiter(rate.Limit(qps), 1)}
}

// ServiceSlug reproduces the authority's domainkey_service() convention:
// lower-case the product name, translate spaces/dots/slashes to dashes.
func ServiceSlug(product string) string {
	slug := strings.ToLower(strings.TrimSpace(product))
	replacer := strings.NewReplacer(" ", "-", ".", "-", "/", "-", "_", "-")
	return replacer.Replace(slug)
}

// RecordName builds the fully-qualified DKIM TXT record name for a
// service name under a domain, e.g.
// "acme-widgets.crypto-licensing._domainkey.example.com.".
func RecordName(service, domain string) string {
	return fmt.Sprintf("%s.%s.%s.", service, dkimZone, strings.TrimSuffix(domain, "."))
}

// Lookup fetches and parses the author public key published for
// service.domain, retrying up to three times with 200ms/800ms/3.2s
// backoff before giving up.
func (r *Resolver) Lookup(ctx context.Context, service, domain string) (ed25519.PublicKey, error) {
	name := RecordName(service, domain)

	var pub ed25519.PublicKey
	var permErr error
	policy := backoff.WithContext(fixedIntervals(200*time.Millisecond, 800*time.Millisecond, 3200*time.Millisecond), ctx)

	err := backoff.Retry(func() error {
		if err := r.limiter.Wait(ctx); err != nil {
			permErr = err
			return backoff.Permanent(err)
		}
		records, err := r.lookup.LookupTXT(ctx, name)
		if err != nil {
			return err
		}
		key, err := parseDKIMRecords(records)
		if err != nil {
			permErr = err
			return backoff.Permanent(err)
		}
		pub = key
		return nil
	}, policy)
	if err != nil {
		if permErr != nil {
			return nil, permErr
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrNoRecord, name, err)
	}
	return pub, nil
}

// parseDKIMRecords joins possibly-split TXT record strings (DNS limits
// a single TXT string to 255 bytes; resolvers split longer records into
// adjacent chunks which must be concatenated before parsing) and
// extracts the base64 Ed25519 public key from "v=DKIM1; k=ed25519; p=...".
func parseDKIMRecords(records []string) (ed25519.PublicKey, error) {
	joined := strings.Join(records, "")
	var pubB64 string
	found := false
	for _, field := range strings.Split(joined, ";") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		parts := strings.SplitN(field, "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch strings.TrimSpace(parts[0]) {
		case "v":
			if strings.TrimSpace(parts[1]) != "DKIM1" {
				return nil, ErrMalformedRecord
			}
		case "k":
			if strings.TrimSpace(parts[1]) != "ed25519" {
				return nil, ErrUnsupportedKeyType
			}
		case "p":
			pubB64 = strings.TrimSpace(parts[1])
			found = true
		}
	}
	if !found {
		return nil, ErrMalformedRecord
	}
	key, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		key, err = base64.RawStdEncoding.DecodeString(pubB64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
		}
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, ErrMalformedRecord
	}
	return ed25519.PublicKey(key), nil
}

// fixedIntervals returns a backoff.BackOff that yields exactly the given
// intervals in order, then stops.
func fixedIntervals(durations ...time.Duration) backoff.BackOff {
	return &fixedSequence{durations: durations}
}

type fixedSequence struct {
	durations []time.Duration
	i         int
}

func (f *fixedSequence) NextBackOff() time.Duration {
	if f.i >= len(f.durations) {
		return backoff.Stop
	}
	d := f.durations[f.i]
	f.i++
	return d
}

func (f *fixedSequence) Reset() { f.i = 0 }
