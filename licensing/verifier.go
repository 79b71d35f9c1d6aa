package licensing

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dominion-rnd/crypto-licensing/dnsresolver"
	"github.com/dominion-rnd/crypto-licensing/internal/telemetry"
)

const maxDependencyDepth = 16

// VerifyOptions parameterizes a single top-level Verify call.
type VerifyOptions struct {
	// Machine is the current host's machine-id; required to pass a
	// license that specifies Machine.
	Machine string
	// Now defaults to time.Now if zero.
	Now time.Time
	// DependenciesOkIfStale allows a previously-verified dependency's
	// canonical bytes to substitute when DNS is transiently unreachable.
	DependenciesOkIfStale bool
}

// Verifier recursively validates signed licenses against DNS-published
// author keys, per spec §4.5. A Verifier owns a per-pass DNS cache
// (fresh for every top-level Verify call) plus a longer-lived cache of
// canonical bytes that verified successfully, used only as a fallback
// when DependenciesOkIfStale is set and DNS is unreachable.
type Verifier struct {
	resolver *dnsresolver.Resolver

	mu        sync.Mutex
	knownGood map[string]struct{} // canonical bytes -> once verified
}

// NewVerifier builds a Verifier around resolver.
func NewVerifier(resolver *dnsresolver.Resolver) *Verifier {
	return &Verifier{resolver: resolver, knownGood: make(map[string]struct{})}
}

// Verify validates signed and its full dependency tree, returning the
// VerifiedLicense tree on success.
func (v *Verifier) Verify(ctx context.Context, signed SignedLicense, opts VerifyOptions) (*VerifiedLicense, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	cache := dnsresolver.NewCache(v.resolver)
	result, err := v.verify(ctx, signed, opts, cache, 0)
	telemetry.VerificationsTotal.WithLabelValues(string(outcomeCode(err))).Inc()
	return result, err
}

func outcomeCode(err error) Code {
	if err == nil {
		return "Accepted"
	}
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Code
	}
	return "Unknown"
}

func (v *Verifier) verify(ctx context.Context, signed SignedLicense, opts VerifyOptions, cache *dnsresolver.Cache, depth int) (*VerifiedLicense, error) {
	select {
	case <-ctx.Done():
		return nil, newErr(CodeCancelled, "verification cancelled", ctx.Err())
	default:
	}

	if depth > maxDependencyDepth {
		return nil, newErr(CodeDependencyTooDeep, fmt.Sprintf("dependency depth exceeds %d", maxDependencyDepth), nil)
	}

	lic := signed.License

	// Step 2: signature.
	canonical, err := CanonicalBytes(lic)
	if err != nil {
		return nil, newErr(CodeCorruptRecord, "re-encoding license for verification", err)
	}
	if len(lic.Author.PubKey) != ed25519.PublicKeySize || !ed25519.Verify(lic.Author.PubKey, canonical, signed.Signature) {
		return nil, newErr(CodeBadSignature, "signature does not verify under author.pubkey", nil)
	}

	// Step 3: authority via DNS.
	authPub, dnsErr := cache.Lookup(ctx, lic.Author.ServiceOrDefault(), lic.Author.Domain)
	switch {
	case dnsErr == nil && !authPub.Equal(lic.Author.PubKey):
		return nil, newErr(CodeNotAuthoritative, "DNS-published key does not match author.pubkey", nil)
	case dnsErr != nil && v.isTransient(dnsErr) && opts.DependenciesOkIfStale && v.isKnownGood(canonical):
		// DNS unreachable, but these exact canonical bytes verified
		// successfully before; the caller opted into that fallback.
	case dnsErr != nil && v.isTransient(dnsErr):
		return nil, newErr(CodeAuthorityUnreachable, "DNS authority lookup failed after retries", dnsErr)
	case errors.Is(dnsErr, dnsresolver.ErrUnsupportedKeyType):
		return nil, newErr(CodeUnsupportedKeyType, "author's DKIM record names an unsupported key type", dnsErr)
	case errors.Is(dnsErr, dnsresolver.ErrMalformedRecord):
		return nil, newErr(CodeMalformedRecord, "author's DKIM record is malformed", dnsErr)
	case dnsErr != nil:
		return nil, newErr(CodeNoRecord, "no DKIM record published for author", dnsErr)
	}

	// Step 4: time window.
	if !lic.Timespan.IsPerpetual() {
		end := lic.Timespan.Start.Add(lic.Timespan.Length)
		switch {
		case opts.Now.Before(lic.Timespan.Start):
			return nil, newErr(CodeNotYetValid, "license is not yet valid", nil)
		case !opts.Now.Before(end):
			return nil, newErr(CodeExpired, "license has expired", nil)
		}
	}

	// Step 5: machine binding.
	if lic.Machine != "" && lic.Machine != opts.Machine {
		return nil, newErr(CodeWrongMachine, "license is bound to a different machine", nil)
	}

	// Step 6: dependencies, depth-first left-to-right, plus the
	// recovered client-binding rule: a bound dependency's client must be
	// this license's author.
	verifiedDeps := make([]*VerifiedLicense, 0, len(lic.Dependencies))
	for _, dep := range lic.Dependencies {
		if dep.License.Client != nil && !dep.License.Client.PubKey.Equal(lic.Author.PubKey) {
			return nil, newErr(CodeClientMismatch, "dependency is bound to a different client", nil)
		}
		verifiedDep, err := v.verify(ctx, dep, opts, cache, depth+1)
		if err != nil {
			return nil, err
		}
		verifiedDeps = append(verifiedDeps, verifiedDep)
	}

	// Step 7: grant refinement. Every non-own grant key must be backed
	// by a dependency offering that service, and any "override" leaf
	// under that key must be permitted (this license itself owns the
	// override, so the check is that the service is indeed reachable —
	// deep leaf-path validation is left to GrantResolver, which is the
	// single place override merging happens per §4.6).
	ownService := lic.Author.ServiceOrDefault()
	reachable := make(map[string]struct{}, len(verifiedDeps))
	for _, d := range verifiedDeps {
		reachable[d.Signed.License.Author.ServiceOrDefault()] = struct{}{}
	}
	for key := range lic.Grant {
		if key == ownService || key == "override" {
			continue
		}
		if _, ok := reachable[key]; !ok {
			return nil, newErr(CodeUnauthorizedRefine, fmt.Sprintf("grant key %q has no backing dependency", key), nil)
		}
	}

	v.markKnownGood(canonical)

	return &VerifiedLicense{Signed: signed, Dependencies: verifiedDeps}, nil
}

// isTransient distinguishes a network-level DNS failure (retried
// internally by dnsresolver, then surfaced as ErrNoRecord) from an
// authoritative answer that is simply wrong or malformed — only the
// former is eligible for the stale-cache fallback.
func (v *Verifier) isTransient(err error) bool {
	return errors.Is(err, dnsresolver.ErrNoRecord)
}

func (v *Verifier) isKnownGood(canonical []byte) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.knownGood[string(canonical)]
	return ok
}

func (v *Verifier) markKnownGood(canonical []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.knownGood[string(canonical)] = struct{}{}
}
