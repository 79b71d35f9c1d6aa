package licensing

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"time"
)

// IssueOptions carries the inputs to Issue beyond author identity and
// grants: the client to bind to (nil for a bearer license), dependency
// licenses this license refines, an optional machine binding, and an
// optional validity window.
type IssueOptions struct {
	Client       *Client
	Dependencies []SignedLicense
	Machine      string
	Timespan     Timespan

	// NoConfirm must be set to issue a bearer license (Client == nil).
	// In the full system an absent Client normally triggers an
	// interactive confirmation prompt from the out-of-scope UI
	// collaborator; the core only enforces that the caller explicitly
	// opted out of that prompt.
	NoConfirm bool

	// VerifyNow and VerifyMachine are passed through to the dependency
	// verification Issue performs as precondition 3. VerifyNow defaults
	// to time.Now when nil, exactly as VerifyOptions.Now does.
	VerifyNow     func() time.Time
	VerifyMachine string
}

// Issue builds and signs a new license per spec §4.4. authorKeypair's
// public key must equal authorInfo.PubKey (precondition 1); grants must
// include the author's own service key (precondition 2); every
// dependency must itself verify (precondition 3); and a bearer license
// requires NoConfirm (precondition 4).
func Issue(ctx context.Context, verifier *Verifier, authorKeypair ed25519.PrivateKey, author Author, grants Grant, opts IssueOptions) (SignedLicense, error) {
	pub, ok := authorKeypair.Public().(ed25519.PublicKey)
	if !ok || !pub.Equal(author.PubKey) {
		return SignedLicense{}, newErr(CodeCorruptRecord, "author keypair does not match author.pubkey", nil)
	}

	ownService := author.ServiceOrDefault()
	if _, ok := grants[ownService]; !ok {
		return SignedLicense{}, newErr(CodeMissingOwnGrant, fmt.Sprintf("grants missing own service key %q", ownService), nil)
	}

	reachable := reachableServices(opts.Dependencies)
	for key := range grants {
		if key == ownService {
			continue
		}
		if _, ok := reachable[key]; !ok {
			return SignedLicense{}, newErr(CodeUnreachableGrantKey, fmt.Sprintf("grant key %q is not the service of any dependency", key), nil)
		}
	}

	if verifier != nil {
		vopts := VerifyOptions{Machine: opts.VerifyMachine}
		if opts.VerifyNow != nil {
			vopts.Now = opts.VerifyNow()
		}
		for i, dep := range opts.Dependencies {
			if _, err := verifier.Verify(ctx, dep, vopts); err != nil {
				return SignedLicense{}, newErr(CodeBadSignature, fmt.Sprintf("dependency %d failed verification", i), err)
			}
		}
	}

	if opts.Client == nil && !opts.NoConfirm {
		return SignedLicense{}, newErr(CodeCorruptRecord, "issuing a bearer license requires NoConfirm", nil)
	}

	if !opts.Timespan.IsPerpetual() {
		for i, dep := range opts.Dependencies {
			if _, ok := opts.Timespan.Overlap(dep.License.Timespan); !ok {
				return SignedLicense{}, newErr(CodeTimespanIncompatible, fmt.Sprintf("timespan does not overlap dependency %d", i), nil)
			}
		}
	}

	lic := License{
		Author:       author,
		Client:       opts.Client,
		Dependencies: opts.Dependencies,
		Grant:        grants,
		Machine:      opts.Machine,
		Timespan:     opts.Timespan,
	}

	canonical, err := CanonicalBytes(lic)
	if err != nil {
		return SignedLicense{}, newErr(CodeCorruptRecord, "encoding license for signing", err)
	}
	signature := ed25519.Sign(authorKeypair, canonical)

	return SignedLicense{License: lic, Signature: signature}, nil
}

func reachableServices(deps []SignedLicense) map[string]struct{} {
	out := make(map[string]struct{})
	var walk func([]SignedLicense)
	walk = func(list []SignedLicense) {
		for _, d := range list {
			out[d.License.Author.ServiceOrDefault()] = struct{}{}
			walk(d.License.Dependencies)
		}
	}
	walk(deps)
	return out
}
