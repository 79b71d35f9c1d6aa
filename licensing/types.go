// Package licensing implements the license authority engine: building,
// signing, and recursively verifying cryptographically signed licenses,
// and resolving the effective grant set from a verified dependency tree.
package licensing

import (
	"crypto/ed25519"
	"strings"
	"time"
)

// Author identifies the vendor issuing a license: a DNS-resolvable
// Ed25519 public key plus the human-readable names used to build that
// DNS lookup.
type Author struct {
	Name    string
	Domain  string
	Product string
	Service string
	PubKey  ed25519.PublicKey
}

// ServiceOrDefault returns Service if set, else Slug(Product).
func (a Author) ServiceOrDefault() string {
	if a.Service != "" {
		return a.Service
	}
	return Slug(a.Product)
}

// Slug lower-cases s and collapses runs of non-alphanumeric characters
// to a single dash, matching the author service-name convention used to
// build DKIM record names.
func Slug(s string) string {
	var b strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		switch {
		case isAlnum:
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}

// Client identifies the agent a license is bound to. A License with no
// Client is a bearer license.
type Client struct {
	Name   string
	PubKey ed25519.PublicKey
}

// Grant is a recursive capability mapping: {string -> scalar | Grant}.
// Scalars are represented as any of string, float64, bool.
type Grant map[string]any

// Timespan bounds a license's validity window.
type Timespan struct {
	Start  time.Time
	Length time.Duration
}

// Contains reports whether t falls within [Start, Start+Length).
func (ts Timespan) Contains(t time.Time) bool {
	if ts.Start.IsZero() && ts.Length == 0 {
		return true
	}
	end := ts.Start.Add(ts.Length)
	return !t.Before(ts.Start) && t.Before(end)
}

// Overlap returns the intersection of two timespans, and false if they
// do not overlap. A zero-value Timespan (no Start, no Length) is treated
// as unbounded/perpetual and intersects everything.
func (ts Timespan) Overlap(other Timespan) (Timespan, bool) {
	if ts.IsPerpetual() {
		return other, true
	}
	if other.IsPerpetual() {
		return ts, true
	}
	start := ts.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := ts.Start.Add(ts.Length)
	otherEnd := other.Start.Add(other.Length)
	if otherEnd.Before(end) {
		end = otherEnd
	}
	if !end.After(start) {
		return Timespan{}, false
	}
	return Timespan{Start: start, Length: end.Sub(start)}, true
}

// IsPerpetual reports whether ts represents "no constraint."
func (ts Timespan) IsPerpetual() bool {
	return ts.Start.IsZero() && ts.Length == 0
}

// License is the unsigned license record of spec §3.
type License struct {
	Author       Author
	Client       *Client
	Dependencies []SignedLicense
	Grant        Grant
	Machine      string // UUID string, empty if unbound
	Timespan     Timespan
}

// SignedLicense pairs a License with the author's signature over its
// canonical bytes.
type SignedLicense struct {
	License   License
	Signature []byte
}

// VerifiedLicense is the result of a successful Verify call: the signed
// license plus its already-verified dependency tree, so GrantResolver
// never has to re-walk or re-check anything.
type VerifiedLicense struct {
	Signed       SignedLicense
	Dependencies []*VerifiedLicense
}
