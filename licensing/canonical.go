package licensing

import (
	"fmt"
	"time"

	"github.com/dominion-rnd/crypto-licensing/codec"
)

// CanonicalBytes produces the exact byte sequence that is signed and
// verified for a License: a canonical map built field by field (so
// absent optional fields are omitted rather than encoded as null),
// rendered through codec.Encode.
func CanonicalBytes(l License) ([]byte, error) {
	m, err := toMap(l)
	if err != nil {
		return nil, err
	}
	return codec.Encode(m)
}

func toMap(l License) (map[string]any, error) {
	author := map[string]any{
		"name":    l.Author.Name,
		"domain":  l.Author.Domain,
		"product": l.Author.Product,
		"service": l.Author.ServiceOrDefault(),
		"pubkey":  codec.EncodeBinary(l.Author.PubKey),
	}

	out := map[string]any{
		"author": author,
		"grant":  grantToMap(l.Grant),
	}

	if l.Client != nil {
		out["client"] = map[string]any{
			"name":   l.Client.Name,
			"pubkey": codec.EncodeBinary(l.Client.PubKey),
		}
	}

	if len(l.Dependencies) > 0 {
		deps := make([]any, 0, len(l.Dependencies))
		for _, dep := range l.Dependencies {
			depMap, err := signedToMap(dep)
			if err != nil {
				return nil, err
			}
			deps = append(deps, depMap)
		}
		out["dependencies"] = deps
	}

	if l.Machine != "" {
		out["machine"] = l.Machine
	}

	if !l.Timespan.IsPerpetual() {
		out["timespan"] = map[string]any{
			"start":  l.Timespan.Start.UTC().Format(time.RFC3339),
			"length": l.Timespan.Length.Seconds(),
		}
	}

	return out, nil
}

func signedToMap(s SignedLicense) (map[string]any, error) {
	licMap, err := toMap(s.License)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"license":   licMap,
		"signature": codec.EncodeBinary(s.Signature),
	}, nil
}

// grantToMap converts Grant values recursively so nested Grants encode
// the same way as the top level.
func grantToMap(g Grant) map[string]any {
	out := make(map[string]any, len(g))
	for k, v := range g {
		if nested, ok := v.(Grant); ok {
			out[k] = grantToMap(nested)
		} else {
			out[k] = v
		}
	}
	return out
}

// Encode renders a SignedLicense as the *.crypto-license wire bytes.
func Encode(s SignedLicense) ([]byte, error) {
	m, err := signedToMap(s)
	if err != nil {
		return nil, err
	}
	return codec.Encode(m)
}

// Decode parses *.crypto-license wire bytes into a SignedLicense,
// rejecting duplicate keys and trailing data via the codec package.
func Decode(data []byte) (SignedLicense, error) {
	var raw map[string]any
	if err := codec.Decode(data, &raw); err != nil {
		return SignedLicense{}, newErr(CodeCorruptRecord, "decoding signed license", err)
	}
	return signedFromRaw(raw)
}

func signedFromRaw(raw map[string]any) (SignedLicense, error) {
	licRaw, ok := raw["license"].(map[string]any)
	if !ok {
		return SignedLicense{}, newErr(CodeCorruptRecord, "missing license field", nil)
	}
	sigStr, ok := raw["signature"].(string)
	if !ok {
		return SignedLicense{}, newErr(CodeCorruptRecord, "missing signature field", nil)
	}
	sig, err := codec.DecodeBinary(sigStr)
	if err != nil {
		return SignedLicense{}, newErr(CodeCorruptRecord, "decoding signature", err)
	}
	lic, err := licenseFromRaw(licRaw)
	if err != nil {
		return SignedLicense{}, err
	}
	return SignedLicense{License: lic, Signature: sig}, nil
}

func licenseFromRaw(raw map[string]any) (License, error) {
	authorRaw, ok := raw["author"].(map[string]any)
	if !ok {
		return License{}, newErr(CodeCorruptRecord, "missing author field", nil)
	}
	author, err := authorFromRaw(authorRaw)
	if err != nil {
		return License{}, err
	}

	grantRaw, ok := raw["grant"].(map[string]any)
	if !ok {
		return License{}, newErr(CodeCorruptRecord, "missing grant field", nil)
	}

	lic := License{
		Author: author,
		Grant:  grantFromRaw(grantRaw),
	}

	if clientRaw, ok := raw["client"].(map[string]any); ok {
		client, err := clientFromRaw(clientRaw)
		if err != nil {
			return License{}, err
		}
		lic.Client = &client
	}

	if depsRaw, ok := raw["dependencies"].([]any); ok {
		for _, depAny := range depsRaw {
			depRaw, ok := depAny.(map[string]any)
			if !ok {
				return License{}, newErr(CodeCorruptRecord, "malformed dependency entry", nil)
			}
			dep, err := signedFromRaw(depRaw)
			if err != nil {
				return License{}, err
			}
			lic.Dependencies = append(lic.Dependencies, dep)
		}
	}

	if machine, ok := raw["machine"].(string); ok {
		lic.Machine = machine
	}

	if tsRaw, ok := raw["timespan"].(map[string]any); ok {
		ts, err := timespanFromRaw(tsRaw)
		if err != nil {
			return License{}, err
		}
		lic.Timespan = ts
	}

	return lic, nil
}

func authorFromRaw(raw map[string]any) (Author, error) {
	pubkeyStr, _ := raw["pubkey"].(string)
	pub, err := codec.DecodeBinary(pubkeyStr)
	if err != nil {
		return Author{}, newErr(CodeCorruptRecord, "decoding author pubkey", err)
	}
	return Author{
		Name:    asString(raw["name"]),
		Domain:  asString(raw["domain"]),
		Product: asString(raw["product"]),
		Service: asString(raw["service"]),
		PubKey:  pub,
	}, nil
}

func clientFromRaw(raw map[string]any) (Client, error) {
	pubkeyStr, _ := raw["pubkey"].(string)
	pub, err := codec.DecodeBinary(pubkeyStr)
	if err != nil {
		return Client{}, newErr(CodeCorruptRecord, "decoding client pubkey", err)
	}
	return Client{Name: asString(raw["name"]), PubKey: pub}, nil
}

func grantFromRaw(raw map[string]any) Grant {
	out := make(Grant, len(raw))
	for k, v := range raw {
		if nested, ok := v.(map[string]any); ok {
			out[k] = grantFromRaw(nested)
		} else {
			out[k] = v
		}
	}
	return out
}

func timespanFromRaw(raw map[string]any) (Timespan, error) {
	startStr := asString(raw["start"])
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return Timespan{}, newErr(CodeCorruptRecord, "parsing timespan start", err)
	}
	seconds, ok := raw["length"].(float64)
	if !ok {
		return Timespan{}, newErr(CodeCorruptRecord, fmt.Sprintf("timespan length is %T, want number", raw["length"]), nil)
	}
	return Timespan{Start: start, Length: time.Duration(seconds * float64(time.Second))}, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
