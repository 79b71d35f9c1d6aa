// Package codec implements the canonical byte form used for signing and
// persisting licensing records: deterministic field order, no duplicate
// keys, no trailing garbage, binary fields carried as base64.
//
// Go's encoding/json already serializes map[string]any with lexically
// sorted keys, so canonicalization is mostly "marshal a map built the
// normal way" plus a decode-side guard against the one thing the
// standard decoder tolerates that a canonical codec must not: duplicate
// object keys silently overwriting each other.
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ErrDuplicateKey is returned by Decode when an object in the input
// repeats a key; RFC 8259 leaves this case undefined, but a canonical
// codec used for signature verification cannot.
type ErrDuplicateKey struct {
	Key string
}

func (e *ErrDuplicateKey) Error() string {
	return fmt.Sprintf("codec: duplicate key %q", e.Key)
}

// ErrTrailingData is returned when the input contains bytes after the
// single top-level JSON value.
var ErrTrailingData = fmt.Errorf("codec: trailing data after JSON value")

// Encode renders v as canonical bytes: compact, HTML-unescaped, with
// object keys in the order json.Marshal already produces for maps
// (lexical), and no trailing newline.
func Encode(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses data into v (which must be a pointer), first validating
// that it contains exactly one JSON value with no duplicate object keys
// anywhere in its tree.
func Decode(data []byte, v any) error {
	if err := CheckCanonicalShape(data); err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// CheckCanonicalShape walks data token by token, failing on duplicate
// keys within any single object and on trailing bytes after the value.
func CheckCanonicalShape(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := walkValue(dec); err != nil {
		return err
	}
	if dec.More() {
		return ErrTrailingData
	}
	return nil
}

func walkValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return walkObject(dec)
		case '[':
			return walkArray(dec)
		}
	}
	return nil
}

func walkObject(dec *json.Decoder) error {
	seen := make(map[string]struct{})
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("codec: non-string object key %v", keyTok)
		}
		if _, dup := seen[key]; dup {
			return &ErrDuplicateKey{Key: key}
		}
		seen[key] = struct{}{}
		if err := walkValue(dec); err != nil {
			return err
		}
	}
	// consume closing '}'
	_, err := dec.Token()
	return err
}

func walkArray(dec *json.Decoder) error {
	for dec.More() {
		if err := walkValue(dec); err != nil {
			return err
		}
	}
	_, err := dec.Token()
	return err
}

// EncodeBinary returns the unpadded base64 form used for key, signature
// and ciphertext fields in the canonical byte form.
func EncodeBinary(b []byte) string {
	return base64.RawStdEncoding.EncodeToString(b)
}

// DecodeBinary accepts both padded and unpadded standard base64, since
// older producers in the wild emit padding even though this codec never
// does.
func DecodeBinary(s string) ([]byte, error) {
	if b, err := base64.RawStdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.StdEncoding.DecodeString(s)
}
