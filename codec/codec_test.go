package codec

import (
	"errors"
	"testing"
)

func TestEncodeSortsMapKeys(t *testing.T) {
	out, err := Encode(map[string]any{"z": 1, "a": 2, "m": 3})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"a":2,"m":3,"z":1}`
	if string(out) != want {
		t.Fatalf("got %s, want %s", out, want)
	}
}

func TestDecodeRejectsDuplicateKeys(t *testing.T) {
	var out map[string]any
	err := Decode([]byte(`{"a":1,"a":2}`), &out)
	var dup *ErrDuplicateKey
	if !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
	if dup.Key != "a" {
		t.Fatalf("expected duplicate key 'a', got %q", dup.Key)
	}
}

func TestDecodeRejectsDuplicateKeysNested(t *testing.T) {
	var out map[string]any
	err := Decode([]byte(`{"a":{"b":1,"b":2}}`), &out)
	var dup *ErrDuplicateKey
	if !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicateKey for nested object, got %v", err)
	}
}

func TestDecodeRejectsTrailingData(t *testing.T) {
	var out map[string]any
	err := Decode([]byte(`{"a":1} garbage`), &out)
	if !errors.Is(err, ErrTrailingData) {
		t.Fatalf("expected ErrTrailingData, got %v", err)
	}
}

func TestDecodeAcceptsWellFormed(t *testing.T) {
	var out map[string]any
	if err := Decode([]byte(`{"a":1,"b":[1,2,3]}`), &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEncodeBinaryRoundTrip(t *testing.T) {
	original := []byte{0xde, 0xad, 0xbe, 0xef}
	encoded := EncodeBinary(original)
	decoded, err := DecodeBinary(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != string(original) {
		t.Fatalf("round trip mismatch: %x != %x", decoded, original)
	}
}
