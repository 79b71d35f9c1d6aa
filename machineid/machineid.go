// Package machineid derives a stable per-host identifier used to bind a
// license to a single machine. It reads a platform-specific machine
// identifier and munges it into the shape of an RFC 4122 version-4 UUID,
// matching the convention the authority's other tooling already expects
// (so a machine ID looks like any other UUID on the wire).
package machineid

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

const (
	linuxMachineIDPath = "/etc/machine-id"
	dbusMachineIDPath  = "/var/lib/dbus/machine-id"
)

// Current returns this host's machine ID as a UUID. It never fails in
// practice: if no platform identifier can be read, it falls back to a
// hash of the hostname so the value is at least stable across calls on
// the same machine.
func Current() (uuid.UUID, error) {
	if raw, ok := readPlatformID(); ok {
		return fromRawMachineID(raw), nil
	}
	return FromBytes(fallbackID()), nil
}

// fromRawMachineID munges 16 raw machine-id bytes directly into an
// RFC 4122 v4-shaped UUID: only bytes 6 and 8 are rewritten to carry the
// version and variant bits a v4 UUID requires, with no hashing step.
// This matches the original tooling's machine_UUIDv4(), which munges
// the decoded /etc/machine-id bytes as-is; hashing them first, as
// FromBytes does for arbitrary-length input, would produce a different
// (and incompatible) identifier for the same host.
func fromRawMachineID(raw [16]byte) uuid.UUID {
	id := uuid.UUID(raw)
	id[6] = (id[6] & 0x0f) | 0x40 // version 4
	id[8] = (id[8] & 0x3f) | 0x80 // RFC 4122 variant
	return id
}

// FromBytes takes arbitrary host-identifying bytes and returns a
// deterministic RFC 4122 v4-shaped UUID: the input is hashed down to 16
// bytes, then bytes 6 and 8 are munged the same way fromRawMachineID
// does. This is the fallback path for identifiers that aren't already
// exactly 16 bytes (a hostname, for instance) — the canonical
// /etc/machine-id path never hashes, see fromRawMachineID.
func FromBytes(raw []byte) uuid.UUID {
	sum := sha256.Sum256(raw)
	var id [16]byte
	copy(id[:], sum[:16])
	return fromRawMachineID(id)
}

// readPlatformID reads /etc/machine-id (or its dbus fallback location)
// and hex-decodes its 32 hex characters into the 16 raw bytes the file
// actually encodes, reporting ok=false if neither path yields a valid
// 16-byte identifier.
func readPlatformID() (raw [16]byte, ok bool) {
	if runtime.GOOS != "linux" {
		return raw, false
	}
	for _, path := range []string{linuxMachineIDPath, dbusMachineIDPath} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		decoded, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil || len(decoded) != 16 {
			continue
		}
		copy(raw[:], decoded)
		return raw, true
	}
	return raw, false
}

func fallbackID() []byte {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown-host"
	}
	return []byte(host)
}
