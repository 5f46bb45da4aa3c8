package store

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/vitaminmoo/gattprov/internal/provision"
)

const hashPrefix = "sha256:"

// ContentHash computes a content-addressable hash for a provisioned table.
// The hash only covers the table identity: service UUID and handle, then
// each characteristic's UUID and recorded handles. Statuses, diagnostic
// counters and the device name are left out, so two runs that produce the
// same table land on the same record.
func ContentHash(res provision.Result) (string, error) {
	if len(res.Characteristics) == 0 {
		return "", fmt.Errorf("empty table")
	}
	data := canonical(res)
	hash := sha256.Sum256(data)
	return hashPrefix + hex.EncodeToString(hash[:]), nil
}

// canonical encodes the table as
// service uuid (16) | service handle (2) | { uuid (16) | value (2) | desc (2) }...
// with UUIDs in over-the-air order and handles little-endian.
func canonical(res provision.Result) []byte {
	buf := make([]byte, 0, 18+20*len(res.Characteristics))
	buf = append(buf, res.ServiceUUID[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, res.ServiceHandle)
	for _, c := range res.Characteristics {
		buf = append(buf, c.UUID[:]...)
		buf = binary.LittleEndian.AppendUint16(buf, c.ValueHandle)
		buf = binary.LittleEndian.AppendUint16(buf, c.DescriptorHandle)
	}
	return buf
}

// ShortHash returns a shortened version of the hash for display purposes.
func ShortHash(fullHash string) string {
	// Remove "sha256:" prefix and take first 12 chars
	if len(fullHash) > 19 {
		return fullHash[7:19]
	}
	return fullHash
}

// hashToFilename converts a full hash to a safe filename.
func hashToFilename(hash string) string {
	return strings.TrimPrefix(hash, hashPrefix)
}
