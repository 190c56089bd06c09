package domain

import (
	"encoding/hex"
	"encoding/json"

	"github.com/zeebo/blake3"
)

// Fingerprint hashes the kind and wire encoding of rec. Two records with
// equal fingerprints are indistinguishable in the audit trail.
func Fingerprint(rec Record) (string, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	h := blake3.New()
	_, _ = h.Write([]byte(rec.Kind()))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}
