package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainSource  = "clprog/source/v1"
	DomainOptions = "clprog/options/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest computes a domain-separated content digest of raw bytes.
func Digest(domain string, data []byte) string {
	return hashWithDomain(domain, data)
}

// DigestValue computes a domain-separated digest of v's canonical JSON.
func DigestValue(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("DigestValue: failed to marshal: %w", err)
	}
	return hashWithDomain(domain, data), nil
}

// SourceDigest identifies a program's source for cache lookups.
// kind distinguishes text from IR so identical bytes never collide.
func SourceDigest(kind string, data []byte) string {
	payload := make([]byte, 0, len(kind)+1+len(data))
	payload = append(payload, kind...)
	payload = append(payload, 0x00)
	payload = append(payload, data...)
	return hashWithDomain(DomainSource, payload)
}
