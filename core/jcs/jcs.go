package jcs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

const digestPrefix = "sha256:"

// Canonicalize returns the RFC 8785 form of a JSON document. Reports that only
// differ in whitespace or key order canonicalize to the same bytes.
func Canonicalize(input []byte) ([]byte, error) {
	canonical, err := jcs.Transform(input)
	if err != nil {
		return nil, fmt.Errorf("canonicalize json: %w", err)
	}
	return canonical, nil
}

// Digest is the sha256 of the canonical form, rendered as "sha256:<hex>".
func Digest(input []byte) (string, error) {
	canonical, err := Canonicalize(input)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return digestPrefix + hex.EncodeToString(sum[:]), nil
}

// DigestValue encodes an already decoded document and digests it.
func DigestValue(value any) (string, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}
	return Digest(encoded)
}
