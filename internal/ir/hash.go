package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix leaves
// room for a future algorithm change.
const (
	DomainEvent    = "evstore/event/v1"
	DomainRecord   = "evstore/record/v1"
	DomainDocument = "evstore/document/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data). The null separator
// removes ambiguity at the domain/data boundary.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed ID of an event. It covers the name,
// args and seq; the session is deliberately left out so the same logical
// event hashes the same under any writer.
func EventID(name string, args Object, seq uint64) (string, error) {
	if args == nil {
		args = Object{}
	}
	canonical, err := MarshalCanonical(Object{
		"name": String(name),
		"args": args,
		"seq":  Int(int64(seq)),
	})
	if err != nil {
		return "", fmt.Errorf("event id: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// RecordChecksum hashes the full canonical form of a stored event, session
// included. Backends that write raw files use it to detect torn records.
func RecordChecksum(e Event) (string, error) {
	canonical, err := MarshalCanonical(e.Canonical())
	if err != nil {
		return "", fmt.Errorf("record checksum: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}

// DocumentHash fingerprints a materialized document.
func DocumentHash(doc Object) (string, error) {
	if doc == nil {
		doc = Object{}
	}
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("document hash: %w", err)
	}
	return hashWithDomain(DomainDocument, canonical), nil
}
