package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainHierarchy = "oakvm/hierarchy/v1"
	DomainClass     = "oakvm/class/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ClassHash computes the content hash of a single declaration.
func ClassHash(d ClassDecl) (string, error) {
	canonical, err := MarshalCanonical(d.canonicalMap())
	if err != nil {
		return "", fmt.Errorf("ClassHash: failed to marshal %s: %w", d.Name, err)
	}
	return hashWithDomain(DomainClass, canonical), nil
}

// HierarchyHash computes a stable identity for a compiled hierarchy.
// Declaration order is significant: the same classes in a different
// definition order hash differently.
func HierarchyHash(h *Hierarchy) (string, error) {
	classes := make([]any, len(h.Classes))
	for i, c := range h.Classes {
		classes[i] = c.canonicalMap()
	}
	canonical, err := MarshalCanonical(map[string]any{
		"ir_version": IRVersion,
		"classes":    classes,
	})
	if err != nil {
		return "", fmt.Errorf("HierarchyHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainHierarchy, canonical), nil
}
