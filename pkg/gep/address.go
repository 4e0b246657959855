package gep

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressPrefix names the digest algorithm. Consumers can inspect it to migrate algorithms.
const AddressPrefix = "sha256:"

// addressLength is the prefix plus 64 hex characters.
const addressLength = len(AddressPrefix) + sha256.Size*2

// Address returns the content address of v: the sha256 of its canonical encoding.
// v must not contain its own address; use AddressOf for records that may.
func Address(v any) (string, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return AddressPrefix + hex.EncodeToString(sum[:]), nil
}

// AddressOf computes the address of a record-shaped value, ignoring any asset_id it carries.
// The input map is not modified.
func AddressOf(record map[string]any) (string, error) {
	stripped := make(map[string]any, len(record))
	for k, v := range record {
		if k == "asset_id" {
			continue
		}
		stripped[k] = v
	}
	return Address(stripped)
}

// Verify recomputes a record's address and compares it with the asset_id it carries.
func Verify(record map[string]any) error {
	stored, ok := record["asset_id"].(string)
	if !ok {
		return fmt.Errorf("record has no asset_id")
	}
	if !ValidAddress(stored) {
		return fmt.Errorf("malformed asset_id %q", stored)
	}
	computed, err := AddressOf(record)
	if err != nil {
		return fmt.Errorf("failed to compute address: %w", err)
	}
	if computed != stored {
		return fmt.Errorf("asset_id mismatch: stored %s, computed %s", stored, computed)
	}
	return nil
}

// ValidAddress reports whether s is "sha256:" followed by exactly 64 lowercase hex characters.
func ValidAddress(s string) bool {
	if len(s) != addressLength || !strings.HasPrefix(s, AddressPrefix) {
		return false
	}
	for _, c := range s[len(AddressPrefix):] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// SealGene computes the Gene's address.
func SealGene(d GeneDraft) (Gene, error) {
	id, err := Address(d.Fields())
	if err != nil {
		return Gene{}, fmt.Errorf("failed to address gene: %w", err)
	}
	return Gene{GeneDraft: d, AssetID: id}, nil
}

// SealCapsule computes the Capsule's address. d.Gene must already reference a sealed Gene.
func SealCapsule(d CapsuleDraft) (Capsule, error) {
	if !ValidAddress(d.Gene) {
		return Capsule{}, fmt.Errorf("capsule gene reference %q is not a content address", d.Gene)
	}
	id, err := Address(d.Fields())
	if err != nil {
		return Capsule{}, fmt.Errorf("failed to address capsule: %w", err)
	}
	return Capsule{CapsuleDraft: d, AssetID: id}, nil
}

// SealEvolutionEvent computes the EvolutionEvent's address.
// d.CapsuleID and every entry of d.GenesUsed must already be content addresses.
func SealEvolutionEvent(d EvolutionEventDraft) (EvolutionEvent, error) {
	if !ValidAddress(d.CapsuleID) {
		return EvolutionEvent{}, fmt.Errorf("event capsule reference %q is not a content address", d.CapsuleID)
	}
	for i, g := range d.GenesUsed {
		if !ValidAddress(g) {
			return EvolutionEvent{}, fmt.Errorf("event genes_used[%d] %q is not a content address", i, g)
		}
	}
	id, err := Address(d.Fields())
	if err != nil {
		return EvolutionEvent{}, fmt.Errorf("failed to address evolution event: %w", err)
	}
	return EvolutionEvent{EvolutionEventDraft: d, AssetID: id}, nil
}
