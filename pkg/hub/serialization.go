package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dyluth/microbundle/pkg/gep"
)

// Serialization helpers for converting between gep records and Redis hashes
//
// Redis stores data as string-to-string maps. Identity fields (asset_id, type, id,
// schema_version) are kept as individual hash fields for inspection with redis-cli; the full
// record is JSON-encoded into the "body" field so it can be re-verified byte for byte.

// AssetToHash converts a sealed asset to a Redis hash.
func AssetToHash(a gep.Asset) (map[string]interface{}, error) {
	body, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", a.Kind(), err)
	}

	var id, schemaVersion string
	switch rec := a.(type) {
	case gep.Gene:
		id, schemaVersion = rec.ID, rec.SchemaVersion
	case gep.Capsule:
		id, schemaVersion = rec.ID, rec.SchemaVersion
	case gep.EvolutionEvent:
		id, schemaVersion = rec.ID, rec.SchemaVersion
	default:
		return nil, fmt.Errorf("unsupported asset type %T", a)
	}

	hash := map[string]interface{}{
		"asset_id":       a.Address(),
		"type":           string(a.Kind()),
		"id":             id,
		"schema_version": schemaVersion,
		"body":           string(body),
	}

	return hash, nil
}

// HashToRecord converts a Redis asset hash back to a generic record.
// Numbers are decoded as json.Number so the record re-hashes to the same address.
// Returns an error if the body's asset_id disagrees with the hash field.
func HashToRecord(hash map[string]string) (map[string]any, error) {
	body := hash["body"]
	if body == "" {
		return nil, fmt.Errorf("asset hash has no body")
	}

	var record map[string]any
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal asset body: %w", err)
	}

	if stored, _ := record["asset_id"].(string); stored != hash["asset_id"] {
		return nil, fmt.Errorf("asset body id %q does not match hash field %q", stored, hash["asset_id"])
	}

	return record, nil
}

// BundleIndex is the stored summary of a published bundle.
type BundleIndex struct {
	gep.IndexEntry
	MessageID     string `json:"message_id"`
	PublishedAtMs int64  `json:"published_at_ms"`
}

// BundleIndexToHash converts a BundleIndex to a Redis hash.
func BundleIndexToHash(idx *BundleIndex) map[string]interface{} {
	return map[string]interface{}{
		"template_id":      idx.ID,
		"category":         idx.Category,
		"gene_asset_id":    idx.GeneAssetID,
		"capsule_asset_id": idx.CapsuleAssetID,
		"event_asset_id":   idx.EventAssetID,
		"message_id":       idx.MessageID,
		"published_at_ms":  idx.PublishedAtMs,
	}
}

// HashToBundleIndex converts a Redis hash to a BundleIndex.
func HashToBundleIndex(hash map[string]string) (*BundleIndex, error) {
	publishedAtMs, err := strconv.ParseInt(hash["published_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid published_at_ms field: %w", err)
	}

	return &BundleIndex{
		IndexEntry: gep.IndexEntry{
			ID:             hash["template_id"],
			Category:       hash["category"],
			GeneAssetID:    hash["gene_asset_id"],
			CapsuleAssetID: hash["capsule_asset_id"],
			EventAssetID:   hash["event_asset_id"],
		},
		MessageID:     hash["message_id"],
		PublishedAtMs: publishedAtMs,
	}, nil
}
