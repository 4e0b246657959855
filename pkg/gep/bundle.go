package gep

import "fmt"

// Bundle is one fully linked triple and the envelope that publishes it.
type Bundle struct {
	TemplateID string
	Category   string
	Gene       Gene
	Capsule    Capsule
	Event      EvolutionEvent
	Envelope   Envelope
}

// IndexEntry summarizes a bundle for the batch index.
type IndexEntry struct {
	ID             string `json:"id"`
	Category       string `json:"category,omitempty"`
	GeneAssetID    string `json:"gene_asset_id"`
	CapsuleAssetID string `json:"capsule_asset_id"`
	EventAssetID   string `json:"event_asset_id"`
}

// Index returns the bundle's index entry.
func (b *Bundle) Index() IndexEntry {
	return IndexEntry{
		ID:             b.TemplateID,
		Category:       b.Category,
		GeneAssetID:    b.Gene.AssetID,
		CapsuleAssetID: b.Capsule.AssetID,
		EventAssetID:   b.Event.AssetID,
	}
}

// Validate checks the linkage between the three records and the envelope.
// Publishers call it before writing so a half-linked triple never leaves the process.
func (b *Bundle) Validate() error {
	for _, a := range []Asset{b.Gene, b.Capsule, b.Event} {
		if !ValidAddress(a.Address()) {
			return fmt.Errorf("%s has invalid asset_id %q", a.Kind(), a.Address())
		}
	}

	if b.Capsule.Gene != b.Gene.AssetID {
		return fmt.Errorf("capsule references gene %s, expected %s", b.Capsule.Gene, b.Gene.AssetID)
	}
	if b.Event.CapsuleID != b.Capsule.AssetID {
		return fmt.Errorf("event references capsule %s, expected %s", b.Event.CapsuleID, b.Capsule.AssetID)
	}
	if len(b.Event.GenesUsed) != 1 || b.Event.GenesUsed[0] != b.Gene.AssetID {
		return fmt.Errorf("event genes_used %v must be exactly [%s]", b.Event.GenesUsed, b.Gene.AssetID)
	}

	assets := b.Envelope.Payload.Assets
	if len(assets) != 3 {
		return fmt.Errorf("envelope carries %d assets, expected 3", len(assets))
	}
	want := []Asset{b.Gene, b.Capsule, b.Event}
	for i, a := range assets {
		if a.Kind() != want[i].Kind() || a.Address() != want[i].Address() {
			return fmt.Errorf("envelope asset %d is %s %s, expected %s %s",
				i, a.Kind(), a.Address(), want[i].Kind(), want[i].Address())
		}
	}
	return nil
}
