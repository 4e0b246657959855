// Package gep builds content-addressed asset bundles for the gep-a2a protocol.
//
// # Overview
//
// A bundle is three linked records derived from one reusable template:
//
//   - Gene: a reusable behaviour pattern (signals it matches, validation steps)
//   - Capsule: one concrete application of a Gene, with outcome and environment metadata
//   - EvolutionEvent: the result of evaluating a Capsule
//
// Every record carries an asset_id, its content address:
//
//	"sha256:" + hex(sha256(canonical JSON of the record without asset_id))
//
// Records reference each other by address, so they must be sealed in dependency order:
// Gene first, then the Capsule (which embeds the Gene address), then the EvolutionEvent
// (which embeds both). The sealed triple is wrapped in a publish Envelope.
//
// # Drafts and sealed records
//
// Each record exists in two stages. A draft (GeneDraft, CapsuleDraft, EvolutionEventDraft)
// holds every field except the address. SealGene, SealCapsule and SealEvolutionEvent hash a
// draft and return the sealed record (Gene, Capsule, EvolutionEvent). A sealed record is never
// hashed again, so a stale asset_id can never leak into its own address.
//
// # Usage Example
//
//	b, err := gep.NewBuilder(gep.RunParams{
//		TaskTitle: "demo",
//		NodeID:    "node_local",
//		Env:       gep.LocalEnvironment(),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	bundle, err := b.Build(gep.Template{
//		ID:             "t1",
//		Category:       "optimize",
//		GeneSummary:    "G",
//		CapsuleSummary: "C",
//		SignalsMatch:   []string{"latency_high"},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Println(bundle.Gene.AssetID)    // sha256:...
//	fmt.Println(bundle.Capsule.Gene)    // same value
//
// # Canonical encoding
//
// Canonicalize produces the byte form that is hashed. Map keys are sorted, sequence order is
// kept, and scalars follow the ECMAScript JSON.stringify rules so that addresses match those
// produced by other gep-a2a implementations.
package gep
