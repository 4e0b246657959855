package hub

import "fmt"

// Redis key pattern helpers
//
// All keys and channels are namespaced by node ID so several gep-a2a nodes can share one
// Redis server.
//
// Key pattern: gep:{node_id}:{entity}:{id}
// Channel pattern: gep:{node_id}:{event_type}_events

// AssetKey returns the Redis key for a sealed asset.
// Pattern: gep:{node_id}:asset:{asset_id}
func AssetKey(nodeID, assetID string) string {
	return fmt.Sprintf("gep:%s:asset:%s", nodeID, assetID)
}

// BundleKey returns the Redis key for a bundle's index hash.
// Pattern: gep:{node_id}:bundle:{template_id}
func BundleKey(nodeID, templateID string) string {
	return fmt.Sprintf("gep:%s:bundle:%s", nodeID, templateID)
}

// BundlesKey returns the Redis key for the ZSET of published template IDs, scored by
// publish time in milliseconds.
// Pattern: gep:{node_id}:bundles
func BundlesKey(nodeID string) string {
	return fmt.Sprintf("gep:%s:bundles", nodeID)
}

// PublishEventsChannel returns the Pub/Sub channel carrying publish envelopes.
// Pattern: gep:{node_id}:publish_events
func PublishEventsChannel(nodeID string) string {
	return fmt.Sprintf("gep:%s:publish_events", nodeID)
}
