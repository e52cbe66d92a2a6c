package topic

import (
	"fmt"
)

// Topic segments shared by nodes and the collector. Changing them breaks
// deployed nodes.
const (
	// SuffixUplink carries socket writes from a node (greeting lines and
	// encoded payload frames).
	// Structure: {root}/uplink/{deviceID}
	SuffixUplink = "uplink"

	// SuffixStatus carries the retained online/offline marker.
	// Structure: {root}/status/{deviceID}
	SuffixStatus = "status"
)

// TopicBuilder constructs topic strings under one root namespace.
type TopicBuilder struct {
	// root is the base namespace for all topics (e.g. "cellink/v1").
	root string
}

// NewTopicBuilder creates a new instance of TopicBuilder with the specified root namespace.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: root}
}

// Uplink returns the topic a node publishes its socket writes to.
// Direction: Node -> Collector
func (b *TopicBuilder) Uplink(deviceID string) string {
	return b.build(SuffixUplink, deviceID)
}

// Status returns the node status topic used for the will message.
func (b *TopicBuilder) Status(deviceID string) string {
	return b.build(SuffixStatus, deviceID)
}

// build produces {root}/{suffix}/{identifier}.
func (b *TopicBuilder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
