package gep

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimestampLayout is the ISO-8601 form used in envelopes (UTC, millisecond precision).
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Envelope is a gep-a2a publish request carrying one bundle.
type Envelope struct {
	Protocol        string  `json:"protocol"`
	ProtocolVersion string  `json:"protocol_version"`
	MessageType     string  `json:"message_type"`
	MessageID       string  `json:"message_id"`
	SenderID        string  `json:"sender_id"`
	Timestamp       string  `json:"timestamp"`
	Payload         Payload `json:"payload"`
}

// Payload holds the assets of an envelope.
// Order is Gene, Capsule, EvolutionEvent; consumers index references by first appearance.
type Payload struct {
	Assets []Asset `json:"assets"`
}

// NewEnvelope wraps a sealed triple. It performs no I/O.
func NewEnvelope(gene Gene, capsule Capsule, event EvolutionEvent, senderID string, now time.Time, messageID string) Envelope {
	return Envelope{
		Protocol:        Protocol,
		ProtocolVersion: ProtocolVersion,
		MessageType:     MessageTypePublish,
		MessageID:       messageID,
		SenderID:        senderID,
		Timestamp:       FormatTimestamp(now),
		Payload: Payload{
			Assets: []Asset{gene, capsule, event},
		},
	}
}

// NewMessageID returns "msg_<unix ms>_<8 hex chars>".
// The random suffix keeps ids unique when several envelopes share a millisecond.
func NewMessageID(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("msg_%d_%s", now.UnixMilli(), random[:8])
}

// FormatTimestamp renders t in UTC with millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
