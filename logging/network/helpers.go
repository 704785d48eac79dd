package network

import (
	"context"

	"espnow-arena/node/logging"
)

const (
	// EventPeerReachable is emitted when a ping probe is answered in time.
	EventPeerReachable logging.EventType = "network.peer_reachable"
	// EventPeerUnreachable is emitted when a ping probe times out or cannot be sent.
	EventPeerUnreachable logging.EventType = "network.peer_unreachable"
	// EventSendFailed is emitted when the link refuses an outbound packet.
	EventSendFailed logging.EventType = "network.send_failed"
	// EventAckReceived is emitted when the peer acknowledges a packet.
	EventAckReceived logging.EventType = "network.ack_received"
	// EventInboundDropped is emitted when the inbound queue is saturated.
	EventInboundDropped logging.EventType = "network.inbound_dropped"
)

type ProbePayload struct {
	Nonce         uint32 `json:"nonce,omitempty"`
	TimeoutMillis int64  `json:"timeoutMillis"`
	Reason        string `json:"reason,omitempty"`
}

type SendFailedPayload struct {
	MsgType string `json:"msgType"`
	Seq     uint16 `json:"seq"`
	Bytes   int    `json:"bytes"`
}

type AckPayload struct {
	AckSeq uint16 `json:"ackSeq"`
}

type InboundDroppedPayload struct {
	Bytes    int    `json:"bytes"`
	Capacity int    `json:"capacity"`
	Total    uint64 `json:"total"`
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// PeerReachable publishes a successful probe.
func PeerReachable(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ProbePayload, extra map[string]any) {
	publish(ctx, pub, EventPeerReachable, logging.SeverityInfo, tick, actor, payload, extra)
}

// PeerUnreachable publishes a failed probe.
func PeerUnreachable(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ProbePayload, extra map[string]any) {
	publish(ctx, pub, EventPeerUnreachable, logging.SeverityWarn, tick, actor, payload, extra)
}

// SendFailed publishes a refused outbound packet.
func SendFailed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SendFailedPayload, extra map[string]any) {
	publish(ctx, pub, EventSendFailed, logging.SeverityDebug, tick, actor, payload, extra)
}

// AckReceived publishes a received acknowledgement.
func AckReceived(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload AckPayload, extra map[string]any) {
	publish(ctx, pub, EventAckReceived, logging.SeverityDebug, tick, actor, payload, extra)
}

// InboundDropped publishes a warning when inbound packets are discarded.
func InboundDropped(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload InboundDroppedPayload, extra map[string]any) {
	publish(ctx, pub, EventInboundDropped, logging.SeverityWarn, tick, actor, payload, extra)
}
