package logging

import (
	"context"
	"time"
)

type EventType string

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

type EntityKind string

const (
	EntityKindUnknown EntityKind = "unknown"
	EntityKindPlayer  EntityKind = "player"
	EntityKindBomb    EntityKind = "bomb"
	EntityKindTile    EntityKind = "tile"
	EntityKindPeer    EntityKind = "peer"
	EntityKindNode    EntityKind = "node"
)

// Event is one structured log record. Tick is the node's main-loop tick.
type Event struct {
	Type     EventType      `json:"type"`
	Tick     uint64         `json:"tick"`
	Time     time.Time      `json:"time"`
	Actor    EntityRef      `json:"actor"`
	Targets  []EntityRef    `json:"targets,omitempty"`
	Severity Severity       `json:"severity"`
	Category string         `json:"category,omitempty"`
	Payload  any            `json:"payload,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
	TraceID  string         `json:"traceId,omitempty"`
}

type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

const (
	CategoryMatch     = "match"
	CategoryNetwork   = "network"
	CategoryLifecycle = "lifecycle"
)

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

func NopPublisher() Publisher {
	return nopPublisher{}
}

// WithFields wraps p so every event carries fields in Extra, without
// overriding keys the event already sets.
func WithFields(p Publisher, fields map[string]any) Publisher {
	if p == nil {
		return NopPublisher()
	}
	if len(fields) == 0 {
		return p
	}
	copied := make(map[string]any, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &fieldPublisher{next: p, fields: copied}
}

// WithTrace wraps p so every event without a trace id gets traceID.
func WithTrace(p Publisher, traceID string) Publisher {
	if p == nil {
		return NopPublisher()
	}
	return PublisherFunc(func(ctx context.Context, event Event) {
		if event.TraceID == "" {
			event.TraceID = traceID
		}
		p.Publish(ctx, event)
	})
}

type fieldPublisher struct {
	next   Publisher
	fields map[string]any
}

func (p *fieldPublisher) Publish(ctx context.Context, event Event) {
	p.next.Publish(ctx, mergeFields(event, p.fields))
}

func mergeFields(event Event, fields map[string]any) Event {
	if len(fields) == 0 {
		return event
	}
	event = cloneEvent(event)
	if event.Extra == nil {
		event.Extra = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		if _, exists := event.Extra[k]; !exists {
			event.Extra[k] = v
		}
	}
	return event
}

func cloneEvent(event Event) Event {
	cloned := event
	if len(event.Targets) > 0 {
		cloned.Targets = append([]EntityRef(nil), event.Targets...)
	}
	if event.Extra != nil {
		copied := make(map[string]any, len(event.Extra))
		for k, v := range event.Extra {
			copied[k] = v
		}
		cloned.Extra = copied
	}
	return cloned
}

func (e Event) WithExtra(key string, value any) Event {
	if e.Extra == nil {
		e.Extra = make(map[string]any, 1)
	}
	e.Extra[key] = value
	return e
}
