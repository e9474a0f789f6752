// Package bridge implements the native side of the New Tab Page messaging
// bridge: string-named JSON messages exchanged between the native core and
// the web contexts rendering the NTP (one context per open window).
//
// Three message kinds cross the wire:
//
//   - request: the front end asks and waits for a response (or a rejection)
//   - notification: fire-and-forget, in either direction
//   - subscription: a named server-push channel the front end listens on
//
// Message names follow the feature_verb convention ("stats_getData",
// "widgets_setConfig"). They are a wire contract with the front end and
// must stay stable across versions.
//
//	reg := bridge.NewRegistry()
//	client.Register(reg)
//	inst := bridge.NewInstance(idgen.New(), conn, reg)
//	go inst.Run(ctx)
//	inst.Push("stats_onDataUpdate", payload)
package bridge

import (
	"encoding/json"
	"fmt"
)

// Name identifies one request, notification, or push-subscription channel.
// Unique within a registry; feature-prefixed ("stats_getData").
type Name string

// Kind classifies a message name. It is advisory metadata used by clients
// declaring their message sets; the wire does not carry it.
type Kind int

const (
	KindRequest      Kind = iota // front end asks, native responds
	KindNotification             // fire-and-forget
	KindSubscription             // native pushes, front end listens
)

// String returns "request", "notification" or "subscription".
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindNotification:
		return "notification"
	default:
		return "subscription"
	}
}

// Envelope is an inbound frame from a web context. A non-empty ID marks a
// request that expects a reply carrying the same ID; an empty ID marks a
// notification.
type Envelope struct {
	ID     string          `json:"id,omitempty"`
	Name   Name            `json:"name"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Reply is an outbound frame answering a request. Exactly one of Result and
// Error is set; an error reply rejects the front end's promise.
type Reply struct {
	ID     string     `json:"id"`
	Result any        `json:"result,omitempty"`
	Error  *WireError `json:"error,omitempty"`
}

// WireError is the error shape sent to the front end on a rejected request.
type WireError struct {
	Message string `json:"message"`
}

// PushFrame is an outbound notification or subscription delivery.
type PushFrame struct {
	Name   Name `json:"name"`
	Params any  `json:"params,omitempty"`
}

// Push pairs a message name with its payload. Feature clients that publish
// server-side changes emit Pushes; the actions manager fans them out to
// every live instance.
type Push struct {
	Name   Name
	Params any
}

// DecodeParams unmarshals request params into a feature-specific type.
// A decode failure surfaces to the front end as a rejected promise.
func DecodeParams[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("bridge: decode params: %w", err)
	}
	return v, nil
}
