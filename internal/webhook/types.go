package webhook

import (
	"time"
)

type EventType string

const (
	EventConnectionConnecting   EventType = "connection.connecting"
	EventConnectionOpen         EventType = "connection.open"
	EventConnectionDisconnected EventType = "connection.disconnected"
	EventConnectionLoggedOut    EventType = "connection.logged_out"
	EventPairingIssued          EventType = "pairing.issued"
	EventPairingBound           EventType = "pairing.bound"
)

// Target is one receiver of webhook events. An empty Events list subscribes to everything.
type Target struct {
	URL    string
	Secret string
	Events []EventType
}

type WebhookEvent struct {
	EventType EventType              `json:"event_type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

type Stats struct {
	Targets   int   `json:"targets"`
	Queued    int   `json:"queued"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}
