package whatsapp

import (
	"encoding/json"
	"strings"
)

// Event is one inbound message, normalized from the provider's webhook
// payload. Providers are inconsistent about field names; parsing accepts
// the common variants and maps them onto this shape.
type Event struct {
	EventType  string
	Type       string
	ID         string
	From       string
	FromMe     bool
	Body       string
	SenderName string
}

// messageIDKeys lists the field names providers use for a message id.
var messageIDKeys = []string{"id", "messageId", "message_id", "msgId", "msg_id", "idMessage", "_id"}

// ParseEvents decodes a webhook payload into events. The payload is
// either a single event object or an envelope with the events under a
// "data", "messages", or "entries" key (a list or a single object); the
// envelope's event type is inherited by entries that lack their own.
func ParseEvents(payload []byte) ([]Event, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil, err
	}

	envelopeType := stringField(root, "event_type")
	if envelopeType == "" {
		envelopeType = stringField(root, "type")
	}

	for _, key := range []string{"data", "messages", "entries"} {
		raw, ok := root[key]
		if !ok {
			continue
		}
		if events := parseEntryList(raw, envelopeType); events != nil {
			return events, nil
		}
	}

	// No envelope: the payload itself is the event. The "type" key is the
	// message type here, not the envelope event type.
	return []Event{parseEntry(root)}, nil
}

func parseEntryList(raw json.RawMessage, envelopeType string) []Event {
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err == nil {
		if len(entries) == 0 {
			return nil
		}
		events := make([]Event, 0, len(entries))
		for _, entry := range entries {
			ev := parseEntry(entry)
			if ev.EventType == "" {
				ev.EventType = envelopeType
			}
			events = append(events, ev)
		}
		return events
	}

	var entry map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entry); err == nil {
		ev := parseEntry(entry)
		if ev.EventType == "" {
			ev.EventType = envelopeType
		}
		return []Event{ev}
	}
	return nil
}

func parseEntry(entry map[string]json.RawMessage) Event {
	ev := Event{
		EventType:  strings.ToLower(stringField(entry, "event_type")),
		Type:       strings.ToLower(stringField(entry, "type")),
		SenderName: firstString(entry, "senderName", "authorName"),
		From:       firstString(entry, "from", "chatId", "author"),
		Body:       strings.TrimSpace(firstString(entry, "body", "text")),
		FromMe:     boolField(entry, "fromMe"),
	}
	ev.ID = firstString(entry, messageIDKeys...)
	return ev
}

func stringField(m map[string]json.RawMessage, key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	// Numeric ids arrive unquoted from some providers.
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func firstString(m map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		if s := stringField(m, key); s != "" {
			return s
		}
	}
	return ""
}

func boolField(m map[string]json.RawMessage, key string) bool {
	raw, ok := m[key]
	if !ok {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.EqualFold(strings.TrimSpace(s), "true")
	}
	return false
}
