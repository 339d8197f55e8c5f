package whatsapp

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseEvents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
		want    []Event
	}{
		{
			name: "envelope with data list",
			payload: `{
				"event_type": "message_received",
				"data": [
					{"id": "m1", "from": "155@c.us", "type": "chat", "body": "hello", "fromMe": false}
				]
			}`,
			want: []Event{{
				EventType: "message_received",
				Type:      "chat",
				ID:        "m1",
				From:      "155@c.us",
				Body:      "hello",
			}},
		},
		{
			name:    "envelope with single data object",
			payload: `{"event_type": "message_received", "data": {"id": "m2", "from": "155@c.us", "body": "hi"}}`,
			want: []Event{{
				EventType: "message_received",
				ID:        "m2",
				From:      "155@c.us",
				Body:      "hi",
			}},
		},
		{
			name:    "bare event without envelope",
			payload: `{"id": "m3", "from": "155@c.us", "type": "chat", "body": " spaced "}`,
			want: []Event{{
				Type: "chat",
				ID:   "m3",
				From: "155@c.us",
				Body: "spaced",
			}},
		},
		{
			name:    "alternate field names",
			payload: `{"messageId": "m4", "chatId": "166@c.us", "text": "vin please", "fromMe": "true"}`,
			want: []Event{{
				ID:     "m4",
				From:   "166@c.us",
				Body:   "vin please",
				FromMe: true,
			}},
		},
		{
			name:    "numeric message id",
			payload: `{"id": 12345, "from": "155@c.us", "body": "x"}`,
			want: []Event{{
				ID:   "12345",
				From: "155@c.us",
				Body: "x",
			}},
		},
		{
			name: "multiple entries inherit envelope type",
			payload: `{
				"type": "message_received",
				"messages": [
					{"id": "a", "from": "1@c.us", "body": "one"},
					{"id": "b", "from": "2@c.us", "body": "two", "event_type": "message_ack"}
				]
			}`,
			want: []Event{
				{EventType: "message_received", ID: "a", From: "1@c.us", Body: "one"},
				{EventType: "message_ack", ID: "b", From: "2@c.us", Body: "two"},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseEvents([]byte(tt.payload))
			if err != nil {
				t.Fatalf("ParseEvents: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("events mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseEventsRejectsInvalidJSON(t *testing.T) {
	t.Parallel()

	if _, err := ParseEvents([]byte("{nope")); err == nil {
		t.Error("invalid JSON accepted")
	}
}
