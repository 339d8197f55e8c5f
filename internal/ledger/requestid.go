package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// RequestKey identifies one inbound report request across retries.
type RequestKey struct {
	Platform   string
	UserID     string
	VIN        string
	Language   string
	Options    map[string]string
	RequestKey string
}

// ComputeRequestID returns a deterministic id for idempotent charging.
//
// The id is the first 24 hex chars of sha256 over a canonical JSON
// encoding of the key. RequestKey should be stable for a single inbound
// request (a Telegram message id, a WhatsApp message id) so retries and
// webhook duplicates map to the same id; a genuinely new request must
// carry a different RequestKey so credits are deducted again.
func ComputeRequestID(k RequestKey) string {
	var reqKey *string
	if trimmed := strings.TrimSpace(k.RequestKey); trimmed != "" {
		reqKey = &trimmed
	}
	options := k.Options
	if options == nil {
		options = map[string]string{}
	}
	language := strings.ToLower(strings.TrimSpace(k.Language))
	if language == "" {
		language = "en"
	}

	// json.Marshal sorts map keys, giving a stable byte encoding.
	payload := map[string]any{
		"platform":    strings.ToLower(strings.TrimSpace(k.Platform)),
		"user_id":     k.UserID,
		"vin":         strings.ToUpper(strings.TrimSpace(k.VIN)),
		"language":    language,
		"options":     options,
		"request_key": reqKey,
	}
	packed, err := json.Marshal(payload)
	if err != nil {
		// Only unmarshalable types can fail here; the payload has none.
		panic(err)
	}
	sum := sha256.Sum256(packed)
	return hex.EncodeToString(sum[:])[:24]
}
