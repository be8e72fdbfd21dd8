package admin

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	maxPreviewLength        = 200
	maxSubjectPreviewLength = 100
	maxJSONKeysInPreview    = 5
)

// Preview summarizes a message body for display. JSON bodies are summarized from well-known
// fields; anything else is truncated text.
func Preview(body string) string {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(body), &doc); err == nil && doc != nil {
		return previewJSON(doc)
	}
	return truncate(body, maxPreviewLength)
}

func previewJSON(doc map[string]interface{}) string {
	if email, ok := doc["email"].(map[string]interface{}); ok {
		from := "unknown"
		if sender, ok := email["from"].(map[string]interface{}); ok {
			if address, ok := sender["address"].(string); ok {
				from = address
			}
		}
		subject := "(no subject)"
		if s, ok := email["subject"].(string); ok {
			subject = s
		}
		return fmt.Sprintf("Email from: %s, Subject: %s", from, subject)
	}

	if msgType, ok := firstString(doc, "messageType", "type", "eventType"); ok {
		if id, ok := firstString(doc, "id", "messageId", "eventId"); ok && id != "" {
			return fmt.Sprintf("Message type: %s, ID: %s", msgType, id)
		}
		return fmt.Sprintf("Message type: %s", msgType)
	}

	if subject, ok := firstString(doc, "subject", "description", "message"); ok {
		return "Subject: " + truncate(subject, maxSubjectPreviewLength)
	}

	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > maxJSONKeysInPreview {
		keys = keys[:maxJSONKeysInPreview]
	}
	return "JSON with keys: " + strings.Join(keys, ", ")
}

// firstString returns the value of the first present key, which must be a string.
func firstString(doc map[string]interface{}, keys ...string) (string, bool) {
	for _, k := range keys {
		v, present := doc[k]
		if !present {
			continue
		}
		s, ok := v.(string)
		return s, ok
	}
	return "", false
}

// truncate shortens s to max runes and appends "..." when it was cut.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
