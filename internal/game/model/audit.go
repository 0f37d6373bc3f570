package model

import (
	"fmt"
	"time"
)

// AuditEntry is one immutable record of an atomic operation.
type AuditEntry struct {
	Seq        int            `json:"seq"`
	MatchID    string         `json:"match_id"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	Payload    map[string]any `json:"payload"`
	RandomSeed string         `json:"random_seed,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// String renders a compact one-line form for logs.
func (e AuditEntry) String() string {
	if e.RandomSeed != "" {
		return fmt.Sprintf("#%d %s %s seed=%s", e.Seq, e.Actor, e.Action, e.RandomSeed)
	}
	return fmt.Sprintf("#%d %s %s", e.Seq, e.Actor, e.Action)
}

// PayloadString reads a string payload field.
func (e AuditEntry) PayloadString(key string) string {
	if v, ok := e.Payload[key].(string); ok {
		return v
	}
	return ""
}

// PayloadInt reads an integer payload field. JSON and gob round trips may
// yield float64 or int64, so every numeric form is accepted.
func (e AuditEntry) PayloadInt(key string) int {
	switch v := e.Payload[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	case float32:
		return int(v)
	}
	return 0
}

// PayloadBool reads a boolean payload field.
func (e AuditEntry) PayloadBool(key string) bool {
	v, _ := e.Payload[key].(bool)
	return v
}

// PayloadStrings reads a string list payload field.
func (e AuditEntry) PayloadStrings(key string) []string {
	switch v := e.Payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
