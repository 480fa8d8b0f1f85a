// Package snapshot turns raw status-feed payloads into canonical media snapshots.
package snapshot

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"
)

// legacyKeys maps keys emitted by pywnp < 2.0.0 (and a few producer variants)
// to the canonical snake_case schema. Matching is exact and case-sensitive.
var legacyKeys = map[string]string{
	"State":           "state",
	"Player":          "player_name",
	"PlayerName":      "player_name",
	"player":          "player_name",
	"Title":           "title",
	"Artist":          "artist",
	"Album":           "album",
	"CoverUrl":        "cover_url",
	"Duration":        "duration",
	"DurationSeconds": "duration_seconds",
	"Position":        "position",
	"PositionSeconds": "position_seconds",
	"PositionPercent": "position_percent",
	"Volume":          "volume",
	"Rating":          "rating",
	"RepeatState":     "repeat_mode",
	"Shuffle":         "shuffle_active",
	"ShuffleActive":   "shuffle_active",
	"Timestamp":       "timestamp",
}

// CanonicalKey returns the canonical name for key, or key itself when it has no alias
func CanonicalKey(key string) string {
	if mapped, ok := legacyKeys[key]; ok {
		return mapped
	}
	return key
}

// Normalize rewrites every key of payload through the legacy alias table.
//
// payload may be JSON text (string, []byte, json.RawMessage) or an already
// decoded map[string]any. The result is a new map; the input is not modified.
// ok is false when payload is nil, is not valid JSON, or is not a JSON object.
//
// When two keys collapse onto the same canonical name, the one appearing last
// in the JSON text wins. Decoded maps carry no order, so there keys are
// visited in sorted order and an exact canonical key beats its aliases.
func Normalize(payload any) (map[string]any, bool) {
	switch p := payload.(type) {
	case nil:
		return nil, false
	case string:
		return normalizeJSON([]byte(p))
	case []byte:
		if p == nil {
			return nil, false
		}
		return normalizeJSON(p)
	case json.RawMessage:
		if p == nil {
			return nil, false
		}
		return normalizeJSON(p)
	case map[string]any:
		if p == nil {
			return nil, false
		}
		return normalizeMap(p), true
	default:
		return nil, false
	}
}

func normalizeMap(data map[string]any) map[string]any {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	normalized := make(map[string]any, len(data))
	// aliases first so an exact canonical key overwrites them
	for _, key := range keys {
		if _, ok := legacyKeys[key]; ok {
			normalized[legacyKeys[key]] = data[key]
		}
	}
	for _, key := range keys {
		if _, ok := legacyKeys[key]; !ok {
			normalized[key] = data[key]
		}
	}
	return normalized
}

// normalizeJSON walks the top-level object token by token so that key order
// is preserved while rewriting.
func normalizeJSON(data []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, false
	}

	normalized := make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, false
		}
		key, ok := tok.(string)
		if !ok {
			return nil, false
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, false
		}
		normalized[CanonicalKey(key)] = value
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, false
	}
	// trailing data after the object is not valid JSON
	if _, err := dec.Token(); err != io.EOF {
		return nil, false
	}
	return normalized, true
}
