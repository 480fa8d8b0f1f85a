package snapshot

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/genricoloni/glowcard/internal/domain"
)

// Default returns the snapshot reported while no source is connected
func Default(source domain.Source) domain.MediaSnapshot {
	return domain.MediaSnapshot{
		State:      domain.StateStopped,
		RepeatMode: "NONE",
		Source:     source,
		Raw:        map[string]any{},
	}
}

// Parse normalizes payload and decodes it into a snapshot.
// ok is false whenever Normalize rejects the payload.
func Parse(payload any, source domain.Source) (domain.MediaSnapshot, bool) {
	normalized, ok := Normalize(payload)
	if !ok {
		return domain.MediaSnapshot{}, false
	}
	return Decode(normalized, source), true
}

// Decode builds a snapshot from a canonical map. Producers are loose with
// types (numbers as strings, booleans as numbers) so every field is coerced.
func Decode(m map[string]any, source domain.Source) domain.MediaSnapshot {
	return domain.MediaSnapshot{
		State:           domain.PlayerState(asString(m["state"])),
		PlayerName:      asString(m["player_name"]),
		Title:           asString(m["title"]),
		Artist:          asString(m["artist"]),
		Artists:         asStrings(m["artists"]),
		Album:           asString(m["album"]),
		CoverURL:        asString(m["cover_url"]),
		Duration:        asString(m["duration"]),
		DurationSeconds: asFloat(m["duration_seconds"]),
		Position:        asString(m["position"]),
		PositionSeconds: asFloat(m["position_seconds"]),
		PositionPercent: asFloat(m["position_percent"]),
		Volume:          int(math.Round(asFloat(m["volume"]))),
		Rating:          int(math.Round(asFloat(m["rating"]))),
		RepeatMode:      asString(m["repeat_mode"]),
		ShuffleActive:   asBool(m["shuffle_active"]),
		Timestamp:       int64(asFloat(m["timestamp"])),
		Source:          source,
		Raw:             m,
	}
}

// Lookup returns the first present, non-empty value among keys
func Lookup(m map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok && v != nil && v != "" {
			return v, true
		}
	}
	return nil, false
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return ""
	}
}

// AsFloat coerces a loosely typed JSON value to a number, 0 when it is not one
func AsFloat(v any) float64 {
	return asFloat(v)
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0
		}
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0
		}
		return f
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	case float64:
		return t != 0
	default:
		return false
	}
}

// asStrings keeps the non-empty string entries of a JSON array, in order
func asStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := asString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
