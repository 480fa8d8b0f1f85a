package tuna

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/genricoloni/glowcard/internal/domain"
	"github.com/genricoloni/glowcard/internal/snapshot"
)

const (
	defaultPlayerName = "Tuna"
	// numeric times above this are milliseconds
	millisThreshold = 10000
)

// Normalize converts a Tuna payload into a snapshot. Payloads without a
// title are rejected.
func Normalize(payload map[string]any) (domain.MediaSnapshot, bool) {
	title := strings.TrimSpace(str(payload["title"]))
	if title == "" {
		return domain.MediaSnapshot{}, false
	}

	var artists []string
	if list, ok := payload["artists"].([]any); ok {
		for _, item := range list {
			if a := strings.TrimSpace(str(item)); a != "" {
				artists = append(artists, a)
			}
		}
	}
	artist := strings.Join(artists, ", ")
	if len(artists) == 0 {
		artist = strings.TrimSpace(str(payload["artist"]))
		if artist != "" {
			artists = []string{artist}
		}
	}

	duration := ParseSeconds(payload["duration"])
	if duration == 0 {
		duration = ParseSeconds(payload["duration_ms"])
	}
	position := ParseSeconds(payload["progress"])
	if position == 0 {
		position = ParseSeconds(payload["position"])
	}

	player := defaultPlayerName
	if v, ok := payload["player"]; ok && v != nil {
		player = str(v)
	}

	status, _ := snapshot.Lookup(payload, "status", "state")
	trackURL, _ := snapshot.Lookup(payload, "url", "track_url")
	cover, _ := snapshot.Lookup(payload, "cover_url", "cover")

	s := domain.MediaSnapshot{
		State:      domain.PlayerState(strings.ToUpper(str(status))),
		PlayerName: player,
		Title:      title,
		Artist:     artist,
		Artists:    artists,
		Album:      str(payload["album"]),
		CoverURL:   NormalizeCoverURL(str(cover)),
		RepeatMode: "NONE",
		Source:     domain.SourceTuna,
		Raw: map[string]any{
			"track_url": str(trackURL),
		},
	}
	setProgress(&s, duration, position)
	return s, true
}

// setProgress fills the duration and position fields from seconds
func setProgress(s *domain.MediaSnapshot, duration, position float64) {
	s.DurationSeconds = duration
	s.Duration = formatMMSS(duration)
	s.PositionSeconds = position
	s.Position = formatMMSS(position)
	s.PositionPercent = 0
	if duration > 0 {
		s.PositionPercent = math.Floor(math.Min(100, position/duration*100))
	}
	if s.Raw != nil {
		s.Raw["position_percent"] = s.PositionPercent
	}
}

// ParseSeconds reads a time value in seconds. Numbers above 10000 are
// taken as milliseconds and "m:ss" or "h:mm:ss" strings are summed.
func ParseSeconds(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64, int, int64:
		return fromNumber(snapshot.AsFloat(t))
	case string:
		text := strings.TrimSpace(t)
		if text == "" {
			return 0
		}
		if strings.Contains(text, ":") {
			var total float64
			for _, part := range strings.Split(text, ":") {
				total *= 60
				if f, err := strconv.ParseFloat(strings.TrimSpace(part), 64); err == nil {
					total += f
				}
			}
			return total
		}
		digits := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' {
				return r
			}
			return -1
		}, text)
		f, err := strconv.ParseFloat(digits, 64)
		if err != nil {
			return 0
		}
		return fromNumber(f)
	default:
		return fromNumber(snapshot.AsFloat(t))
	}
}

func fromNumber(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f > millisThreshold {
		return f / 1000
	}
	return f
}

// NormalizeCoverURL keeps http, https and file URLs, turns bare paths into
// file URLs and drops anything else.
func NormalizeCoverURL(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	if u, err := url.Parse(text); err == nil && u.Scheme != "" {
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "file":
			return text
		}
		// a single letter is a Windows drive, not a scheme
		if len(u.Scheme) > 1 {
			return ""
		}
	}
	return fileURI(text)
}

func fileURI(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	slashed := filepath.ToSlash(abs)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	return (&url.URL{Scheme: "file", Path: slashed}).String()
}

func formatMMSS(seconds float64) string {
	total := int(math.Max(0, seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
