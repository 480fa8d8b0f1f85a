package domain

import (
	"strings"
	"time"
)

// PlayerState represents the playback state reported by a media source.
// Unknown values reported by a producer are passed through unchanged.
type PlayerState string

const (
	// StatePlaying indicates the media is currently playing
	StatePlaying PlayerState = "PLAYING"
	// StatePaused indicates the media is paused
	StatePaused PlayerState = "PAUSED"
	// StateStopped indicates the media is stopped
	StateStopped PlayerState = "STOPPED"
)

// Source identifies which feed produced a snapshot
type Source string

const (
	SourceWNP   Source = "wnp"
	SourceTuna  Source = "tuna"
	SourceMpris Source = "mpris"
)

// MediaSnapshot is one complete media-state report. A snapshot is never
// merged with a previous one; the next snapshot replaces it wholesale.
type MediaSnapshot struct {
	State           PlayerState `json:"state"`
	PlayerName      string      `json:"player_name"`
	Title           string      `json:"title"`
	Artist          string      `json:"artist"`
	Artists         []string    `json:"artists,omitempty"`
	Album           string      `json:"album"`
	CoverURL        string      `json:"cover_url"`
	Duration        string      `json:"duration"`
	DurationSeconds float64     `json:"duration_seconds"`
	Position        string      `json:"position"`
	PositionSeconds float64     `json:"position_seconds"`
	PositionPercent float64     `json:"position_percent"`
	Volume          int         `json:"volume"`
	Rating          int         `json:"rating"`
	RepeatMode      string      `json:"repeat_mode"`
	ShuffleActive   bool        `json:"shuffle_active"`
	Timestamp       int64       `json:"timestamp"`

	// Source is the feed that produced the snapshot
	Source Source `json:"source"`
	// Raw holds the normalized key/value pairs the snapshot was decoded from
	Raw map[string]any `json:"-"`
}

// IsPlaying reports whether the snapshot describes something worth showing:
// a non-empty title in a state other than stopped or paused.
func (s MediaSnapshot) IsPlaying() bool {
	if s.Title == "" {
		return false
	}
	return !IsIdleState(s.State)
}

// IsIdleState reports whether state is stopped or paused, case-insensitively
func IsIdleState(state PlayerState) bool {
	switch PlayerState(strings.ToUpper(string(state))) {
	case StateStopped, StatePaused:
		return true
	}
	return false
}

// ConnectionState is the lifecycle state of the status-stream connection
type ConnectionState string

const (
	ConnIdle       ConnectionState = "IDLE"
	ConnConnecting ConnectionState = "CONNECTING"
	ConnOpen       ConnectionState = "OPEN"
	ConnRetrying   ConnectionState = "RETRYING"
)

// Palette is the colour theme derived from a cover image
type Palette struct {
	R          int  `json:"r"`
	G          int  `json:"g"`
	B          int  `json:"b"`
	Brightness int  `json:"brightness"`
	Fallback   bool `json:"fallback"`
	// Accent is the average colour as a CSS rgba() value
	Accent string `json:"accent"`
	// Contrast is the overlay colour chosen against Brightness
	Contrast string `json:"contrast"`
	// Hex is the average colour as #rrggbb, empty for the fallback palette
	Hex string `json:"hex,omitempty"`
}

// Marquee describes whether a text row overflows and how to scroll it
type Marquee struct {
	Scrolling   bool    `json:"scrolling"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	DistancePx  float64 `json:"distance_px,omitempty"`
}

// CardState is everything an overlay page needs to render the card
type CardState struct {
	Title      string            `json:"title"`
	Artist     string            `json:"artist"`
	PlayerName string            `json:"player_name"`
	State      PlayerState       `json:"state"`
	Progress   float64           `json:"progress_percent"`
	CoverURL   string            `json:"cover_url"`
	CoverEmpty bool              `json:"cover_empty"`
	Visible    bool              `json:"visible"`
	TitleRow   Marquee           `json:"title_row"`
	ArtistRow  Marquee           `json:"artist_row"`
	Palette    Palette           `json:"palette"`
	Theme      map[string]string `json:"theme"`
	Source     Source            `json:"source,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
