//go:build linux

package monitor

import (
	"fmt"
	"testing"

	"github.com/genricoloni/glowcard/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

// newTestMonitor returns a monitor that records what it emits
func newTestMonitor(conn DBusClient) (*MprisMonitor, *[]domain.MediaSnapshot) {
	mon := NewMprisMonitor(zap.NewNop())
	mon.conn = conn
	mon.running = true

	var got []domain.MediaSnapshot
	mon.Subscribe(func(s domain.MediaSnapshot) { got = append(got, s) })
	return mon, &got
}

func propertiesChanged(sender string, props map[string]dbus.Variant) *dbus.Signal {
	return &dbus.Signal{
		Name:   "org.freedesktop.DBus.Properties.PropertiesChanged",
		Sender: sender,
		Body:   []interface{}{"org.mpris.MediaPlayer2.Player", props, []string{}},
	}
}

// TestHandleSignal_HappyPath verifies a valid signal produces a snapshot
func TestHandleSignal_HappyPath(t *testing.T) {
	mon, got := newTestMonitor(&noopDBusClient{})
	mon.playerNames = map[string]string{":1.100": "org.mpris.MediaPlayer2.spotify"}

	mon.handleSignal(propertiesChanged(":1.100", map[string]dbus.Variant{
		"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
			"xesam:title":  dbus.MakeVariant("Bohemian Rhapsody"),
			"xesam:artist": dbus.MakeVariant([]string{"Queen"}),
			"xesam:album":  dbus.MakeVariant("A Night at the Opera"),
			"mpris:artUrl": dbus.MakeVariant("https://example.com/cover.jpg"),
		}),
		"PlaybackStatus": dbus.MakeVariant("Playing"),
	}))

	if len(*got) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(*got))
	}
	s := (*got)[0]
	if s.Title != "Bohemian Rhapsody" || s.Artist != "Queen" || s.Album != "A Night at the Opera" {
		t.Errorf("unexpected metadata %+v", s)
	}
	if s.CoverURL != "https://example.com/cover.jpg" {
		t.Errorf("unexpected cover %s", s.CoverURL)
	}
	if s.State != domain.StatePlaying {
		t.Errorf("State: expected PLAYING, got %v", s.State)
	}
	if s.PlayerName != "spotify" {
		t.Errorf("PlayerName: expected spotify, got %s", s.PlayerName)
	}
	if s.Source != domain.SourceMpris {
		t.Errorf("Source: expected mpris, got %s", s.Source)
	}
}

// TestHandleSignal_EdgeCases covers signals that must be ignored
func TestHandleSignal_EdgeCases(t *testing.T) {
	tests := []struct {
		name   string
		signal *dbus.Signal
	}{
		{
			name: "Wrong Signal Name",
			signal: &dbus.Signal{
				Name: "org.freedesktop.DBus.SomeOtherSignal",
				Body: []interface{}{},
			},
		},
		{
			name: "Wrong Interface",
			signal: &dbus.Signal{
				Name: "org.freedesktop.DBus.Properties.PropertiesChanged",
				Body: []interface{}{"org.mpris.MediaPlayer2", map[string]dbus.Variant{}, []string{}},
			},
		},
		{
			name: "Short Body",
			signal: &dbus.Signal{
				Name: "org.freedesktop.DBus.Properties.PropertiesChanged",
				Body: []interface{}{"org.mpris.MediaPlayer2.Player"},
			},
		},
		{
			name:   "Unrelated Property",
			signal: propertiesChanged(":1.1", map[string]dbus.Variant{"Volume": dbus.MakeVariant(0.5)}),
		},
		{
			name:   "Invalid Metadata Type (Int instead of Map)",
			signal: propertiesChanged(":1.1", map[string]dbus.Variant{"Metadata": dbus.MakeVariant(12345)}),
		},
		{
			name:   "Invalid PlaybackStatus Type (Array instead of String)",
			signal: propertiesChanged(":1.1", map[string]dbus.Variant{"PlaybackStatus": dbus.MakeVariant([]string{"Playing"})}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon, got := newTestMonitor(&noopDBusClient{})
			mon.handleSignal(tt.signal)
			if len(*got) != 0 {
				t.Errorf("Should NOT emit a snapshot for invalid input, got %+v", *got)
			}
		})
	}
}

// TestHandleSignal_DataVariations tests valid parsing variations
func TestHandleSignal_DataVariations(t *testing.T) {
	tests := []struct {
		name  string
		props map[string]dbus.Variant
		check func(*testing.T, domain.MediaSnapshot)
	}{
		{
			name: "Artist as String (Non-compliant)",
			props: map[string]dbus.Variant{
				"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
					"xesam:artist": dbus.MakeVariant("Single Artist"),
				}),
				"PlaybackStatus": dbus.MakeVariant("Playing"),
			},
			check: func(t *testing.T, s domain.MediaSnapshot) {
				if s.Artist != "Single Artist" {
					t.Errorf("Expected 'Single Artist', got '%s'", s.Artist)
				}
			},
		},
		{
			name: "Several Artists",
			props: map[string]dbus.Variant{
				"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
					"xesam:artist": dbus.MakeVariant([]string{"A", "", "B"}),
				}),
				"PlaybackStatus": dbus.MakeVariant("Playing"),
			},
			check: func(t *testing.T, s domain.MediaSnapshot) {
				if s.Artist != "A, B" || len(s.Artists) != 2 {
					t.Errorf("Expected 'A, B', got '%s' %v", s.Artist, s.Artists)
				}
			},
		},
		{
			name: "Length in microseconds",
			props: map[string]dbus.Variant{
				"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
					"xesam:title":  dbus.MakeVariant("Song"),
					"mpris:length": dbus.MakeVariant(int64(215_000_000)),
				}),
				"PlaybackStatus": dbus.MakeVariant("Playing"),
			},
			check: func(t *testing.T, s domain.MediaSnapshot) {
				if s.DurationSeconds != 215 || s.Duration != "3:35" {
					t.Errorf("Expected 215s (3:35), got %v (%s)", s.DurationSeconds, s.Duration)
				}
			},
		},
		{
			name: "Empty Art URL",
			props: map[string]dbus.Variant{
				"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
					"mpris:artUrl": dbus.MakeVariant(""),
					"xesam:title":  dbus.MakeVariant("Song"),
				}),
				"PlaybackStatus": dbus.MakeVariant("Playing"),
			},
			check: func(t *testing.T, s domain.MediaSnapshot) {
				if s.CoverURL != "" {
					t.Errorf("Expected empty CoverURL, got '%s'", s.CoverURL)
				}
			},
		},
		{
			name: "Status Paused",
			props: map[string]dbus.Variant{
				"PlaybackStatus": dbus.MakeVariant("Paused"),
			},
			check: func(t *testing.T, s domain.MediaSnapshot) {
				if s.State != domain.StatePaused {
					t.Errorf("Expected PAUSED, got %v", s.State)
				}
			},
		},
		{
			name: "Status Stopped",
			props: map[string]dbus.Variant{
				"PlaybackStatus": dbus.MakeVariant("Stopped"),
			},
			check: func(t *testing.T, s domain.MediaSnapshot) {
				if s.State != domain.StateStopped {
					t.Errorf("Expected STOPPED, got %v", s.State)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mon, got := newTestMonitor(&noopDBusClient{})
			mon.handleSignal(propertiesChanged(":1.99", tt.props))

			if len(*got) != 1 {
				t.Fatalf("expected 1 snapshot, got %d", len(*got))
			}
			tt.check(t, (*got)[0])
		})
	}
}

// TestHandleNameOwnerChanged verifies player lifecycle tracking
func TestHandleNameOwnerChanged(t *testing.T) {
	tests := []struct {
		name         string
		signalBody   []interface{}
		premapped    bool
		expectMapped bool
		targetUnique string
		expectEmit   bool
	}{
		{
			name:         "New Player Appears",
			signalBody:   []interface{}{"org.mpris.MediaPlayer2.spotify", "", ":1.50"},
			expectMapped: true,
			targetUnique: ":1.50",
		},
		{
			name:         "Player Disappears",
			signalBody:   []interface{}{"org.mpris.MediaPlayer2.spotify", ":1.50", ""},
			premapped:    true,
			expectMapped: false,
			targetUnique: ":1.50",
			expectEmit:   true,
		},
		{
			name:         "Ownership Transfer",
			signalBody:   []interface{}{"org.mpris.MediaPlayer2.spotify", ":1.50", ":1.51"},
			premapped:    true,
			expectMapped: true,
			targetUnique: ":1.51",
		},
		{
			name:         "Non-MPRIS Service Ignored",
			signalBody:   []interface{}{"com.example.service", "", ":1.99"},
			expectMapped: false,
			targetUnique: ":1.99",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// the noop client fails GetProperty, so a new player emits nothing
			mon, got := newTestMonitor(&noopDBusClient{})
			if tt.premapped {
				mon.playerNames[":1.50"] = "org.mpris.MediaPlayer2.spotify"
			}

			mon.handleNameOwnerChanged(&dbus.Signal{
				Name: "org.freedesktop.DBus.NameOwnerChanged",
				Body: tt.signalBody,
			})

			mon.mu.RLock()
			val, exists := mon.playerNames[tt.targetUnique]
			mon.mu.RUnlock()

			if exists != tt.expectMapped {
				t.Fatalf("expected mapped=%v for %s, got %v", tt.expectMapped, tt.targetUnique, exists)
			}
			if exists && val != "org.mpris.MediaPlayer2.spotify" {
				t.Errorf("unexpected mapping %s", val)
			}

			if tt.expectEmit {
				if len(*got) != 1 || (*got)[0].State != domain.StateStopped || (*got)[0].PlayerName != "spotify" {
					t.Errorf("expected a stopped snapshot for the removed player, got %+v", *got)
				}
			} else if len(*got) != 0 {
				t.Errorf("unexpected snapshots %+v", *got)
			}
		})
	}
}

func TestGetPlayerName(t *testing.T) {
	mon := NewMprisMonitor(zap.NewNop())
	mon.playerNames = map[string]string{
		":1.100": "org.mpris.MediaPlayer2.spotify",
	}

	tests := []struct {
		input    string
		expected string
	}{
		{":1.100", "org.mpris.MediaPlayer2.spotify"},
		{":1.999", ":1.999"}, // Fallback
	}

	for _, tt := range tests {
		if got := mon.getPlayerName(tt.input); got != tt.expected {
			t.Errorf("getPlayerName(%s): expected %s, got %s", tt.input, tt.expected, got)
		}
	}
}

func TestMicroseconds(t *testing.T) {
	tests := []struct {
		input  any
		want   int64
		wantOK bool
	}{
		{int64(5), 5, true},
		{uint64(6), 6, true},
		{int32(7), 7, true},
		{float64(8), 8, true},
		{"9", 0, false},
	}
	for _, tt := range tests {
		got, ok := microseconds(tt.input)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("microseconds(%v) = %d, %v", tt.input, got, ok)
		}
	}
}

// noopDBusClient is a stub for tests where code calls GetProperty or
// ListNames but the result does not matter
type noopDBusClient struct{}

func (n *noopDBusClient) Close() error                             { return nil }
func (n *noopDBusClient) AddMatchSignal(...dbus.MatchOption) error { return nil }
func (n *noopDBusClient) Signal(chan<- *dbus.Signal)               {}
func (n *noopDBusClient) ListNames() ([]string, error)             { return []string{}, nil }
func (n *noopDBusClient) GetNameOwner(string) (string, error)      { return "", fmt.Errorf("noop") }
func (n *noopDBusClient) GetProperty(string, string, string) (dbus.Variant, error) {
	return dbus.MakeVariant(""), fmt.Errorf("noop")
}
