//go:build linux

package monitor

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/genricoloni/glowcard/internal/domain"
	"github.com/genricoloni/glowcard/internal/monitor/mocks"
	"github.com/godbus/dbus/v5"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

// TestFetchPlayerSnapshot covers metadata fetching:
// 1. Success (Happy Path)
// 2. DBus Errors (Connection fail)
// 3. Invalid Data types (Robustness)
func TestFetchPlayerSnapshot(t *testing.T) {
	playerName := "org.mpris.MediaPlayer2.spotify"

	tests := []struct {
		name          string
		setupMock     func(*mocks.MockDBusClient)
		expectError   bool
		expectedEvent *domain.MediaSnapshot
	}{
		{
			name: "Success - Valid Metadata",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(playerName, objectPath, propMetadata).
					Return(dbus.MakeVariant(map[string]dbus.Variant{
						"xesam:title":  dbus.MakeVariant("Stairway to Heaven"),
						"xesam:artist": dbus.MakeVariant([]string{"Led Zeppelin"}),
					}), nil)
				m.EXPECT().GetProperty(playerName, objectPath, propStatus).
					Return(dbus.MakeVariant("Playing"), nil)
			},
			expectedEvent: &domain.MediaSnapshot{
				Title:  "Stairway to Heaven",
				Artist: "Led Zeppelin",
				State:  domain.StatePlaying,
			},
		},
		{
			name: "Success - Position Of A Track With Length",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(playerName, objectPath, propMetadata).
					Return(dbus.MakeVariant(map[string]dbus.Variant{
						"xesam:title":  dbus.MakeVariant("Kashmir"),
						"mpris:length": dbus.MakeVariant(int64(200_000_000)),
					}), nil)
				m.EXPECT().GetProperty(playerName, objectPath, propStatus).
					Return(dbus.MakeVariant("Paused"), nil)
				m.EXPECT().GetProperty(playerName, objectPath, propPosition).
					Return(dbus.MakeVariant(int64(50_000_000)), nil)
			},
			expectedEvent: &domain.MediaSnapshot{
				Title:           "Kashmir",
				State:           domain.StatePaused,
				PositionSeconds: 50,
				PositionPercent: 25,
			},
		},
		{
			name: "DBus Error - Connection Fail",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(playerName, objectPath, propMetadata).
					Return(dbus.MakeVariant(""), fmt.Errorf("connection timeout"))
			},
			expectError: true,
		},
		{
			name: "Invalid Data - Metadata is Int not Map",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(playerName, objectPath, propMetadata).
					Return(dbus.MakeVariant(12345), nil)
			},
		},
		{
			name: "Invalid Data - Status is not a String",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().GetProperty(playerName, objectPath, propMetadata).
					Return(dbus.MakeVariant(map[string]dbus.Variant{}), nil)
				m.EXPECT().GetProperty(playerName, objectPath, propStatus).
					Return(dbus.MakeVariant(1), nil)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockClient := mocks.NewMockDBusClient(ctrl)
			tt.setupMock(mockClient)

			mon, got := newTestMonitor(mockClient)

			err := mon.fetchPlayerSnapshot(playerName)

			if tt.expectError && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}

			if tt.expectedEvent == nil {
				if len(*got) != 0 {
					t.Errorf("Unexpected snapshot emitted: %+v", *got)
				}
				return
			}
			if len(*got) != 1 {
				t.Fatalf("Expected 1 snapshot, got %d", len(*got))
			}
			s := (*got)[0]
			if s.Title != tt.expectedEvent.Title || s.Artist != tt.expectedEvent.Artist {
				t.Errorf("Metadata mismatch: want %+v, got %+v", tt.expectedEvent, s)
			}
			if s.State != tt.expectedEvent.State {
				t.Errorf("State mismatch: want %v, got %v", tt.expectedEvent.State, s.State)
			}
			if s.PositionSeconds != tt.expectedEvent.PositionSeconds || s.PositionPercent != tt.expectedEvent.PositionPercent {
				t.Errorf("Position mismatch: want %v (%v%%), got %v (%v%%)",
					tt.expectedEvent.PositionSeconds, tt.expectedEvent.PositionPercent,
					s.PositionSeconds, s.PositionPercent)
			}
		})
	}
}

// TestDetectExistingPlayers verifies the initial scan of DBus names.
func TestDetectExistingPlayers(t *testing.T) {
	tests := []struct {
		name             string
		setupMock        func(*mocks.MockDBusClient)
		expectError      bool
		expectedPlayers  int
		expectedMappings map[string]string
	}{
		{
			name: "Success - Detects Spotify and VLC",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().ListNames().Return([]string{
					"org.freedesktop.DBus",
					"org.mpris.MediaPlayer2.spotify",
					"org.mpris.MediaPlayer2.vlc",
					"com.example.OtherApp",
				}, nil)

				m.EXPECT().GetNameOwner("org.mpris.MediaPlayer2.spotify").Return(":1.100", nil)
				m.EXPECT().GetNameOwner("org.mpris.MediaPlayer2.vlc").Return(":1.200", nil)

				m.EXPECT().GetProperty("org.mpris.MediaPlayer2.spotify", objectPath, propMetadata).
					Return(dbus.MakeVariant(map[string]dbus.Variant{"xesam:title": dbus.MakeVariant("Song A")}), nil)
				m.EXPECT().GetProperty("org.mpris.MediaPlayer2.spotify", objectPath, propStatus).
					Return(dbus.MakeVariant("Playing"), nil)

				m.EXPECT().GetProperty("org.mpris.MediaPlayer2.vlc", objectPath, propMetadata).
					Return(dbus.MakeVariant(map[string]dbus.Variant{"xesam:title": dbus.MakeVariant("Video B")}), nil)
				m.EXPECT().GetProperty("org.mpris.MediaPlayer2.vlc", objectPath, propStatus).
					Return(dbus.MakeVariant("Paused"), nil)
			},
			expectedPlayers: 2,
			expectedMappings: map[string]string{
				":1.100": "org.mpris.MediaPlayer2.spotify",
				":1.200": "org.mpris.MediaPlayer2.vlc",
			},
		},
		{
			name: "Failure - ListNames fails",
			setupMock: func(m *mocks.MockDBusClient) {
				m.EXPECT().ListNames().Return(nil, fmt.Errorf("bus error"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockClient := mocks.NewMockDBusClient(ctrl)
			tt.setupMock(mockClient)

			mon, got := newTestMonitor(mockClient)

			err := mon.detectExistingPlayers()

			if tt.expectError && err == nil {
				t.Error("Expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}

			if len(mon.playerNames) != len(tt.expectedMappings) {
				t.Errorf("Mapping count mismatch: want %d, got %d", len(tt.expectedMappings), len(mon.playerNames))
			}
			for k, v := range tt.expectedMappings {
				if mon.playerNames[k] != v {
					t.Errorf("Mapping mismatch for %s: want %s, got %s", k, v, mon.playerNames[k])
				}
			}

			if len(*got) != tt.expectedPlayers {
				t.Errorf("Expected %d snapshots, got %d", tt.expectedPlayers, len(*got))
			}
		})
	}
}

// TestMprisMonitor_StartStop drives the signal loop through a mocked bus
func TestMprisMonitor_StartStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockClient := mocks.NewMockDBusClient(ctrl)
	signals := make(chan chan<- *dbus.Signal, 1)

	mockClient.EXPECT().ListNames().Return([]string{}, nil)
	mockClient.EXPECT().AddMatchSignal(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	mockClient.EXPECT().AddMatchSignal(gomock.Any(), gomock.Any()).Return(nil)
	mockClient.EXPECT().Signal(gomock.Any()).Do(func(ch chan<- *dbus.Signal) { signals <- ch })
	mockClient.EXPECT().Close().Return(nil)

	received := make(chan domain.MediaSnapshot, 1)
	mon := NewMprisMonitor(zap.NewNop())
	mon.dial = func() (DBusClient, error) { return mockClient, nil }
	mon.Subscribe(func(s domain.MediaSnapshot) { received <- s })

	if err := mon.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var ch chan<- *dbus.Signal
	select {
	case ch = <-signals:
	case <-time.After(time.Second):
		t.Fatal("Timeout: signal channel never registered")
	}

	ch <- propertiesChanged(":1.7", map[string]dbus.Variant{
		"Metadata": dbus.MakeVariant(map[string]dbus.Variant{
			"xesam:title": dbus.MakeVariant("Live Song"),
		}),
		"PlaybackStatus": dbus.MakeVariant("Playing"),
	})

	select {
	case s := <-received:
		if s.Title != "Live Song" || s.State != domain.StatePlaying {
			t.Errorf("unexpected snapshot %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout: snapshot was not emitted")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := mon.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	// a second Stop is a no-op
	if err := mon.Stop(ctx); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}

func TestMprisMonitor_StartDialFailure(t *testing.T) {
	mon := NewMprisMonitor(zap.NewNop())
	mon.dial = func() (DBusClient, error) { return nil, fmt.Errorf("no session bus") }

	if err := mon.Start(context.Background()); err == nil {
		t.Fatal("expected an error when the bus is unreachable")
	}
	if mon.running {
		t.Error("monitor must not stay running after a failed start")
	}
}
