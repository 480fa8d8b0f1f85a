//go:build linux

package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/genricoloni/glowcard/internal/domain"
	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	playerPrefix = "org.mpris.MediaPlayer2."
	objectPath   = "/org/mpris/MediaPlayer2"
	playerIface  = "org.mpris.MediaPlayer2.Player"

	propMetadata = playerIface + ".Metadata"
	propStatus   = playerIface + ".PlaybackStatus"
	propPosition = playerIface + ".Position"
)

// MprisMonitor reports media playback of MPRIS players on the session bus
// as snapshots
type MprisMonitor struct {
	logger      *zap.Logger
	dial        func() (DBusClient, error)
	mu          sync.RWMutex
	running     bool
	cancel      context.CancelFunc
	conn        DBusClient        // Interface for testability
	wg          sync.WaitGroup    // Tracks the signal goroutine
	playerNames map[string]string // Maps unique bus names (:1.45) to well-known names (org.mpris.MediaPlayer2.spotify)
	subscriber  domain.Subscriber
}

// NewMprisMonitor creates a new MPRIS monitor instance
func NewMprisMonitor(logger *zap.Logger) *MprisMonitor {
	return &MprisMonitor{
		logger:      logger,
		dial:        dialSessionBus,
		playerNames: make(map[string]string),
	}
}

func dialSessionBus() (DBusClient, error) {
	c, err := NewStdDBusClient()
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Subscribe sets the function receiving every snapshot
func (m *MprisMonitor) Subscribe(fn domain.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriber = fn
}

// Start connects to the session bus, reports the players already running
// and listens for changes in the background
func (m *MprisMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	conn, err := m.dial()
	if err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return fmt.Errorf("session bus connection failed: %w", err)
	}

	// the loop outlives the start hook's deadline
	monitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	m.mu.Lock()
	m.conn = conn
	m.cancel = cancel
	m.mu.Unlock()

	if err := m.detectExistingPlayers(); err != nil {
		m.logger.Warn("Failed to detect existing players", zap.Error(err))
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(objectPath),
		dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
		dbus.WithMatchMember("PropertiesChanged"),
	); err != nil {
		cancel()
		m.closeConn()
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return fmt.Errorf("failed to add match signal: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface("org.freedesktop.DBus"),
		dbus.WithMatchMember("NameOwnerChanged"),
	); err != nil {
		// Non-fatal, continue without dynamic tracking
		m.logger.Warn("Failed to add NameOwnerChanged match signal", zap.Error(err))
	}

	m.wg.Add(1)
	go m.monitorSignals(monitorCtx)

	m.logger.Info("MPRIS monitor started")
	return nil
}

// Stop ends signal processing and closes the bus connection
func (m *MprisMonitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.running = false
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timed out waiting for signal goroutine")
	}

	m.closeConn()
	m.logger.Info("MPRIS monitor shutdown complete")
	return nil
}

func (m *MprisMonitor) closeConn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return
	}
	if err := m.conn.Close(); err != nil {
		m.logger.Warn("Failed to close D-Bus connection", zap.Error(err))
	}
	m.conn = nil
}

// detectExistingPlayers queries D-Bus for currently running MPRIS players
func (m *MprisMonitor) detectExistingPlayers() error {
	names, err := m.conn.ListNames()
	if err != nil {
		return fmt.Errorf("failed to list bus names: %w", err)
	}

	playerCount := 0
	for _, name := range names {
		if !strings.HasPrefix(name, playerPrefix) {
			continue
		}
		playerCount++
		m.logger.Info("Detected MPRIS player", zap.String("name", name))

		if uniqueName, err := m.conn.GetNameOwner(name); err == nil {
			m.mu.Lock()
			m.playerNames[uniqueName] = name
			m.mu.Unlock()
		}

		if err := m.fetchPlayerSnapshot(name); err != nil {
			m.logger.Warn("Failed to fetch initial metadata",
				zap.String("player", name),
				zap.Error(err))
		}
	}

	m.logger.Info("Player detection complete", zap.Int("count", playerCount))
	return nil
}

// fetchPlayerSnapshot reads a player's current state and emits it
func (m *MprisMonitor) fetchPlayerSnapshot(playerName string) error {
	variant, err := m.conn.GetProperty(playerName, objectPath, propMetadata)
	if err != nil {
		return fmt.Errorf("failed to get metadata: %w", err)
	}

	// Some players return nil or unexpected types when idle
	metadata, ok := variant.Value().(map[string]dbus.Variant)
	if !ok {
		m.logger.Debug("Metadata variant is not a map, skipping", zap.String("player", playerName))
		return nil
	}

	statusVariant, err := m.conn.GetProperty(playerName, objectPath, propStatus)
	if err != nil {
		return fmt.Errorf("failed to get playback status: %w", err)
	}

	status, ok := statusVariant.Value().(string)
	if !ok {
		return fmt.Errorf("invalid playback status format")
	}

	s := m.parseMetadata(playerName, metadata, status)
	m.fillPosition(playerName, &s)
	m.emit(s)
	return nil
}

// monitorSignals listens for D-Bus signals and processes them
func (m *MprisMonitor) monitorSignals(ctx context.Context) {
	defer m.wg.Done()

	signals := make(chan *dbus.Signal, 10)
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	conn.Signal(signals)

	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("Signal monitoring goroutine stopped")
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if sig == nil {
				continue
			}
			if sig.Name == "org.freedesktop.DBus.NameOwnerChanged" {
				m.handleNameOwnerChanged(sig)
			} else {
				m.handleSignal(sig)
			}
		}
	}
}

// handleNameOwnerChanged tracks players appearing and disappearing
func (m *MprisMonitor) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}

	name, ok := sig.Body[0].(string)
	if !ok || !strings.HasPrefix(name, playerPrefix) {
		return
	}

	oldOwner, _ := sig.Body[1].(string)
	newOwner, _ := sig.Body[2].(string)

	switch {
	case newOwner != "" && oldOwner == "":
		m.mu.Lock()
		m.playerNames[newOwner] = name
		m.mu.Unlock()

		m.logger.Info("New MPRIS player detected",
			zap.String("player", name),
			zap.String("unique", newOwner))

		if err := m.fetchPlayerSnapshot(name); err != nil {
			m.logger.Warn("Failed to fetch metadata from new player",
				zap.String("player", name),
				zap.Error(err))
		}

	case newOwner == "" && oldOwner != "":
		m.mu.Lock()
		delete(m.playerNames, oldOwner)
		m.mu.Unlock()

		m.logger.Info("MPRIS player removed",
			zap.String("player", name),
			zap.String("unique", oldOwner))

		// the card must not keep showing a player that is gone
		s := m.parseMetadata(name, nil, "Stopped")
		m.emit(s)

	case newOwner != "" && oldOwner != "":
		m.mu.Lock()
		delete(m.playerNames, oldOwner)
		m.playerNames[newOwner] = name
		m.mu.Unlock()
	}
}

// handleSignal processes a PropertiesChanged signal. Its body is the
// interface name, the changed properties and the invalidated ones.
func (m *MprisMonitor) handleSignal(sig *dbus.Signal) {
	if sig.Name != "org.freedesktop.DBus.Properties.PropertiesChanged" {
		return
	}
	if len(sig.Body) < 2 {
		return
	}

	interfaceName, ok := sig.Body[0].(string)
	if !ok || interfaceName != playerIface {
		return
	}

	changedProps, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	playerName := m.getPlayerName(sig.Sender)

	metadataVariant, hasMetadata := changedProps["Metadata"]
	statusVariant, hasStatus := changedProps["PlaybackStatus"]
	if !hasMetadata && !hasStatus {
		return
	}

	var metadata map[string]dbus.Variant
	var status string

	if hasMetadata {
		metadata, ok = metadataVariant.Value().(map[string]dbus.Variant)
		if !ok {
			m.logger.Warn("Invalid metadata format in signal, ignoring")
			return
		}
	}

	if hasStatus {
		status, ok = statusVariant.Value().(string)
		if !ok {
			m.logger.Warn("Invalid playback status format in signal, ignoring")
			return
		}
	} else if variant, err := m.conn.GetProperty(sig.Sender, objectPath, propStatus); err == nil {
		if s, ok := variant.Value().(string); ok {
			status = s
		}
	}

	// a status change alone carries no metadata
	if !hasMetadata {
		if variant, err := m.conn.GetProperty(sig.Sender, objectPath, propMetadata); err == nil {
			if md, ok := variant.Value().(map[string]dbus.Variant); ok {
				metadata = md
			}
		}
	}

	s := m.parseMetadata(playerName, metadata, status)
	m.fillPosition(sig.Sender, &s)

	m.logger.Debug("Media change detected",
		zap.String("player", playerName),
		zap.String("title", s.Title),
		zap.String("state", string(s.State)))

	m.emit(s)
}

// parseMetadata converts MPRIS metadata to a snapshot
func (m *MprisMonitor) parseMetadata(player string, metadata map[string]dbus.Variant, status string) domain.MediaSnapshot {
	s := domain.MediaSnapshot{
		PlayerName: strings.TrimPrefix(player, playerPrefix),
		RepeatMode: "NONE",
		Source:     domain.SourceMpris,
		Raw:        map[string]any{},
	}

	switch status {
	case "Playing":
		s.State = domain.StatePlaying
	case "Paused":
		s.State = domain.StatePaused
	default:
		s.State = domain.StateStopped
	}

	if metadata == nil {
		return s
	}

	if v, ok := metadata["xesam:title"]; ok {
		if title, ok := v.Value().(string); ok {
			s.Title = title
		}
	}

	if v, ok := metadata["xesam:artist"]; ok {
		switch artists := v.Value().(type) {
		case []string:
			for _, a := range artists {
				if a = strings.TrimSpace(a); a != "" {
					s.Artists = append(s.Artists, a)
				}
			}
			s.Artist = strings.Join(s.Artists, ", ")
		case string:
			s.Artist = artists
		default:
			// Some non-compliant players may use unexpected types
			m.logger.Debug("Unexpected artist type in metadata",
				zap.String("type", fmt.Sprintf("%T", v.Value())))
		}
	}

	if v, ok := metadata["xesam:album"]; ok {
		if album, ok := v.Value().(string); ok {
			s.Album = album
		}
	}

	if v, ok := metadata["mpris:artUrl"]; ok {
		if artURL, ok := v.Value().(string); ok {
			s.CoverURL = artURL
		}
	}

	if v, ok := metadata["mpris:length"]; ok {
		if us, ok := microseconds(v.Value()); ok && us > 0 {
			s.DurationSeconds = float64(us) / 1e6
			s.Duration = formatMMSS(s.DurationSeconds)
		}
	}

	return s
}

// fillPosition asks the player for its position when the track has a length
func (m *MprisMonitor) fillPosition(busName string, s *domain.MediaSnapshot) {
	if s.DurationSeconds <= 0 {
		return
	}
	variant, err := m.conn.GetProperty(busName, objectPath, propPosition)
	if err != nil {
		return
	}
	us, ok := microseconds(variant.Value())
	if !ok || us < 0 {
		return
	}
	s.PositionSeconds = min(float64(us)/1e6, s.DurationSeconds)
	s.Position = formatMMSS(s.PositionSeconds)
	s.PositionPercent = float64(int(s.PositionSeconds / s.DurationSeconds * 100))
}

// getPlayerName returns the well-known player name for a unique bus name
// Falls back to the unique name if no mapping exists
func (m *MprisMonitor) getPlayerName(uniqueName string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if wellKnown, ok := m.playerNames[uniqueName]; ok {
		return wellKnown
	}
	return uniqueName
}

func (m *MprisMonitor) emit(s domain.MediaSnapshot) {
	m.mu.RLock()
	fn := m.subscriber
	m.mu.RUnlock()
	if fn != nil {
		fn(s)
	}
}

// microseconds reads an MPRIS time value; players disagree on the integer type
func microseconds(v any) (int64, bool) {
	switch t := v.(type) {
	case int64:
		return t, true
	case uint64:
		return int64(t), true
	case int32:
		return int64(t), true
	case uint32:
		return int64(t), true
	case float64:
		return int64(t), true
	default:
		return 0, false
	}
}

func formatMMSS(seconds float64) string {
	total := int(max(0, seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
