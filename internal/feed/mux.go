// Package feed merges the snapshot sources into the single stream the card
// presenter consumes.
package feed

import (
	"sync"

	"github.com/genricoloni/glowcard/internal/domain"
	"go.uber.org/zap"
)

// DefaultPriority orders sources from most to least preferred
var DefaultPriority = []domain.Source{domain.SourceWNP, domain.SourceTuna, domain.SourceMpris}

// Mux keeps the latest snapshot of each source and forwards the active one
// to its sink: the first playing source in priority order, or the preferred
// source's latest snapshot when nothing plays.
type Mux struct {
	logger   *zap.Logger
	priority []domain.Source
	sink     domain.Subscriber

	mu     sync.Mutex
	latest map[domain.Source]domain.MediaSnapshot
	active domain.Source
}

// NewMux creates a mux forwarding to sink. A nil priority uses DefaultPriority.
func NewMux(logger *zap.Logger, priority []domain.Source, sink domain.Subscriber) *Mux {
	if len(priority) == 0 {
		priority = DefaultPriority
	}
	return &Mux{
		logger:   logger,
		priority: priority,
		sink:     sink,
		latest:   make(map[domain.Source]domain.MediaSnapshot, len(priority)),
	}
}

// Subscriber returns the function a feed should report source's snapshots to
func (m *Mux) Subscriber(source domain.Source) domain.Subscriber {
	return func(s domain.MediaSnapshot) {
		s.Source = source
		m.Update(s)
	}
}

// Update records s as its source's latest snapshot and forwards the
// selection. The sink runs under the mux lock so selections arrive in order.
func (m *Mux) Update(s domain.MediaSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latest[s.Source] = s

	selected, ok := m.selectLocked()
	if !ok {
		return
	}
	if selected.Source != m.active {
		m.logger.Debug("Active source changed",
			zap.String("from", string(m.active)),
			zap.String("to", string(selected.Source)))
		m.active = selected.Source
	}
	if m.sink != nil {
		m.sink(selected)
	}
}

// Active returns the source whose snapshot was last forwarded
func (m *Mux) Active() domain.Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Mux) selectLocked() (domain.MediaSnapshot, bool) {
	for _, source := range m.priority {
		if s, ok := m.latest[source]; ok && s.IsPlaying() {
			return s, true
		}
	}
	for _, source := range m.priority {
		if s, ok := m.latest[source]; ok {
			return s, true
		}
	}
	return domain.MediaSnapshot{}, false
}
