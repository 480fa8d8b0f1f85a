package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/genricoloni/glowcard/internal/domain"
	"github.com/genricoloni/glowcard/internal/feed"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Sink consumes the selected snapshot stream
type Sink interface {
	HandleSnapshot(s domain.MediaSnapshot)
	Close()
}

// Source is one feed routed through the engine, listed in priority order
type Source struct {
	ID   domain.Source
	Feed domain.Feed
	// Subscribe registers where the feed reports its snapshots
	Subscribe func(domain.Subscriber)
	// Optional sources only log a failed start
	Optional bool
}

// Engine orchestrates the card pipeline: it starts the feeds and routes
// their snapshots through a priority mux into the sink.
type Engine struct {
	logger  *zap.Logger
	sink    Sink
	sources []Source

	mu      sync.Mutex
	mux     *feed.Mux
	started []Source
}

// NewEngine creates a new orchestration engine
func NewEngine(logger *zap.Logger, sink Sink, sources []Source) *Engine {
	return &Engine{
		logger:  logger,
		sink:    sink,
		sources: sources,
	}
}

// Start starts every source. It returns immediately (non-blocking); the
// feeds run in the background.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.logger.Info("Engine starting...", zap.Int("sources", len(e.sources)))

	priority := make([]domain.Source, 0, len(e.sources))
	for _, src := range e.sources {
		priority = append(priority, src.ID)
	}
	e.mux = feed.NewMux(e.logger, priority, e.sink.HandleSnapshot)

	for _, src := range e.sources {
		if src.Subscribe != nil {
			src.Subscribe(e.mux.Subscriber(src.ID))
		}
		if err := src.Feed.Start(ctx); err != nil {
			if src.Optional {
				e.logger.Warn("Optional source unavailable",
					zap.String("source", string(src.ID)),
					zap.Error(err))
				continue
			}
			stopErr := e.stopLocked(ctx)
			return multierr.Append(fmt.Errorf("failed to start %s source: %w", src.ID, err), stopErr)
		}
		e.started = append(e.started, src)
		e.logger.Info("Source started", zap.String("source", string(src.ID)))
	}

	if len(e.started) == 0 {
		e.logger.Warn("No source is running, the card will stay hidden")
	}
	return nil
}

// Active returns the source currently driving the card
func (e *Engine) Active() domain.Source {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mux == nil {
		return ""
	}
	return e.mux.Active()
}

// Stop stops the sources in reverse order, then cancels pending samples
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.logger.Info("Engine stopping...")
	err := e.stopLocked(ctx)
	e.sink.Close()
	return err
}

func (e *Engine) stopLocked(ctx context.Context) error {
	var err error
	for i := len(e.started) - 1; i >= 0; i-- {
		src := e.started[i]
		if stopErr := src.Feed.Stop(ctx); stopErr != nil {
			err = multierr.Append(err, fmt.Errorf("failed to stop %s source: %w", src.ID, stopErr))
		}
	}
	e.started = nil
	return err
}
