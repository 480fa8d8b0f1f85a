// Package tuna polls the HTTP feed of the Tuna OBS plugin for the current
// track. Tuna reports progress coarsely, so the poller extrapolates it
// between polls of the same track.
package tuna

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/genricoloni/glowcard/internal/domain"
	"github.com/genricoloni/glowcard/internal/snapshot"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const (
	DefaultURL      = "http://127.0.0.1:1608/"
	DefaultInterval = 600 * time.Millisecond
	MinInterval     = 100 * time.Millisecond
	DefaultTimeout  = 2 * time.Second

	userAgent   = "glowcard/1.0"
	_maxPayload = 1 << 20
)

// Options configures the poller
type Options struct {
	URL      string
	Interval time.Duration
	Timeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.URL == "" {
		o.URL = DefaultURL
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Interval < MinInterval {
		o.Interval = MinInterval
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Poller implements domain.Feed on top of a gocron duration job
type Poller struct {
	logger *zap.Logger
	opts   Options
	client *http.Client
	now    func() time.Time

	mu         sync.Mutex
	subscriber domain.Subscriber
	scheduler  gocron.Scheduler
	last       progressMark
}

// progressMark remembers where the previous poll left a track
type progressMark struct {
	track    trackID
	position float64
	at       time.Time
}

type trackID struct {
	title    string
	artist   string
	url      string
	duration float64
}

// NewPoller creates a Tuna poller. It does not poll until Start.
func NewPoller(logger *zap.Logger, opts Options) *Poller {
	opts = opts.withDefaults()
	return &Poller{
		logger: logger,
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		now:    time.Now,
	}
}

// Subscribe sets the function receiving every polled snapshot
func (p *Poller) Subscribe(fn domain.Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriber = fn
}

// Start schedules the poll job. Overlapping runs are skipped.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.scheduler != nil {
		return nil
	}

	s, err := gocron.NewScheduler(
		gocron.WithLogger(schedulerLogger{p.logger.Sugar()}),
		gocron.WithStopTimeout(p.opts.Timeout+time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to create tuna scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(p.opts.Interval),
		gocron.NewTask(p.Poll),
		gocron.WithName("tuna-poll"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("failed to schedule tuna poll: %w", err)
	}

	s.Start()
	p.scheduler = s

	p.logger.Info("Tuna poller started",
		zap.String("url", p.opts.URL),
		zap.Duration("interval", p.opts.Interval))
	return nil
}

// Stop cancels the poll job and waits for a running poll to finish
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	s := p.scheduler
	p.scheduler = nil
	p.last = progressMark{}
	p.mu.Unlock()

	if s == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- s.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("tuna scheduler shutdown: %w", err)
		}
		p.logger.Info("Tuna poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll fetches the feed once and emits the result. Any failure emits the
// default snapshot so a stale track does not linger.
func (p *Poller) Poll(ctx context.Context) {
	s, err := p.fetch(ctx)
	if err != nil {
		p.logger.Debug("Tuna poll failed", zap.Error(err))
	}

	p.mu.Lock()
	if err != nil {
		p.last = progressMark{}
		s = snapshot.Default(domain.SourceTuna)
	} else {
		p.extrapolate(&s)
	}
	fn := p.subscriber
	p.mu.Unlock()

	if fn != nil {
		fn(s)
	}
}

func (p *Poller) fetch(ctx context.Context) (domain.MediaSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.opts.URL, nil)
	if err != nil {
		return domain.MediaSnapshot{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.MediaSnapshot{}, fmt.Errorf("failed to reach tuna: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.MediaSnapshot{}, fmt.Errorf("bad status code: %d", resp.StatusCode)
	}

	var payload map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, _maxPayload)).Decode(&payload); err != nil {
		return domain.MediaSnapshot{}, fmt.Errorf("failed to decode payload: %w", err)
	}

	s, ok := Normalize(payload)
	if !ok {
		return domain.MediaSnapshot{}, fmt.Errorf("payload has no title")
	}
	return s, nil
}

// extrapolate advances the position of a track seen on the previous poll
// by the time elapsed since, never moving it backwards past what Tuna
// reports and never beyond the duration. Callers hold p.mu.
func (p *Poller) extrapolate(s *domain.MediaSnapshot) {
	now := p.now()
	id := trackID{
		title:    s.Title,
		artist:   s.Artist,
		url:      fmt.Sprint(s.Raw["track_url"]),
		duration: s.DurationSeconds,
	}

	position := s.PositionSeconds
	if p.last.track == id && !p.last.at.IsZero() {
		elapsed := math.Max(0, now.Sub(p.last.at).Seconds())
		if expected := p.last.position + elapsed; expected > position {
			position = expected
			if s.DurationSeconds > 0 {
				position = math.Min(position, s.DurationSeconds)
			}
		}
	}

	setProgress(s, s.DurationSeconds, position)
	p.last = progressMark{track: id, position: position, at: now}
}

// schedulerLogger routes gocron logs through zap
type schedulerLogger struct {
	l *zap.SugaredLogger
}

func (s schedulerLogger) Debug(msg string, args ...any) { s.l.Debugw(msg, args...) }
func (s schedulerLogger) Error(msg string, args ...any) { s.l.Errorw(msg, args...) }
func (s schedulerLogger) Info(msg string, args ...any)  { s.l.Infow(msg, args...) }
func (s schedulerLogger) Warn(msg string, args ...any)  { s.l.Warnw(msg, args...) }
