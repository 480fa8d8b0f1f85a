// Package card turns media snapshots into the state of the overlay card.
package card

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/glowcard/internal/domain"
	"github.com/genricoloni/glowcard/internal/palette"
	"github.com/genricoloni/glowcard/internal/snapshot"
	"github.com/genricoloni/glowcard/internal/theme"
	"go.uber.org/zap"
)

const placeholder = "N/A"

// Presenter owns the card state and the cover palette lifecycle.
//
// Cover sampling runs in the background. At most one cover URL is pending at
// a time, and only the completion for that URL may change the palette;
// results for superseded covers are dropped when they arrive.
//
// Publishers are called with the presenter locked, in change order, and
// must not call back into the presenter.
type Presenter struct {
	logger     *zap.Logger
	sampler    domain.PaletteSampler
	publishers []domain.Publisher
	layout     Layout
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	card         domain.CardState
	vars         theme.Vars
	lastCover    string
	pendingCover string
}

// NewPresenter creates a presenter showing a hidden, empty card
func NewPresenter(logger *zap.Logger, sampler domain.PaletteSampler, publishers []domain.Publisher, layout Layout) *Presenter {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Presenter{
		logger:     logger,
		sampler:    sampler,
		publishers: publishers,
		layout:     layout.withDefaults(),
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
		vars:       theme.Vars{},
	}
	p.card = domain.CardState{
		Title:      placeholder,
		Artist:     placeholder,
		CoverEmpty: true,
		Palette:    palette.Fallback(),
	}
	p.applyPaletteLocked(palette.Fallback())
	return p
}

// HandleSnapshot reconciles the card with s and publishes the result
func (p *Presenter) HandleSnapshot(s domain.MediaSnapshot) {
	title := strings.TrimSpace(s.Title)
	visible := title != "" && !domain.IsIdleState(s.State)
	displayTitle := title
	if displayTitle == "" {
		displayTitle = placeholder
	}
	artist := displayArtist(s)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.card.Title = displayTitle
	p.card.Artist = artist
	p.card.PlayerName = s.PlayerName
	p.card.State = s.State
	p.card.Source = s.Source
	p.card.Progress = progress(s)
	p.card.Visible = visible
	p.card.TitleRow = p.layout.Marquee(displayTitle, visible)
	p.card.ArtistRow = p.layout.Marquee(artist, visible)

	p.updateCoverLocked(coverURL(s))
	p.publishLocked()
}

// Card returns a copy of the current card state
func (p *Presenter) Card() domain.CardState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Vars returns a copy of the current theme variables
func (p *Presenter) Vars() theme.Vars {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vars.Clone()
}

// Pending returns the cover URL currently being sampled, "" when idle
func (p *Presenter) Pending() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingCover
}

// Wait blocks until every sampling goroutine started so far has finished
func (p *Presenter) Wait() {
	p.wg.Wait()
}

// Close cancels in-flight sampling and waits for it to unwind
func (p *Presenter) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *Presenter) updateCoverLocked(url string) {
	if url == "" {
		p.pendingCover = ""
		p.lastCover = ""
		p.card.CoverURL = ""
		p.card.CoverEmpty = true
		p.vars.Remove(theme.VarCoverImage)
		p.applyPaletteLocked(palette.Fallback())
		return
	}

	if url == p.lastCover || url == p.pendingCover {
		return
	}

	p.pendingCover = url
	p.card.CoverURL = url
	p.card.CoverEmpty = false
	p.vars.Set(theme.VarCoverImage, theme.CoverImage(url))

	p.logger.Debug("Sampling cover palette", zap.String("url", url))

	p.wg.Add(1)
	go p.sample(url)
}

func (p *Presenter) sample(url string) {
	defer p.wg.Done()

	pal := p.sampler.Sample(p.ctx, url)
	p.complete(url, pal)
}

// complete applies a sampling result when url is still the pending cover
func (p *Presenter) complete(url string, pal domain.Palette) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if url != p.pendingCover {
		p.logger.Debug("Discarding stale palette", zap.String("url", url), zap.String("pending", p.pendingCover))
		return
	}

	p.lastCover = url
	p.pendingCover = ""
	p.applyPaletteLocked(pal)
	p.publishLocked()
}

func (p *Presenter) applyPaletteLocked(pal domain.Palette) {
	p.card.Palette = pal
	p.vars.Set(theme.VarAvgColor, pal.Accent)
	p.vars.Set(theme.VarBrightnessColor, pal.Contrast)
}

func (p *Presenter) snapshotLocked() domain.CardState {
	state := p.card
	state.Theme = p.vars.Clone()
	return state
}

func (p *Presenter) publishLocked() {
	p.card.UpdatedAt = p.now()
	state := p.snapshotLocked()
	for _, pub := range p.publishers {
		pub.Publish(state)
	}
}

func displayArtist(s domain.MediaSnapshot) string {
	artists := make([]string, 0, len(s.Artists))
	for _, a := range s.Artists {
		if a != "" {
			artists = append(artists, a)
		}
	}
	if len(artists) > 0 {
		return strings.Join(artists, ", ")
	}
	if s.Artist != "" {
		return s.Artist
	}
	return placeholder
}

// progress clamps the reported position percent into [0, 100]
func progress(s domain.MediaSnapshot) float64 {
	percent := s.PositionPercent
	if v, ok := s.Raw["position_percent"]; !ok || v == nil {
		if v, ok := snapshot.Lookup(s.Raw, "positionPercent"); ok {
			percent = snapshot.AsFloat(v)
		}
	}
	if math.IsNaN(percent) {
		return 0
	}
	return math.Max(0, math.Min(100, percent))
}

func coverURL(s domain.MediaSnapshot) string {
	if s.CoverURL != "" {
		return s.CoverURL
	}
	if v, ok := snapshot.Lookup(s.Raw, "coverUrl"); ok {
		if url, ok := v.(string); ok {
			return url
		}
	}
	return ""
}
