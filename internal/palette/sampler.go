// Package palette derives the glow colours of the card from cover artwork.
package palette

import (
	"context"
	"strings"
	"time"

	"github.com/genricoloni/glowcard/internal/domain"
	"go.uber.org/zap"
)

const defaultSampleTimeout = 10 * time.Second

// Options configures a Sampler. Zero values fall back to the defaults.
type Options struct {
	// ProxyBase is prepended to the encoded cover URL on proxy retries
	ProxyBase string
	// Timeout bounds each individual load attempt
	Timeout time.Duration
}

// Sampler computes cover palettes, retrying once through the palette proxy
// when a cover cannot be read directly.
type Sampler struct {
	logger    *zap.Logger
	loader    domain.ImageLoader
	proxyBase string
	timeout   time.Duration
}

// NewSampler creates a sampler that loads covers through loader
func NewSampler(logger *zap.Logger, loader domain.ImageLoader, opts Options) *Sampler {
	if opts.ProxyBase == "" {
		opts.ProxyBase = DefaultProxyBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSampleTimeout
	}
	return &Sampler{
		logger:    logger,
		loader:    loader,
		proxyBase: opts.ProxyBase,
		timeout:   opts.Timeout,
	}
}

// Sample returns the palette for the cover at url. It never fails: a cover
// that cannot be sampled directly or through the proxy yields Fallback().
func (s *Sampler) Sample(ctx context.Context, url string) domain.Palette {
	pal, err := s.sampleFrom(ctx, url, strings.HasPrefix(url, "http"))
	if err == nil {
		return pal
	}
	s.logger.Debug("Direct palette sampling failed", zap.String("url", url), zap.Error(err))

	if proxied := ProxySource(url, s.proxyBase); proxied != "" {
		pal, err = s.sampleFrom(ctx, proxied, true)
		if err == nil {
			return pal
		}
		s.logger.Debug("Proxied palette sampling failed", zap.String("url", url), zap.Error(err))
	}

	s.logger.Info("Using fallback palette", zap.String("url", url))
	return Fallback()
}

func (s *Sampler) sampleFrom(ctx context.Context, src string, crossOrigin bool) (domain.Palette, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.loader.Load(ctx, src, crossOrigin)
	if err != nil {
		return domain.Palette{}, err
	}
	r, g, b, err := Average(data)
	if err != nil {
		return domain.Palette{}, err
	}
	return FromRGB(r, g, b), nil
}
