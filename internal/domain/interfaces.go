package domain

import "context"

// Subscriber receives every snapshot a feed produces, in arrival order
type Subscriber func(MediaSnapshot)

// Feed defines a source of media snapshots (status stream, Tuna poller, MPRIS)
//
//go:generate mockgen -destination=mocks/domain_mock.go -package=mocks github.com/genricoloni/glowcard/internal/domain Feed,ImageLoader,Publisher
type Feed interface {
	// Start begins producing snapshots in the background.
	// It returns once the feed is running; it does not block.
	Start(ctx context.Context) error

	// Stop gracefully stops the feed and releases its connection
	Stop(ctx context.Context) error
}

// ImageLoader defines the interface for retrieving cover artwork bytes
type ImageLoader interface {
	// Load reads image data from a URL.
	// crossOrigin requests pixel access across origins: responses that do not
	// grant it fail with an error, as a tainted canvas would.
	Load(ctx context.Context, url string, crossOrigin bool) ([]byte, error)
}

// PaletteSampler derives a palette from a cover URL.
// It never fails: unusable covers yield the fallback palette.
type PaletteSampler interface {
	Sample(ctx context.Context, url string) Palette
}

// Publisher receives the card state after every change
type Publisher interface {
	Publish(state CardState)
}

// Config defines the interface for application configuration
type Config interface {
	// GetOutputDir returns the directory for generated theme files
	GetOutputDir() string
}
