package palette

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // GIF format support
	_ "image/jpeg" // JPEG format support
	_ "image/png"  // PNG format support
	"math"

	"github.com/disintegration/imaging"
	"github.com/genricoloni/glowcard/internal/domain"
	"github.com/lucasb-eyer/go-colorful"
	_ "golang.org/x/image/bmp"  // BMP format support
	_ "golang.org/x/image/webp" // WebP format support
)

const (
	// sampleSize is the edge of the square raster covers are scaled into
	sampleSize = 32

	accentAlpha   = 0.95
	lightContrast = "rgba(255, 255, 255, 0.95)"
	darkContrast  = "rgba(0, 0, 0, 0.8)"
	fallbackColor = "rgba(255, 255, 255, 0.35)"

	// brightnessThreshold separates dark covers (light overlay) from bright ones
	brightnessThreshold = 128
)

// ErrNoOpaquePixels is returned when every sampled pixel is fully transparent
var ErrNoOpaquePixels = errors.New("image has no opaque pixels")

// Average decodes imageData, scales it into a 32x32 raster and returns the
// mean colour of all pixels whose alpha is non-zero.
func Average(imageData []byte) (r, g, b int, err error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to decode image: %w", err)
	}
	return AverageImage(img)
}

// AverageImage is Average for an already decoded image
func AverageImage(img image.Image) (r, g, b int, err error) {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return 0, 0, 0, fmt.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	raster := imaging.Resize(img, sampleSize, sampleSize, imaging.Box)

	var sumR, sumG, sumB, count int
	for i := 0; i+3 < len(raster.Pix); i += 4 {
		if raster.Pix[i+3] == 0 {
			continue
		}
		sumR += int(raster.Pix[i])
		sumG += int(raster.Pix[i+1])
		sumB += int(raster.Pix[i+2])
		count++
	}
	if count == 0 {
		return 0, 0, 0, ErrNoOpaquePixels
	}

	return roundDiv(sumR, count), roundDiv(sumG, count), roundDiv(sumB, count), nil
}

// Brightness is the perceived luminance round(0.299R + 0.587G + 0.114B)
func Brightness(r, g, b int) int {
	return int(math.Round(0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)))
}

// ContrastColor picks the overlay colour that stays readable on a cover of
// the given brightness.
func ContrastColor(brightness int) string {
	if brightness < brightnessThreshold {
		return lightContrast
	}
	return darkContrast
}

// FromRGB builds the palette for an average colour
func FromRGB(r, g, b int) domain.Palette {
	brightness := Brightness(r, g, b)
	return domain.Palette{
		R:          r,
		G:          g,
		B:          b,
		Brightness: brightness,
		Accent:     fmt.Sprintf("rgba(%d, %d, %d, %g)", r, g, b, accentAlpha),
		Contrast:   ContrastColor(brightness),
		Hex:        colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}.Hex(),
	}
}

// Fallback is the neutral palette used when no cover can be sampled
func Fallback() domain.Palette {
	return domain.Palette{
		Fallback: true,
		Accent:   fallbackColor,
		Contrast: fallbackColor,
	}
}

func roundDiv(sum, n int) int {
	return int(math.Round(float64(sum) / float64(n)))
}
