package card

import (
	"math"

	"github.com/genricoloni/glowcard/internal/domain"
	"github.com/mattn/go-runewidth"
)

const (
	defaultRowWidthPx  = 260
	defaultCharWidthPx = 9
	defaultGapPx       = 32

	minScrollSeconds = 8
)

// Layout describes the geometry used to decide whether a text row scrolls
type Layout struct {
	// RowWidthPx is the visible width of a text row
	RowWidthPx float64
	// CharWidthPx is the width of one terminal-style display cell
	CharWidthPx float64
	// GapPx separates the text from its scrolling copy
	GapPx float64
}

func (l Layout) withDefaults() Layout {
	if l.RowWidthPx <= 0 {
		l.RowWidthPx = defaultRowWidthPx
	}
	if l.CharWidthPx <= 0 {
		l.CharWidthPx = defaultCharWidthPx
	}
	if l.GapPx < 0 {
		l.GapPx = 0
	}
	return l
}

// ContentWidth estimates the rendered width of text. Wide runes (CJK, emoji)
// take two cells.
func (l Layout) ContentWidth(text string) float64 {
	return float64(runewidth.StringWidth(text)) * l.CharWidthPx
}

// Marquee decides whether text overflows its row. Hidden cards never scroll.
func (l Layout) Marquee(text string, visible bool) domain.Marquee {
	if !visible || l.RowWidthPx <= 0 {
		return domain.Marquee{}
	}
	content := l.ContentWidth(text)
	if content <= l.RowWidthPx {
		return domain.Marquee{}
	}

	travel := content + l.GapPx
	ratio := travel / l.RowWidthPx
	return domain.Marquee{
		Scrolling:   true,
		DurationSec: math.Max(minScrollSeconds, ratio*4+6),
		DistancePx:  travel,
	}
}
