package card

import (
	"testing"

	"github.com/genricoloni/glowcard/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func TestLayout_Marquee(t *testing.T) {
	layout := Layout{RowWidthPx: 100, CharWidthPx: 10, GapPx: 20}

	tests := []struct {
		name    string
		text    string
		visible bool
		want    domain.Marquee
	}{
		{name: "Fits", text: "0123456789", visible: true, want: domain.Marquee{}},
		{
			name:    "Slight overflow",
			text:    "01234567890",
			visible: true,
			// travel 130, ratio 1.3 -> 11.2s
			want: domain.Marquee{Scrolling: true, DurationSec: 1.3*4 + 6, DistancePx: 130},
		},
		{
			name:    "Long overflow",
			text:    "0123456789012345678901234567890123456789",
			visible: true,
			// travel 420, ratio 4.2 -> 22.8s
			want: domain.Marquee{Scrolling: true, DurationSec: 4.2*4 + 6, DistancePx: 420},
		},
		{name: "Hidden card never scrolls", text: "0123456789012345678901234567890123456789", visible: false, want: domain.Marquee{}},
		{
			name:    "Wide runes take two cells",
			text:    "日本語の歌のタイトル",
			visible: true,
			// 10 runes, 20 cells, 200px + 20 gap
			want: domain.Marquee{Scrolling: true, DurationSec: 2.2*4 + 6, DistancePx: 220},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := layout.Marquee(tt.text, tt.visible)
			if diff := cmp.Diff(tt.want, got, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
				t.Errorf("Marquee mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLayout_EmptyText(t *testing.T) {
	layout := Layout{RowWidthPx: 1000, CharWidthPx: 10}
	if got := layout.Marquee("", true); got.Scrolling {
		t.Error("empty text should not scroll")
	}
}

func TestLayout_Defaults(t *testing.T) {
	l := Layout{}.withDefaults()
	if l.RowWidthPx != defaultRowWidthPx || l.CharWidthPx != defaultCharWidthPx {
		t.Errorf("unexpected defaults %+v", l)
	}
}
