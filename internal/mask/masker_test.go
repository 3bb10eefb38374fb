package mask

import (
	"bytes"
	"testing"

	"github.com/veilcap/veilcap/internal/domain"
)

// newI420 builds a 4:2:0 frame buffer filled with the given values.
func newI420(w, h int, luma, chroma byte) *domain.FrameBuffer {
	y := bytes.Repeat([]byte{luma}, w*h)
	cb := bytes.Repeat([]byte{chroma}, (w/2)*(h/2))
	cr := bytes.Repeat([]byte{chroma}, (w/2)*(h/2))
	return &domain.FrameBuffer{
		Width:  w,
		Height: h,
		Planes: []domain.Plane{
			{Data: y, Stride: w, SubX: 1, SubY: 1},
			{Data: cb, Stride: w / 2, SubX: 2, SubY: 2},
			{Data: cr, Stride: w / 2, SubX: 2, SubY: 2},
		},
	}
}

func planeAt(buf *domain.FrameBuffer, plane, x, y int) byte {
	p := buf.Planes[plane]
	return p.Data[y*p.Stride+x]
}

func TestMasker_EmptyRegionsNoop(t *testing.T) {
	buf := newI420(16, 16, 0xAA, 0x55)
	before := append([]byte(nil), buf.Planes[0].Data...)

	NewMasker().Apply(buf, nil, domain.Rect{W: 16, H: 16})

	if !bytes.Equal(buf.Planes[0].Data, before) {
		t.Error("luma plane modified by empty region list")
	}
}

func TestMasker_FillsLumaAndChroma(t *testing.T) {
	buf := newI420(16, 16, 0xAA, 0x55)
	bounds := domain.Rect{X: 0, Y: 0, W: 16, H: 16}

	NewMasker().Apply(buf, []domain.Rect{{X: 4, Y: 4, W: 8, H: 8}}, bounds)

	// Inside the mask.
	if got := planeAt(buf, 0, 4, 4); got != LumaBlack {
		t.Errorf("luma inside mask = %#x, want %#x", got, LumaBlack)
	}
	if got := planeAt(buf, 0, 11, 11); got != LumaBlack {
		t.Errorf("luma at mask corner = %#x, want %#x", got, LumaBlack)
	}
	if got := planeAt(buf, 1, 2, 2); got != ChromaNeutral {
		t.Errorf("cb inside mask = %#x, want %#x", got, ChromaNeutral)
	}
	if got := planeAt(buf, 2, 5, 5); got != ChromaNeutral {
		t.Errorf("cr inside mask = %#x, want %#x", got, ChromaNeutral)
	}

	// Outside the mask.
	if got := planeAt(buf, 0, 3, 3); got != 0xAA {
		t.Errorf("luma outside mask = %#x, want untouched", got)
	}
	if got := planeAt(buf, 0, 12, 12); got != 0xAA {
		t.Errorf("luma past mask = %#x, want untouched", got)
	}
	if got := planeAt(buf, 1, 1, 1); got != 0x55 {
		t.Errorf("cb outside mask = %#x, want untouched", got)
	}
}

func TestMasker_OddCoordinatesRoundChromaOutward(t *testing.T) {
	buf := newI420(16, 16, 0xAA, 0x55)
	bounds := domain.Rect{X: 0, Y: 0, W: 16, H: 16}

	// Odd-aligned rectangle: luma pixels 5..10, chroma must cover 2..5
	// inclusive (rounding 5/2 down and 11/2 up).
	NewMasker().Apply(buf, []domain.Rect{{X: 5, Y: 5, W: 6, H: 6}}, bounds)

	if got := planeAt(buf, 1, 2, 2); got != ChromaNeutral {
		t.Errorf("chroma at floor(5/2) = %#x, want masked", got)
	}
	if got := planeAt(buf, 1, 5, 5); got != ChromaNeutral {
		t.Errorf("chroma at ceil(11/2)-1 = %#x, want masked", got)
	}
	if got := planeAt(buf, 1, 1, 1); got != 0x55 {
		t.Errorf("chroma before region = %#x, want untouched", got)
	}
	if got := planeAt(buf, 1, 6, 6); got != 0x55 {
		t.Errorf("chroma after region = %#x, want untouched", got)
	}
}

func TestMasker_GlobalTranslationAndClamp(t *testing.T) {
	buf := newI420(16, 16, 0xAA, 0x55)
	// Display sits at (100, 200) in global coordinates.
	bounds := domain.Rect{X: 100, Y: 200, W: 16, H: 16}

	// Region hangs off the right edge of the display.
	NewMasker().Apply(buf, []domain.Rect{{X: 110, Y: 204, W: 50, H: 4}}, bounds)

	if got := planeAt(buf, 0, 10, 4); got != LumaBlack {
		t.Errorf("luma at translated origin = %#x, want masked", got)
	}
	if got := planeAt(buf, 0, 15, 7); got != LumaBlack {
		t.Errorf("luma at clamped edge = %#x, want masked", got)
	}
	if got := planeAt(buf, 0, 9, 4); got != 0xAA {
		t.Errorf("luma left of region = %#x, want untouched", got)
	}
	if got := planeAt(buf, 0, 10, 8); got != 0xAA {
		t.Errorf("luma below region = %#x, want untouched", got)
	}
}

func TestMasker_RegionOutsideDisplayIgnored(t *testing.T) {
	buf := newI420(8, 8, 0xAA, 0x55)
	bounds := domain.Rect{X: 0, Y: 0, W: 8, H: 8}
	before := append([]byte(nil), buf.Planes[0].Data...)

	NewMasker().Apply(buf, []domain.Rect{{X: 100, Y: 100, W: 10, H: 10}}, bounds)

	if !bytes.Equal(buf.Planes[0].Data, before) {
		t.Error("region outside display modified the buffer")
	}
}

func TestMasker_ScaledDisplay(t *testing.T) {
	// 2x scaled display: 8x8 points backed by a 16x16 pixel buffer.
	buf := newI420(16, 16, 0xAA, 0x55)
	bounds := domain.Rect{X: 0, Y: 0, W: 8, H: 8}

	NewMasker().Apply(buf, []domain.Rect{{X: 2, Y: 2, W: 2, H: 2}}, bounds)

	if got := planeAt(buf, 0, 4, 4); got != LumaBlack {
		t.Errorf("luma at scaled origin = %#x, want masked", got)
	}
	if got := planeAt(buf, 0, 7, 7); got != LumaBlack {
		t.Errorf("luma at scaled extent = %#x, want masked", got)
	}
	if got := planeAt(buf, 0, 8, 8); got != 0xAA {
		t.Errorf("luma past scaled extent = %#x, want untouched", got)
	}
}
