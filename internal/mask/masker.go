package mask

import "github.com/veilcap/veilcap/internal/domain"

// Video range black luma and neutral chroma.
const (
	LumaBlack     = 0x10
	ChromaNeutral = 0x80
)

// Masker overwrites rectangular regions of a frame buffer with black.
// The caller guarantees exclusive access to the buffer for the
// duration of Apply.
type Masker struct {
	Luma   byte
	Chroma byte
}

// NewMasker returns a masker writing video-range black.
func NewMasker() *Masker {
	return &Masker{Luma: LumaBlack, Chroma: ChromaNeutral}
}

// Apply blacks out the given global-coordinate regions in buf, which
// covers displayBounds. Regions are translated to buffer-local pixel
// coordinates, scaled when the buffer resolution differs from the
// display's point size, and clamped to the buffer extent. Subsampled
// chroma planes have their coordinates halved rounding outward, so a
// mask never leaks original chroma at odd edges. No-op on an empty
// region list.
func (m *Masker) Apply(buf *domain.FrameBuffer, regions []domain.Rect, displayBounds domain.Rect) {
	if buf == nil || len(regions) == 0 || displayBounds.Empty() {
		return
	}

	for _, reg := range regions {
		reg = reg.Intersect(displayBounds)
		if reg.Empty() {
			continue
		}

		// Global points to buffer pixels, rounding outward.
		x0 := (reg.X - displayBounds.X) * buf.Width / displayBounds.W
		y0 := (reg.Y - displayBounds.Y) * buf.Height / displayBounds.H
		x1 := ceilDiv((reg.MaxX()-displayBounds.X)*buf.Width, displayBounds.W)
		y1 := ceilDiv((reg.MaxY()-displayBounds.Y)*buf.Height, displayBounds.H)

		for i := range buf.Planes {
			p := &buf.Planes[i]
			value := m.Chroma
			if i == 0 {
				value = m.Luma
			}

			// Plane-local coordinates, subsampling rounded outward.
			px0 := clamp(x0/p.SubX, 0, buf.Width/p.SubX)
			py0 := clamp(y0/p.SubY, 0, buf.Height/p.SubY)
			px1 := clamp(ceilDiv(x1, p.SubX), 0, buf.Width/p.SubX)
			py1 := clamp(ceilDiv(y1, p.SubY), 0, buf.Height/p.SubY)
			if px1 <= px0 || py1 <= py0 {
				continue
			}

			for row := py0; row < py1; row++ {
				line := p.Data[row*p.Stride+px0 : row*p.Stride+px1]
				for j := range line {
					line[j] = value
				}
			}
		}
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
