// Package occlude implements rectangle subtraction for window occlusion.
//
// Subtracting one rectangle from another yields at most four disjoint
// axis-aligned strips. Folding Subtract over an ordered front-to-back
// list of covering rectangles yields the visible remainder of a
// rectangle, which is what the mask detector needs to know about a
// window partially hidden behind others.
package occlude

import "github.com/veilcap/veilcap/internal/domain"

// Subtract returns src minus its intersection with cover as 0 to 4
// disjoint rectangles. The strips are produced in a fixed order (top,
// bottom, left, right) so results are deterministic.
//
// No intersection returns src unchanged; cover fully containing src
// returns nil.
func Subtract(src, cover domain.Rect) []domain.Rect {
	if src.Empty() {
		return nil
	}
	in := src.Intersect(cover)
	if in.Empty() {
		return []domain.Rect{src}
	}
	if in == src {
		return nil
	}

	out := make([]domain.Rect, 0, 4)

	// Top strip: full width of src above the intersection.
	if in.Y > src.Y {
		out = append(out, domain.Rect{X: src.X, Y: src.Y, W: src.W, H: in.Y - src.Y})
	}
	// Bottom strip: full width of src below the intersection.
	if in.MaxY() < src.MaxY() {
		out = append(out, domain.Rect{X: src.X, Y: in.MaxY(), W: src.W, H: src.MaxY() - in.MaxY()})
	}
	// Left strip: beside the intersection, bounded by its vertical extent.
	if in.X > src.X {
		out = append(out, domain.Rect{X: src.X, Y: in.Y, W: in.X - src.X, H: in.H})
	}
	// Right strip.
	if in.MaxX() < src.MaxX() {
		out = append(out, domain.Rect{X: in.MaxX(), Y: in.Y, W: src.MaxX() - in.MaxX(), H: in.H})
	}

	return out
}

// Visible folds Subtract over covers, which must be ordered front to
// back, and returns the disjoint regions of src not hidden by any of
// them. Returns nil when src is fully covered.
func Visible(src domain.Rect, covers []domain.Rect) []domain.Rect {
	regions := []domain.Rect{src}
	for _, cover := range covers {
		var next []domain.Rect
		for _, r := range regions {
			next = append(next, Subtract(r, cover)...)
		}
		if len(next) == 0 {
			return nil
		}
		regions = next
	}
	return regions
}
