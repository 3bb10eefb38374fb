package occlude

import (
	"testing"

	"github.com/veilcap/veilcap/internal/domain"
)

func rect(x, y, w, h int) domain.Rect {
	return domain.Rect{X: x, Y: y, W: w, H: h}
}

// area sums the areas of a region list.
func area(rs []domain.Rect) int {
	total := 0
	for _, r := range rs {
		total += r.W * r.H
	}
	return total
}

// assertDisjointWithin fails if any pair of regions overlaps or any
// region escapes bounds.
func assertDisjointWithin(t *testing.T, regions []domain.Rect, bounds domain.Rect) {
	t.Helper()
	for i, a := range regions {
		if a.Empty() {
			t.Errorf("region %d is empty: %+v", i, a)
		}
		if !bounds.Contains(a) {
			t.Errorf("region %d escapes bounds: %+v not in %+v", i, a, bounds)
		}
		for j := i + 1; j < len(regions); j++ {
			if a.Intersects(regions[j]) {
				t.Errorf("regions %d and %d overlap: %+v, %+v", i, j, a, regions[j])
			}
		}
	}
}

func TestSubtract_NoOverlap(t *testing.T) {
	src := rect(0, 0, 100, 100)
	got := Subtract(src, rect(200, 200, 50, 50))
	if len(got) != 1 || got[0] != src {
		t.Fatalf("Subtract with disjoint cover = %+v, want [src]", got)
	}
}

func TestSubtract_FullCover(t *testing.T) {
	src := rect(10, 10, 80, 80)

	if got := Subtract(src, src); got != nil {
		t.Errorf("Subtract(R, R) = %+v, want nil", got)
	}
	if got := Subtract(src, rect(0, 0, 100, 100)); got != nil {
		t.Errorf("Subtract with containing cover = %+v, want nil", got)
	}
}

func TestSubtract_PartialOverlaps(t *testing.T) {
	src := rect(0, 0, 100, 100)

	tests := []struct {
		name  string
		cover domain.Rect
		want  int // strip count
	}{
		{"corner", rect(50, 50, 100, 100), 2},
		{"center hole", rect(25, 25, 50, 50), 4},
		{"left half", rect(0, 0, 50, 100), 1},
		{"horizontal band", rect(0, 40, 100, 20), 2},
		{"vertical band", rect(40, 0, 20, 100), 2},
		{"edge notch", rect(40, 0, 20, 50), 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Subtract(src, tt.cover)
			if len(got) != tt.want {
				t.Fatalf("got %d strips %+v, want %d", len(got), got, tt.want)
			}
			assertDisjointWithin(t, got, src)

			wantArea := src.W*src.H - src.Intersect(tt.cover).W*src.Intersect(tt.cover).H
			if area(got) != wantArea {
				t.Errorf("area = %d, want %d", area(got), wantArea)
			}
		})
	}
}

func TestSubtract_StripOrder(t *testing.T) {
	// A centered hole yields top, bottom, left, right in that order.
	got := Subtract(rect(0, 0, 90, 90), rect(30, 30, 30, 30))
	want := []domain.Rect{
		rect(0, 0, 90, 30),
		rect(0, 60, 90, 30),
		rect(0, 30, 30, 30),
		rect(60, 30, 30, 30),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d strips, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("strip %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestVisible_FoldsFrontToBack(t *testing.T) {
	src := rect(0, 0, 100, 100)
	covers := []domain.Rect{
		rect(0, 0, 50, 50),
		rect(50, 50, 50, 50),
	}

	got := Visible(src, covers)
	assertDisjointWithin(t, got, src)
	if area(got) != 100*100-2*50*50 {
		t.Errorf("visible area = %d, want %d", area(got), 100*100-2*50*50)
	}
}

func TestVisible_FullyCovered(t *testing.T) {
	src := rect(0, 0, 100, 100)
	covers := []domain.Rect{
		rect(0, 0, 100, 60),
		rect(0, 50, 100, 50),
	}
	if got := Visible(src, covers); got != nil {
		t.Errorf("Visible fully covered = %+v, want nil", got)
	}
}

func TestVisible_NoCovers(t *testing.T) {
	src := rect(5, 5, 10, 10)
	got := Visible(src, nil)
	if len(got) != 1 || got[0] != src {
		t.Errorf("Visible with no covers = %+v, want [src]", got)
	}
}

func TestVisible_ManyCoversStayDisjoint(t *testing.T) {
	src := rect(0, 0, 200, 200)
	covers := []domain.Rect{
		rect(-20, -20, 60, 60),
		rect(150, 0, 100, 40),
		rect(40, 40, 30, 170),
		rect(100, 100, 10, 10),
		rect(0, 180, 200, 10),
	}

	got := Visible(src, covers)
	assertDisjointWithin(t, got, src)

	// No visible region may intersect any cover.
	for _, r := range got {
		for _, c := range covers {
			if r.Intersects(c) {
				t.Errorf("visible region %+v intersects cover %+v", r, c)
			}
		}
	}
}
