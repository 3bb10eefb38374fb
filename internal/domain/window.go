package domain

// Window is an on-screen window as reported by the window-enumeration
// service. Lists of windows are ordered front-to-back.
type Window struct {
	ID        uint64
	OwnerName string
	Bounds    Rect
	Layer     int
}

// MaskedWindow is a window whose owner matched a mask target.
// VisibleRegions are disjoint, lie within Bounds, and cover exactly the
// portion of the window not occluded by any window in front of it.
// MaskedWindows are recomputed per frame and never persisted.
type MaskedWindow struct {
	ID             uint64
	OwnerName      string
	Bounds         Rect
	VisibleRegions []Rect
}
