package canvas

import (
	"math"

	"github.com/AaronLay10/ActionGraph/internal/graph"
)

// snapEpsilon absorbs float error when snapping render positions back to cells,
// so that a cell's own corner maps back to that cell.
const snapEpsilon = 1e-6

// Vec is a render-space position or offset in pixels.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec) Add(o Vec) Vec { return Vec{v.X + o.X, v.Y + o.Y} }
func (v Vec) Sub(o Vec) Vec { return Vec{v.X - o.X, v.Y - o.Y} }

// Rect is an axis-aligned rectangle.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contains reports whether v lies inside r, edges included.
func (r Rect) Contains(v Vec) bool {
	return v.X >= r.X && v.X <= r.X+r.W && v.Y >= r.Y && v.Y <= r.Y+r.H
}

// Bounds is an inclusive cell range in graph space.
type Bounds struct {
	Min graph.Point `json:"min"`
	Max graph.Point `json:"max"`
}

// ViewState is the part of a View worth remembering between sessions.
type ViewState struct {
	PanX float64 `json:"pan_x" yaml:"pan_x" msgpack:"pan_x"`
	PanY float64 `json:"pan_y" yaml:"pan_y" msgpack:"pan_y"`
	Zoom int     `json:"zoom" yaml:"zoom" msgpack:"zoom"`
}

// View maps graph space (integer cells) to render space (pixels inside the viewport).
// Render space has its origin at the viewport's top-left corner; screen space adds
// the viewport's own origin.
type View struct {
	Pan      Vec
	Zoom     int
	Viewport Rect
	CellSize float64
	MinZoom  int
	MaxZoom  int
	// Extent is the logical graph area that must stay reachable.
	Extent Bounds
}

// NewView creates a view with pan (0, 0) and zoom level 0.
func NewView(viewport Rect, cellSize float64, minZoom, maxZoom int) *View {
	v := &View{
		Viewport: viewport,
		CellSize: cellSize,
		MinZoom:  minZoom,
		MaxZoom:  maxZoom,
	}
	v.Zoom = v.clampZoom(0)
	return v
}

// Scale is the linear factor for the current zoom level: 2^(zoom/2).
func (v *View) Scale() float64 {
	return ScaleFor(v.Zoom)
}

// ScaleFor returns 2^(level/2).
func ScaleFor(level int) float64 {
	return math.Pow(2, float64(level)/2)
}

// Unit is the rendered size of one cell in pixels.
func (v *View) Unit() float64 {
	return v.CellSize * v.Scale()
}

// GraphToRender returns the render position of a cell's top-left corner.
func (v *View) GraphToRender(p graph.Point) Vec {
	return v.GraphToRenderF(float64(p.X), float64(p.Y))
}

// GraphToRenderF converts a continuous graph-space position.
func (v *View) GraphToRenderF(x, y float64) Vec {
	u := v.Unit()
	return Vec{x*u + v.Pan.X, y*u + v.Pan.Y}
}

// RenderToGraph returns the cell containing a render position.
func (v *View) RenderToGraph(r Vec) graph.Point {
	x, y := v.RenderToGraphF(r)
	return graph.Point{
		X: int(math.Floor(x + snapEpsilon)),
		Y: int(math.Floor(y + snapEpsilon)),
	}
}

// RenderToGraphF returns the continuous graph-space position under r.
func (v *View) RenderToGraphF(r Vec) (float64, float64) {
	u := v.Unit()
	return (r.X - v.Pan.X) / u, (r.Y - v.Pan.Y) / u
}

// ScreenToRender removes the viewport origin.
func (v *View) ScreenToRender(s Vec) Vec {
	return Vec{s.X - v.Viewport.X, s.Y - v.Viewport.Y}
}

// RenderToScreen adds the viewport origin.
func (v *View) RenderToScreen(r Vec) Vec {
	return Vec{r.X + v.Viewport.X, r.Y + v.Viewport.Y}
}

func (v *View) ScreenToGraph(s Vec) graph.Point {
	return v.RenderToGraph(v.ScreenToRender(s))
}

func (v *View) GraphToScreen(p graph.Point) Vec {
	return v.RenderToScreen(v.GraphToRender(p))
}

// CellRect returns the render rectangle covered by w x h cells starting at p.
func (v *View) CellRect(p graph.Point, w, h int) Rect {
	origin := v.GraphToRender(p)
	u := v.Unit()
	return Rect{X: origin.X, Y: origin.Y, W: float64(w) * u, H: float64(h) * u}
}

// InViewport reports whether a render position is inside the viewport.
func (v *View) InViewport(r Vec) bool {
	return r.X >= 0 && r.Y >= 0 && r.X <= v.Viewport.W && r.Y <= v.Viewport.H
}

func (v *View) clampZoom(level int) int {
	if level < v.MinZoom {
		return v.MinZoom
	}
	if level > v.MaxZoom {
		return v.MaxZoom
	}
	return level
}

// SetZoom changes the zoom level about the render origin and reclamps.
func (v *View) SetZoom(level int) {
	v.Zoom = v.clampZoom(level)
	v.Clamp()
}

// ZoomAt changes the zoom level keeping the graph point under the render position
// anchor at the same render position, then reclamps. It reports whether the level changed.
func (v *View) ZoomAt(level int, anchor Vec) bool {
	level = v.clampZoom(level)
	if level == v.Zoom {
		return false
	}
	gx, gy := v.RenderToGraphF(anchor)
	v.Zoom = level
	u := v.Unit()
	v.Pan = Vec{anchor.X - gx*u, anchor.Y - gy*u}
	v.Clamp()
	return true
}

// PanBy moves the view by a render-space delta and reclamps.
func (v *View) PanBy(d Vec) {
	v.Pan = v.Pan.Add(d)
	v.Clamp()
}

// PanRange returns the allowed pan interval per axis: at least one cell of the extent
// stays inside the viewport.
func (v *View) PanRange() (lo, hi Vec) {
	u := v.Unit()
	minX := float64(v.Extent.Min.X) * u
	minY := float64(v.Extent.Min.Y) * u
	maxX := float64(v.Extent.Max.X+1) * u
	maxY := float64(v.Extent.Max.Y+1) * u

	lo.X, hi.X = ordered(u-maxX, v.Viewport.W-u-minX)
	lo.Y, hi.Y = ordered(u-maxY, v.Viewport.H-u-minY)
	return lo, hi
}

// Clamp moves Pan into PanRange. Clamping a valid pan leaves it unchanged.
func (v *View) Clamp() {
	lo, hi := v.PanRange()
	v.Pan.X = clamp(v.Pan.X, lo.X, hi.X)
	v.Pan.Y = clamp(v.Pan.Y, lo.Y, hi.Y)
}

// ScrollIndicator is the position of the pan within PanRange per axis, from 0 (scrolled
// to the extent's start) to 1 (its end). An axis with no room to scroll reports 0.
func (v *View) ScrollIndicator() Vec {
	lo, hi := v.PanRange()
	return Vec{ratio(v.Pan.X, lo.X, hi.X), ratio(v.Pan.Y, lo.Y, hi.Y)}
}

// SetExtent replaces the logical bounds and reclamps.
func (v *View) SetExtent(b Bounds) {
	v.Extent = b
	v.Clamp()
}

// Include grows the extent to cover b plus margin cells on every side.
func (v *View) Include(b Bounds, margin int) {
	grown := Bounds{
		Min: graph.Point{X: b.Min.X - margin, Y: b.Min.Y - margin},
		Max: graph.Point{X: b.Max.X + margin, Y: b.Max.Y + margin},
	}
	e := v.Extent
	e.Min.X = min(e.Min.X, grown.Min.X)
	e.Min.Y = min(e.Min.Y, grown.Min.Y)
	e.Max.X = max(e.Max.X, grown.Max.X)
	e.Max.Y = max(e.Max.Y, grown.Max.Y)
	v.SetExtent(e)
}

// CoverViewport grows the extent to the cells currently visible.
func (v *View) CoverViewport() {
	v.Include(Bounds{
		Min: v.RenderToGraph(Vec{}),
		Max: v.RenderToGraph(Vec{v.Viewport.W, v.Viewport.H}),
	}, 0)
}

// Resize changes the viewport and reclamps.
func (v *View) Resize(viewport Rect) {
	v.Viewport = viewport
	v.Clamp()
}

// State returns the persistable pan and zoom.
func (v *View) State() ViewState {
	return ViewState{PanX: v.Pan.X, PanY: v.Pan.Y, Zoom: v.Zoom}
}

// Restore applies a saved state, clamped to the current limits.
func (v *View) Restore(s ViewState) {
	v.Zoom = v.clampZoom(s.Zoom)
	v.Pan = Vec{s.PanX, s.PanY}
	v.Clamp()
}

func ordered(a, b float64) (float64, float64) {
	if a > b {
		return b, a
	}
	return a, b
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

func ratio(x, lo, hi float64) float64 {
	if hi-lo <= 0 {
		return 0
	}
	return (hi - x) / (hi - lo)
}
