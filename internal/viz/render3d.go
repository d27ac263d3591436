package viz

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Segment is a world-space line to be drawn.
type Segment struct {
	A, B mgl64.Vec3
}

// Camera maps world coordinates onto the canvas with an orthographic
// projection. The default orientation looks down -z, which is the planar
// view.
type Camera struct {
	Target     mgl64.Vec3
	RotX, RotY float64
	// Scale is sub-pixels per world unit, before Zoom.
	Scale float64
	Zoom  float64
}

func NewCamera() *Camera {
	return &Camera{Scale: 8, Zoom: 1}
}

func (c *Camera) RotateX(a float64) { c.RotX += a }
func (c *Camera) RotateY(a float64) { c.RotY += a }
func (c *Camera) ZoomIn()           { c.Zoom = math.Min(20, c.Zoom*1.2) }
func (c *Camera) ZoomOut()          { c.Zoom = math.Max(0.05, c.Zoom/1.2) }

func (c *Camera) rotation() mgl64.Quat {
	return mgl64.QuatRotate(c.RotY, mgl64.Vec3{0, 1, 0}).Mul(mgl64.QuatRotate(c.RotX, mgl64.Vec3{1, 0, 0}))
}

// Project converts a world point to canvas sub-pixels. The y axis points up
// in the world and down on screen.
func (c *Camera) Project(p mgl64.Vec3, sw, sh int) (int, int) {
	v := c.rotation().Inverse().Rotate(p.Sub(c.Target))
	k := c.Scale * c.Zoom
	return clampPixel(float64(sw)/2 + v[0]*k), clampPixel(float64(sh)/2 - v[1]*k)
}

// Fit centres the camera on the bounds of segs and picks a scale that keeps
// them on a sw x sh canvas.
func (c *Camera) Fit(segs []Segment, sw, sh int) {
	if len(segs) == 0 {
		return
	}
	lo, hi := segs[0].A, segs[0].A
	for _, s := range segs {
		for _, p := range []mgl64.Vec3{s.A, s.B} {
			for i := 0; i < 3; i++ {
				lo[i] = math.Min(lo[i], p[i])
				hi[i] = math.Max(hi[i], p[i])
			}
		}
	}
	c.Target = lo.Add(hi).Mul(0.5)
	w, h := math.Max(hi[0]-lo[0], 1e-3), math.Max(hi[1]-lo[1], 1e-3)
	// 10% margin on each side.
	c.Scale = 0.8 * math.Min(float64(sw)/w, float64(sh)/h)
	c.Zoom = 1
}

// Render draws segs onto the canvas.
func Render(cv *Canvas, segs []Segment, cam *Camera) {
	if cv == nil || cam == nil {
		return
	}
	sw, sh := cv.PixelSize()
	for _, s := range segs {
		x1, y1 := cam.Project(s.A, sw, sh)
		x2, y2 := cam.Project(s.B, sw, sh)
		cv.DrawLine(x1, y1, x2, y2)
	}
}
