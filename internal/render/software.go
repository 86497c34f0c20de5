package render

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"golang.org/x/image/vector"

	"flightmap/internal/geo"
)

var errDeleted = errors.New("resource already deleted")

// Resources counts live objects handed out by a SoftwareSurface.
type Resources struct {
	Contexts int `json:"contexts"`
	Programs int `json:"programs"`
	Buffers  int `json:"buffers"`
}

// SoftwareSurface rasterizes point sprites on the CPU into an RGBA image.
type SoftwareSurface struct {
	mu   sync.Mutex
	live Resources
}

func NewSoftwareSurface() *SoftwareSurface {
	return &SoftwareSurface{}
}

func (s *SoftwareSurface) Supported() bool { return true }

func (s *SoftwareSurface) Context() (Device, error) {
	s.track(func(r *Resources) { r.Contexts++ })
	return &SoftwareDevice{surface: s}, nil
}

// Live returns the number of contexts, programs and buffers not yet
// released.
func (s *SoftwareSurface) Live() Resources {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

func (s *SoftwareSurface) track(fn func(*Resources)) {
	s.mu.Lock()
	fn(&s.live)
	s.mu.Unlock()
}

// SoftwareDevice is the context of a SoftwareSurface. Sprites are
// anti-aliased discs alpha-blended over the canvas.
type SoftwareDevice struct {
	surface  *SoftwareSurface
	img      *image.RGBA
	sprite   *image.Alpha
	spriteD  float32
	released bool
}

type softwareProgram struct {
	dev     *SoftwareDevice
	deleted bool
}

func (p *softwareProgram) Delete() {
	if p.deleted {
		return
	}
	p.deleted = true
	p.dev.surface.track(func(r *Resources) { r.Programs-- })
}

type softwareBuffer struct {
	dev     *SoftwareDevice
	data    []float32
	deleted bool
}

func (b *softwareBuffer) Upload(data []float32) {
	b.data = append(b.data[:0], data...)
}

func (b *softwareBuffer) Delete() {
	if b.deleted {
		return
	}
	b.deleted = true
	b.data = nil
	b.dev.surface.track(func(r *Resources) { r.Buffers-- })
}

func (d *SoftwareDevice) CompileProgram() (Program, error) {
	if d.released {
		return nil, ErrContextUnavailable
	}
	d.surface.track(func(r *Resources) { r.Programs++ })
	return &softwareProgram{dev: d}, nil
}

func (d *SoftwareDevice) CreateBuffer() (Buffer, error) {
	if d.released {
		return nil, ErrContextUnavailable
	}
	d.surface.track(func(r *Resources) { r.Buffers++ })
	return &softwareBuffer{dev: d}, nil
}

// Resize reallocates the canvas. Each side is clamped to
// [0, geo.MaxViewportSize].
func (d *SoftwareDevice) Resize(width, height int) {
	width = min(max(width, 0), geo.MaxViewportSize)
	height = min(max(height, 0), geo.MaxViewportSize)
	if d.img != nil && d.img.Rect.Dx() == width && d.img.Rect.Dy() == height {
		return
	}
	d.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

func (d *SoftwareDevice) Clear() {
	if d.img == nil {
		return
	}
	clear(d.img.Pix)
}

func (d *SoftwareDevice) DrawPoints(program Program, positions, colors, sizes Buffer, count int) error {
	if d.released {
		return ErrContextUnavailable
	}
	if p, ok := program.(*softwareProgram); !ok || p.deleted {
		return errDeleted
	}
	pos, ok1 := positions.(*softwareBuffer)
	col, ok2 := colors.(*softwareBuffer)
	sz, ok3 := sizes.(*softwareBuffer)
	if !ok1 || !ok2 || !ok3 || pos.deleted || col.deleted || sz.deleted {
		return errDeleted
	}
	if d.img == nil {
		return nil
	}

	count = min(count, len(pos.data)/2, len(col.data)/4, len(sz.data))
	for i := 0; i < count; i++ {
		mask := d.spriteFor(sz.data[i])
		b := mask.Bounds()
		at := image.Pt(
			int(math.Round(float64(pos.data[i*2])))-b.Dx()/2,
			int(math.Round(float64(pos.data[i*2+1])))-b.Dy()/2,
		)
		c := color.NRGBA{
			R: toByte(col.data[i*4]),
			G: toByte(col.data[i*4+1]),
			B: toByte(col.data[i*4+2]),
			A: toByte(col.data[i*4+3]),
		}
		draw.DrawMask(d.img, b.Add(at), image.NewUniform(c), image.Point{}, mask, image.Point{}, draw.Over)
	}
	return nil
}

// spriteFor returns the coverage mask of a disc of the given diameter. The
// disc fills 80% of the sprite, matching a soft-edged point sprite.
func (d *SoftwareDevice) spriteFor(diameter float32) *image.Alpha {
	if d.sprite != nil && d.spriteD == diameter {
		return d.sprite
	}

	n := int(math.Ceil(float64(diameter))) + 2
	cx, cy := float32(n)/2, float32(n)/2
	r := diameter * 0.4

	// Four cubic arcs approximate the circle.
	const k = 0.5522847
	z := vector.NewRasterizer(n, n)
	z.MoveTo(cx+r, cy)
	z.CubeTo(cx+r, cy+k*r, cx+k*r, cy+r, cx, cy+r)
	z.CubeTo(cx-k*r, cy+r, cx-r, cy+k*r, cx-r, cy)
	z.CubeTo(cx-r, cy-k*r, cx-k*r, cy-r, cx, cy-r)
	z.CubeTo(cx+k*r, cy-r, cx+r, cy-k*r, cx+r, cy)
	z.ClosePath()

	mask := image.NewAlpha(image.Rect(0, 0, n, n))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	d.sprite, d.spriteD = mask, diameter
	return mask
}

// Image returns the canvas. It is nil until the first Resize.
func (d *SoftwareDevice) Image() *image.RGBA {
	return d.img
}

func (d *SoftwareDevice) Release() {
	if d.released {
		return
	}
	d.released = true
	d.img, d.sprite = nil, nil
	d.surface.track(func(r *Resources) { r.Contexts-- })
}

func toByte(v float32) uint8 {
	return uint8(math.Round(float64(max(0, min(1, v))) * 255))
}
