// Package render draws very large point sets as point sprites, bypassing
// per-marker output, with its own grid partition and zoom-driven level of
// detail.
package render

import "errors"

// ErrContextUnavailable is returned when a surface cannot provide a graphics
// context. Callers should feature-detect with Supported and fall back to
// marker rendering.
var ErrContextUnavailable = errors.New("graphics context unavailable")

// ErrDisposed is returned by a renderer after Dispose.
var ErrDisposed = errors.New("renderer disposed")

// Surface is a drawing target that hands out graphics contexts.
type Surface interface {
	// Supported reports whether Context can succeed without acquiring
	// anything.
	Supported() bool
	Context() (Device, error)
}

// Device is an acquired graphics context. Everything it creates must be
// deleted before the device is released.
type Device interface {
	CompileProgram() (Program, error)
	CreateBuffer() (Buffer, error)
	Resize(width, height int)
	Clear()
	// DrawPoints draws count point sprites from parallel buffers: two
	// position floats, four color floats and one size float per point.
	DrawPoints(program Program, positions, colors, sizes Buffer, count int) error
	Release()
}

type Program interface {
	Delete()
}

type Buffer interface {
	Upload(data []float32)
	Delete()
}

// Supported reports whether point rendering is available on s.
func Supported(s Surface) bool {
	return s != nil && s.Supported()
}

// UnsupportedSurface never provides a context.
type UnsupportedSurface struct{}

func (UnsupportedSurface) Supported() bool { return false }

func (UnsupportedSurface) Context() (Device, error) { return nil, ErrContextUnavailable }
