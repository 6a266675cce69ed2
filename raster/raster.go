/*
Package raster holds the in-memory pixel and channel grids passed between the
stages of the codec.

Every grid is stored row-major; that order is the canonical flattening order
for all channel operations and is identical between encode and decode.
*/
package raster

import (
	"fmt"
	"image"
	"image/draw"
)

// Channel names, also used as field names in the persisted container.
const (
	Y  = "Y"
	Cb = "Cb"
	Cr = "Cr"
)

// Names lists the channel names in container order.
var Names = [...]string{Y, Cb, Cr}

// Shape is the (height, width) of a grid.
type Shape struct {
	Height int
	Width  int
}

// Len returns the number of samples in a grid of this shape.
func (s Shape) Len() int {
	return s.Height * s.Width
}

// Valid reports whether both dimensions are non-negative and an RGB image of
// this shape can be addressed with an int.
func (s Shape) Valid() bool {
	if s.Height < 0 || s.Width < 0 {
		return false
	}
	return s.Width == 0 || s.Height <= maxInt/3/s.Width
}

const maxInt = int(^uint(0) >> 1)

func (s Shape) String() string {
	return fmt.Sprintf("%dx%d", s.Height, s.Width)
}

// Image is a grid of 3-component pixels stored as interleaved R, G, B bytes.
type Image struct {
	Width  int
	Height int
	Pix    []byte // len = Width * Height * 3
}

// NewImage returns a black image of the given dimensions.
func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]byte, width*height*3),
	}
}

// Shape returns the image dimensions.
func (m *Image) Shape() Shape {
	return Shape{Height: m.Height, Width: m.Width}
}

// At returns the R, G, B components of the pixel at (x, y).
func (m *Image) At(x, y int) (r, g, b byte) {
	i := (y*m.Width + x) * 3
	return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
}

// Set stores the R, G, B components of the pixel at (x, y).
func (m *Image) Set(x, y int, r, g, b byte) {
	i := (y*m.Width + x) * 3
	m.Pix[i], m.Pix[i+1], m.Pix[i+2] = r, g, b
}

// RGBA converts the image to an *image.RGBA with every pixel opaque.
func (m *Image) RGBA() *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	for i, j := 0, 0; i < len(m.Pix); i, j = i+3, j+4 {
		dst.Pix[j+0] = m.Pix[i+0]
		dst.Pix[j+1] = m.Pix[i+1]
		dst.Pix[j+2] = m.Pix[i+2]
		dst.Pix[j+3] = 0xff
	}
	return dst
}

// FromImage copies any image.Image into an Image with its top-left corner at
// (0, 0). Alpha is discarded.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	rgba, ok := src.(*image.RGBA)
	if !ok || rgba.Rect.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	}

	m := NewImage(b.Dx(), b.Dy())
	for y := 0; y < m.Height; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < m.Width; x++ {
			m.Set(x, y, row[x*4+0], row[x*4+1], row[x*4+2])
		}
	}
	return m
}

// Clone returns a deep copy of the image.
func (m *Image) Clone() *Image {
	dup := *m
	dup.Pix = append([]byte(nil), m.Pix...)
	return &dup
}

// Channel is a grid of single-byte samples for one of the Y, Cb or Cr
// components.
type Channel struct {
	Name   string
	Width  int
	Height int
	Pix    []byte // len = Width * Height
}

// NewChannel returns a zeroed channel with the given name and shape.
func NewChannel(name string, s Shape) *Channel {
	return &Channel{
		Name:   name,
		Width:  s.Width,
		Height: s.Height,
		Pix:    make([]byte, s.Len()),
	}
}

// Shape returns the channel dimensions.
func (c *Channel) Shape() Shape {
	return Shape{Height: c.Height, Width: c.Width}
}

// Clone returns a deep copy of the channel.
func (c *Channel) Clone() *Channel {
	dup := *c
	dup.Pix = append([]byte(nil), c.Pix...)
	return &dup
}

// Gray returns the channel as an *image.Gray, useful for previewing a single
// component.
func (c *Channel) Gray() *image.Gray {
	g := image.NewGray(image.Rect(0, 0, c.Width, c.Height))
	copy(g.Pix, c.Pix)
	return g
}

// ShapeMismatchError reports a grid or sample count that disagrees with the
// shape it is supposed to fill.
type ShapeMismatchError struct {
	Channel string
	Shape   Shape // expected
	Count   int   // samples actually present
	Got     Shape // declared shape of the offending grid, if any
}

func (e *ShapeMismatchError) Error() string {
	if e.Got != (Shape{}) {
		return fmt.Sprintf("raster: channel %s: shape %v does not match %v", e.Channel, e.Got, e.Shape)
	}
	return fmt.Sprintf("raster: channel %s: %d samples do not fill %v shape (%d)", e.Channel, e.Count, e.Shape, e.Shape.Len())
}

// CheckChannel verifies that c has exactly the shape s and a matching sample
// buffer.
func CheckChannel(c *Channel, s Shape) error {
	if c.Shape() != s {
		return &ShapeMismatchError{Channel: c.Name, Shape: s, Count: len(c.Pix), Got: c.Shape()}
	}
	if len(c.Pix) != s.Len() {
		return &ShapeMismatchError{Channel: c.Name, Shape: s, Count: len(c.Pix)}
	}
	return nil
}
