/*
Package ppm implements a decoder and encoder for binary Netpbm pixel maps
(P6).

The file is an ASCII header of the magic "P6", the width, the height and the
maximum sample value, separated by whitespace and optionally interleaved with
"#" comments, followed by a single whitespace byte and the raw interleaved
R, G, B samples. Samples are one byte each when the maximum value is below 256
and two big-endian bytes otherwise. Images whose maximum value is not 255
are rescaled to eight bits on decode.
*/
package ppm

import (
	"fmt"
	"image"
	"image/color"
	"io"
)

const (
	// Extension is the conventional file extension
	Extension = ".ppm"

	magic     = "P6"
	maxMaxVal = 65535

	// Guard against headers claiming absurd dimensions
	maxPixels = 1 << 28
)

// FormatError reports a malformed or unsupported pixel map header or body.
type FormatError struct {
	Offset int64
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("ppm: invalid format at offset %d: %s", e.Offset, e.Reason)
}

func init() {
	image.RegisterFormat("ppm", magic, Decode, DecodeConfig)
}

// Header holds the values parsed from a pixel map header.
type Header struct {
	Width  int
	Height int
	MaxVal int
}

// Decode reads a pixel map from r and returns it as an image.Image.
func Decode(r io.Reader) (image.Image, error) {
	m, err := Read(r)
	if err != nil {
		return nil, err
	}
	return m.RGBA(), nil
}

// DecodeConfig returns the color model and dimensions of a pixel map without
// reading the samples.
func DecodeConfig(r io.Reader) (image.Config, error) {
	var d decoder
	h, err := d.readHeader(r)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{
		ColorModel: color.RGBAModel,
		Width:      h.Width,
		Height:     h.Height,
	}, nil
}
