/*
Package quant maps channel samples onto a coarser grid so that run-length
encoding finds longer runs.

A sample s quantized with modulus m becomes round(s/m)*m clipped to
[0, 255]. Ties are resolved with the same Rounding rule as the color
transform.
*/
package quant

import (
	"fmt"

	"github.com/bodgit/ycc/colorspace"
	"github.com/bodgit/ycc/raster"
)

// InvalidParameterError is returned for a modulus that is not a positive
// integer.
type InvalidParameterError struct {
	Channel string
	Modulus int
}

func (e *InvalidParameterError) Error() string {
	if e.Channel == "" {
		return fmt.Sprintf("quant: invalid modulus %d, must be >= 1", e.Modulus)
	}
	return fmt.Sprintf("quant: channel %s: invalid modulus %d, must be >= 1", e.Channel, e.Modulus)
}

// Moduli holds one quantization step per channel.
type Moduli struct {
	Y  int
	Cb int
	Cr int
}

// Validate checks every modulus is at least 1.
func (m Moduli) Validate() error {
	for _, name := range raster.Names {
		if v := m.For(name); v < 1 {
			return &InvalidParameterError{Channel: name, Modulus: v}
		}
	}
	return nil
}

// For returns the modulus for the named channel, or 0 for an unknown name.
func (m Moduli) For(name string) int {
	switch name {
	case raster.Y:
		return m.Y
	case raster.Cb:
		return m.Cb
	case raster.Cr:
		return m.Cr
	}
	return 0
}

func (m Moduli) String() string {
	return fmt.Sprintf("Y=%d Cb=%d Cr=%d", m.Y, m.Cb, m.Cr)
}

// Value quantizes a single sample. modulus must be >= 1.
func Value(s byte, modulus int, rnd colorspace.Rounding) byte {
	q, r := int(s)/modulus, int(s)%modulus
	switch {
	case 2*r > modulus:
		q++
	case 2*r == modulus:
		if rnd != colorspace.HalfToEven || q%2 == 1 {
			q++
		}
	}
	if v := q * modulus; v < 255 {
		return byte(v)
	}
	return 255
}

// Quantize returns a new channel with every sample of c quantized to
// modulus. c is left untouched. A modulus of 1 returns an identical copy.
func Quantize(c *raster.Channel, modulus int, rnd colorspace.Rounding) (*raster.Channel, error) {
	if modulus < 1 {
		return nil, &InvalidParameterError{Channel: c.Name, Modulus: modulus}
	}

	out := c.Clone()
	if modulus == 1 {
		return out, nil
	}

	// There are only 256 possible inputs
	var table [256]byte
	for i := range table {
		table[i] = Value(byte(i), modulus, rnd)
	}
	for i, s := range out.Pix {
		out.Pix[i] = table[s]
	}
	return out, nil
}
