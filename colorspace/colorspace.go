/*
Package colorspace implements the ITU-R BT.601 full-range conversion between
RGB and Y, Cb, Cr.

Each output component is rounded to the nearest integer using an explicit
Rounding rule and then clipped to [0, 255]. The pair of transforms is not bit
exact; a forward then inverse conversion may move each RGB component by a
small amount.
*/
package colorspace

import (
	"fmt"
	"math"

	"github.com/bodgit/ycc/raster"
)

// Rounding selects how exact halves are resolved when a transformed value is
// rounded to an integer.
type Rounding int

const (
	// HalfAwayFromZero rounds 0.5 up to 1 and -0.5 down to -1.
	HalfAwayFromZero Rounding = iota
	// HalfToEven rounds 0.5 to 0 and 1.5 to 2, matching NumPy's round.
	HalfToEven
)

// ParseRounding converts a rounding rule name to a Rounding.
func ParseRounding(s string) (Rounding, error) {
	switch s {
	case "half-away", "":
		return HalfAwayFromZero, nil
	case "half-even":
		return HalfToEven, nil
	default:
		return 0, fmt.Errorf("unknown rounding rule: %q", s)
	}
}

func (r Rounding) String() string {
	switch r {
	case HalfAwayFromZero:
		return "half-away"
	case HalfToEven:
		return "half-even"
	default:
		return fmt.Sprintf("Rounding(%d)", int(r))
	}
}

// Round rounds v to an integer according to r.
func (r Rounding) Round(v float64) float64 {
	if r == HalfToEven {
		return math.RoundToEven(v)
	}
	return math.Round(v)
}

func (r Rounding) clip(v float64) byte {
	v = r.Round(v)
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return byte(v)
}

// ToYCbCr converts a single RGB triple.
func ToYCbCr(r, g, b byte, rnd Rounding) (y, cb, cr byte) {
	rf, gf, bf := float64(r), float64(g), float64(b)

	y = rnd.clip(0.299*rf + 0.587*gf + 0.114*bf)
	cb = rnd.clip(128 - 0.168736*rf - 0.331264*gf + 0.5*bf)
	cr = rnd.clip(128 + 0.5*rf - 0.418688*gf - 0.081312*bf)
	return
}

// ToRGB converts a single Y, Cb, Cr triple.
func ToRGB(y, cb, cr byte, rnd Rounding) (r, g, b byte) {
	yf, cbf, crf := float64(y), float64(cb)-128, float64(cr)-128

	r = rnd.clip(yf + 1.402*crf)
	g = rnd.clip(yf - 0.344136*cbf - 0.714136*crf)
	b = rnd.clip(yf + 1.772*cbf)
	return
}

// Forward splits img into its Y, Cb and Cr channels. img is not modified.
func Forward(img *raster.Image, rnd Rounding) (y, cb, cr *raster.Channel) {
	s := img.Shape()
	y = raster.NewChannel(raster.Y, s)
	cb = raster.NewChannel(raster.Cb, s)
	cr = raster.NewChannel(raster.Cr, s)

	for i := range y.Pix {
		p := img.Pix[i*3 : i*3+3 : i*3+3]
		y.Pix[i], cb.Pix[i], cr.Pix[i] = ToYCbCr(p[0], p[1], p[2], rnd)
	}
	return
}

// Inverse recombines Y, Cb and Cr channels into an RGB image. All three
// channels must share the shape of y.
func Inverse(y, cb, cr *raster.Channel, rnd Rounding) (*raster.Image, error) {
	s := y.Shape()
	for _, c := range []*raster.Channel{y, cb, cr} {
		if err := raster.CheckChannel(c, s); err != nil {
			return nil, err
		}
	}

	img := raster.NewImage(s.Width, s.Height)
	for i := range y.Pix {
		p := img.Pix[i*3 : i*3+3 : i*3+3]
		p[0], p[1], p[2] = ToRGB(y.Pix[i], cb.Pix[i], cr.Pix[i], rnd)
	}
	return img, nil
}
