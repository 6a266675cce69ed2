package colorspace

import (
	"errors"
	"testing"

	"github.com/bodgit/ycc/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func TestToYCbCrKnownPixels(t *testing.T) {
	tables := []struct {
		name      string
		r, g, b   byte
		y, cb, cr byte
	}{
		{"black", 0, 0, 0, 0, 128, 128},
		{"white", 255, 255, 255, 255, 128, 128},
		{"red", 255, 0, 0, 76, 85, 255},
		{"green", 0, 255, 0, 150, 44, 21},
		{"blue", 0, 0, 255, 29, 255, 107},
		{"grey", 128, 128, 128, 128, 128, 128},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			y, cb, cr := ToYCbCr(table.r, table.g, table.b, HalfAwayFromZero)
			assert.Equal(t, table.y, y, "Y")
			assert.Equal(t, table.cb, cb, "Cb")
			assert.Equal(t, table.cr, cr, "Cr")
		})
	}
}

func TestRounding(t *testing.T) {
	tables := []struct {
		in        float64
		away, even float64
	}{
		{0.5, 1, 0},
		{1.5, 2, 2},
		{2.5, 3, 2},
		{-0.5, -1, 0},
		{127.4, 127, 127},
		{127.6, 128, 128},
	}

	for _, table := range tables {
		assert.Equal(t, table.away, HalfAwayFromZero.Round(table.in), "%v", table.in)
		assert.Equal(t, table.even, HalfToEven.Round(table.in), "%v", table.in)
	}
}

func TestParseRounding(t *testing.T) {
	r, err := ParseRounding("half-even")
	require.NoError(t, err)
	assert.Equal(t, HalfToEven, r)

	r, err = ParseRounding("")
	require.NoError(t, err)
	assert.Equal(t, HalfAwayFromZero, r)

	_, err = ParseRounding("banker")
	assert.Error(t, err)

	assert.Equal(t, "half-away", HalfAwayFromZero.String())
}

// Every component on a lattice covering the corners of the RGB cube must come
// back within 2 of where it started.
func TestRoundTripBoundedError(t *testing.T) {
	for _, rnd := range []Rounding{HalfAwayFromZero, HalfToEven} {
		t.Run(rnd.String(), func(t *testing.T) {
			worst := 0
			for r := 0; r < 256; r += 5 {
				for g := 0; g < 256; g += 3 {
					for b := 0; b < 256; b += 7 {
						y, cb, cr := ToYCbCr(byte(r), byte(g), byte(b), rnd)
						r2, g2, b2 := ToRGB(y, cb, cr, rnd)
						for _, d := range []int{
							abs(int(r2) - r),
							abs(int(g2) - g),
							abs(int(b2) - b),
						} {
							if d > worst {
								worst = d
							}
						}
					}
				}
			}
			assert.LessOrEqual(t, worst, 2)
		})
	}
}

func TestForwardInverse(t *testing.T) {
	img := raster.NewImage(4, 3)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			img.Set(x, y, byte(x*60), byte(y*100), byte(255-x*40))
		}
	}
	orig := img.Clone()

	yc, cb, cr := Forward(img, HalfAwayFromZero)
	assert.Equal(t, orig.Pix, img.Pix, "input must not be modified")
	assert.Equal(t, raster.Y, yc.Name)
	assert.Equal(t, raster.Cb, cb.Name)
	assert.Equal(t, raster.Cr, cr.Name)
	assert.Equal(t, img.Shape(), yc.Shape())

	out, err := Inverse(yc, cb, cr, HalfAwayFromZero)
	require.NoError(t, err)
	require.Equal(t, img.Shape(), out.Shape())
	for i := range img.Pix {
		assert.LessOrEqual(t, abs(int(out.Pix[i])-int(img.Pix[i])), 2, "component %d", i)
	}
}

func TestForwardAllBlack(t *testing.T) {
	img := raster.NewImage(2, 2)

	y, cb, cr := Forward(img, HalfAwayFromZero)
	assert.Equal(t, []byte{0, 0, 0, 0}, y.Pix)
	assert.Equal(t, []byte{128, 128, 128, 128}, cb.Pix)
	assert.Equal(t, []byte{128, 128, 128, 128}, cr.Pix)

	out, err := Inverse(y, cb, cr, HalfAwayFromZero)
	require.NoError(t, err)
	assert.Equal(t, img.Pix, out.Pix)
}

func TestInverseShapeMismatch(t *testing.T) {
	y := raster.NewChannel(raster.Y, raster.Shape{Height: 2, Width: 3})
	cb := raster.NewChannel(raster.Cb, raster.Shape{Height: 2, Width: 3})
	cr := raster.NewChannel(raster.Cr, raster.Shape{Height: 3, Width: 2})

	_, err := Inverse(y, cb, cr, HalfAwayFromZero)
	require.Error(t, err)

	var sme *raster.ShapeMismatchError
	require.True(t, errors.As(err, &sme))
	assert.Equal(t, raster.Cr, sme.Channel)
	assert.Equal(t, raster.Shape{Height: 2, Width: 3}, sme.Shape)
	assert.Equal(t, raster.Shape{Height: 3, Width: 2}, sme.Got)
}
