package quant

import (
	"errors"
	"testing"

	"github.com/bodgit/ycc/colorspace"
	"github.com/bodgit/ycc/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rampChannel() *raster.Channel {
	c := raster.NewChannel(raster.Y, raster.Shape{Height: 16, Width: 16})
	for i := range c.Pix {
		c.Pix[i] = byte(i)
	}
	return c
}

func TestValue(t *testing.T) {
	tables := []struct {
		s       byte
		modulus int
		away    byte
		even    byte
	}{
		{37, 10, 40, 40},
		{34, 10, 30, 30},
		{35, 10, 40, 40}, // 3.5 -> 4 either way
		{25, 10, 30, 20}, // 2.5 -> 3 or 2
		{255, 10, 255, 255},
		{254, 10, 250, 250},
		{255, 7, 252, 252},
		{200, 300, 255, 255},
		{100, 300, 0, 0},
		{0, 4, 0, 0},
	}

	for _, table := range tables {
		assert.Equal(t, table.away, Value(table.s, table.modulus, colorspace.HalfAwayFromZero), "%d/%d", table.s, table.modulus)
		assert.Equal(t, table.even, Value(table.s, table.modulus, colorspace.HalfToEven), "%d/%d", table.s, table.modulus)
	}
}

func TestQuantizeIdentity(t *testing.T) {
	c := rampChannel()

	q, err := Quantize(c, 1, colorspace.HalfAwayFromZero)
	require.NoError(t, err)
	assert.Equal(t, c.Pix, q.Pix)
	assert.Equal(t, c.Shape(), q.Shape())
	assert.Equal(t, c.Name, q.Name)

	q.Pix[0] = 99
	assert.Equal(t, byte(0), c.Pix[0], "result must not alias the input")
}

func TestQuantizeIdempotent(t *testing.T) {
	c := rampChannel()

	for _, rnd := range []colorspace.Rounding{colorspace.HalfAwayFromZero, colorspace.HalfToEven} {
		for m := 1; m <= 300; m++ {
			once, err := Quantize(c, m, rnd)
			require.NoError(t, err)
			twice, err := Quantize(once, m, rnd)
			require.NoError(t, err)
			assert.Equal(t, once.Pix, twice.Pix, "modulus %d, %v", m, rnd)
		}
	}
}

func TestQuantizeFewerValues(t *testing.T) {
	c := rampChannel()

	distinct := func(b []byte) int {
		seen := make(map[byte]struct{})
		for _, v := range b {
			seen[v] = struct{}{}
		}
		return len(seen)
	}

	prev := distinct(c.Pix)
	for _, m := range []int{2, 4, 8, 16, 32, 64, 128} {
		q, err := Quantize(c, m, colorspace.HalfAwayFromZero)
		require.NoError(t, err)
		n := distinct(q.Pix)
		assert.LessOrEqual(t, n, prev, "modulus %d", m)
		prev = n
	}
}

func TestQuantizeInvalidModulus(t *testing.T) {
	for _, m := range []int{0, -1, -10} {
		_, err := Quantize(rampChannel(), m, colorspace.HalfAwayFromZero)
		require.Error(t, err)

		var ipe *InvalidParameterError
		require.True(t, errors.As(err, &ipe))
		assert.Equal(t, m, ipe.Modulus)
		assert.Equal(t, raster.Y, ipe.Channel)
	}
}

func TestModuli(t *testing.T) {
	m := Moduli{Y: 4, Cb: 7, Cr: 7}
	require.NoError(t, m.Validate())
	assert.Equal(t, 4, m.For(raster.Y))
	assert.Equal(t, 7, m.For(raster.Cr))
	assert.Equal(t, 0, m.For("A"))
	assert.Equal(t, "Y=4 Cb=7 Cr=7", m.String())

	err := Moduli{Y: 4, Cb: 0, Cr: 7}.Validate()
	var ipe *InvalidParameterError
	require.True(t, errors.As(err, &ipe))
	assert.Equal(t, raster.Cb, ipe.Channel)
}
