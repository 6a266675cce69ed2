package container

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/bodgit/ycc/raster"
	"github.com/bodgit/ycc/rle"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T) *Container {
	t.Helper()
	c, err := New(raster.Shape{Height: 2, Width: 3},
		rle.RunList{{Value: 10, Count: 3}, {Value: 20, Count: 2}, {Value: 5, Count: 1}},
		rle.RunList{{Value: 128, Count: 6}},
		rle.RunList{{Value: 0, Count: 1}, {Value: 255, Count: 5}},
	)
	require.NoError(t, err)
	return c
}

func TestNewValidates(t *testing.T) {
	_, err := New(raster.Shape{Height: 2, Width: 3},
		rle.RunList{{Value: 10, Count: 3}, {Value: 20, Count: 2}},
		rle.RunList{{Value: 128, Count: 6}},
		rle.RunList{{Value: 128, Count: 6}},
	)
	var sme *raster.ShapeMismatchError
	require.True(t, errors.As(err, &sme))
	assert.Equal(t, raster.Y, sme.Channel)
	assert.Equal(t, 5, sme.Count)

	_, err = New(raster.Shape{Height: 1, Width: 2},
		rle.RunList{{Value: 1, Count: 2}},
		rle.RunList{{Value: 1, Count: 3}, {Value: 2, Count: -1}},
		rle.RunList{{Value: 1, Count: 2}},
	)
	var cre *rle.CorruptRunError
	require.True(t, errors.As(err, &cre))
	assert.Equal(t, raster.Cb, cre.Channel)

	_, err = New(raster.Shape{Height: math.MaxInt32, Width: math.MaxInt32}, nil, nil, nil)
	assert.True(t, errors.Is(err, errBadShape))
}

func TestRoundTrip(t *testing.T) {
	tables := []struct {
		name   string
		format Format
	}{
		{"native", Native},
		{"npz", NPZ},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			c := sample(t)

			b := new(bytes.Buffer)
			require.NoError(t, Write(b, c, table.format))

			got, err := Read(bytes.NewReader(b.Bytes()), int64(b.Len()), table.format)
			require.NoError(t, err)
			assert.Equal(t, c, got)
		})
	}
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	c := sample(t)

	for _, name := range []string{"image" + Extension, "image" + NPZExtension} {
		path := filepath.Join(dir, name)
		require.NoError(t, WriteFile(path, c))

		got, err := ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	// The NPZ file really is a zip of npy members
	zr, err := zip.OpenReader(filepath.Join(dir, "image"+NPZExtension))
	require.NoError(t, err)
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"Y.npy", "Cb.npy", "Cr.npy", "shape.npy"}, names)
}

func TestMarshalBinary(t *testing.T) {
	c := sample(t)

	b, err := c.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte("YCC1"), b[:4])

	var got Container
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, *c, got)

	// Flip a byte in the checksum
	bad := append([]byte(nil), b...)
	bad[4] ^= 0xff
	assert.Equal(t, ErrChecksum, got.UnmarshalBinary(bad))

	bad = append([]byte(nil), b...)
	bad[0] = 'X'
	assert.Equal(t, ErrBadMagic, got.UnmarshalBinary(bad))

	assert.Error(t, got.UnmarshalBinary(b[:6]))
	assert.Error(t, got.UnmarshalBinary(b[:len(b)-3]))
}

func TestPreservesRunOrder(t *testing.T) {
	// Adjacent equal values are not produced by the encoder but the container
	// must still store exactly what it is given
	c, err := New(raster.Shape{Height: 1, Width: 4},
		rle.RunList{{Value: 1, Count: 1}, {Value: 1, Count: 1}, {Value: 2, Count: 2}},
		rle.RunList{{Value: 2, Count: 2}, {Value: 1, Count: 2}},
		rle.RunList{{Value: 4, Count: 4}},
	)
	require.NoError(t, err)

	for _, f := range []Format{Native, NPZ} {
		b := new(bytes.Buffer)
		require.NoError(t, Write(b, c, f))
		got, err := Read(bytes.NewReader(b.Bytes()), int64(b.Len()), f)
		require.NoError(t, err)
		assert.Equal(t, c.Y, got.Y, f.String())
		assert.Equal(t, c.Cb, got.Cb, f.String())
	}
}

func TestNPY(t *testing.T) {
	b := new(bytes.Buffer)
	require.NoError(t, writeNPY(b, []int{3, 2}, []int64{10, 3, 20, 2, 5, 1}))
	assert.Equal(t, 0, (b.Len()-6*8)%npyAlign, "data must start aligned")

	arr, err := readNPY(bytes.NewReader(b.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 2}, arr.dims)
	assert.Equal(t, []int64{10, 3, 20, 2, 5, 1}, arr.data)

	b.Reset()
	require.NoError(t, writeNPY(b, []int{2}, []int64{480, 640}))
	assert.Contains(t, b.String(), "'shape': (2,)")
}

func npy(header string, data []byte) []byte {
	b := new(bytes.Buffer)
	b.WriteString(npyMagic)
	b.Write([]byte{1, 0, byte(len(header)), 0})
	b.WriteString(header)
	b.Write(data)
	return b.Bytes()
}

func TestReadNPYVariants(t *testing.T) {
	tables := []struct {
		name string
		npy  []byte
		dims []int
		data []int64
	}{
		{
			"uint8",
			npy("{'descr': '|u1', 'fortran_order': False, 'shape': (2, 2), }\n", []byte{10, 3, 20, 2}),
			[]int{2, 2},
			[]int64{10, 3, 20, 2},
		},
		{
			"big endian int32",
			npy("{'descr': '>i4', 'fortran_order': False, 'shape': (2,), }\n", []byte{0, 0, 1, 0, 0, 0, 0, 2}),
			[]int{2},
			[]int64{256, 2},
		},
		{
			"fortran order",
			npy("{'descr': '<i2', 'fortran_order': True, 'shape': (2, 2), }\n", []byte{10, 0, 20, 0, 3, 0, 2, 0}),
			[]int{2, 2},
			[]int64{10, 3, 20, 2},
		},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			arr, err := readNPY(bytes.NewReader(table.npy))
			require.NoError(t, err)
			assert.Equal(t, table.dims, arr.dims)
			assert.Equal(t, table.data, arr.data)
		})
	}

	_, err := readNPY(bytes.NewReader(npy("{'descr': '<f8', 'fortran_order': False, 'shape': (1,), }\n", make([]byte, 8))))
	assert.True(t, errors.Is(err, errBadNPY))

	_, err = readNPY(bytes.NewReader(npy("{'descr': '<i8', 'fortran_order': False, 'shape': (2,), }\n", make([]byte, 8))))
	assert.True(t, errors.Is(err, errBadNPY))

	// Element counts that wrap to zero bytes of data
	_, err = readNPY(bytes.NewReader(npy("{'descr': '<i8', 'fortran_order': False, 'shape': (4611686018427387904, 2), }\n", nil)))
	assert.True(t, errors.Is(err, errBadNPY))

	_, err = readNPY(bytes.NewReader(npy("{'descr': '<i8', 'fortran_order': False, 'shape': (9223372036854775807, 9223372036854775807), }\n", nil)))
	assert.True(t, errors.Is(err, errBadNPY))
}

func TestReadNPZCorrupt(t *testing.T) {
	build := func(members map[string][]byte) []byte {
		b := new(bytes.Buffer)
		zw := zip.NewWriter(b)
		for name, data := range members {
			fw, err := zw.Create(name)
			require.NoError(t, err)
			_, err = fw.Write(data)
			require.NoError(t, err)
		}
		require.NoError(t, zw.Close())
		return b.Bytes()
	}

	runs := func(pairs ...int64) []byte {
		b := new(bytes.Buffer)
		require.NoError(t, writeNPY(b, []int{len(pairs) / 2, 2}, pairs))
		return b.Bytes()
	}
	shape := func(h, w int64) []byte {
		b := new(bytes.Buffer)
		require.NoError(t, writeNPY(b, []int{2}, []int64{h, w}))
		return b.Bytes()
	}

	t.Run("value out of range", func(t *testing.T) {
		b := build(map[string][]byte{
			"Y.npy":     runs(300, 4),
			"Cb.npy":    runs(1, 4),
			"Cr.npy":    runs(1, 4),
			"shape.npy": shape(2, 2),
		})
		_, err := Read(bytes.NewReader(b), int64(len(b)), NPZ)
		var cre *rle.CorruptRunError
		require.True(t, errors.As(err, &cre))
		assert.Equal(t, raster.Y, cre.Channel)
		assert.Equal(t, int64(300), cre.Value)
	})

	t.Run("short", func(t *testing.T) {
		b := build(map[string][]byte{
			"Y.npy":     runs(1, 4),
			"Cb.npy":    runs(1, 3),
			"Cr.npy":    runs(1, 4),
			"shape.npy": shape(2, 2),
		})
		_, err := Read(bytes.NewReader(b), int64(len(b)), NPZ)
		var sme *raster.ShapeMismatchError
		require.True(t, errors.As(err, &sme))
		assert.Equal(t, raster.Cb, sme.Channel)
		assert.Equal(t, 3, sme.Count)
	})

	t.Run("counts overflow", func(t *testing.T) {
		big := int64(math.MaxInt)
		b := build(map[string][]byte{
			"Y.npy":     runs(1, big, 2, big, 3, 8),
			"Cb.npy":    runs(1, 6),
			"Cr.npy":    runs(1, 6),
			"shape.npy": shape(2, 3),
		})
		_, err := Read(bytes.NewReader(b), int64(len(b)), NPZ)
		var sme *raster.ShapeMismatchError
		require.True(t, errors.As(err, &sme))
		assert.Equal(t, raster.Y, sme.Channel)
	})

	t.Run("huge shape", func(t *testing.T) {
		b := build(map[string][]byte{
			"Y.npy":     runs(),
			"Cb.npy":    runs(),
			"Cr.npy":    runs(),
			"shape.npy": shape(1<<32, 1<<32),
		})
		_, err := Read(bytes.NewReader(b), int64(len(b)), NPZ)
		assert.True(t, errors.Is(err, errBadShape))
	})

	t.Run("missing", func(t *testing.T) {
		b := build(map[string][]byte{
			"Y.npy":     runs(1, 4),
			"Cb.npy":    runs(1, 4),
			"shape.npy": shape(2, 2),
		})
		_, err := Read(bytes.NewReader(b), int64(len(b)), NPZ)
		assert.True(t, errors.Is(err, errMissingField))
	})
}

func TestFormat(t *testing.T) {
	assert.Equal(t, NPZ, FormatForPath("a/b/c.NPZ"))
	assert.Equal(t, Native, FormatForPath("c.ycc"))
	assert.Equal(t, Native, FormatForPath("c"))

	f, err := ParseFormat("npz")
	require.NoError(t, err)
	assert.Equal(t, NPZ, f)
	_, err = ParseFormat("hdf5")
	assert.Error(t, err)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.ycc"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
