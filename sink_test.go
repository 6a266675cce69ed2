package ycc

import (
	"bytes"
	"errors"
	"image"
	"path/filepath"
	"testing"

	"github.com/bodgit/ycc/container"
	"github.com/bodgit/ycc/raster"
	"github.com/bodgit/ycc/rle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadImage(t *testing.T) {
	dir := t.TempDir()
	img := randomImage(12, 6, 8)

	// Lossless formats come back exactly
	for _, ext := range []string{".ppm", ".png", ".bmp"} {
		path := filepath.Join(dir, "image"+ext)
		require.NoError(t, WriteImage(path, img))
		got, err := ReadImage(path)
		require.NoError(t, err)
		assert.Equal(t, img, got, ext)
	}

	for _, ext := range []string{".jpg", ".gif"} {
		path := filepath.Join(dir, "image"+ext)
		require.NoError(t, WriteImage(path, img))
		got, err := ReadImage(path)
		require.NoError(t, err)
		assert.Equal(t, img.Shape(), got.Shape(), ext)
	}

	err := WriteImage(filepath.Join(dir, "image.tiff"), img)
	assert.True(t, errors.Is(err, errUnsupportedImage))
}

func TestEncodeImageGIFPalette(t *testing.T) {
	img := raster.NewImage(4, 1)
	img.Set(0, 0, 255, 0, 0)
	img.Set(1, 0, 0, 255, 0)
	img.Set(2, 0, 0, 0, 255)

	b := new(bytes.Buffer)
	require.NoError(t, EncodeImage(b, img, "gif"))

	m, format, err := image.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, "gif", format)

	pm, ok := m.(*image.Paletted)
	require.True(t, ok)
	assert.LessOrEqual(t, len(pm.Palette), 256)
}

func TestPreview(t *testing.T) {
	ct, err := container.New(raster.Shape{Height: 2, Width: 4},
		rle.RunList{{Value: 10, Count: 4}, {Value: 200, Count: 4}},
		rle.RunList{{Value: 128, Count: 8}},
		rle.RunList{{Value: 128, Count: 8}},
	)
	require.NoError(t, err)

	m, err := Preview(ct, raster.Y, 0)
	require.NoError(t, err)
	g, ok := m.(*image.Gray)
	require.True(t, ok)
	assert.Equal(t, image.Rect(0, 0, 4, 2), g.Bounds())
	assert.Equal(t, uint8(10), g.GrayAt(0, 0).Y)
	assert.Equal(t, uint8(200), g.GrayAt(3, 1).Y)

	m, err = Preview(ct, raster.Cb, 2)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 1), m.Bounds())

	_, err = Preview(ct, "K", 0)
	assert.Error(t, err)
}
