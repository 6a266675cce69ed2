package ycc

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/ycc/container"
	"github.com/bodgit/ycc/ppm"
	"github.com/bodgit/ycc/raster"
	"github.com/bodgit/ycc/rle"
	"github.com/disintegration/gift"
	"github.com/ericpauley/go-quantize/quantize"
	"golang.org/x/image/bmp"
)

const (
	jpegQuality = 95
	gifColors   = 256
)

var errUnsupportedImage = errors.New("unsupported image format")

func imageExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func readImage(path string) (*raster.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	h := sha1.New()
	r := io.TeeReader(f, h)

	var m *raster.Image
	switch imageExt(path) {
	case ppm.Extension, ".pnm":
		if m, err = ppm.Read(r); err != nil {
			return nil, "", err
		}
		// Hash anything trailing the samples too, so the digest covers the file
		if _, err = io.Copy(io.Discard, r); err != nil {
			return nil, "", err
		}
	default:
		var img image.Image
		if img, _, err = image.Decode(r); err != nil {
			return nil, "", fmt.Errorf("%s: %w", path, err)
		}
		if _, err = io.Copy(io.Discard, r); err != nil {
			return nil, "", err
		}
		m = raster.FromImage(img)
	}

	return m, fmt.Sprintf("%X", h.Sum(nil)), nil
}

// ReadImage reads a PPM, PNG, JPEG, GIF or BMP image from path.
func ReadImage(path string) (*raster.Image, error) {
	m, _, err := readImage(path)
	return m, err
}

func paletted(m image.Image) *image.Paletted {
	b := m.Bounds()
	q := quantize.MedianCutQuantizer{}
	pm := image.NewPaletted(b, q.Quantize(make(color.Palette, 0, gifColors), m))
	draw.Draw(pm, b, m, b.Min, draw.Src)
	return pm
}

// EncodeImage writes m to w in the named format, one of "ppm", "png",
// "jpeg", "gif" or "bmp".
func EncodeImage(w io.Writer, m *raster.Image, format string) error {
	switch format {
	case "ppm", "pnm":
		return ppm.Write(w, m)
	case "png":
		return png.Encode(w, m.RGBA())
	case "jpeg", "jpg":
		return jpeg.Encode(w, m.RGBA(), &jpeg.Options{Quality: jpegQuality})
	case "gif":
		// Reduce to a single median cut palette rather than the default
		// Plan9 palette
		return gif.Encode(w, paletted(m.RGBA()), &gif.Options{NumColors: gifColors})
	case "bmp":
		return bmp.Encode(w, m.RGBA())
	default:
		return fmt.Errorf("%w: %q", errUnsupportedImage, format)
	}
}

// WriteImage writes m to path in the format implied by its extension.
func WriteImage(path string, m *raster.Image) (err error) {
	format := strings.TrimPrefix(imageExt(path), ".")
	switch format {
	case "ppm", "pnm", "png", "jpeg", "jpg", "gif", "bmp":
	default:
		return fmt.Errorf("%s: %w", path, errUnsupportedImage)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return EncodeImage(f, m, format)
}

// Preview returns the named channel of ct as a grayscale image scaled to
// width pixels wide. A width of zero or the container width leaves the
// channel at its original size.
func Preview(ct *container.Container, name string, width int) (image.Image, error) {
	runs, ok := ct.Runs(name)
	if !ok {
		return nil, fmt.Errorf("unknown channel %q", name)
	}
	ch, err := rle.Decompress(name, runs, ct.Shape)
	if err != nil {
		return nil, err
	}

	src := ch.Gray()
	if width <= 0 || width == ch.Width || ch.Width == 0 {
		return src, nil
	}

	g := gift.New(gift.Resize(width, 0, gift.LanczosResampling))
	dst := image.NewGray(g.Bounds(src.Bounds()))
	g.Draw(dst, src)
	return dst, nil
}
