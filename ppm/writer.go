package ppm

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/bodgit/ycc/raster"
)

// Write writes m to w as an eight bit P6 pixel map.
func Write(w io.Writer, m *raster.Image) error {
	if len(m.Pix) != m.Width*m.Height*3 {
		return errors.New("ppm: pixel buffer does not match dimensions")
	}

	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "%s\n%d %d\n255\n", magic, m.Width, m.Height); err != nil {
		return err
	}
	if _, err := bw.Write(m.Pix); err != nil {
		return err
	}
	return bw.Flush()
}

// Encode writes the Image m to w in P6 format. Alpha is discarded.
func Encode(w io.Writer, m image.Image) error {
	return Write(w, raster.FromImage(m))
}

// WriteFile writes m to path.
func WriteFile(path string, m *raster.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return Write(f, m)
}
