/*
Package container persists the three run lists and the image shape produced
by the encoder.

Two on-disk formats are supported. The native format is a small header
followed by a zstd compressed body of four named fields: shape, Y, Cb and Cr.
The NPZ format is a ZIP archive of NumPy arrays with the same four names, as
written by numpy.savez_compressed, so containers can be exchanged with NumPy
based tooling.
*/
package container

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/ycc/raster"
	"github.com/bodgit/ycc/rle"
)

const (
	// Extension is the file extension used for the native format
	Extension = ".ycc"

	// NPZExtension is the file extension used for the NPZ format
	NPZExtension = ".npz"

	// ShapeField is the name of the field holding the image shape
	ShapeField = "shape"
)

// Format identifies an on-disk container layout.
type Format int

// Supported formats.
const (
	Native Format = iota
	NPZ
)

func (f Format) String() string {
	switch f {
	case Native:
		return "native"
	case NPZ:
		return "npz"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// ParseFormat converts a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "native", "ycc":
		return Native, nil
	case "npz":
		return NPZ, nil
	default:
		return 0, fmt.Errorf("container: unknown format %q", s)
	}
}

// FormatForPath picks the format from the extension of path; anything other
// than .npz is treated as native.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), NPZExtension) {
		return NPZ
	}
	return Native
}

var (
	errMissingField   = errors.New("container: missing field")
	errDuplicateField = errors.New("container: duplicate field")
	errUnknownField   = errors.New("container: unknown field")
	errBadShape       = errors.New("container: invalid shape")
)

// Container holds the compressed channels of one image. It implements the
// encoding.BinaryMarshaler and encoding.BinaryUnmarshaler interfaces using
// the native format. A Container should be treated as immutable once built.
type Container struct {
	Shape raster.Shape
	Y     rle.RunList
	Cb    rle.RunList
	Cr    rle.RunList
}

// New returns a container for the given shape and run lists after checking
// each run list exactly fills the shape.
func New(shape raster.Shape, y, cb, cr rle.RunList) (*Container, error) {
	c := &Container{
		Shape: shape,
		Y:     y,
		Cb:    cb,
		Cr:    cr,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Runs returns the run list for the named channel.
func (c *Container) Runs(name string) (rle.RunList, bool) {
	switch name {
	case raster.Y:
		return c.Y, true
	case raster.Cb:
		return c.Cb, true
	case raster.Cr:
		return c.Cr, true
	}
	return nil, false
}

func (c *Container) set(name string, runs rle.RunList) {
	switch name {
	case raster.Y:
		c.Y = runs
	case raster.Cb:
		c.Cb = runs
	case raster.Cr:
		c.Cr = runs
	}
}

// NumRuns returns the total number of runs across all channels.
func (c *Container) NumRuns() int {
	return len(c.Y) + len(c.Cb) + len(c.Cr)
}

// Validate checks the shape and that every run list decodes to a grid of
// that shape.
func (c *Container) Validate() error {
	if !c.Shape.Valid() {
		return fmt.Errorf("%w: %v", errBadShape, c.Shape)
	}
	for _, name := range raster.Names {
		runs, _ := c.Runs(name)
		if err := rle.Validate(name, runs, c.Shape); err != nil {
			return err
		}
	}
	return nil
}

// Write encodes c to w in the given format.
func Write(w io.Writer, c *Container, f Format) error {
	switch f {
	case Native:
		b, err := c.MarshalBinary()
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case NPZ:
		return writeNPZ(w, c)
	default:
		return fmt.Errorf("container: unsupported format %v", f)
	}
}

// Read decodes a container of the given format from r. size is the number of
// bytes available from r.
func Read(r io.ReaderAt, size int64, f Format) (*Container, error) {
	switch f {
	case Native:
		b := make([]byte, size)
		if _, err := r.ReadAt(b, 0); err != nil && err != io.EOF {
			return nil, err
		}
		c := new(Container)
		if err := c.UnmarshalBinary(b); err != nil {
			return nil, err
		}
		return c, nil
	case NPZ:
		return readNPZ(r, size)
	default:
		return nil, fmt.Errorf("container: unsupported format %v", f)
	}
}

// WriteFile writes c to path using the format implied by its extension.
func WriteFile(path string, c *Container) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return Write(f, c, FormatForPath(path))
}

// ReadFile reads a container from path using the format implied by its
// extension.
func ReadFile(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	c, err := Read(f, info.Size(), FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
