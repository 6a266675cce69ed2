package ppm

import (
	"bufio"
	"io"
	"os"

	"github.com/bodgit/ycc/raster"
)

type decoder struct {
	r   *bufio.Reader
	off int64
}

func (d *decoder) errorf(reason string) error {
	return &FormatError{Offset: d.off, Reason: reason}
}

func (d *decoder) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		if err == io.EOF {
			return 0, d.errorf("unexpected end of header")
		}
		return 0, err
	}
	d.off++
	return b, nil
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\v' || b == '\f'
}

// skip consumes whitespace and comments, returning the first byte of the
// next token.
func (d *decoder) skip() (byte, error) {
	for {
		b, err := d.readByte()
		if err != nil {
			return 0, err
		}
		switch {
		case b == '#':
			for b != '\n' && b != '\r' {
				if b, err = d.readByte(); err != nil {
					return 0, err
				}
			}
		case !isSpace(b):
			return b, nil
		}
	}
}

// readInt reads a decimal header value and the single whitespace byte that
// terminates it.
func (d *decoder) readInt(what string) (int, error) {
	b, err := d.skip()
	if err != nil {
		return 0, err
	}
	if b < '0' || b > '9' {
		return 0, d.errorf("expected " + what)
	}

	n := 0
	for {
		n = n*10 + int(b-'0')
		if n > maxPixels {
			return 0, d.errorf(what + " too large")
		}
		if b, err = d.readByte(); err != nil {
			return 0, err
		}
		if isSpace(b) {
			return n, nil
		}
		if b == '#' {
			// A comment straight after a value still ends it
			if err := d.r.UnreadByte(); err != nil {
				return 0, err
			}
			d.off--
			return n, nil
		}
		if b < '0' || b > '9' {
			return 0, d.errorf("bad character in " + what)
		}
	}
}

func (d *decoder) readHeader(r io.Reader) (Header, error) {
	d.r = bufio.NewReader(r)

	var h Header
	var m [2]byte
	for i := range m {
		b, err := d.readByte()
		if err != nil {
			return h, err
		}
		m[i] = b
	}
	if string(m[:]) != magic {
		return h, d.errorf("bad magic " + string(m[:]))
	}

	var err error
	if h.Width, err = d.readInt("width"); err != nil {
		return h, err
	}
	if h.Height, err = d.readInt("height"); err != nil {
		return h, err
	}
	if h.MaxVal, err = d.readInt("maximum value"); err != nil {
		return h, err
	}

	switch {
	case h.Width == 0 || h.Height == 0:
		return h, d.errorf("zero dimension")
	case h.Width*h.Height > maxPixels:
		return h, d.errorf("image too large")
	case h.MaxVal == 0 || h.MaxVal > maxMaxVal:
		return h, d.errorf("maximum value out of range")
	}
	return h, nil
}

func (d *decoder) decode(r io.Reader) (*raster.Image, error) {
	h, err := d.readHeader(r)
	if err != nil {
		return nil, err
	}

	m := raster.NewImage(h.Width, h.Height)

	if h.MaxVal == 255 {
		if _, err := io.ReadFull(d.r, m.Pix); err != nil {
			return nil, d.errorf("not enough image data")
		}
		return m, nil
	}

	size := 1
	if h.MaxVal > 255 {
		size = 2
	}
	buf := make([]byte, len(m.Pix)*size)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return nil, d.errorf("not enough image data")
	}
	for i := range m.Pix {
		v := int(buf[i*size])
		if size == 2 {
			v = v<<8 | int(buf[i*size+1])
		}
		if v > h.MaxVal {
			return nil, d.errorf("sample exceeds maximum value")
		}
		m.Pix[i] = byte((v*255 + h.MaxVal/2) / h.MaxVal)
	}
	return m, nil
}

// Read decodes a pixel map from r. Trailing data after the samples is
// ignored.
func Read(r io.Reader) (*raster.Image, error) {
	var d decoder
	return d.decode(r)
}

// ReadFile decodes the pixel map stored at path.
func ReadFile(path string) (*raster.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Read(f)
}
