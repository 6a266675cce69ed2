package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/bodgit/ycc/raster"
	"github.com/bodgit/ycc/rle"
	"github.com/klauspost/compress/zstd"
)

// The native layout is:
//
//	magic   [4]byte "YCC1"
//	crc     uint32  CRC-32 (IEEE) of the uncompressed body
//	body    zstd frame
//
// and the body is a field count followed by that many fields:
//
//	nameLen uint8, name []byte, kind uint8
//	kindShape: height uint32, width uint32
//	kindRuns:  n uint32, then n * (value uint8, count uint32)
//
// All integers are little-endian.

var magic = [4]byte{'Y', 'C', 'C', '1'}

const (
	kindShape uint8 = 1
	kindRuns  uint8 = 2

	runSize = 5
)

var (
	// ErrBadMagic is returned when data does not start with the native
	// container signature
	ErrBadMagic = errors.New("container: bad magic value")

	// ErrChecksum is returned when the body does not match its stored CRC
	ErrChecksum = errors.New("container: checksum mismatch")

	errNotEnough = errors.New("container: not enough data")
	errBadKind   = errors.New("container: bad field kind")
)

type wireRun struct {
	Value uint8
	Count uint32
}

func writeField(b *bytes.Buffer, name string, kind uint8) error {
	if err := b.WriteByte(uint8(len(name))); err != nil {
		return err
	}
	if _, err := b.WriteString(name); err != nil {
		return err
	}
	return b.WriteByte(kind)
}

// MarshalBinary encodes the container into the native format and returns the
// result.
func (c *Container) MarshalBinary() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if uint64(c.Shape.Height) > math.MaxUint32 || uint64(c.Shape.Width) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %v too large", errBadShape, c.Shape)
	}

	body := new(bytes.Buffer)

	if err := body.WriteByte(1 + uint8(len(raster.Names))); err != nil {
		return nil, err
	}

	// Write out the shape first so a reader can size buffers up front
	if err := writeField(body, ShapeField, kindShape); err != nil {
		return nil, err
	}
	if err := binary.Write(body, binary.LittleEndian, [2]uint32{uint32(c.Shape.Height), uint32(c.Shape.Width)}); err != nil {
		return nil, err
	}

	for _, name := range raster.Names {
		runs, _ := c.Runs(name)

		wire := make([]wireRun, len(runs))
		for i, r := range runs {
			if uint64(r.Count) > math.MaxUint32 {
				return nil, fmt.Errorf("container: channel %s: run %d too long", name, i)
			}
			wire[i] = wireRun{r.Value, uint32(r.Count)}
		}

		if err := writeField(body, name, kindRuns); err != nil {
			return nil, err
		}
		if err := binary.Write(body, binary.LittleEndian, uint32(len(wire))); err != nil {
			return nil, err
		}
		if err := binary.Write(body, binary.LittleEndian, wire); err != nil {
			return nil, err
		}
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	b := new(bytes.Buffer)
	b.Write(magic[:])
	if err := binary.Write(b, binary.LittleEndian, crc32.ChecksumIEEE(body.Bytes())); err != nil {
		return nil, err
	}
	b.Write(enc.EncodeAll(body.Bytes(), nil))

	return b.Bytes(), nil
}

func isChannel(name string) bool {
	for _, n := range raster.Names {
		if n == name {
			return true
		}
	}
	return false
}

func readFull(r io.Reader, v interface{}) error {
	err := binary.Read(r, binary.LittleEndian, v)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return errNotEnough
	}
	return err
}

// UnmarshalBinary decodes the container from the native format. Fields may
// appear in any order but each must be present exactly once.
func (c *Container) UnmarshalBinary(b []byte) error {
	if len(b) < len(magic)+4 {
		return errNotEnough
	}
	if !bytes.Equal(b[:len(magic)], magic[:]) {
		return ErrBadMagic
	}
	sum := binary.LittleEndian.Uint32(b[len(magic):])

	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return err
	}
	defer dec.Close()

	body, err := dec.DecodeAll(b[len(magic)+4:], nil)
	if err != nil {
		return fmt.Errorf("container: decompressing body: %w", err)
	}
	if crc32.ChecksumIEEE(body) != sum {
		return ErrChecksum
	}

	r := bytes.NewReader(body)

	var n uint8
	if err := readFull(r, &n); err != nil {
		return err
	}

	var out Container
	seen := make(map[string]bool)

	for i := 0; i < int(n); i++ {
		var nameLen uint8
		if err := readFull(r, &nameLen); err != nil {
			return err
		}
		name := make([]byte, nameLen)
		if err := readFull(r, name); err != nil {
			return err
		}
		var kind uint8
		if err := readFull(r, &kind); err != nil {
			return err
		}

		field := string(name)
		if seen[field] {
			return fmt.Errorf("%w: %s", errDuplicateField, field)
		}
		seen[field] = true

		switch {
		case field == ShapeField && kind == kindShape:
			var shape [2]uint32
			if err := readFull(r, &shape); err != nil {
				return err
			}
			out.Shape = raster.Shape{Height: int(shape[0]), Width: int(shape[1])}
		case kind == kindRuns:
			if _, ok := out.Runs(field); !ok {
				return fmt.Errorf("%w: %s", errUnknownField, field)
			}
			var count uint32
			if err := readFull(r, &count); err != nil {
				return err
			}
			if int64(count)*runSize > int64(r.Len()) {
				return errNotEnough
			}
			wire := make([]wireRun, count)
			if err := readFull(r, wire); err != nil {
				return err
			}
			runs := make(rle.RunList, len(wire))
			for j, w := range wire {
				runs[j] = rle.Run{Value: w.Value, Count: int(w.Count)}
			}
			out.set(field, runs)
		case field == ShapeField || isChannel(field):
			return fmt.Errorf("%w: %d for %s", errBadKind, kind, field)
		default:
			return fmt.Errorf("%w: %s", errUnknownField, field)
		}
	}

	if r.Len() != 0 {
		return errors.New("container: trailing data after fields")
	}

	for _, field := range append([]string{ShapeField}, raster.Names[:]...) {
		if !seen[field] {
			return fmt.Errorf("%w: %s", errMissingField, field)
		}
	}

	if err := out.Validate(); err != nil {
		return err
	}

	*c = out
	return nil
}
