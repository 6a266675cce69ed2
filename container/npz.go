package container

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/bodgit/ycc/raster"
	"github.com/bodgit/ycc/rle"
	"github.com/klauspost/compress/zip"
)

// An NPZ container holds one .npy member per field. Run lists are (n, 2)
// arrays of (value, count) rows and the shape is a (2,) array of (height,
// width); both are written as little-endian int64.

const (
	npyMagic     = "\x93NUMPY"
	npyAlign     = 64
	npySuffix    = ".npy"
	npyMaxHeader = 1 << 16

	maxInt = int(^uint(0) >> 1)
)

var (
	errBadNPY = errors.New("container: bad npy member")

	reDescr   = regexp.MustCompile(`'descr'\s*:\s*'([^']*)'`)
	reFortran = regexp.MustCompile(`'fortran_order'\s*:\s*(True|False)`)
	reShape   = regexp.MustCompile(`'shape'\s*:\s*\(([^)]*)\)`)
)

type npyArray struct {
	dims []int
	data []int64
}

func writeNPY(w io.Writer, dims []int, data []int64) error {
	shape := make([]string, len(dims))
	for i, d := range dims {
		shape[i] = strconv.Itoa(d)
	}
	s := strings.Join(shape, ", ")
	if len(dims) == 1 {
		s += ","
	}

	header := fmt.Sprintf("{'descr': '<i8', 'fortran_order': False, 'shape': (%s), }", s)
	// Pad with spaces so the data starts on an aligned boundary, terminating
	// with a newline
	pad := npyAlign - (len(npyMagic)+4+len(header)+1)%npyAlign
	if pad == npyAlign {
		pad = 0
	}
	header += strings.Repeat(" ", pad) + "\n"

	b := new(bytes.Buffer)
	b.WriteString(npyMagic)
	b.Write([]byte{1, 0})
	if err := binary.Write(b, binary.LittleEndian, uint16(len(header))); err != nil {
		return err
	}
	b.WriteString(header)
	if err := binary.Write(b, binary.LittleEndian, data); err != nil {
		return err
	}

	_, err := w.Write(b.Bytes())
	return err
}

func parseDescr(descr string) (binary.ByteOrder, int, bool, error) {
	if len(descr) != 3 {
		return nil, 0, false, fmt.Errorf("%w: unsupported dtype %q", errBadNPY, descr)
	}

	var order binary.ByteOrder
	switch descr[0] {
	case '<', '|', '=':
		order = binary.LittleEndian
	case '>':
		order = binary.BigEndian
	default:
		return nil, 0, false, fmt.Errorf("%w: unsupported dtype %q", errBadNPY, descr)
	}

	signed := descr[1] == 'i'
	if !signed && descr[1] != 'u' {
		return nil, 0, false, fmt.Errorf("%w: unsupported dtype %q", errBadNPY, descr)
	}

	size, err := strconv.Atoi(descr[2:])
	if err != nil || (size != 1 && size != 2 && size != 4 && size != 8) {
		return nil, 0, false, fmt.Errorf("%w: unsupported dtype %q", errBadNPY, descr)
	}

	return order, size, signed, nil
}

func readNPY(r io.Reader) (*npyArray, error) {
	var prefix [len(npyMagic) + 2]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, errBadNPY
	}
	if string(prefix[:len(npyMagic)]) != npyMagic {
		return nil, fmt.Errorf("%w: bad magic", errBadNPY)
	}

	var headerLen int
	switch prefix[len(npyMagic)] {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, errBadNPY
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return nil, errBadNPY
		}
		if n > npyMaxHeader {
			return nil, fmt.Errorf("%w: header too large", errBadNPY)
		}
		headerLen = int(n)
	default:
		return nil, fmt.Errorf("%w: unsupported version %d", errBadNPY, prefix[len(npyMagic)])
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, errBadNPY
	}

	m := reDescr.FindSubmatch(header)
	if m == nil {
		return nil, fmt.Errorf("%w: missing descr", errBadNPY)
	}
	order, size, signed, err := parseDescr(string(m[1]))
	if err != nil {
		return nil, err
	}

	fortran := false
	if m := reFortran.FindSubmatch(header); m != nil {
		fortran = string(m[1]) == "True"
	}

	m = reShape.FindSubmatch(header)
	if m == nil {
		return nil, fmt.Errorf("%w: missing shape", errBadNPY)
	}
	arr := &npyArray{}
	count := 1
	for _, f := range strings.Split(string(m[1]), ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		d, err := strconv.Atoi(f)
		if err != nil || d < 0 || (d > 0 && count > maxInt/d) {
			return nil, fmt.Errorf("%w: bad shape %q", errBadNPY, m[1])
		}
		arr.dims = append(arr.dims, d)
		count *= d
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	// Compare by division first so count*size cannot wrap
	if count > len(raw)/size || len(raw) != count*size {
		return nil, fmt.Errorf("%w: expected %d bytes of data, got %d", errBadNPY, count*size, len(raw))
	}

	arr.data = make([]int64, count)
	for i := range arr.data {
		p := raw[i*size : (i+1)*size]
		switch {
		case size == 1 && signed:
			arr.data[i] = int64(int8(p[0]))
		case size == 1:
			arr.data[i] = int64(p[0])
		case size == 2 && signed:
			arr.data[i] = int64(int16(order.Uint16(p)))
		case size == 2:
			arr.data[i] = int64(order.Uint16(p))
		case size == 4 && signed:
			arr.data[i] = int64(int32(order.Uint32(p)))
		case size == 4:
			arr.data[i] = int64(order.Uint32(p))
		case signed:
			arr.data[i] = int64(order.Uint64(p))
		default:
			v := order.Uint64(p)
			if v > 1<<63-1 {
				return nil, fmt.Errorf("%w: value out of range", errBadNPY)
			}
			arr.data[i] = int64(v)
		}
	}

	// Column-major 2-D data is transposed into row-major order
	if fortran && len(arr.dims) == 2 {
		rows, cols := arr.dims[0], arr.dims[1]
		t := make([]int64, count)
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				t[i*cols+j] = arr.data[j*rows+i]
			}
		}
		arr.data = t
	}

	return arr, nil
}

func writeNPZ(w io.Writer, c *Container) error {
	if err := c.Validate(); err != nil {
		return err
	}

	zw := zip.NewWriter(w)

	member := func(name string, dims []int, data []int64) error {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:   name + npySuffix,
			Method: zip.Deflate,
		})
		if err != nil {
			return err
		}
		return writeNPY(fw, dims, data)
	}

	for _, name := range raster.Names {
		runs, _ := c.Runs(name)
		data := make([]int64, 0, len(runs)*2)
		for _, p := range runs.Pairs() {
			data = append(data, p[0], p[1])
		}
		if err := member(name, []int{len(runs), 2}, data); err != nil {
			return err
		}
	}

	if err := member(ShapeField, []int{2}, []int64{int64(c.Shape.Height), int64(c.Shape.Width)}); err != nil {
		return err
	}

	return zw.Close()
}

func readNPZ(r io.ReaderAt, size int64) (*Container, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("container: reading npz: %w", err)
	}

	arrays := make(map[string]*npyArray)
	for _, f := range zr.File {
		name := strings.TrimSuffix(f.Name, npySuffix)
		if name != ShapeField && !isChannel(name) {
			// NumPy tools may add extra arrays; they carry nothing we need
			continue
		}
		if _, ok := arrays[name]; ok {
			return nil, fmt.Errorf("%w: %s", errDuplicateField, name)
		}

		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		arr, err := readNPY(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		arrays[name] = arr
	}

	var c Container

	shape, ok := arrays[ShapeField]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errMissingField, ShapeField)
	}
	if len(shape.data) != 2 || shape.data[0] < 0 || shape.data[1] < 0 ||
		int64(int(shape.data[0])) != shape.data[0] || int64(int(shape.data[1])) != shape.data[1] {
		return nil, fmt.Errorf("%w: %v", errBadShape, shape.data)
	}
	c.Shape = raster.Shape{Height: int(shape.data[0]), Width: int(shape.data[1])}

	for _, name := range raster.Names {
		arr, ok := arrays[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", errMissingField, name)
		}

		var pairs [][2]int64
		switch {
		case len(arr.data) == 0:
			// An empty list saves as a 1-D array of length zero
		case len(arr.dims) == 2 && arr.dims[1] == 2:
			pairs = make([][2]int64, arr.dims[0])
			for i := range pairs {
				pairs[i] = [2]int64{arr.data[i*2], arr.data[i*2+1]}
			}
		default:
			return nil, fmt.Errorf("%w: %s has shape %v, want (n, 2)", errBadNPY, name, arr.dims)
		}

		runs, err := rle.FromPairs(name, pairs)
		if err != nil {
			return nil, err
		}
		c.set(name, runs)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
