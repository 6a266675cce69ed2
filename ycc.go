/*
Package ycc is a lossy still-image codec.

An RGB image is converted to BT.601 Y, Cb and Cr channels, each channel is
quantized to a per-channel modulus and then run-length encoded. The run lists
and the image shape are stored in a container file. Decoding reverses the run
length coding and the color transform; quantization is not reversible.
*/
package ycc

import (
	"fmt"
	"log"
	"time"

	"github.com/bodgit/ycc/colorspace"
	"github.com/bodgit/ycc/container"
	"github.com/bodgit/ycc/quant"
	"github.com/bodgit/ycc/raster"
	"github.com/bodgit/ycc/rle"
	"golang.org/x/sync/errgroup"
)

// DefaultModuli are the quantization steps used when none are given.
var DefaultModuli = quant.Moduli{Y: 4, Cb: 7, Cr: 7}

// Options configure a Codec.
type Options struct {
	Moduli   quant.Moduli
	Rounding colorspace.Rounding
	// Parallel processes the three channels concurrently. The output is
	// identical either way.
	Parallel bool
	// Format is used by Scan for the containers it writes.
	Format container.Format
	// Workers bounds the number of images Scan encodes at once.
	Workers int
}

// DefaultOptions returns the options used by the command line tool when no
// flags are given.
func DefaultOptions() Options {
	return Options{
		Moduli:   DefaultModuli,
		Rounding: colorspace.HalfAwayFromZero,
		Parallel: true,
		Format:   container.Native,
		Workers:  defaultWorkers,
	}
}

// Codec encodes images to containers and back. It is safe for concurrent
// use.
type Codec struct {
	opts   Options
	logger *log.Logger
	db     *ReportDB
}

// New returns a Codec after validating opts. No image is touched if the
// moduli are invalid.
func New(opts Options, logger *log.Logger) (*Codec, error) {
	if err := opts.Moduli.Validate(); err != nil {
		return nil, err
	}
	if opts.Workers < 1 {
		opts.Workers = defaultWorkers
	}
	return &Codec{
		opts:   opts,
		logger: logger,
	}, nil
}

// SetReportDB makes EncodeFile and Scan record every encode in db.
func (c *Codec) SetReportDB(db *ReportDB) {
	c.db = db
}

// Options returns the options the Codec was created with.
func (c *Codec) Options() Options {
	return c.opts
}

// each runs fn once per channel name, concurrently if the codec is
// configured that way.
func (c *Codec) each(fn func(int, string) error) error {
	if !c.opts.Parallel {
		for i, name := range raster.Names {
			if err := fn(i, name); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	for i, name := range raster.Names {
		i, name := i, name
		g.Go(func() error {
			return fn(i, name)
		})
	}
	return g.Wait()
}

func checkImage(img *raster.Image) error {
	if !img.Shape().Valid() || len(img.Pix) != img.Width*img.Height*3 {
		return &raster.ShapeMismatchError{Channel: "RGB", Shape: img.Shape(), Count: len(img.Pix) / 3}
	}
	return nil
}

// encode returns the container along with the quantized channels it was
// built from.
func (c *Codec) encode(img *raster.Image) (*container.Container, [3]*raster.Channel, error) {
	var quantized [3]*raster.Channel
	if err := checkImage(img); err != nil {
		return nil, quantized, err
	}

	start := time.Now()
	y, cb, cr := colorspace.Forward(img, c.opts.Rounding)
	channels := [3]*raster.Channel{y, cb, cr}
	c.logger.Printf("Color transform of %v image took %v\n", img.Shape(), time.Since(start))

	var runs [3]rle.RunList
	start = time.Now()
	if err := c.each(func(i int, name string) error {
		q, err := quant.Quantize(channels[i], c.opts.Moduli.For(name), c.opts.Rounding)
		if err != nil {
			return err
		}
		quantized[i] = q
		runs[i] = rle.Compress(q)
		return nil
	}); err != nil {
		return nil, quantized, err
	}

	for i, name := range raster.Names {
		c.logger.Printf("Channel %s: modulus %d, %d runs\n", name, c.opts.Moduli.For(name), len(runs[i]))
	}
	c.logger.Printf("Quantize and compress took %v\n", time.Since(start))

	ct, err := container.New(img.Shape(), runs[0], runs[1], runs[2])
	if err != nil {
		return nil, quantized, err
	}
	return ct, quantized, nil
}

// Encode compresses img into a container. img is not modified.
func (c *Codec) Encode(img *raster.Image) (*container.Container, error) {
	ct, _, err := c.encode(img)
	return ct, err
}

// Decode restores an image from ct. Any error means no image is returned.
func (c *Codec) Decode(ct *container.Container) (*raster.Image, error) {
	if !ct.Shape.Valid() {
		return nil, fmt.Errorf("invalid shape %v", ct.Shape)
	}

	start := time.Now()
	var channels [3]*raster.Channel
	if err := c.each(func(i int, name string) error {
		runs, _ := ct.Runs(name)
		ch, err := rle.Decompress(name, runs, ct.Shape)
		if err != nil {
			return err
		}
		channels[i] = ch
		return nil
	}); err != nil {
		return nil, err
	}
	c.logger.Printf("Decompress of %v container took %v\n", ct.Shape, time.Since(start))

	start = time.Now()
	img, err := colorspace.Inverse(channels[0], channels[1], channels[2], c.opts.Rounding)
	if err != nil {
		return nil, err
	}
	c.logger.Printf("Inverse color transform took %v\n", time.Since(start))

	return img, nil
}
