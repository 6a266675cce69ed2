package ycc

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bodgit/ycc/colorspace"
	"github.com/bodgit/ycc/container"
	"github.com/bodgit/ycc/metrics"
	"github.com/bodgit/ycc/quant"
	"github.com/bodgit/ycc/raster"
)

// Result describes one encoded image.
type Result struct {
	Source      string
	Destination string
	SHA1        string // of the source file
	Moduli      quant.Moduli
	Rounding    colorspace.Rounding
	Format      container.Format
	Report      *metrics.Report
	Time        time.Time
	Elapsed     time.Duration
}

// ContainerPath returns the path of the container written next to src in
// the given format.
func ContainerPath(src string, f container.Format) string {
	ext := container.Extension
	if f == container.NPZ {
		ext = container.NPZExtension
	}
	return strings.TrimSuffix(src, filepath.Ext(src)) + ext
}

// EncodeFile encodes the image at src into a container at dst, whose
// extension selects the container format. If dst is empty the container is
// written next to src. The container is decoded again to measure the
// distortion; the measurements are returned and, if the Codec has a
// ReportDB, recorded.
func (c *Codec) EncodeFile(src, dst string) (*Result, error) {
	if dst == "" {
		dst = ContainerPath(src, c.opts.Format)
	}

	start := time.Now()
	img, sha, err := readImage(src)
	if err != nil {
		return nil, err
	}

	ct, quantized, err := c.encode(img)
	if err != nil {
		return nil, err
	}

	if err := container.WriteFile(dst, ct); err != nil {
		return nil, err
	}
	info, err := os.Stat(dst)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)
	c.logger.Printf("Wrote \"%s\", %d bytes\n", dst, info.Size())

	restored, err := c.Decode(ct)
	if err != nil {
		return nil, err
	}

	report, err := metrics.NewReport(img, restored, info.Size(), quantized[:]...)
	if err != nil {
		return nil, err
	}
	for _, name := range raster.Names {
		runs, _ := ct.Runs(name)
		report.Runs[name] = len(runs)
	}

	r := &Result{
		Source:      src,
		Destination: dst,
		SHA1:        sha,
		Moduli:      c.opts.Moduli,
		Rounding:    c.opts.Rounding,
		Format:      container.FormatForPath(dst),
		Report:      report,
		Time:        start,
		Elapsed:     elapsed,
	}

	if c.db != nil {
		if err := c.db.Record(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// DecodeFile restores the container at src and writes the image to dst,
// whose extension selects the image format. Nothing is written if the
// container is invalid.
func (c *Codec) DecodeFile(src, dst string) error {
	ct, err := container.ReadFile(src)
	if err != nil {
		return err
	}

	img, err := c.Decode(ct)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := WriteImage(dst, img); err != nil {
		return err
	}
	c.logger.Printf("Wrote \"%s\" in %v\n", dst, time.Since(start))

	return nil
}
