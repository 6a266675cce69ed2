/*
Package metrics measures the quality and size of an encode: Shannon entropy
of the input, distortion of the restored image against the original and the
size of the container compared to the raw samples.

Nothing in here is used by the codec itself; it only runs around it.
*/
package metrics

import (
	"fmt"
	"math"
	"time"

	"github.com/bodgit/ycc/raster"
	"github.com/lucasb-eyer/go-colorful"
)

// Entropy returns the Shannon entropy of samples in bits per sample. An empty
// slice has zero entropy.
func Entropy(samples []byte) float64 {
	var counts [256]int
	for _, s := range samples {
		counts[s]++
	}
	return entropy(counts[:], len(samples))
}

// EntropyRGB returns the Shannon entropy of the image treating each pixel as
// a single 24-bit value.
func EntropyRGB(m *raster.Image) float64 {
	counts := make(map[uint32]int)
	for i := 0; i+2 < len(m.Pix); i += 3 {
		counts[uint32(m.Pix[i])<<16|uint32(m.Pix[i+1])<<8|uint32(m.Pix[i+2])]++
	}

	values := make([]int, 0, len(counts))
	for _, n := range counts {
		values = append(values, n)
	}
	return entropy(values, len(m.Pix)/3)
}

func entropy(counts []int, total int) float64 {
	if total == 0 {
		return 0
	}
	var h float64
	for _, n := range counts {
		if n == 0 {
			continue
		}
		p := float64(n) / float64(total)
		h -= p * math.Log2(p)
	}
	// Avoid returning -0 for a constant input
	return math.Abs(h)
}

func checkShapes(a, b *raster.Image) error {
	if a.Shape() != b.Shape() {
		return &raster.ShapeMismatchError{Channel: "RGB", Shape: a.Shape(), Count: len(b.Pix) / 3, Got: b.Shape()}
	}
	if len(a.Pix) != len(b.Pix) {
		return &raster.ShapeMismatchError{Channel: "RGB", Shape: a.Shape(), Count: len(b.Pix) / 3}
	}
	return nil
}

// MSE returns the mean squared error over every sample of a and b.
func MSE(a, b *raster.Image) (float64, error) {
	if err := checkShapes(a, b); err != nil {
		return 0, err
	}
	if len(a.Pix) == 0 {
		return 0, nil
	}

	var sum float64
	for i := range a.Pix {
		d := float64(a.Pix[i]) - float64(b.Pix[i])
		sum += d * d
	}
	return sum / float64(len(a.Pix)), nil
}

// PSNR returns the peak signal-to-noise ratio in decibels between a and b.
// Identical images give +Inf.
func PSNR(a, b *raster.Image) (float64, error) {
	mse, err := MSE(a, b)
	if err != nil {
		return 0, err
	}
	if mse == 0 {
		return math.Inf(1), nil
	}
	return 10 * math.Log10(255*255/mse), nil
}

const (
	ssimWindow = 8
	ssimC1     = (0.01 * 255) * (0.01 * 255)
	ssimC2     = (0.03 * 255) * (0.03 * 255)
)

func luma(m *raster.Image) []float64 {
	l := make([]float64, len(m.Pix)/3)
	for i := range l {
		l[i] = 0.299*float64(m.Pix[i*3]) + 0.587*float64(m.Pix[i*3+1]) + 0.114*float64(m.Pix[i*3+2])
	}
	return l
}

// SSIM returns the mean structural similarity of the luma of a and b,
// computed over non-overlapping 8x8 windows. Windows at the right and bottom
// edges are clipped to the image. Identical images give 1.
func SSIM(a, b *raster.Image) (float64, error) {
	if err := checkShapes(a, b); err != nil {
		return 0, err
	}
	if len(a.Pix) == 0 {
		return 1, nil
	}

	la, lb := luma(a), luma(b)
	w, h := a.Width, a.Height

	var total float64
	var windows int
	for y0 := 0; y0 < h; y0 += ssimWindow {
		for x0 := 0; x0 < w; x0 += ssimWindow {
			y1, x1 := min(y0+ssimWindow, h), min(x0+ssimWindow, w)
			n := float64((y1 - y0) * (x1 - x0))

			var sa, sb float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					sa += la[y*w+x]
					sb += lb[y*w+x]
				}
			}
			ma, mb := sa/n, sb/n

			var va, vb, cov float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					da, db := la[y*w+x]-ma, lb[y*w+x]-mb
					va += da * da
					vb += db * db
					cov += da * db
				}
			}
			va, vb, cov = va/n, vb/n, cov/n

			total += ((2*ma*mb + ssimC1) * (2*cov + ssimC2)) /
				((ma*ma + mb*mb + ssimC1) * (va + vb + ssimC2))
			windows++
		}
	}
	return total / float64(windows), nil
}

// DeltaE returns the mean CIEDE2000 color difference between corresponding
// pixels of a and b.
func DeltaE(a, b *raster.Image) (float64, error) {
	if err := checkShapes(a, b); err != nil {
		return 0, err
	}
	if len(a.Pix) == 0 {
		return 0, nil
	}

	rgb := func(p []byte) colorful.Color {
		return colorful.Color{R: float64(p[0]) / 255, G: float64(p[1]) / 255, B: float64(p[2]) / 255}
	}

	var sum float64
	for i := 0; i < len(a.Pix); i += 3 {
		sum += rgb(a.Pix[i : i+3]).DistanceCIEDE2000(rgb(b.Pix[i : i+3]))
	}
	return sum / float64(len(a.Pix)/3), nil
}

// CompressionRatio returns raw/compressed, or 0 if compressed is zero.
func CompressionRatio(raw, compressed int64) float64 {
	if compressed <= 0 {
		return 0
	}
	return float64(raw) / float64(compressed)
}

// TransmissionTime returns how long n bytes take over a link of the given
// bandwidth in bits per second.
func TransmissionTime(n int64, bitsPerSecond float64) time.Duration {
	if bitsPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(n*8) / bitsPerSecond * float64(time.Second))
}

// Report collects the measurements of a single encode.
type Report struct {
	Shape          raster.Shape
	RawSize        int64 // R, G, B bytes of the input
	CompressedSize int64 // bytes of the container file
	Runs           map[string]int
	Entropy        map[string]float64 // per quantized channel
	EntropyRGB     float64
	PSNR           float64
	SSIM           float64
	DeltaE         float64
}

// NewReport compares the original and restored images and fills in a
// Report. channels are the quantized channels whose entropy is measured.
func NewReport(original, restored *raster.Image, compressedSize int64, channels ...*raster.Channel) (*Report, error) {
	r := &Report{
		Shape:          original.Shape(),
		RawSize:        int64(len(original.Pix)),
		CompressedSize: compressedSize,
		Runs:           make(map[string]int),
		Entropy:        make(map[string]float64),
		EntropyRGB:     EntropyRGB(original),
	}

	for _, c := range channels {
		r.Entropy[c.Name] = Entropy(c.Pix)
	}

	var err error
	if r.PSNR, err = PSNR(original, restored); err != nil {
		return nil, err
	}
	if r.SSIM, err = SSIM(original, restored); err != nil {
		return nil, err
	}
	if r.DeltaE, err = DeltaE(original, restored); err != nil {
		return nil, err
	}
	return r, nil
}

// Ratio returns the compression ratio of the report.
func (r *Report) Ratio() float64 {
	return CompressionRatio(r.RawSize, r.CompressedSize)
}

func (r *Report) String() string {
	return fmt.Sprintf("%v: %d -> %d bytes (%.2f:1), PSNR %.2f dB, SSIM %.4f, dE %.2f, entropy %.2f bits",
		r.Shape, r.RawSize, r.CompressedSize, r.Ratio(), r.PSNR, r.SSIM, r.DeltaE, r.EntropyRGB)
}
