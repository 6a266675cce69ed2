/*
Package rle implements the run-length codec for quantized channels.

A channel is flattened row-major and scanned once; every maximal sequence of
equal samples becomes a Run. Decompression writes each run back in order and
refuses any run list that does not exactly fill the declared shape.
*/
package rle

import (
	"fmt"

	"github.com/bodgit/ycc/raster"
)

// Run is count consecutive occurrences of value.
type Run struct {
	Value byte
	Count int
}

// RunList is an ordered sequence of runs covering a whole channel.
type RunList []Run

// Total returns the sum of all run counts, saturating at the largest int.
func (l RunList) Total() int {
	var n int
	for _, r := range l {
		if r.Count > maxInt-n {
			return maxInt
		}
		n += r.Count
	}
	return n
}

// CorruptRunError reports a run that cannot appear in a valid run list.
type CorruptRunError struct {
	Channel string
	Index   int
	Value   int64
	Count   int64
}

func (e *CorruptRunError) Error() string {
	if e.Value < 0 || e.Value > 255 {
		return fmt.Sprintf("rle: channel %s: run %d has value %d outside [0,255]", e.Channel, e.Index, e.Value)
	}
	return fmt.Sprintf("rle: channel %s: run %d has invalid count %d", e.Channel, e.Index, e.Count)
}

// Compress run-length encodes c. An empty channel yields an empty list.
func Compress(c *raster.Channel) RunList {
	pix := c.Pix
	if len(pix) == 0 {
		return RunList{}
	}

	runs := make(RunList, 0, 64)
	count := 1
	for i := 1; i < len(pix); i++ {
		if pix[i] == pix[i-1] {
			count++
			continue
		}
		runs = append(runs, Run{Value: pix[i-1], Count: count})
		count = 1
	}
	return append(runs, Run{Value: pix[len(pix)-1], Count: count})
}

// Validate checks that every run has a positive count and that the counts
// add up to exactly the number of samples in shape.
func Validate(name string, runs RunList, shape raster.Shape) error {
	if !shape.Valid() {
		return &raster.ShapeMismatchError{Channel: name, Shape: shape, Count: runs.Total()}
	}

	total := 0
	for i, r := range runs {
		if r.Count <= 0 {
			return &CorruptRunError{Channel: name, Index: i, Value: int64(r.Value), Count: int64(r.Count)}
		}
		// Saturate rather than wrap so huge counts can never sum back to the
		// shape length
		if r.Count > maxInt-total {
			total = maxInt
			continue
		}
		total += r.Count
	}
	if total != shape.Len() {
		return &raster.ShapeMismatchError{Channel: name, Shape: shape, Count: total}
	}
	return nil
}

// Decompress expands runs into a channel named name with the given shape.
// Nothing is returned unless the run list is valid for the shape.
func Decompress(name string, runs RunList, shape raster.Shape) (*raster.Channel, error) {
	if err := Validate(name, runs, shape); err != nil {
		return nil, err
	}

	c := raster.NewChannel(name, shape)
	i := 0
	for _, r := range runs {
		fill := c.Pix[i : i+r.Count]
		for j := range fill {
			fill[j] = r.Value
		}
		i += r.Count
	}
	return c, nil
}

// FromPairs converts (value, count) pairs held in wider integers, as found in
// containers written by other tools, into a RunList. Values must lie in
// [0, 255] and counts must be positive.
func FromPairs(name string, pairs [][2]int64) (RunList, error) {
	runs := make(RunList, len(pairs))
	for i, p := range pairs {
		value, count := p[0], p[1]
		if count <= 0 || value < 0 || value > 255 || count > int64(maxInt) {
			return nil, &CorruptRunError{Channel: name, Index: i, Value: value, Count: count}
		}
		runs[i] = Run{Value: byte(value), Count: int(count)}
	}
	return runs, nil
}

// Pairs is the inverse of FromPairs.
func (l RunList) Pairs() [][2]int64 {
	pairs := make([][2]int64, len(l))
	for i, r := range l {
		pairs[i] = [2]int64{int64(r.Value), int64(r.Count)}
	}
	return pairs
}

const maxInt = int(^uint(0) >> 1)
