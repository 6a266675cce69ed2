package ycc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bodgit/ycc/ppm"
)

const defaultWorkers = 4

func isSource(file string) bool {
	switch strings.ToLower(filepath.Ext(file)) {
	case ppm.Extension, ".pnm":
		return true
	}
	return false
}

func (c *Codec) findImages(ctx context.Context, base string) (<-chan string, <-chan error, error) {
	out := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		errc <- filepath.Walk(base, func(file string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}

			// Ignore any hidden files or directories
			if file != base && info.Name()[0] == '.' {
				if info.Mode().IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			// Ignore anything that isn't a normal file
			if !info.Mode().IsRegular() || !isSource(file) {
				return nil
			}

			select {
			case out <- file:
			case <-ctx.Done():
				return errors.New("walk cancelled")
			}

			return nil
		})
	}()
	return out, errc, nil
}

func (c *Codec) imageWorker(ctx context.Context, in <-chan string, collect func(*Result)) (<-chan error, error) {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		for file := range in {
			select {
			case <-ctx.Done():
				return
			default:
			}

			r, err := c.EncodeFile(file, "")
			if err != nil {
				errc <- err
				return
			}
			c.logger.Printf("Encoded \"%s\": %v\n", file, r.Report)
			collect(r)
		}
	}()
	return errc, nil
}

// waitForPipeline returns the first error from errs. It cancels the
// pipeline on that error and keeps draining until every stage has exited.
func waitForPipeline(cancel context.CancelFunc, errs ...<-chan error) error {
	var first error
	for err := range mergeErrors(errs...) {
		if err != nil && first == nil {
			first = err
			cancel()
		}
	}
	return first
}

func mergeErrors(cs ...<-chan error) <-chan error {
	var wg sync.WaitGroup
	out := make(chan error, len(cs))
	wg.Add(len(cs))
	for _, c := range cs {
		go func(c <-chan error) {
			for n := range c {
				out <- n
			}
			wg.Done()
		}(c)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

// Scan walks path and encodes every PPM image found, writing each container
// next to its source. Hidden files and directories are skipped. The first
// error stops the scan. Results are sorted by source path.
func (c *Codec) Scan(ctx context.Context, path string) ([]*Result, error) {
	dir, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	var mu sync.Mutex
	var results []*Result
	collect := func(r *Result) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, r)
	}

	var errcList []<-chan error

	files, errc, err := c.findImages(ctx, dir)
	if err != nil {
		return nil, err
	}
	errcList = append(errcList, errc)

	for i := 0; i < c.opts.Workers; i++ {
		errc, err := c.imageWorker(ctx, files, collect)
		if err != nil {
			return nil, err
		}
		errcList = append(errcList, errc)
	}

	if err := waitForPipeline(cancelFunc, errcList...); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Source < results[j].Source })

	return results, nil
}
