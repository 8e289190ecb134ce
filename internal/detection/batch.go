package detection

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// FindBatch runs Find over images concurrently with at most workers
// goroutines (workers <= 0 uses GOMAXPROCS).
//
// Results are returned in input order. The first failure cancels the
// remaining work and is returned wrapped with the index of the failing
// image. ctx is checked before each image starts.
func (f *Finder) FindBatch(ctx context.Context, images []*Image, workers int) ([]*ResultTable, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	results := make([]*ResultTable, len(images))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, img := range images {
		i, img := i, img
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			table, err := f.Find(img)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			results[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
