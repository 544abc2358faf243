package audiotag

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// BatchResult pairs a path with either its ParsedFile or the error parsing
// it produced.
type BatchResult struct {
	Path string
	File *ParsedFile
	Err  error
}

// ParseBatch parses every path concurrently, bounded by opts.BatchWorkers,
// using cache to dedupe both by path and by content fingerprint. Results
// are returned in the same order as paths.
//
// Cancellation is checked at work-item boundaries only; an in-progress
// parse runs to completion. A singleflight group collapses concurrent
// requests for paths that turn out to share a content fingerprint into a
// single parse.
func ParseBatch(ctx context.Context, cache *Cache, paths []string) []BatchResult {
	results := make([]BatchResult, len(paths))
	var sf singleflight.Group

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max1(cache.opts.BatchWorkers))

	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			select {
			case <-gctx.Done():
				results[i] = BatchResult{Path: p, Err: gctx.Err()}
				return nil
			default:
			}

			fprintKey, ok := quickFingerprintKey(p)
			if !ok {
				fprintKey = p
			}

			v, err, _ := sf.Do(fprintKey, func() (any, error) {
				return cache.Parse(p)
			})
			if err != nil {
				results[i] = BatchResult{Path: p, Err: err}
				return nil
			}
			results[i] = BatchResult{Path: p, File: v.(*ParsedFile)}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// quickFingerprintKey computes a fingerprint without a full read, used only
// to pick a singleflight dedup key; if stat fails the caller falls back to
// using the path itself as the key (no dedup across paths, but never wrong).
func quickFingerprintKey(path string) (string, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", false
	}
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()
	buf := make([]byte, fingerprintSampleSize)
	n, _ := f.Read(buf)
	key := fingerprint(buf[:n], fi.Size())
	return strconv.FormatUint(key, 16), true
}

func max1(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// ScanDir walks root recursively and parses every file whose extension
// matches a supported format, feeding the collected paths through
// ParseBatch so the cache and fingerprint dedup apply.
func ScanDir(ctx context.Context, cache *Cache, root string) ([]BatchResult, error) {
	var paths []string
	var mu sync.Mutex
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if guessFormatByExtension(p) == FormatUnknown {
			return nil
		}
		mu.Lock()
		paths = append(paths, p)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, newErr(KindIO, "walk", err)
	}
	return ParseBatch(ctx, cache, paths), nil
}
