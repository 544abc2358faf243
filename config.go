package audiotag

import (
	"runtime"
	"sync"
)

// Options controls resource limits and cache sizing across the package-level
// parse/batch entry points. The zero value is not valid; use DefaultOptions.
type Options struct {
	// CacheFileBytes bounds the raw-bytes cache, keyed by path+mtime+size.
	CacheFileBytes int64
	// CacheResultEntries bounds the decoded-ParsedFile cache, same key.
	CacheResultEntries int
	// BatchWorkers bounds concurrent parses in ScanDir/ParseBatch.
	BatchWorkers int
	// MaxID3Frames bounds how many ID3v2 frames are indexed per tag; a file
	// that claims more is treated as KindResource.
	MaxID3Frames int
	// MaxMP4Depth bounds the MP4 ilst walk to MaxMP4Depth*64 tag atoms; the
	// fixed moov/trak/udta descent does not consult it, and exceeding the
	// bound ends the walk without an error.
	MaxMP4Depth int
}

// DefaultOptions returns limits sized for a desktop-scale library scan:
// size-bounded caches (bytes for file data, entries for results) rather
// than TTLs, for deterministic memory use.
func DefaultOptions() Options {
	return Options{
		CacheFileBytes:     64 << 20, // 64 MiB
		CacheResultEntries: 4096,
		BatchWorkers:       runtime.NumCPU(),
		MaxID3Frames:       4096,
		MaxMP4Depth:        32,
	}
}

var (
	globalOptionsMu sync.RWMutex
	globalOptions   = DefaultOptions()
)

// SetOptions replaces the options used by package-level entry points
// (Parse, ParseBytes, WriteMP3Tags) that don't take explicit Options.
// ScanDir and ParseBatch use the Options of the Cache they are given.
func SetOptions(o Options) {
	globalOptionsMu.Lock()
	defer globalOptionsMu.Unlock()
	globalOptions = o
}

func currentOptions() Options {
	globalOptionsMu.RLock()
	defer globalOptionsMu.RUnlock()
	return globalOptions
}
