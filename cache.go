package audiotag

import (
	"container/list"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheKey identifies a file by path plus the stat fields that change when
// its content changes, so a cache entry is invalidated by any edit without
// needing to re-read the file to check.
type cacheKey struct {
	path    string
	size    int64
	modTime int64
}

func statKey(path string, fi os.FileInfo) cacheKey {
	return cacheKey{path: path, size: fi.Size(), modTime: fi.ModTime().UnixNano()}
}

// Cache holds a bounded file-bytes cache and a bounded parsed-result cache,
// both keyed by path+stat, plus a content-fingerprint cache (keyed by
// xxhash of the first 64KiB + size) used by batch parsing to dedup files
// that share content under different paths. The file-bytes tier is an LRU
// bounded by total bytes (golang-lru bounds by entry count only, so its
// recency list is kept by hand here); the result tier is bounded by entry
// count via golang-lru.
type Cache struct {
	opts Options

	mu        sync.Mutex
	fileList  *list.List // of *fileCacheEntry; front = most recently used
	fileIndex map[cacheKey]*list.Element
	fileTotal int64

	results *lru.Cache[cacheKey, *ParsedFile]

	fpMu sync.RWMutex
	fp   map[uint64]*ParsedFile
}

type fileCacheEntry struct {
	key  cacheKey
	data []byte
}

// NewCache builds a Cache sized per opts.
func NewCache(opts Options) *Cache {
	results, err := lru.New[cacheKey, *ParsedFile](max(opts.CacheResultEntries, 1))
	if err != nil {
		// Only returns an error for a non-positive size, which max() above
		// already rules out.
		panic(err)
	}
	return &Cache{
		opts:      opts,
		fileList:  list.New(),
		fileIndex: make(map[cacheKey]*list.Element),
		results:   results,
		fp:        make(map[uint64]*ParsedFile),
	}
}

// Clear drops every entry from all three tiers. Intended for tests and for
// hosts that know the filesystem changed underneath them in ways stat keys
// can't capture.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.fileList = list.New()
	c.fileIndex = make(map[cacheKey]*list.Element)
	c.fileTotal = 0
	c.mu.Unlock()

	c.results.Purge()

	c.fpMu.Lock()
	c.fp = make(map[uint64]*ParsedFile)
	c.fpMu.Unlock()
}

// Parse returns a cached ParsedFile for path if one exists and the file's
// stat still matches, otherwise parses it and populates both caches.
func (c *Cache) Parse(path string) (*ParsedFile, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, newErr(KindIO, "stat", err)
	}
	key := statKey(path, fi)

	if pf, ok := c.results.Get(key); ok {
		return pf, nil
	}

	data, fprint, err := c.readFile(path, key, fi)
	if err != nil {
		return nil, err
	}

	if pf := c.byFingerprint(fprint); pf != nil {
		c.results.Add(key, pf)
		return pf, nil
	}

	pf, perr := parseBuffer(path, ByteSlice(data), c.opts)
	if perr != nil {
		return nil, withPath(perr, path)
	}

	c.results.Add(key, pf)
	c.putFingerprint(fprint, pf)
	return pf, nil
}

func (c *Cache) readFile(path string, key cacheKey, fi os.FileInfo) ([]byte, uint64, error) {
	c.mu.Lock()
	if el, ok := c.fileIndex[key]; ok {
		c.fileList.MoveToFront(el)
		data := el.Value.(*fileCacheEntry).data
		c.mu.Unlock()
		return data, fingerprint(data, fi.Size()), nil
	}
	c.mu.Unlock()

	ob, err := Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer ob.Close()
	data := append([]byte(nil), ob.Bytes()...)
	fprint := fingerprint(data, fi.Size())

	c.mu.Lock()
	if _, ok := c.fileIndex[key]; !ok && fi.Size() <= c.opts.CacheFileBytes {
		for c.fileTotal+fi.Size() > c.opts.CacheFileBytes {
			if !c.evictOldestFileLocked() {
				break
			}
		}
		c.fileIndex[key] = c.fileList.PushFront(&fileCacheEntry{key: key, data: data})
		c.fileTotal += fi.Size()
	}
	c.mu.Unlock()

	return data, fprint, nil
}

// evictOldestFileLocked drops the least-recently-used entry, reporting false
// once the list is empty. c.mu must be held.
func (c *Cache) evictOldestFileLocked() bool {
	el := c.fileList.Back()
	if el == nil {
		return false
	}
	e := el.Value.(*fileCacheEntry)
	c.fileList.Remove(el)
	delete(c.fileIndex, e.key)
	c.fileTotal -= int64(len(e.data))
	return true
}

func (c *Cache) byFingerprint(fprint uint64) *ParsedFile {
	c.fpMu.RLock()
	defer c.fpMu.RUnlock()
	return c.fp[fprint]
}

func (c *Cache) putFingerprint(fprint uint64, pf *ParsedFile) {
	c.fpMu.Lock()
	defer c.fpMu.Unlock()
	c.fp[fprint] = pf
}

const fingerprintSampleSize = 64 * 1024

// fingerprint hashes the first 64KiB of data plus the file's total size, so
// two files must agree on both prefix and length to collapse to one entry.
func fingerprint(data []byte, size int64) uint64 {
	sample := data
	if len(sample) > fingerprintSampleSize {
		sample = sample[:fingerprintSampleSize]
	}
	h := xxhash.New()
	h.Write(sample)
	var sizeBuf [8]byte
	for i := 0; i < 8; i++ {
		sizeBuf[i] = byte(size >> (8 * i))
	}
	h.Write(sizeBuf[:])
	return h.Sum64()
}
