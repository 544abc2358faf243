package audiotag

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapThreshold is the file size at or above which Open memory-maps the file
// instead of reading it fully into the process heap. A mapped region is
// released only by an explicit OwningBuffer.Close; there is no finalizer.
const mmapThreshold = 64 * 1024

// ByteSlice is a read-only view into an OwningBuffer. For a heap-backed
// buffer Go's garbage collector keeps the storage alive while any ByteSlice
// references it; for a memory-mapped buffer Close unmaps the storage, and no
// ByteSlice taken from it may be used after that.
type ByteSlice []byte

// OwningBuffer is the backing store a ByteSlice is carved out of: either a
// plain in-memory byte slice (Wrap) or a page mapped from a file (Open on a
// file over mmapThreshold).
type OwningBuffer struct {
	data []byte
	file *os.File // non-nil only when data is an mmap'd region that must be unmapped on Close
}

// Open reads path into an OwningBuffer, memory-mapping it when it is at
// least mmapThreshold bytes and falling back to a full read otherwise (and on any
// platform/mmap failure, since a correctly-parsed small read is always an
// acceptable substitute for a mapped one).
func Open(path string) (*OwningBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErr(KindIO, "open", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, newErr(KindIO, "stat", err)
	}

	size := fi.Size()
	if size == 0 {
		// An empty file is still a valid byte source; the dispatcher is the
		// layer that decides no format claims it.
		f.Close()
		return &OwningBuffer{data: []byte{}}, nil
	}

	if size < mmapThreshold {
		defer f.Close()
		data := make([]byte, size)
		if _, err := readFull(f, data); err != nil {
			return nil, newErr(KindIO, "read", err)
		}
		return &OwningBuffer{data: data}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		// mmap isn't available (unsupported platform, fd limit, etc); fall
		// back to a regular read rather than failing the whole parse.
		defer f.Close()
		if _, serr := f.Seek(0, 0); serr != nil {
			return nil, newErr(KindIO, "seek", serr)
		}
		buf := make([]byte, size)
		if _, err := readFull(f, buf); err != nil {
			return nil, newErr(KindIO, "read", err)
		}
		return &OwningBuffer{data: buf}, nil
	}

	ob := &OwningBuffer{data: data, file: f}
	return ob, nil
}

// Wrap presents an in-memory byte slice as an OwningBuffer without copying.
// The caller must not mutate b while the returned buffer (or any ByteSlice
// derived from it) is in use.
func Wrap(b []byte) *OwningBuffer {
	return &OwningBuffer{data: b}
}

// Close unmaps the buffer if it was backed by mmap; it is a no-op otherwise.
func (b *OwningBuffer) Close() error {
	if b.file == nil {
		return nil
	}
	err := unix.Munmap(b.data)
	cerr := b.file.Close()
	b.file = nil
	b.data = nil
	if err != nil {
		return err
	}
	return cerr
}

// Bytes returns the full underlying byte slice.
func (b *OwningBuffer) Bytes() ByteSlice { return ByteSlice(b.data) }

// Slice returns the [off, off+n) sub-range as a ByteSlice, or an error if it
// falls outside the buffer.
func (b *OwningBuffer) Slice(off, n int) (ByteSlice, error) {
	if off < 0 || n < 0 || off+n > len(b.data) {
		return nil, newErr(KindTruncation, fmt.Sprintf("range [%d,%d) outside buffer of length %d", off, off+n, len(b.data)), nil)
	}
	return ByteSlice(b.data[off : off+n]), nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, fmt.Errorf("short read")
		}
	}
	return total, nil
}
