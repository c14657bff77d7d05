package alignment

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/bgzf/index"
	"github.com/biogo/hts/sam"
)

var (
	// ErrMissingIndex is returned when no .bai index accompanies a BAM file.
	ErrMissingIndex = errors.New("bam index not found")

	// ErrUnknownContig is returned when a queried contig is not in the BAM header.
	ErrUnknownContig = errors.New("contig not in bam header")
)

// maxIndexPos is the largest coordinate a BAI index can address.
const maxIndexPos = 1<<29 - 1

// Reader provides region queries over an indexed BAM file.
// It is safe for concurrent use; each query reads through its own file handle.
type Reader struct {
	path string
	idx  *bam.Index
	refs map[string]*sam.Reference

	mu     sync.Mutex
	free   []*handle
	closed bool
}

// handle is an open BAM file positioned by index queries.
type handle struct {
	file *os.File
	br   *bam.Reader
}

// Open opens a BAM file and its index.
func Open(path string) (*Reader, error) {
	idx, err := readIndex(path)
	if err != nil {
		return nil, err
	}

	r := &Reader{path: path, idx: idx}

	h, err := r.openHandle()
	if err != nil {
		return nil, err
	}

	refs := h.br.Header().Refs()
	r.refs = make(map[string]*sam.Reference, len(refs))
	for _, ref := range refs {
		r.refs[ref.Name()] = ref
	}
	r.free = append(r.free, h)

	return r, nil
}

// readIndex loads the BAI index for path, trying <path>.bai and then
// the path with its .bam extension replaced.
func readIndex(path string) (*bam.Index, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open bam file: %w", err)
	}

	candidates := []string{path + ".bai"}
	if strings.HasSuffix(path, ".bam") {
		candidates = append(candidates, strings.TrimSuffix(path, ".bam")+".bai")
	}

	for _, c := range candidates {
		f, err := os.Open(c)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("open bam index: %w", err)
		}
		idx, err := bam.ReadIndex(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read bam index %s: %w", c, err)
		}
		return idx, nil
	}

	return nil, fmt.Errorf("%w for %s (run samtools index)", ErrMissingIndex, path)
}

func (r *Reader) openHandle() (*handle, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open bam file: %w", err)
	}
	br, err := bam.NewReader(f, 1)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read bam header: %w", err)
	}
	return &handle{file: f, br: br}, nil
}

func (r *Reader) acquire() (*handle, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.New("bam reader is closed")
	}
	if n := len(r.free); n > 0 {
		h := r.free[n-1]
		r.free = r.free[:n-1]
		r.mu.Unlock()
		return h, nil
	}
	r.mu.Unlock()
	return r.openHandle()
}

func (r *Reader) release(h *handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		h.close()
		return
	}
	r.free = append(r.free, h)
}

func (h *handle) close() error {
	h.br.Close()
	return h.file.Close()
}

// Path returns the path of the BAM file.
func (r *Reader) Path() string {
	return r.path
}

// Contigs returns the reference names from the BAM header.
func (r *Reader) Contigs() []string {
	names := make([]string, 0, len(r.refs))
	for name := range r.refs {
		names = append(names, name)
	}
	return names
}

// resolve finds the header reference for contig, allowing a "chr" prefix
// mismatch between the annotation and the alignments.
func (r *Reader) resolve(contig string) (*sam.Reference, bool) {
	if ref, ok := r.refs[contig]; ok {
		return ref, true
	}
	if strings.HasPrefix(contig, "chr") {
		ref, ok := r.refs[contig[3:]]
		return ref, ok
	}
	ref, ok := r.refs["chr"+contig]
	return ref, ok
}

// HasContig reports whether contig can be queried.
func (r *Reader) HasContig(contig string) bool {
	_, ok := r.resolve(contig)
	return ok
}

// Query returns an iterator over mapped reads overlapping the 0-based
// half-open region [start, end) of contig.
func (r *Reader) Query(contig string, start, end int) (*Iterator, error) {
	ref, ok := r.resolve(contig)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownContig, contig)
	}

	start = max(start, 0)
	end = min(end, ref.Len(), maxIndexPos)
	if end <= start {
		return &Iterator{}, nil
	}

	chunks, err := r.idx.Chunks(ref, start, end)
	if err != nil {
		if errors.Is(err, index.ErrNoReference) || errors.Is(err, index.ErrInvalid) {
			// No reads were indexed in this region.
			return &Iterator{}, nil
		}
		return nil, fmt.Errorf("query index %s:%d-%d: %w", contig, start, end, err)
	}

	h, err := r.acquire()
	if err != nil {
		return nil, err
	}

	it, err := bam.NewIterator(h.br, chunks)
	if err != nil {
		r.release(h)
		return nil, fmt.Errorf("seek bam %s:%d-%d: %w", contig, start, end, err)
	}

	return &Iterator{
		reader: r,
		handle: h,
		it:     it,
		contig: ref.Name(),
		refID:  ref.ID(),
		start:  start,
		end:    end,
	}, nil
}

// Close releases all file handles.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true

	var firstErr error
	for _, h := range r.free {
		if err := h.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.free = nil
	return firstErr
}

// Iterator yields reads overlapping a queried region.
// The zero Iterator is empty.
type Iterator struct {
	reader *Reader
	handle *handle
	it     *bam.Iterator
	contig string
	refID  int
	start  int
	end    int
	read   Read
	err    error
}

// Next advances to the next overlapping read, returning false when the
// region is exhausted or an error occurred.
func (i *Iterator) Next() bool {
	if i.it == nil || i.err != nil {
		return false
	}
	for i.it.Next() {
		rec := i.it.Record()
		if rec.Flags&sam.Unmapped != 0 || rec.Ref == nil || rec.Ref.ID() != i.refID {
			continue
		}
		if rec.Start() >= i.end {
			// Records are coordinate sorted within a chunk list.
			break
		}
		if rec.End() <= i.start {
			continue
		}
		i.read = newRead(i.contig, rec)
		return true
	}
	i.err = i.it.Error()
	return false
}

// Read returns the current read.
func (i *Iterator) Read() Read {
	return i.read
}

// Err returns the first error encountered during iteration.
func (i *Iterator) Err() error {
	return i.err
}

// Close returns the iterator's file handle to its reader.
func (i *Iterator) Close() error {
	if i.it == nil {
		return nil
	}
	err := i.it.Close()
	i.reader.release(i.handle)
	i.it = nil
	if i.err != nil {
		return i.err
	}
	return err
}
