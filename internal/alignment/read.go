// Package alignment provides indexed access to aligned reads in BAM files.
package alignment

import "github.com/biogo/hts/sam"

// Block is an aligned segment of a read on the reference, 0-based half-open.
type Block struct {
	Start int
	End   int
}

// Read is a single aligned read.
// Start is 0-based and End is exclusive.
type Read struct {
	Name    string
	Contig  string
	Start   int
	End     int
	Reverse bool
	Flags   sam.Flags
	Blocks  []Block
}

// newRead converts a sam.Record into a Read. Aligned blocks are taken
// from the CIGAR match operations (M, = and X); deletions and skipped
// regions move along the reference without contributing depth.
func newRead(contig string, rec *sam.Record) Read {
	r := Read{
		Name:    rec.Name,
		Contig:  contig,
		Start:   rec.Start(),
		End:     rec.End(),
		Reverse: rec.Flags&sam.Reverse != 0,
		Flags:   rec.Flags,
	}

	pos := rec.Pos
	for _, op := range rec.Cigar {
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			r.Blocks = append(r.Blocks, Block{Start: pos, End: pos + n})
		}
		if op.Type().Consumes().Reference > 0 {
			pos += n
		}
	}

	return r
}

// IsMate2 reports whether the read is the second read of a pair.
func (r Read) IsMate2() bool {
	return r.Flags&sam.Paired != 0 && r.Flags&sam.Read2 != 0
}

// FragmentReverse reports the orientation of the sequenced fragment.
// The second read of a pair is sequenced from the opposite strand, so its
// orientation is flipped.
func (r Read) FragmentReverse() bool {
	if r.IsMate2() {
		return !r.Reverse
	}
	return r.Reverse
}

// Overlaps reports whether the read's alignment span overlaps [start, end).
func (r Read) Overlaps(start, end int) bool {
	return r.Start < end && r.End > start
}

// AlignedBasesIn returns the number of aligned bases within [start, end).
func (r Read) AlignedBasesIn(start, end int) int {
	total := 0
	for _, b := range r.Blocks {
		lo := max(b.Start, start)
		hi := min(b.End, end)
		if hi > lo {
			total += hi - lo
		}
	}
	return total
}
