// Package bamtest writes small coordinate-sorted, indexed BAM files for tests.
package bamtest

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
)

// Contig is a reference sequence in the BAM header.
type Contig struct {
	Name   string
	Length int
}

// Alignment describes one record to write.
// Pos and MatePos are 0-based. A nil Cigar means a single match of Len bases.
type Alignment struct {
	Name    string
	Contig  string
	Pos     int
	Len     int
	Cigar   []sam.CigarOp
	Flags   sam.Flags
	MatePos int
}

// Pair returns the two records of a properly paired fragment: the first
// mate at pos1 and the second at pos2, each readLen bases long. When
// reverse is set the first mate aligns to the reverse strand and the
// second mate to the forward strand, and the other way around otherwise.
func Pair(name, contig string, pos1, pos2, readLen int, reverse bool) []Alignment {
	f1 := sam.Paired | sam.ProperPair | sam.Read1
	f2 := sam.Paired | sam.ProperPair | sam.Read2
	if reverse {
		f1 |= sam.Reverse
		f2 |= sam.MateReverse
	} else {
		f1 |= sam.MateReverse
		f2 |= sam.Reverse
	}
	return []Alignment{
		{Name: name, Contig: contig, Pos: pos1, Len: readLen, Flags: f1, MatePos: pos2},
		{Name: name, Contig: contig, Pos: pos2, Len: readLen, Flags: f2, MatePos: pos1},
	}
}

// Write writes alns to a sorted BAM file at path and indexes it to path+".bai".
func Write(path string, contigs []Contig, alns []Alignment) error {
	refs := make([]*sam.Reference, len(contigs))
	byName := make(map[string]*sam.Reference, len(contigs))
	for i, c := range contigs {
		ref, err := sam.NewReference(c.Name, "", "", c.Length, nil, nil)
		if err != nil {
			return fmt.Errorf("create reference %s: %w", c.Name, err)
		}
		refs[i] = ref
		byName[c.Name] = ref
	}

	h, err := sam.NewHeader(nil, refs)
	if err != nil {
		return fmt.Errorf("create header: %w", err)
	}
	h.SortOrder = sam.Coordinate

	sorted := make([]Alignment, len(alns))
	copy(sorted, alns)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := byName[sorted[i].Contig].ID(), byName[sorted[j].Contig].ID()
		if ri != rj {
			return ri < rj
		}
		return sorted[i].Pos < sorted[j].Pos
	})

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w, err := bam.NewWriter(f, h, 1)
	if err != nil {
		f.Close()
		return fmt.Errorf("create bam writer: %w", err)
	}

	for _, a := range sorted {
		rec, err := a.record(byName[a.Contig])
		if err != nil {
			w.Close()
			f.Close()
			return err
		}
		if err := w.Write(rec); err != nil {
			w.Close()
			f.Close()
			return fmt.Errorf("write record %s: %w", a.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close bam writer: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	return writeIndex(path)
}

func (a Alignment) record(ref *sam.Reference) (*sam.Record, error) {
	if ref == nil {
		return nil, fmt.Errorf("alignment %s: unknown contig %q", a.Name, a.Contig)
	}

	cigar := a.Cigar
	if cigar == nil {
		cigar = []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, a.Len)}
	}

	qlen := 0
	for _, op := range cigar {
		if op.Type().Consumes().Query > 0 {
			qlen += op.Len()
		}
	}
	seq := bytes.Repeat([]byte{'A'}, qlen)
	qual := bytes.Repeat([]byte{30}, qlen)

	var mate *sam.Reference
	matePos := -1
	if a.Flags&sam.Paired != 0 {
		mate = ref
		matePos = a.MatePos
	}

	rec, err := sam.NewRecord(a.Name, ref, mate, a.Pos, matePos, 0, 60, cigar, seq, qual, nil)
	if err != nil {
		return nil, fmt.Errorf("create record %s: %w", a.Name, err)
	}
	rec.Flags = a.Flags
	return rec, nil
}

func writeIndex(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	br, err := bam.NewReader(f, 1)
	if err != nil {
		return fmt.Errorf("reopen bam: %w", err)
	}
	defer br.Close()

	var idx bam.Index
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read back bam: %w", err)
		}
		chunk := br.LastChunk()
		if err := indexAdd(func() error { return idx.Add(rec, chunk) }); err != nil {
			return fmt.Errorf("index record %s: %w", rec.Name, err)
		}
	}

	out, err := os.Create(path + ".bai")
	if err != nil {
		return err
	}
	if err := bam.WriteIndex(out, &idx); err != nil {
		out.Close()
		return fmt.Errorf("write index: %w", err)
	}
	return out.Close()
}

// indexAdd runs add, converting a panic from the index builder into an error.
func indexAdd(add func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bam index: %v", r)
		}
	}()
	return add()
}
