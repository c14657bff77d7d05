package coverage

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/inodb/dirseq/internal/alignment"
	"github.com/inodb/dirseq/internal/gff"
)

// ReadIterator iterates over the reads returned by a region query.
type ReadIterator interface {
	Next() bool
	Read() alignment.Read
	Err() error
	Close() error
}

// ReadSource defines the interface for finding reads overlapping a region.
// Coordinates are 0-based half-open. Implementations must be safe for
// concurrent use when more than one worker is configured.
type ReadSource interface {
	Query(contig string, start, end int) (ReadIterator, error)
}

// bamSource adapts an alignment.Reader to ReadSource.
type bamSource struct {
	r *alignment.Reader
}

// FromBAM returns a ReadSource backed by an indexed BAM reader.
func FromBAM(r *alignment.Reader) ReadSource {
	return bamSource{r: r}
}

func (s bamSource) Query(contig string, start, end int) (ReadIterator, error) {
	it, err := s.r.Query(contig, start, end)
	if err != nil {
		return nil, err
	}
	return it, nil
}

// Aggregator computes per-feature coverage or read counts.
type Aggregator struct {
	source   ReadSource
	opts     Options
	accepted map[string]bool
	workers  int
	logger   *zap.Logger

	mu      sync.Mutex
	missing map[string]bool // contigs already reported as absent
}

// NewAggregator creates a new aggregator reading from the given source.
func NewAggregator(src ReadSource, opts Options) (*Aggregator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	a := &Aggregator{
		source:  src,
		opts:    opts,
		workers: 1,
		logger:  zap.NewNop(),
		missing: make(map[string]bool),
	}
	if len(opts.AcceptedTypes) > 0 {
		a.accepted = make(map[string]bool, len(opts.AcceptedTypes))
		for _, t := range opts.AcceptedTypes {
			a.accepted[t] = true
		}
	}
	return a, nil
}

// SetLogger sets the logger for warning and info messages.
func (a *Aggregator) SetLogger(l *zap.Logger) {
	a.logger = l
}

// SetWorkers sets the number of features aggregated concurrently.
// Values below 1 are treated as 1.
func (a *Aggregator) SetWorkers(n int) {
	a.workers = max(n, 1)
}

// Options returns the aggregator's options.
func (a *Aggregator) Options() Options {
	return a.opts
}

// Accepts reports whether features of the given type are reported.
func (a *Aggregator) Accepts(f *gff.Feature) bool {
	return a.accepted == nil || a.accepted[f.Type]
}

// Aggregate computes the forward and reverse values for a single feature.
// A feature on a contig the source does not know yields zero values.
func (a *Aggregator) Aggregate(f *gff.Feature) (*Result, error) {
	res := &Result{Feature: f}
	start, end := f.Start-1, f.End

	it, err := a.source.Query(f.Contig, start, end)
	if err != nil {
		if errors.Is(err, alignment.ErrUnknownContig) {
			a.warnMissing(f.Contig)
			return res, nil
		}
		return nil, fmt.Errorf("query %s:%d-%d: %w", f.Contig, f.Start, f.End, err)
	}
	defer it.Close()

	var forward, reverse int
	for it.Next() {
		r := it.Read()
		if r.Flags&a.opts.FilterFlags != 0 || !r.Overlaps(start, end) {
			continue
		}

		var n int
		switch a.opts.Measure {
		case MeasureCount:
			if a.opts.ForwardReadOnly && r.IsMate2() {
				continue
			}
			n = 1
		default:
			n = r.AlignedBasesIn(start, end)
		}

		if r.FragmentReverse() {
			reverse += n
		} else {
			forward += n
		}
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("read %s:%d-%d: %w", f.Contig, f.Start, f.End, err)
	}

	switch a.opts.Measure {
	case MeasureCount:
		res.Forward = float64(forward)
		res.Reverse = float64(reverse)
	default:
		length := float64(f.Len())
		res.Forward = float64(forward) / length
		res.Reverse = float64(reverse) / length
	}

	return res, nil
}

func (a *Aggregator) warnMissing(contig string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.missing[contig] {
		return
	}
	a.missing[contig] = true
	a.logger.Warn("contig not found in BAM, reporting zero values",
		zap.String("contig", contig))
}

// AggregateAll aggregates all accepted features from a parser, writing
// results in input order.
func (a *Aggregator) AggregateAll(parser gff.FeatureParser, writer ResultWriter) error {
	items := make(chan WorkItem, 2*a.workers)
	var parseErr error
	featureCount := 0

	go func() {
		defer close(items)
		seq := 0
		for {
			f, err := parser.Next()
			if err != nil {
				parseErr = fmt.Errorf("read feature: %w", err)
				return
			}
			if f == nil {
				return
			}
			featureCount++
			if !a.Accepts(f) {
				continue
			}
			items <- WorkItem{Seq: seq, Feature: f}
			seq++
		}
	}()

	results := a.ParallelAggregate(items, a.workers)

	reported := 0
	if err := OrderedCollect(results, func(r WorkResult) error {
		if r.Err != nil {
			return r.Err
		}
		reported++
		if err := writer.Write(r.Result); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}

	if parseErr != nil {
		return parseErr
	}

	a.logger.Info("aggregation complete",
		zap.Int("features", featureCount),
		zap.Int("reported", reported),
		zap.String("measure", a.opts.Measure.String()))

	return writer.Flush()
}

// ResultWriter defines the interface for writing aggregated results.
type ResultWriter interface {
	WriteHeader() error
	Write(r *Result) error
	Flush() error
}
