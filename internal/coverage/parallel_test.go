package coverage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inodb/dirseq/internal/gff"
)

func makeItems(n int) <-chan WorkItem {
	ch := make(chan WorkItem, n)
	for i := 0; i < n; i++ {
		ch <- WorkItem{
			Seq: i,
			Feature: &gff.Feature{
				Contig: "contig_100",
				Type:   "CDS",
				Start:  1 + i,
				End:    100 + i,
				Strand: gff.Forward,
			},
		}
	}
	close(ch)
	return ch
}

func TestParallelAggregate_OrderPreservation(t *testing.T) {
	a := newTestAggregator(t, egReads(), Options{})

	results := a.ParallelAggregate(makeItems(200), 8)

	var collected []int
	err := OrderedCollect(results, func(r WorkResult) error {
		require.NoError(t, r.Err)
		assert.Equal(t, r.Feature, r.Result.Feature)
		collected = append(collected, r.Seq)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, collected, 200)
	for i, seq := range collected {
		assert.Equal(t, i, seq, "result %d out of order", i)
	}
}

func TestParallelAggregate_SingleWorker(t *testing.T) {
	a := newTestAggregator(t, egReads(), Options{Measure: MeasureCount})

	results := a.ParallelAggregate(makeItems(50), 1)

	count := 0
	err := OrderedCollect(results, func(r WorkResult) error {
		require.NoError(t, r.Err)
		assert.Equal(t, count, r.Seq)
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 50, count)
}

func TestParallelAggregate_ZeroWorkers(t *testing.T) {
	a := newTestAggregator(t, egReads(), Options{})

	results := a.ParallelAggregate(makeItems(10), 0)

	count := 0
	require.NoError(t, OrderedCollect(results, func(WorkResult) error {
		count++
		return nil
	}))
	assert.Equal(t, 10, count)
}

func TestOrderedCollect_StopsOnError(t *testing.T) {
	a := newTestAggregator(t, egReads(), Options{})

	results := a.ParallelAggregate(makeItems(100), 4)

	stop := errors.New("stop")
	seen := 0
	err := OrderedCollect(results, func(r WorkResult) error {
		seen++
		if r.Seq == 9 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 10, seen)
}

func TestOrderedCollect_Empty(t *testing.T) {
	ch := make(chan WorkResult)
	close(ch)

	called := false
	require.NoError(t, OrderedCollect(ch, func(WorkResult) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}

func TestOrderedCollect_HoldsEarlyResults(t *testing.T) {
	ch := make(chan WorkResult, 5)
	for _, seq := range []int{3, 1, 0, 4, 2} {
		ch <- WorkResult{Seq: seq}
	}
	close(ch)

	var order []int
	require.NoError(t, OrderedCollect(ch, func(r WorkResult) error {
		order = append(order, r.Seq)
		return nil
	}))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}
