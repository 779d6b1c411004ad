package index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreRoundsShards(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{in: 0, want: DefaultShards},
		{in: -3, want: DefaultShards},
		{in: 1, want: 1},
		{in: 3, want: 4},
		{in: 64, want: 64},
		{in: 65, want: 128},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("shards_%d", tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, NewStore(tt.in).Stats().Shards)
		})
	}
}

func TestUpdateCreatesAndIncrements(t *testing.T) {
	s := NewStore(4)
	s.Update("cat", "/a/doc1.txt")
	s.Update("cat", "/a/doc1.txt")
	s.Update("cat", "/b/doc2.txt")

	assert.Equal(t, map[string]int{"/a/doc1.txt": 2, "/b/doc2.txt": 1}, s.Postings("cat"))
	assert.True(t, s.Contains("cat", "/b/doc2.txt"))
	assert.False(t, s.Contains("dog", "/b/doc2.txt"))
	assert.Equal(t, Stats{Terms: 1, Postings: 2, Shards: 4, Updates: 3}, s.Stats())
}

func TestUpdateBatchEquivalentToUpdate(t *testing.T) {
	counts := map[string]int{"cat": 2, "dog": 1, "bird": 5, "zero": 0}

	batched := NewStore(8)
	batched.UpdateBatch("/doc.txt", counts)

	single := NewStore(8)
	for term, n := range counts {
		for i := 0; i < n; i++ {
			single.Update(term, "/doc.txt")
		}
	}
	assert.Equal(t, single.Snapshot(), batched.Snapshot())
	assert.Equal(t, single.Stats(), batched.Stats())
	assert.Empty(t, batched.Postings("zero"))
}

func TestQuerySumsAcrossTerms(t *testing.T) {
	s := NewStore(4)
	s.UpdateBatch("/a/doc1.txt", map[string]int{"cat": 2, "dog": 1})
	s.UpdateBatch("/b/doc2.txt", map[string]int{"dog": 3})

	tests := []struct {
		name  string
		terms []string
		want  map[string]int
	}{
		{name: "both terms", terms: []string{"cat", "dog"}, want: map[string]int{"/a/doc1.txt": 3, "/b/doc2.txt": 3}},
		{name: "partial match kept", terms: []string{"cat"}, want: map[string]int{"/a/doc1.txt": 2}},
		{name: "duplicates count twice", terms: []string{"dog", "dog"}, want: map[string]int{"/a/doc1.txt": 2, "/b/doc2.txt": 6}},
		{name: "unknown term", terms: []string{"fish"}, want: map[string]int{}},
		{name: "unknown plus known", terms: []string{"fish", "cat"}, want: map[string]int{"/a/doc1.txt": 2}},
		{name: "empty list", terms: nil, want: map[string]int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Query(tt.terms))
		})
	}
}

func TestQuerySingleTermIsPostings(t *testing.T) {
	s := NewStore(2)
	for i := 0; i < 20; i++ {
		s.Update(fmt.Sprintf("t%d", i%3), fmt.Sprintf("/d%d", i%7))
	}
	for _, term := range []string{"t0", "t1", "t2", "missing"} {
		assert.Equal(t, s.Postings(term), s.Query([]string{term}), term)
	}
}

func TestPostingsReturnsCopy(t *testing.T) {
	s := NewStore(1)
	s.Update("cat", "/doc")
	p := s.Postings("cat")
	p["/doc"] = 100
	p["/other"] = 1
	assert.Equal(t, map[string]int{"/doc": 1}, s.Postings("cat"))
}

func TestConcurrentUpdatesNoLostIncrements(t *testing.T) {
	const workers = 16
	const perWorker = 2000
	s := NewStore(8)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				s.Update("shared", "/same.txt")
				s.Update(fmt.Sprintf("w%d", w), fmt.Sprintf("/doc%d", i%10))
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_ = s.Query([]string{"shared", "w0"})
			_ = s.Stats()
		}
	}()
	wg.Wait()

	require.Equal(t, workers*perWorker, s.Postings("shared")["/same.txt"])
	for w := 0; w < workers; w++ {
		total := 0
		for _, n := range s.Postings(fmt.Sprintf("w%d", w)) {
			total += n
		}
		assert.Equal(t, perWorker, total)
	}
	assert.Equal(t, int64(workers*perWorker*2), s.Stats().Updates)
}

func TestSnapshotSorted(t *testing.T) {
	s := NewStore(4)
	s.Update("zebra", "/b")
	s.Update("apple", "/b")
	s.Update("apple", "/a")

	snap := s.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "apple", snap[0].Term)
	assert.Equal(t, PostingList{{DocID: "/a", Frequency: 1}, {DocID: "/b", Frequency: 1}}, snap[0].Postings)
	assert.Equal(t, "zebra", snap[1].Term)
}

func BenchmarkStoreUpdateParallel(b *testing.B) {
	s := NewStore(DefaultShards)
	terms := make([]string, 1024)
	for i := range terms {
		terms[i] = fmt.Sprintf("term%d", i)
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			s.Update(terms[i%len(terms)], "/doc.txt")
			i++
		}
	})
}

func BenchmarkStoreQuery(b *testing.B) {
	s := NewStore(DefaultShards)
	for i := 0; i < 10000; i++ {
		s.UpdateBatch(fmt.Sprintf("/doc-%d.txt", i), map[string]int{"search": 1 + i%5, "engine": 1})
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = s.Query([]string{"search", "engine"})
	}
}
