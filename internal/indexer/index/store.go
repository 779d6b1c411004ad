// Package index holds the shared inverted index: term -> document -> count.
//
// The Store is split into shards selected by a hash of the term. Every
// mutation of a term holds only its shard's lock, so workers that touch
// terms on different shards never contend, while two workers incrementing
// the same (term, document) pair are serialised and no increment is lost.
package index

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// DefaultShards is used when NewStore is given a non-positive count.
const DefaultShards = 64

type shard struct {
	mu    sync.RWMutex
	terms map[string]map[string]int
}

// Store is a concurrency-safe inverted index. Internal maps never escape;
// every read returns a copy.
type Store struct {
	shards  []*shard
	mask    uint64
	updates atomic.Int64
}

// NewStore creates an empty Store. The shard count is rounded up to a power
// of two.
func NewStore(shards int) *Store {
	if shards <= 0 {
		shards = DefaultShards
	}
	n := 1
	for n < shards {
		n <<= 1
	}
	s := &Store{
		shards: make([]*shard, n),
		mask:   uint64(n - 1),
	}
	for i := range s.shards {
		s.shards[i] = &shard{terms: make(map[string]map[string]int)}
	}
	return s
}

func (s *Store) shardFor(term string) *shard {
	return s.shards[xxhash.Sum64String(term)&s.mask]
}

// Update increments the posting count of (term, docID) by one, creating the
// term and the posting if absent.
func (s *Store) Update(term, docID string) {
	sh := s.shardFor(term)
	sh.mu.Lock()
	docs, ok := sh.terms[term]
	if !ok {
		docs = make(map[string]int)
		sh.terms[term] = docs
	}
	docs[docID]++
	sh.mu.Unlock()
	s.updates.Add(1)
}

// UpdateBatch adds counts[term] to the posting of (term, docID) for every
// term in counts. It is equivalent to calling Update counts[term] times per
// term, but takes each shard's lock once. Non-positive counts are ignored.
func (s *Store) UpdateBatch(docID string, counts map[string]int) {
	byShard := make(map[*shard][]string)
	for term, n := range counts {
		if n <= 0 {
			continue
		}
		sh := s.shardFor(term)
		byShard[sh] = append(byShard[sh], term)
	}
	var total int64
	for sh, terms := range byShard {
		sh.mu.Lock()
		for _, term := range terms {
			docs, ok := sh.terms[term]
			if !ok {
				docs = make(map[string]int)
				sh.terms[term] = docs
			}
			docs[docID] += counts[term]
			total += int64(counts[term])
		}
		sh.mu.Unlock()
	}
	s.updates.Add(total)
}

// Query returns, for every document that appears under at least one of the
// terms, the sum of its posting counts over all terms in the list. Duplicate
// terms are counted again and unknown terms contribute nothing. Documents
// are not required to contain every term.
//
// Query may run concurrently with Update and observes each term's postings
// atomically, so results can reflect an indexing run still in progress.
func (s *Store) Query(terms []string) map[string]int {
	result := make(map[string]int)
	for _, term := range terms {
		sh := s.shardFor(term)
		sh.mu.RLock()
		for docID, n := range sh.terms[term] {
			result[docID] += n
		}
		sh.mu.RUnlock()
	}
	return result
}

// Postings returns a copy of the document -> count map for term, or an
// empty map when the term is not indexed.
func (s *Store) Postings(term string) map[string]int {
	sh := s.shardFor(term)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	docs := sh.terms[term]
	out := make(map[string]int, len(docs))
	for docID, n := range docs {
		out[docID] = n
	}
	return out
}

// Contains reports whether docID has a posting for term.
func (s *Store) Contains(term, docID string) bool {
	sh := s.shardFor(term)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	_, ok := sh.terms[term][docID]
	return ok
}

// Snapshot returns every term with its postings, sorted by term and then by
// document. Shards are copied one at a time, so the snapshot is consistent
// per term but not across terms while indexing is in progress.
func (s *Store) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for term, docs := range sh.terms {
			postings := make(PostingList, 0, len(docs))
			for docID, n := range docs {
				postings = append(postings, Posting{DocID: docID, Frequency: n})
			}
			entries = append(entries, TermEntry{Term: term, Postings: postings})
		}
		sh.mu.RUnlock()
	}
	for _, e := range entries {
		sort.Slice(e.Postings, func(i, j int) bool {
			return e.Postings[i].DocID < e.Postings[j].DocID
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Stats returns the number of terms and postings currently held.
func (s *Store) Stats() Stats {
	st := Stats{Shards: len(s.shards), Updates: s.updates.Load()}
	for _, sh := range s.shards {
		sh.mu.RLock()
		st.Terms += len(sh.terms)
		for _, docs := range sh.terms {
			st.Postings += len(docs)
		}
		sh.mu.RUnlock()
	}
	return st
}
