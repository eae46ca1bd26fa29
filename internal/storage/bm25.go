// BM25 full-text index, grounded on the teacher's fulltext_index.go but
// tuned to the spec's exact parameters: k1=1.5, b=0.75, and the smoothed
// IDF form ln((N-df+0.5)/(df+0.5)+1) (spec §4.D).
package storage

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"
)

const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// BM25Hit is one keyword-search result.
type BM25Hit struct {
	ID    string
	Score float64
}

// BM25Index is a classic inverted index with document-frequency table,
// per-document term frequencies, and per-document length, rebuilt from the
// hot tier on open (spec §4.D).
type BM25Index struct {
	mu sync.RWMutex

	termFreq   map[string]map[string]int // term -> docID -> tf
	docLen     map[string]int
	docText    map[string]string
	totalLen   int
}

// NewBM25Index returns an empty index.
func NewBM25Index() *BM25Index {
	return &BM25Index{
		termFreq: make(map[string]map[string]int),
		docLen:   make(map[string]int),
		docText:  make(map[string]string),
	}
}

// Index adds or replaces a document.
func (b *BM25Index) Index(id, text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(id)

	terms := tokenizeForBM25(text)
	if len(terms) == 0 {
		return
	}
	tf := make(map[string]int)
	for _, t := range terms {
		tf[t]++
	}
	for t, n := range tf {
		if b.termFreq[t] == nil {
			b.termFreq[t] = make(map[string]int)
		}
		b.termFreq[t][id] = n
	}
	b.docLen[id] = len(terms)
	b.docText[id] = text
	b.totalLen += len(terms)
}

// Remove drops a document from the index.
func (b *BM25Index) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removeLocked(id)
}

func (b *BM25Index) removeLocked(id string) {
	if l, ok := b.docLen[id]; ok {
		b.totalLen -= l
		delete(b.docLen, id)
		delete(b.docText, id)
		for t, docs := range b.termFreq {
			if _, ok := docs[id]; ok {
				delete(docs, id)
				if len(docs) == 0 {
					delete(b.termFreq, t)
				}
			}
		}
	}
}

// DocCount returns the number of indexed documents.
func (b *BM25Index) DocCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.docLen)
}

func (b *BM25Index) avgDocLen() float64 {
	n := len(b.docLen)
	if n == 0 {
		return 0
	}
	return float64(b.totalLen) / float64(n)
}

// idf computes the smoothed BM25 IDF: ln((N-df+0.5)/(df+0.5) + 1).
func (b *BM25Index) idf(term string) float64 {
	n := float64(len(b.docLen))
	df := float64(len(b.termFreq[term]))
	if n == 0 {
		return 0
	}
	return math.Log((n-df+0.5)/(df+0.5) + 1)
}

// Search scores every document containing a query term with BM25 and
// returns the top k by score descending.
func (b *BM25Index) Search(query string, k int) []BM25Hit {
	b.mu.RLock()
	defer b.mu.RUnlock()

	terms := tokenizeForBM25(query)
	if len(terms) == 0 {
		return nil
	}
	avgLen := b.avgDocLen()
	scores := make(map[string]float64)
	for _, term := range terms {
		docs, ok := b.termFreq[term]
		if !ok {
			continue
		}
		idf := b.idf(term)
		for id, tf := range docs {
			dl := float64(b.docLen[id])
			denom := float64(tf) + bm25K1*(1-bm25B+bm25B*dl/nonZero(avgLen))
			scores[id] += idf * (float64(tf) * (bm25K1 + 1)) / denom
		}
	}
	hits := make([]BM25Hit, 0, len(scores))
	for id, s := range scores {
		hits = append(hits, BM25Hit{ID: id, Score: s})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func nonZero(x float64) float64 {
	if x == 0 {
		return 1
	}
	return x
}

// tokenizeForBM25 lowercases and splits on non-letter/non-digit runes.
func tokenizeForBM25(text string) []string {
	var terms []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			terms = append(terms, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return terms
}
