package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"docchat/src/core/chunk"
)

var (
	// ErrEmbedding wraps failures of the injected embedder. An ingestion
	// unit that hits it commits nothing.
	ErrEmbedding = errors.New("index: embedding failed")
	// ErrDimensionMismatch is returned when a vector does not match the
	// dimensionality fixed by the first committed entry.
	ErrDimensionMismatch = errors.New("index: vector dimension mismatch")
)

// Embedder produces a fixed-dimension vector for a span of text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Document describes one ingested source, deduplicated by DocID.
type Document struct {
	DocID      string    `json:"doc_id"`
	SourceName string    `json:"source_name"`
	ChunkCount int       `json:"chunk_count"`
	IngestedAt time.Time `json:"ingested_at"`
}

// Hit is a single retrieval result, ranked by descending cosine similarity.
type Hit struct {
	Text       string  `json:"text"`
	SourceName string  `json:"source_name"`
	Score      float64 `json:"score"`
}

type entry struct {
	id         string
	vector     []float32
	text       string
	docID      string
	sourceName string
	chunkIndex int
}

// Index is an in-memory vector store over chunk embeddings. Writes for one
// document are serialized; reads run concurrently with unrelated writes, so
// a query racing an insert may or may not see the new document.
type Index struct {
	mu       sync.RWMutex
	entries  []entry
	docs     map[string]Document
	docOrder []string
	dim      int

	docLocks sync.Mutex
	perDoc   map[string]*sync.Mutex
}

// NewIndex creates an empty index. Dimensionality is fixed by the first
// committed document.
func NewIndex() *Index {
	return &Index{
		docs:   make(map[string]Document),
		perDoc: make(map[string]*sync.Mutex),
	}
}

func entryID(docID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", docID, chunkIndex)
}

func (x *Index) lockDoc(docID string) *sync.Mutex {
	x.docLocks.Lock()
	defer x.docLocks.Unlock()
	mu, ok := x.perDoc[docID]
	if !ok {
		mu = &sync.Mutex{}
		x.perDoc[docID] = mu
	}
	return mu
}

// Insert embeds every chunk of a document and commits the entries
// atomically: either all chunks land in the index or none do. Concurrent
// inserts for the same document do not interleave.
func (x *Index) Insert(ctx context.Context, docID, sourceName string, chunks []chunk.Chunk, embedder Embedder) error {
	mu := x.lockDoc(docID)
	mu.Lock()
	defer mu.Unlock()

	buffer := make([]entry, 0, len(chunks))
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		vector, err := embedder.Embed(ctx, c.Text)
		if err != nil {
			return fmt.Errorf("%w: chunk %d of %q: %v", ErrEmbedding, c.Index, sourceName, err)
		}
		buffer = append(buffer, entry{
			id:         entryID(docID, c.Index),
			vector:     vector,
			text:       c.Text,
			docID:      docID,
			sourceName: sourceName,
			chunkIndex: c.Index,
		})
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	dim := x.dim
	if dim == 0 && len(buffer) > 0 {
		dim = len(buffer[0].vector)
	}
	for _, e := range buffer {
		if len(e.vector) != dim {
			return fmt.Errorf("%w: got %d, index holds %d", ErrDimensionMismatch, len(e.vector), dim)
		}
	}
	x.dim = dim

	if _, seen := x.docs[docID]; !seen {
		x.docOrder = append(x.docOrder, docID)
	} else {
		// Re-ingesting a document replaces its entries.
		kept := x.entries[:0]
		for _, e := range x.entries {
			if e.docID != docID {
				kept = append(kept, e)
			}
		}
		x.entries = kept
	}
	x.entries = append(x.entries, buffer...)
	x.docs[docID] = Document{
		DocID:      docID,
		SourceName: sourceName,
		ChunkCount: len(buffer),
		IngestedAt: time.Now().UTC(),
	}

	return nil
}

// Query embeds the query text and returns up to k entries ranked by cosine
// similarity, ties broken by insertion order. An empty index answers with an
// empty result and no error, before touching the embedder.
func (x *Index) Query(ctx context.Context, text string, k int, embedder Embedder) ([]Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("index: top-k must be positive, got %d", k)
	}

	x.mu.RLock()
	empty := len(x.entries) == 0
	x.mu.RUnlock()
	if empty {
		return nil, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query, err := embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %v", ErrEmbedding, err)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	hits := make([]Hit, 0, len(x.entries))
	for _, e := range x.entries {
		hits = append(hits, Hit{
			Text:       e.text,
			SourceName: e.sourceName,
			Score:      cosine(query, e.vector),
		})
	}

	// Stable sort keeps insertion order between equal scores.
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteDocument removes every entry for a document and reports whether any
// were present.
func (x *Index) DeleteDocument(docID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.docs[docID]; !ok {
		return false
	}

	kept := x.entries[:0]
	for _, e := range x.entries {
		if e.docID != docID {
			kept = append(kept, e)
		}
	}
	x.entries = kept
	delete(x.docs, docID)
	for i, id := range x.docOrder {
		if id == docID {
			x.docOrder = append(x.docOrder[:i], x.docOrder[i+1:]...)
			break
		}
	}
	if len(x.entries) == 0 {
		x.dim = 0
	}
	return true
}

// Reset empties the index entirely.
func (x *Index) Reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entries = nil
	x.docs = make(map[string]Document)
	x.docOrder = nil
	x.dim = 0
}

// ListDocuments returns one row per ingested document, in ingestion order.
func (x *Index) ListDocuments() []Document {
	x.mu.RLock()
	defer x.mu.RUnlock()

	docs := make([]Document, 0, len(x.docOrder))
	for _, id := range x.docOrder {
		docs = append(docs, x.docs[id])
	}
	return docs
}

// Len returns the number of stored entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// cosine computes the cosine of the angle between two vectors. Vectors are
// normalized here, at query time, never at storage time.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
