package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"docchat/src/core/chunk"
	"docchat/src/core/index"
	"docchat/src/infrastructure/log"
)

// ErrEmptyDocument means extraction produced no usable text to index.
var ErrEmptyDocument = errors.New("ingest: no text could be extracted")

// Extractor is the upstream text-extraction collaborator; extract.Registry
// is the shipped implementation.
type Extractor interface {
	Extract(ctx context.Context, filename string, content []byte) (string, error)
}

// Receipt reports one completed ingestion.
type Receipt struct {
	DocID      string `json:"doc_id"`
	SourceName string `json:"source_name"`
	ChunkCount int    `json:"chunk_count"`
}

// Service runs the ingestion path: extract text, split it into chunks, and
// commit the embedded chunks to the index as one unit.
type Service struct {
	extractor Extractor
	splitter  *chunk.Splitter
	idx       *index.Index
	embedder  index.Embedder
}

func NewService(extractor Extractor, splitter *chunk.Splitter, idx *index.Index, embedder index.Embedder) *Service {
	return &Service{
		extractor: extractor,
		splitter:  splitter,
		idx:       idx,
		embedder:  embedder,
	}
}

// Ingest processes one uploaded file under a freshly minted document ID.
// A document whose chunks cannot all be embedded leaves no trace in the
// index, and one with no extractable text is rejected outright so no id is
// handed out for content the index will never hold.
func (s *Service) Ingest(ctx context.Context, sourceName string, content []byte) (*Receipt, error) {
	text, err := s.extractor.Extract(ctx, sourceName, content)
	if err != nil {
		return nil, err
	}

	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, sourceName)
	}

	docID := uuid.New().String()

	if err := s.idx.Insert(ctx, docID, sourceName, chunks, s.embedder); err != nil {
		return nil, fmt.Errorf("index %q: %w", sourceName, err)
	}

	log.Info("ingested document", "source", sourceName, "doc_id", docID, "chunks", len(chunks))
	return &Receipt{
		DocID:      docID,
		SourceName: sourceName,
		ChunkCount: len(chunks),
	}, nil
}
