package searchdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/meghashyamc/omnisearch/config"
	"github.com/meghashyamc/omnisearch/logger"
)

const defaultBatchSize = 100

const (
	indexFieldContent = "content"
	indexFieldName    = "name"
	indexFieldExt     = "ext"
	indexFieldPath    = "path"
	indexFieldSize    = "size"
	indexFieldModTime = "mod_time"
)

type BleveDB struct {
	indexPath string
	batchSize int
	logger    logger.Logger
	index     bleve.Index
}

func New(logger logger.Logger, cfg *config.Config) (*BleveDB, error) {
	indexPath := cfg.GetIndexPath()
	if err := os.MkdirAll(filepath.Dir(indexPath), 0755); err != nil {
		logger.Error("failed to create index directory", "err", err.Error(), "path", indexPath)
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	index, err := bleve.Open(indexPath)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		index, err = bleve.New(indexPath, createIndexMapping())
	}
	if err != nil {
		logger.Error("could not open index", "err", err.Error(), "path", indexPath)
		return nil, fmt.Errorf("could not open index: %w", err)
	}

	batchSize := cfg.GetBatchSize()
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	return &BleveDB{indexPath: indexPath, batchSize: batchSize, logger: logger, index: index}, nil
}

// BuildIndex adds or replaces documents, committing every batchSize
// documents.
func (b *BleveDB) BuildIndex(documents []Document) error {
	batch := b.index.NewBatch()

	for _, doc := range documents {
		if err := batch.Index(doc.ID, doc); err != nil {
			b.logger.Error("could not index document", "id", doc.ID, "err", err.Error())
			return fmt.Errorf("could not index document %s: %w", doc.ID, err)
		}

		if batch.Size() >= b.batchSize {
			if err := b.commit(batch); err != nil {
				return err
			}
			batch = b.index.NewBatch()
		}
	}

	return b.commit(batch)
}

func (b *BleveDB) DeleteDocuments(documentIDs []string) error {
	batch := b.index.NewBatch()

	for _, id := range documentIDs {
		batch.Delete(id)

		if batch.Size() >= b.batchSize {
			if err := b.commit(batch); err != nil {
				return err
			}
			batch = b.index.NewBatch()
		}
	}

	return b.commit(batch)
}

func (b *BleveDB) commit(batch *bleve.Batch) error {
	if batch.Size() == 0 {
		return nil
	}
	if err := b.index.Batch(batch); err != nil {
		b.logger.Error("could not commit index batch", "size", batch.Size(), "err", err.Error())
		return fmt.Errorf("could not commit index batch: %w", err)
	}
	return nil
}

func createIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Path and extension match exactly.
	pathFieldMapping := bleve.NewTextFieldMapping()
	pathFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt(indexFieldPath, pathFieldMapping)

	extFieldMapping := bleve.NewTextFieldMapping()
	extFieldMapping.Analyzer = keyword.Name
	docMapping.AddFieldMappingsAt(indexFieldExt, extFieldMapping)

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(indexFieldName, nameFieldMapping)

	// Content is indexed with term vectors for snippets but not stored.
	contentFieldMapping := bleve.NewTextFieldMapping()
	contentFieldMapping.Analyzer = standard.Name
	contentFieldMapping.Store = false
	contentFieldMapping.IncludeTermVectors = true
	docMapping.AddFieldMappingsAt(indexFieldContent, contentFieldMapping)

	docMapping.AddFieldMappingsAt(indexFieldSize, bleve.NewNumericFieldMapping())
	docMapping.AddFieldMappingsAt(indexFieldModTime, bleve.NewDateTimeFieldMapping())

	indexMapping.DefaultMapping = docMapping

	return indexMapping
}

func (b *BleveDB) Search(ctx context.Context, queryString string, limit int, offset int) (*Response, error) {
	start := time.Now()

	searchRequest := bleve.NewSearchRequestOptions(buildSearchQuery(queryString), limit, offset, false)
	searchRequest.Fields = []string{indexFieldPath, indexFieldName, indexFieldExt, indexFieldSize, indexFieldModTime}
	searchRequest.IncludeLocations = true

	searchResult, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		b.logger.Error("search failed", "query", queryString, "err", err.Error())
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, len(searchResult.Hits))
	for i, match := range searchResult.Hits {
		hit := Hit{
			ID:    match.ID,
			Score: match.Score,
		}

		if path, ok := match.Fields[indexFieldPath].(string); ok {
			hit.Path = path
		}
		if name, ok := match.Fields[indexFieldName].(string); ok {
			hit.Name = name
		}
		if ext, ok := match.Fields[indexFieldExt].(string); ok {
			hit.Ext = ext
		}
		if size, ok := match.Fields[indexFieldSize].(float64); ok {
			hit.Size = int64(size)
		}
		if modTime, ok := match.Fields[indexFieldModTime].(string); ok {
			hit.ModTime = modTime
		}

		hit.Snippet = b.extractSnippet(hit.Path, match.Locations)
		hit.Terms = matchedTerms(match.Locations)
		hits[i] = hit
	}

	return &Response{
		Hits:     hits,
		Total:    searchResult.Total,
		MaxScore: searchResult.MaxScore,
		Took:     time.Since(start),
	}, nil
}

func matchedTerms(locations search.FieldTermLocationMap) []string {
	var terms []string
	for _, termLocations := range locations {
		for term := range termLocations {
			if !slices.Contains(terms, term) {
				terms = append(terms, term)
			}
		}
	}
	slices.Sort(terms)
	return terms
}

func (b *BleveDB) GetDocCount() (uint64, error) {
	return b.index.DocCount()
}

func (b *BleveDB) Close() error {
	if b.index != nil {
		if err := b.index.Close(); err != nil {
			b.logger.Error("could not close search index", "err", err.Error())
			return err
		}
	}
	return nil
}
