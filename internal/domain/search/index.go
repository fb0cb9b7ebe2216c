// Package search provides full-text search over a statement's transactions
// and fuzzy counterparty lookup.
package search

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/simple"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

const defaultLimit = 20

// Document is the indexed form of one transaction.
type Document struct {
	Row          int     `json:"row"`
	ReceiptNo    string  `json:"receipt_no"`
	Details      string  `json:"details"`
	Counterparty string  `json:"counterparty"`
	Number       string  `json:"number"`
	Type         string  `json:"type"`
	Amount       float64 `json:"amount"`
}

// Hit is a search result with its relevance score.
type Hit struct {
	Document
	Score float64 `json:"score"`
}

// Index is an in-memory bleve index over one statement.
type Index struct {
	index bleve.Index
	mu    sync.RWMutex
}

// NewIndex indexes txs. Document ids are row positions, since receipt
// numbers are not guaranteed unique across merged pages.
func NewIndex(txs []statement.Transaction) (*Index, error) {
	idx, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	batch := idx.NewBatch()
	for i, tx := range txs {
		doc := toDocument(i, tx)
		if err := batch.Index(strconv.Itoa(i), doc); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("failed to index row %d: %w", i, err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("failed to execute batch index: %w", err)
	}

	return &Index{index: idx}, nil
}

func toDocument(row int, tx statement.Transaction) Document {
	doc := Document{
		Row:          row,
		ReceiptNo:    tx.ReceiptNo,
		Details:      tx.Details,
		Counterparty: tx.CounterpartyName,
		Type:         tx.TransactionType,
	}
	if tx.CounterpartyNumber != nil {
		doc.Number = *tx.CounterpartyNumber
	}
	doc.Amount, _ = tx.AmountOrZero().Float64()
	return doc
}

func buildIndexMapping() mapping.IndexMapping {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = simple.Name

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name

	numericFieldMapping := bleve.NewNumericFieldMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("details", textFieldMapping)
	docMapping.AddFieldMappingsAt("counterparty", nameFieldMapping)
	docMapping.AddFieldMappingsAt("receipt_no", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("number", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("type", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("amount", numericFieldMapping)
	docMapping.AddFieldMappingsAt("row", numericFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// Search runs a match query with one edit of typo tolerance.
func (i *Index) Search(text string, limit int) ([]Hit, error) {
	q := bleve.NewMatchQuery(text)
	q.SetFuzziness(1)
	return i.run(q, limit)
}

// SearchPrefix finds documents with a term starting with prefix.
func (i *Index) SearchPrefix(prefix string, limit int) ([]Hit, error) {
	return i.run(bleve.NewPrefixQuery(prefix), limit)
}

// SearchType returns rows with exactly the given transaction type.
func (i *Index) SearchType(txType string, limit int) ([]Hit, error) {
	q := bleve.NewTermQuery(txType)
	q.SetField("type")
	return i.run(q, limit)
}

func (i *Index) run(q query.Query, limit int) ([]Hit, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if limit <= 0 {
		limit = defaultLimit
	}

	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"*"}

	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return convertResults(res), nil
}

func convertResults(res *bleve.SearchResult) []Hit {
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{Score: h.Score}
		if row, err := strconv.Atoi(h.ID); err == nil {
			hit.Row = row
		}
		if v, ok := h.Fields["receipt_no"].(string); ok {
			hit.ReceiptNo = v
		}
		if v, ok := h.Fields["details"].(string); ok {
			hit.Details = v
		}
		if v, ok := h.Fields["counterparty"].(string); ok {
			hit.Counterparty = v
		}
		if v, ok := h.Fields["number"].(string); ok {
			hit.Number = v
		}
		if v, ok := h.Fields["type"].(string); ok {
			hit.Type = v
		}
		if v, ok := h.Fields["amount"].(float64); ok {
			hit.Amount = v
		}
		hits = append(hits, hit)
	}
	return hits
}

// DocumentCount returns the number of indexed rows.
func (i *Index) DocumentCount() (uint64, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.index.DocCount()
}

// Close releases the index.
func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.index != nil {
		return i.index.Close()
	}
	return nil
}
