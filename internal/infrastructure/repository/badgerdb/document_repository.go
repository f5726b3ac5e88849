package badgerdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/timshannon/badgerhold/v4"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

const maxConflictRetries = 5

// documentRecord is the persisted shape. Analysis is kept as JSON because gob cannot carry free-form details.
type documentRecord struct {
	ID               string
	Filename         string
	MimeType         string
	StoragePath      string
	FileSize         int64
	FileHash         string
	PageCount        *int
	Status           string
	Error            string
	ExtractedContent *string
	ContentHash      string
	AnalysisJSON     []byte
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DocumentRepository is an embedded single-node document store.
type DocumentRepository struct {
	store *badgerhold.Store
	now   func() time.Time
}

func Open(path string) (*DocumentRepository, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create badger directory: %w", err)
	}
	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return NewDocumentRepository(store), nil
}

func NewDocumentRepository(store *badgerhold.Store) *DocumentRepository {
	return &DocumentRepository{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (r *DocumentRepository) Close() error {
	return r.store.Close()
}

func (r *DocumentRepository) Create(_ context.Context, doc *domain.Document) error {
	rec, err := toRecord(doc)
	if err != nil {
		return err
	}
	if err := r.store.Insert(doc.ID, rec); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(_ context.Context, id string) (*domain.Document, error) {
	var rec documentRecord
	if err := r.store.Get(id, &rec); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return fromRecord(rec)
}

func (r *DocumentRepository) List(_ context.Context, limit int) ([]domain.Document, error) {
	query := badgerhold.Where("ID").Ne("").SortBy("CreatedAt", "ID").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	var recs []documentRecord
	if err := r.store.Find(&recs, query); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return fromRecords(recs)
}

// UpdateStatus runs read-validate-write in one Badger transaction. Conflicting writers
// abort with badger.ErrConflict and retry against the fresh state.
func (r *DocumentRepository) UpdateStatus(_ context.Context, id string, update domain.StatusUpdate) (*domain.Document, error) {
	var result *domain.Document
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		result, err = r.updateStatusOnce(id, update)
		if !errors.Is(err, badger.ErrConflict) {
			return result, err
		}
	}
	return nil, domain.WrapError(domain.ErrTemporary, "update document status", err)
}

func (r *DocumentRepository) updateStatusOnce(id string, update domain.StatusUpdate) (*domain.Document, error) {
	var result *domain.Document
	err := r.store.Badger().Update(func(tx *badger.Txn) error {
		var rec documentRecord
		if err := r.store.TxGet(tx, id, &rec); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.WrapError(domain.ErrDocumentNotFound, "update document status", fmt.Errorf("id=%s", id))
			}
			return fmt.Errorf("get document: %w", err)
		}
		doc, err := fromRecord(rec)
		if err != nil {
			return err
		}
		if err := domain.ValidateTransition(doc.Status, update.Status); err != nil {
			return err
		}
		update.Apply(doc, r.now())

		next, err := toRecord(doc)
		if err != nil {
			return err
		}
		if err := r.store.TxUpdate(tx, id, next); err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		result = doc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *DocumentRepository) SaveAnalysis(_ context.Context, id string, analysis domain.Analysis) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	return r.store.Badger().Update(func(tx *badger.Txn) error {
		var rec documentRecord
		if err := r.store.TxGet(tx, id, &rec); err != nil {
			if errors.Is(err, badgerhold.ErrNotFound) {
				return domain.WrapError(domain.ErrDocumentNotFound, "save analysis", fmt.Errorf("id=%s", id))
			}
			return fmt.Errorf("get document: %w", err)
		}
		rec.AnalysisJSON = payload
		if err := r.store.TxUpdate(tx, id, &rec); err != nil {
			return fmt.Errorf("save analysis: %w", err)
		}
		return nil
	})
}

func (r *DocumentRepository) FindByFileHash(_ context.Context, fileHash string) (*domain.Document, error) {
	var recs []documentRecord
	query := badgerhold.Where("FileHash").Eq(fileHash).
		And("Status").Ne(string(domain.StatusFailed)).
		SortBy("CreatedAt").Reverse().Limit(1)
	if err := r.store.Find(&recs, query); err != nil {
		return nil, fmt.Errorf("find document by file hash: %w", err)
	}
	if len(recs) == 0 {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "find document by file hash", errors.New(fileHash))
	}
	return fromRecord(recs[0])
}

func (r *DocumentRepository) ListStale(_ context.Context, statuses []domain.DocumentStatus, updatedBefore time.Time, limit int) ([]domain.Document, error) {
	if len(statuses) == 0 {
		return []domain.Document{}, nil
	}
	values := make([]interface{}, len(statuses))
	for i, status := range statuses {
		values[i] = string(status)
	}
	query := badgerhold.Where("Status").In(values...).
		And("UpdatedAt").Lt(updatedBefore).
		SortBy("UpdatedAt")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var recs []documentRecord
	if err := r.store.Find(&recs, query); err != nil {
		return nil, fmt.Errorf("list stale documents: %w", err)
	}
	return fromRecords(recs)
}

func toRecord(doc *domain.Document) (*documentRecord, error) {
	rec := &documentRecord{
		ID:               doc.ID,
		Filename:         doc.Filename,
		MimeType:         doc.MimeType,
		StoragePath:      doc.StoragePath,
		FileSize:         doc.FileSize,
		FileHash:         doc.FileHash,
		PageCount:        doc.PageCount,
		Status:           string(doc.Status),
		Error:            doc.Error,
		ExtractedContent: doc.ExtractedContent,
		ContentHash:      doc.ContentHash,
		CreatedAt:        doc.CreatedAt.UTC(),
		UpdatedAt:        doc.UpdatedAt.UTC(),
	}
	if doc.Analysis != nil {
		payload, err := json.Marshal(doc.Analysis)
		if err != nil {
			return nil, fmt.Errorf("marshal analysis: %w", err)
		}
		rec.AnalysisJSON = payload
	}
	return rec, nil
}

func fromRecord(rec documentRecord) (*domain.Document, error) {
	status, err := domain.ParseStatus(rec.Status)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", rec.ID, err)
	}
	doc := &domain.Document{
		ID:               rec.ID,
		Filename:         rec.Filename,
		MimeType:         rec.MimeType,
		StoragePath:      rec.StoragePath,
		FileSize:         rec.FileSize,
		FileHash:         rec.FileHash,
		PageCount:        rec.PageCount,
		Status:           status,
		Error:            rec.Error,
		ExtractedContent: rec.ExtractedContent,
		ContentHash:      rec.ContentHash,
		CreatedAt:        rec.CreatedAt,
		UpdatedAt:        rec.UpdatedAt,
	}
	if len(rec.AnalysisJSON) > 0 {
		var analysis domain.Analysis
		if err := json.Unmarshal(rec.AnalysisJSON, &analysis); err != nil {
			return nil, fmt.Errorf("unmarshal analysis: %w", err)
		}
		doc.Analysis = &analysis
	}
	return doc, nil
}

func fromRecords(recs []documentRecord) ([]domain.Document, error) {
	out := make([]domain.Document, 0, len(recs))
	for _, rec := range recs {
		doc, err := fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, nil
}
