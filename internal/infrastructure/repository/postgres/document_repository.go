package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

const documentColumns = `id, filename, mime_type, storage_path, file_size, file_hash, page_count, status,
	error_message, extracted_content, content_hash, analysis, created_at, updated_at`

type DocumentRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026021001)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	file_size BIGINT NOT NULL DEFAULT 0,
	file_hash TEXT NOT NULL DEFAULT '',
	page_count INTEGER,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	extracted_content TEXT,
	content_hash TEXT NOT NULL DEFAULT '',
	analysis JSONB,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status_updated_at ON documents(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_documents_file_hash ON documents(file_hash);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, filename, mime_type, storage_path, file_size, file_hash, status, error_message, content_hash, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		doc.ID, doc.Filename, doc.MimeType, doc.StoragePath, doc.FileSize, doc.FileHash,
		string(doc.Status), doc.Error, doc.ContentHash, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) List(ctx context.Context, limit int) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents
ORDER BY created_at DESC, id DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	return collectDocuments(rows)
}

// UpdateStatus validates and applies the transition under a row lock so concurrent writers serialize.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, update domain.StatusUpdate) (*domain.Document, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin status tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "update document status", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("lock document row: %w", err)
	}

	if err := domain.ValidateTransition(doc.Status, update.Status); err != nil {
		return nil, err
	}
	update.Apply(doc, r.now())

	if _, err := tx.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, extracted_content = $4, content_hash = $5, page_count = $6, updated_at = $7
WHERE id = $1
`, id, string(doc.Status), doc.Error, nullableString(doc.ExtractedContent), doc.ContentHash, nullableInt(doc.PageCount), doc.UpdatedAt); err != nil {
		return nil, fmt.Errorf("update document status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit status tx: %w", err)
	}
	return doc, nil
}

// SaveAnalysis leaves updated_at alone: it tracks status progress, which the sweeper measures.
func (r *DocumentRepository) SaveAnalysis(ctx context.Context, id string, analysis domain.Analysis) error {
	payload, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET analysis = $2
WHERE id = $1
`, id, payload)
	if err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save analysis rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "save analysis", fmt.Errorf("id=%s", id))
	}
	return nil
}

// FindByFileHash returns the newest non-failed document with the given content hash.
func (r *DocumentRepository) FindByFileHash(ctx context.Context, fileHash string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents
WHERE file_hash = $1 AND status <> $2
ORDER BY created_at DESC
LIMIT 1`, fileHash, string(domain.StatusFailed))
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "find document by file hash", errors.New(fileHash))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) ListStale(ctx context.Context, statuses []domain.DocumentStatus, updatedBefore time.Time, limit int) ([]domain.Document, error) {
	if len(statuses) == 0 {
		return []domain.Document{}, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+2)
	for i, status := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args = append(args, string(status))
	}
	args = append(args, updatedBefore, limit)

	query := fmt.Sprintf(`SELECT %s FROM documents
WHERE status IN (%s) AND updated_at < $%d
ORDER BY updated_at ASC
LIMIT $%d`, documentColumns, strings.Join(placeholders, ","), len(statuses)+1, len(statuses)+2)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stale documents: %w", err)
	}
	return collectDocuments(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc         domain.Document
		status      string
		pageCount   sql.NullInt64
		content     sql.NullString
		analysisRaw []byte
	)
	if err := row.Scan(
		&doc.ID, &doc.Filename, &doc.MimeType, &doc.StoragePath, &doc.FileSize, &doc.FileHash, &pageCount, &status,
		&doc.Error, &content, &doc.ContentHash, &analysisRaw, &doc.CreatedAt, &doc.UpdatedAt,
	); err != nil {
		return nil, err
	}

	parsed, err := domain.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	doc.Status = parsed

	if pageCount.Valid {
		n := int(pageCount.Int64)
		doc.PageCount = &n
	}
	if content.Valid {
		text := content.String
		doc.ExtractedContent = &text
	}
	if len(analysisRaw) > 0 {
		var analysis domain.Analysis
		if err := json.Unmarshal(analysisRaw, &analysis); err != nil {
			return nil, fmt.Errorf("unmarshal analysis: %w", err)
		}
		doc.Analysis = &analysis
	}
	return &doc, nil
}

func collectDocuments(rows *sql.Rows) ([]domain.Document, error) {
	defer rows.Close()
	out := make([]domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(n *int) any {
	if n == nil {
		return nil
	}
	return int64(*n)
}
