package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/doc-chat-service/internal/core/domain"
)

// memRepo is an in-memory DocumentRepository that enforces the lifecycle like the real stores.
type memRepo struct {
	mu             sync.Mutex
	docs           map[string]*domain.Document
	statusCalls    []domain.DocumentStatus
	completeWrites int
	createErr      error
	updateErr      error
	findHashErr    error
}

func newMemRepo(docs ...*domain.Document) *memRepo {
	repo := &memRepo{docs: map[string]*domain.Document{}}
	for _, doc := range docs {
		copyDoc := *doc
		repo.docs[doc.ID] = &copyDoc
	}
	return repo
}

func (r *memRepo) Create(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	copyDoc := *doc
	r.docs[doc.ID] = &copyDoc
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New(id))
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (r *memRepo) List(_ context.Context, limit int) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		out = append(out, *doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) UpdateStatus(_ context.Context, id string, update domain.StatusUpdate) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return nil, r.updateErr
	}
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "update status", errors.New(id))
	}
	if err := domain.ValidateTransition(doc.Status, update.Status); err != nil {
		return nil, err
	}
	update.Apply(doc, time.Now().UTC())
	r.statusCalls = append(r.statusCalls, update.Status)
	if update.Status == domain.StatusCompleted {
		r.completeWrites++
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (r *memRepo) SaveAnalysis(_ context.Context, id string, analysis domain.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "save analysis", errors.New(id))
	}
	doc.Analysis = &analysis
	return nil
}

func (r *memRepo) FindByFileHash(_ context.Context, hash string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findHashErr != nil {
		return nil, r.findHashErr
	}
	for _, doc := range r.docs {
		if doc.FileHash == hash && doc.Status != domain.StatusFailed {
			copyDoc := *doc
			return &copyDoc, nil
		}
	}
	return nil, domain.WrapError(domain.ErrDocumentNotFound, "find by hash", errors.New(hash))
}

func (r *memRepo) ListStale(_ context.Context, statuses []domain.DocumentStatus, before time.Time, limit int) ([]domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Document{}
	for _, doc := range r.docs {
		for _, status := range statuses {
			if doc.Status == status && doc.UpdatedAt.Before(before) {
				out = append(out, *doc)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) setUpdatedAt(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[id].UpdatedAt = at
}

type storageFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	saveErr error
}

func newStorageFake() *storageFake {
	return &storageFake{objects: map[string][]byte{}}
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = raw
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

type queueFake struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (f *queueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *queueFake) SubscribeDocumentIngested(context.Context, func(context.Context, string) error) error {
	return errors.New("not implemented")
}

// lockFake maps document ids to the token of the current holder.
type lockFake struct {
	mu     sync.Mutex
	held   map[string]string
	seq    int
	err    error
	always bool
}

func newLockFake() *lockFake {
	return &lockFake{held: map[string]string{}}
}

func (f *lockFake) Acquire(_ context.Context, id string, _ time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", false, f.err
	}
	if f.always || f.held[id] != "" {
		return "", false, nil
	}
	f.seq++
	token := fmt.Sprintf("token-%d", f.seq)
	f.held[id] = token
	return token, true, nil
}

func (f *lockFake) Release(_ context.Context, id, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[id] == token {
		delete(f.held, id)
	}
	return nil
}

func (f *lockFake) IsLocked(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.always || f.held[id] != "", f.err
}

type extractorFake struct {
	text    string
	pages   *int
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *extractorFake) Extract(ctx context.Context, _ *domain.Document, _ []byte) (domain.Extraction, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return domain.Extraction{}, ctx.Err()
		}
	}
	if f.err != nil {
		return domain.Extraction{}, f.err
	}
	return domain.Extraction{Text: f.text, PageCount: f.pages}, nil
}

type modelFake struct {
	mu      sync.Mutex
	answer  string
	err     error
	block   bool
	prompts []domain.Prompt
}

func (f *modelFake) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *modelFake) lastPrompt() domain.Prompt {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return domain.Prompt{}
	}
	return f.prompts[len(f.prompts)-1]
}

type chunkerFake struct{}

func (chunkerFake) Split(text string) []string {
	if text == "" {
		return nil
	}
	return []string{text}
}

func strPtr(s string) *string { return &s }
