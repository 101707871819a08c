package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store persists ingests and their rows. The database package provides the
// PostgreSQL implementation; MemoryStore backs tests and storage-free runs.
type Store interface {
	// CreateIngest records a new ingest before any rows arrive.
	CreateIngest(ctx context.Context, id uuid.UUID, datasetKey, fileName string, startedAt time.Time) error
	// AppendRows persists a batch of accepted rows.
	AppendRows(ctx context.Context, id uuid.UUID, rows []StoredRow) error
	// AppendFailedRows persists a batch of validation-rejected rows.
	AppendFailedRows(ctx context.Context, id uuid.UUID, rows []FailedRow) error
	// CompleteIngest records the final outcome.
	CompleteIngest(ctx context.Context, result IngestResult) error
	// GetIngest returns the recorded outcome of a finished ingest.
	GetIngest(ctx context.Context, id uuid.UUID) (IngestResult, error)
	// ListIngests returns recorded outcomes, most recent first.
	ListIngests(ctx context.Context, limit int) ([]IngestResult, error)
	// FailedRows returns every rejected row of an ingest in line order.
	FailedRows(ctx context.Context, id uuid.UUID) ([]FailedRow, error)
}

// ErrIngestNotFound is returned for lookups of unknown ingest IDs.
var ErrIngestNotFound = fmt.Errorf("ingest not found")

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu      sync.Mutex
	order   []uuid.UUID
	results map[uuid.UUID]IngestResult
	rows    map[uuid.UUID][]StoredRow
	failed  map[uuid.UUID][]FailedRow
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[uuid.UUID]IngestResult),
		rows:    make(map[uuid.UUID][]StoredRow),
		failed:  make(map[uuid.UUID][]FailedRow),
	}
}

func (m *MemoryStore) CreateIngest(_ context.Context, id uuid.UUID, datasetKey, fileName string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.order = append(m.order, id)
	m.results[id] = IngestResult{ID: id, DatasetKey: datasetKey, FileName: fileName}
	return nil
}

func (m *MemoryStore) AppendRows(_ context.Context, id uuid.UUID, rows []StoredRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rows[id] = append(m.rows[id], rows...)
	return nil
}

func (m *MemoryStore) AppendFailedRows(_ context.Context, id uuid.UUID, rows []FailedRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failed[id] = append(m.failed[id], rows...)
	return nil
}

func (m *MemoryStore) CompleteIngest(_ context.Context, result IngestResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.results[result.ID] = result
	return nil
}

func (m *MemoryStore) GetIngest(_ context.Context, id uuid.UUID) (IngestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result, ok := m.results[id]
	if !ok {
		return IngestResult{}, ErrIngestNotFound
	}
	return result, nil
}

func (m *MemoryStore) ListIngests(_ context.Context, limit int) ([]IngestResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]IngestResult, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if limit > 0 && len(results) >= limit {
			break
		}
		results = append(results, m.results[m.order[i]])
	}
	return results, nil
}

func (m *MemoryStore) FailedRows(_ context.Context, id uuid.UUID) ([]FailedRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.results[id]; !ok {
		return nil, ErrIngestNotFound
	}
	return append([]FailedRow(nil), m.failed[id]...), nil
}

// Rows returns the accepted rows stored for an ingest. Test helper.
func (m *MemoryStore) Rows(id uuid.UUID) []StoredRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]StoredRow(nil), m.rows[id]...)
}
