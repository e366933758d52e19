package transfer

import (
	"sync"
	"testing"
	"time"

	"github.com/vertextoedge/safe-downloader/internal/domain"
	"github.com/vertextoedge/safe-downloader/internal/domain/event"
	"go.uber.org/zap"
)

// mockTransferRepo is a mock implementation of port.TransferRepository
type mockTransferRepo struct {
	mu             sync.Mutex
	records        map[string]*domain.TransferRecord
	progressWrites int
	createErr      error
}

func newMockTransferRepo() *mockTransferRepo {
	return &mockTransferRepo{records: make(map[string]*domain.TransferRecord)}
}

func (m *mockTransferRepo) CreateTransfer(record *domain.TransferRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.records[record.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *record
	m.records[record.ID] = &cp
	return nil
}

func (m *mockTransferRepo) GetTransfer(id string) (*domain.TransferRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *mockTransferRepo) UpdateProgress(id string, state domain.State, received, total int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.progressWrites++
	rec.State = state
	rec.BytesReceived = received
	rec.BytesTotal = total
	return nil
}

func (m *mockTransferRepo) FinishTransfer(record *domain.TransferRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *record
	m.records[record.ID] = &cp
	return nil
}

func (m *mockTransferRepo) ListTransfers(limit int) ([]*domain.TransferRecord, error) {
	return nil, nil
}

func (m *mockTransferRepo) ListOutstanding() ([]*domain.TransferRecord, error) {
	return nil, nil
}

func (m *mockTransferRepo) CleanupOldTransfers(olderThan time.Duration) (int, error) {
	return 0, nil
}

func (m *mockTransferRepo) GetHistoryStats() (*domain.HistoryStats, error) {
	return &domain.HistoryStats{}, nil
}

func (m *mockTransferRepo) Ping() error  { return nil }
func (m *mockTransferRepo) Close() error { return nil }

func (m *mockTransferRepo) get(t *testing.T, id string) *domain.TransferRecord {
	t.Helper()
	rec, err := m.GetTransfer(id)
	if err != nil {
		t.Fatalf("GetTransfer(%s) error = %v", id, err)
	}
	return rec
}

func TestRecorder_Lifecycle(t *testing.T) {
	tests := []struct {
		name      string
		terminal  event.DomainEvent
		wantState domain.State
		wantError string
	}{
		{
			name:      "completed",
			terminal:  event.NewTransferCompleted("t1", "/dl/a", 100, "text/plain", time.Second),
			wantState: domain.StateCompleted,
		},
		{
			name:      "cancelled",
			terminal:  event.NewTransferCancelled("t1", 60),
			wantState: domain.StateCancelled,
		},
		{
			name:      "failed",
			terminal:  event.NewTransferFailed("t1", 60, "read: connection reset", false),
			wantState: domain.StateFailed,
			wantError: "read: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockTransferRepo()
			r := NewRecorder(repo, zap.NewNop(), time.Hour)
			d := event.NewInMemoryDispatcher(false)
			d.Subscribe(r)

			d.Dispatch(event.NewTransferStarted("t1", "https://example.com/a", "/dl/a", "/dl/.a.1.downloading"))
			if got := repo.get(t, "t1").State; got != domain.StateOpening {
				t.Errorf("state after start = %v, want opening", got)
			}

			d.Dispatch(event.NewTransferProgressed("t1", 30, 100))
			d.Dispatch(event.NewTransferProgressed("t1", 60, 100))
			d.Dispatch(tt.terminal)

			rec := repo.get(t, "t1")
			if rec.State != tt.wantState {
				t.Errorf("State = %v, want %v", rec.State, tt.wantState)
			}
			if rec.LastError != tt.wantError {
				t.Errorf("LastError = %q, want %q", rec.LastError, tt.wantError)
			}
			if rec.FinishedAt == nil {
				t.Error("FinishedAt should be set")
			}
			if rec.BytesTotal != 100 {
				t.Errorf("BytesTotal = %d, want 100", rec.BytesTotal)
			}
		})
	}
}

func TestRecorder_ThrottlesProgress(t *testing.T) {
	repo := newMockTransferRepo()
	r := NewRecorder(repo, zap.NewNop(), time.Hour)

	r.Handle(event.NewTransferStarted("t1", "https://example.com/a", "/dl/a", ""))
	for i := int64(1); i <= 100; i++ {
		r.Handle(event.NewTransferProgressed("t1", i*10, 1000))
	}

	if repo.progressWrites != 1 {
		t.Errorf("progress writes = %d, want 1", repo.progressWrites)
	}

	r.Handle(event.NewTransferCompleted("t1", "/dl/a", 1000, "", 0))
	if got := repo.get(t, "t1").BytesReceived; got != 1000 {
		t.Errorf("BytesReceived = %d, want 1000", got)
	}
	if r.progress.Len() != 0 {
		t.Error("limiter state should be dropped after the terminal event")
	}
}

func TestRecorder_UnknownTransferLoadsFromRepository(t *testing.T) {
	repo := newMockTransferRepo()
	repo.CreateTransfer(&domain.TransferRecord{ID: "old", State: domain.StateActive, BytesTotal: 10})

	r := NewRecorder(repo, zap.NewNop(), 0)
	r.Handle(event.NewTransferFailed("old", 5, "boom", false))

	rec := repo.get(t, "old")
	if rec.State != domain.StateFailed || rec.LastError != "boom" {
		t.Errorf("got state=%v error=%q, want failed boom", rec.State, rec.LastError)
	}

	// Nothing to load: logged and ignored
	if err := r.Handle(event.NewTransferCancelled("ghost", 0)); err != nil {
		t.Errorf("Handle() error = %v", err)
	}
}

func TestRecorder_WithController(t *testing.T) {
	repo := newMockTransferRepo()
	ft := newFakeTransport(20, 2)
	env := newTestEnv(t, ft, Config{})
	env.dispatcher.Subscribe(NewRecorder(repo, zap.NewNop(), time.Millisecond))

	ft.send(10, 10)
	close(ft.chunks)
	id := env.start(t, env.request(t, "journal.bin"))
	env.wait(t)

	rec := repo.get(t, id)
	if rec.State != domain.StateCompleted {
		t.Errorf("State = %v, want completed", rec.State)
	}
	if rec.BytesReceived != 20 {
		t.Errorf("BytesReceived = %d, want 20", rec.BytesReceived)
	}
	if rec.URL != "https://example.com/files/journal.bin" {
		t.Errorf("URL = %q", rec.URL)
	}
}
