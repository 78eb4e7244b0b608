// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/jobagent-cli/api/schemas"
)

// -- Store Mock --

// MockStore mocks the schemas.Store interface.
type MockStore struct {
	mock.Mock
}

var _ schemas.Store = (*MockStore)(nil)

func (m *MockStore) CreateApplicationRecord(ctx context.Context, app schemas.NewApplication) (int64, error) {
	args := m.Called(ctx, app)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStore) GetApplicationRecord(ctx context.Context, id int64) (*schemas.ApplicationRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.ApplicationRecord), args.Error(1)
}

func (m *MockStore) ListApplicationRecords(ctx context.Context) ([]schemas.ApplicationRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.ApplicationRecord), args.Error(1)
}

func (m *MockStore) UpdateNotes(ctx context.Context, id int64, notes string) (bool, error) {
	args := m.Called(ctx, id, notes)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) UpsertDiscoveredJob(ctx context.Context, job schemas.DiscoveredJob) error {
	return m.Called(ctx, job).Error(0)
}

func (m *MockStore) LogEvent(ctx context.Context, ev schemas.EventLog) error {
	return m.Called(ctx, ev).Error(0)
}

func (m *MockStore) Close() error {
	return m.Called().Error(0)
}

// -- Session Store Mock --

// MockSessionStore mocks the schemas.SessionStore interface.
type MockSessionStore struct {
	mock.Mock
}

var _ schemas.SessionStore = (*MockSessionStore)(nil)

func (m *MockSessionStore) Save(ctx context.Context, s schemas.Session) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockSessionStore) Load(ctx context.Context) (*schemas.Session, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Session), args.Error(1)
}

func (m *MockSessionStore) Clear(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Text Generator Mock --

// MockTextGenerator mocks the schemas.TextGenerator interface.
type MockTextGenerator struct {
	mock.Mock
}

var _ schemas.TextGenerator = (*MockTextGenerator)(nil)

func (m *MockTextGenerator) GenerateCoverLetter(ctx context.Context, jobDescription, company, title string, profile schemas.Profile) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, jobDescription, company, title, profile)
	return args.String(0), args.Error(1)
}

func (m *MockTextGenerator) TailorResume(ctx context.Context, jobDescription string, master map[string]any) (map[string]any, error) {
	args := m.Called(ctx, jobDescription, master)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

// -- In-memory Session Store --

// MemorySessionStore is a working SessionStore kept in memory.
type MemorySessionStore struct {
	mu      sync.Mutex
	session *schemas.Session
	Saves   int
}

func (m *MemorySessionStore) Save(ctx context.Context, s schemas.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	cp.Cookies = append([]schemas.Cookie(nil), s.Cookies...)
	m.session = &cp
	m.Saves++
	return nil
}

func (m *MemorySessionStore) Load(ctx context.Context) (*schemas.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || len(m.session.Cookies) == 0 {
		return nil, nil
	}
	cp := *m.session
	return &cp, nil
}

func (m *MemorySessionStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	return nil
}
