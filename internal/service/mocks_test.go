package service

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/docuforge/docuforge/internal/domain"
	"github.com/docuforge/docuforge/internal/pagination"
)

// MockAssetRepository is a mock implementation of the asset persistence surfaces
type MockAssetRepository struct {
	mock.Mock
}

func (m *MockAssetRepository) Insert(ctx context.Context, a *domain.KnowledgeAsset) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAssetRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeAsset, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeAsset), args.Error(1)
}

func (m *MockAssetRepository) GetByContentHash(ctx context.Context, tenantID string, env domain.Environment, contentHash string) (*domain.KnowledgeAsset, error) {
	args := m.Called(ctx, tenantID, env, contentHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeAsset), args.Error(1)
}

func (m *MockAssetRepository) SetBlobRef(ctx context.Context, id, blobRef string) error {
	args := m.Called(ctx, id, blobRef)
	return args.Error(0)
}

func (m *MockAssetRepository) SetError(ctx context.Context, id, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

func (m *MockAssetRepository) TransitionStatus(ctx context.Context, id string, to domain.IngestionStatus, reason, errMsg string) error {
	args := m.Called(ctx, id, to, reason, errMsg)
	return args.Error(0)
}

func (m *MockAssetRepository) SetNextReviewDate(ctx context.Context, id string, next time.Time) error {
	args := m.Called(ctx, id, next)
	return args.Error(0)
}

func (m *MockAssetRepository) ListReviewDue(ctx context.Context, now time.Time, limit int) ([]*domain.KnowledgeAsset, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeAsset), args.Error(1)
}

func (m *MockAssetRepository) MarkReviewStatus(ctx context.Context, id string, status domain.ReviewStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockAssetRepository) CountStaleInFlight(ctx context.Context, olderThan time.Time) (int64, error) {
	args := m.Called(ctx, olderThan)
	return args.Get(0).(int64), args.Error(1)
}

// MockContentAddresser is a mock implementation of ContentAddresser
type MockContentAddresser struct {
	mock.Mock
}

func (m *MockContentAddresser) Resolve(r io.Reader) (string, int64, []byte, error) {
	args := m.Called(r)
	var data []byte
	if args.Get(2) != nil {
		data = args.Get(2).([]byte)
	}
	return args.String(0), args.Get(1).(int64), data, args.Error(3)
}

func (m *MockContentAddresser) Acquire(ctx context.Context, contentHash string, data []byte) (string, error) {
	args := m.Called(ctx, contentHash, data)
	return args.String(0), args.Error(1)
}

// MockJobRepository is a mock implementation of JobRepositoryInterface
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.IngestJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id string) (*domain.IngestJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IngestJob), args.Error(1)
}

func (m *MockJobRepository) ClaimRunnable(ctx context.Context, jobType domain.JobType, limit int) ([]*domain.IngestJob, error) {
	args := m.Called(ctx, jobType, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.IngestJob), args.Error(1)
}

func (m *MockJobRepository) MarkCompleted(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJobRepository) MarkFailed(ctx context.Context, id, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

func (m *MockJobRepository) Reschedule(ctx context.Context, id string, next time.Time, errMsg string) error {
	args := m.Called(ctx, id, next, errMsg)
	return args.Error(0)
}

func (m *MockJobRepository) Reset(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJobRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockJobRepository) List(ctx context.Context, jobType domain.JobType, states []domain.JobStatus, limit int, cursor *pagination.Cursor) ([]*domain.IngestJob, error) {
	args := m.Called(ctx, jobType, states, limit, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.IngestJob), args.Error(1)
}

func (m *MockJobRepository) PruneHistory(ctx context.Context, keep int) (int64, error) {
	args := m.Called(ctx, keep)
	return args.Get(0).(int64), args.Error(1)
}

// MockBlobRepository is a mock implementation of BlobRepositoryInterface
type MockBlobRepository struct {
	mock.Mock
}

func (m *MockBlobRepository) AcquireRef(ctx context.Context, contentHash, locationRef string, sizeBytes int64) (int64, bool, string, error) {
	args := m.Called(ctx, contentHash, locationRef, sizeBytes)
	return args.Get(0).(int64), args.Bool(1), args.String(2), args.Error(3)
}

func (m *MockBlobRepository) ReleaseRef(ctx context.Context, contentHash string) (int64, string, error) {
	args := m.Called(ctx, contentHash)
	return args.Get(0).(int64), args.String(1), args.Error(2)
}

func (m *MockBlobRepository) DeleteIfUnreferenced(ctx context.Context, contentHash string) (bool, error) {
	args := m.Called(ctx, contentHash)
	return args.Bool(0), args.Error(1)
}

// MockBlobStorage is a mock implementation of BlobStorage
type MockBlobStorage struct {
	mock.Mock
}

func (m *MockBlobStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, key, body, size, contentType)
	return args.Error(0)
}

func (m *MockBlobStorage) Download(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockBlobStorage) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockChunkRepository is a mock implementation of ChunkRepositoryInterface
type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) UpsertChunks(ctx context.Context, chunks []domain.DocumentChunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

// MockExtractor is a mock implementation of TextExtractor
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) ExtractText(ctx context.Context, data []byte) (string, error) {
	args := m.Called(ctx, data)
	return args.String(0), args.Error(1)
}

// MockMasker is a mock implementation of PIIMasker
type MockMasker struct {
	mock.Mock
}

func (m *MockMasker) DetectAndMask(ctx context.Context, text string) (*MaskResult, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MaskResult), args.Error(1)
}

// MockEmbedder is a mock implementation of EmbeddingClient
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockAuditor is a mock implementation of LifecycleAuditor
type MockAuditor struct {
	mock.Mock
}

func (m *MockAuditor) Record(ctx context.Context, rec *domain.TransitionRecord) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

// memoryProgressRepo is an in-memory ProgressEventRepository for tests
type memoryProgressRepo struct {
	mu     sync.Mutex
	nextID int64
	events []*domain.ProgressEvent
	failOn domain.ProgressEventType
}

func (r *memoryProgressRepo) Append(ctx context.Context, correlationID string, eventType domain.ProgressEventType, payload json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn != "" && eventType == r.failOn {
		return domain.NewDomainError(domain.ErrCodeTransientInfra, "append failed")
	}
	r.nextID++
	r.events = append(r.events, &domain.ProgressEvent{
		ID:            r.nextID,
		CorrelationID: correlationID,
		Type:          eventType,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	})
	return nil
}

func (r *memoryProgressRepo) ListSince(ctx context.Context, correlationID string, afterID int64) ([]*domain.ProgressEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ProgressEvent
	for _, ev := range r.events {
		if ev.CorrelationID == correlationID && ev.ID > afterID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// stubTxRunner executes the tx function against plain mocks
type stubTxRunner struct {
	assets *MockAssetRepository
	jobs   *MockJobRepository
	err    error
}

func (r *stubTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	if r.err != nil {
		return r.err
	}
	return fn(&stubTxRepos{assets: r.assets, jobs: r.jobs})
}

type stubTxRepos struct {
	assets *MockAssetRepository
	jobs   *MockJobRepository
}

func (r *stubTxRepos) Assets() AssetRepositoryInterface { return r.assets }
func (r *stubTxRepos) Jobs() JobRepositoryInterface     { return r.jobs }

// MockUUIDGenerator returns a fixed sequence of ids
type MockUUIDGenerator struct {
	uuids []string
	index int
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	if m.index >= len(m.uuids) {
		return "default-uuid"
	}
	id := m.uuids[m.index]
	m.index++
	return id
}
