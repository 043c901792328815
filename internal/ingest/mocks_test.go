package ingest_test

import (
	"context"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/mock"

	"corpora/internal/ingest"
)

// Mocks

type MockObjectStore struct{ mock.Mock }

func (m *MockObjectStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockExtractor struct{ mock.Mock }

func (m *MockExtractor) Extract(filename string, data []byte) (string, error) {
	args := m.Called(filename, data)
	return args.String(0), args.Error(1)
}

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockVectorIndex struct{ mock.Mock }

func (m *MockVectorIndex) EnsureCollection(ctx context.Context, collectionID string) error {
	args := m.Called(ctx, collectionID)
	return args.Error(0)
}

func (m *MockVectorIndex) Upsert(ctx context.Context, collectionID string, entries []ingest.IndexEntry) error {
	args := m.Called(ctx, collectionID, entries)
	return args.Error(0)
}

type MockStatusUpdater struct{ mock.Mock }

func (m *MockStatusUpdater) UpdateStatus(ctx context.Context, id, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

type MockChunkWriter struct{ mock.Mock }

func (m *MockChunkWriter) UpsertChunks(ctx context.Context, documentID string, chunks []ingest.ChunkRecord) error {
	args := m.Called(ctx, documentID, chunks)
	return args.Error(0)
}

type MockArchiver struct{ mock.Mock }

func (m *MockArchiver) Archive(ctx context.Context, documentID string, payload []byte, attempts int, cause string) error {
	args := m.Called(ctx, documentID, payload, attempts, cause)
	return args.Error(0)
}

// fakeDelegate captures the queue response so tests can assert on
// finish/requeue decisions without a running nsqd.
type fakeDelegate struct {
	finished bool
	requeued bool
	delay    time.Duration
}

func (d *fakeDelegate) OnFinish(m *nsq.Message)                                  { d.finished = true }
func (d *fakeDelegate) OnTouch(m *nsq.Message)                                   {}
func (d *fakeDelegate) OnRequeue(m *nsq.Message, delay time.Duration, _ bool) {
	d.requeued = true
	d.delay = delay
}
