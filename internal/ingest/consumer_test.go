package ingest_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"corpora/internal/ingest"
	"corpora/internal/text"
)

func testConsumerConfig() ingest.ConsumerConfig {
	return ingest.ConsumerConfig{
		MaxAttempts:   3,
		RetryBase:     time.Millisecond,
		SoftTimeLimit: time.Minute,
		HardTimeLimit: 2 * time.Minute,
	}
}

func taskMessage(t *testing.T, attempts uint16) (*nsq.Message, *fakeDelegate) {
	t.Helper()
	body, err := json.Marshal(ingest.Task{
		DocumentID:   "doc-1",
		CollectionID: "col-1",
		ObjectKey:    "col-1/doc-1/report.pdf",
		Filename:     "report.pdf",
	})
	require.NoError(t, err)

	d := &fakeDelegate{}
	return &nsq.Message{Body: body, Attempts: attempts, Delegate: d}, d
}

func TestConsumer_HandleMessage_Success(t *testing.T) {
	store := new(MockObjectStore)
	ex := new(MockExtractor)
	cw := new(MockChunkWriter)
	em := new(MockEmbedder)
	idx := new(MockVectorIndex)
	st := new(MockStatusUpdater)
	ar := new(MockArchiver)

	store.On("Fetch", mock.Anything, mock.Anything).Return([]byte("%PDF"), nil)
	ex.On("Extract", mock.Anything, mock.Anything).Return("Some text here.", nil)
	cw.On("UpsertChunks", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	em.On("EmbedBatch", mock.Anything, mock.Anything).Return([][]float32{{0.1}}, nil)
	idx.On("EnsureCollection", mock.Anything, mock.Anything).Return(nil)
	idx.On("Upsert", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	st.On("UpdateStatus", mock.Anything, "doc-1", ingest.StatusProcessing).Return(nil)
	st.On("UpdateStatus", mock.Anything, "doc-1", ingest.StatusIndexed).Return(nil)

	o := ingest.NewOrchestrator(store, ex, text.Split, cw, em, idx, st, 512, 1)
	c := ingest.NewConsumer(o, st, ar, testConsumerConfig())

	msg, d := taskMessage(t, 1)
	require.NoError(t, c.HandleMessage(msg))

	assert.True(t, d.finished)
	assert.False(t, d.requeued)
	ar.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConsumer_HandleMessage_RetryBelowCeiling(t *testing.T) {
	store := new(MockObjectStore)
	st := new(MockStatusUpdater)
	ar := new(MockArchiver)

	store.On("Fetch", mock.Anything, mock.Anything).Return(nil, assertableErr("store unavailable"))
	st.On("UpdateStatus", mock.Anything, "doc-1", ingest.StatusProcessing).Return(nil)

	o := ingest.NewOrchestrator(store, new(MockExtractor), text.Split, new(MockChunkWriter), new(MockEmbedder), new(MockVectorIndex), st, 512, 1)
	c := ingest.NewConsumer(o, st, ar, testConsumerConfig())

	msg, d := taskMessage(t, 1)
	require.NoError(t, c.HandleMessage(msg))

	assert.True(t, d.requeued)
	assert.False(t, d.finished)
	st.AssertNotCalled(t, "UpdateStatus", mock.Anything, "doc-1", ingest.StatusFailed)
	ar.AssertNotCalled(t, "Archive", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestConsumer_HandleMessage_BackoffDelaysIncrease(t *testing.T) {
	store := new(MockObjectStore)
	st := new(MockStatusUpdater)

	store.On("Fetch", mock.Anything, mock.Anything).Return(nil, assertableErr("store unavailable"))
	st.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	cfg := testConsumerConfig()
	cfg.MaxAttempts = 5
	cfg.RetryBase = time.Second

	o := ingest.NewOrchestrator(store, new(MockExtractor), text.Split, new(MockChunkWriter), new(MockEmbedder), new(MockVectorIndex), st, 512, 1)
	c := ingest.NewConsumer(o, st, new(MockArchiver), cfg)

	var delays []time.Duration
	for attempt := uint16(1); attempt <= 3; attempt++ {
		msg, d := taskMessage(t, attempt)
		require.NoError(t, c.HandleMessage(msg))
		require.True(t, d.requeued)
		delays = append(delays, d.delay)
	}

	// Exponential schedule: each delay at least doubles the previous base.
	assert.GreaterOrEqual(t, delays[0], time.Second)
	assert.GreaterOrEqual(t, delays[1], 2*time.Second)
	assert.GreaterOrEqual(t, delays[2], 4*time.Second)
	assert.Greater(t, delays[1], delays[0])
	assert.Greater(t, delays[2], delays[1])
}

func TestConsumer_HandleMessage_CeilingMarksFailedAndArchives(t *testing.T) {
	store := new(MockObjectStore)
	st := new(MockStatusUpdater)
	ar := new(MockArchiver)

	store.On("Fetch", mock.Anything, mock.Anything).Return([]byte("%PDF"), nil)
	ex := new(MockExtractor)
	ex.On("Extract", mock.Anything, mock.Anything).Return("", ingest.ErrNoExtractableText)
	st.On("UpdateStatus", mock.Anything, "doc-1", ingest.StatusProcessing).Return(nil)
	st.On("UpdateStatus", mock.Anything, "doc-1", ingest.StatusFailed).Return(nil)
	ar.On("Archive", mock.Anything, "doc-1", mock.Anything, 3, mock.Anything).Return(nil)

	o := ingest.NewOrchestrator(store, ex, text.Split, new(MockChunkWriter), new(MockEmbedder), new(MockVectorIndex), st, 512, 1)
	c := ingest.NewConsumer(o, st, ar, testConsumerConfig())

	msg, d := taskMessage(t, 3)
	require.NoError(t, c.HandleMessage(msg))

	assert.True(t, d.finished, "exhausted jobs leave the queue")
	assert.False(t, d.requeued)
	st.AssertCalled(t, "UpdateStatus", mock.Anything, "doc-1", ingest.StatusFailed)
	ar.AssertExpectations(t)
}

func TestConsumer_HandleMessage_PoisonPill(t *testing.T) {
	o := ingest.NewOrchestrator(new(MockObjectStore), new(MockExtractor), text.Split, new(MockChunkWriter), new(MockEmbedder), new(MockVectorIndex), new(MockStatusUpdater), 512, 1)
	c := ingest.NewConsumer(o, new(MockStatusUpdater), new(MockArchiver), testConsumerConfig())

	d := &fakeDelegate{}
	msg := &nsq.Message{Body: []byte("not json"), Attempts: 1, Delegate: d}
	require.NoError(t, c.HandleMessage(msg))
	assert.True(t, d.finished)
	assert.False(t, d.requeued)
}

func TestConsumer_HandleMessage_MissingFieldsDropped(t *testing.T) {
	o := ingest.NewOrchestrator(new(MockObjectStore), new(MockExtractor), text.Split, new(MockChunkWriter), new(MockEmbedder), new(MockVectorIndex), new(MockStatusUpdater), 512, 1)
	c := ingest.NewConsumer(o, new(MockStatusUpdater), new(MockArchiver), testConsumerConfig())

	body, _ := json.Marshal(ingest.Task{DocumentID: "doc-1"})
	d := &fakeDelegate{}
	msg := &nsq.Message{Body: body, Attempts: 1, Delegate: d}
	require.NoError(t, c.HandleMessage(msg))
	assert.True(t, d.finished)
}

type recordingObserver struct {
	outcomes []string
}

func (r *recordingObserver) TaskCompleted(outcome string, d time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}

func TestConsumer_HandleMessage_ReportsOutcomes(t *testing.T) {
	store := new(MockObjectStore)
	st := new(MockStatusUpdater)

	store.On("Fetch", mock.Anything, mock.Anything).Return(nil, assertableErr("store unavailable"))
	st.On("UpdateStatus", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	obs := &recordingObserver{}
	cfg := testConsumerConfig()
	cfg.Metrics = obs

	o := ingest.NewOrchestrator(store, new(MockExtractor), text.Split, new(MockChunkWriter), new(MockEmbedder), new(MockVectorIndex), st, 512, 1)
	ar := new(MockArchiver)
	ar.On("Archive", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	c := ingest.NewConsumer(o, st, ar, cfg)

	msg, _ := taskMessage(t, 1)
	require.NoError(t, c.HandleMessage(msg))
	msg, _ = taskMessage(t, 3)
	require.NoError(t, c.HandleMessage(msg))

	assert.Equal(t, []string{"requeued", "failed"}, obs.outcomes)
}

type assertableErr string

func (e assertableErr) Error() string { return string(e) }
