package document

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"corpora/internal/config"
	"corpora/internal/ingest"
	"corpora/internal/middleware"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusIndexed    = "indexed"
	StatusFailed     = "failed"
)

type Document struct {
	ID           string    `json:"id"`
	CollectionID string    `json:"collection_id"`
	Filename     string    `json:"filename"`
	ObjectKey    string    `json:"-"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// legalTransitions captures the document lifecycle. Terminal states re-enter
// the lifecycle only through pending, which requires an explicit re-trigger.
var legalTransitions = map[string][]string{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusIndexed, StatusFailed},
	StatusIndexed:    {StatusPending},
	StatusFailed:     {StatusPending},
}

func ValidTransition(from, to string) bool {
	if from == to {
		return true
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Repository interface {
	Save(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	List(ctx context.Context, collectionID string) ([]Document, error)
	UpdateStatus(ctx context.Context, id, status string) error
	Count(ctx context.Context) (int, error)
	UpsertChunks(ctx context.Context, documentID string, chunks []ingest.ChunkRecord) error
	GetChunks(ctx context.Context, documentID string) ([]Chunk, error)
	CountChunks(ctx context.Context) (int, error)
}

type Chunk struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
	Offset int    `json:"offset"`
}

type Presigner interface {
	PresignUpload(ctx context.Context, objectKey string) (string, error)
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

type Service struct {
	repo    Repository
	presign Presigner
	pub     EventPublisher
}

func NewService(repo Repository, presign Presigner, pub EventPublisher) *Service {
	return &Service{repo: repo, presign: presign, pub: pub}
}

// Register creates a pending document record and hands back a presigned URL
// the client uploads the raw file to. Ingestion does not start until
// TriggerIngest is called for the document.
func (s *Service) Register(ctx context.Context, collectionID, filename string) (*Document, string, error) {
	doc := &Document{
		ID:           uuid.New().String(),
		CollectionID: collectionID,
		Filename:     filename,
		Status:       StatusPending,
	}
	doc.ObjectKey = fmt.Sprintf("%s/%s/%s", collectionID, doc.ID, filename)

	if err := s.repo.Save(ctx, doc); err != nil {
		return nil, "", err
	}

	uploadURL, err := s.presign.PresignUpload(ctx, doc.ObjectKey)
	if err != nil {
		return nil, "", fmt.Errorf("presign upload: %w", err)
	}

	return doc, uploadURL, nil
}

// TriggerIngest publishes an ingestion task for the document. A document in a
// terminal state is reset to pending first, which is the only way back into
// the lifecycle.
func (s *Service) TriggerIngest(ctx context.Context, id string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if doc.Status != StatusPending {
		if !ValidTransition(doc.Status, StatusPending) {
			return fmt.Errorf("cannot trigger ingestion from status %q", doc.Status)
		}
		if err := s.repo.UpdateStatus(ctx, id, StatusPending); err != nil {
			return err
		}
	}

	task := ingest.Task{
		DocumentID:    doc.ID,
		CollectionID:  doc.CollectionID,
		ObjectKey:     doc.ObjectKey,
		Filename:      doc.Filename,
		CorrelationID: middleware.GetCorrelationID(ctx),
	}
	payload, _ := json.Marshal(task)

	if err := s.pub.Publish(config.TopicIngestTask, payload); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingest.task event", "error", err, "document_id", doc.ID)
		return err
	}
	slog.InfoContext(ctx, "published ingest.task event", "document_id", doc.ID, "collection_id", doc.CollectionID)
	return nil
}

// UpdateStatus enforces the lifecycle before persisting. The ingestion
// consumer drives pending -> processing -> {indexed, failed} through this.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ValidTransition(doc.Status, status) {
		return fmt.Errorf("illegal status transition %q -> %q for document %s", doc.Status, status, id)
	}
	return s.repo.UpdateStatus(ctx, id, status)
}

type Detail struct {
	Document
	Chunks      []Chunk `json:"chunks"`
	TotalChunks int     `json:"total_chunks"`
}

func (s *Service) Get(ctx context.Context, id string) (*Detail, error) {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	chunks, err := s.repo.GetChunks(ctx, id)
	if err != nil {
		slog.Warn("failed to fetch chunks", "error", err, "document_id", id)
		chunks = []Chunk{}
	}

	return &Detail{
		Document:    *doc,
		Chunks:      chunks,
		TotalChunks: len(chunks),
	}, nil
}

func (s *Service) List(ctx context.Context, collectionID string) ([]Document, error) {
	return s.repo.List(ctx, collectionID)
}
