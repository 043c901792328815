package job

import (
	"context"
	"encoding/json"
	"time"
)

type Job struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"document_id"`
	Payload    json.RawMessage `json:"payload"`
	Error      string          `json:"error"`
	Attempts   int             `json:"attempts"`
	CreatedAt  time.Time       `json:"created_at"`
}

type EventPublisher interface {
	Publish(topic string, body []byte) error
}

// StatusUpdater resets the owning document's lifecycle on retry.
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, id, status string) error
}

type Service struct {
	repo   Repository
	pub    EventPublisher
	status StatusUpdater
	topic  string
}

func NewService(repo Repository, pub EventPublisher, status StatusUpdater, topic string) *Service {
	return &Service{repo: repo, pub: pub, status: status, topic: topic}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

// Retry republishes the archived payload and removes the archive row. This is
// the explicit operator path back into the lifecycle: the document is reset
// to pending before the task is queued again.
func (s *Service) Retry(ctx context.Context, id string) error {
	job, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if s.status != nil && job.DocumentID != "" {
		if err := s.status.UpdateStatus(ctx, job.DocumentID, "pending"); err != nil {
			return err
		}
	}

	if err := s.pub.Publish(s.topic, job.Payload); err != nil {
		return err
	}

	return s.repo.Delete(ctx, id)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Archiver adapts the repository to the ingestion consumer's archive hook.
type Archiver struct {
	repo Repository
}

func NewArchiver(repo Repository) *Archiver {
	return &Archiver{repo: repo}
}

func (a *Archiver) Archive(ctx context.Context, documentID string, payload []byte, attempts int, cause string) error {
	return a.repo.Save(ctx, &Job{
		DocumentID: documentID,
		Payload:    json.RawMessage(payload),
		Error:      cause,
		Attempts:   attempts,
	})
}
