package document

import (
	"context"
	"database/sql"

	"corpora/internal/ingest"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Save(ctx context.Context, doc *Document) error {
	query := `
		INSERT INTO documents (id, collection_id, filename, object_key, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`
	return r.db.QueryRowContext(ctx, query, doc.ID, doc.CollectionID, doc.Filename, doc.ObjectKey, doc.Status).
		Scan(&doc.CreatedAt, &doc.UpdatedAt)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Document, error) {
	doc := &Document{}
	query := `SELECT id, collection_id, filename, object_key, status, created_at, updated_at FROM documents WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&doc.ID, &doc.CollectionID, &doc.Filename, &doc.ObjectKey, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *PostgresRepo) List(ctx context.Context, collectionID string) ([]Document, error) {
	query := `SELECT id, collection_id, filename, object_key, status, created_at, updated_at FROM documents WHERE collection_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.CollectionID, &d.Filename, &d.ObjectKey, &d.Status, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE documents SET status = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, status, id)
	return err
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// UpsertChunks overwrites by chunk id. Chunk ids are deterministic per
// document and offset, so a retried pipeline attempt replaces its own rows.
func (r *PostgresRepo) UpsertChunks(ctx context.Context, documentID string, chunks []ingest.ChunkRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO chunks (id, document_id, text, tokens, "offset")
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET text = EXCLUDED.text, tokens = EXCLUDED.tokens, "offset" = EXCLUDED."offset"
	`
	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, query, c.ID, documentID, c.Text, c.Tokens, c.Offset); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PostgresRepo) GetChunks(ctx context.Context, documentID string) ([]Chunk, error) {
	query := `SELECT id, text, tokens, "offset" FROM chunks WHERE document_id = $1 ORDER BY "offset" ASC`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.Text, &c.Tokens, &c.Offset); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

func (r *PostgresRepo) CountChunks(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}
