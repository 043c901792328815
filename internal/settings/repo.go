package settings

import (
	"context"
	"database/sql"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Get(ctx context.Context) (*Settings, error) {
	s := &Settings{}
	query := `SELECT id, gemini_api_key, openai_api_key, default_model, search_top_k, answer_temperature, answer_max_tokens FROM settings WHERE id = 1`
	err := r.db.QueryRowContext(ctx, query).Scan(&s.ID, &s.GeminiAPIKey, &s.OpenAIAPIKey, &s.DefaultModel, &s.SearchTopK, &s.AnswerTemperature, &s.AnswerMaxTokens)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepo) Update(ctx context.Context, s *Settings) error {
	query := `
		UPDATE settings
		SET gemini_api_key = $1, openai_api_key = $2, default_model = $3, search_top_k = $4, answer_temperature = $5, answer_max_tokens = $6, updated_at = NOW()
		WHERE id = 1
	`
	_, err := r.db.ExecContext(ctx, query, s.GeminiAPIKey, s.OpenAIAPIKey, s.DefaultModel, s.SearchTopK, s.AnswerTemperature, s.AnswerMaxTokens)
	return err
}
