package storage

import (
	"context"
	"database/sql"
	"log/slog"
)

type PostgresStorage struct {
	db *sql.DB
}

func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

func (s *PostgresStorage) SavePage(ctx context.Context, p Page) error {
	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO pages (url, depth, kind, title, text_length, error, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		p.URL, p.Depth, string(p.Kind), p.Title, p.TextLength, nullString(p.Error), p.Timestamp,
	).Scan(&id)

	if err != nil {
		return err
	}

	slog.Debug("saved page", "id", id, "url", p.URL, "kind", p.Kind)
	return nil
}

func (s *PostgresStorage) SaveRun(ctx context.Context, r Run) error {
	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO crawl_runs (started_at, finished_at, pages_visited, pages_errored, pages_skipped, documents_found, snippets, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		r.StartedAt, r.FinishedAt, r.PagesVisited, r.PagesErrored, r.PagesSkipped, r.DocumentsFound, r.Snippets, nullString(r.Error),
	).Scan(&id)

	if err != nil {
		return err
	}

	slog.Info("saved crawl run", "id", id)
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
