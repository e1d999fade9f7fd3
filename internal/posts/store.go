// Package posts reads post text from the relational store, which is the
// system of record the semantic index is rebuilt from.
package posts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/semantic-search/internal/semantic/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/semantic-search/pkg/errors"
)

// StatusPublished is the only status eligible for indexing.
const StatusPublished = "published"

const selectColumns = `SELECT id, blog_id, title, content, COALESCE(tags, ''), COALESCE(summary, '') FROM posts`

// Store loads posts with database/sql over lib/pq.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "post-store"),
	}
}

// ListPublished returns every published post in publication order.
func (s *Store) ListPublished(ctx context.Context) ([]index.PostData, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` WHERE status = $1 ORDER BY published_at NULLS LAST, id`,
		StatusPublished,
	)
	if err != nil {
		return nil, fmt.Errorf("querying published posts: %w", err)
	}
	defer rows.Close()

	var result []index.PostData
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating published posts: %w", err)
	}
	s.logger.Debug("published posts loaded", "count", len(result))
	return result, nil
}

// GetPublished returns a single post if it exists and is published, and
// apperrors.ErrPostNotFound otherwise.
func (s *Store) GetPublished(ctx context.Context, postID string) (index.PostData, error) {
	row := s.db.QueryRowContext(ctx,
		selectColumns+` WHERE id = $1 AND status = $2`,
		postID, StatusPublished,
	)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return index.PostData{}, fmt.Errorf("post %s: %w", postID, apperrors.ErrPostNotFound)
	}
	if err != nil {
		return index.PostData{}, err
	}
	return post, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (index.PostData, error) {
	var p index.PostData
	if err := row.Scan(&p.PostID, &p.BlogID, &p.Title, &p.Content, &p.Tags, &p.Summary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scanning post row: %w", err)
	}
	return p, nil
}
