package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"DigestRanker/internal/domain"
	"DigestRanker/internal/ports"
)

const candidatesTable = "candidates"

// Schema creates the candidates table used as an append log keyed by (topic, url).
const Schema = `CREATE TABLE IF NOT EXISTS candidates (
    id           BIGSERIAL PRIMARY KEY,
    topic        TEXT NOT NULL,
    url          TEXT NOT NULL,
    external_id  TEXT NOT NULL DEFAULT '',
    title        TEXT NOT NULL DEFAULT '',
    body         TEXT NOT NULL DEFAULT '',
    source       TEXT NOT NULL DEFAULT '',
    published_at TIMESTAMPTZ,
    scraped_at   TIMESTAMPTZ,
    is_published BOOLEAN NOT NULL DEFAULT FALSE,
    marked_at    TIMESTAMPTZ,
    UNIQUE (topic, url)
)`

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresRepository persists candidates and their published marker.
type PostgresRepository struct {
	db DB
	sb sq.StatementBuilderType
}

var (
	_ ports.CandidateStore = (*PostgresRepository)(nil)
	_ ports.PublishedStore = (*PostgresRepository)(nil)
)

// NewPostgresRepository wires a pgx pool (or any compatible DB).
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Migrate creates the schema when missing.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate candidates: %w", err)
	}
	return nil
}

// ListUnpublished returns the topic's unpublished candidates in insertion order.
func (r *PostgresRepository) ListUnpublished(ctx context.Context, topic string) ([]domain.Candidate, error) {
	query, args, err := r.sb.
		Select("id", "topic", "url", "title", "body", "source", "published_at", "scraped_at").
		From(candidatesTable).
		Where(sq.Eq{"topic": topic}).
		Where(sq.Eq{"is_published": false}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unpublished: %w", err)
	}
	defer rows.Close()

	var result []domain.Candidate
	for rows.Next() {
		var (
			id                     int64
			c                      domain.Candidate
			publishedAt, scrapedAt sql.NullTime
		)
		if err := rows.Scan(&id, &c.Topic, &c.URL, &c.Title, &c.Body, &c.Source, &publishedAt, &scrapedAt); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.ID = fmt.Sprintf("%d", id)
		if publishedAt.Valid {
			c.PublishedAt = publishedAt.Time
		}
		if scrapedAt.Valid {
			c.ScrapedAt = scrapedAt.Time
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return result, nil
}

// Save inserts candidates, ignoring (topic, url) pairs already stored.
func (r *PostgresRepository) Save(ctx context.Context, candidates []domain.Candidate) (int, error) {
	insert := r.sb.
		Insert(candidatesTable).
		Columns("topic", "url", "external_id", "title", "body", "source", "published_at", "scraped_at")

	n := 0
	for _, c := range candidates {
		if c.Validate() != nil {
			continue
		}
		insert = insert.Values(c.Topic, c.URL, c.ID, c.Title, c.Body, c.Source, nullTime(c.PublishedAt), nullTime(c.ScrapedAt))
		n++
	}
	if n == 0 {
		return 0, nil
	}

	query, args, err := insert.Suffix("ON CONFLICT (topic, url) DO NOTHING").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert candidates: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Published reports which of urls are already marked for topic.
func (r *PostgresRepository) Published(ctx context.Context, topic string, urls []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(urls) == 0 {
		return result, nil
	}

	query, args, err := r.sb.
		Select("url").
		From(candidatesTable).
		Where(sq.Eq{"topic": topic}).
		Where(sq.Eq{"url": urls}).
		Where(sq.Eq{"is_published": true}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build published query: %w", err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query published: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan url: %w", err)
		}
		result[u] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return result, nil
}

// MarkPublished flips the marker; already published rows are left untouched.
func (r *PostgresRepository) MarkPublished(ctx context.Context, topic string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}

	query, args, err := r.sb.
		Update(candidatesTable).
		Set("is_published", true).
		Set("marked_at", sq.Expr("NOW()")).
		Where(sq.Eq{"topic": topic}).
		Where(sq.Eq{"url": urls}).
		Where(sq.Eq{"is_published": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark query: %w", err)
	}

	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
