package knowledge

import (
	"context"
	"fmt"

	"github.com/cloo-solutions/helpdesk/internal/database"
	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

// postgresBackend keeps chunks in a pgvector table and ranks them in SQL by
// negative inner product.
type postgresBackend struct {
	pool *pgxpool.Pool
}

func openPostgresBackend(ctx context.Context, databaseURL string, logger *zap.Logger) (*postgresBackend, error) {
	if err := database.MigratePostgres(databaseURL, logger); err != nil {
		return nil, err
	}

	pool, err := database.NewPool(ctx, database.Config{URL: databaseURL, Logger: logger})
	if err != nil {
		return nil, err
	}

	return &postgresBackend{pool: pool}, nil
}

func (b *postgresBackend) replace(ctx context.Context, documentID string, chunks []domain.StoredChunk) error {
	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM knowledge_chunks WHERE document_id = $1`, documentID); err != nil {
			return err
		}

		for _, c := range chunks {
			_, err := tx.Exec(ctx,
				`INSERT INTO knowledge_chunks
					(chunk_id, document_id, content, title, locale, tags, position, embedding)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				 ON CONFLICT (chunk_id) DO UPDATE SET
					document_id = EXCLUDED.document_id,
					content = EXCLUDED.content,
					title = EXCLUDED.title,
					locale = EXCLUDED.locale,
					tags = EXCLUDED.tags,
					position = EXCLUDED.position,
					embedding = EXCLUDED.embedding`,
				c.ChunkID,
				c.DocumentID,
				c.Content,
				nullableString(c.Title),
				nullableString(c.Locale),
				nonNilTags(c.Tags),
				c.Position,
				pgvector.NewVector(c.Vector),
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *postgresBackend) delete(ctx context.Context, documentID string) error {
	_, err := b.pool.Exec(ctx, `DELETE FROM knowledge_chunks WHERE document_id = $1`, documentID)
	return err
}

func (b *postgresBackend) count(ctx context.Context) (int, error) {
	var n int
	err := b.pool.QueryRow(ctx, `SELECT COUNT(*) FROM knowledge_chunks`).Scan(&n)
	return n, err
}

func (b *postgresBackend) documentIDs(ctx context.Context) ([]string, error) {
	rows, err := b.pool.Query(ctx, `SELECT DISTINCT document_id FROM knowledge_chunks ORDER BY document_id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (b *postgresBackend) search(ctx context.Context, query []float32, topK int, filter SearchFilter) ([]domain.RetrievedChunk, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT chunk_id, document_id, content, COALESCE(title, ''), COALESCE(locale, ''), tags, position, embedding,
			(embedding <#> $1) * -1 AS similarity
		 FROM knowledge_chunks
		 WHERE ($2::text = '' OR locale IS NULL OR locale = '' OR locale = $2::text)
		   AND tags @> $3::text[]
		 ORDER BY embedding <#> $1, document_id, position
		 LIMIT $4`,
		pgvector.NewVector(query),
		filter.Locale,
		nonNilTags(filter.Tags),
		topK,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity query failed: %w", err)
	}
	defer rows.Close()

	results := make([]domain.RetrievedChunk, 0, topK)
	for rows.Next() {
		var (
			r   domain.RetrievedChunk
			vec pgvector.Vector
		)
		if err := rows.Scan(
			&r.ChunkID, &r.DocumentID, &r.Content, &r.Title, &r.Locale, &r.Tags, &r.Position, &vec, &r.Similarity,
		); err != nil {
			return nil, err
		}
		r.Vector = vec.Slice()
		results = append(results, r)
	}
	return results, rows.Err()
}

func (b *postgresBackend) close() error {
	b.pool.Close()
	return nil
}
