package knowledge

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/cloo-solutions/helpdesk/internal/database"
	"github.com/cloo-solutions/helpdesk/internal/domain"
	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var errStoreLocked = errors.New("vector store file is locked by another process")

// sqliteBackend stores chunks in a single embedded table. A lock file next to
// the database keeps other processes out.
type sqliteBackend struct {
	db   *sql.DB
	lock *flock.Flock
}

func openSQLiteBackend(path string, logger *zap.Logger) (*sqliteBackend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create vector store directory: %w", err)
		}
	}

	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock vector store: %w", err)
	}
	if !locked {
		return nil, errStoreLocked
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := database.MigrateSQLite(db, logger); err != nil {
		_ = db.Close()
		_ = lock.Unlock()
		return nil, err
	}

	return &sqliteBackend{db: db, lock: lock}, nil
}

func (b *sqliteBackend) replace(ctx context.Context, documentID string, chunks []domain.StoredChunk) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE document_id = ?`, documentID); err != nil {
		return err
	}

	for _, c := range chunks {
		tags, err := json.Marshal(nonNilTags(c.Tags))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`REPLACE INTO knowledge_chunks
				(chunk_id, document_id, content, title, locale, tags, position, vector)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ChunkID,
			c.DocumentID,
			c.Content,
			nullableString(c.Title),
			nullableString(c.Locale),
			string(tags),
			c.Position,
			encodeVector(c.Vector),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (b *sqliteBackend) delete(ctx context.Context, documentID string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM knowledge_chunks WHERE document_id = ?`, documentID)
	return err
}

func (b *sqliteBackend) count(ctx context.Context) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_chunks`).Scan(&n)
	return n, err
}

func (b *sqliteBackend) documentIDs(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT DISTINCT document_id FROM knowledge_chunks ORDER BY document_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (b *sqliteBackend) search(ctx context.Context, query []float32, topK int, filter SearchFilter) ([]domain.RetrievedChunk, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT chunk_id, document_id, content, title, locale, tags, position, vector
		 FROM knowledge_chunks
		 WHERE ? = '' OR locale IS NULL OR locale = '' OR locale = ?
		 ORDER BY document_id, position`,
		filter.Locale, filter.Locale,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chunks := make([]domain.StoredChunk, 0)
	for rows.Next() {
		var (
			c             domain.StoredChunk
			title, locale sql.NullString
			tags          string
			blob          []byte
		)
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.Content, &title, &locale, &tags, &c.Position, &blob); err != nil {
			return nil, err
		}
		c.Title = title.String
		c.Locale = locale.String
		if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
			return nil, fmt.Errorf("chunk %s has malformed tags: %w", c.ChunkID, err)
		}
		if c.Vector, err = decodeVector(blob); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ChunkID, err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return rankChunks(query, chunks, topK, filter)
}

func (b *sqliteBackend) close() error {
	err := b.db.Close()
	if unlockErr := b.lock.Unlock(); err == nil {
		err = unlockErr
	}
	return err
}

// encodeVector packs v as consecutive big-endian float32 values.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.BigEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.BigEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
