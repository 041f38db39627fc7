package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Querier is the subset of pgxpool.Pool the store needs. Defined on the
// consumer side so tests can substitute a mock without a live database.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists chunks and embeddings in PostgreSQL with the
// pgvector extension. Safe for concurrent use; the pool handles connection
// concurrency.
type PostgresStore struct {
	db         Querier
	dimensions int
	logger     *slog.Logger
}

var _ Store = (*PostgresStore)(nil)

// PostgresConfig configures OpenPostgres.
type PostgresConfig struct {
	// ConnString is a pgx-compatible connection string or DSN.
	ConnString string

	// Dimensions is the embedding width; must match the embedding model.
	Dimensions int
}

// NewPostgresStore wraps an existing querier (pool or mock).
func NewPostgresStore(db Querier, dimensions int, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, dimensions: dimensions, logger: logger}
}

// OpenPostgres connects, verifies the pgvector extension, ensures the
// chunks table exists, and returns a ready store.
func OpenPostgres(ctx context.Context, cfg PostgresConfig, logger *slog.Logger) (*PostgresStore, *pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("creating connection pool: %w", err)
	}

	var extExists bool
	if err := pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = 'vector')",
	).Scan(&extExists); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("checking pgvector extension: %w", err)
	}
	if !extExists {
		pool.Close()
		return nil, nil, fmt.Errorf("pgvector extension not installed; run: CREATE EXTENSION vector")
	}

	store := NewPostgresStore(pool, cfg.Dimensions, logger)
	if err := store.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS kb_chunks (
			id TEXT PRIMARY KEY,
			parent_id TEXT NOT NULL,
			chunk_index INT NOT NULL,
			total_chunks INT NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			embedding vector(%d) NOT NULL
		)`, s.dimensions)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating kb_chunks table: %w", err)
	}
	if _, err := s.db.Exec(ctx,
		"CREATE INDEX IF NOT EXISTS kb_chunks_parent_idx ON kb_chunks (parent_id)"); err != nil {
		return fmt.Errorf("creating parent index: %w", err)
	}
	return nil
}

// Upsert inserts or replaces chunks with ON CONFLICT DO UPDATE.
func (s *PostgresStore) Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("upsert: %d chunks but %d vectors", len(chunks), len(vectors))
	}

	const stmt = `
		INSERT INTO kb_chunks (id, parent_id, chunk_index, total_chunks, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			parent_id = EXCLUDED.parent_id,
			chunk_index = EXCLUDED.chunk_index,
			total_chunks = EXCLUDED.total_chunks,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`

	for i, c := range chunks {
		metadataJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for chunk %q: %w", c.ID, err)
		}
		embedding := pgvector.NewVector(vectors[i])
		if _, err := s.db.Exec(ctx, stmt,
			c.ID, c.ParentID, c.Index, c.TotalChunks, c.Text, metadataJSON, embedding,
		); err != nil {
			return fmt.Errorf("upserting chunk %q: %w", c.ID, err)
		}
	}

	s.logger.Debug("upserted chunks", "count", len(chunks))
	return nil
}

// Query performs cosine-similarity search with an optional JSONB
// containment filter. filterJSON is always produced by json.Marshal and the
// statement is fully parameterized, so user-supplied filter values cannot
// inject SQL.
func (s *PostgresStore) Query(ctx context.Context, vector []float32, k int, filter map[string]string) ([]Candidate, error) {
	if k <= 0 {
		return nil, nil
	}

	query := pgvector.NewVector(vector)

	var (
		rows pgx.Rows
		err  error
	)
	if len(filter) > 0 {
		filterJSON, marshalErr := json.Marshal(filter)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshaling filter: %w", marshalErr)
		}
		rows, err = s.db.Query(ctx, `
			SELECT id, parent_id, chunk_index, total_chunks, content, metadata, embedding,
			       1 - (embedding <=> $1) AS similarity
			FROM kb_chunks
			WHERE metadata @> $2
			ORDER BY embedding <=> $1, id
			LIMIT $3`,
			query, filterJSON, k)
	} else {
		rows, err = s.db.Query(ctx, `
			SELECT id, parent_id, chunk_index, total_chunks, content, metadata, embedding,
			       1 - (embedding <=> $1) AS similarity
			FROM kb_chunks
			ORDER BY embedding <=> $1, id
			LIMIT $2`,
			query, k)
	}
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var (
			c            Candidate
			metadataJSON []byte
			embedding    pgvector.Vector
		)
		if err := rows.Scan(
			&c.Chunk.ID, &c.Chunk.ParentID, &c.Chunk.Index, &c.Chunk.TotalChunks,
			&c.Chunk.Text, &metadataJSON, &embedding, &c.Score,
		); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &c.Chunk.Metadata); err != nil {
				s.logger.Warn("failed to parse chunk metadata", "chunk_id", c.Chunk.ID, "error", err)
				c.Chunk.Metadata = make(map[string]string)
			}
		}
		c.Vector = embedding.Slice()
		c.Score = clampScore(c.Score)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// Delete removes all chunks of a parent document.
func (s *PostgresStore) Delete(ctx context.Context, parentID string) error {
	if _, err := s.db.Exec(ctx, "DELETE FROM kb_chunks WHERE parent_id = $1", parentID); err != nil {
		return fmt.Errorf("deleting chunks for %q: %w", parentID, err)
	}
	s.logger.Debug("deleted document chunks", "parent_id", parentID)
	return nil
}

// Count returns the total number of stored chunks.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM kb_chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return int(count), nil
}
