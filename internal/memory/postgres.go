package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/Nikunikuo/EmotionMemCore/internal/emotion"
)

// PostgresRepository implements Repository using pgx + pgvector.
type PostgresRepository struct {
	pool *pgxpool.Pool
	dims int
}

// NewPostgresRepository creates a memory repository on the given pool
// with a fixed embedding dimensionality.
func NewPostgresRepository(pool *pgxpool.Pool, dims int) (*PostgresRepository, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("memory: invalid embedding dimensionality %d", dims)
	}
	return &PostgresRepository{pool: pool, dims: dims}, nil
}

func (r *PostgresRepository) Put(ctx context.Context, mem *Memory) error {
	if len(mem.Embedding) != r.dims {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(mem.Embedding), r.dims)
	}

	vec := pgvector.NewVector(mem.Embedding)
	_, err := r.pool.Exec(ctx,
		`INSERT INTO memories (id, owner_id, session_id, summary, emotions, embedding, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)`,
		mem.ID, mem.OwnerID, mem.SessionID, mem.Summary, emotion.Strings(mem.Emotions), vec, mem.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateID, mem.ID)
		}
		return fmt.Errorf("inserting memory: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Query(ctx context.Context, vector []float32, f QueryFilter) ([]SearchResult, error) {
	if len(vector) != r.dims {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), r.dims)
	}

	var sb strings.Builder
	sb.WriteString(
		`SELECT id, owner_id, summary, emotions, created_at,
		        1 - (embedding <=> $1) AS score
		 FROM memories`)
	args := []any{pgvector.NewVector(vector)}
	var conds []string

	if f.OwnerScope != ScopeAll {
		args = append(args, f.OwnerScope)
		conds = append(conds, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if len(f.Emotions) > 0 {
		args = append(args, emotion.Strings(f.Emotions))
		conds = append(conds, fmt.Sprintf("emotions && $%d", len(args)))
	}
	args, conds = timeConditions(f.TimeRange, args, conds)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY embedding <=> $1, created_at DESC")
	if f.TopK > 0 {
		args = append(args, f.TopK)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}

	rows, err := r.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("searching memories: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			res    SearchResult
			labels []string
		)
		if err := rows.Scan(&res.MemoryID, &res.OwnerID, &res.Summary, &labels, &res.CreatedAt, &res.Score); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		res.Emotions = emotion.Normalize(labels)
		res.Score = clampScore(res.Score)
		results = append(results, res)
	}
	return results, rows.Err()
}

func (r *PostgresRepository) List(ctx context.Context, f ListFilter) ([]*Memory, int64, error) {
	args, conds := listConditions(f)

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM memories`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting memories: %w", err)
	}

	query := `SELECT id, owner_id, COALESCE(session_id, ''), summary, emotions, created_at
	 FROM memories` + where + " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing memories: %w", err)
	}
	defer rows.Close()

	var memories []*Memory
	for rows.Next() {
		var (
			m      Memory
			labels []string
		)
		if err := rows.Scan(&m.ID, &m.OwnerID, &m.SessionID, &m.Summary, &labels, &m.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning memory: %w", err)
		}
		m.Emotions = emotion.Normalize(labels)
		memories = append(memories, &m)
	}
	return memories, total, rows.Err()
}

func listConditions(f ListFilter) ([]any, []string) {
	var (
		args  []any
		conds []string
	)
	if f.OwnerID != "" {
		args = append(args, f.OwnerID)
		conds = append(conds, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if len(f.Emotions) > 0 {
		args = append(args, emotion.Strings(f.Emotions))
		conds = append(conds, fmt.Sprintf("emotions && $%d", len(args)))
	}
	return timeConditions(f.TimeRange, args, conds)
}

func timeConditions(tr *TimeRange, args []any, conds []string) ([]any, []string) {
	if tr == nil {
		return args, conds
	}
	if !tr.Start.IsZero() {
		args = append(args, tr.Start)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !tr.End.IsZero() {
		args = append(args, tr.End)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	return args, conds
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Memory, error) {
	var (
		m      Memory
		labels []string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, COALESCE(session_id, ''), summary, emotions, created_at
		 FROM memories WHERE id = $1`, id,
	).Scan(&m.ID, &m.OwnerID, &m.SessionID, &m.Summary, &labels, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("getting memory: %w", err)
	}
	m.Emotions = emotion.Normalize(labels)
	return &m, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting memory: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM memories`).Scan(&count)
	return count, err
}

func (r *PostgresRepository) EmotionCounts(ctx context.Context) (map[emotion.Label]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT unnest(emotions) AS label, COUNT(*) FROM memories GROUP BY 1`)
	if err != nil {
		return nil, fmt.Errorf("counting emotions: %w", err)
	}
	defer rows.Close()

	counts := make(map[emotion.Label]int64)
	for rows.Next() {
		var (
			label string
			n     int64
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scanning emotion count: %w", err)
		}
		if emotion.Valid(emotion.Label(label)) {
			counts[emotion.Label(label)] = n
		}
	}
	return counts, rows.Err()
}
