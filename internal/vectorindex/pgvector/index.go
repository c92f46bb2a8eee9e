package pgvector

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/recordsql/recordsql/internal/vectorindex"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]{0,62}$`)

func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("pgvector dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open pgvector db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping pgvector db: %w", err)
	}
	return db, nil
}

// Index searches one (sport, kind) partition of a pgvector table with columns
// sport, kind, position, entity_id and embedding.
type Index struct {
	db    *sql.DB
	table string
	sport string
	kind  vectorindex.EntityKind
}

func New(db *sql.DB, table, sport string, kind vectorindex.EntityKind) (*Index, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid pgvector table name: %q", table)
	}
	return &Index{db: db, table: table, sport: sport, kind: kind}, nil
}

func (i *Index) Search(ctx context.Context, vector []float32, k int) ([]vectorindex.Candidate, error) {
	if k <= 0 {
		return []vectorindex.Candidate{}, nil
	}
	rows, err := i.db.QueryContext(ctx, i.searchSQL(), formatVector(vector), i.sport, string(i.kind), k)
	if err != nil {
		return nil, fmt.Errorf("query pgvector: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]vectorindex.Candidate, 0, k)
	for rows.Next() {
		var (
			id       int64
			distance float64
		)
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("scan pgvector row: %w", err)
		}
		out = append(out, vectorindex.Candidate{ID: id, Distance: float32(distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pgvector rows: %w", err)
	}
	return out, nil
}

// Replace swaps the partition contents for the given matrix and id array.
func (i *Index) Replace(ctx context.Context, vectors [][]float32, ids []int64) error {
	if len(vectors) != len(ids) {
		return fmt.Errorf("index has %d vectors but %d ids", len(vectors), len(ids))
	}
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin pgvector tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE sport = $1 AND kind = $2", i.table), i.sport, string(i.kind)); err != nil {
		return fmt.Errorf("clear pgvector partition: %w", err)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (sport, kind, position, entity_id, embedding) VALUES ($1, $2, $3, $4, $5::vector)", i.table)
	for position, vec := range vectors {
		if _, err := tx.ExecContext(ctx, insertSQL, i.sport, string(i.kind), position, ids[position], formatVector(vec)); err != nil {
			return fmt.Errorf("insert pgvector row %d: %w", position, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit pgvector tx: %w", err)
	}
	return nil
}

func (i *Index) searchSQL() string {
	return fmt.Sprintf(
		"SELECT entity_id, embedding <-> $1::vector AS distance FROM %s WHERE sport = $2 AND kind = $3 ORDER BY distance ASC, position ASC LIMIT $4",
		i.table,
	)
}

func formatVector(vector []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, v := range vector {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
