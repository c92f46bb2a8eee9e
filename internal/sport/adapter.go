package sport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/recordsql/recordsql/internal/qu"
	"github.com/recordsql/recordsql/internal/query"
	"github.com/recordsql/recordsql/internal/resolve"
	"github.com/recordsql/recordsql/internal/sqltemplate"
	"github.com/recordsql/recordsql/internal/vectorindex"
)

var ErrUnsupportedSport = errors.New("unsupported sport")

const defaultTopN = 5

// Adapter supplies everything sport specific to the pipeline: the store
// schema, the prompts of every stage and the stat lookup used to
// disambiguate players.
type Adapter interface {
	Name() string
	Schema() Schema
	QUPrompt(statement string) (string, error)
	TemplatePrompt(statement string, understanding qu.Understanding) (string, error)
	RepairPrompt(statement string, understanding qu.Understanding, previousSQL string, violations []string) (string, error)
	ResolvePrompt(understanding qu.Understanding, templateSQL string, metadata resolve.Metadata) (string, error)
	DisambiguationPrompt(statement, entity string, stats query.Result) (string, error)
	SupportsKind(kind sqltemplate.Kind) bool
	NameColumns() []string
	PlayerKeywords() []string
	Executor() query.Executor
	LookupStats(ctx context.Context, ids []int64) (query.Result, error)
	ListEntities(ctx context.Context, kind vectorindex.EntityKind) ([]vectorindex.Entity, error)
	Close() error
}

type Deps struct {
	Executor query.Executor
	// Closer releases the store behind Executor when the adapter is closed.
	Closer io.Closer
	TopN   int
}

type Baseball struct{ *base }
type Basketball struct{ *base }
type Cricket struct{ *base }
type Soccer struct{ *base }

var supported = []string{"baseball", "basketball", "cricket", "soccer"}

func Supported() []string {
	return slices.Clone(supported)
}

func IsSupported(name string) bool {
	return slices.Contains(supported, strings.ToLower(strings.TrimSpace(name)))
}

func New(name string, deps Deps) (Adapter, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if !slices.Contains(supported, name) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSport, name)
	}
	b, err := newBase(name, deps)
	if err != nil {
		return nil, err
	}
	switch name {
	case "baseball":
		return Baseball{b}, nil
	case "basketball":
		return Basketball{b}, nil
	case "cricket":
		return Cricket{b}, nil
	default:
		return Soccer{b}, nil
	}
}

type base struct {
	schema   Schema
	executor query.Executor
	closer   io.Closer
	topN     int
}

func newBase(name string, deps Deps) (*base, error) {
	if deps.Executor == nil {
		return nil, fmt.Errorf("%s adapter: executor is required", name)
	}
	schema, err := LoadSchema(name)
	if err != nil {
		return nil, err
	}
	topN := deps.TopN
	if topN <= 0 {
		topN = defaultTopN
	}
	return &base{schema: schema, executor: deps.Executor, closer: deps.Closer, topN: topN}, nil
}

func (b *base) Name() string {
	return b.schema.Sport
}

func (b *base) Schema() Schema {
	return b.schema
}

func (b *base) SupportsKind(kind sqltemplate.Kind) bool {
	_, ok := b.schema.IDColumn(kind)
	return ok
}

func (b *base) NameColumns() []string {
	return b.schema.NameColumnList()
}

func (b *base) PlayerKeywords() []string {
	return slices.Clone(b.schema.PlayerKeywords)
}

func (b *base) Executor() query.Executor {
	return b.executor
}

// LookupStats returns the aggregate stat rows of the given players. An empty
// id list runs no query.
func (b *base) LookupStats(ctx context.Context, ids []int64) (query.Result, error) {
	if len(ids) == 0 {
		return query.Result{}, nil
	}
	sqlText, args := b.schema.statQuery(ids)
	result, err := b.executor.Execute(ctx, sqlText, args...)
	if err != nil {
		return query.Result{}, fmt.Errorf("lookup %s player stats: %w", b.schema.Sport, err)
	}
	return result, nil
}

// ListEntities reads every (id, name) pair of a kind from the store. Rows with
// a null or non-numeric id are skipped.
func (b *base) ListEntities(ctx context.Context, kind vectorindex.EntityKind) ([]vectorindex.Entity, error) {
	sqlText, ok := b.schema.EntityQuery(kind)
	if !ok {
		return nil, fmt.Errorf("%s schema has no %s listing query", b.schema.Sport, kind)
	}
	result, err := b.executor.Execute(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("list %s %ss: %w", b.schema.Sport, kind, err)
	}
	if len(result.Columns) < 2 {
		return nil, fmt.Errorf("list %s %ss: expected id and name columns, got %d", b.schema.Sport, kind, len(result.Columns))
	}
	out := make([]vectorindex.Entity, 0, len(result.Rows))
	for _, row := range result.Rows {
		id, ok := toInt64(row[0])
		if !ok {
			continue
		}
		out = append(out, vectorindex.Entity{ID: id, Name: toString(row[1])})
	}
	return out, nil
}

func (b *base) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case float64:
		return int64(v), v == float64(int64(v))
	case string:
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return id, err == nil
	case []byte:
		id, err := strconv.ParseInt(strings.TrimSpace(string(v)), 10, 64)
		return id, err == nil
	}
	return 0, false
}

func toString(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	}
	return fmt.Sprint(value)
}
