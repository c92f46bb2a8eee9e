package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/recordsql/recordsql/internal/completion"
	"github.com/recordsql/recordsql/internal/config"
	"github.com/recordsql/recordsql/internal/embedding"
	"github.com/recordsql/recordsql/internal/observability"
	"github.com/recordsql/recordsql/internal/placeholder"
	"github.com/recordsql/recordsql/internal/qu"
	"github.com/recordsql/recordsql/internal/resolve"
	"github.com/recordsql/recordsql/internal/sport"
	"github.com/recordsql/recordsql/internal/templategen"
	"github.com/recordsql/recordsql/internal/vectorindex"
)

const defaultBatchSize = 5

// Output is one entry of the result array. Successful statements carry
// Results; failed ones carry the intermediate artifacts and the error.
type Output struct {
	Statement      string            `json:"statement"`
	Sport          string            `json:"sport"`
	Results        *Results          `json:"results,omitempty"`
	QU             *qu.Understanding `json:"qu,omitempty"`
	TemplateSQL    string            `json:"template_sql,omitempty"`
	EntityMetadata *resolve.Metadata `json:"entity_metadata,omitempty"`
	SQL            string            `json:"sql,omitempty"`
	Error          string            `json:"error,omitempty"`
}

type Results struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated,omitempty"`
}

// FailureOutput reports a statement that never reached execution.
func FailureOutput(statement, sportName string, err error) Output {
	return Output{Statement: statement, Sport: sportName, Error: "Processing failed: " + err.Error()}
}

type Deps struct {
	Completer         completion.Completer
	CompletionOptions completion.Options
	Embedder          embedding.Embedder
	PlayerIndex       vectorindex.Index
	TeamIndex         vectorindex.Index
	Pipeline          config.PipelineConfig
	Logger            *slog.Logger
}

// Processor runs the statements of one sport through every stage.
type Processor struct {
	Adapter      sport.Adapter
	Extractor    *qu.Extractor
	Resolver     *resolve.Resolver
	Generator    *templategen.Generator
	Placeholders *placeholder.Resolver
	BatchSize    int
	Logger       *slog.Logger
}

func NewProcessor(adapter sport.Adapter, deps Deps) *Processor {
	opts := deps.CompletionOptions
	if deps.Pipeline.BatchSize > 0 {
		opts.BatchSize = deps.Pipeline.BatchSize
	}
	logger := deps.Logger
	if logger != nil {
		logger = logger.With(slog.String("sport", adapter.Name()))
	}
	return &Processor{
		Adapter: adapter,
		Extractor: &qu.Extractor{
			Completer: deps.Completer,
			Prompter:  adapter,
			Options:   opts,
			Logger:    logger,
		},
		Resolver: &resolve.Resolver{
			Embedder:    deps.Embedder,
			PlayerIndex: deps.PlayerIndex,
			TeamIndex:   deps.TeamIndex,
			Stats:       adapter,
			Prompter:    adapter,
			Completer:   deps.Completer,
			Options:     opts,
			TopK:        deps.Pipeline.TopK,
			Logger:      logger,
		},
		Generator: &templategen.Generator{
			Completer: deps.Completer,
			Prompter:  adapter,
			Options:   opts,
			TopN:      deps.Pipeline.TopN,
			Retries:   deps.Pipeline.TemplateRetries,
			Logger:    logger,
		},
		Placeholders: &placeholder.Resolver{
			Completer:      deps.Completer,
			Prompter:       adapter,
			Options:        opts,
			Deterministic:  deps.Pipeline.PlaceholderMode == config.PlaceholderModeDeterministic,
			PlayerKeywords: adapter.PlayerKeywords(),
			Logger:         logger,
		},
		BatchSize: deps.Pipeline.BatchSize,
		Logger:    logger,
	}
}

// Process returns one output per statement, in input order. A failing
// statement never aborts the rest of its batch.
func (p *Processor) Process(ctx context.Context, statements []string) []Output {
	batchSize := p.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	out := make([]Output, 0, len(statements))
	for start := 0; start < len(statements); start += batchSize {
		end := min(start+batchSize, len(statements))
		out = append(out, p.processBatch(ctx, statements[start:end])...)
	}
	return out
}

func (p *Processor) processBatch(ctx context.Context, statements []string) []Output {
	understandings := p.Extractor.Extract(ctx, statements)

	var (
		metadata  []resolve.Metadata
		templates []templategen.Template
	)
	var group errgroup.Group
	group.Go(func() error {
		metadata = p.Resolver.Resolve(ctx, statements, understandings)
		return nil
	})
	group.Go(func() error {
		templates = p.Generator.Generate(ctx, statements, understandings)
		return nil
	})
	_ = group.Wait()

	templateSQL := make([]string, len(templates))
	for i, template := range templates {
		templateSQL[i] = template.SQL
	}
	finals := p.Placeholders.Resolve(ctx, understandings, templateSQL, metadata)

	out := make([]Output, len(statements))
	for i, statement := range statements {
		out[i] = p.execute(ctx, statement, understandings[i], templates[i], metadata[i], finals[i])
	}
	return out
}

func (p *Processor) execute(ctx context.Context, statement string, understanding qu.Understanding, template templategen.Template, metadata resolve.Metadata, final placeholder.Final) Output {
	name := p.Adapter.Name()
	started := time.Now()
	result, err := p.Adapter.Executor().Execute(ctx, final.SQL)
	observability.ObserveQuery(name, time.Since(started))
	if err != nil {
		if p.Logger != nil {
			p.Logger.WarnContext(ctx, "query execution failed",
				slog.String("sql", final.SQL),
				slog.String("placeholder_path", string(final.Path)),
				slog.Any("error", err),
			)
		}
		observability.ObserveStatement(name, "failed")
		if metadata == nil {
			metadata = resolve.Metadata{}
		}
		return Output{
			Statement:      statement,
			Sport:          name,
			QU:             &understanding,
			TemplateSQL:    template.SQL,
			EntityMetadata: &metadata,
			SQL:            final.SQL,
			Error:          err.Error(),
		}
	}

	observability.ObserveStatement(name, "ok")
	columns := result.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	return Output{
		Statement: statement,
		Sport:     name,
		Results:   &Results{Columns: columns, Rows: rows, Truncated: result.Truncated},
	}
}
