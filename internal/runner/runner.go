package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/recordsql/recordsql/internal/classify"
	"github.com/recordsql/recordsql/internal/completion"
	"github.com/recordsql/recordsql/internal/config"
	"github.com/recordsql/recordsql/internal/embedding"
	"github.com/recordsql/recordsql/internal/observability"
	"github.com/recordsql/recordsql/internal/pipeline"
	"github.com/recordsql/recordsql/internal/sport"
	"github.com/recordsql/recordsql/internal/storage"
	"github.com/recordsql/recordsql/internal/storage/local"
	"github.com/recordsql/recordsql/internal/storage/s3"
	"github.com/recordsql/recordsql/internal/vectorindex"
	"github.com/recordsql/recordsql/internal/vectorindex/pgvector"
)

type Options struct {
	// Sport skips sport classification and routes every statement to it.
	Sport            string
	SkipRecordFilter bool
}

// Runner drives a whole run: classification, grouping by sport and one
// pipeline pass per sport.
type Runner struct {
	Config    config.Config
	Completer completion.Completer
	Embedder  embedding.Embedder
	Logger    *slog.Logger

	// Open builds the resources of one sport. OpenResources is used when nil.
	Open func(ctx context.Context, cfg config.Config, name string) (*Resources, error)
}

func (r *Runner) completionOptions() completion.Options {
	return completion.Options{
		BatchSize:    r.Config.Pipeline.BatchSize,
		Timeout:      r.Config.AI.Timeout,
		MaxRetries:   r.Config.AI.MaxRetries,
		RetryBackoff: r.Config.AI.RetryBackoff,
	}
}

// Run returns the outputs of every statement that passed the filters,
// grouped by sport in order of first appearance.
func (r *Runner) Run(ctx context.Context, statements []string, opts Options) ([]pipeline.Output, error) {
	logger := observability.WithRun(ctx, r.Logger)
	statements = cleanStatements(statements)

	forced := strings.ToLower(strings.TrimSpace(opts.Sport))
	if forced != "" && !sport.IsSupported(forced) {
		return nil, fmt.Errorf("%w: %q", sport.ErrUnsupportedSport, opts.Sport)
	}

	classifier := &classify.Classifier{
		Completer: r.Completer,
		Options:   r.completionOptions(),
		Sports:    sport.Supported(),
		Logger:    logger,
	}

	if !opts.SkipRecordFilter {
		records := classifier.Records(ctx, statements)
		kept := make([]string, 0, len(statements))
		for i, statement := range statements {
			if !records[i] {
				observability.ObserveSkippedStatement("non_record")
				continue
			}
			kept = append(kept, statement)
		}
		if logger != nil {
			logger.InfoContext(ctx, "record filter applied", slog.Int("statements", len(statements)), slog.Int("records", len(kept)))
		}
		statements = kept
	}

	var labels []string
	if forced != "" {
		labels = make([]string, len(statements))
		for i := range labels {
			labels[i] = forced
		}
	} else {
		labels = classifier.SportsOf(ctx, statements)
	}

	groups, order := groupBySport(statements, labels)
	out := make([]pipeline.Output, 0, len(statements))
	for _, name := range order {
		if !sport.IsSupported(name) {
			for range groups[name] {
				observability.ObserveSkippedStatement("unsupported_sport")
			}
			if logger != nil {
				logger.InfoContext(ctx, "skipping unsupported sport", slog.String("sport", name), slog.Int("statements", len(groups[name])))
			}
			continue
		}
		out = append(out, r.runSport(ctx, logger, name, groups[name])...)
	}
	return out, nil
}

func (r *Runner) runSport(ctx context.Context, logger *slog.Logger, name string, statements []string) []pipeline.Output {
	open := r.Open
	if open == nil {
		open = OpenResources
	}
	res, err := open(ctx, r.Config, name)
	if err != nil {
		if logger != nil {
			logger.ErrorContext(ctx, "sport setup failed", slog.String("sport", name), slog.Any("error", err))
		}
		out := make([]pipeline.Output, len(statements))
		for i, statement := range statements {
			observability.ObserveStatement(name, "failed")
			out[i] = pipeline.FailureOutput(statement, name, err)
		}
		return out
	}
	defer func() {
		if err := res.Close(); err != nil && logger != nil {
			logger.WarnContext(ctx, "close sport resources", slog.String("sport", name), slog.Any("error", err))
		}
	}()

	processor := pipeline.NewProcessor(res.Adapter, pipeline.Deps{
		Completer:         r.Completer,
		CompletionOptions: r.completionOptions(),
		Embedder:          r.Embedder,
		PlayerIndex:       res.PlayerIndex,
		TeamIndex:         res.TeamIndex,
		Pipeline:          r.Config.Pipeline,
		Logger:            logger,
	})
	return processor.Process(ctx, statements)
}

// BuildIndex embeds the player and team names of one sport and stores the
// artifacts in the local vector directory. They are also uploaded to object
// storage or written to pgvector when that backend is configured.
func (r *Runner) BuildIndex(ctx context.Context, name string) error {
	logger := observability.WithRun(ctx, r.Logger)
	name = strings.ToLower(strings.TrimSpace(name))
	adapter, err := OpenAdapter(ctx, r.Config, name)
	if err != nil {
		return err
	}
	defer func() { _ = adapter.Close() }()

	localStore, err := local.New(r.Config.Vector.Dir)
	if err != nil {
		return err
	}
	stores := []storage.ObjectStore{localStore}
	var remote *s3.Store
	if r.Config.Vector.Backend == "s3" {
		if remote, err = objectStore(ctx, r.Config); err != nil {
			return err
		}
		stores = append(stores, remote)
	}

	for _, kind := range []vectorindex.EntityKind{vectorindex.KindPlayer, vectorindex.KindTeam} {
		entities, err := adapter.ListEntities(ctx, kind)
		if err != nil {
			return err
		}
		vectors, ids, err := vectorindex.Embed(ctx, r.Embedder, entities, 0)
		if err != nil {
			return fmt.Errorf("embed %s %ss: %w", name, kind, err)
		}
		for _, store := range stores {
			if err := vectorindex.Save(ctx, store, name, kind, vectors, ids); err != nil {
				return err
			}
		}
		if r.Config.Vector.Backend == "pgvector" {
			if err := r.replacePGVector(ctx, name, kind, vectors, ids); err != nil {
				return err
			}
		}
		if logger != nil {
			attrs := []any{
				slog.String("sport", name),
				slog.String("kind", string(kind)),
				slog.Int("entities", len(ids)),
			}
			if remote != nil {
				key, _ := storage.BuildArtifactKey(name, string(kind), storage.ArtifactIndex)
				attrs = append(attrs, slog.String("location", remote.URI(key)))
			}
			logger.InfoContext(ctx, "vector index built", attrs...)
		}
	}
	return nil
}

func (r *Runner) replacePGVector(ctx context.Context, name string, kind vectorindex.EntityKind, vectors [][]float32, ids []int64) error {
	db, err := pgvector.Open(ctx, r.Config.Vector.PGDSN)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	index, err := pgvectorIndex(db, r.Config, name, kind)
	if err != nil {
		return err
	}
	return index.Replace(ctx, vectors, ids)
}

func cleanStatements(statements []string) []string {
	out := make([]string, 0, len(statements))
	for _, statement := range statements {
		if statement = strings.TrimSpace(statement); statement != "" {
			out = append(out, statement)
		}
	}
	return out
}

func groupBySport(statements, labels []string) (map[string][]string, []string) {
	groups := make(map[string][]string)
	var order []string
	for i, statement := range statements {
		label := labels[i]
		if _, ok := groups[label]; !ok {
			order = append(order, label)
		}
		groups[label] = append(groups[label], statement)
	}
	return groups, order
}
