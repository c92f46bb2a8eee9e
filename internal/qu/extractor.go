package qu

import (
	"context"
	"log/slog"

	"github.com/recordsql/recordsql/internal/completion"
	"github.com/recordsql/recordsql/internal/observability"
)

type Prompter interface {
	QUPrompt(statement string) (string, error)
}

type Extractor struct {
	Completer completion.Completer
	Prompter  Prompter
	Options   completion.Options
	Logger    *slog.Logger
}

// Extract returns one Understanding per statement, in input order. Any
// failure for a statement yields the empty Understanding.
func (e *Extractor) Extract(ctx context.Context, statements []string) []Understanding {
	out := make([]Understanding, len(statements))
	prompts := make([]string, 0, len(statements))
	slots := make([]int, 0, len(statements))
	for i, statement := range statements {
		out[i] = Empty()
		prompt, err := e.Prompter.QUPrompt(statement)
		if err != nil {
			e.warn(ctx, "build QU prompt failed", i, err)
			continue
		}
		prompts = append(prompts, prompt)
		slots = append(slots, i)
	}

	opts := e.Options
	opts.Stage = "qu"
	responses := completion.Batch(ctx, e.Completer, prompts, opts)
	for j, response := range responses {
		i := slots[j]
		if response.Err != nil {
			e.warn(ctx, "QU completion failed", i, response.Err)
			observability.IncrementFallback("qu")
			continue
		}
		understanding, err := Parse(response.Text)
		if err != nil {
			e.warn(ctx, "QU block unparseable", i, err)
			observability.IncrementFallback("qu")
			continue
		}
		out[i] = understanding
	}
	return out
}

func (e *Extractor) warn(ctx context.Context, msg string, index int, err error) {
	if e.Logger == nil {
		return
	}
	e.Logger.WarnContext(ctx, msg, slog.Int("statement_index", index), slog.Any("error", err))
}
