package placeholder

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/recordsql/recordsql/internal/completion"
	"github.com/recordsql/recordsql/internal/observability"
	"github.com/recordsql/recordsql/internal/qu"
	"github.com/recordsql/recordsql/internal/resolve"
	"github.com/recordsql/recordsql/internal/sqltemplate"
)

type Path string

const (
	PathNoop          Path = "noop"
	PathCompletion    Path = "completion"
	PathDeterministic Path = "deterministic"
)

var (
	newlinePattern = regexp.MustCompile(`[\r\n]+`)
	queryStart     = regexp.MustCompile(`(?i)^\s*(SELECT|WITH)\b`)
)

// substitutionOrder is the order in which entity kinds are bound on the
// deterministic path.
var substitutionOrder = []sqltemplate.Kind{
	sqltemplate.KindRivalTeam,
	sqltemplate.KindVenue,
	sqltemplate.KindTeam,
	sqltemplate.KindPlayer,
}

type Prompter interface {
	ResolvePrompt(understanding qu.Understanding, templateSQL string, metadata resolve.Metadata) (string, error)
}

// Final is an executable query with no placeholder tokens left.
type Final struct {
	SQL  string
	Path Path
}

type Resolver struct {
	Completer completion.Completer
	Prompter  Prompter
	Options   completion.Options
	// Deterministic skips the completion path.
	Deterministic  bool
	PlayerKeywords []string
	Logger         *slog.Logger
}

// Resolve binds every template to the resolved entity ids of its statement.
func (r *Resolver) Resolve(ctx context.Context, understandings []qu.Understanding, templates []string, metadata []resolve.Metadata) []Final {
	out := make([]Final, len(templates))
	prompts := make([]string, 0, len(templates))
	indexes := make([]int, 0, len(templates))

	for i, templateSQL := range templates {
		if !sqltemplate.HasPlaceholders(templateSQL) {
			out[i] = Final{SQL: templateSQL, Path: PathNoop}
			continue
		}
		if r.Deterministic || r.Completer == nil || r.Prompter == nil {
			out[i] = r.deterministic(i, templateSQL, understandings, metadata)
			continue
		}
		prompt, err := r.Prompter.ResolvePrompt(at(understandings, i), templateSQL, metadataAt(metadata, i))
		if err != nil {
			r.warn(ctx, "build resolve prompt failed", i, err)
			out[i] = r.deterministic(i, templateSQL, understandings, metadata)
			continue
		}
		prompts = append(prompts, prompt)
		indexes = append(indexes, i)
	}
	if len(prompts) == 0 {
		return out
	}

	opts := r.Options
	opts.Stage = "resolve"
	responses := completion.Batch(ctx, r.Completer, prompts, opts)
	for j, response := range responses {
		i := indexes[j]
		if response.Err != nil {
			r.warn(ctx, "resolve completion failed", i, response.Err)
			out[i] = r.deterministic(i, templates[i], understandings, metadata)
			continue
		}
		sqlText, ok := acceptCompletion(response.Text)
		if !ok {
			r.warn(ctx, "resolve answer rejected", i, nil)
			out[i] = r.deterministic(i, templates[i], understandings, metadata)
			continue
		}
		out[i] = Final{SQL: sqlText, Path: PathCompletion}
	}
	return out
}

func (r *Resolver) deterministic(i int, templateSQL string, understandings []qu.Understanding, metadata []resolve.Metadata) Final {
	observability.IncrementFallback("resolve")
	return Final{
		SQL:  Deterministic(templateSQL, at(understandings, i), metadataAt(metadata, i), r.PlayerKeywords),
		Path: PathDeterministic,
	}
}

// Deterministic binds placeholders without a completion call. Each kind takes
// the id of its first resolved entity; player ids are bound only when the
// record context mentions a player keyword or is personal to the player. Conditions still holding a
// placeholder are removed and any token left elsewhere becomes NULL.
func Deterministic(templateSQL string, understanding qu.Understanding, metadata resolve.Metadata, playerKeywords []string) string {
	sqlText := templateSQL
	for _, kind := range substitutionOrder {
		if !strings.Contains(sqlText, kind.Token()) {
			continue
		}
		if kind == sqltemplate.KindPlayer && !mentionsPlayer(understanding, playerKeywords) {
			continue
		}
		for _, name := range understanding.Entities(kind) {
			if id, ok := metadata.ID(name); ok {
				sqlText = sqltemplate.Substitute(sqlText, kind, id)
				break
			}
		}
	}
	sqlText = sqltemplate.RemovePlaceholderConditions(sqlText)
	return sqltemplate.NullifyRemaining(sqlText)
}

func mentionsPlayer(understanding qu.Understanding, keywords []string) bool {
	recordContext := understanding.RecordContextText()
	if sqltemplate.IsSelfReferential(recordContext) {
		return true
	}
	for _, keyword := range keywords {
		if keyword != "" && strings.Contains(recordContext, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// acceptCompletion extracts the SQL block and accepts it only when it reads
// as a query and no placeholder survived.
func acceptCompletion(text string) (string, bool) {
	body, err := completion.ExtractBlock(text, "SQL")
	if err != nil {
		return "", false
	}
	body = strings.TrimSpace(newlinePattern.ReplaceAllString(body, " "))
	if !queryStart.MatchString(body) || sqltemplate.HasPlaceholders(body) {
		return "", false
	}
	if strings.Count(body, "(") != strings.Count(body, ")") {
		return "", false
	}
	return body, true
}

func at(understandings []qu.Understanding, i int) qu.Understanding {
	if i < len(understandings) {
		return understandings[i]
	}
	return qu.Empty()
}

func metadataAt(metadata []resolve.Metadata, i int) resolve.Metadata {
	if i < len(metadata) && metadata[i] != nil {
		return metadata[i]
	}
	return resolve.Metadata{}
}

func (r *Resolver) warn(ctx context.Context, msg string, index int, err error) {
	if r.Logger == nil {
		return
	}
	attrs := []any{slog.Int("statement_index", index)}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	r.Logger.WarnContext(ctx, msg, attrs...)
}
