package templategen

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/recordsql/recordsql/internal/completion"
	"github.com/recordsql/recordsql/internal/observability"
	"github.com/recordsql/recordsql/internal/qu"
	"github.com/recordsql/recordsql/internal/sqltemplate"
)

// FallbackSQL is the trivially valid template used when no usable SQL can be
// recovered for a statement.
const FallbackSQL = "SELECT 1;"

const (
	defaultTopN = 5
	templateTag = "TemplateSQL"
)

var (
	selectPattern  = regexp.MustCompile(`(?is)SELECT\b.*?;`)
	newlinePattern = regexp.MustCompile(`[\r\n]+`)
)

type Prompter interface {
	TemplatePrompt(statement string, understanding qu.Understanding) (string, error)
	RepairPrompt(statement string, understanding qu.Understanding, previousSQL string, violations []string) (string, error)
	SupportsKind(kind sqltemplate.Kind) bool
	// NameColumns lists the entity name columns, which may only be
	// projected.
	NameColumns() []string
}

type Template struct {
	SQL string
	// Violations lists the scoping problems of the last generated answer that
	// were repaired deterministically.
	Violations []string
	Fallback   bool
}

type Generator struct {
	Completer completion.Completer
	Prompter  Prompter
	Options   completion.Options
	TopN      int
	// Retries is the number of re-asks for a template that breaks the
	// scoping rules.
	Retries int
	Logger  *slog.Logger
}

type attempt struct {
	sql        string
	violations []sqltemplate.Violation
	done       bool
}

// Generate returns one template per statement. Every returned template
// passes Validate apart from repairable violations it lists.
func (g *Generator) Generate(ctx context.Context, statements []string, understandings []qu.Understanding) []Template {
	out := make([]Template, len(statements))
	attempts := make([]attempt, len(statements))

	prompts := make([]string, 0, len(statements))
	indexes := make([]int, 0, len(statements))
	for i, statement := range statements {
		prompt, err := g.Prompter.TemplatePrompt(statement, understandingAt(understandings, i))
		if err != nil {
			g.warn(ctx, "build template prompt failed", i, err)
			out[i] = fallbackTemplate()
			attempts[i].done = true
			continue
		}
		prompts = append(prompts, prompt)
		indexes = append(indexes, i)
	}
	g.collect(ctx, prompts, indexes, statements, understandings, attempts, out)

	for retry := 0; retry < g.Retries; retry++ {
		prompts = prompts[:0]
		indexes = indexes[:0]
		for i := range attempts {
			if attempts[i].done || len(attempts[i].violations) == 0 {
				continue
			}
			prompt, err := g.Prompter.RepairPrompt(statements[i], understandingAt(understandings, i), attempts[i].sql, sqltemplate.Messages(attempts[i].violations))
			if err != nil {
				g.warn(ctx, "build template repair prompt failed", i, err)
				continue
			}
			prompts = append(prompts, prompt)
			indexes = append(indexes, i)
		}
		if len(prompts) == 0 {
			break
		}
		g.collect(ctx, prompts, indexes, statements, understandings, attempts, out)
	}

	for i := range attempts {
		if attempts[i].done {
			continue
		}
		out[i] = g.finish(ctx, i, attempts[i], understandingAt(understandings, i), statements[i])
	}
	return out
}

// collect dispatches prompts and records the extracted SQL of each answer. An
// answer without usable SQL keeps the previous attempt, or falls back when
// there is none.
func (g *Generator) collect(ctx context.Context, prompts []string, indexes []int, statements []string, understandings []qu.Understanding, attempts []attempt, out []Template) {
	if len(prompts) == 0 {
		return
	}
	opts := g.Options
	opts.Stage = "template"
	responses := completion.Batch(ctx, g.Completer, prompts, opts)
	for j, response := range responses {
		i := indexes[j]
		sqlText, ok := "", false
		if response.Err != nil {
			g.warn(ctx, "template completion failed", i, response.Err)
		} else if sqlText, ok = ExtractSQL(response.Text); !ok {
			g.warn(ctx, "template answer holds no SQL", i, nil)
		}
		if !ok {
			if attempts[i].sql == "" {
				observability.IncrementFallback("template")
				out[i] = fallbackTemplate()
				attempts[i].done = true
			}
			continue
		}
		attempts[i].sql = sqlText
		attempts[i].violations = sqltemplate.Validate(sqlText, g.scope(statements[i], understandingAt(understandings, i)))
	}
}

func (g *Generator) finish(ctx context.Context, index int, a attempt, understanding qu.Understanding, statement string) Template {
	if len(a.violations) == 0 {
		return Template{SQL: a.sql}
	}
	repaired := g.repair(a.sql, a.violations)
	remaining := sqltemplate.Validate(repaired, g.scope(statement, understanding))
	for _, violation := range remaining {
		if violation.Fatal() {
			if g.Logger != nil {
				g.Logger.WarnContext(ctx, "template unrepairable, using fallback",
					slog.Int("statement_index", index),
					slog.String("sql", repaired),
					slog.Any("violations", sqltemplate.Messages(remaining)),
				)
			}
			observability.IncrementFallback("template")
			return Template{SQL: FallbackSQL, Violations: sqltemplate.Messages(a.violations), Fallback: true}
		}
	}
	observability.IncrementFallback("template_repair")
	return Template{SQL: repaired, Violations: sqltemplate.Messages(a.violations)}
}

// repair strips conditions holding rejected or illegal placeholders or name
// columns and sets LIMIT to the candidate count. A missing ORDER BY is left to
// the re-asks.
func (g *Generator) repair(sqlText string, violations []sqltemplate.Violation) string {
	if kinds := sqltemplate.DisallowedKinds(violations); len(kinds) > 0 {
		sqlText = sqltemplate.RemovePlaceholderConditions(sqlText, kinds...)
	}
	if len(sqltemplate.IllegalTokens(sqlText)) > 0 {
		sqlText = sqltemplate.RemoveConditions(sqlText, func(condition string) bool {
			return len(sqltemplate.IllegalTokens(condition)) > 0
		})
	}
	if columns := g.Prompter.NameColumns(); hasRule(violations, sqltemplate.RuleNameColumn) {
		sqlText = sqltemplate.RemoveConditions(sqlText, func(condition string) bool {
			return len(sqltemplate.NameColumnsIn(condition, columns)) > 0
		})
	}
	return sqltemplate.EnsureLimit(sqlText, g.topN())
}

func hasRule(violations []sqltemplate.Violation, rule sqltemplate.Rule) bool {
	for _, violation := range violations {
		if violation.Rule == rule {
			return true
		}
	}
	return false
}

func (g *Generator) scope(statement string, understanding qu.Understanding) sqltemplate.Scope {
	present := make(map[sqltemplate.Kind]bool, len(sqltemplate.Kinds))
	for _, kind := range sqltemplate.Kinds {
		present[kind] = len(understanding.Entities(kind)) > 0
	}
	return sqltemplate.Scope{
		Names:          understanding.Names(),
		NameColumns:    g.Prompter.NameColumns(),
		Present:        present,
		Supported:      g.Prompter.SupportsKind,
		Context:        understanding.RecordContextText() + " " + strings.ToLower(statement),
		RequireLimit:   true,
		RequireOrderBy: true,
		TopN:           g.topN(),
	}
}

func (g *Generator) topN() int {
	if g.TopN <= 0 {
		return defaultTopN
	}
	return g.TopN
}

// ExtractSQL pulls the template out of a completion: the TemplateSQL block,
// else the first SELECT statement. Newlines are collapsed to spaces.
func ExtractSQL(text string) (string, bool) {
	body, err := completion.ExtractBlock(text, templateTag)
	if err != nil || !strings.Contains(strings.ToUpper(body), "SELECT") {
		match := selectPattern.FindString(completion.StripMarkdownFence(text))
		if match == "" {
			return "", false
		}
		body = match
	}
	body = strings.TrimSpace(newlinePattern.ReplaceAllString(body, " "))
	if body == "" {
		return "", false
	}
	return body, true
}

func fallbackTemplate() Template {
	return Template{SQL: FallbackSQL, Fallback: true}
}

func understandingAt(understandings []qu.Understanding, i int) qu.Understanding {
	if i < len(understandings) {
		return understandings[i]
	}
	return qu.Empty()
}

func (g *Generator) warn(ctx context.Context, msg string, index int, err error) {
	if g.Logger == nil {
		return
	}
	attrs := []any{slog.Int("statement_index", index)}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	g.Logger.WarnContext(ctx, msg, attrs...)
}
