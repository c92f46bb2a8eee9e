package sport

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/recordsql/recordsql/internal/qu"
	"github.com/recordsql/recordsql/internal/query"
	"github.com/recordsql/recordsql/internal/resolve"
	"github.com/recordsql/recordsql/internal/sqltemplate"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"inc":   func(i int) int { return i + 1 },
	"upper": strings.ToUpper,
	"join":  strings.Join,
	"trim":  strings.TrimSpace,
}).ParseFS(promptFS, "prompts/*.tmpl"))

var placeholderRules = map[sqltemplate.Kind]string{
	sqltemplate.KindPlayer:    `only if the record is personal to the player ("his best", "career-best", "[Player]'s highest")`,
	sqltemplate.KindTeam:      `only if the record is about performances for or by a specific team ("for India", "by Lakers players")`,
	sqltemplate.KindRivalTeam: `only if the record is about performances against a specific opponent ("against Pakistan")`,
	sqltemplate.KindVenue:     `only if the record is venue specific ("at Eden Gardens")`,
}

type placeholderRule struct {
	Token  string
	Column string
	Rule   string
}

type templatePromptData struct {
	Sport         string
	Statement     string
	Understanding string
	TopN          int
	Placeholders  []placeholderRule
	IDColumns     []string
	FactTable     string
	ColumnNames   []string
	Columns       []Column
	Examples      []Example
	PreviousSQL   string
	Violations    []string
}

func render(name string, data any) (string, error) {
	var b strings.Builder
	if err := prompts.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", strings.TrimSuffix(name, ".tmpl"), err)
	}
	return b.String(), nil
}

func (b *base) QUPrompt(statement string) (string, error) {
	return render("qu.tmpl", struct {
		Sport     string
		SeasonKey string
		Statement string
		Examples  []Example
	}{b.schema.Sport, b.schema.SeasonKey, statement, b.schema.Examples})
}

func (b *base) TemplatePrompt(statement string, understanding qu.Understanding) (string, error) {
	return b.RepairPrompt(statement, understanding, "", nil)
}

// RepairPrompt re-asks for a template, listing the problems of the previous
// answer. With no violations it is the plain template prompt.
func (b *base) RepairPrompt(statement string, understanding qu.Understanding, previousSQL string, violations []string) (string, error) {
	encoded, err := json.Marshal(understanding)
	if err != nil {
		return "", fmt.Errorf("encode query understanding: %w", err)
	}
	rules := make([]placeholderRule, 0, len(sqltemplate.Kinds))
	for _, kind := range sqltemplate.Kinds {
		column, ok := b.schema.IDColumn(kind)
		if !ok {
			continue
		}
		rules = append(rules, placeholderRule{Token: kind.Token(), Column: column, Rule: placeholderRules[kind]})
	}
	return render("template.tmpl", templatePromptData{
		Sport:         b.schema.Sport,
		Statement:     statement,
		Understanding: string(encoded),
		TopN:          b.topN,
		Placeholders:  rules,
		IDColumns:     b.schema.idColumnList(),
		FactTable:     b.schema.FactTable,
		ColumnNames:   b.schema.ColumnNames(),
		Columns:       b.schema.Columns,
		Examples:      b.schema.Examples,
		PreviousSQL:   previousSQL,
		Violations:    violations,
	})
}

func (b *base) ResolvePrompt(understanding qu.Understanding, templateSQL string, metadata resolve.Metadata) (string, error) {
	encodedQU, err := json.Marshal(understanding)
	if err != nil {
		return "", fmt.Errorf("encode query understanding: %w", err)
	}
	if metadata == nil {
		metadata = resolve.Metadata{}
	}
	encodedMetadata, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("encode entity metadata: %w", err)
	}
	exampleColumn, ok := b.schema.IDColumn(sqltemplate.KindTeam)
	if !ok {
		exampleColumn, _ = b.schema.IDColumn(sqltemplate.KindPlayer)
	}
	return render("resolve.tmpl", struct {
		TemplateSQL   string
		Understanding string
		Metadata      string
		FactTable     string
		ExampleColumn string
	}{templateSQL, string(encodedQU), string(encodedMetadata), b.schema.FactTable, exampleColumn})
}

func (b *base) DisambiguationPrompt(statement, entity string, stats query.Result) (string, error) {
	encoded, err := json.Marshal(statRecords(stats))
	if err != nil {
		return "", fmt.Errorf("encode candidate stats: %w", err)
	}
	idColumn, _ := b.schema.IDColumn(sqltemplate.KindPlayer)
	return render("disambiguation.tmpl", struct {
		Sport     string
		Statement string
		Entity    string
		Stats     string
		IDColumn  string
	}{b.schema.Sport, statement, entity, string(encoded), idColumn})
}

func statRecords(stats query.Result) []map[string]any {
	out := make([]map[string]any, 0, len(stats.Rows))
	for _, row := range stats.Rows {
		record := make(map[string]any, len(stats.Columns))
		for i, column := range stats.Columns {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		out = append(out, record)
	}
	return out
}
