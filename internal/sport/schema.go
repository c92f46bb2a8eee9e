package sport

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/recordsql/recordsql/internal/sqltemplate"
	"github.com/recordsql/recordsql/internal/vectorindex"
)

//go:embed schemas/*.yaml
var schemaFS embed.FS

const idsPlaceholder = "{{ids}}"

type Column struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type Example struct {
	Statement     string `yaml:"statement"`
	Understanding string `yaml:"understanding"`
	SQL           string `yaml:"sql"`
}

// Schema is the per-sport vocabulary: the fact table, the identifier column of
// every entity kind the store can filter on, and the queries the adapter runs.
type Schema struct {
	Sport          string            `yaml:"sport"`
	FactTable      string            `yaml:"fact_table"`
	SeasonKey      string            `yaml:"season_key"`
	PlayerKeywords []string          `yaml:"player_keywords"`
	IDColumns      map[string]string `yaml:"id_columns"`
	NameColumns    map[string]string `yaml:"name_columns"`
	EntityQueries  map[string]string `yaml:"entity_queries"`
	StatQuery      string            `yaml:"stat_query"`
	Columns        []Column          `yaml:"columns"`
	Examples       []Example         `yaml:"examples"`
}

func LoadSchema(name string) (Schema, error) {
	raw, err := schemaFS.ReadFile("schemas/" + name + ".yaml")
	if err != nil {
		return Schema{}, fmt.Errorf("%w: %s", ErrUnsupportedSport, name)
	}
	return ParseSchema(raw)
}

func ParseSchema(raw []byte) (Schema, error) {
	var schema Schema
	if err := yaml.Unmarshal(raw, &schema); err != nil {
		return Schema{}, fmt.Errorf("decode sport schema: %w", err)
	}
	if err := schema.validate(); err != nil {
		return Schema{}, err
	}
	return schema, nil
}

func (s Schema) validate() error {
	if strings.TrimSpace(s.Sport) == "" {
		return fmt.Errorf("sport schema: sport is required")
	}
	if strings.TrimSpace(s.FactTable) == "" {
		return fmt.Errorf("sport schema %s: fact_table is required", s.Sport)
	}
	if strings.TrimSpace(s.SeasonKey) == "" {
		return fmt.Errorf("sport schema %s: season_key is required", s.Sport)
	}
	if s.IDColumns[string(sqltemplate.KindPlayer)] == "" {
		return fmt.Errorf("sport schema %s: player id column is required", s.Sport)
	}
	for kind := range s.IDColumns {
		if !sqltemplate.Kind(kind).Valid() {
			return fmt.Errorf("sport schema %s: unknown entity kind %q", s.Sport, kind)
		}
	}
	if !strings.Contains(s.StatQuery, idsPlaceholder) {
		return fmt.Errorf("sport schema %s: stat_query must contain %s", s.Sport, idsPlaceholder)
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("sport schema %s: columns are required", s.Sport)
	}
	return nil
}

// IDColumn returns the column a placeholder of the given kind filters on.
func (s Schema) IDColumn(kind sqltemplate.Kind) (string, bool) {
	column, ok := s.IDColumns[string(kind)]
	return column, ok && column != ""
}

func (s Schema) EntityQuery(kind vectorindex.EntityKind) (string, bool) {
	sqlText, ok := s.EntityQueries[string(kind)]
	return sqlText, ok && strings.TrimSpace(sqlText) != ""
}

func (s Schema) ColumnNames() []string {
	out := make([]string, 0, len(s.Columns))
	for _, column := range s.Columns {
		out = append(out, column.Name)
	}
	return out
}

// NameColumnList lists the distinct entity name columns in placeholder
// order.
func (s Schema) NameColumnList() []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(s.NameColumns))
	for _, kind := range sqltemplate.Kinds {
		column := s.NameColumns[string(kind)]
		if column == "" || seen[column] {
			continue
		}
		seen[column] = true
		out = append(out, column)
	}
	return out
}

// idColumnList lists the distinct identifier columns in placeholder order.
func (s Schema) idColumnList() []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(s.IDColumns))
	for _, kind := range sqltemplate.Kinds {
		column, ok := s.IDColumn(kind)
		if !ok || seen[column] {
			continue
		}
		seen[column] = true
		out = append(out, column)
	}
	return out
}

// statQuery expands the id list into positional parameters.
func (s Schema) statQuery(ids []int64) (string, []any) {
	params := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		params[i] = "?"
		args[i] = id
	}
	return strings.Replace(s.StatQuery, idsPlaceholder, strings.Join(params, ", "), 1), args
}
