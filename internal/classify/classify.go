package classify

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/recordsql/recordsql/internal/completion"
	"github.com/recordsql/recordsql/internal/observability"
)

const (
	LabelRecord    = "Record"
	LabelNonRecord = "Non-Record"
	UnknownSport   = "unknown"
)

//go:embed record_prompt.txt
var recordPrompt string

var labelPattern = regexp.MustCompile(`(?i)^\s*"?(non-?\s*record|record)\b`)

// Classifier labels statements with two completion-backed passes: record or
// not, then which sport.
type Classifier struct {
	Completer completion.Completer
	Options   completion.Options
	// Sports lists the labels the sport pass may return.
	Sports []string
	Logger *slog.Logger
}

// Records reports for every statement whether it claims a record. A failed
// call counts as Non-Record.
func (c *Classifier) Records(ctx context.Context, statements []string) []bool {
	prompts := make([]string, len(statements))
	for i, statement := range statements {
		prompts[i] = RecordPrompt(statement)
	}
	opts := c.Options
	opts.Stage = "classify_record"
	out := make([]bool, len(statements))
	for i, response := range completion.Batch(ctx, c.Completer, prompts, opts) {
		if response.Err != nil {
			c.warn(ctx, "record classification failed", i, response.Err)
			continue
		}
		out[i] = ParseRecordLabel(response.Text) == LabelRecord
	}
	return out
}

// SportsOf returns the sport label of every statement, or UnknownSport.
func (c *Classifier) SportsOf(ctx context.Context, statements []string) []string {
	prompts := make([]string, len(statements))
	for i, statement := range statements {
		prompts[i] = SportPrompt(statement, c.Sports)
	}
	opts := c.Options
	opts.Stage = "classify_sport"
	out := make([]string, len(statements))
	for i, response := range completion.Batch(ctx, c.Completer, prompts, opts) {
		out[i] = UnknownSport
		if response.Err != nil {
			c.warn(ctx, "sport classification failed", i, response.Err)
			continue
		}
		out[i] = ParseSport(response.Text, c.Sports)
	}
	return out
}

func RecordPrompt(statement string) string {
	quoted, _ := json.Marshal(statement)
	return recordPrompt + string(quoted) + " ->"
}

func SportPrompt(statement string, sports []string) string {
	return fmt.Sprintf("Classify the following sports insight statement into one of these categories: %s.\nRespond with ONLY the sport name, nothing else.\n\nStatement: %s\n\nSport:",
		strings.Join(sports, ", "), statement)
}

// ParseRecordLabel reads the label at the start of a completion. Anything
// unrecognised is Non-Record.
func ParseRecordLabel(text string) string {
	if match := labelPattern.FindStringSubmatch(text); match != nil {
		label := strings.ToLower(strings.ReplaceAll(match[1], " ", ""))
		if strings.HasPrefix(label, "non") {
			return LabelNonRecord
		}
		return LabelRecord
	}
	head := strings.ToLower(strings.TrimSpace(text))
	if strings.HasPrefix(head, "rec") {
		return LabelRecord
	}
	return LabelNonRecord
}

// ParseSport matches the first line of a completion, up to the first comma or
// period, against the known sports.
func ParseSport(text string, sports []string) string {
	cleaned := strings.ToLower(strings.TrimSpace(text))
	cleaned, _, _ = strings.Cut(cleaned, "\n")
	cleaned, _, _ = strings.Cut(cleaned, ",")
	cleaned, _, _ = strings.Cut(cleaned, ".")
	cleaned = strings.TrimSpace(cleaned)
	for _, sport := range sports {
		if strings.HasPrefix(cleaned, strings.ToLower(sport)) {
			return strings.ToLower(sport)
		}
	}
	return UnknownSport
}

func (c *Classifier) warn(ctx context.Context, msg string, index int, err error) {
	observability.IncrementFallback("classify")
	if c.Logger == nil {
		return
	}
	c.Logger.WarnContext(ctx, msg, slog.Int("statement_index", index), slog.Any("error", err))
}
