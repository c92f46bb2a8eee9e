package resolve

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/recordsql/recordsql/internal/completion"
	"github.com/recordsql/recordsql/internal/qu"
	"github.com/recordsql/recordsql/internal/query"
	"github.com/recordsql/recordsql/internal/vectorindex"
)

// fakeEmbedder maps every known name to a one-dimensional vector.
type fakeEmbedder struct {
	vectors map[string]float32
	err     error
}

func (f fakeEmbedder) EmbedText(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{f.vectors[text]}
	}
	return out, nil
}

// fakeIndex returns scripted candidates keyed by the query vector.
type fakeIndex struct {
	candidates map[float32][]vectorindex.Candidate
}

func (f fakeIndex) Search(_ context.Context, vector []float32, k int) ([]vectorindex.Candidate, error) {
	candidates := f.candidates[vector[0]]
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

type fakeStats struct {
	rows  int
	err   error
	calls int
}

func (f *fakeStats) LookupStats(_ context.Context, ids []int64) (query.Result, error) {
	f.calls++
	if f.err != nil {
		return query.Result{}, f.err
	}
	result := query.Result{Columns: []string{"player_id", "player_name", "total_runs"}}
	for i := 0; i < f.rows && i < len(ids); i++ {
		result.Rows = append(result.Rows, []any{ids[i], "candidate", int64(100 * (i + 1))})
	}
	return result, nil
}

type fakePrompter struct{}

func (fakePrompter) DisambiguationPrompt(statement, entity string, _ query.Result) (string, error) {
	return entity + "|" + statement, nil
}

type recordingCompleter struct {
	mu      sync.Mutex
	answers map[string]string
	prompts []string
}

func (r *recordingCompleter) Complete(_ context.Context, prompt string) (string, error) {
	r.mu.Lock()
	r.prompts = append(r.prompts, prompt)
	r.mu.Unlock()
	entity, _, _ := strings.Cut(prompt, "|")
	answer, ok := r.answers[entity]
	if !ok || answer == "error" {
		return "", errors.New("completion unavailable")
	}
	return answer, nil
}

func newTestResolver(completer completion.Completer, stats StatsLookup) *Resolver {
	return &Resolver{
		Embedder: fakeEmbedder{vectors: map[string]float32{
			"Virat Kohli": 1,
			"Mike Smith":  2,
			"Nobody":      3,
			"India":       10,
			"Nowhere FC":  11,
			"Joe Root":    4,
			"Jordan":      5,
		}},
		PlayerIndex: fakeIndex{candidates: map[float32][]vectorindex.Candidate{
			1: {{ID: 253802, Distance: 0.01}, {ID: 1001, Distance: 0.4}, {ID: 1002, Distance: 0.6}},
			2: {{ID: 501, Distance: 0.02}, {ID: 502, Distance: 0.02}},
			4: {{ID: 303669, Distance: 0.01}},
			5: {{ID: 23, Distance: 0.01}},
		}},
		TeamIndex: fakeIndex{candidates: map[float32][]vectorindex.Candidate{
			10: {{ID: 6, Distance: 0.0}, {ID: 60, Distance: 0.3}},
			5:  {{ID: 41, Distance: 0.0}},
		}},
		Stats:     stats,
		Prompter:  fakePrompter{},
		Completer: completer,
		TopK:      3,
	}
}

func TestResolveTeamsTakeTopCandidate(t *testing.T) {
	completer := &recordingCompleter{}
	resolver := newTestResolver(completer, &fakeStats{rows: 2})
	understanding := qu.Understanding{Player: []string{"Joe Root"}, Team: []string{"India"}, RecordContext: []string{"career-best"}}

	got := resolver.Resolve(context.Background(), []string{"Joe Root's career-best for India"}, []qu.Understanding{understanding})
	if id, ok := got[0].ID("India"); !ok || id != 6 {
		t.Fatalf("India = %v, %v", id, ok)
	}
	if id, ok := got[0].ID("Joe Root"); !ok || id != 303669 {
		t.Fatalf("Joe Root = %v, %v", id, ok)
	}
	if len(completer.prompts) != 0 {
		t.Fatalf("completion prompts = %v, want none", completer.prompts)
	}
}

func TestResolvePlayerWinsNameSharedWithTeam(t *testing.T) {
	resolver := newTestResolver(&recordingCompleter{}, &fakeStats{rows: 2})
	understanding := qu.Understanding{Player: []string{"Jordan"}, RivalTeam: []string{"Jordan"}, RecordContext: []string{"his best against team"}}

	got := resolver.Resolve(context.Background(), []string{"Jordan's best against Jordan"}, []qu.Understanding{understanding})
	if id, ok := got[0].ID("Jordan"); !ok || id != 23 {
		t.Fatalf("Jordan = %v, %v, want the player id 23", id, ok)
	}
}

func TestResolveEmptyCandidateSetIsNull(t *testing.T) {
	resolver := newTestResolver(&recordingCompleter{}, &fakeStats{rows: 2})
	understanding := qu.Understanding{Player: []string{"Nobody"}, RivalTeam: []string{"Nowhere FC"}}

	got := resolver.Resolve(context.Background(), []string{"s"}, []qu.Understanding{understanding})
	for _, name := range []string{"Nobody", "Nowhere FC"} {
		value, present := got[0][name]
		if !present || value != nil {
			t.Fatalf("metadata[%q] = %v (present %v), want explicit null", name, value, present)
		}
	}
}

func TestResolveSentinelFallsBackToTopCandidate(t *testing.T) {
	completer := &recordingCompleter{answers: map[string]string{"Mike Smith": "<ID>-1</ID>"}}
	resolver := newTestResolver(completer, &fakeStats{rows: 2})

	got := resolver.Resolve(context.Background(), []string{"Mike Smith scored"}, []qu.Understanding{{Player: []string{"Mike Smith"}}})
	if id, ok := got[0].ID("Mike Smith"); !ok || id != 501 {
		t.Fatalf("Mike Smith = %v, %v, want top candidate 501", id, ok)
	}
	if len(completer.prompts) != 1 {
		t.Fatalf("completion prompts = %d, want 1", len(completer.prompts))
	}
}

func TestResolveDisambiguationChoosesCandidate(t *testing.T) {
	completer := &recordingCompleter{answers: map[string]string{
		"Virat Kohli": "1001\n</ID>",
		"Mike Smith":  "<ID>999</ID>",
	}}
	resolver := newTestResolver(completer, &fakeStats{rows: 3})
	statements := []string{"Virat Kohli hit a century", "Mike Smith took five wickets"}
	understandings := []qu.Understanding{{Player: []string{"Virat Kohli"}}, {Player: []string{"Mike Smith"}}}

	got := resolver.Resolve(context.Background(), statements, understandings)
	if id, _ := got[0].ID("Virat Kohli"); id != 1001 {
		t.Fatalf("Virat Kohli = %d, want 1001", id)
	}
	if id, _ := got[1].ID("Mike Smith"); id != 501 {
		t.Fatalf("Mike Smith = %d, want top candidate for out-of-set answer", id)
	}
	if len(completer.prompts) != 2 {
		t.Fatalf("completion prompts = %d", len(completer.prompts))
	}
}

func TestResolveSkipsDisambiguationWithoutStats(t *testing.T) {
	tests := []struct {
		name  string
		stats *fakeStats
	}{
		{name: "empty stats", stats: &fakeStats{}},
		{name: "stat lookup error", stats: &fakeStats{err: errors.New("no such table")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			completer := &recordingCompleter{}
			resolver := newTestResolver(completer, tc.stats)
			got := resolver.Resolve(context.Background(), []string{"s"}, []qu.Understanding{{Player: []string{"Virat Kohli"}}})
			if id, _ := got[0].ID("Virat Kohli"); id != 253802 {
				t.Fatalf("Virat Kohli = %d", id)
			}
			if tc.stats.calls != 1 || len(completer.prompts) != 0 {
				t.Fatalf("stat calls = %d, prompts = %d", tc.stats.calls, len(completer.prompts))
			}
		})
	}
}

func TestResolveCompletionFailureKeepsTopCandidate(t *testing.T) {
	completer := &recordingCompleter{answers: map[string]string{"Virat Kohli": "error"}}
	resolver := newTestResolver(completer, &fakeStats{rows: 2})
	got := resolver.Resolve(context.Background(), []string{"s"}, []qu.Understanding{{Player: []string{"Virat Kohli"}}})
	if id, _ := got[0].ID("Virat Kohli"); id != 253802 {
		t.Fatalf("Virat Kohli = %d", id)
	}
}

func TestResolveEmbeddingFailureLeavesEntriesNull(t *testing.T) {
	resolver := newTestResolver(&recordingCompleter{}, &fakeStats{rows: 2})
	resolver.Embedder = fakeEmbedder{err: errors.New("embedding service down")}
	understanding := qu.Understanding{Player: []string{"Virat Kohli"}, Team: []string{"India"}}

	got := resolver.Resolve(context.Background(), []string{"s"}, []qu.Understanding{understanding})
	if len(got[0]) != 2 || got[0]["Virat Kohli"] != nil || got[0]["India"] != nil {
		t.Fatalf("metadata = %v", got[0])
	}
}

func TestResolveMetadataKeysComeFromUnderstanding(t *testing.T) {
	resolver := newTestResolver(&recordingCompleter{}, &fakeStats{})
	understandings := []qu.Understanding{
		{Player: []string{"Virat Kohli", "Virat Kohli"}, Team: []string{"India"}, RivalTeam: []string{"Nowhere FC"}, Venue: []string{"Eden Gardens"}},
		qu.Empty(),
	}
	got := resolver.Resolve(context.Background(), []string{"a", "b"}, understandings)
	if len(got) != 2 {
		t.Fatalf("Resolve() returned %d metadata", len(got))
	}
	for i, metadata := range got {
		allowed := map[string]bool{}
		for _, name := range append(append(append([]string{}, understandings[i].Player...), understandings[i].Team...), understandings[i].RivalTeam...) {
			allowed[name] = true
		}
		for key := range metadata {
			if !allowed[key] {
				t.Fatalf("metadata[%d] has key %q outside the understanding", i, key)
			}
		}
	}
	if _, ok := got[0]["Eden Gardens"]; ok {
		t.Fatal("venue strings should not be resolved")
	}
	if len(got[0]) != 3 {
		t.Fatalf("metadata = %v, want one entry per distinct name", got[0])
	}
}
