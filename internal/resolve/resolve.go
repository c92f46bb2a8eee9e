package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/recordsql/recordsql/internal/completion"
	"github.com/recordsql/recordsql/internal/embedding"
	"github.com/recordsql/recordsql/internal/observability"
	"github.com/recordsql/recordsql/internal/qu"
	"github.com/recordsql/recordsql/internal/query"
	"github.com/recordsql/recordsql/internal/vectorindex"
)

const noMatchSentinel = -1

// Metadata maps each distinct player, team and rival team string of a
// statement to its resolved identifier. A nil value means unresolved.
type Metadata map[string]*int64

func (m Metadata) ID(name string) (int64, bool) {
	id, ok := m[name]
	if !ok || id == nil {
		return 0, false
	}
	return *id, true
}

type StatsLookup interface {
	LookupStats(ctx context.Context, ids []int64) (query.Result, error)
}

type Prompter interface {
	DisambiguationPrompt(statement, entity string, stats query.Result) (string, error)
}

type Resolver struct {
	Embedder    embedding.Embedder
	PlayerIndex vectorindex.Index
	TeamIndex   vectorindex.Index
	Stats       StatsLookup
	Prompter    Prompter
	Completer   completion.Completer
	Options     completion.Options
	TopK        int
	Logger      *slog.Logger
}

type pendingEntity struct {
	statement  int
	name       string
	candidates []vectorindex.Candidate
	prompt     string
}

// Resolve returns one Metadata per statement. Lookup failures leave entries
// nil and never abort the batch.
func (r *Resolver) Resolve(ctx context.Context, statements []string, understandings []qu.Understanding) []Metadata {
	r.ensureDefaults()
	out := make([]Metadata, len(understandings))
	pending := make([]pendingEntity, 0)

	for i, understanding := range understandings {
		metadata := Metadata{}
		statement := ""
		if i < len(statements) {
			statement = statements[i]
		}

		players := distinct(understanding.Player)
		playerCandidates := r.search(ctx, vectorindex.KindPlayer, r.PlayerIndex, players)
		for _, player := range players {
			candidates := playerCandidates[player]
			if len(candidates) == 0 {
				metadata[player] = nil
				observability.ObserveEntityResolution("player", "unresolved")
				continue
			}
			if len(candidates) == 1 {
				metadata[player] = ptr(candidates[0].ID)
				observability.ObserveEntityResolution("player", "single_candidate")
				continue
			}
			prompt, ok := r.disambiguationPrompt(ctx, statement, player, candidates)
			if !ok {
				metadata[player] = ptr(candidates[0].ID)
				observability.ObserveEntityResolution("player", "top_candidate")
				continue
			}
			metadata[player] = ptr(candidates[0].ID)
			pending = append(pending, pendingEntity{statement: i, name: player, candidates: candidates, prompt: prompt})
		}

		teams := distinct(append(append([]string{}, understanding.Team...), understanding.RivalTeam...))
		teamCandidates := r.search(ctx, vectorindex.KindTeam, r.TeamIndex, teams)
		for _, team := range teams {
			if metadata[team] != nil {
				r.logWarn(ctx, "entity named as both player and team, keeping player id",
					slog.Int("statement_index", i),
					slog.String("entity", team),
				)
				continue
			}
			candidates := teamCandidates[team]
			if len(candidates) == 0 {
				metadata[team] = nil
				observability.ObserveEntityResolution("team", "unresolved")
				continue
			}
			metadata[team] = ptr(candidates[0].ID)
			observability.ObserveEntityResolution("team", "top_candidate")
		}
		out[i] = metadata
	}

	r.disambiguate(ctx, pending, out)
	return out
}

func (r *Resolver) ensureDefaults() {
	if r.TopK <= 0 {
		r.TopK = 3
	}
}

func (r *Resolver) search(ctx context.Context, kind vectorindex.EntityKind, index vectorindex.Index, names []string) map[string][]vectorindex.Candidate {
	out := make(map[string][]vectorindex.Candidate, len(names))
	if len(names) == 0 {
		return out
	}
	if index == nil || r.Embedder == nil {
		r.logWarn(ctx, "entity index unavailable", slog.String("kind", string(kind)))
		return out
	}
	vectors, err := r.Embedder.EmbedText(ctx, names)
	if err != nil {
		r.logWarn(ctx, "embed entity names failed", slog.String("kind", string(kind)), slog.Any("error", err))
		return out
	}
	if len(vectors) != len(names) {
		r.logWarn(ctx, "embedder returned wrong vector count", slog.String("kind", string(kind)), slog.Int("got", len(vectors)), slog.Int("want", len(names)))
		return out
	}
	for i, name := range names {
		candidates, err := index.Search(ctx, vectors[i], r.TopK)
		if err != nil {
			r.logWarn(ctx, "entity search failed", slog.String("kind", string(kind)), slog.String("entity", name), slog.Any("error", err))
			continue
		}
		out[name] = candidates
	}
	return out
}

func (r *Resolver) disambiguationPrompt(ctx context.Context, statement, name string, candidates []vectorindex.Candidate) (string, bool) {
	if r.Stats == nil || r.Prompter == nil || r.Completer == nil {
		return "", false
	}
	ids := make([]int64, len(candidates))
	for i, candidate := range candidates {
		ids[i] = candidate.ID
	}
	stats, err := r.Stats.LookupStats(ctx, ids)
	if err != nil {
		r.logWarn(ctx, "candidate stat lookup failed", slog.String("entity", name), slog.Any("error", err))
		return "", false
	}
	if len(stats.Rows) == 0 {
		return "", false
	}
	prompt, err := r.Prompter.DisambiguationPrompt(statement, name, stats)
	if err != nil {
		r.logWarn(ctx, "build disambiguation prompt failed", slog.String("entity", name), slog.Any("error", err))
		return "", false
	}
	return prompt, true
}

// disambiguate sends every pending entity of the batch in one batched call.
// The sentinel, an unparseable answer, or an id outside the candidate set
// keeps the top-ranked candidate already stored in the metadata.
func (r *Resolver) disambiguate(ctx context.Context, pending []pendingEntity, out []Metadata) {
	if len(pending) == 0 {
		return
	}
	prompts := make([]string, len(pending))
	for i, entity := range pending {
		prompts[i] = entity.prompt
	}
	opts := r.Options
	opts.Stage = "disambiguation"
	responses := completion.Batch(ctx, r.Completer, prompts, opts)

	for i, response := range responses {
		entity := pending[i]
		if response.Err != nil {
			r.logWarn(ctx, "disambiguation completion failed", slog.String("entity", entity.name), slog.Any("error", response.Err))
			observability.ObserveEntityResolution("player", "top_candidate")
			continue
		}
		id, err := parseChoice(response.Text)
		if err != nil {
			r.logWarn(ctx, "disambiguation answer unparseable", slog.String("entity", entity.name), slog.Any("error", err))
			observability.ObserveEntityResolution("player", "top_candidate")
			continue
		}
		if id == noMatchSentinel || !containsID(entity.candidates, id) {
			observability.ObserveEntityResolution("player", "top_candidate")
			continue
		}
		out[entity.statement][entity.name] = ptr(id)
		observability.ObserveEntityResolution("player", "disambiguated")
	}
}

func parseChoice(text string) (int64, error) {
	body, err := completion.ExtractBlock(text, "ID")
	if err != nil {
		return 0, err
	}
	body = strings.Trim(strings.TrimSpace(body), `"'`)
	id, err := strconv.ParseInt(body, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse entity id %q: %w", body, err)
	}
	return id, nil
}

func containsID(candidates []vectorindex.Candidate, id int64) bool {
	for _, candidate := range candidates {
		if candidate.ID == id {
			return true
		}
	}
	return false
}

func distinct(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}

func ptr(v int64) *int64 {
	return &v
}

func (r *Resolver) logWarn(ctx context.Context, msg string, attrs ...any) {
	if r.Logger == nil {
		return
	}
	r.Logger.WarnContext(ctx, msg, attrs...)
}
