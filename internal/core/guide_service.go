package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"mindfulspace.app/backend/internal/logging"
	"mindfulspace.app/backend/internal/store"
	"mindfulspace.app/backend/internal/utils"
)

const (
	NumSuggestions      = 3   // Number of exercises suggested by default
	SimilarityThreshold = 0.6 // Minimum similarity score to consider an exercise relevant
)

type exerciseStore interface {
	List(ctx context.Context, orderBy string) ([]store.Exercise, error)
}

type indexedExercise struct {
	exercise  store.Exercise
	text      string
	embedding []float32
}

// GuideService suggests exercises whose text is close to a free-form query.
// Exercise embeddings are computed lazily and recomputed when the text changes.
type GuideService struct {
	embedder  Embedder
	exercises exerciseStore
	log       *logging.Logger

	mu    sync.Mutex
	index map[string]indexedExercise
}

func NewGuideService(embedder Embedder, exercises exerciseStore, log *logging.Logger) *GuideService {
	return &GuideService{
		embedder:  embedder,
		exercises: exercises,
		log:       log,
		index:     make(map[string]indexedExercise),
	}
}

type Suggestion struct {
	Exercise   store.Exercise `json:"exercise"`
	Similarity float32        `json:"similarity"`
}

func (g *GuideService) Suggest(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &store.ValidationError{Field: "q", Message: "query is required"}
	}
	if limit <= 0 {
		limit = NumSuggestions
	}

	indexed, err := g.refresh(ctx)
	if err != nil {
		return nil, err
	}
	if len(indexed) == 0 {
		return []Suggestion{}, nil
	}

	queryEmbedding, err := g.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get query embedding: %w", err)
	}

	embeddings := make([][]float32, len(indexed))
	for i, ix := range indexed {
		embeddings[i] = ix.embedding
	}
	ranked := utils.TopK(queryEmbedding, embeddings, limit, SimilarityThreshold)

	out := make([]Suggestion, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, Suggestion{Exercise: indexed[r.Index].exercise, Similarity: r.Similarity})
	}
	g.log.Debug().Int("candidates", len(indexed)).Int("suggested", len(out)).Msg("ranked exercises")
	return out, nil
}

// PromptContext renders the suggestions for query as a block for a system
// prompt. It returns "" when nothing is relevant.
func (g *GuideService) PromptContext(ctx context.Context, query string) (string, error) {
	suggestions, err := g.Suggest(ctx, query, NumSuggestions)
	if err != nil || len(suggestions) == 0 {
		return "", err
	}
	var b strings.Builder
	b.WriteString("Exercises available in the app that may help the user:\n")
	for _, s := range suggestions {
		fmt.Fprintf(&b, "- %s (%s, %d min): %s\n", s.Exercise.TitleEN, s.Exercise.Category, s.Exercise.Duration, s.Exercise.DescriptionEN)
	}
	return strings.TrimSpace(b.String()), nil
}

// refresh returns the indexed exercises, embedding new or changed ones. The
// lock only guards the index; embedding calls run without it.
func (g *GuideService) refresh(ctx context.Context) ([]indexedExercise, error) {
	exercises, err := g.exercises.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load exercises: %w", err)
	}

	out := make([]indexedExercise, 0, len(exercises))
	var stale []int
	g.mu.Lock()
	for _, ex := range exercises {
		text := exerciseText(ex)
		if text == "" {
			continue
		}
		ix, ok := g.index[ex.ID]
		if !ok || ix.text != text {
			ix = indexedExercise{text: text}
			stale = append(stale, len(out))
		}
		ix.exercise = ex
		out = append(out, ix)
	}
	g.mu.Unlock()

	for _, i := range stale {
		embedding, err := g.embedder.Embed(ctx, out[i].text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed exercise %s: %w", out[i].exercise.ID, err)
		}
		out[i].embedding = embedding
	}
	if len(stale) > 0 {
		g.log.Debug().Int("embedded", len(stale)).Msg("refreshed exercise embeddings")
	}

	seen := make(map[string]bool, len(exercises))
	for _, ex := range exercises {
		seen[ex.ID] = true
	}
	g.mu.Lock()
	for _, ix := range out {
		g.index[ix.exercise.ID] = ix
	}
	for id := range g.index {
		if !seen[id] {
			delete(g.index, id)
		}
	}
	g.mu.Unlock()
	return out, nil
}

func exerciseText(ex store.Exercise) string {
	return joinNonEmpty("\n", ex.TitleEN, ex.DescriptionEN, ex.ContentEN, ex.TitleES, ex.DescriptionES)
}
