package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"time"
)

const (
	// freshBoost is added to the raw similarity of hits younger than a day;
	// corrected answers should out-rank older approved answers of similar
	// scope.
	freshBoost = 0.10
	// staleBoost is the baseline adjustment for older hits, and the
	// conservative default when a hit carries no parseable timestamp.
	staleBoost = 0.05

	freshWindow = 24 * time.Hour

	// overFetchFactor widens the nearest-neighbor request so re-ranking
	// has candidates to promote.
	overFetchFactor = 2
)

// Example is one stored question → approved-answer pair, with its adjusted
// similarity score when returned from a search.
type Example struct {
	ID           string
	Score        float64
	Query        string
	Response     string
	UserFeedback string
	CreatedAt    string
	// Fresh marks entries that received the recency boost.
	Fresh bool
}

// TextEmbedder turns text into a vector; nil means failure.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) []float32
}

// Memory is the semantic example store. Every operation is resilient to
// backend errors: failures are logged and surfaced as empty/false results.
type Memory struct {
	embedder TextEmbedder
	store    VectorStore
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Memory over the given embedder and vector store.
func New(embedder TextEmbedder, store VectorStore) *Memory {
	return &Memory{
		embedder: embedder,
		store:    store,
		logger:   slog.Default(),
		now:      time.Now,
	}
}

// AddExample embeds the query and stores a new immutable example. Returns
// false when embedding or the store write fails.
func (m *Memory) AddExample(ctx context.Context, query, response, userFeedback string) bool {
	vec := m.embedder.Embed(ctx, query)
	if len(vec) == 0 {
		return false
	}

	now := m.now().UTC()
	id := exampleID(query, now)
	metadata := map[string]any{
		"query":           query,
		"response":        response,
		"user_feedback":   userFeedback,
		"created_at":      now.Format(time.RFC3339),
		"type":            "positive_example",
		"query_length":    len(query),
		"response_length": len(response),
	}

	if err := m.store.Upsert(ctx, id, vec, metadata); err != nil {
		m.logger.Error("storing example failed", "id", id, "error", err)
		return false
	}
	m.logger.Info("example stored", "id", id)
	return true
}

// exampleID builds a unique id from a time prefix and a low-collision
// hash suffix over the query text.
func exampleID(query string, now time.Time) string {
	h := fnv.New32a()
	h.Write([]byte(query))
	return fmt.Sprintf("example_%s_%04d", now.Format("20060102_150405"), h.Sum32()%10000)
}

// SearchSimilar embeds the query, over-fetches 2×topK neighbors, applies
// the recency boost, re-sorts by adjusted score and returns the first topK.
func (m *Memory) SearchSimilar(ctx context.Context, query string, topK int) []Example {
	vec := m.embedder.Embed(ctx, query)
	if len(vec) == 0 {
		return nil
	}

	matches, err := m.store.Query(ctx, vec, topK*overFetchFactor)
	if err != nil {
		m.logger.Error("vector query failed", "error", err)
		return nil
	}

	examples := make([]Example, 0, len(matches))
	for _, match := range matches {
		ex := exampleFromMetadata(match)
		boost := staleBoost
		if t, err := time.Parse(time.RFC3339, ex.CreatedAt); err == nil {
			if m.now().Sub(t) < freshWindow {
				boost = freshBoost
				ex.Fresh = true
			}
		}
		ex.Score = match.Score + boost
		examples = append(examples, ex)
	}

	sort.SliceStable(examples, func(i, j int) bool {
		return examples[i].Score > examples[j].Score
	})
	if len(examples) > topK {
		examples = examples[:topK]
	}
	return examples
}

// FormatAsContext renders the topK most similar examples as a labelled
// text block, or an empty string when there are no hits. Freshness-boosted
// entries are marked so the assistant can weigh them accordingly.
func (m *Memory) FormatAsContext(ctx context.Context, query string, topK int) string {
	examples := m.SearchSimilar(ctx, query, topK)
	if len(examples) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Previously approved answers to similar questions:\n")
	for i, ex := range examples {
		marker := ""
		if ex.Fresh {
			marker = ", recently corrected"
		}
		fmt.Fprintf(&sb, "\nExample %d (similarity %.2f%s):\n", i+1, ex.Score, marker)
		fmt.Fprintf(&sb, "Question: %s\n", ex.Query)
		fmt.Fprintf(&sb, "Approved answer: %s\n", ex.Response)
		if ex.UserFeedback != "" {
			fmt.Fprintf(&sb, "Note: %s\n", ex.UserFeedback)
		}
	}
	return sb.String()
}

// DeleteExample removes a stored example. Returns false on backend error.
func (m *Memory) DeleteExample(ctx context.Context, id string) bool {
	if err := m.store.Delete(ctx, id); err != nil {
		m.logger.Error("deleting example failed", "id", id, "error", err)
		return false
	}
	return true
}

// ListExamples returns up to limit stored examples. A zero query vector
// makes the index return arbitrary entries, which is all the admin
// surface needs.
func (m *Memory) ListExamples(ctx context.Context, limit int) []Example {
	matches, err := m.store.Query(ctx, make([]float32, EmbeddingDimension), limit)
	if err != nil {
		m.logger.Error("listing examples failed", "error", err)
		return nil
	}
	examples := make([]Example, 0, len(matches))
	for _, match := range matches {
		ex := exampleFromMetadata(match)
		ex.Score = match.Score
		examples = append(examples, ex)
	}
	return examples
}

// Stats returns index statistics, or zero stats on backend error.
func (m *Memory) Stats(ctx context.Context) IndexStats {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Error("index stats failed", "error", err)
		return IndexStats{}
	}
	return stats
}

func exampleFromMetadata(match VectorMatch) Example {
	ex := Example{ID: match.ID}
	ex.Query, _ = match.Metadata["query"].(string)
	ex.Response, _ = match.Metadata["response"].(string)
	ex.UserFeedback, _ = match.Metadata["user_feedback"].(string)
	ex.CreatedAt, _ = match.Metadata["created_at"].(string)
	return ex
}
