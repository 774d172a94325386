package records

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/matiasroig/casera/internal/metrics"
)

// Collection identifies one searchable record collection.
type Collection string

const (
	// CollectionItems holds the property's inventory (appliances,
	// furniture, fixtures).
	CollectionItems Collection = "items"
	// CollectionHouses holds house organization entries (spaces and
	// their property references).
	CollectionHouses Collection = "houses"
)

// Match is a record that matched the query, with its keyword score.
// Score counts the distinct query words (longer than 2 characters) that
// appear in the record's searchable text. Always >= 1 for returned matches.
type Match struct {
	RecordID string
	Fields   map[string]any
	Score    int
}

// Matcher scores a query against a record's searchable text. It exists so
// the substring heuristic can be swapped for token or fuzzy matching
// without touching callers.
type Matcher interface {
	Score(query, text string) int
}

// SubstringMatcher counts how many distinct lower-cased query words of
// length > 2 occur as substrings of the text. Substring semantics mean a
// short brand name can false-positive inside a longer word; acceptable
// for collections this small.
type SubstringMatcher struct{}

func (SubstringMatcher) Score(query, text string) int {
	seen := make(map[string]bool)
	score := 0
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if len(word) <= 2 || seen[word] {
			continue
		}
		seen[word] = true
		if strings.Contains(text, word) {
			score++
		}
	}
	return score
}

// fieldSet maps a collection to its backing table and the fields whose
// values form the searchable text.
type fieldSet struct {
	table  string
	fields []string
}

// Searcher runs keyword search over the structured source. Fetch failures
// are logged and reported as empty results; they never propagate.
type Searcher struct {
	source      Source
	matcher     Matcher
	collections map[Collection]fieldSet
	logger      *slog.Logger
}

// NewSearcher creates a Searcher over the given source. itemsTable and
// housesTable are the backing table names for the two collections.
func NewSearcher(source Source, itemsTable, housesTable string) *Searcher {
	return &Searcher{
		source:  source,
		matcher: SubstringMatcher{},
		collections: map[Collection]fieldSet{
			CollectionItems: {
				table:  itemsTable,
				fields: []string{"Code", "Make (Brand)", "Model", "Category", "Level of the house"},
			},
			CollectionHouses: {
				table:  housesTable,
				fields: []string{"Cod", "Space", "Properties"},
			},
		},
		logger: slog.Default(),
	}
}

// SetMatcher replaces the scoring heuristic. Intended for tests and for
// future token-based matching.
func (s *Searcher) SetMatcher(m Matcher) { s.matcher = m }

// Search fetches every record of the collection and returns those whose
// score is at least 1, in fetch order (stable tie-break). Unknown
// collections and fetch errors yield an empty result.
func (s *Searcher) Search(ctx context.Context, col Collection, query string) []Match {
	fs, ok := s.collections[col]
	if !ok {
		s.logger.Error("unknown record collection", "collection", string(col))
		return nil
	}

	recs, err := s.source.FetchAll(ctx, fs.table)
	if err != nil {
		metrics.RecordSearchesTotal.WithLabelValues(string(col), "error").Inc()
		s.logger.Error("record fetch failed", "collection", string(col), "error", err)
		return nil
	}
	metrics.RecordSearchesTotal.WithLabelValues(string(col), "success").Inc()

	var matches []Match
	for _, rec := range recs {
		text := searchableText(rec.Fields, fs.fields)
		if score := s.matcher.Score(query, text); score >= 1 {
			matches = append(matches, Match{
				RecordID: rec.ID,
				Fields:   rec.Fields,
				Score:    score,
			})
		}
	}
	return matches
}

// TestConnectivity performs a one-record bounded fetch against each
// collection and returns the first failure.
func (s *Searcher) TestConnectivity(ctx context.Context) error {
	for col, fs := range s.collections {
		if _, err := s.source.FetchBounded(ctx, fs.table, 1); err != nil {
			s.logger.Error("connectivity check failed", "collection", string(col), "error", err)
			return fmt.Errorf("collection %s: %w", col, err)
		}
	}
	return nil
}

// searchableText concatenates the named fields into one lower-cased blob.
// String values are taken as-is, list values are joined with spaces, other
// scalars are skipped.
func searchableText(fields map[string]any, names []string) string {
	var sb strings.Builder
	for _, name := range names {
		switch v := fields[name].(type) {
		case string:
			sb.WriteString(" ")
			sb.WriteString(v)
		case []any:
			for _, item := range v {
				if str, ok := item.(string); ok {
					sb.WriteString(" ")
					sb.WriteString(str)
				}
			}
		case []string:
			for _, str := range v {
				sb.WriteString(" ")
				sb.WriteString(str)
			}
		}
	}
	return strings.ToLower(sb.String())
}
