// Package classify maps free-text guest questions to an intent category
// that decides whether the structured record search should run.
package classify

import (
	"regexp"
	"strings"
)

// Category is the intent bucket a query falls into.
type Category string

const (
	CategoryAppliances Category = "appliances"
	CategoryRooms      Category = "rooms"
	CategoryAmenities  Category = "amenities"
	CategoryLocation   Category = "location"
	CategoryGeneral    Category = "general"
)

// Analysis is the classification result for a single query.
type Analysis struct {
	Category      Category
	OriginalQuery string
	// UseRecords reports whether the structured record search should run
	// for this query. False for general chit-chat.
	UseRecords bool
}

type rule struct {
	category Category
	patterns []*regexp.Regexp
}

// rules is the classification priority list. Order is significant: the
// first category with any matching pattern wins, so more specific
// categories come before broader ones. Patterns match anywhere in the
// lower-cased query (substring semantics, same as the record matcher).
var rules = []rule{
	{CategoryAppliances, compile(
		`appliances?`, `refrigerator`, `fridge`, `oven`,
		`microwave`, `washer`, `dryer`, `coffee maker`, `toaster`,
	)},
	{CategoryRooms, compile(
		`rooms?`, `bedrooms?`, `bathrooms?`, `kitchen`,
		`living room`, `dining room`, `terrace`, `balcony`,
	)},
	{CategoryAmenities, compile(
		`pool`, `jacuzzi`, `hot tub`, `gym`, `wifi`,
		`air conditioning`, `heating`, `tv`, `television`,
	)},
	{CategoryLocation, compile(
		`floor`, `level`, `story`, `location`,
		`first`, `second`, `third`, `fourth`,
	)},
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// Classify analyses a query and returns its category. It is total and
// deterministic: unmatched queries fall through to CategoryGeneral with
// UseRecords false. Classify never fails and has no side effects.
func Classify(text string) Analysis {
	lowered := strings.ToLower(text)

	for _, r := range rules {
		for _, p := range r.patterns {
			if p.MatchString(lowered) {
				return Analysis{
					Category:      r.category,
					OriginalQuery: text,
					UseRecords:    true,
				}
			}
		}
	}

	return Analysis{
		Category:      CategoryGeneral,
		OriginalQuery: text,
		UseRecords:    false,
	}
}
