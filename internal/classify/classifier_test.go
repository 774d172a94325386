package classify

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		query      string
		category   Category
		useRecords bool
	}{
		{"What appliances does the kitchen have?", CategoryAppliances, true},
		{"Is there a fridge?", CategoryAppliances, true},
		{"Does the COFFEE MAKER work?", CategoryAppliances, true},
		{"How many bedrooms are there?", CategoryRooms, true},
		{"Where is the dining room?", CategoryRooms, true},
		{"Is there a pool?", CategoryAmenities, true},
		{"What is the wifi password?", CategoryAmenities, true},
		{"Which floor is the master suite on?", CategoryLocation, true},
		{"Is it on the second level?", CategoryLocation, true},
		{"Hello there", CategoryGeneral, false},
		{"", CategoryGeneral, false},
		{"What time is checkout?", CategoryGeneral, false},
	}

	for _, tt := range tests {
		got := Classify(tt.query)
		if got.Category != tt.category {
			t.Errorf("Classify(%q).Category = %q, want %q", tt.query, got.Category, tt.category)
		}
		if got.UseRecords != tt.useRecords {
			t.Errorf("Classify(%q).UseRecords = %v, want %v", tt.query, got.UseRecords, tt.useRecords)
		}
		if got.OriginalQuery != tt.query {
			t.Errorf("Classify(%q).OriginalQuery = %q", tt.query, got.OriginalQuery)
		}
	}
}

// Category priority is fixed: "appliances" outranks "rooms" when a query
// matches both, regardless of word order in the query.
func TestClassify_PriorityOrder(t *testing.T) {
	got := Classify("what appliances are in the kitchen")
	if got.Category != CategoryAppliances {
		t.Errorf("Category = %q, want %q", got.Category, CategoryAppliances)
	}

	got = Classify("kitchen oven question")
	if got.Category != CategoryAppliances {
		t.Errorf("Category = %q, want %q", got.Category, CategoryAppliances)
	}

	// rooms outranks location
	got = Classify("which floor is the kitchen on")
	if got.Category != CategoryRooms {
		t.Errorf("Category = %q, want %q", got.Category, CategoryRooms)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	const query = "is there a tv in the living room"
	first := Classify(query)
	for i := 0; i < 50; i++ {
		if got := Classify(query); got != first {
			t.Fatalf("Classify(%q) not deterministic: %+v vs %+v", query, got, first)
		}
	}
}
