package assembler

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/matiasroig/casera/internal/classify"
	"github.com/matiasroig/casera/internal/records"
)

type fakeSearcher struct {
	items  []records.Match
	houses []records.Match
	calls  []records.Collection
}

func (f *fakeSearcher) Search(_ context.Context, col records.Collection, _ string) []records.Match {
	f.calls = append(f.calls, col)
	if col == records.CollectionItems {
		return f.items
	}
	return f.houses
}

type fakeMemory struct {
	block string
}

func (f *fakeMemory) FormatAsContext(context.Context, string, int) string {
	return f.block
}

func itemMatch(code string, fields map[string]any) records.Match {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["Code"] = code
	return records.Match{RecordID: "rec_" + code, Fields: fields, Score: 1}
}

func TestAssembleCombinesSources(t *testing.T) {
	searcher := &fakeSearcher{
		items: []records.Match{itemMatch("FRIDGE-01", map[string]any{
			"Make (Brand)":       "Samsung",
			"Model":              "RF28",
			"Category":           []any{"Appliance"},
			"Level of the house": []any{"Ground floor"},
			"Status":             "Installed",
		})},
		houses: []records.Match{{RecordID: "rec_h1", Fields: map[string]any{
			"Cod":        "Casa Norte",
			"Space":      []any{"a", "b", "c"},
			"Properties": []any{"p1"},
		}, Score: 1}},
	}
	memory := &fakeMemory{block: "Previously approved answers to similar questions:\n\nExample 1"}

	a := New(searcher, memory)
	got := a.Assemble(context.Background(), "where is the fridge",
		classify.Analysis{Category: classify.CategoryAppliances, UseRecords: true})

	if !got.UsedRecords || !got.UsedMemory {
		t.Fatalf("expected both sources used, got records=%v memory=%v", got.UsedRecords, got.UsedMemory)
	}
	for _, want := range []string{
		"Items found in the property inventory:",
		"FRIDGE-01 (Brand: Samsung) (Model: RF28) (Category: Appliance) (Level: Ground floor) (Status: Installed)",
		"House organization entries:",
		"Casa Norte (Spaces: 3 references) (Properties: 1 references)",
		"Previously approved answers to similar questions:",
	} {
		if !strings.Contains(got.Text, want) {
			t.Errorf("context missing %q:\n%s", want, got.Text)
		}
	}
	if len(searcher.calls) != 2 {
		t.Errorf("expected items and houses searched, got %v", searcher.calls)
	}
}

func TestAssembleSkipsRecordsWhenNotRequested(t *testing.T) {
	searcher := &fakeSearcher{items: []records.Match{itemMatch("SOFA-01", nil)}}
	a := New(searcher, &fakeMemory{block: "memory block"})

	got := a.Assemble(context.Background(), "hello",
		classify.Analysis{Category: classify.CategoryGeneral, UseRecords: false})

	if len(searcher.calls) != 0 {
		t.Fatalf("structured search should not run for general queries, got %v", searcher.calls)
	}
	if got.UsedRecords {
		t.Error("UsedRecords should be false")
	}
	if got.Text != "memory block" {
		t.Errorf("unexpected context: %q", got.Text)
	}
}

func TestAssembleEmptyWhenNothingFound(t *testing.T) {
	a := New(&fakeSearcher{}, &fakeMemory{})
	got := a.Assemble(context.Background(), "anything",
		classify.Analysis{Category: classify.CategoryRooms, UseRecords: true})

	if got.Text != "" {
		t.Errorf("expected empty context, got %q", got.Text)
	}
	if got.UsedRecords || got.UsedMemory {
		t.Errorf("no source should be flagged used: records=%v memory=%v", got.UsedRecords, got.UsedMemory)
	}
}

func TestAssembleBoundsResults(t *testing.T) {
	searcher := &fakeSearcher{}
	for i := 0; i < 8; i++ {
		searcher.items = append(searcher.items, itemMatch(fmt.Sprintf("ITEM-%02d", i), nil))
		searcher.houses = append(searcher.houses, records.Match{
			RecordID: fmt.Sprintf("rec_h%d", i),
			Fields:   map[string]any{"Cod": fmt.Sprintf("House %d", i)},
			Score:    1,
		})
	}

	a := New(searcher, &fakeMemory{})
	got := a.Assemble(context.Background(), "list everything",
		classify.Analysis{Category: classify.CategoryAppliances, UseRecords: true})

	if n := strings.Count(got.Text, "ITEM-"); n != maxItems {
		t.Errorf("expected %d items rendered, got %d", maxItems, n)
	}
	if n := strings.Count(got.Text, "House "); n != maxHouses {
		t.Errorf("expected %d houses rendered, got %d", maxHouses, n)
	}
}

func TestFormatItemOmitsAbsentFields(t *testing.T) {
	line := formatItem(map[string]any{"Code": "LAMP-02"})
	if line != "LAMP-02" {
		t.Errorf("absent fields should be omitted, got %q", line)
	}
	line = formatItem(map[string]any{})
	if line != "Unnamed item" {
		t.Errorf("expected fallback name, got %q", line)
	}
}
