// Package assembler combines structured search results and semantic memory
// hits into the grounding context handed to the hosted assistant.
package assembler

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/matiasroig/casera/internal/classify"
	"github.com/matiasroig/casera/internal/records"
)

const (
	maxItems  = 5
	maxHouses = 3
	// memoryTopK is how many approved examples are surfaced per turn.
	memoryTopK = 2
)

// RecordSearcher is the structured search dependency.
type RecordSearcher interface {
	Search(ctx context.Context, col records.Collection, query string) []records.Match
}

// MemoryContext is the semantic memory dependency.
type MemoryContext interface {
	FormatAsContext(ctx context.Context, query string, topK int) string
}

// Context is an assembled grounding bundle. Text is empty when neither
// source contributed. The Used flags feed the conversation log.
type Context struct {
	Text        string
	UsedRecords bool
	UsedMemory  bool
}

// Assembler builds grounding context from the two retrieval sources.
type Assembler struct {
	searcher RecordSearcher
	memory   MemoryContext
}

func New(searcher RecordSearcher, memory MemoryContext) *Assembler {
	return &Assembler{searcher: searcher, memory: memory}
}

// Assemble gathers context for the query. Structured search runs only when
// the classifier asked for it; semantic memory always runs. The sources
// are independent and fetched in parallel. Failures inside either source
// degrade to an empty block, never an error.
func (a *Assembler) Assemble(ctx context.Context, query string, analysis classify.Analysis) Context {
	var (
		items, houses []records.Match
		memoryBlock   string
	)

	g, gCtx := errgroup.WithContext(ctx)
	if analysis.UseRecords {
		g.Go(func() error {
			items = a.searcher.Search(gCtx, records.CollectionItems, query)
			return nil
		})
		g.Go(func() error {
			houses = a.searcher.Search(gCtx, records.CollectionHouses, query)
			return nil
		})
	}
	g.Go(func() error {
		memoryBlock = a.memory.FormatAsContext(gCtx, query, memoryTopK)
		return nil
	})
	_ = g.Wait() // goroutines never return errors; degraded sources yield empty blocks

	var blocks []string
	if recordsBlock := formatRecords(items, houses); recordsBlock != "" {
		blocks = append(blocks, recordsBlock)
	}
	if memoryBlock != "" {
		blocks = append(blocks, memoryBlock)
	}

	return Context{
		Text:        strings.Join(blocks, "\n\n"),
		UsedRecords: len(items) > 0 || len(houses) > 0,
		UsedMemory:  memoryBlock != "",
	}
}

// formatRecords renders the matched records as a readable block, bounded
// to the top maxItems items and maxHouses house entries. Absent fields are
// omitted entirely rather than rendered as placeholders.
func formatRecords(items, houses []records.Match) string {
	if len(items) == 0 && len(houses) == 0 {
		return ""
	}

	var parts []string
	if len(items) > 0 {
		var sb strings.Builder
		sb.WriteString("Items found in the property inventory:")
		for _, item := range items[:min(len(items), maxItems)] {
			sb.WriteString("\n- ")
			sb.WriteString(formatItem(item.Fields))
		}
		parts = append(parts, sb.String())
	}
	if len(houses) > 0 {
		var sb strings.Builder
		sb.WriteString("House organization entries:")
		for _, house := range houses[:min(len(houses), maxHouses)] {
			sb.WriteString("\n- ")
			sb.WriteString(formatHouse(house.Fields))
		}
		parts = append(parts, sb.String())
	}
	return strings.Join(parts, "\n\n")
}

func formatItem(fields map[string]any) string {
	var sb strings.Builder
	sb.WriteString(stringField(fields, "Code", "Unnamed item"))
	if v := stringField(fields, "Make (Brand)", ""); v != "" {
		fmt.Fprintf(&sb, " (Brand: %s)", v)
	}
	if v := stringField(fields, "Model", ""); v != "" {
		fmt.Fprintf(&sb, " (Model: %s)", v)
	}
	if v := listField(fields, "Category"); len(v) > 0 {
		fmt.Fprintf(&sb, " (Category: %s)", strings.Join(v, ", "))
	}
	if v := listField(fields, "Level of the house"); len(v) > 0 {
		fmt.Fprintf(&sb, " (Level: %s)", strings.Join(v, ", "))
	}
	if v := stringField(fields, "Status", ""); v != "" {
		fmt.Fprintf(&sb, " (Status: %s)", v)
	}
	return sb.String()
}

func formatHouse(fields map[string]any) string {
	var sb strings.Builder
	sb.WriteString(stringField(fields, "Cod", "Unspecified"))
	if v := listField(fields, "Space"); len(v) > 0 {
		fmt.Fprintf(&sb, " (Spaces: %d references)", len(v))
	}
	if v := listField(fields, "Properties"); len(v) > 0 {
		fmt.Fprintf(&sb, " (Properties: %d references)", len(v))
	}
	return sb.String()
}

func stringField(fields map[string]any, name, fallback string) string {
	if v, ok := fields[name].(string); ok && v != "" {
		return v
	}
	return fallback
}

func listField(fields map[string]any, name string) []string {
	switch v := fields[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
