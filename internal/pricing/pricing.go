/**
 * @description
 * Static pricing reference data: the cost in credits of each billable tool. The
 * ledger core consults this table and never mutates it. Costs can be overridden
 * at boot via configuration, but the table is immutable once built.
 */

package pricing

import (
	"fmt"
	"sort"
)

// ToolCost is one reference entry: what a single invocation of a tool debits.
type ToolCost struct {
	ToolID   string `json:"tool_id"`
	BaseCost int64  `json:"base_cost"`
	Category string `json:"category"`
}

// Table is an immutable tool → cost mapping.
type Table struct {
	entries map[string]ToolCost
}

// defaultEntries covers the marketplace's billable generation tools.
var defaultEntries = []ToolCost{
	{ToolID: "profile_photo", BaseCost: 3, Category: "image"},
	{ToolID: "listing_banner", BaseCost: 5, Category: "image"},
	{ToolID: "promo_video", BaseCost: 25, Category: "video"},
	{ToolID: "route_summary", BaseCost: 1, Category: "text"},
	{ToolID: "service_description", BaseCost: 2, Category: "text"},
	{ToolID: "review_reply", BaseCost: 1, Category: "text"},
}

// NewTable builds the pricing table from the built-in entries plus any overrides.
// An override with a non-positive cost is rejected: a zero-cost billable tool is
// always a configuration mistake, not a free tier.
func NewTable(overrides map[string]int64) (*Table, error) {
	entries := make(map[string]ToolCost, len(defaultEntries))
	for _, e := range defaultEntries {
		entries[e.ToolID] = e
	}
	for toolID, cost := range overrides {
		if cost <= 0 {
			return nil, fmt.Errorf("pricing override for %q must be positive, got %d", toolID, cost)
		}
		entry, ok := entries[toolID]
		if !ok {
			entry = ToolCost{ToolID: toolID, Category: "custom"}
		}
		entry.BaseCost = cost
		entries[toolID] = entry
	}
	return &Table{entries: entries}, nil
}

// CostFor returns the credit cost of one invocation of the tool.
func (t *Table) CostFor(toolID string) (int64, bool) {
	entry, ok := t.entries[toolID]
	if !ok {
		return 0, false
	}
	return entry.BaseCost, true
}

// Entries returns all known tools sorted by id, for the read-only pricing surface.
func (t *Table) Entries() []ToolCost {
	out := make([]ToolCost, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolID < out[j].ToolID })
	return out
}
