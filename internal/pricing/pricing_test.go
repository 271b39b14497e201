package pricing

import "testing"

func TestNewTable_Defaults(t *testing.T) {
	table, err := NewTable(nil)
	if err != nil {
		t.Fatalf("NewTable returned error: %v", err)
	}

	cost, ok := table.CostFor("promo_video")
	if !ok {
		t.Fatal("expected promo_video to exist in default table")
	}
	if cost != 25 {
		t.Fatalf("expected promo_video cost 25, got %d", cost)
	}

	if _, ok := table.CostFor("nonexistent_tool"); ok {
		t.Fatal("expected unknown tool to be absent")
	}
}

func TestNewTable_Overrides(t *testing.T) {
	table, err := NewTable(map[string]int64{
		"promo_video": 40,
		"doc_scan":    7,
	})
	if err != nil {
		t.Fatalf("NewTable returned error: %v", err)
	}

	if cost, _ := table.CostFor("promo_video"); cost != 40 {
		t.Fatalf("expected overridden cost 40, got %d", cost)
	}
	if cost, ok := table.CostFor("doc_scan"); !ok || cost != 7 {
		t.Fatalf("expected new tool doc_scan with cost 7, got %d (ok=%v)", cost, ok)
	}
}

func TestNewTable_RejectsNonPositiveOverride(t *testing.T) {
	if _, err := NewTable(map[string]int64{"promo_video": 0}); err == nil {
		t.Fatal("expected error for zero-cost override")
	}
	if _, err := NewTable(map[string]int64{"promo_video": -5}); err == nil {
		t.Fatal("expected error for negative-cost override")
	}
}

func TestEntries_SortedAndComplete(t *testing.T) {
	table, err := NewTable(nil)
	if err != nil {
		t.Fatalf("NewTable returned error: %v", err)
	}
	entries := table.Entries()
	if len(entries) == 0 {
		t.Fatal("expected non-empty default table")
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].ToolID >= entries[i].ToolID {
			t.Fatalf("expected entries sorted by tool id, got %q before %q", entries[i-1].ToolID, entries[i].ToolID)
		}
	}
	for _, e := range entries {
		if e.BaseCost <= 0 {
			t.Fatalf("expected positive base cost for %q, got %d", e.ToolID, e.BaseCost)
		}
	}
}
