package merge

import (
	"testing"

	"github.com/mc-localize/mctrans/asset"
)

func TestPartition(t *testing.T) {
	accepted := Records{"item.cart": "车"}
	candidates := []asset.TranslationUnit{
		{ID: "item.cart", Source: "Cart"},
		{ID: "item.wagon", Source: "Wagon"},
	}

	pending, kept := Partition(accepted, candidates)

	if len(pending) != 1 || pending[0].ID != "item.wagon" {
		t.Fatalf("pending = %+v, want only item.wagon", pending)
	}
	if kept["item.cart"] != "车" {
		t.Fatalf("kept = %+v", kept)
	}
}

func TestPartitionDropsStaleEntries(t *testing.T) {
	accepted := Records{"item.removed": "已删除", "item.cart": "车"}
	candidates := []asset.TranslationUnit{{ID: "item.cart", Source: "Cart"}}

	pending, kept := Partition(accepted, candidates)

	if len(pending) != 0 {
		t.Fatalf("pending = %+v", pending)
	}
	if _, ok := kept["item.removed"]; ok {
		t.Fatal("stale entry should be dropped")
	}
	if len(kept) != 1 {
		t.Fatalf("kept = %+v", kept)
	}
}

func TestPartitionEmptyAcceptedTextIsPending(t *testing.T) {
	accepted := Records{"a": ""}
	pending, kept := Partition(accepted, []asset.TranslationUnit{{ID: "a", Source: "Apple"}})
	if len(pending) != 1 || len(kept) != 0 {
		t.Fatalf("pending = %+v kept = %+v", pending, kept)
	}
}

func TestCombineAcceptedWins(t *testing.T) {
	out := Combine(Records{"a": "human edit"}, Records{"a": "machine", "b": "new"})
	if out["a"] != "human edit" {
		t.Errorf("accepted entry overwritten: %q", out["a"])
	}
	if out["b"] != "new" {
		t.Errorf("new entry lost: %+v", out)
	}
}

func TestOverlayLaterWins(t *testing.T) {
	baseline := Records{"a": "baseline-a", "b": "baseline-b"}
	existing := Records{"b": "existing-b", "c": ""}

	out := Overlay(baseline, existing)
	if out["a"] != "baseline-a" || out["b"] != "existing-b" {
		t.Errorf("overlay = %+v", out)
	}
	if _, ok := out["c"]; ok {
		t.Error("empty text should not overlay")
	}
}

func TestIncrementalScenario(t *testing.T) {
	// accepted = {"item.cart": "车"}, extraction yields cart + wagon:
	// only wagon is dispatched, cart text is unchanged in the output.
	accepted := Records{"item.cart": "车"}
	candidates := []asset.TranslationUnit{
		{ID: "item.cart", Source: "Cart"},
		{ID: "item.wagon", Source: "Wagon"},
	}

	pending, kept := Partition(accepted, candidates)
	newly := Records{}
	for _, u := range pending {
		newly[u.ID] = "翻译:" + u.Source
	}
	final := Combine(kept, newly)

	if final["item.cart"] != "车" {
		t.Errorf("item.cart = %q, want 车", final["item.cart"])
	}
	if final["item.wagon"] != "翻译:Wagon" {
		t.Errorf("item.wagon = %q", final["item.wagon"])
	}
}
