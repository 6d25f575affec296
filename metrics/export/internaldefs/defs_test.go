package internaldefs

import (
	"strings"
	"testing"
)

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets([]uint64{1, 2, 3})
	want := [8]uint64{1, 3, 6, 6, 6, 6, 6, 6}
	if got != want {
		t.Fatalf("cumulative = %v, want %v", got, want)
	}
}

func TestCounterNamesUnique(t *testing.T) {
	seen := make(map[string]bool, len(CounterDefs))
	ids := make(map[int]bool, len(CounterDefs))
	for _, def := range CounterDefs {
		if !strings.HasPrefix(def.Name, "shopauth_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("bad counter name %q", def.Name)
		}
		if seen[def.Name] || ids[int(def.ID)] {
			t.Fatalf("duplicate counter %q", def.Name)
		}
		seen[def.Name] = true
		ids[int(def.ID)] = true
	}
	if len(HistogramBounds) != len(HistogramBoundSuffix) {
		t.Fatal("bucket bounds and suffixes differ in length")
	}
}
