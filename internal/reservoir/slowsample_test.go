package reservoir

import "testing"

// Scenario 1 from spec.md §8: cap=3, observe max-durations {10,20,30} then
// {5} then {25}. Expected retained max-durations = {20,25,30}; {5} rejected,
// {25} evicts the record with max=10.
func TestSlowSampleAdmissionScenario(t *testing.T) {
	r := NewSlowSampleReservoir(3)
	r.Observe(SlowSample{Identifier: "a", Count: 1, Max: 10, Min: 10, Total: 10})
	r.Observe(SlowSample{Identifier: "b", Count: 1, Max: 20, Min: 20, Total: 20})
	r.Observe(SlowSample{Identifier: "c", Count: 1, Max: 30, Min: 30, Total: 30})

	r.Observe(SlowSample{Identifier: "d", Count: 1, Max: 5, Min: 5, Total: 5})
	if _, ok := r.byID["d"]; ok {
		t.Fatal("expected low-duration sample to be rejected")
	}

	r.Observe(SlowSample{Identifier: "e", Count: 1, Max: 25, Min: 25, Total: 25})

	if _, ok := r.byID["a"]; ok {
		t.Fatal("expected identifier a (max=10) to be evicted")
	}

	got := make(map[int64]bool)
	for _, it := range r.items {
		got[it.Max] = true
	}
	want := map[int64]bool{20: true, 25: true, 30: true}
	if len(got) != len(want) {
		t.Fatalf("retained max-durations = %v, want %v", got, want)
	}
	for k := range want {
		if !got[k] {
			t.Fatalf("retained max-durations = %v, want %v", got, want)
		}
	}
}

// Scenario 2 from spec.md §8: observe id=7 max=100 query="A", then id=7
// max=150 query="B". Retained record has count=2, max=150, query="B".
func TestSlowSampleMergeOnDuplicateID(t *testing.T) {
	r := NewSlowSampleReservoir(3)
	r.Observe(SlowSample{Identifier: "7", Count: 1, Max: 100, Min: 100, Total: 100, Query: "A"})
	r.Observe(SlowSample{Identifier: "7", Count: 1, Max: 150, Min: 90, Total: 150, Query: "B"})

	idx := r.byID["7"]
	got := r.items[idx]
	if got.Count != 2 {
		t.Errorf("Count = %d, want 2", got.Count)
	}
	if got.Max != 150 {
		t.Errorf("Max = %d, want 150", got.Max)
	}
	if got.Query != "B" {
		t.Errorf("Query = %q, want %q", got.Query, "B")
	}
	if got.Min != 90 {
		t.Errorf("Min = %d, want 90", got.Min)
	}
	if got.Total != 250 {
		t.Errorf("Total = %d, want 250", got.Total)
	}
}

// Invariant 4 from spec.md §8: merging a record with itself is a no-op on
// descriptive fields; count and total double; min/max unchanged.
func TestSlowSampleMergeSelfIsNoOpOnDescriptiveFields(t *testing.T) {
	s := SlowSample{Identifier: "x", Count: 3, Total: 300, Min: 50, Max: 150, Query: "SELECT 1", TxnName: "txn", TxnURL: "/a"}
	clone := s
	s.Merge(clone)

	if s.Count != 6 {
		t.Errorf("Count = %d, want 6", s.Count)
	}
	if s.Total != 600 {
		t.Errorf("Total = %d, want 600", s.Total)
	}
	if s.Min != 50 {
		t.Errorf("Min = %d, want 50", s.Min)
	}
	if s.Max != 150 {
		t.Errorf("Max = %d, want 150", s.Max)
	}
	if s.Query != "SELECT 1" || s.TxnName != "txn" || s.TxnURL != "/a" {
		t.Errorf("descriptive fields changed on self-merge: %+v", s)
	}
}

// Merge associativity for records sharing an identifier (spec.md §8 laws).
func TestSlowSampleMergeAssociative(t *testing.T) {
	a := SlowSample{Identifier: "x", Count: 1, Total: 10, Min: 10, Max: 10, Query: "A"}
	b := SlowSample{Identifier: "x", Count: 1, Total: 20, Min: 20, Max: 20, Query: "B"}
	c := SlowSample{Identifier: "x", Count: 1, Total: 5, Min: 5, Max: 30, Query: "C"}

	left := a
	left.Merge(b)
	left.Merge(c)

	right := b
	right.Merge(c)
	abc := a
	abc.Merge(right)

	if left.Count != abc.Count || left.Total != abc.Total || left.Min != abc.Min || left.Max != abc.Max {
		t.Fatalf("merge not associative on numeric fields: left=%+v right=%+v", left, abc)
	}
	if left.Query != abc.Query {
		t.Fatalf("merge not associative on descriptive fields: left=%q right=%q", left.Query, abc.Query)
	}
}

func TestSlowSampleReduceProducesSingleElementOuterArray(t *testing.T) {
	r := NewSlowSampleReservoir(2)
	r.Observe(SlowSample{Identifier: "a", Count: 1, Max: 10000, Min: 5000, Total: 10000, Query: "X"})

	payload := r.Reduce()
	if payload == nil {
		t.Fatal("expected non-nil payload")
	}
	if payload[0] != '[' {
		t.Fatalf("expected outer array, got %q", payload[:1])
	}
}

func TestSlowSampleReduceEmptyIsNil(t *testing.T) {
	r := NewSlowSampleReservoir(2)
	if got := r.Reduce(); got != nil {
		t.Fatalf("expected nil payload for empty reservoir, got %q", got)
	}
}

// Invariant 3 and swap-reduce-swap idempotence (spec.md §8).
func TestSlowSampleSwapIsAtomicAndIdempotent(t *testing.T) {
	r := NewSlowSampleReservoir(2)
	r.Observe(SlowSample{Identifier: "a", Count: 1, Max: 10, Min: 10, Total: 10})

	retired := r.Swap().(*SlowSampleReservoir)
	if r.Len() != 0 {
		t.Fatalf("new reservoir after swap should be empty, got len=%d", r.Len())
	}
	if retired.Len() != 1 {
		t.Fatalf("retired reservoir should have the previous contents, got len=%d", retired.Len())
	}

	first := r.Swap().(*SlowSampleReservoir)
	if first.Reduce() != nil {
		t.Fatal("expected empty reduce on the swap after the retiring swap")
	}
	second := r.Swap().(*SlowSampleReservoir)
	if second.Reduce() != nil {
		t.Fatal("expected empty payload on the second swap+reduce (idempotence)")
	}
}

// Invariant 1: the slow-sample reservoir never holds more records than its
// capacity, across admissions, rejections and evictions.
func TestSlowSampleCapacityInvariant(t *testing.T) {
	r := NewSlowSampleReservoir(3)
	durations := []int64{10, 20, 30, 5, 25, 1, 100, 15}
	for i, d := range durations {
		r.Observe(SlowSample{Identifier: string(rune('a' + i)), Count: 1, Max: d, Min: d, Total: d})
		if r.Len() > 3 {
			t.Fatalf("reservoir exceeded capacity: len=%d", r.Len())
		}
	}
}
