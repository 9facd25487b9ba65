package reservoir

import "testing"

func TestMetricAggregatorMergesKnownNames(t *testing.T) {
	a := NewMetricAggregator(10)
	a.Observe("latency", 10)
	a.Observe("latency", 20)

	v := a.values["latency"]
	if v.Count != 2 {
		t.Errorf("Count = %d, want 2", v.Count)
	}
	if v.Total != 30 {
		t.Errorf("Total = %f, want 30", v.Total)
	}
	if v.Min != 10 || v.Max != 20 {
		t.Errorf("Min/Max = %f/%f, want 10/20", v.Min, v.Max)
	}
}

func TestMetricAggregatorSpillsOverDistinctNameCap(t *testing.T) {
	a := NewMetricAggregator(2)
	a.Observe("a", 1)
	a.Observe("b", 1)
	a.Observe("c", 1) // over cap, dropped

	if a.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", a.Len())
	}
	if a.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", a.Dropped())
	}
}

func TestMetricAggregatorSwapResetsDropped(t *testing.T) {
	a := NewMetricAggregator(1)
	a.Observe("a", 1)
	a.Observe("b", 1) // dropped

	retired := a.Swap().(*MetricAggregator)
	if retired.Dropped() != 1 {
		t.Fatalf("retired Dropped() = %d, want 1", retired.Dropped())
	}
	if a.Dropped() != 0 {
		t.Fatalf("new aggregator Dropped() = %d, want 0", a.Dropped())
	}
	if a.Len() != 0 {
		t.Fatalf("new aggregator Len() = %d, want 0", a.Len())
	}
}
