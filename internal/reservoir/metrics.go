package reservoir

import (
	"encoding/json"
	"math"
	"sync"
)

// MetricValue is the set of counters accumulated per metric name.
type MetricValue struct {
	Count      int64
	Total      float64
	SumSquares float64
	Min        float64
	Max        float64
}

func (v *MetricValue) merge(sample float64) {
	if v.Count == 0 {
		v.Min, v.Max = sample, sample
	} else {
		v.Min = math.Min(v.Min, sample)
		v.Max = math.Max(v.Max, sample)
	}
	v.Count++
	v.Total += sample
	v.SumSquares += sample * sample
}

// MetricAggregator maps metric name to accumulated counters. It is unbounded
// by observation count but bounded by the number of distinct names: once the
// map holds distinctNameCap names, further unknown names are dropped and
// counted in Dropped, a supportability metric (spec.md §3, §4.4).
type MetricAggregator struct {
	mu             sync.Mutex
	distinctNameCap int
	values          map[string]*MetricValue
	dropped         int64
}

// NewMetricAggregator creates an empty aggregator accepting up to
// distinctNameCap distinct metric names.
func NewMetricAggregator(distinctNameCap int) *MetricAggregator {
	return &MetricAggregator{
		distinctNameCap: distinctNameCap,
		values:          make(map[string]*MetricValue),
	}
}

// Observe merges sample into the named metric. A known name always merges;
// an unknown name is admitted only while under the distinct-name cap.
func (a *MetricAggregator) Observe(name string, sample float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	v, ok := a.values[name]
	if !ok {
		if len(a.values) >= a.distinctNameCap {
			a.dropped++
			return
		}
		v = &MetricValue{}
		a.values[name] = v
	}
	v.merge(sample)
}

// Dropped reports how many new-name observations were refused for being
// over the distinct-name cap since the last Swap.
func (a *MetricAggregator) Dropped() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Swap returns the retired aggregator and leaves an empty one of the same
// cap in place.
func (a *MetricAggregator) Swap() Harvestable {
	a.mu.Lock()
	defer a.mu.Unlock()
	retired := &MetricAggregator{distinctNameCap: a.distinctNameCap, values: a.values, dropped: a.dropped}
	a.values = make(map[string]*MetricValue)
	a.dropped = 0
	return retired
}

// Reduce serializes the retained metric values. Empty aggregators reduce to
// nil.
func (a *MetricAggregator) Reduce() Payload {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.values) == 0 {
		return nil
	}
	b, err := json.Marshal(a.values)
	if err != nil {
		return nil
	}
	return Payload(b)
}

// Len reports the number of distinct metric names retained.
func (a *MetricAggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.values)
}
