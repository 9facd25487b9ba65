package reservoir

import (
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// SlowSample is a summarised record of a notable (usually long-duration)
// database operation, merged across occurrences sharing the same Identifier
// (spec.md §3).
type SlowSample struct {
	Identifier string

	Count int64
	// Total, Min, Max are in microseconds.
	Total int64
	Min   int64
	Max   int64

	MetricName string
	Query      string
	TxnName    string
	TxnURL     string
	Params     []byte
}

// Merge combines other into s per spec.md §3: Count and Total add, Min takes
// the smaller, Max takes the larger — and when other carries the new
// maximum, every descriptive field is overwritten from other, so the
// reservoir keeps the metadata of the slowest seen instance only.
//
// Merging a record with itself is a no-op on descriptive fields; Count and
// Total double; Min and Max are unchanged (spec.md §8, invariant 4). Merge is
// associative for records sharing an Identifier (spec.md §8 laws).
func (s *SlowSample) Merge(other SlowSample) {
	wasZero := s.Count == 0
	carriesNewMax := other.Max > s.Max || wasZero

	s.Count += other.Count
	s.Total += other.Total
	if wasZero || other.Min < s.Min {
		s.Min = other.Min
	}
	if other.Max > s.Max {
		s.Max = other.Max
	}

	if carriesNewMax {
		s.MetricName = other.MetricName
		s.Query = other.Query
		s.TxnName = other.TxnName
		s.TxnURL = other.TxnURL
		s.Params = other.Params
	}
}

// SlowSampleReservoir implements the dedup-merge-by-identifier, min-victim
// eviction policy described in spec.md §4.4. Capacity M; the victim scan is
// O(M), acceptable because M is configured small (tens).
type SlowSampleReservoir struct {
	mu       sync.Mutex
	capacity int
	items    []SlowSample
	byID     map[string]int
}

// NewSlowSampleReservoir creates an empty reservoir of the given capacity.
func NewSlowSampleReservoir(capacity int) *SlowSampleReservoir {
	return &SlowSampleReservoir{capacity: capacity, byID: make(map[string]int)}
}

// Observe implements the algorithm from spec.md §4.4:
//
//	existing, found := find(new.Identifier)
//	if found: existing.Merge(new); return
//	if len < M: append(new); return
//	victim := index of minimum Max; admit new only if new.Max > victim.Max
//
// Ties on "smallest max-duration" resolve to the first one encountered in
// scan order; the tie-breaker affects only which of two equal-peak-latency
// statements is preserved, never the cumulative statistics.
func (r *SlowSampleReservoir) Observe(newSample SlowSample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.byID[newSample.Identifier]; ok {
		r.items[idx].Merge(newSample)
		return
	}

	if len(r.items) < r.capacity {
		r.items = append(r.items, newSample)
		r.byID[newSample.Identifier] = len(r.items) - 1
		return
	}

	if r.capacity == 0 {
		return
	}

	victimIdx := 0
	for i := 1; i < len(r.items); i++ {
		if r.items[i].Max < r.items[victimIdx].Max {
			victimIdx = i
		}
	}

	if r.items[victimIdx].Max < newSample.Max {
		delete(r.byID, r.items[victimIdx].Identifier)
		r.items[victimIdx] = newSample
		r.byID[newSample.Identifier] = victimIdx
	}
}

// Swap returns the retired reservoir and leaves an empty one of the same
// capacity in place.
func (r *SlowSampleReservoir) Swap() Harvestable {
	r.mu.Lock()
	defer r.mu.Unlock()
	retired := &SlowSampleReservoir{capacity: r.capacity, items: r.items, byID: r.byID}
	r.items = nil
	r.byID = make(map[string]int)
	return retired
}

// reducedRecord is the fixed-order tuple spec.md §4.4 prescribes: descriptive
// fields followed by count, total/min/max converted from microseconds to
// milliseconds, and the opaque params blob.
type reducedRecord struct {
	MetricName string  `json:"metric_name"`
	Query      string  `json:"query"`
	TxnName    string  `json:"txn_name"`
	TxnURL     string  `json:"txn_url"`
	Count      int64   `json:"count"`
	TotalMS    float64 `json:"total_ms"`
	MinMS      float64 `json:"min_ms"`
	MaxMS      float64 `json:"max_ms"`
	Params     string  `json:"params,omitempty"`
}

// Reduce converts the retained records into the upload shape: a
// single-element array containing the record array. Params are zstd
// compressed then base64 encoded; ReduceUncompressed is the audit variant
// (same records, compression disabled).
func (r *SlowSampleReservoir) Reduce() Payload {
	return r.reduce(true)
}

// ReduceUncompressed is the audit variant: identical shape, no compression.
func (r *SlowSampleReservoir) ReduceUncompressed() Payload {
	return r.reduce(false)
}

func (r *SlowSampleReservoir) reduce(compress bool) Payload {
	r.mu.Lock()
	items := append([]SlowSample(nil), r.items...)
	r.mu.Unlock()

	if len(items) == 0 {
		return nil
	}

	records := make([]reducedRecord, 0, len(items))
	for _, it := range items {
		rec := reducedRecord{
			MetricName: it.MetricName,
			Query:      it.Query,
			TxnName:    it.TxnName,
			TxnURL:     it.TxnURL,
			Count:      it.Count,
			TotalMS:    float64(it.Total) / 1000,
			MinMS:      float64(it.Min) / 1000,
			MaxMS:      float64(it.Max) / 1000,
		}
		if len(it.Params) > 0 {
			rec.Params = encodeParams(it.Params, compress)
		}
		records = append(records, rec)
	}

	b, err := json.Marshal([][]reducedRecord{records})
	if err != nil {
		return nil
	}
	return Payload(b)
}

func encodeParams(raw []byte, compress bool) string {
	if !compress {
		return base64.StdEncoding.EncodeToString(raw)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return base64.StdEncoding.EncodeToString(raw)
	}
	defer enc.Close()
	compressed := enc.EncodeAll(raw, nil)
	return base64.StdEncoding.EncodeToString(compressed)
}

// Len reports the number of retained records.
func (r *SlowSampleReservoir) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}
