package buffer

import (
	"sync/atomic"
)

// Statistics tracks queue activity. All counters are safe for concurrent use.
type Statistics struct {
	writes    atomic.Int64
	reads     atomic.Int64
	overflows atomic.Int64
	drops     atomic.Int64
	rejects   atomic.Int64
	size      atomic.Int64
	maxSize   atomic.Int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{}
}

func (s *Statistics) Write()    { s.writes.Add(1) }
func (s *Statistics) Read()     { s.reads.Add(1) }
func (s *Statistics) Overflow() { s.overflows.Add(1) }
func (s *Statistics) Drop()     { s.drops.Add(1) }
func (s *Statistics) Reject()   { s.rejects.Add(1) }

// UpdateSize records the current size and tracks the high-water mark.
func (s *Statistics) UpdateSize(size int64) {
	s.size.Store(size)
	for {
		highest := s.maxSize.Load()
		if size <= highest || s.maxSize.CompareAndSwap(highest, size) {
			return
		}
	}
}

func (s *Statistics) Writes() int64    { return s.writes.Load() }
func (s *Statistics) Reads() int64     { return s.reads.Load() }
func (s *Statistics) Overflows() int64 { return s.overflows.Load() }
func (s *Statistics) Drops() int64     { return s.drops.Load() }
func (s *Statistics) Rejects() int64   { return s.rejects.Load() }
func (s *Statistics) CurrentSize() int64 {
	return s.size.Load()
}
func (s *Statistics) MaxSize() int64 { return s.maxSize.Load() }

// DropRate returns dropped items as a fraction of attempted writes.
func (s *Statistics) DropRate() float64 {
	attempts := s.Writes() + s.Drops() + s.Rejects()
	if attempts == 0 {
		return 0
	}
	return float64(s.Drops()) / float64(attempts)
}

// StatsSummary is a point-in-time copy of Statistics.
type StatsSummary struct {
	Writes    int64   `json:"writes"`
	Reads     int64   `json:"reads"`
	Overflows int64   `json:"overflows"`
	Drops     int64   `json:"drops"`
	Rejects   int64   `json:"rejects"`
	Size      int64   `json:"size"`
	MaxSize   int64   `json:"max_size"`
	DropRate  float64 `json:"drop_rate"`
}

// Summary returns a snapshot of all counters.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Writes:    s.Writes(),
		Reads:     s.Reads(),
		Overflows: s.Overflows(),
		Drops:     s.Drops(),
		Rejects:   s.Rejects(),
		Size:      s.CurrentSize(),
		MaxSize:   s.MaxSize(),
		DropRate:  s.DropRate(),
	}
}
