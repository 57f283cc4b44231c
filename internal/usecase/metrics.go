package usecase

import "sync"

// StatsSummary represents aggregated identification insights since start-up.
type StatsSummary struct {
	TotalRequests     int64   `json:"total_requests"`
	Matched           int64   `json:"matched"`
	Unknown           int64   `json:"unknown"`
	Failed            int64   `json:"failed"`
	CacheHits         int64   `json:"cache_hits"`
	MatchRate         float64 `json:"match_rate"`
	AverageConfidence float64 `json:"average_confidence"`
}

// Stats accumulates request counters in memory.
type Stats struct {
	mu              sync.Mutex
	matched         int64
	unknown         int64
	failed          int64
	cacheHits       int64
	confidenceTotal float64
}

func (s *Stats) record(matched bool, confidence float64, cached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if matched {
		s.matched++
	} else {
		s.unknown++
	}
	if cached {
		s.cacheHits++
	}
	s.confidenceTotal += confidence
}

func (s *Stats) fail() {
	s.mu.Lock()
	s.failed++
	s.mu.Unlock()
}

// Summary returns a consistent snapshot of the counters.
func (s *Stats) Summary() StatsSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	answered := s.matched + s.unknown
	summary := StatsSummary{
		TotalRequests: answered + s.failed,
		Matched:       s.matched,
		Unknown:       s.unknown,
		Failed:        s.failed,
		CacheHits:     s.cacheHits,
	}
	if answered > 0 {
		summary.MatchRate = float64(s.matched) / float64(answered)
		summary.AverageConfidence = s.confidenceTotal / float64(answered)
	}
	return summary
}
