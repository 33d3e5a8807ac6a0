package engine

import "sync/atomic"

// CacheStats reports how a solver's memo table has been used.
type CacheStats struct {
	Lookups uint64 // State lookups, including recursive ones
	Hits    uint64 // Lookups answered from the table
	Solved  uint64 // States computed by this solver (warm entries excluded)
}

// HitRate returns the hit rate as a percentage.
func (s CacheStats) HitRate() float64 {
	if s.Lookups == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Lookups) * 100
}

// cacheCounters are the live counters behind CacheStats.
type cacheCounters struct {
	lookups atomic.Uint64
	hits    atomic.Uint64
	solved  atomic.Uint64
}

func (c *cacheCounters) lookup(hit bool) {
	c.lookups.Add(1)
	if hit {
		c.hits.Add(1)
	}
}

func (c *cacheCounters) snapshot() CacheStats {
	return CacheStats{
		Lookups: c.lookups.Load(),
		Hits:    c.hits.Load(),
		Solved:  c.solved.Load(),
	}
}
