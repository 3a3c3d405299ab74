package models

import "time"

// SystemMetrics is a JSON snapshot of process instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64          `json:"cacheHitRatio"`
	CacheHits                uint64           `json:"cacheHits"`
	CacheMisses              uint64           `json:"cacheMisses"`
	RequestsTotal            uint64           `json:"requestsTotal"`
	AverageRequestDurationMs float64          `json:"averageRequestDurationMs"`
	ExportsTotal             uint64           `json:"exportsTotal"`
	CleanupRunsTotal         uint64           `json:"cleanupRunsTotal"`
	RecordsDeleted           map[string]int64 `json:"recordsDeleted"`
	Goroutines               int              `json:"goroutines"`
	GeneratedAt              time.Time        `json:"generatedAt"`
}
