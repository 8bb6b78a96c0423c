package db

// QueryLatencyStats returns per-query latency summaries, slowest p95 first.
func (c *Database) QueryLatencyStats() []QueryLatency {
	if c == nil || c.latency == nil {
		return nil
	}
	return c.latency.summary()
}
