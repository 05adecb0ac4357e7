package ports

// EngineMetrics receives engine-level observations. Implementations must be
// safe for concurrent use.
type EngineMetrics interface {
	Dispatched(class, source string)
	Evicted(partition string, n int)
	QueueLength(n int)
	Replayed(succeeded, failed int)
	PartitionDropped(name string)
}
