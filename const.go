package match

const (
	// EngineVersion is the current version of the matching engine
	EngineVersion = "v2.0.0"

	// PriceEpsilon compensates floating point comparison when checking whether two prices cross.
	PriceEpsilon = 1e-6

	// DefaultMarketPrice is the reference price displayed for resting market orders.
	// It is set once when the engine is constructed and never refreshed from trades.
	DefaultMarketPrice = 5.0

	// DefaultWorkerCount is the number of dispatcher workers draining the completion queue.
	DefaultWorkerCount = 9

	// DefaultCompletionQueueSize is the buffer of the shared completion queue.
	DefaultCompletionQueueSize = 1024
)
