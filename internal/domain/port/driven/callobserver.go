package driven

import "time"

// CallObserver receives per-operation telemetry from the Notion service.
// Implementations must be safe for concurrent use and must not block.
type CallObserver interface {
	// ObserveCall is invoked once per remote call with its outcome.
	ObserveCall(op string, err error, elapsed time.Duration)

	// ObserveCacheLookup is invoked once per cacheable read.
	ObserveCacheLookup(op string, hit bool)
}
