package driven

import (
	"time"

	"github.com/ericfisherdev/notionvault/internal/domain/model"
)

// ResponseCache is a process-local TTL cache of decoded API responses.
type ResponseCache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Delete(key string) bool
	DeletePrefix(prefix string) int
	Clear()
	Cleanup() int
	Stats() model.CacheStats
}
