package outbound

import (
	"time"

	"github.com/pbxgate/pbxgate/internal/domain/cache"
)

// ArtifactCache stores fetched binary artifacts with a TTL.
type ArtifactCache interface {
	Get(key string) (cache.Artifact, bool)
	Set(key string, artifact cache.Artifact, ttl time.Duration)
	Delete(key string) bool
	DeleteMatching(substr string) int
	Clear() int
	Sweep() int
	Status() cache.Status
}
