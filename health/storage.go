package health

import (
	"context"

	"github.com/thomassophiea/aura-offline/store"
)

// StorageChecker verifies the cache storage backend answers and that the
// current generation's stores are present.
type StorageChecker struct {
	storage store.Storage
	gen     store.Generation
}

// NewStorageChecker creates a checker for the given storage and the
// generation expected to be live.
func NewStorageChecker(storage store.Storage, gen store.Generation) *StorageChecker {
	return &StorageChecker{storage: storage, gen: gen}
}

// Name returns the name of this checker.
func (c *StorageChecker) Name() string { return "storage" }

// Check enumerates tags and confirms the current generation is among them.
func (c *StorageChecker) Check(ctx context.Context) Result {
	tags, err := c.storage.Tags(ctx)
	if err != nil {
		return Unhealthy("storage backend unavailable", err)
	}

	have := make(map[string]bool, len(tags))
	for _, tag := range tags {
		have[tag] = true
	}

	var missing []string
	for _, tag := range c.gen.Tags() {
		if !have[tag] {
			missing = append(missing, tag)
		}
	}

	details := map[string]any{
		"version": c.gen.Version,
		"tags":    len(tags),
	}
	if len(missing) > 0 {
		details["missing"] = missing
		return Degraded("current generation stores missing").WithDetails(details)
	}

	// A stale tag surviving past activation is garbage worth noticing.
	stale := 0
	for _, tag := range tags {
		if !c.gen.Keep(tag) {
			stale++
		}
	}
	if stale > 0 {
		details["stale"] = stale
		return Degraded("stale cache generations present").WithDetails(details)
	}

	return Healthy("storage ready").WithDetails(details)
}
