package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]Dataset)
	registryMu sync.RWMutex
)

// Register adds a dataset to the registry. Dataset keys must be unique;
// registering a key twice is an error so that a bad definitions file cannot
// silently shadow an earlier dataset.
func Register(ds Dataset) error {
	if ds.Key == "" {
		return fmt.Errorf("dataset key must not be empty")
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[ds.Key]; exists {
		return fmt.Errorf("dataset already registered: %s", ds.Key)
	}
	registry[ds.Key] = ds
	return nil
}

// GetDataset returns a dataset by key. Returns false if not found.
func GetDataset(key string) (Dataset, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	ds, ok := registry[key]
	return ds, ok
}

// AllDatasets returns every registered dataset, sorted by key for consistent
// ordering.
func AllDatasets() []Dataset {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Dataset, 0, len(registry))
	for _, ds := range registry {
		result = append(result, ds)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Key < result[j].Key
	})

	return result
}

// DatasetCount returns the number of registered datasets.
func DatasetCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// ClearDatasets removes all registered datasets. Primarily useful for testing.
func ClearDatasets() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Dataset)
}
