package recovery

import (
	"expvar"
	"fmt"
	"sync"
)

var publishMu sync.Mutex

type storeMetrics struct {
	saves           *expvar.Int
	saveErrors      *expvar.Int
	bytesWritten    *expvar.Int
	reconstructs    *expvar.Int
	integrityErrors *expvar.Int
	orphansRemoved  *expvar.Int
}

func newStoreMetrics() *storeMetrics {
	return &storeMetrics{
		saves:           publishExpvarInt("recovery_store_saves_total"),
		saveErrors:      publishExpvarInt("recovery_store_save_errors_total"),
		bytesWritten:    publishExpvarInt("recovery_store_bytes_written_total"),
		reconstructs:    publishExpvarInt("recovery_store_reconstructs_total"),
		integrityErrors: publishExpvarInt("recovery_store_integrity_errors_total"),
		orphansRemoved:  publishExpvarInt("recovery_store_orphans_removed_total"),
	}
}

// publishExpvarInt returns the process-wide counter name, creating it on
// first use. Every Store in a process shares the same counters.
func publishExpvarInt(name string) *expvar.Int {
	publishMu.Lock()
	defer publishMu.Unlock()
	v := expvar.Get(name)
	if v == nil {
		return expvar.NewInt(name)
	}
	if iv, ok := v.(*expvar.Int); ok {
		return iv
	}
	panic(fmt.Sprintf("expvar: trying to publish Int %s but variable already exists with different type %T", name, v))
}
