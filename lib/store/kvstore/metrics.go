package kvstore

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// operation names used as metric label
const (
	opSave     = "save"
	opGet      = "get"
	opDelete   = "delete"
	opList     = "list"
	opClear    = "clear"
	opTruncate = "truncate"
	opInfo     = "info"
)

// storeMetrics records per operation counters and latencies of one store.
// A nil *storeMetrics records nothing.
type storeMetrics struct {
	set *metrics.Set
	db  string
}

type gaugeKey struct {
	set  *metrics.Set
	name string
}

// stateSources holds the state of the newest store per gauge. A gauge keeps the
// callback it was created with, so it reads the current source from here.
var stateSources = xsync.NewMapOf[gaugeKey, func() float64]()

func newStoreMetrics(set *metrics.Set, db string, state func() float64) *storeMetrics {
	if set == nil {
		return nil
	}
	key := gaugeKey{set: set, name: fmt.Sprintf(`offlinedb_state{db=%q}`, db)}
	stateSources.Store(key, state)
	set.GetOrCreateGauge(key.name, func() float64 {
		f, ok := stateSources.Load(key)
		if !ok {
			return 0
		}
		return f()
	})
	return &storeMetrics{set: set, db: db}
}

// observe is deferred by every operation with a pointer to its named error result
func (m *storeMetrics) observe(op string, start time.Time, err *error) {
	if m == nil {
		return
	}
	result := "success"
	if *err != nil {
		result = "error"
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`offlinedb_ops_total{db=%q,op=%q,result=%q}`, m.db, op, result)).Inc()
	m.set.GetOrCreateSummary(fmt.Sprintf(`offlinedb_op_duration_seconds{db=%q,op=%q}`, m.db, op)).UpdateDuration(start)
}
