package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	appendCount   map[string]int64
	requestMillis map[string]int64
}

// MetricsSnapshot is a point-in-time copy of every counter.
type MetricsSnapshot struct {
	Requests      map[string]int64 `json:"requests"`
	RequestMillis map[string]int64 `json:"request_millis"`
	Errors        map[string]int64 `json:"errors"`
	Appends       map[string]int64 `json:"appends"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		appendCount:   make(map[string]int64),
		requestMillis: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestMillis[key] += duration.Milliseconds()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordAppend counts ledger appends by record kind and outcome, where the
// outcome is "accepted" or the name of the violated rule.
func (m *Metrics) RecordAppend(kind, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendCount[kind+"|"+outcome]++
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		Requests:      copyCounts(m.requestCount),
		RequestMillis: copyCounts(m.requestMillis),
		Errors:        copyCounts(m.errorCount),
		Appends:       copyCounts(m.appendCount),
	}
}

func copyCounts(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
