package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all collector metrics, exposed in Prometheus text format.
type Metrics struct {
	mu sync.RWMutex

	// Request metrics
	requestCount    map[string]*uint64    // endpoint:method -> count
	requestDuration map[string]*Histogram // endpoint:method -> duration histogram
	requestErrors   map[string]*uint64    // endpoint:status_class -> count

	// Collection run metrics
	runsTotal      map[string]*uint64 // flow:status -> count
	postsProcessed uint64
	postsFailed    uint64

	activeWSConnections int64

	startTime time.Time
}

// Histogram tracks value distributions
type Histogram struct {
	mu    sync.Mutex
	count uint64
	sum   float64
	// Buckets: 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s, 10s
	buckets    []float64
	bucketVals []uint64
}

// NewHistogram creates a new histogram with default buckets
func NewHistogram() *Histogram {
	return &Histogram{
		buckets:    []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		bucketVals: make([]uint64, 11),
	}
}

// Observe records a value
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range h.buckets {
		if v <= b {
			h.bucketVals[i]++
		}
	}
}

// New creates a new Metrics instance
func New() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]*uint64),
		requestDuration: make(map[string]*Histogram),
		requestErrors:   make(map[string]*uint64),
		runsTotal:       make(map[string]*uint64),
		startTime:       time.Now(),
	}
}

// global metrics instance
var defaultMetrics = New()

// Default returns the default metrics instance
func Default() *Metrics {
	return defaultMetrics
}

// RecordRequest records a request
func (m *Metrics) RecordRequest(method, path string, statusCode int, duration time.Duration) {
	key := fmt.Sprintf("%s:%s", normalizeEndpoint(path), method)

	m.mu.Lock()
	if m.requestCount[key] == nil {
		var zero uint64
		m.requestCount[key] = &zero
	}
	if m.requestDuration[key] == nil {
		m.requestDuration[key] = NewHistogram()
	}
	m.mu.Unlock()

	atomic.AddUint64(m.requestCount[key], 1)

	m.mu.RLock()
	m.requestDuration[key].Observe(duration.Seconds())
	m.mu.RUnlock()

	// Track errors by status class
	if statusCode >= 400 {
		errorKey := fmt.Sprintf("%s:%d", key, statusCode/100*100)
		m.mu.Lock()
		if m.requestErrors[errorKey] == nil {
			var zero uint64
			m.requestErrors[errorKey] = &zero
		}
		m.mu.Unlock()
		atomic.AddUint64(m.requestErrors[errorKey], 1)
	}
}

// RecordRun records a finished collection run and its per-post tallies.
func (m *Metrics) RecordRun(flow, status string, postsProcessed, postsFailed int) {
	key := fmt.Sprintf("%s:%s", flow, status)

	m.mu.Lock()
	if m.runsTotal[key] == nil {
		var zero uint64
		m.runsTotal[key] = &zero
	}
	m.mu.Unlock()
	atomic.AddUint64(m.runsTotal[key], 1)

	if postsProcessed > 0 {
		atomic.AddUint64(&m.postsProcessed, uint64(postsProcessed))
	}
	if postsFailed > 0 {
		atomic.AddUint64(&m.postsFailed, uint64(postsFailed))
	}
}

// normalizeEndpoint normalizes an endpoint path for metrics (removes IDs)
func normalizeEndpoint(path string) string {
	// Replace UUIDs and numeric IDs with placeholders
	parts := strings.Split(path, "/")
	for i, part := range parts {
		// UUID pattern (simplified)
		if len(part) == 36 && strings.Count(part, "-") == 4 {
			parts[i] = "{id}"
		} else if len(part) > 0 && isNumeric(part) {
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	atomic.AddInt64(&m.activeWSConnections, 1)
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	atomic.AddInt64(&m.activeWSConnections, -1)
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder

		// Uptime
		uptime := time.Since(m.startTime).Seconds()
		sb.WriteString("# HELP lpc_uptime_seconds Time since the collector started\n")
		sb.WriteString("# TYPE lpc_uptime_seconds gauge\n")
		sb.WriteString(fmt.Sprintf("lpc_uptime_seconds %f\n\n", uptime))

		// Active WebSocket connections
		sb.WriteString("# HELP lpc_websocket_connections_active Active WebSocket connections\n")
		sb.WriteString("# TYPE lpc_websocket_connections_active gauge\n")
		sb.WriteString(fmt.Sprintf("lpc_websocket_connections_active %d\n\n", atomic.LoadInt64(&m.activeWSConnections)))

		// Run outcomes
		m.mu.RLock()
		if len(m.runsTotal) > 0 {
			sb.WriteString("# HELP lpc_runs_total Finished collection runs\n")
			sb.WriteString("# TYPE lpc_runs_total counter\n")
			keys := make([]string, 0, len(m.runsTotal))
			for k := range m.runsTotal {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				parts := strings.SplitN(key, ":", 2)
				if len(parts) == 2 {
					count := atomic.LoadUint64(m.runsTotal[key])
					sb.WriteString(fmt.Sprintf("lpc_runs_total{flow=%q,status=%q} %d\n", parts[0], parts[1], count))
				}
			}
			sb.WriteString("\n")
		}
		m.mu.RUnlock()

		// Per-post tallies
		sb.WriteString("# HELP lpc_posts_processed_total Post analytics pages collected\n")
		sb.WriteString("# TYPE lpc_posts_processed_total counter\n")
		sb.WriteString(fmt.Sprintf("lpc_posts_processed_total %d\n\n", atomic.LoadUint64(&m.postsProcessed)))
		sb.WriteString("# HELP lpc_posts_failed_total Post analytics pages that failed\n")
		sb.WriteString("# TYPE lpc_posts_failed_total counter\n")
		sb.WriteString(fmt.Sprintf("lpc_posts_failed_total %d\n\n", atomic.LoadUint64(&m.postsFailed)))

		// Request counts
		m.mu.RLock()
		if len(m.requestCount) > 0 {
			sb.WriteString("# HELP lpc_http_requests_total Total HTTP requests\n")
			sb.WriteString("# TYPE lpc_http_requests_total counter\n")
			keys := make([]string, 0, len(m.requestCount))
			for k := range m.requestCount {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				parts := strings.SplitN(key, ":", 2)
				if len(parts) == 2 {
					count := atomic.LoadUint64(m.requestCount[key])
					sb.WriteString(fmt.Sprintf("lpc_http_requests_total{endpoint=%q,method=%q} %d\n", parts[0], parts[1], count))
				}
			}
			sb.WriteString("\n")
		}

		// Request duration histograms
		if len(m.requestDuration) > 0 {
			sb.WriteString("# HELP lpc_http_request_duration_seconds HTTP request latency\n")
			sb.WriteString("# TYPE lpc_http_request_duration_seconds histogram\n")
			keys := make([]string, 0, len(m.requestDuration))
			for k := range m.requestDuration {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				parts := strings.SplitN(key, ":", 2)
				if len(parts) == 2 {
					h := m.requestDuration[key]
					h.mu.Lock()
					for i, bucket := range h.buckets {
						sb.WriteString(fmt.Sprintf("lpc_http_request_duration_seconds_bucket{endpoint=%q,method=%q,le=\"%g\"} %d\n", parts[0], parts[1], bucket, h.bucketVals[i]))
					}
					sb.WriteString(fmt.Sprintf("lpc_http_request_duration_seconds_bucket{endpoint=%q,method=%q,le=\"+Inf\"} %d\n", parts[0], parts[1], h.count))
					sb.WriteString(fmt.Sprintf("lpc_http_request_duration_seconds_sum{endpoint=%q,method=%q} %f\n", parts[0], parts[1], h.sum))
					sb.WriteString(fmt.Sprintf("lpc_http_request_duration_seconds_count{endpoint=%q,method=%q} %d\n", parts[0], parts[1], h.count))
					h.mu.Unlock()
				}
			}
			sb.WriteString("\n")
		}

		// Error counts
		if len(m.requestErrors) > 0 {
			sb.WriteString("# HELP lpc_http_errors_total Total HTTP errors by status class\n")
			sb.WriteString("# TYPE lpc_http_errors_total counter\n")
			keys := make([]string, 0, len(m.requestErrors))
			for k := range m.requestErrors {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, key := range keys {
				parts := strings.Split(key, ":")
				if len(parts) >= 3 {
					count := atomic.LoadUint64(m.requestErrors[key])
					sb.WriteString(fmt.Sprintf("lpc_http_errors_total{endpoint=%q,method=%q,status_class=%q} %d\n", parts[0], parts[1], parts[2], count))
				}
			}
			sb.WriteString("\n")
		}
		m.mu.RUnlock()

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(sb.String()))
	}
}
