package sweepcache

// MissReason tags why a Get returned nothing. The distinction never changes
// cache behavior; it exists only for observability.
type MissReason string

const (
	// MissNotFound - no entry under the key.
	MissNotFound MissReason = "not_found"
	// MissExpired - entry present but past its deadline.
	MissExpired MissReason = "expired"
	// MissStale - key carries a staleness mark.
	MissStale MissReason = "stale"
	// MissDecode - stored bytes could not be decoded as the requested type
	// (type mismatch or foreign/corrupt bytes).
	MissDecode MissReason = "decode"
)

// Metrics receives cache lifecycle events. Implementations MUST be cheap and
// non-blocking; the cache calls them on hot paths. See metrics/prom for a
// Prometheus backend and slogmetrics for a sampled log sink.
type Metrics interface {
	// Hit is called when Get returns a value.
	Hit()
	// Miss is called when Get returns nothing, tagged with why.
	Miss(reason MissReason)
	// Set is called after a successful write.
	Set()
	// Invalidation is called when a key is marked stale.
	Invalidation()
	// SweepRemoved is called after a sweep pass with the number of entries
	// removed (stale plus, when enabled, expired).
	SweepRemoved(n int)
	// EntryCount reports the store's current entry count, when the store can
	// tell. Gauge semantics.
	EntryCount(n int)
}

// NopMetrics is the default no-op sink, so callers that don't care about
// metrics never pay for nil checks.
type NopMetrics struct{}

func (NopMetrics) Hit()             {}
func (NopMetrics) Miss(MissReason)  {}
func (NopMetrics) Set()             {}
func (NopMetrics) Invalidation()    {}
func (NopMetrics) SweepRemoved(int) {}
func (NopMetrics) EntryCount(int)   {}
