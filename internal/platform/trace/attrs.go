package trace

// Span attribute keys set by the shortlink handlers.
const (
	AttrToken      = "shortlink.token"
	AttrCached     = "shortlink.cached"
	AttrStoreError = "shortlink.store_error"
)
