package distribution

// Metrics receives what the engine does. Implementations must be safe for
// concurrent use.
type Metrics interface {
	// FanOut is called once per publish or retract.
	FanOut(op string, recipients, failed int)
	// Repaired is called after a cold-start rebuild of a "home" or "global"
	// feed with the number of entries it produced.
	Repaired(kind string, entries int)
	// CacheMismatch is called when cached data had to be discarded.
	CacheMismatch(kind string)
	// Served is called for every successful feed read: "cache", "repair" or "global".
	Served(source string)
}

// NoopMetrics is the default when no Metrics is configured.
type NoopMetrics struct{}

func (NoopMetrics) FanOut(string, int, int) {}
func (NoopMetrics) Repaired(string, int)    {}
func (NoopMetrics) CacheMismatch(string)    {}
func (NoopMetrics) Served(string)           {}
