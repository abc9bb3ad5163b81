package leafstream

const (
	// DefaultLeafSize is used when the server's manifest does not carry a
	// leaf size.
	DefaultLeafSize = 8 * 1024 * 1024

	// DefaultQuickIDChunkSize is the length of the file prefix hashed into
	// the quick ID.
	DefaultQuickIDChunkSize = 1024 * 1024

	// DefaultMaxRetries bounds the session's shared retry budget.
	DefaultMaxRetries = 5
)

// Config holds the per-session knobs. The zero value of every field falls
// back to its default.
type Config struct {
	// LeafSize is the byte length of each leaf. The server may override it
	// in the negotiation manifest; once known it is fixed for the session.
	LeafSize int64

	// QuickIDChunkSize is the number of bytes read from the start of the
	// file to compute the quick ID.
	QuickIDChunkSize int64

	// MaxRetries is the retry budget shared across the whole session.
	// Exhausting it at any stage aborts the session.
	MaxRetries int

	// OnProgress is invoked synchronously on every leaf-index advance with
	// the completed and total byte counts. It must not block.
	OnProgress func(completedBytes, totalBytes int64)

	// OnRequest is invoked after every transport round-trip, successful or
	// not.
	OnRequest func(Response)
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		LeafSize:         DefaultLeafSize,
		QuickIDChunkSize: DefaultQuickIDChunkSize,
		MaxRetries:       DefaultMaxRetries,
	}
}

func (c Config) withDefaults() Config {
	if c.LeafSize <= 0 {
		c.LeafSize = DefaultLeafSize
	}
	if c.QuickIDChunkSize <= 0 {
		c.QuickIDChunkSize = DefaultQuickIDChunkSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// LeafCount returns the number of leaves a file of the given size splits
// into. A zero-size file has zero leaves.
func LeafCount(size, leafSize int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + leafSize - 1) / leafSize)
}
