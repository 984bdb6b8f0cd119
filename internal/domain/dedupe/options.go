package dedupe

type config struct {
	maxSize int
}

// Option configures an in-memory tracker.
type Option func(*config)

// WithMaxSize caps the number of keys kept. Values <= 0 disable eviction.
func WithMaxSize(maxSize int) Option {
	return func(c *config) {
		c.maxSize = maxSize
	}
}
