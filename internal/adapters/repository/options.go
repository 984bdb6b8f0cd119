package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/okian/nback/pkg/logger"
)

type settings struct {
	timeout time.Duration
	newID   func() string
	log     logger.Logger
}

func defaultSettings() settings {
	return settings{
		timeout: 5 * time.Second,
		newID:   func() string { return uuid.NewString() },
		log:     logger.Nop(),
	}
}

// Option configures a Log backend.
type Option func(*settings)

// WithTimeout bounds each store round trip. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithIDGenerator overrides how session IDs are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *settings) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets the logger used for migration output.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.log = l
		}
	}
}

func applyOptions(opts []Option) settings {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
