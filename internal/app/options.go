package app

import "time"

// settings holds cross-cutting service configuration.
type settings struct {
	now func() time.Time
}

// Option configures a service at construction time.
type Option func(*settings)

// WithClock overrides the time source. Used by tests and by deployments that
// pin the scheduler to a specific timezone's midnight.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

func newSettings(opts []Option) settings {
	s := settings{now: time.Now}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}
