package viewcache

import "time"

type settings struct {
	size int
	ttl  time.Duration
	now  func() time.Time
}

// Option applies a configuration option to a Cache.
type Option func(*settings)

// WithSize bounds the number of entries kept.
func WithSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.size = n
		}
	}
}

// WithTTL sets the age after which a loaded entry is fetched again. Zero keeps entries forever.
func WithTTL(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.ttl = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}
