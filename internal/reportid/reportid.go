// Package reportid mints human-readable report identifiers of the form
// "CT-" followed by six digits.
package reportid

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"
)

const (
	Prefix = "CT-"
	space  = 1_000_000
)

// Schemes
const (
	// SchemeTimestamp uses the last six digits of the wall clock in
	// milliseconds. Two reports in the same millisecond, or exactly 1000s
	// apart, collide.
	SchemeTimestamp = "timestamp"
	// SchemeUnique starts from the timestamp digits and steps forward past
	// any value already issued by this process.
	SchemeUnique = "unique"
)

var pattern = regexp.MustCompile(`^CT-\d{6}$`)

// ErrExhausted is returned once every six-digit value has been issued
var ErrExhausted = errors.New("reportid: identifier space exhausted")

// Valid reports whether id has the CT-###### shape
func Valid(id string) bool {
	return pattern.MatchString(id)
}

// Format renders n (taken modulo one million) as an identifier
func Format(n int64) string {
	return fmt.Sprintf("%s%06d", Prefix, n%space)
}

// Generator issues identifiers. It is safe for concurrent use.
type Generator struct {
	mu     sync.Mutex
	scheme string
	now    func() time.Time
	issued map[int64]struct{}
}

// Option configures a Generator
type Option func(*Generator)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New creates a generator for scheme. Unknown schemes fall back to SchemeUnique.
func New(scheme string, opts ...Option) *Generator {
	if scheme != SchemeTimestamp {
		scheme = SchemeUnique
	}
	g := &Generator{
		scheme: scheme,
		now:    time.Now,
		issued: make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Scheme returns the active scheme name
func (g *Generator) Scheme() string {
	return g.scheme
}

// Reserve marks existing identifiers as taken so they are never reissued.
// Malformed values are ignored.
func (g *Generator) Reserve(ids ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range ids {
		if !Valid(id) {
			continue
		}
		var n int64
		fmt.Sscanf(id[len(Prefix):], "%d", &n)
		g.issued[n] = struct{}{}
	}
}

// Next returns a fresh identifier
func (g *Generator) Next() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.now().UnixMilli() % space
	if n < 0 {
		n += space
	}

	if g.scheme == SchemeTimestamp {
		return Format(n), nil
	}

	if len(g.issued) >= space {
		return "", ErrExhausted
	}
	for {
		if _, taken := g.issued[n]; !taken {
			break
		}
		n = (n + 1) % space
	}
	g.issued[n] = struct{}{}
	return Format(n), nil
}
