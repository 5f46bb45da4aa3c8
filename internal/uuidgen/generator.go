package uuidgen

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Generator hands out successive UUIDs derived from a fixed base.
type Generator struct {
	base        UUID
	current     UUID
	log         logrus.FieldLogger
	saturations atomic.Uint64
}

// NewGenerator returns a generator whose current UUID equals base.
func NewGenerator(base UUID, log logrus.FieldLogger) *Generator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Generator{base: base, current: base, log: log}
}

// Base returns the base UUID.
func (g *Generator) Base() UUID { return g.base }

// Current returns the most recently generated UUID (or the base after Reset).
func (g *Generator) Current() UUID { return g.current }

// Reset sets the current UUID back to the base.
func (g *Generator) Reset() {
	g.current = g.base
}

// Next advances the counter and returns the new current UUID. Once the
// counter is exhausted the same UUID is returned again and a warning is
// logged.
func (g *Generator) Next() UUID {
	if Increment(&g.current) {
		g.saturations.Add(1)
		g.log.WithField("uuid", g.current.String()).Warn("uuid counter saturated")
	}
	return g.current
}

// Saturations reports how many calls to Next hit the counter limit.
func (g *Generator) Saturations() uint64 {
	return g.saturations.Load()
}

// Sequence returns the first n UUIDs a fresh generator produces for base,
// i.e. base+1 through base+n.
func Sequence(base UUID, n int) []UUID {
	g := NewGenerator(base, logrus.StandardLogger())
	out := make([]UUID, 0, n)
	for range n {
		out = append(out, g.Next())
	}
	return out
}
