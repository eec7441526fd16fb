package generator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	telemetry "meter-reader/internal/telemetry/domain"
)

const defaultMaxValue int32 = 10000

// Generator produces synthetic meter readings with values in [0, max).
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
	max int32
	now func() time.Time
}

// Option configures the generator.
type Option func(*Generator)

// WithSeed makes the value sequence deterministic.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.rnd = rand.New(rand.NewSource(seed))
	}
}

// WithMaxValue overrides the exclusive upper bound of generated values.
func WithMaxValue(max int32) Option {
	return func(g *Generator) {
		if max > 0 {
			g.max = max
		}
	}
}

// WithClock overrides the reading timestamp source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// New constructs a generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		max: defaultMaxValue,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate returns one reading for customerID.
func (g *Generator) Generate(ctx context.Context, customerID int32) (telemetry.Reading, error) {
	if err := ctx.Err(); err != nil {
		return telemetry.Reading{}, err
	}
	g.mu.Lock()
	value := g.rnd.Int31n(g.max)
	g.mu.Unlock()
	return telemetry.Reading{
		CustomerID: customerID,
		Value:      value,
		Timestamp:  g.now().UTC(),
	}, nil
}
