// =================================
// File: internal/agent/feed.go
// =================================
package agent

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
)

// PriceFeed supplies recent closes for a pair, oldest to newest with the
// current candle last.
type PriceFeed interface {
	Candles(ctx context.Context, pair, timeframe string, limit int) ([]float64, error)
}

// RandomWalkFeed is the dry-run feed: a bounded random walk so demo bots
// exercise the full decision path without exchange connectivity. Each
// Candles call advances the walk by one close.
type RandomWalkFeed struct {
	mu     sync.Mutex
	rng    *rand.Rand
	closes []float64
	step   float64
}

// NewRandomWalkFeed seeds the walk at startPrice. Step is the maximum
// per-candle move as a fraction of the current price.
func NewRandomWalkFeed(startPrice float64, seed int64) *RandomWalkFeed {
	return &RandomWalkFeed{
		rng:    rand.New(rand.NewSource(seed)),
		closes: []float64{startPrice},
		step:   0.01,
	}
}

func (f *RandomWalkFeed) Candles(ctx context.Context, pair, timeframe string, limit int) ([]float64, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid candle limit %d", limit)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// Grow the walk until enough history exists, then advance one candle.
	for len(f.closes) < limit {
		f.advance()
	}
	f.advance()

	out := make([]float64, limit)
	copy(out, f.closes[len(f.closes)-limit:])
	return out, nil
}

func (f *RandomWalkFeed) advance() {
	last := f.closes[len(f.closes)-1]
	move := (f.rng.Float64()*2 - 1) * f.step * last
	next := last + move
	if next <= 0 {
		next = last
	}
	f.closes = append(f.closes, next)

	// Bound memory for long-lived bots.
	if len(f.closes) > 1024 {
		f.closes = append(f.closes[:0:0], f.closes[len(f.closes)-512:]...)
	}
}
